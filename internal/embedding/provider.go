// Package embedding turns images into face descriptors using an external embedding server.
package embedding

import (
	"context"
	"errors"

	"github.com/kozaktomas/face-matcher/internal/matcher"
)

var (
	// ErrNoFaceDetected means the image was processed but contained no usable face.
	// It is a terminal outcome for that image, not a comparison failure.
	ErrNoFaceDetected = errors.New("no face detected")

	// ErrNotReady is returned when Describe is called before Init succeeded.
	ErrNotReady = errors.New("embedding provider not initialized")
)

// Provider produces a descriptor for the most prominent face in an image.
type Provider interface {
	Describe(ctx context.Context, imageData []byte) (matcher.Descriptor, error)
}

// ReadinessReporter is implemented by providers that need a one-time initialization.
type ReadinessReporter interface {
	Ready() bool
}
