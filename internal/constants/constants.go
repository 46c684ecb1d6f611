// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Service identity
const (
	// ServiceName is reported by the status endpoint and the CLI
	ServiceName = "face-matcher"
)

// Image constants
const (
	// MaxImageSize is the maximum dimension (width or height) sent to the embedding server
	MaxImageSize = 1920

	// MaxImageBytes is the largest image accepted from disk or a remote URL (25MB)
	MaxImageBytes = 25 << 20
)

// File upload constants
const (
	// MaxUploadSize is the maximum multipart request size in bytes (100MB)
	MaxUploadSize = 100 << 20

	// UploadFormField is the multipart field carrying the uploaded image
	UploadFormField = "image"
)
