// Package imageload reads images from disk, URLs or uploads and normalizes them
// into JPEG bytes suitable for the embedding server.
package imageload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	// ErrUnsupportedImage is returned when the data cannot be decoded as an image.
	ErrUnsupportedImage = errors.New("unsupported image format")

	// ErrTooLarge is returned when an image exceeds the configured byte limit.
	ErrTooLarge = errors.New("image too large")

	// ErrFetch is returned when a remote image cannot be retrieved.
	ErrFetch = errors.New("failed to fetch image")
)

const jpegQuality = 90

// Loader loads and normalizes images.
type Loader struct {
	client   *http.Client
	maxBytes int64
	maxSize  int
}

// NewLoader creates a loader. maxSize is the longest allowed side in pixels after
// normalization; larger images are downscaled.
func NewLoader(timeout time.Duration, maxBytes int64, maxSize int) *Loader {
	return &Loader{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		maxSize:  maxSize,
	}
}

// IsURL reports whether ref should be fetched over HTTP rather than read from disk.
func IsURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// IsReferenceImage reports whether a file name carries one of the accepted extensions.
// The comparison is case-sensitive.
func IsReferenceImage(name string, exts []string) bool {
	return slices.Contains(exts, filepath.Ext(name))
}

// Load reads ref as a URL or a file path.
func (l *Loader) Load(ctx context.Context, ref string) ([]byte, error) {
	if IsURL(ref) {
		return l.FromURL(ctx, ref)
	}
	return l.FromFile(ref)
}

// FromFile reads and normalizes an image from disk.
func (l *Loader) FromFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if l.maxBytes > 0 && info.Size() > l.maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, path, info.Size())
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return l.FromBytes(data)
}

// FromURL downloads and normalizes an image. Only http and https are accepted.
func (l *Loader) FromURL(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid URL %q", ErrFetch, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFetch, u.Redacted(), resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if l.maxBytes > 0 {
		body = io.LimitReader(resp.Body, l.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrFetch, err)
	}
	if l.maxBytes > 0 && int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, u.Redacted(), l.maxBytes)
	}

	return l.FromBytes(data)
}

// FromBytes decodes an image and re-encodes it as JPEG, downscaling it to fit maxSize.
func (l *Loader) FromBytes(data []byte) ([]byte, error) {
	if l.maxBytes > 0 && int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	return ResizeImage(data, l.maxSize)
}

// ResizeImage resizes an image to fit within maxSize (width or height) while keeping aspect ratio.
// A maxSize of 0 only re-encodes.
func ResizeImage(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if maxSize <= 0 || (width <= maxSize && height <= maxSize) {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		return buf.Bytes(), nil
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = max(int(float64(height)*float64(maxSize)/float64(width)), 1)
	} else {
		newHeight = maxSize
		newWidth = max(int(float64(width)*float64(maxSize)/float64(height)), 1)
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), nil
}
