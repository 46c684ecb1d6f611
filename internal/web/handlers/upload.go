package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-matcher/internal/constants"
)

// errMissingUpload is returned when the multipart request carries no image file.
var errMissingUpload = errors.New("missing uploaded image")

// savedUpload is an uploaded file persisted to temporary storage.
// Callers must defer cleanup as soon as saveUpload returns.
type savedUpload struct {
	Path     string
	Filename string
}

// cleanup removes the temporary file. Missing files are not an error.
func (u *savedUpload) cleanup() {
	if u == nil || u.Path == "" {
		return
	}
	if err := os.Remove(u.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove uploaded file", "path", u.Path, "error", err)
	}
}

// parseUploadForm parses a multipart request with the shared size limit.
func parseUploadForm(r *http.Request) error {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		return fmt.Errorf("parsing multipart form: %w", err)
	}
	return nil
}

// saveUpload writes the image form file to uploadDir under a random name.
// On error nothing is left on disk.
func saveUpload(r *http.Request, uploadDir string) (*savedUpload, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[constants.UploadFormField]) == 0 {
		return nil, errMissingUpload
	}
	fileHeader := r.MultipartForm.File[constants.UploadFormField][0]

	if err := os.MkdirAll(uploadDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(fileHeader.Filename)))
	upload := &savedUpload{
		Path:     filepath.Join(uploadDir, uuid.NewString()+ext),
		Filename: filepath.Base(fileHeader.Filename),
	}

	if err := writeUpload(fileHeader, upload.Path); err != nil {
		upload.cleanup()
		return nil, err
	}
	return upload, nil
}

func writeUpload(fileHeader *multipart.FileHeader, path string) error {
	file, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("failed to open file: %s", fileHeader.Filename)
	}
	defer file.Close()

	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // name is a random uuid
	if err != nil {
		return errors.New("failed to create temp file")
	}

	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return errors.New("failed to save file")
	}
	if err := out.Close(); err != nil {
		return errors.New("failed to save file")
	}
	return nil
}
