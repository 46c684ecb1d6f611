package embedding

import "bytes"

// signatures maps leading magic bytes to the MIME type sent with the image part.
var signatures = []struct {
	prefix []byte
	mime   string
}{
	{[]byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
	{[]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
	{[]byte("GIF8"), "image/gif"},
	{[]byte("BM"), "image/bmp"},
}

// DetectMIMEType detects the MIME type of image data from its magic bytes.
func DetectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// WebP: RIFF....WEBP
	if len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return "image/webp"
	}
	for _, s := range signatures {
		if bytes.HasPrefix(data, s.prefix) {
			return s.mime
		}
	}
	return "application/octet-stream"
}
