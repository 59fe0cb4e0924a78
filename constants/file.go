package constants

import (
	"mime"
	"strings"
)

// Formats selected by the declared MIME type.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// AllowedExtensions holds the file extensions the CLI batch mode picks up, mapped to the MIME
// type it declares for them.
var AllowedExtensions = map[string]string{
	"pdf":  MimePDF,
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"webp": "image/webp",
	"heic": "image/heic",
	"heif": "image/heif",
	"docx": MimeDOCX,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// NormalizeMime lowercases a MIME type and drops any parameters ("; charset=...").
func NormalizeMime(m string) string {
	m = strings.TrimSpace(m)
	if mt, _, err := mime.ParseMediaType(m); err == nil {
		return mt
	}
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

// MapMimeToFormat returns PDF, IMAGE, or "" when the declared type is not supported.
// The shorthand "pdf" is accepted alongside application/pdf.
func MapMimeToFormat(m string) string {
	m = NormalizeMime(m)
	switch {
	case m == MimePDF, m == "pdf":
		return PDF
	case strings.HasPrefix(m, "image/") && len(m) > len("image/"):
		return IMAGE
	default:
		return ""
	}
}

// MimeForExt maps a file extension to the MIME type declared for it, or "" if unknown.
func MimeForExt(ext string) string {
	return AllowedExtensions[NormalizeExt(ext)]
}

// IsHEICMime reports whether the image type needs converting before OCR.
func IsHEICMime(m string) bool {
	m = NormalizeMime(m)
	return m == "image/heic" || m == "image/heif"
}
