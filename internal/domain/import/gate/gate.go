// Package gate performs the first checks on an uploaded statement file:
// extension, size and emptiness. Content is not inspected here.
package gate

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MaxFileSize is the largest accepted upload (inclusive).
const MaxFileSize int64 = 5 * 1024 * 1024

// ErrorCode identifies why a file was rejected
type ErrorCode string

const (
	ErrNoFile           ErrorCode = "NO_FILE"
	ErrInvalidExtension ErrorCode = "INVALID_EXTENSION"
	ErrFileTooLarge     ErrorCode = "FILE_TOO_LARGE"
	ErrEmptyFile        ErrorCode = "EMPTY_FILE"
)

// FileType is the coarse kind of an accepted upload
type FileType string

const (
	FileTypeCSV   FileType = "csv"
	FileTypePDF   FileType = "pdf"
	FileTypeImage FileType = "image"
)

// allowedExtensions maps lower-case extensions to their file type
var allowedExtensions = map[string]FileType{
	"csv":  FileTypeCSV,
	"pdf":  FileTypePDF,
	"png":  FileTypeImage,
	"jpg":  FileTypeImage,
	"jpeg": FileTypeImage,
}

// File is the upload metadata the gate inspects
type File struct {
	Name      string
	Size      int64
	Extension string // declared extension; derived from Name when empty
}

// Result is the outcome of Validate
type Result struct {
	Valid    bool
	Error    ErrorCode
	Message  string
	FileType FileType
}

// Validate checks an upload against the allowed extensions and the size limits.
// A nil file is rejected with ErrNoFile.
func Validate(f *File) Result {
	if f == nil {
		return reject(ErrNoFile, "No file selected. Choose a CSV bank statement to import.")
	}

	ext := Extension(f)
	fileType, ok := allowedExtensions[ext]
	if !ok {
		return reject(ErrInvalidExtension,
			fmt.Sprintf("Unsupported file type %q. Upload a CSV, PDF, PNG or JPG file.", ext))
	}

	if f.Size > MaxFileSize {
		return reject(ErrFileTooLarge,
			fmt.Sprintf("File is too large (%d bytes). The maximum size is 5 MB.", f.Size))
	}

	if f.Size <= 0 {
		return reject(ErrEmptyFile, "The selected file is empty. Export the statement again and retry.")
	}

	return Result{Valid: true, FileType: fileType}
}

// Extension returns the normalized extension of f: the declared one when set,
// otherwise the suffix of its name, lower-cased and without the leading dot.
func Extension(f *File) string {
	ext := f.Extension
	if ext == "" {
		ext = filepath.Ext(f.Name)
	}
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

func reject(code ErrorCode, msg string) Result {
	return Result{Valid: false, Error: code, Message: msg}
}
