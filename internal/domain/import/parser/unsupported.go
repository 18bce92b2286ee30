package parser

import (
	"errors"

	"github.com/FACorreiaa/echo-import/internal/domain/import/gate"
)

var (
	// ErrPDFNotSupported indicates PDF statements cannot be read yet
	ErrPDFNotSupported = errors.New("PDF parsing not yet supported")
	// ErrImageNotSupported indicates scanned statements cannot be read yet
	ErrImageNotSupported = errors.New("image parsing not yet supported")
)

// CheckSupported reports whether files of type ft can be parsed. PDF and image
// uploads pass the gate but have no text extraction.
func CheckSupported(ft gate.FileType) error {
	switch ft {
	case gate.FileTypePDF:
		return ErrPDFNotSupported
	case gate.FileTypeImage:
		return ErrImageNotSupported
	}
	return nil
}

// UnsupportedMessage is the user-facing text for an unsupported file type.
func UnsupportedMessage(ft gate.FileType) string {
	switch ft {
	case gate.FileTypePDF:
		return "PDF statements are not yet supported. Please export your statement as CSV from your bank and upload that file instead."
	case gate.FileTypeImage:
		return "Image statements are not yet supported. Please export your statement as CSV from your bank and upload that file instead."
	}
	return ""
}
