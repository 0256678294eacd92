package epub

import "errors"

var (
	// ErrInvalidEPub indicates the archive is not a readable e-book
	// (no container, no package document, or a malformed one).
	ErrInvalidEPub = errors.New("epub: invalid ePub file")

	// ErrFileNotFound indicates a manifest entry has no file in the archive.
	ErrFileNotFound = errors.New("epub: file not found in archive")
)
