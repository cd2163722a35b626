package graphloom

import "errors"

var (
	// ErrDocumentNotFound is returned when a document ID does not exist.
	ErrDocumentNotFound = errors.New("graphloom: document not found")

	// ErrProjectIDRequired is returned when a document's metadata lacks
	// the mandatory projectId entry.
	ErrProjectIDRequired = errors.New("graphloom: projectId metadata is required")

	// ErrUnsupportedFormat is returned for unrecognized file formats.
	ErrUnsupportedFormat = errors.New("graphloom: unsupported document format")

	// ErrParsingFailed is returned when document parsing fails.
	ErrParsingFailed = errors.New("graphloom: parsing failed")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("graphloom: embedding generation failed")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("graphloom: store is closed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("graphloom: invalid configuration")
)
