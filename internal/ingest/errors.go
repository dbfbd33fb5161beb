package ingest

import "errors"

// Domain errors for report ingestion.
var (
	// ErrShortManufacturerData is returned for manufacturer data without a
	// company id.
	ErrShortManufacturerData = errors.New("ingest: manufacturer data shorter than 2 bytes")

	// ErrInvalidScanEvent is returned for scan events that cannot be parsed.
	ErrInvalidScanEvent = errors.New("ingest: invalid scan event")

	// ErrInvalidUpload is returned for GSM bodies that cannot be decoded.
	ErrInvalidUpload = errors.New("ingest: invalid upload body")
)
