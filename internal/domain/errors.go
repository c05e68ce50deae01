package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ingestion/aggregation pipeline. Callers branch
// with errors.Is; messages carry the specifics.
var (
	ErrMetadataExtraction    = errors.New("metadata extraction failed")
	ErrTransactionExtraction = errors.New("transaction extraction failed")
	ErrValidation            = errors.New("validation failed")
	ErrConstituencyNotFound  = errors.New("constituency not found")
	ErrTransactionSave       = errors.New("transaction save failed")
	ErrMetricsUpdate         = errors.New("metrics update failed")
	ErrDirectoryProcessing   = errors.New("directory processing failed")
	ErrQueueFull             = errors.New("update queue full")
	ErrVersionConflict       = errors.New("constituency row changed concurrently")
)

func MetadataError(filename, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrMetadataExtraction, filename, reason)
}

func ExtractionError(filename string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransactionExtraction, filename, cause)
}

func ValidationError(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}
