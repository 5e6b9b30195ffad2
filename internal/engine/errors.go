package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidProbability marks a predictor output outside (0, 1).
	ErrInvalidProbability = errors.New("engine: predicted probability must be in (0, 1)")
	// ErrArchiveCorrupt marks an archive that cannot be trusted for deduplication.
	ErrArchiveCorrupt = errors.New("engine: recommendation archive corrupt")
	// ErrNoPredictor is returned when the engine is built without a predictor.
	ErrNoPredictor = errors.New("engine: probability predictor not configured")
)

// ArchiveCorruptionError describes the first archive row that failed validation.
type ArchiveCorruptionError struct {
	Row    int
	ID     string
	Reason string
}

func (e *ArchiveCorruptionError) Error() string {
	return fmt.Sprintf("engine: recommendation archive row %d (id %q): %s", e.Row, e.ID, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrArchiveCorrupt).
func (e *ArchiveCorruptionError) Unwrap() error {
	return ErrArchiveCorrupt
}
