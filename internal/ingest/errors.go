package ingest

import (
	"errors"
	"fmt"
)

var ErrEmptyGeneration = errors.New("no rows to ingest: empty generation rejected")

// BackupError reports a failed archive of the outgoing generation. It is
// logged and never returned from IngestGeneration.
type BackupError struct {
	Table string
	Err   error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("failed to back up %s: %v", e.Table, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }

// ClearError reports a failed clear. The previous generation is intact.
type ClearError struct {
	Table string
	Err   error
}

func (e *ClearError) Error() string {
	return fmt.Sprintf("failed to clear existing data: %v", e.Err)
}

func (e *ClearError) Unwrap() error { return e.Err }

// InsertError reports a failed create or insert of the new generation.
type InsertError struct {
	Table string
	Err   error
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("failed to insert data into %s: %v", e.Table, e.Err)
}

func (e *InsertError) Unwrap() error { return e.Err }
