package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Stage is one of the three sequential locations a file passes through.
// The value doubles as the directory (or key segment) name.
type Stage string

const (
	StageUpload     Stage = "upload"
	StageProcessing Stage = "processing"
	StageProcessed  Stage = "processed"
)

// Stages lists every stage in lifecycle order.
var Stages = []Stage{StageUpload, StageProcessing, StageProcessed}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageUpload, StageProcessing, StageProcessed:
		return true
	}
	return false
}

// Location identifies a staged file independent of the stage it currently occupies.
// DocID is the sole filename component; Ext is the original extension including the dot.
type Location struct {
	Category string `json:"category"`
	Entity   string `json:"entity"`
	DocID    string `json:"doc_id"`
	Ext      string `json:"ext"`
}

// NewLocation builds a Location, taking the extension from the original filename.
func NewLocation(category, entity, docID, filename string) Location {
	return Location{
		Category: category,
		Entity:   entity,
		DocID:    docID,
		Ext:      strings.ToLower(filepath.Ext(filename)),
	}
}

// Filename returns the stored file name: {doc_id}{ext}.
func (l Location) Filename() string {
	return l.DocID + l.Ext
}

// Key returns the backend-relative key for the file at the given stage:
// {category}/{entity}/{stage}/{doc_id}{ext}.
func (l Location) Key(stage Stage) string {
	return path.Join(stageDir(l.Category, l.Entity, stage), l.Filename())
}

func (l Location) validate() error {
	if err := validateSegments(l.Category, l.Entity, l.DocID); err != nil {
		return err
	}
	if l.Ext != "" {
		if !strings.HasPrefix(l.Ext, ".") || strings.ContainsAny(l.Ext[1:], `./\`) {
			return fmt.Errorf("%w: extension %q", ErrInvalidKey, l.Ext)
		}
	}
	return nil
}

func stageDir(category, entity string, stage Stage) string {
	return path.Join(category, entity, string(stage))
}

func validateSegments(segments ...string) error {
	for _, s := range segments {
		if s == "" {
			return ErrEmptyKey
		}
		if s == "." || strings.Contains(s, "..") || strings.ContainsAny(s, `/\`) {
			return fmt.Errorf("%w: %q", ErrInvalidKey, s)
		}
	}
	return nil
}

// FileInfo describes one file found at a stage.
type FileInfo struct {
	Name     string    `json:"filename"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// StageCounts reports the number of files per stage for one (category, entity).
type StageCounts struct {
	Category   string `json:"category"`
	Entity     string `json:"entity"`
	Upload     int    `json:"upload"`
	Processing int    `json:"processing"`
	Processed  int    `json:"processed"`
}

// Probe is the result of a connectivity check against the active backend.
type Probe struct {
	Backend        Kind   `json:"backend"`
	Reachable      bool   `json:"reachable"`
	PathAccessible bool   `json:"path_accessible"`
	Error          string `json:"error,omitempty"`
}

// OK reports whether the backend is reachable and its base path usable.
func (p Probe) OK() bool {
	return p.Reachable && p.PathAccessible
}
