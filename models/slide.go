package models

import "time"

// StagedFile is an upload written to the staging directory. Path is server
// generated; OriginalName is whatever the client declared and is never used
// to build a path.
type StagedFile struct {
	OriginalName string `json:"original_name"`
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	Extension    string `json:"extension"` // lower-case, no dot
}

// ConversionJob is the record of one converter run. It lives for a single
// request and is never persisted as-is.
type ConversionJob struct {
	InputPath string
	OutputDir string
	OutputID  string
	ExitCode  int
	Stdout    string
	Stderr    string
	StartedAt time.Time
	Duration  time.Duration
}

// PublishedSlide is a manifest in the public output directory.
type PublishedSlide struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// UploadResult is returned to the caller once a slide has been published.
type UploadResult struct {
	OutputID     string `json:"output_id"`
	Path         string `json:"path"` // public path, e.g. /slides/slide_1.dzi
	URL          string `json:"url"`  // fully qualified; filled in by the HTTP layer
	OriginalName string `json:"filename"`
	Size         int64  `json:"size"`
}
