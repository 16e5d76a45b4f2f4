package common

import (
	"path"
	"time"
)

// Target is a remote file to fetch and its destination, relative to the download root
type Target struct {
	Dataset Dataset   `json:"dataset"`
	URL     string    `json:"url"`
	Path    string    `json:"path"`
	Date    time.Time `json:"date"`
}

// Filename of the target, unique in a batch
func (t Target) Filename() string {
	return path.Base(t.Path)
}

// Result is the event published for each target of a batch
type Result struct {
	RunID   string  `json:"run_id"`
	Dataset Dataset `json:"dataset"`
	URL     string  `json:"url"`
	File    string  `json:"file"`
	Status  Status  `json:"status"`
	Size    int64   `json:"size"`
	Message string  `json:"message"`
}
