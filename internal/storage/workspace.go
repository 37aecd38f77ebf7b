// Package storage lays out the per-job artifact directories. Every file a
// job writes lives in its own workspace and carries the job id in its name,
// so concurrent jobs never touch each other's artifacts.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store is the root of all job workspaces.
type Store struct {
	base string
}

// NewStore creates base if needed.
func NewStore(base string) (*Store, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs dir: %w", err)
	}
	return &Store{base: base}, nil
}

// Base returns the root directory.
func (s *Store) Base() string { return s.base }

// Workspace returns the workspace of jobID, creating its directory.
func (s *Store) Workspace(jobID string) (*Workspace, error) {
	ws, err := s.Open(jobID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(ws.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return ws, nil
}

// Open returns the workspace of jobID without touching the disk.
func (s *Store) Open(jobID string) (*Workspace, error) {
	if err := ValidateJobID(jobID); err != nil {
		return nil, err
	}
	return &Workspace{JobID: jobID, Dir: filepath.Join(s.base, jobID)}, nil
}

// Remove deletes the workspace of jobID and everything in it.
func (s *Store) Remove(jobID string) error {
	ws, err := s.Open(jobID)
	if err != nil {
		return err
	}
	return os.RemoveAll(ws.Dir)
}

// Workspace names the artifacts of one job.
type Workspace struct {
	JobID string
	Dir   string
}

// AudioBase is the extension-less path for the narration of key ("intro" or
// a slide id). The audio stage picks the extension.
func (w *Workspace) AudioBase(key string) string {
	return filepath.Join(w.Dir, fmt.Sprintf("%s_audio_%s", w.JobID, key))
}

// ImagePath is the rendered slide image for key.
func (w *Workspace) ImagePath(key string) string {
	return filepath.Join(w.Dir, fmt.Sprintf("%s_slide_%s.png", w.JobID, key))
}

// VideoPath is the final video.
func (w *Workspace) VideoPath() string {
	return filepath.Join(w.Dir, fmt.Sprintf("presentation_%s.mp4", w.JobID))
}

// SubtitlePath is the subtitle track; an empty lang is the source track.
func (w *Workspace) SubtitlePath(lang string) string {
	if lang == "" {
		return filepath.Join(w.Dir, fmt.Sprintf("subtitles_%s.srt", w.JobID))
	}
	return filepath.Join(w.Dir, fmt.Sprintf("subtitles_%s_%s.srt", w.JobID, lang))
}

// SubmissionPath holds the submitted deck as received.
func (w *Workspace) SubmissionPath() string {
	return filepath.Join(w.Dir, fmt.Sprintf("%s_submission.json", w.JobID))
}
