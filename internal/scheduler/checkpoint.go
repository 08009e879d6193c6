package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Checkpoint tracks resumability state for one download: the merger's own
// flushed-bytes position per stream, rather than a per-segment-index
// side-table, since the merger is the single source of truth for how much
// of each stream's output is already durably written.
type Checkpoint struct {
	URL       string           `json:"url"`
	OutputDir string           `json:"output_dir"`
	Streams   map[string]int64 `json:"streams"` // stream ID -> flushed bytes
	CreatedAt time.Time        `json:"created_at"`
}

// CheckpointPath returns the checkpoint file path for an output file.
func CheckpointPath(outputPath string) string {
	return outputPath + ".veld-checkpoint.json"
}

// LoadCheckpoint loads a checkpoint from disk if present.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scheduler: reading checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("scheduler: decoding checkpoint: %w", err)
	}
	return &cp, nil
}

// NewCheckpoint creates a fresh checkpoint for a download.
func NewCheckpoint(url, outputDir string) *Checkpoint {
	return &Checkpoint{
		URL:       url,
		OutputDir: outputDir,
		Streams:   make(map[string]int64),
		CreatedAt: time.Now(),
	}
}

// Matches reports whether this checkpoint belongs to url, so a resume
// attempt against a different manifest URL is rejected rather than
// silently reused.
func (c *Checkpoint) Matches(url string) bool {
	return c.URL == url
}

// UpdateStream records streamID's current flushed-bytes position, read
// directly off the stream's live merger.
func (c *Checkpoint) UpdateStream(streamID string, flushedBytes int64) {
	c.Streams[streamID] = flushedBytes
}

// ResumeOffset returns how many bytes of streamID were already flushed in a
// prior run, or 0 if the stream has no recorded progress.
func (c *Checkpoint) ResumeOffset(streamID string) int64 {
	return c.Streams[streamID]
}

// Save writes the checkpoint to disk atomically via a temp-file rename.
func (c *Checkpoint) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("scheduler: encoding checkpoint: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("scheduler: writing checkpoint: %w", err)
	}
	return os.Rename(tmp, path)
}

// Delete removes the checkpoint file, called once a download completes
// successfully and resumability data is no longer needed.
func (c *Checkpoint) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
