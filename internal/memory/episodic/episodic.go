// Package episodic implements the episodic valence/trust module named in
// spec.md §9's open question: a genuinely separate module that records
// episode signals and computes an effective, age-decayed valence, but is
// not consulted by the Memory Classifier (M) or Recall Filter (F). Left
// unwired per the Open Question decision documented in DESIGN.md.
package episodic

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"
)

// EpisodeSignal is one raw emotional/trust observation attached to a
// conversation turn, grounded on original_source/'s valence.py record
// shape.
type EpisodeSignal struct {
	ConversationID string    `json:"conversation_id"`
	RawValence     float64   `json:"raw_valence"` // [-1, 1]
	RawTrust       float64   `json:"raw_trust"`   // [0, 1]
	RecordedAt     time.Time `json:"recorded_at"`
	Note           string    `json:"note,omitempty"`
}

// HalfLife is the default decay half-life used by ComputeEffectiveValence
// when no override is supplied, grounded on the original's default decay
// constant.
const HalfLife = 72 * time.Hour

// Recorder appends EpisodeSignal records to a JSONL file.
type Recorder struct {
	Path string
}

// NewRecorder constructs a Recorder writing to path.
func NewRecorder(path string) *Recorder {
	return &Recorder{Path: path}
}

// RecordEpisode appends raw to the recorder's JSONL file.
func (r *Recorder) RecordEpisode(raw EpisodeSignal) error {
	f, err := os.OpenFile(r.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening episodic log %q: %w", r.Path, err)
	}
	defer f.Close()

	line, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshaling episode signal: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing episodic log %q: %w", r.Path, err)
	}
	return nil
}

// ComputeEffectiveValence decays raw toward neutral (0) exponentially
// with HalfLife as age grows, matching the original's valence.py decay
// formula. It is exported for a future consumer (none currently calls
// it) per spec.md §9's open question.
func ComputeEffectiveValence(raw float64, age time.Duration) float64 {
	if age <= 0 {
		return raw
	}
	decay := math.Pow(0.5, age.Hours()/HalfLife.Hours())
	return raw * decay
}
