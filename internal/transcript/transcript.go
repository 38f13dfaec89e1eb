package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/petrel-evals/petrel/internal/models"
)

// SchemaVersion is stamped into every sealed transcript so readers can
// detect files written by incompatible builds.
const SchemaVersion = 1

// Transcript is the sealed, immutable record of one rollout. The system
// prompt installed on the target is surfaced as a top-level field so
// consumers never have to dig it out of the event log.
type Transcript struct {
	SchemaVersion      int                  `json:"schema_version"`
	ID                 string               `json:"id"`
	SpecName           string               `json:"spec_name"`
	Variation          string               `json:"variation"`
	Repetition         int                  `json:"repetition"`
	Modality           models.Modality      `json:"modality"`
	Evaluator          models.RoleBinding   `json:"evaluator"`
	Target             models.RoleBinding   `json:"target"`
	TargetSystemPrompt string               `json:"target_system_prompt"`
	Status             models.RolloutStatus `json:"status"`
	StartedAt          time.Time            `json:"started_at"`
	SealedAt           time.Time            `json:"sealed_at"`
	Events             []Event              `json:"events"`
}

// Render projects one view's message history out of the sealed log.
func (t *Transcript) Render(view View) []models.Message {
	return renderEvents(t.Events, view)
}

// sanitize replaces characters that are unsafe in filenames.
var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func sanitizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = unsafeChars.ReplaceAllString(s, "")
	if s == "" {
		s = "unnamed"
	}
	return s
}

// Filename returns the on-disk name for a rollout's transcript.
func Filename(specName, variation string, repetition int, ts time.Time) string {
	return fmt.Sprintf("%s-%s-r%d-%s.json",
		sanitizeName(specName), sanitizeName(variation), repetition, ts.Format("20060102-150405"))
}

// Write serializes t into dir and returns the written path. With compress
// set, the file is gzipped and named with a .json.gz suffix.
func Write(dir string, t *Transcript, compress bool) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}

	name := Filename(t.SpecName, t.Variation, t.Repetition, t.StartedAt)
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}

	if compress {
		name += ".gz"
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			return "", fmt.Errorf("write transcript: %w", err)
		}
		zw := gzip.NewWriter(f)
		if _, err := zw.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("write transcript: %w", err)
		}
		if err := zw.Close(); err != nil {
			f.Close()
			return "", fmt.Errorf("write transcript: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("write transcript: %w", err)
		}
		return path, nil
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

// Load reads a transcript back from disk, transparently handling gzipped
// files, and rejects schema versions this build does not understand.
func Load(path string) (*Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open transcript: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	if t.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("transcript %s has schema version %d, want %d", path, t.SchemaVersion, SchemaVersion)
	}
	return &t, nil
}
