package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Trace is the recording.json sidecar written next to the captured video.
// It ties the artifacts back to the business folder so downstream tooling
// can pair them without guessing.
type Trace struct {
	BusinessFolder string `json:"business_folder"`
	IndexHTML      string `json:"index_html"`
	Recording      string `json:"recording"`
}

// WriteTrace writes recording.json into dir for folder and returns the
// trace. Paths in the sidecar are relative to the folder.
func WriteTrace(dir, folder string) (*Trace, error) {
	trace := &Trace{
		BusinessFolder: folder,
		IndexHTML:      "index.html",
		Recording:      "recording.mp4",
	}
	data, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("record: encode trace: %w", err)
	}
	data = append(data, '\n')
	path := filepath.Join(dir, "recording.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("record: write trace: %w", err)
	}
	return trace, nil
}

// ReadTrace loads a recording.json sidecar.
func ReadTrace(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("record: read trace: %w", err)
	}
	var trace Trace
	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, fmt.Errorf("record: decode trace %s: %w", path, err)
	}
	return &trace, nil
}
