package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"battlescribe/internal/battle"
)

// WriteRecordJSON writes rec as indented JSON to dir/<runID>.json and
// returns the file path. The file is written to a temp name first and
// renamed into place.
func WriteRecordJSON(dir, runID string, rec *battle.Record) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create record directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	path := filepath.Join(dir, runID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("failed to write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write record: %w", err)
	}
	return path, nil
}

// ReadRecordJSON loads a record written by WriteRecordJSON.
func ReadRecordJSON(path string) (*battle.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	var rec battle.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record %s: %w", path, err)
	}
	return &rec, nil
}
