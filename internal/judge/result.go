package judge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteResults serializes the aggregate to path. The write goes through a
// temp file in the same directory plus rename, so a crash mid-write never
// leaves a truncated artifact behind.
func WriteResults(path string, rs *ResultSet) error {
	data, err := json.MarshalIndent(rs, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".results-*.json")
	if err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
