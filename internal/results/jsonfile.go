package results

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sugawarayuuta/sonnet"
)

// LoadJSON reads a JSON array of results. A missing or empty file is no results.
func LoadJSON(path string) ([]PerformanceResult, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var existing []PerformanceResult
	if err := sonnet.Unmarshal(data, &existing); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return existing, nil
}

// AppendJSON appends r to the JSON array at path, creating the file if needed.
// The file is replaced atomically so a crash never leaves half an array.
func AppendJSON(path string, r PerformanceResult) error {
	existing, err := LoadJSON(path)
	if err != nil {
		return err
	}
	existing = append(existing, r)

	data, err := sonnet.Marshal(existing)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
