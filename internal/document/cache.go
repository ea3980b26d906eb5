package document

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// LoadJSON reads a page cache: a UTF-8 JSON object whose keys are page
// numbers as strings and whose values are page text or error sentinels.
func LoadJSON(path string) (Pages, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read page cache %s: %w", path, err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode page cache %s: %w", path, err)
	}

	pages := make(Pages, len(raw))
	for key, text := range raw {
		id, err := strconv.Atoi(key)
		if err != nil || id < 1 {
			return nil, fmt.Errorf("%w: %q in %s", ErrInvalidPageKey, key, path)
		}
		pages[id] = text
	}
	return pages, nil
}

// SaveJSON writes pages in the cache format read by LoadJSON. The write goes
// through a temporary file so an interrupted save never leaves a truncated cache.
func SaveJSON(path string, pages Pages) error {
	raw := make(map[string]string, len(pages))
	for id, text := range pages {
		raw[strconv.Itoa(id)] = text
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode page cache: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache directory %s: %w", dir, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write page cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit page cache: %w", err)
	}
	return nil
}
