package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// sidecarStore persists the id index as a pretty-printed JSON object with
// sorted keys, stored next to the document it indexes.
type sidecarStore struct {
	path   string
	logger *slog.Logger
}

var _ IndexStore = (*sidecarStore)(nil)

// NewSidecarStore returns an IndexStore backed by the JSON sidecar file at
// path.
func NewSidecarStore(path string, logger *slog.Logger) IndexStore {
	return &sidecarStore{path: path, logger: logger}
}

func (s *sidecarStore) Load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	entries := make(map[string]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return entries, nil
}

func (s *sidecarStore) Save(entries map[string]string) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (s *sidecarStore) Close() error {
	return nil
}
