// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePath rejects paths that are unsafe to hand to the filesystem:
// empty or blank strings, embedded NUL bytes, and control characters other
// than tab and newline. Returns the cleaned path.
func ValidatePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for _, r := range path {
		if r == 0 {
			return "", fmt.Errorf("%w: null byte in path", ErrInvalidPath)
		}
		if r < 0x20 && r != '\t' && r != '\n' {
			return "", fmt.Errorf("%w: control character in path", ErrInvalidPath)
		}
	}
	return filepath.Clean(path), nil
}

// NewBackend returns the standard backend: paths with the archive suffix
// go through the sealed archive container, everything else is a plain
// file. Paths are validated before any filesystem access.
func NewBackend(logger *slog.Logger) Backend {
	return &dispatchBackend{
		plain:   fileBackend{},
		archive: archiveBackend{logger: logger},
	}
}

type dispatchBackend struct {
	plain   fileBackend
	archive archiveBackend
}

var _ Backend = (*dispatchBackend)(nil)

func (b *dispatchBackend) Load(path, password string) ([]byte, error) {
	path, err := ValidatePath(path)
	if err != nil {
		return nil, err
	}
	if IsArchive(path) {
		return b.archive.Load(path, password)
	}
	return b.plain.Load(path)
}

func (b *dispatchBackend) Save(path string, data []byte, password string) error {
	path, err := ValidatePath(path)
	if err != nil {
		return err
	}
	if IsArchive(path) {
		return b.archive.Save(path, data, password)
	}
	return b.plain.Save(path, data)
}

// fileBackend reads and writes documents as ordinary files. Errors other
// than a missing file are folded into ErrStorage; a missing file keeps its
// os error so callers can start a fresh document.
type fileBackend struct{}

func (fileBackend) Load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return data, nil
}

func (fileBackend) Save(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}
