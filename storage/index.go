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
	"log/slog"
	"slices"

	"github.com/poiesic/manifest/core"
	"github.com/poiesic/manifest/query"
)

// RepairMode selects how VerifyAndRepair responds to a corrupted index.
// The values double as config strings.
type RepairMode string

const (
	// RepairSilent rebuilds a corrupted index without any logging.
	RepairSilent RepairMode = "silent"

	// RepairWarnAndProceed logs a warning, then rebuilds.
	RepairWarnAndProceed RepairMode = "warn_and_proceed"

	// RepairWarnAndAsk consults Confirm before rebuilding, unless
	// AutoRebuild short-circuits the question. Unknown modes fall back
	// here.
	RepairWarnAndAsk RepairMode = "warn_and_ask"
)

// RepairOptions is the corruption policy for VerifyAndRepair.
type RepairOptions struct {
	Mode        RepairMode
	AutoRebuild bool

	// Confirm is asked in RepairWarnAndAsk mode when AutoRebuild is off.
	// A nil Confirm counts as declining.
	Confirm func(reason string) bool
}

// IDIndex maps node ids to structural paths so a bare id can stand in for
// a full query. The in-memory mapping tracks a dirty flag; nothing is
// persisted until Flush.
type IDIndex struct {
	store   IndexStore
	logger  *slog.Logger
	entries map[string]string
	dirty   bool
}

// NewIDIndex returns an empty index persisted through store.
func NewIDIndex(store IndexStore, logger *slog.Logger) *IDIndex {
	return &IDIndex{
		store:   store,
		logger:  logger,
		entries: make(map[string]string),
	}
}

// Load pulls the persisted mapping into memory. Failures degrade to an
// empty index with a warning; a rebuild can always recover the mapping.
func (x *IDIndex) Load() {
	entries, err := x.store.Load()
	if err != nil {
		x.logger.Warn("failed to load id index, starting empty", "error", err)
		x.entries = make(map[string]string)
		x.dirty = false
		return
	}
	if entries == nil {
		entries = make(map[string]string)
	}
	x.entries = entries
	x.dirty = false
}

// Get returns the stored path for id.
func (x *IDIndex) Get(id string) (string, bool) {
	path, ok := x.entries[id]
	return path, ok
}

// Exists reports whether id is indexed.
func (x *IDIndex) Exists(id string) bool {
	_, ok := x.entries[id]
	return ok
}

// Add records a mapping and marks the index dirty.
func (x *IDIndex) Add(id, path string) {
	x.entries[id] = path
	x.dirty = true
}

// Remove drops a mapping. The index is marked dirty only when the id was
// present.
func (x *IDIndex) Remove(id string) {
	if _, ok := x.entries[id]; ok {
		delete(x.entries, id)
		x.dirty = true
	}
}

// AllIDs returns every indexed id in sorted order.
func (x *IDIndex) AllIDs() []string {
	ids := make([]string, 0, len(x.entries))
	for id := range x.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of indexed ids.
func (x *IDIndex) Len() int {
	return len(x.entries)
}

// Dirty reports whether the in-memory mapping has diverged from the store.
func (x *IDIndex) Dirty() bool {
	return x.dirty
}

// Rebuild replaces the mapping with one entry per identified node
// reachable from the root. The index is marked dirty but not flushed.
func (x *IDIndex) Rebuild(t *core.Tree) {
	entries := make(map[string]string)
	t.Walk(t.Root, func(id core.NodeID) bool {
		if v := t.Node(id).ID(); v != "" {
			entries[v] = query.BuildPath(t, id)
		}
		return true
	})
	x.entries = entries
	x.dirty = true
	x.logger.Info("rebuilt id index", "ids", len(entries))
}

// VerifyAndRepair checks every entry against the tree and applies the
// repair policy when any entry fails to resolve back to its id. Returns
// false only when repair was declined; every path that rebuilds also
// flushes immediately.
func (x *IDIndex) VerifyAndRepair(t *core.Tree, opts RepairOptions) (bool, error) {
	if len(x.entries) == 0 {
		return true, nil
	}
	if x.verify(t) {
		return true, nil
	}

	rebuild := func() (bool, error) {
		x.Rebuild(t)
		return true, x.Flush()
	}

	switch opts.Mode {
	case RepairSilent:
		return rebuild()
	case RepairWarnAndProceed:
		x.logger.Warn("id index corrupted, rebuilding")
		return rebuild()
	default:
		x.logger.Warn("id index corrupted")
		if opts.AutoRebuild {
			x.logger.Info("auto-rebuild enabled, rebuilding")
			return rebuild()
		}
		if opts.Confirm != nil && opts.Confirm("id index is corrupted") {
			return rebuild()
		}
		x.logger.Warn("continuing with corrupted id index")
		return false, nil
	}
}

// verify reports whether every entry resolves to a node whose id matches
// the key. One bad entry fails the whole index.
func (x *IDIndex) verify(t *core.Tree) bool {
	for id, path := range x.entries {
		ids, err := query.Resolve(t, path)
		if err != nil || len(ids) == 0 || t.Node(ids[0]).ID() != id {
			return false
		}
	}
	return true
}

// Flush persists the mapping when dirty. The dirty flag survives a failed
// save.
func (x *IDIndex) Flush() error {
	if !x.dirty {
		return nil
	}
	if err := x.store.Save(x.entries); err != nil {
		return err
	}
	x.dirty = false
	return nil
}

// Close releases the underlying store.
func (x *IDIndex) Close() error {
	return x.store.Close()
}
