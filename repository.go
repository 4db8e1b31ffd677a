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


package manifest

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/poiesic/manifest/config"
	"github.com/poiesic/manifest/core"
	"github.com/poiesic/manifest/query"
	"github.com/poiesic/manifest/storage"
	"github.com/poiesic/manifest/storage/badger"
)

// Repository owns one loaded document and the session state around it. A
// nil tree means nothing is loaded; every operation checks that before
// touching anything else. Mutations run under a snapshot so a failed
// operation leaves the tree exactly as it found it.
type Repository struct {
	tree     *core.Tree
	path     string
	password string
	modified bool

	index   *storage.IDIndex
	backend storage.Backend
	cfg     *config.Config

	logger       *slog.Logger
	cfgOverride  *config.Config
	confirm      func(reason string) bool
	autoIndex    bool
	rebuildIndex bool
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
	}
}

// WithConfig pins a fixed configuration for every document, bypassing the
// layered lookup Load performs per file.
func WithConfig(cfg *config.Config) Option {
	return func(r *Repository) {
		r.cfgOverride = cfg
		if cfg != nil {
			r.cfg = cfg
		}
	}
}

// WithBackend replaces the default storage backend.
func WithBackend(b storage.Backend) Option {
	return func(r *Repository) {
		r.backend = b
	}
}

// WithConfirm installs the callback consulted before rebuilding a
// corrupted id index in warn_and_ask mode. Default is to decline.
func WithConfirm(fn func(reason string) bool) Option {
	return func(r *Repository) {
		r.confirm = fn
	}
}

// WithAutoIndex populates the id index on load when it is empty.
func WithAutoIndex(enabled bool) Option {
	return func(r *Repository) {
		r.autoIndex = enabled
	}
}

// WithRebuildIndex forces a full index rebuild on every load.
func WithRebuildIndex(enabled bool) Option {
	return func(r *Repository) {
		r.rebuildIndex = enabled
	}
}

// New creates a repository with nothing loaded.
func New(opts ...Option) *Repository {
	r := &Repository{
		logger: slog.Default(),
		cfg:    config.Defaults(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.backend == nil {
		r.backend = storage.NewBackend(r.logger)
	}
	return r
}

// Load reads the document at path into the session, replacing whatever was
// loaded before. A missing file becomes a fresh single-root document marked
// modified. The id index is opened, verified, and repaired according to the
// effective configuration. A password failure on an encrypted file is
// returned as storage.ErrPasswordRequired so callers can re-prompt.
func (r *Repository) Load(path, password string) (core.Result, error) {
	target, err := storage.ValidatePath(storage.NormalizePath(path))
	if err != nil {
		return core.Failure(err.Error()), nil
	}

	if _, err := os.Stat(target); err != nil {
		if !os.IsNotExist(err) {
			return core.Failure(err.Error()), nil
		}
		r.replaceSession(core.NewTree(), target, password, true)
		if r.index != nil && r.autoIndex {
			r.index.Rebuild(r.tree)
			if err := r.index.Flush(); err != nil {
				r.logger.Warn("failed to write id index", "error", err)
			}
		}
		return core.Success("Created new: " + target), nil
	}

	raw, err := r.backend.Load(target, password)
	if err != nil {
		if errors.Is(err, storage.ErrPasswordRequired) {
			return core.Failure(err.Error()), err
		}
		return core.Failure(err.Error()), nil
	}
	tree, err := core.DecodeXML(raw)
	if err != nil {
		return core.Failure(err.Error()), nil
	}
	r.replaceSession(tree, target, password, false)

	if r.index != nil {
		r.index.Load()
		switch {
		case r.rebuildIndex:
			r.logger.Info("force rebuilding id index")
			r.index.Rebuild(r.tree)
			if err := r.index.Flush(); err != nil {
				r.logger.Warn("failed to write id index", "error", err)
			}
		case r.index.Len() == 0 && r.autoIndex:
			r.logger.Info("creating id index")
			r.index.Rebuild(r.tree)
			if err := r.index.Flush(); err != nil {
				r.logger.Warn("failed to write id index", "error", err)
			}
		case r.index.Len() > 0:
			if _, err := r.index.VerifyAndRepair(r.tree, r.repairOptions()); err != nil {
				r.logger.Warn("id index repair failed", "error", err)
			}
		}
	}
	return core.Success("Loaded " + target), nil
}

// replaceSession swaps in a new document and derives its config and index.
// The previous index store is closed first so two stores never hold the
// same backing file.
func (r *Repository) replaceSession(tree *core.Tree, path, password string, modified bool) {
	if r.index != nil {
		if err := r.index.Close(); err != nil {
			r.logger.Warn("failed to close previous id index", "error", err)
		}
	}
	r.tree = tree
	r.path = path
	r.password = password
	r.modified = modified
	r.cfg = r.cfgOverride
	if r.cfg == nil {
		r.cfg = config.LoadLayered(path, r.logger)
	}
	r.index = r.openIndex(path)
}

func (r *Repository) openIndex(docPath string) *storage.IDIndex {
	if !r.cfg.GetBool("sidecar.enabled", true) {
		return nil
	}
	var store storage.IndexStore
	switch r.cfg.GetString("sidecar.backend", "file") {
	case "badger":
		s, err := badger.OpenStore(storage.IndexDBPath(docPath), false, r.logger)
		if err != nil {
			r.logger.Warn("failed to open badger index store, continuing without index", "error", err)
			return nil
		}
		store = s
	default:
		store = storage.NewSidecarStore(storage.SidecarPath(docPath), r.logger)
	}
	return storage.NewIDIndex(store, r.logger)
}

func (r *Repository) repairOptions() storage.RepairOptions {
	return storage.RepairOptions{
		Mode:        storage.RepairMode(r.cfg.GetString("sidecar.corruption_handling", string(storage.RepairWarnAndAsk))),
		AutoRebuild: r.cfg.GetBool("sidecar.auto_rebuild", false),
		Confirm:     r.confirm,
	}
}

// Save writes the document to target, or to the session path when target
// is empty. The session path and password are updated on success, so a
// save-as becomes the new session file.
func (r *Repository) Save(target, password string) (core.Result, error) {
	if r.tree == nil {
		return core.Failure("No file loaded."), nil
	}
	target = strings.Trim(target, `"'`)
	if target == "" {
		target = r.path
	}
	if target == "" {
		return core.Failure("No file specified."), nil
	}
	pwd := password
	if pwd == "" {
		pwd = r.password
	}

	if err := r.backend.Save(target, core.EncodeXML(r.tree), pwd); err != nil {
		if errors.Is(err, storage.ErrPasswordRequired) {
			return core.Failure(err.Error()), err
		}
		return core.Failure(err.Error()), nil
	}
	r.path, r.password, r.modified = target, pwd, false

	if r.index != nil {
		if err := r.index.Flush(); err != nil {
			return core.Failure("Saved document but failed to write id index: " + err.Error()), nil
		}
	}
	return core.Success("Saved to " + target), nil
}

// AddNode creates one child per node matched by parentSelector. With
// autoID and no explicit id, a single generated id is shared by every
// created sibling, so a broadcast add yields same-id copies.
func (r *Repository) AddNode(parentSelector string, spec core.NodeSpec, autoID bool) (core.Result, error) {
	if r.tree == nil {
		return core.Failure("No file loaded."), nil
	}
	return r.withRollback(func() (core.Result, error) {
		if err := core.ValidateTag(spec.Tag); err != nil {
			return core.Failure(err.Error()), nil
		}
		attrs := spec.XMLAttrs()
		if spec.ID != "" {
			attrs["id"] = spec.ID
		}
		for name, value := range attrs {
			if err := core.ValidateAttrName(name); err != nil {
				return core.Failure(err.Error()), nil
			}
			attrs[name] = core.Sanitize(value)
		}

		parents, err := query.Resolve(r.tree, parentSelector)
		if err != nil {
			return core.Failure(queryError(parentSelector, err)), nil
		}
		if len(parents) == 0 {
			return core.Failure("Parent not found: " + parentSelector), nil
		}

		if autoID && attrs["id"] == "" {
			attrs["id"] = core.GenerateID(r.tree.IDs())
		}

		for _, parent := range parents {
			id := r.tree.AppendChild(parent, core.Node{Tag: spec.Tag, Attrs: maps.Clone(attrs)})
			if spec.Text != nil && *spec.Text != "" {
				r.tree.Node(id).Text = core.Sanitize(*spec.Text)
			}
			if r.index != nil && attrs["id"] != "" {
				r.index.Add(attrs["id"], query.BuildPath(r.tree, id))
			}
		}
		r.modified = true

		data := map[string]any{"count": len(parents)}
		if attrs["id"] != "" {
			data["id"] = attrs["id"]
		}
		return core.SuccessData(fmt.Sprintf("Added node to %d location(s).", len(parents)), data), nil
	})
}

// EditNode updates or deletes every node matched by selector. Deleting
// leaves index entries stale; the verify pass on the next load catches
// them. The tag of an existing node is never changed.
func (r *Repository) EditNode(selector string, spec *core.NodeSpec, del bool) (core.Result, error) {
	if r.tree == nil {
		return core.Failure("No file loaded."), nil
	}
	return r.withRollback(func() (core.Result, error) {
		nodes, err := query.Resolve(r.tree, selector)
		if err != nil {
			return core.Failure(queryError(selector, err)), nil
		}
		if len(nodes) == 0 {
			return core.Failure("No match found."), nil
		}

		if del {
			for _, n := range nodes {
				if err := r.tree.Detach(n); err != nil {
					return core.Failure(err.Error()), nil
				}
			}
			r.modified = true
			return core.SuccessData(fmt.Sprintf("Deleted %d nodes.", len(nodes)),
				map[string]any{"count": len(nodes)}), nil
		}

		if spec == nil {
			return core.Failure("Nothing to update."), nil
		}
		attrs := spec.XMLAttrs()
		if spec.ID != "" {
			attrs["id"] = spec.ID
		}
		for name, value := range attrs {
			if err := core.ValidateAttrName(name); err != nil {
				return core.Failure(err.Error()), nil
			}
			attrs[name] = core.Sanitize(value)
		}
		for _, n := range nodes {
			if spec.Text != nil {
				r.tree.Node(n).Text = core.Sanitize(*spec.Text)
			}
			for name, value := range attrs {
				r.tree.SetAttr(n, name, value)
			}
		}
		r.modified = true
		return core.SuccessData(fmt.Sprintf("Updated %d nodes.", len(nodes)),
			map[string]any{"count": len(nodes)}), nil
	})
}

// MergeFrom grafts every top-level node of the document at path onto the
// session root. The source file is read through the backend but never
// becomes session state. Duplicate ids between the two documents are left
// for the next index rebuild to sort out.
func (r *Repository) MergeFrom(path, password string) (core.Result, error) {
	if r.tree == nil {
		return core.Failure("No active manifest."), nil
	}
	raw, err := r.backend.Load(path, password)
	if err != nil {
		if errors.Is(err, storage.ErrPasswordRequired) {
			return core.Failure(err.Error()), err
		}
		return core.Failure("Merge error: " + err.Error()), nil
	}
	src, err := core.DecodeXML(raw)
	if err != nil {
		return core.Failure("Merge error: " + err.Error()), nil
	}

	return r.withRollback(func() (core.Result, error) {
		children := src.Node(src.Root).Children
		for _, child := range children {
			r.tree.Graft(r.tree.Root, src, child)
		}
		r.modified = true
		return core.SuccessData(fmt.Sprintf("Merged %d items.", len(children)),
			map[string]any{"count": len(children)}), nil
	})
}

// WrapContent moves every top-level node under a single new container
// element, so a flat document gains one level of structure.
func (r *Repository) WrapContent(newTag string) (core.Result, error) {
	if r.tree == nil {
		return core.Failure("No file loaded."), nil
	}
	return r.withRollback(func() (core.Result, error) {
		if err := core.ValidateTag(newTag); err != nil {
			return core.Failure(err.Error()), nil
		}
		children := slices.Clone(r.tree.Node(r.tree.Root).Children)
		if len(children) == 0 {
			return core.Failure("Manifest is empty; nothing to wrap."), nil
		}
		wrapper := r.tree.AppendChild(r.tree.Root, core.Node{Tag: newTag})
		for _, child := range children {
			if err := r.tree.Move(child, wrapper); err != nil {
				return core.Failure(err.Error()), nil
			}
		}
		r.modified = true
		return core.SuccessData(fmt.Sprintf("Wrapped %d items under <%s>.", len(children), newTag),
			map[string]any{"count": len(children)}), nil
	})
}

// Search resolves q against the loaded tree. It is lenient: no document or
// an unparsable query yields an empty slice, with the parse failure logged
// at debug only.
func (r *Repository) Search(q string) []core.NodeID {
	if r.tree == nil {
		return nil
	}
	ids, err := query.Resolve(r.tree, q)
	if err != nil {
		r.logger.Debug("search query rejected", "query", q, "error", err)
		return nil
	}
	return ids
}

// GenerateID returns a fresh identifier absent from exclude.
func (r *Repository) GenerateID(exclude map[string]struct{}) string {
	return core.GenerateID(exclude)
}

// EnsureIDs assigns a generated id to every node missing one, the root
// included. With overwrite, every node gets a fresh id regardless. The id
// index is not updated here; rebuild afterwards to resync it.
func (r *Repository) EnsureIDs(overwrite bool) (core.Result, error) {
	if r.tree == nil {
		return core.Failure("No file loaded."), nil
	}
	return r.withRollback(func() (core.Result, error) {
		existing := r.tree.IDs()
		count := 0
		r.tree.Walk(r.tree.Root, func(id core.NodeID) bool {
			if r.tree.Node(id).ID() != "" && !overwrite {
				return true
			}
			fresh := core.GenerateID(existing)
			r.tree.SetAttr(id, "id", fresh)
			existing[fresh] = struct{}{}
			count++
			return true
		})
		if count > 0 {
			r.modified = true
		}
		return core.SuccessData(fmt.Sprintf("Added/updated %d ID(s)", count),
			map[string]any{"count": count}), nil
	})
}

// RebuildIndex repopulates the id index from the loaded tree and writes it
// out immediately.
func (r *Repository) RebuildIndex() (core.Result, error) {
	if r.tree == nil {
		return core.Failure("No file loaded."), nil
	}
	if r.index == nil {
		return core.Failure("ID index not enabled."), nil
	}
	r.index.Rebuild(r.tree)
	if err := r.index.Flush(); err != nil {
		return core.Failure("Failed to write id index: " + err.Error()), nil
	}
	return core.SuccessData(fmt.Sprintf("Rebuilt sidecar with %d IDs", r.index.Len()),
		map[string]any{"entries": r.index.Len()}), nil
}

// Backup writes the current in-memory document to target with the session
// password, then copies the sidecar file alongside it. Session path,
// password, and the modified flag are left untouched, so a backup never
// hijacks the session the way a save-as would.
func (r *Repository) Backup(target string) (core.Result, error) {
	if r.tree == nil {
		return core.Failure("No file loaded."), nil
	}
	if r.index != nil && r.index.Dirty() {
		if err := r.index.Flush(); err != nil {
			r.logger.Warn("failed to flush id index before backup", "error", err)
		}
	}
	if err := r.backend.Save(target, core.EncodeXML(r.tree), r.password); err != nil {
		if errors.Is(err, storage.ErrPasswordRequired) {
			return core.Failure(err.Error()), err
		}
		return core.Failure(err.Error()), nil
	}
	r.copySidecar(target)
	return core.Success("Backup saved to " + target), nil
}

// copySidecar duplicates the session sidecar next to a backup target.
// Failures are logged, never returned.
func (r *Repository) copySidecar(target string) {
	if r.index == nil || r.path == "" {
		return
	}
	src := storage.SidecarPath(r.path)
	data, err := os.ReadFile(src)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("failed to read sidecar for backup", "path", src, "error", err)
		}
		return
	}
	dst := storage.SidecarPath(target)
	if err := os.WriteFile(dst, data, 0644); err != nil {
		r.logger.Warn("failed to copy sidecar for backup", "path", dst, "error", err)
	}
}

// Tree exposes the loaded document, nil when nothing is loaded.
func (r *Repository) Tree() *core.Tree {
	return r.tree
}

// Path returns the session file path.
func (r *Repository) Path() string {
	return r.path
}

// Modified reports whether the document has unsaved changes.
func (r *Repository) Modified() bool {
	return r.modified
}

// Index exposes the session id index, nil when disabled.
func (r *Repository) Index() *storage.IDIndex {
	return r.index
}

// Config returns the configuration in effect for the loaded document.
func (r *Repository) Config() *config.Config {
	return r.cfg
}

// Close releases the id index store.
func (r *Repository) Close() error {
	if r.index == nil {
		return nil
	}
	return r.index.Close()
}
