package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/manifest/config"
	"github.com/poiesic/manifest/core"
	"github.com/poiesic/manifest/query"
	"github.com/poiesic/manifest/storage"
)

func newRepo(t *testing.T, opts ...Option) *Repository {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(t.TempDir(), "xdg"))
	r := New(opts...)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// requireOK returns a checker that fails the test on an error or a failed
// Result and hands the Result back for data assertions.
func requireOK(t *testing.T) func(core.Result, error) core.Result {
	return func(res core.Result, err error) core.Result {
		t.Helper()
		require.NoError(t, err)
		require.True(t, res.OK, res.Message)
		return res
	}
}

func strp(s string) *string { return &s }

func TestRepository_LoadCreateNew(t *testing.T) {
	t.Run("missing file becomes fresh document", func(t *testing.T) {
		ok := requireOK(t)
		r := newRepo(t)
		target := filepath.Join(t.TempDir(), "plan.xml")

		res := ok(r.Load(target, ""))
		assert.Equal(t, "Created new: "+target, res.Message)
		assert.Equal(t, target, r.Path())
		assert.True(t, r.Modified())
		require.NotNil(t, r.Tree())
		assert.Equal(t, 1, r.Tree().Count())

		// Nothing is written until the first save.
		_, err := os.Stat(target)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("extension appended when missing", func(t *testing.T) {
		ok := requireOK(t)
		r := newRepo(t)
		ok(r.Load(filepath.Join(t.TempDir(), "notes"), ""))
		assert.True(t, strings.HasSuffix(r.Path(), "notes.xml"))
	})

	t.Run("surrounding quotes stripped", func(t *testing.T) {
		ok := requireOK(t)
		r := newRepo(t)
		target := filepath.Join(t.TempDir(), "plan.xml")
		ok(r.Load(`"`+target+`"`, ""))
		assert.Equal(t, target, r.Path())
	})

	t.Run("invalid path rejected", func(t *testing.T) {
		r := newRepo(t)
		res, err := r.Load("bad\x00name.xml", "")
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Nil(t, r.Tree())
	})
}

func TestRepository_SaveRoundTrip(t *testing.T) {
	ok := requireOK(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "plan.xml")

	r := newRepo(t)
	ok(r.Load(target, ""))
	ok(r.AddNode("/manifest", core.NodeSpec{Tag: "group", ID: "aaaa1111", Topic: "House"}, true))
	ok(r.AddNode("//group[@id='aaaa1111']",
		core.NodeSpec{Tag: "task", ID: "cafe0001", Status: "active", Text: strp("fix the door")}, true))

	res := ok(r.Save("", ""))
	assert.Equal(t, "Saved to "+target, res.Message)
	assert.False(t, r.Modified())

	// The dirty index is flushed with the document.
	sidecar, err := os.ReadFile(storage.SidecarPath(target))
	require.NoError(t, err)
	assert.Contains(t, string(sidecar), "cafe0001")

	other := newRepo(t)
	ok(other.Load(target, ""))
	assert.Equal(t, core.EncodeXML(r.Tree()), core.EncodeXML(other.Tree()))
	assert.True(t, other.Index().Exists("aaaa1111"))
	assert.True(t, other.Index().Exists("cafe0001"))
}

func TestRepository_LoadKeepsSessionOnParseFailure(t *testing.T) {
	ok := requireOK(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "good.xml")
	bad := filepath.Join(dir, "bad.xml")
	require.NoError(t, os.WriteFile(bad, []byte("<manifest><unclosed>"), 0644))

	r := newRepo(t)
	ok(r.Load(good, ""))
	ok(r.AddNode("/manifest", core.NodeSpec{Tag: "task", ID: "aaaa1111"}, true))

	res, err := r.Load(bad, "")
	require.NoError(t, err)
	assert.False(t, res.OK)

	// The old session stays in place.
	assert.Equal(t, good, r.Path())
	assert.Equal(t, 2, r.Tree().Count())
}

func addSeed(t *testing.T) *Repository {
	t.Helper()
	ok := requireOK(t)
	r := newRepo(t)
	ok(r.Load(filepath.Join(t.TempDir(), "plan.xml"), ""))
	ok(r.AddNode("/manifest", core.NodeSpec{Tag: "group", ID: "aaaa1111"}, true))
	ok(r.AddNode("/manifest", core.NodeSpec{Tag: "group", ID: "bbbb2222"}, true))
	return r
}

func TestRepository_AddNode(t *testing.T) {
	t.Run("broadcast add shares one generated id", func(t *testing.T) {
		ok := requireOK(t)
		r := addSeed(t)
		res := ok(r.AddNode("//group", core.NodeSpec{Tag: "task", Topic: "Sweep"}, true))
		assert.Equal(t, "Added node to 2 location(s).", res.Message)
		assert.Equal(t, 2, res.Data["count"])

		tasks := r.Search("//task")
		require.Len(t, tasks, 2)
		first := r.Tree().Node(tasks[0]).ID()
		assert.NotEmpty(t, first)
		assert.Equal(t, first, r.Tree().Node(tasks[1]).ID())
		assert.Equal(t, first, res.Data["id"])
	})

	t.Run("explicit id wins over generation", func(t *testing.T) {
		ok := requireOK(t)
		r := addSeed(t)
		res := ok(r.AddNode("//group[@id='aaaa1111']",
			core.NodeSpec{Tag: "task", ID: "cafe0001"}, true))
		assert.Equal(t, "cafe0001", res.Data["id"])
		require.Len(t, r.Search("//task[@id='cafe0001']"), 1)
	})

	t.Run("auto id disabled", func(t *testing.T) {
		ok := requireOK(t)
		r := addSeed(t)
		res := ok(r.AddNode("//group[@id='aaaa1111']", core.NodeSpec{Tag: "note"}, false))
		_, hasID := res.Data["id"]
		assert.False(t, hasID)
		notes := r.Search("//note")
		require.Len(t, notes, 1)
		assert.Empty(t, r.Tree().Node(notes[0]).ID())
	})

	t.Run("index learns the new node", func(t *testing.T) {
		ok := requireOK(t)
		r := addSeed(t)
		res := ok(r.AddNode("//group[@id='bbbb2222']", core.NodeSpec{Tag: "task"}, true))
		id := res.Data["id"].(string)

		path, found := r.Index().Get(id)
		require.True(t, found)
		nodes, err := query.Resolve(r.Tree(), path)
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.Equal(t, id, r.Tree().Node(nodes[0]).ID())
	})

	t.Run("text and attribute values sanitized", func(t *testing.T) {
		ok := requireOK(t)
		r := addSeed(t)
		ok(r.AddNode("//group[@id='aaaa1111']", core.NodeSpec{
			Tag:   "task",
			ID:    "cafe0002",
			Text:  strp("fix\x07 the door"),
			Attrs: map[string]string{"note": "a\x01b"},
		}, true))
		nodes := r.Search("//task[@id='cafe0002']")
		require.Len(t, nodes, 1)
		n := r.Tree().Node(nodes[0])
		assert.Equal(t, "fix the door", n.Text)
		assert.Equal(t, "ab", n.Attrs["note"])
	})

	t.Run("missing parent", func(t *testing.T) {
		r := addSeed(t)
		res, err := r.AddNode("//nope", core.NodeSpec{Tag: "task"}, true)
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Equal(t, "Parent not found: //nope", res.Message)
	})

	t.Run("invalid tag", func(t *testing.T) {
		r := addSeed(t)
		res, err := r.AddNode("/manifest", core.NodeSpec{Tag: "1bad"}, true)
		require.NoError(t, err)
		assert.False(t, res.OK)
	})

	t.Run("invalid attribute name", func(t *testing.T) {
		r := addSeed(t)
		res, err := r.AddNode("/manifest",
			core.NodeSpec{Tag: "task", Attrs: map[string]string{"bad name": "x"}}, true)
		require.NoError(t, err)
		assert.False(t, res.OK)
	})

	t.Run("malformed parent query", func(t *testing.T) {
		r := addSeed(t)
		res, err := r.AddNode("//task[", core.NodeSpec{Tag: "task"}, true)
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Contains(t, res.Message, "Invalid query expression")
	})

	t.Run("nothing loaded", func(t *testing.T) {
		r := newRepo(t)
		res, err := r.AddNode("/manifest", core.NodeSpec{Tag: "task"}, true)
		require.NoError(t, err)
		assert.Equal(t, "No file loaded.", res.Message)
	})
}

func editSeed(t *testing.T) *Repository {
	t.Helper()
	ok := requireOK(t)
	r := newRepo(t)
	ok(r.Load(filepath.Join(t.TempDir(), "plan.xml"), ""))
	ok(r.AddNode("/manifest", core.NodeSpec{Tag: "group", ID: "aaaa1111"}, true))
	ok(r.AddNode("//group[@id='aaaa1111']",
		core.NodeSpec{Tag: "task", ID: "cccc3333", Status: "active", Topic: "Paint"}, true))
	return r
}

func TestRepository_EditNode(t *testing.T) {
	t.Run("update attributes and text", func(t *testing.T) {
		ok := requireOK(t)
		r := editSeed(t)
		res := ok(r.EditNode("//task[@id='cccc3333']",
			&core.NodeSpec{Status: "done", Text: strp("redone")}, false))
		assert.Equal(t, "Updated 1 nodes.", res.Message)

		n := r.Tree().Node(r.Search("//task[@id='cccc3333']")[0])
		assert.Equal(t, "done", n.Attrs["status"])
		assert.Equal(t, "Paint", n.Attrs["topic"])
		assert.Equal(t, "redone", n.Text)
		assert.True(t, r.Modified())
	})

	t.Run("delete leaves index entries stale", func(t *testing.T) {
		ok := requireOK(t)
		r := editSeed(t)
		res := ok(r.EditNode("//group[@id='aaaa1111']", nil, true))
		assert.Equal(t, "Deleted 1 nodes.", res.Message)
		assert.Empty(t, r.Search("//task"))

		// Delete leaves the entry stale; the next load's verify pass cleans up.
		assert.True(t, r.Index().Exists("cccc3333"))
	})

	t.Run("no match", func(t *testing.T) {
		r := editSeed(t)
		res, err := r.EditNode("//zzz", nil, true)
		require.NoError(t, err)
		assert.Equal(t, "No match found.", res.Message)
	})

	t.Run("deleting the root fails and rolls back", func(t *testing.T) {
		r := editSeed(t)
		before := storage.MarshalTree(r.Tree())
		res, err := r.EditNode("/manifest", nil, true)
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Equal(t, before, storage.MarshalTree(r.Tree()))
	})

	t.Run("update without a spec", func(t *testing.T) {
		r := editSeed(t)
		res, err := r.EditNode("//group", nil, false)
		require.NoError(t, err)
		assert.Equal(t, "Nothing to update.", res.Message)
	})
}

func TestRepository_RollbackRestoresTree(t *testing.T) {
	ok := requireOK(t)
	r := newRepo(t)
	ok(r.Load(filepath.Join(t.TempDir(), "plan.xml"), ""))
	ok(r.AddNode("/manifest", core.NodeSpec{Tag: "group", ID: "aaaa1111"}, true))
	ok(r.Save("", ""))
	before := storage.MarshalTree(r.Tree())

	t.Run("failed result", func(t *testing.T) {
		res, err := r.withRollback(func() (core.Result, error) {
			r.tree.AppendChild(r.tree.Root, core.Node{Tag: "junk"})
			r.tree.SetAttr(r.tree.Root, "marker", "x")
			r.modified = true
			return core.Failure("boom"), nil
		})
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Equal(t, before, storage.MarshalTree(r.Tree()))
		assert.False(t, r.Modified())
	})

	t.Run("panic restores and repropagates", func(t *testing.T) {
		require.PanicsWithValue(t, "kaboom", func() {
			_, _ = r.withRollback(func() (core.Result, error) {
				r.tree.AppendChild(r.tree.Root, core.Node{Tag: "junk"})
				panic("kaboom")
			})
		})
		assert.Equal(t, before, storage.MarshalTree(r.Tree()))
	})
}

func TestRepository_MergeFrom(t *testing.T) {
	ok := requireOK(t)
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.xml")
	pathB := filepath.Join(dir, "b.xml")

	other := newRepo(t)
	ok(other.Load(pathB, ""))
	ok(other.AddNode("/manifest", core.NodeSpec{Tag: "task", ID: "cccc3333"}, true))
	ok(other.AddNode("/manifest", core.NodeSpec{Tag: "task", ID: "dddd4444"}, true))
	ok(other.Save("", ""))

	t.Run("appends top level items", func(t *testing.T) {
		ok := requireOK(t)
		r := newRepo(t)
		ok(r.Load(pathA, ""))
		ok(r.AddNode("/manifest", core.NodeSpec{Tag: "group", ID: "aaaa1111"}, true))

		res := ok(r.MergeFrom(pathB, ""))
		assert.Equal(t, "Merged 2 items.", res.Message)
		assert.Len(t, r.Tree().Node(r.Tree().Root).Children, 3)
		assert.Len(t, r.Search("//task[@id='dddd4444']"), 1)

		// The merge source never becomes the session file.
		assert.Equal(t, pathA, r.Path())
		assert.True(t, r.Modified())
	})

	t.Run("missing source", func(t *testing.T) {
		ok := requireOK(t)
		r := newRepo(t)
		ok(r.Load(pathA, ""))
		res, err := r.MergeFrom(filepath.Join(dir, "nope.xml"), "")
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Contains(t, res.Message, "Merge error: ")
	})

	t.Run("nothing loaded", func(t *testing.T) {
		r := newRepo(t)
		res, err := r.MergeFrom(pathB, "")
		require.NoError(t, err)
		assert.Equal(t, "No active manifest.", res.Message)
	})

	t.Run("encrypted source needs its password", func(t *testing.T) {
		ok := requireOK(t)
		sealed := newRepo(t)
		ok(sealed.Load(filepath.Join(dir, "sealed.xml"), ""))
		ok(sealed.AddNode("/manifest", core.NodeSpec{Tag: "task", ID: "eeee5555"}, true))
		ok(sealed.Save(filepath.Join(dir, "sealed.mar"), "hunter2"))

		r := newRepo(t)
		ok(r.Load(pathA, ""))
		_, err := r.MergeFrom(filepath.Join(dir, "sealed.mar"), "")
		require.ErrorIs(t, err, storage.ErrPasswordRequired)

		res := ok(r.MergeFrom(filepath.Join(dir, "sealed.mar"), "hunter2"))
		assert.Equal(t, "Merged 1 items.", res.Message)
	})
}

func TestRepository_WrapContent(t *testing.T) {
	t.Run("moves all top level items", func(t *testing.T) {
		ok := requireOK(t)
		r := newRepo(t)
		ok(r.Load(filepath.Join(t.TempDir(), "plan.xml"), ""))
		ok(r.AddNode("/manifest", core.NodeSpec{Tag: "task", ID: "aaaa1111"}, true))
		ok(r.AddNode("/manifest", core.NodeSpec{Tag: "task", ID: "bbbb2222"}, true))
		ok(r.AddNode("/manifest", core.NodeSpec{Tag: "note", ID: "cccc3333"}, true))

		res := ok(r.WrapContent("archive"))
		assert.Equal(t, "Wrapped 3 items under <archive>.", res.Message)

		root := r.Tree().Node(r.Tree().Root)
		require.Len(t, root.Children, 1)
		wrapper := r.Tree().Node(root.Children[0])
		assert.Equal(t, "archive", wrapper.Tag)
		require.Len(t, wrapper.Children, 3)
		assert.Equal(t, "aaaa1111", r.Tree().Node(wrapper.Children[0]).ID())
		assert.Equal(t, "cccc3333", r.Tree().Node(wrapper.Children[2]).ID())
	})

	t.Run("empty document", func(t *testing.T) {
		ok := requireOK(t)
		r := newRepo(t)
		ok(r.Load(filepath.Join(t.TempDir(), "plan.xml"), ""))
		res, err := r.WrapContent("archive")
		require.NoError(t, err)
		assert.Equal(t, "Manifest is empty; nothing to wrap.", res.Message)
	})

	t.Run("invalid wrapper tag", func(t *testing.T) {
		ok := requireOK(t)
		r := newRepo(t)
		ok(r.Load(filepath.Join(t.TempDir(), "plan.xml"), ""))
		ok(r.AddNode("/manifest", core.NodeSpec{Tag: "task"}, true))
		res, err := r.WrapContent("xml-bad")
		require.NoError(t, err)
		assert.False(t, res.OK)
	})
}

func TestRepository_PasswordRoundTrip(t *testing.T) {
	ok := requireOK(t)
	dir := t.TempDir()
	vault := filepath.Join(dir, "vault.mar")

	r := newRepo(t)
	ok(r.Load(filepath.Join(dir, "plain.xml"), ""))
	ok(r.AddNode("/manifest", core.NodeSpec{Tag: "task", ID: "deadbeef", Topic: "secret"}, true))

	res := ok(r.Save(vault, "hunter2"))
	assert.Equal(t, "Saved to "+vault, res.Message)
	assert.Equal(t, vault, r.Path())

	t.Run("wrong password", func(t *testing.T) {
		other := newRepo(t)
		res, err := other.Load(vault, "wrong")
		require.ErrorIs(t, err, storage.ErrPasswordRequired)
		assert.False(t, res.OK)
	})

	t.Run("missing password", func(t *testing.T) {
		other := newRepo(t)
		_, err := other.Load(vault, "")
		require.ErrorIs(t, err, storage.ErrPasswordRequired)
	})

	t.Run("correct password", func(t *testing.T) {
		ok := requireOK(t)
		other := newRepo(t)
		ok(other.Load(vault, "hunter2"))
		assert.Equal(t, core.EncodeXML(r.Tree()), core.EncodeXML(other.Tree()))
	})

	t.Run("saving an archive without a password", func(t *testing.T) {
		ok := requireOK(t)
		plain := newRepo(t)
		ok(plain.Load(filepath.Join(dir, "other.xml"), ""))
		res, err := plain.Save(filepath.Join(dir, "locked.mar"), "")
		require.ErrorIs(t, err, storage.ErrPasswordRequired)
		assert.False(t, res.OK)
	})
}

func ensureSeed(t *testing.T) *Repository {
	t.Helper()
	ok := requireOK(t)
	r := newRepo(t)
	ok(r.Load(filepath.Join(t.TempDir(), "plan.xml"), ""))
	ok(r.AddNode("/manifest", core.NodeSpec{Tag: "group"}, false))
	ok(r.AddNode("//group", core.NodeSpec{Tag: "task"}, false))
	return r
}

func TestRepository_EnsureIDs(t *testing.T) {
	t.Run("fills only missing ids", func(t *testing.T) {
		ok := requireOK(t)
		r := ensureSeed(t)
		res := ok(r.EnsureIDs(false))
		assert.Equal(t, "Added/updated 3 ID(s)", res.Message)
		assert.Equal(t, 3, res.Data["count"])

		// The root is covered too.
		assert.NotEmpty(t, r.Tree().Node(r.Tree().Root).ID())
		assert.Len(t, r.Tree().IDs(), 3)

		res = ok(r.EnsureIDs(false))
		assert.Equal(t, 0, res.Data["count"])
	})

	t.Run("overwrite replaces every id", func(t *testing.T) {
		ok := requireOK(t)
		r := ensureSeed(t)
		ok(r.EnsureIDs(false))
		rootID := r.Tree().Node(r.Tree().Root).ID()

		res := ok(r.EnsureIDs(true))
		assert.Equal(t, 3, res.Data["count"])
		assert.NotEqual(t, rootID, r.Tree().Node(r.Tree().Root).ID())
	})

	t.Run("index is not updated until rebuild", func(t *testing.T) {
		ok := requireOK(t)
		r := ensureSeed(t)
		ok(r.EnsureIDs(false))
		rootID := r.Tree().Node(r.Tree().Root).ID()
		assert.False(t, r.Index().Exists(rootID))

		res := ok(r.RebuildIndex())
		assert.Equal(t, 3, res.Data["entries"])
		assert.True(t, r.Index().Exists(rootID))
	})
}

func TestRepository_RebuildIndex(t *testing.T) {
	t.Run("writes the sidecar immediately", func(t *testing.T) {
		ok := requireOK(t)
		r := newRepo(t)
		target := filepath.Join(t.TempDir(), "plan.xml")
		ok(r.Load(target, ""))
		ok(r.AddNode("/manifest", core.NodeSpec{Tag: "task", ID: "aaaa1111"}, true))

		res := ok(r.RebuildIndex())
		assert.Equal(t, "Rebuilt sidecar with 1 IDs", res.Message)

		data, err := os.ReadFile(storage.SidecarPath(target))
		require.NoError(t, err)
		assert.Contains(t, string(data), "aaaa1111")
	})

	t.Run("disabled index", func(t *testing.T) {
		ok := requireOK(t)
		cfg := config.Defaults()
		cfg.Set("sidecar.enabled", false)
		r := newRepo(t, WithConfig(cfg))
		ok(r.Load(filepath.Join(t.TempDir(), "plan.xml"), ""))
		require.Nil(t, r.Index())

		res, err := r.RebuildIndex()
		require.NoError(t, err)
		assert.Equal(t, "ID index not enabled.", res.Message)
	})

	t.Run("nothing loaded", func(t *testing.T) {
		r := newRepo(t)
		res, err := r.RebuildIndex()
		require.NoError(t, err)
		assert.Equal(t, "No file loaded.", res.Message)
	})
}

// corruptIndexSetup writes a document plus a sidecar pointing at a node
// that does not exist, the shape an index takes after an out-of-band edit.
func corruptIndexSetup(t *testing.T) string {
	t.Helper()
	ok := requireOK(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "plan.xml")

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	r := New()
	ok(r.Load(target, ""))
	ok(r.AddNode("/manifest", core.NodeSpec{Tag: "task", ID: "aaaa1111"}, true))
	ok(r.Save("", ""))
	require.NoError(t, r.Close())

	bogus := []byte(`{"deadbeef": "/manifest/task[@id='deadbeef']"}`)
	require.NoError(t, os.WriteFile(storage.SidecarPath(target), bogus, 0644))
	return target
}

func TestRepository_LoadIndexHandling(t *testing.T) {
	t.Run("silent mode repairs on load", func(t *testing.T) {
		ok := requireOK(t)
		target := corruptIndexSetup(t)
		cfg := config.Defaults()
		cfg.Set("sidecar.corruption_handling", "silent")

		r := newRepo(t, WithConfig(cfg))
		ok(r.Load(target, ""))
		assert.True(t, r.Index().Exists("aaaa1111"))
		assert.False(t, r.Index().Exists("deadbeef"))

		data, err := os.ReadFile(storage.SidecarPath(target))
		require.NoError(t, err)
		assert.Contains(t, string(data), "aaaa1111")
		assert.NotContains(t, string(data), "deadbeef")
	})

	t.Run("declined confirmation keeps the corrupt index", func(t *testing.T) {
		ok := requireOK(t)
		target := corruptIndexSetup(t)
		r := newRepo(t) // warn_and_ask by default, nil confirm declines
		ok(r.Load(target, ""))
		assert.True(t, r.Index().Exists("deadbeef"))
		assert.False(t, r.Index().Exists("aaaa1111"))
	})

	t.Run("accepted confirmation rebuilds", func(t *testing.T) {
		ok := requireOK(t)
		target := corruptIndexSetup(t)
		var reason string
		r := newRepo(t, WithConfirm(func(why string) bool {
			reason = why
			return true
		}))
		ok(r.Load(target, ""))
		assert.NotEmpty(t, reason)
		assert.True(t, r.Index().Exists("aaaa1111"))
		assert.False(t, r.Index().Exists("deadbeef"))
	})

	t.Run("forced rebuild skips the question", func(t *testing.T) {
		ok := requireOK(t)
		target := corruptIndexSetup(t)
		r := newRepo(t, WithRebuildIndex(true))
		ok(r.Load(target, ""))
		assert.True(t, r.Index().Exists("aaaa1111"))
		assert.False(t, r.Index().Exists("deadbeef"))
	})

	t.Run("auto index populates a missing sidecar", func(t *testing.T) {
		ok := requireOK(t)
		target := corruptIndexSetup(t)
		require.NoError(t, os.Remove(storage.SidecarPath(target)))

		r := newRepo(t, WithAutoIndex(true))
		ok(r.Load(target, ""))
		assert.True(t, r.Index().Exists("aaaa1111"))
		_, err := os.Stat(storage.SidecarPath(target))
		assert.NoError(t, err)
	})

	t.Run("missing sidecar stays empty by default", func(t *testing.T) {
		ok := requireOK(t)
		target := corruptIndexSetup(t)
		require.NoError(t, os.Remove(storage.SidecarPath(target)))

		r := newRepo(t)
		ok(r.Load(target, ""))
		assert.Equal(t, 0, r.Index().Len())
		_, err := os.Stat(storage.SidecarPath(target))
		assert.True(t, os.IsNotExist(err))
	})
}

func TestRepository_BadgerIndexBackend(t *testing.T) {
	ok := requireOK(t)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(t.TempDir(), "xdg"))
	dir := t.TempDir()
	target := filepath.Join(dir, "plan.xml")

	cfg := config.Defaults()
	cfg.Set("sidecar.backend", "badger")

	r := New(WithConfig(cfg))
	ok(r.Load(target, ""))
	require.NotNil(t, r.Index())
	ok(r.AddNode("/manifest", core.NodeSpec{Tag: "task", ID: "aaaa1111"}, true))
	ok(r.Save("", ""))
	require.NoError(t, r.Close())

	info, err := os.Stat(storage.IndexDBPath(target))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	other := New(WithConfig(cfg))
	defer other.Close()
	ok(other.Load(target, ""))
	assert.True(t, other.Index().Exists("aaaa1111"))
}

func TestRepository_Backup(t *testing.T) {
	t.Run("leaves the session untouched", func(t *testing.T) {
		ok := requireOK(t)
		dir := t.TempDir()
		target := filepath.Join(dir, "plan.xml")
		backup := filepath.Join(dir, "plan.bkp.xml")

		r := newRepo(t)
		ok(r.Load(target, ""))
		ok(r.AddNode("/manifest", core.NodeSpec{Tag: "task", ID: "aaaa1111"}, true))
		ok(r.Save("", ""))

		res := ok(r.Backup(backup))
		assert.Equal(t, "Backup saved to "+backup, res.Message)
		assert.Equal(t, target, r.Path())
		assert.False(t, r.Modified())

		// Sidecar travels with the backup.
		_, err := os.Stat(storage.SidecarPath(backup))
		assert.NoError(t, err)

		other := newRepo(t)
		ok(other.Load(backup, ""))
		assert.Equal(t, core.EncodeXML(r.Tree()), core.EncodeXML(other.Tree()))
	})

	t.Run("captures unsaved changes", func(t *testing.T) {
		ok := requireOK(t)
		dir := t.TempDir()
		r := newRepo(t)
		ok(r.Load(filepath.Join(dir, "plan.xml"), ""))
		ok(r.AddNode("/manifest", core.NodeSpec{Tag: "task", ID: "bbbb2222"}, true))

		backup := filepath.Join(dir, "snap.xml")
		ok(r.Backup(backup))
		assert.True(t, r.Modified())

		other := newRepo(t)
		ok(other.Load(backup, ""))
		assert.Len(t, other.Search("//task[@id='bbbb2222']"), 1)
	})

	t.Run("encrypted target without a session password", func(t *testing.T) {
		ok := requireOK(t)
		r := newRepo(t)
		ok(r.Load(filepath.Join(t.TempDir(), "plan.xml"), ""))
		res, err := r.Backup(filepath.Join(t.TempDir(), "vault.mar"))
		require.ErrorIs(t, err, storage.ErrPasswordRequired)
		assert.False(t, res.OK)
	})

	t.Run("nothing loaded", func(t *testing.T) {
		r := newRepo(t)
		res, err := r.Backup(filepath.Join(t.TempDir(), "plan.bkp.xml"))
		require.NoError(t, err)
		assert.Equal(t, "No file loaded.", res.Message)
	})
}

func TestRepository_Search(t *testing.T) {
	ok := requireOK(t)
	r := newRepo(t)
	ok(r.Load(filepath.Join(t.TempDir(), "plan.xml"), ""))
	ok(r.AddNode("/manifest", core.NodeSpec{Tag: "task", ID: "aaaa1111", Status: "done"}, true))
	ok(r.AddNode("/manifest", core.NodeSpec{Tag: "task", ID: "bbbb2222", Status: "active"}, true))

	assert.Len(t, r.Search("//task"), 2)
	assert.Len(t, r.Search("//task[@status='done']"), 1)
	assert.Nil(t, r.Search("//task["))

	empty := newRepo(t)
	assert.Nil(t, empty.Search("//task"))
}

func TestRepository_EndToEndSession(t *testing.T) {
	ok := requireOK(t)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(t.TempDir(), "xdg"))
	dir := t.TempDir()
	target := filepath.Join(dir, "house.xml")

	// First sitting: lay out the document and save it.
	r := New()
	ok(r.Load(target, ""))
	ok(r.AddNode("/manifest", core.NodeSpec{Tag: "group", ID: "aaaa1111", Topic: "Repairs"}, true))
	ok(r.AddNode("//group[@id='aaaa1111']",
		core.NodeSpec{Tag: "task", ID: "cafe0001", Topic: "Gutter", Status: "active"}, true))
	ok(r.AddNode("//group[@id='aaaa1111']",
		core.NodeSpec{Tag: "task", ID: "beef0002", Topic: "Fence", Status: "active"}, true))
	ok(r.Save("", ""))
	require.NoError(t, r.Close())

	// Second sitting: resolve a prefix, finish the task, save.
	r = New()
	ok(r.Load(target, ""))
	res := ok(r.ResolveSelector("cafe"))
	assert.Equal(t, "cafe0001", res.Data["id"])
	q := res.Data["query"].(string)
	ok(r.EditNode(q, &core.NodeSpec{Status: "done"}, false))
	ok(r.Save("", ""))
	snapshot := core.EncodeXML(r.Tree())
	require.NoError(t, r.Close())

	// Third sitting: the change survived the round trip.
	r = New()
	defer r.Close()
	ok(r.Load(target, ""))
	assert.Equal(t, snapshot, core.EncodeXML(r.Tree()))
	n := r.Tree().Node(r.Search("//task[@id='cafe0001']")[0])
	assert.Equal(t, "done", n.Attrs["status"])
	n = r.Tree().Node(r.Search("//task[@id='beef0002']")[0])
	assert.Equal(t, "active", n.Attrs["status"])
}
