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


package main

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/manifest"
	"github.com/poiesic/manifest/core"
	"github.com/poiesic/manifest/lockfile"
	"github.com/poiesic/manifest/query"
	"github.com/poiesic/manifest/storage"
	"github.com/urfave/cli/v2"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "manifest",
		Usage: "Hierarchical document manager with id-addressable nodes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Document to operate on (.xml or sealed .mar)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Password for sealed archives",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.BoolFlag{
				Name:  "auto-index",
				Usage: "Build the id sidecar when the document has none",
			},
			&cli.BoolFlag{
				Name:  "rebuild-index",
				Usage: "Force a sidecar rebuild on load",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "add",
				Usage:  "Add a node under a parent selector",
				Action: addCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "parent",
						Usage: "Parent selector (id, prefix, or query)",
						Value: "/manifest",
					},
					&cli.StringFlag{
						Name:     "tag",
						Usage:    "Tag name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "topic",
						Usage: "Topic/Title",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Status",
					},
					&cli.StringFlag{
						Name:  "text",
						Usage: "Body text",
					},
					&cli.StringFlag{
						Name:  "resp",
						Usage: "Responsible party",
					},
					&cli.StringFlag{
						Name:  "due",
						Usage: "Due date (YYYY-MM-DD format)",
					},
					&cli.StringSliceFlag{
						Name:    "attr",
						Aliases: []string{"a"},
						Usage:   "Extra k=v attribute (repeatable)",
					},
					&cli.StringFlag{
						Name:  "id",
						Usage: "Explicit id for the new node",
					},
					&cli.BoolFlag{
						Name:  "no-id",
						Usage: "Skip id auto-generation",
					},
				},
			},
			{
				Name:      "edit",
				Usage:     "Update fields on nodes matched by a selector",
				ArgsUsage: "<selector>",
				Action:    editCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "topic",
						Usage: "New topic",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "New status",
					},
					&cli.StringFlag{
						Name:  "text",
						Usage: "New body text",
					},
					&cli.StringFlag{
						Name:  "resp",
						Usage: "Responsible party",
					},
					&cli.StringFlag{
						Name:  "due",
						Usage: "Due date (YYYY-MM-DD format)",
					},
					&cli.StringSliceFlag{
						Name:    "attr",
						Aliases: []string{"a"},
						Usage:   "Extra k=v attribute (repeatable)",
					},
				},
			},
			{
				Name:      "rm",
				Usage:     "Delete nodes matched by a selector",
				ArgsUsage: "<selector>",
				Action:    rmCommand,
			},
			{
				Name:      "search",
				Usage:     "Evaluate a query expression and print matches",
				ArgsUsage: "<query>",
				Action:    searchCommand,
			},
			{
				Name:      "show",
				Usage:     "Render matched nodes as a tree or table",
				ArgsUsage: "[selector]",
				Action:    showCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "table",
						Usage: "Table view instead of tree view",
					},
					&cli.IntFlag{
						Name:  "depth",
						Usage: "Limit rendering depth",
					},
				},
			},
			{
				Name:      "find",
				Usage:     "List nodes whose id starts with a prefix",
				ArgsUsage: "<prefix>",
				Action:    findCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "tree",
						Usage: "Show full subtrees instead of the flat view",
					},
					&cli.IntFlag{
						Name:  "depth",
						Usage: "Limit tree depth",
					},
				},
			},
			{
				Name:      "merge",
				Usage:     "Graft the top-level items of another document",
				ArgsUsage: "<path>",
				Action:    mergeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "merge-password",
						Usage: "Password for a sealed source archive",
					},
				},
			},
			{
				Name:      "wrap",
				Usage:     "Move all top-level items under a new element",
				ArgsUsage: "<tag>",
				Action:    wrapCommand,
			},
			{
				Name:   "autoid",
				Usage:  "Assign ids to elements that lack them",
				Action: autoidCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "overwrite",
						Usage: "Replace existing ids (default: skip elements with ids)",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the id sidecar from the document",
				Action: reindexCommand,
			},
			{
				Name:      "resolve",
				Usage:     "Show how a selector token is interpreted",
				ArgsUsage: "<selector>",
				Action:    resolveCommand,
			},
			{
				Name:      "backup",
				Usage:     "Write a point-in-time copy of the document",
				ArgsUsage: "[name]",
				Action:    backupCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "timestamp",
						Usage: "Name the backup with the current date and time",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing backup",
					},
				},
			},
		},
	}
}

func addCommand(c *cli.Context) error {
	lock, err := lockDocument(c)
	if err != nil {
		return err
	}
	defer lock.Release()

	r, err := openRepo(c)
	if err != nil {
		return err
	}
	defer r.Close()

	warnUnknownStatus(c)

	spec := core.NodeSpec{
		Tag:    c.String("tag"),
		ID:     c.String("id"),
		Topic:  c.String("topic"),
		Status: c.String("status"),
		Resp:   c.String("resp"),
		Due:    c.String("due"),
		Attrs:  parseAttrPairs(c.StringSlice("attr")),
	}
	if c.IsSet("text") {
		text := c.String("text")
		spec.Text = &text
	}

	parent, err := resolveSelector(c, r, c.String("parent"))
	if err != nil {
		return err
	}

	res, err := r.AddNode(parent, spec, !c.Bool("no-id"))
	if err != nil {
		return err
	}
	if !res.OK {
		return errors.New(res.Message)
	}
	if id, ok := res.Data["id"].(string); ok {
		fmt.Fprintf(c.App.Writer, "Added node with ID: %s\n", id)
	} else {
		fmt.Fprintln(c.App.Writer, res.Message)
	}

	return saveSession(c, r)
}

func editCommand(c *cli.Context) error {
	token := c.Args().First()
	if token == "" {
		return fmt.Errorf("edit requires a selector argument")
	}

	lock, err := lockDocument(c)
	if err != nil {
		return err
	}
	defer lock.Release()

	r, err := openRepo(c)
	if err != nil {
		return err
	}
	defer r.Close()

	warnUnknownStatus(c)

	spec := &core.NodeSpec{
		Topic:  c.String("topic"),
		Status: c.String("status"),
		Resp:   c.String("resp"),
		Due:    c.String("due"),
		Attrs:  parseAttrPairs(c.StringSlice("attr")),
	}
	if c.IsSet("text") {
		text := c.String("text")
		spec.Text = &text
	}

	q, err := resolveSelector(c, r, token)
	if err != nil {
		return err
	}

	res, err := r.EditNode(q, spec, false)
	if err != nil {
		return err
	}
	if !res.OK {
		return errors.New(res.Message)
	}
	fmt.Fprintln(c.App.Writer, res.Message)

	return saveSession(c, r)
}

func rmCommand(c *cli.Context) error {
	token := c.Args().First()
	if token == "" {
		return fmt.Errorf("rm requires a selector argument")
	}

	lock, err := lockDocument(c)
	if err != nil {
		return err
	}
	defer lock.Release()

	r, err := openRepo(c)
	if err != nil {
		return err
	}
	defer r.Close()

	q, err := resolveSelector(c, r, token)
	if err != nil {
		return err
	}

	res, err := r.EditNode(q, nil, true)
	if err != nil {
		return err
	}
	if !res.OK {
		return errors.New(res.Message)
	}
	fmt.Fprintln(c.App.Writer, res.Message)

	return saveSession(c, r)
}

func searchCommand(c *cli.Context) error {
	q := c.Args().First()
	if q == "" {
		return fmt.Errorf("search requires a query argument")
	}

	r, err := openRepo(c)
	if err != nil {
		return err
	}
	defer r.Close()

	matches, err := query.Resolve(r.Tree(), q)
	if err != nil {
		return fmt.Errorf("invalid query expression %q: %v", q, err)
	}
	if len(matches) == 0 {
		fmt.Fprintf(c.App.Writer, "No elements found matching query: %s\n", q)
		return nil
	}
	fmt.Fprintln(c.App.Writer, renderView(r.Tree(), matches, "tree", viewOpts(r, 0)))
	return nil
}

func showCommand(c *cli.Context) error {
	token := c.Args().First()
	if token == "" {
		token = "/*"
	}

	r, err := openRepo(c)
	if err != nil {
		return err
	}
	defer r.Close()

	q, err := resolveSelector(c, r, token)
	if err != nil {
		return err
	}
	matches, err := query.Resolve(r.Tree(), q)
	if err != nil {
		return fmt.Errorf("invalid query expression %q: %v", q, err)
	}
	if len(matches) == 0 {
		fmt.Fprintf(c.App.Writer, "No elements found matching query: %s\n", q)
		return nil
	}

	style := "tree"
	if c.Bool("table") {
		style = "table"
	}
	fmt.Fprintln(c.App.Writer, renderView(r.Tree(), matches, style, viewOpts(r, c.Int("depth"))))
	return nil
}

func findCommand(c *cli.Context) error {
	prefix := c.Args().First()
	if prefix == "" {
		return fmt.Errorf("find requires an id prefix argument")
	}

	r, err := openRepo(c)
	if err != nil {
		return err
	}
	defer r.Close()

	ix := r.Index()
	if ix == nil {
		return errors.New("ID index not enabled.")
	}

	type match struct {
		id   string
		path string
		node core.NodeID
	}
	var matches []match
	for _, id := range ix.AllIDs() {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		path, ok := ix.Get(id)
		if !ok {
			continue
		}
		nodes, err := query.Resolve(r.Tree(), path)
		if err != nil || len(nodes) == 0 {
			continue
		}
		matches = append(matches, match{id: id, path: path, node: nodes[0]})
	}
	if len(matches) == 0 {
		fmt.Fprintf(c.App.Writer, "No IDs found matching '%s'\n", prefix)
		return nil
	}

	w := c.App.Writer
	fmt.Fprintf(w, "\nFound %d match(es)\n", len(matches))

	if c.Bool("tree") {
		opts := viewOpts(r, c.Int("depth"))
		for i, m := range matches {
			if i > 0 {
				fmt.Fprintln(w, "\n"+strings.Repeat("-", 60))
			}
			fmt.Fprintf(w, "Match %d: %s\n", i+1, m.path)
			fmt.Fprintln(w, strings.Repeat("-", 60))
			fmt.Fprintln(w, renderView(r.Tree(), []core.NodeID{m.node}, "tree", opts))
		}
		return nil
	}

	for _, m := range matches {
		n := r.Tree().Node(m.node)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  ID: %s\n", m.id)
		fmt.Fprintf(w, "     Path: %s\n", m.path)
		if topic := n.Attrs["topic"]; topic != "" {
			fmt.Fprintf(w, "     Topic: %s\n", topic)
		}
		if status := n.Attrs["status"]; status != "" {
			fmt.Fprintf(w, "     Status: %s\n", status)
		}
	}
	return nil
}

func mergeCommand(c *cli.Context) error {
	src := c.Args().First()
	if src == "" {
		return fmt.Errorf("merge requires a source path argument")
	}

	lock, err := lockDocument(c)
	if err != nil {
		return err
	}
	defer lock.Release()

	r, err := openRepo(c)
	if err != nil {
		return err
	}
	defer r.Close()

	res, err := r.MergeFrom(src, c.String("merge-password"))
	if err != nil {
		if errors.Is(err, storage.ErrPasswordRequired) {
			return fmt.Errorf("%s is sealed, supply --merge-password", src)
		}
		return err
	}
	if !res.OK {
		return errors.New(res.Message)
	}
	fmt.Fprintln(c.App.Writer, res.Message)

	return saveSession(c, r)
}

func wrapCommand(c *cli.Context) error {
	tag := c.Args().First()
	if tag == "" {
		return fmt.Errorf("wrap requires a tag argument")
	}

	lock, err := lockDocument(c)
	if err != nil {
		return err
	}
	defer lock.Release()

	r, err := openRepo(c)
	if err != nil {
		return err
	}
	defer r.Close()

	res, err := r.WrapContent(tag)
	if err != nil {
		return err
	}
	if !res.OK {
		return errors.New(res.Message)
	}
	fmt.Fprintln(c.App.Writer, res.Message)

	return saveSession(c, r)
}

func autoidCommand(c *cli.Context) error {
	lock, err := lockDocument(c)
	if err != nil {
		return err
	}
	defer lock.Release()

	r, err := openRepo(c)
	if err != nil {
		return err
	}
	defer r.Close()

	res, err := r.EnsureIDs(c.Bool("overwrite"))
	if err != nil {
		return err
	}
	if !res.OK {
		return errors.New(res.Message)
	}
	fmt.Fprintln(c.App.Writer, res.Message)

	// Fresh ids are useless until the sidecar knows their paths.
	if count, _ := res.Data["count"].(int); count > 0 && r.Index() != nil {
		rres, err := r.RebuildIndex()
		if err != nil {
			return err
		}
		if rres.OK {
			fmt.Fprintln(c.App.Writer, rres.Message)
		} else {
			fmt.Fprintln(c.App.ErrWriter, rres.Message)
		}
	}

	return saveSession(c, r)
}

func reindexCommand(c *cli.Context) error {
	lock, err := lockDocument(c)
	if err != nil {
		return err
	}
	defer lock.Release()

	r, err := openRepo(c)
	if err != nil {
		return err
	}
	defer r.Close()

	res, err := r.RebuildIndex()
	if err != nil {
		return err
	}
	if !res.OK {
		return errors.New(res.Message)
	}
	fmt.Fprintln(c.App.Writer, res.Message)
	return nil
}

func resolveCommand(c *cli.Context) error {
	token := c.Args().First()
	if token == "" {
		return fmt.Errorf("resolve requires a selector argument")
	}

	r, err := openRepo(c)
	if err != nil {
		return err
	}
	defer r.Close()

	res, err := r.ResolveSelector(token)
	if err != nil {
		return err
	}
	w := c.App.Writer
	if !res.OK {
		fmt.Fprintln(w, res.Message)
		if candidates, ok := res.Data["candidates"].([]string); ok {
			for _, id := range candidates {
				fmt.Fprintf(w, "  %s\n", id)
			}
		}
		return nil
	}
	if res.Message != "" {
		fmt.Fprintln(w, res.Message)
	}
	fmt.Fprintln(w, res.Data["query"])
	return nil
}

func backupCommand(c *cli.Context) error {
	r, err := openRepo(c)
	if err != nil {
		return err
	}
	defer r.Close()

	var target string
	switch {
	case c.Args().First() != "":
		target = storage.NormalizePath(c.Args().First())
	case c.Bool("timestamp"):
		target = storage.TimestampedName(r.Path(), time.Now())
	default:
		target = storage.BackupName(r.Path())
	}

	if !c.Bool("force") {
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", target)
		}
	}
	if r.Modified() {
		fmt.Fprintln(c.App.ErrWriter, "Warning: backup includes unsaved changes")
	}

	res, err := r.Backup(target)
	if err != nil {
		return err
	}
	if !res.OK {
		return errors.New(res.Message)
	}
	fmt.Fprintln(c.App.Writer, res.Message)
	return nil
}

// openRepo loads the session document named by the global flags. The load
// status line goes to stderr so command output stays clean on stdout.
func openRepo(c *cli.Context) (*manifest.Repository, error) {
	r := manifest.New(
		manifest.WithAutoIndex(c.Bool("auto-index")),
		manifest.WithRebuildIndex(c.Bool("rebuild-index")),
		manifest.WithConfirm(promptRebuild(c)),
	)
	res, err := r.Load(c.String("file"), c.String("password"))
	if err != nil {
		r.Close()
		if errors.Is(err, storage.ErrPasswordRequired) {
			return nil, fmt.Errorf("%s is sealed, supply --password", c.String("file"))
		}
		return nil, err
	}
	if !res.OK {
		r.Close()
		return nil, errors.New(res.Message)
	}
	fmt.Fprintln(c.App.ErrWriter, res.Message)
	return r, nil
}

func saveSession(c *cli.Context, r *manifest.Repository) error {
	res, err := r.Save("", "")
	if err != nil {
		return err
	}
	if !res.OK {
		return errors.New(res.Message)
	}
	fmt.Fprintln(c.App.ErrWriter, res.Message)
	return nil
}

// lockDocument takes the advisory lock for the session document so two
// invocations cannot interleave a load/save cycle.
func lockDocument(c *cli.Context) (*lockfile.Lock, error) {
	target := storage.NormalizePath(c.String("file"))
	lock, err := lockfile.Acquire(target, lockfile.DefaultTimeout)
	if err != nil {
		if errors.Is(err, lockfile.ErrTimeout) {
			return nil, fmt.Errorf("%s is locked by another process", target)
		}
		return nil, err
	}
	return lock, nil
}

// resolveSelector turns an id, id prefix, or query token into a concrete
// query expression. Ambiguous prefixes print their candidates and fail.
func resolveSelector(c *cli.Context, r *manifest.Repository, token string) (string, error) {
	res, err := r.ResolveSelector(token)
	if err != nil {
		return "", err
	}
	if !res.OK {
		if candidates, ok := res.Data["candidates"].([]string); ok {
			for _, id := range candidates {
				fmt.Fprintf(c.App.ErrWriter, "  %s\n", id)
			}
		}
		return "", errors.New(res.Message)
	}
	if res.Message != "" {
		fmt.Fprintln(c.App.ErrWriter, res.Message)
	}
	return res.Data["query"].(string), nil
}

func warnUnknownStatus(c *cli.Context) {
	status := c.String("status")
	if status != "" && !core.KnownStatus(status) {
		fmt.Fprintf(c.App.ErrWriter,
			"Warning: unknown status %q (standard: active, done, pending, blocked, cancelled)\n", status)
	}
}

// parseAttrPairs splits repeated k=v flags on the first equals sign.
// Entries without one are skipped.
func parseAttrPairs(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		attrs[name] = value
	}
	return attrs
}

func promptRebuild(c *cli.Context) func(reason string) bool {
	return func(reason string) bool {
		fmt.Fprintf(c.App.ErrWriter, "%s\nRebuild the id index from the document? [y/N]: ", reason)
		answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return false
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	}
}

func viewOpts(r *manifest.Repository, depth int) viewOptions {
	cfg := r.Config()
	return viewOptions{
		MaxDepth: depth,
		ShowIDs:  cfg.GetBool("display.show_ids_prominently", true),
		IDFirst:  cfg.GetBool("display.id_first", true),
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
