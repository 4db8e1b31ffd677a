package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/poiesic/manifest/core"
)

// viewOptions control rendering. MaxDepth of zero means unlimited.
// ShowIDs lifts the id out of the attribute bracket into its own slot;
// IDFirst puts that slot before the content instead of after it.
type viewOptions struct {
	MaxDepth int
	ShowIDs  bool
	IDFirst  bool
}

func renderView(t *core.Tree, nodes []core.NodeID, style string, opts viewOptions) string {
	if len(nodes) == 0 {
		return "No data."
	}
	if style == "table" {
		return renderTable(t, nodes, opts)
	}
	return renderTree(t, nodes, opts)
}

// renderTree prints nodes as an indented outline. Direct children of the
// document root become "## topic" section headers; a header with no text
// and no status contributes only its children.
func renderTree(t *core.Tree, nodes []core.NodeID, opts viewOptions) string {
	var lines []string
	var recurse func(id core.NodeID, level int, rootItem bool, depth int)
	recurse = func(id core.NodeID, level int, rootItem bool, depth int) {
		if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
			return
		}
		n := t.Node(id)
		topic := n.Attrs["topic"]
		status := n.Attrs["status"]
		resp := n.Attrs["resp"]
		text := strings.TrimSpace(n.Text)

		if rootItem {
			header := topic
			if header == "" {
				header = strings.ToUpper(n.Tag)
			}
			lines = append(lines, "", "## "+header)
			if text == "" && status == "" {
				for _, child := range n.Children {
					recurse(child, level+1, false, depth+1)
				}
				return
			}
		}

		mark := "-"
		switch {
		case status == "done":
			mark = "[x]"
		case status != "":
			mark = "[ ]"
		}
		statStr := ""
		if status != "" && status != "done" {
			statStr = "(" + status + ") "
		}
		respStr := ""
		if resp != "" {
			respStr = "@" + resp + " "
		}

		content := "<" + n.Tag + ">"
		if topic != "" {
			content = "**" + topic + "**"
		}
		if text != "" {
			content += ": " + text
		}
		content += attrSuffix(n, opts.ShowIDs)

		head := mark + " "
		if opts.ShowIDs && opts.IDFirst && n.ID() != "" {
			head += "[" + n.ID() + "] "
		}
		line := strings.Repeat("  ", level) + head + statStr + respStr + content
		if opts.ShowIDs && !opts.IDFirst && n.ID() != "" {
			line += " [" + n.ID() + "]"
		}
		lines = append(lines, line)

		for _, child := range n.Children {
			recurse(child, level+1, false, depth+1)
		}
	}

	for _, id := range nodes {
		n := t.Node(id)
		rootItem := n.Parent != core.NoNode && t.Node(n.Parent).Tag == core.RootTag
		recurse(id, 0, rootItem, 0)
	}
	return strings.Join(lines, "\n")
}

// attrSuffix formats the remaining attributes as " [k=v k=v]". The fields
// rendered elsewhere are excluded, as is the id when it has its own slot.
func attrSuffix(n *core.Node, omitID bool) string {
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		switch k {
		case "topic", "status", "resp":
			continue
		case "id":
			if omitID {
				continue
			}
		}
		parts = append(parts, k+"="+n.Attrs[k])
	}
	if len(parts) == 0 {
		return ""
	}
	return " [" + strings.Join(parts, " ") + "]"
}

func renderTable(t *core.Tree, nodes []core.NodeID, opts viewOptions) string {
	var rows []map[string]string
	var flat func(id core.NodeID, depth int)
	flat = func(id core.NodeID, depth int) {
		if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
			return
		}
		n := t.Node(id)
		rows = append(rows, map[string]string{
			"ID":     orDash(n.ID()),
			"Tag":    n.Tag,
			"Topic":  strings.Repeat("  ", depth) + n.Attrs["topic"],
			"Status": orDash(n.Attrs["status"]),
			"Resp":   orDash(n.Attrs["resp"]),
		})
		for _, child := range n.Children {
			flat(child, depth+1)
		}
	}
	for _, id := range nodes {
		flat(id, 0)
	}

	cols := []string{"ID", "Topic", "Tag", "Status", "Resp"}
	switch {
	case !opts.ShowIDs:
		cols = cols[1:]
	case !opts.IDFirst:
		cols = []string{"Topic", "Tag", "Status", "Resp", "ID"}
	}

	widths := make(map[string]int, len(cols))
	for _, col := range cols {
		widths[col] = len(col)
		for _, r := range rows {
			if len(r[col]) > widths[col] {
				widths[col] = len(r[col])
			}
		}
	}

	formatRow := func(r map[string]string) string {
		cells := make([]string, len(cols))
		for i, col := range cols {
			cells[i] = fmt.Sprintf("%-*s", widths[col], r[col])
		}
		return strings.Join(cells, " | ")
	}

	header := make(map[string]string, len(cols))
	total := 0
	for _, col := range cols {
		header[col] = col
		total += widths[col]
	}

	out := []string{formatRow(header), strings.Repeat("-", total)}
	for _, r := range rows {
		out = append(out, formatRow(r))
	}
	return strings.Join(out, "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
