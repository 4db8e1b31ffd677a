package core

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

const xmlHeader = "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"

// EncodeXML serializes the reachable tree as indented XML with a
// declaration header and attributes in sorted key order. The output is
// deterministic for a given tree.
func EncodeXML(t *Tree) []byte {
	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	encodeNode(&buf, t, t.Root, 0)
	return buf.Bytes()
}

func encodeNode(buf *bytes.Buffer, t *Tree, id NodeID, depth int) {
	n := &t.Nodes[id]
	indent := strings.Repeat("  ", depth)
	buf.WriteString(indent)
	buf.WriteByte('<')
	buf.WriteString(n.Tag)
	for _, k := range sortedKeys(n.Attrs) {
		buf.WriteByte(' ')
		buf.WriteString(k)
		buf.WriteString(`="`)
		xml.EscapeText(buf, []byte(n.Attrs[k]))
		buf.WriteByte('"')
	}
	switch {
	case len(n.Children) == 0 && n.Text == "":
		buf.WriteString("/>\n")
	case len(n.Children) == 0:
		buf.WriteByte('>')
		xml.EscapeText(buf, []byte(n.Text))
		buf.WriteString("</")
		buf.WriteString(n.Tag)
		buf.WriteString(">\n")
	default:
		buf.WriteByte('>')
		if n.Text != "" {
			xml.EscapeText(buf, []byte(n.Text))
		}
		buf.WriteByte('\n')
		for _, c := range n.Children {
			encodeNode(buf, t, c, depth+1)
		}
		buf.WriteString(indent)
		buf.WriteString("</")
		buf.WriteString(n.Tag)
		buf.WriteString(">\n")
	}
}

func sortedKeys(attrs map[string]string) []string {
	if len(attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// decodeFrame tracks one open element while decoding.
type decodeFrame struct {
	id       NodeID
	depth    int
	sawChild bool
	text     strings.Builder
}

// DecodeXML parses document bytes into a tree. Comments and processing
// instructions are dropped. Whitespace-only text is treated as empty, and
// the single indentation run EncodeXML places before a first child is
// stripped back out of mixed-content text.
func DecodeXML(data []byte) (*Tree, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		tree  *Tree
		stack []*decodeFrame
	)

	finish := func(f *decodeFrame, hasChildren bool) {
		if f.sawChild {
			return
		}
		text := f.text.String()
		if hasChildren {
			text = strings.TrimSuffix(text, "\n"+strings.Repeat("  ", f.depth+1))
		}
		if strings.TrimSpace(text) == "" {
			text = ""
		}
		tree.Nodes[f.id].Text = text
		f.sawChild = true
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch tk := tok.(type) {
		case xml.StartElement:
			if tree == nil {
				tree = &Tree{
					Nodes: []Node{{Tag: tk.Name.Local, Parent: NoNode}},
					Root:  0,
				}
				setAttrs(tree, 0, tk.Attr)
				stack = append(stack, &decodeFrame{id: 0})
				continue
			}
			if len(stack) == 0 {
				return nil, fmt.Errorf("multiple root elements")
			}
			parent := stack[len(stack)-1]
			finish(parent, true)
			id := tree.AppendChild(parent.id, Node{Tag: tk.Name.Local})
			setAttrs(tree, id, tk.Attr)
			stack = append(stack, &decodeFrame{id: id, depth: len(stack)})
		case xml.EndElement:
			f := stack[len(stack)-1]
			finish(f, false)
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			f := stack[len(stack)-1]
			if !f.sawChild {
				f.text.Write(tk)
			}
		}
	}
	if tree == nil {
		return nil, fmt.Errorf("no root element")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unexpected end of document")
	}
	return tree, nil
}

func setAttrs(t *Tree, id NodeID, attrs []xml.Attr) {
	for _, a := range attrs {
		t.SetAttr(id, a.Name.Local, a.Value)
	}
}
