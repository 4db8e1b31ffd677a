package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Query is a parsed structural query.
type Query struct {
	// Rooted queries start with a single / and match their first step
	// against the root node itself.
	Rooted bool
	Steps  []Step
}

// Step selects nodes matching a tag from its axis, then narrows the
// matches with predicates.
type Step struct {
	Descendant bool   // introduced by //: search the whole subtree
	Tag        string // "*" matches any tag
	Preds      []Pred
}

// PredKind discriminates predicate forms.
type PredKind int

const (
	// AttrEq matches nodes whose attribute Key equals Value.
	AttrEq PredKind = iota + 1
	// AttrPresent matches nodes carrying attribute Key.
	AttrPresent
	// Position keeps the Pos-th match (1-based) within one context.
	Position
)

// Pred is one bracketed condition on a step.
type Pred struct {
	Kind  PredKind
	Key   string
	Value string
	Pos   int
}

var stepTagPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.-]*$`)

// Parse parses a structural query. Errors wrap ErrSyntax.
func Parse(s string) (*Query, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrSyntax)
	}
	q := &Query{}
	rest := s
	descendant := false
	switch {
	case strings.HasPrefix(rest, "//"):
		descendant = true
		rest = rest[2:]
	case strings.HasPrefix(rest, "/"):
		q.Rooted = true
		rest = rest[1:]
	}
	for {
		step, tail, err := parseStep(rest, s)
		if err != nil {
			return nil, err
		}
		step.Descendant = descendant
		q.Steps = append(q.Steps, step)
		if tail == "" {
			return q, nil
		}
		switch {
		case strings.HasPrefix(tail, "//"):
			descendant = true
			rest = tail[2:]
		case strings.HasPrefix(tail, "/"):
			descendant = false
			rest = tail[1:]
		default:
			return nil, fmt.Errorf("%w: unexpected %q in %q", ErrSyntax, tail, s)
		}
	}
}

// parseStep consumes one tag plus its predicates, returning the remainder
// starting at the next separator.
func parseStep(s, whole string) (Step, string, error) {
	end := strings.IndexAny(s, "/[")
	tagEnd := end
	if tagEnd < 0 {
		tagEnd = len(s)
	}
	tag := s[:tagEnd]
	if tag == "" {
		return Step{}, "", fmt.Errorf("%w: empty step in %q", ErrSyntax, whole)
	}
	if tag != "*" && !stepTagPattern.MatchString(tag) {
		return Step{}, "", fmt.Errorf("%w: bad tag %q in %q", ErrSyntax, tag, whole)
	}
	step := Step{Tag: tag}
	rest := s[tagEnd:]
	for strings.HasPrefix(rest, "[") {
		pred, tail, err := parsePred(rest, whole)
		if err != nil {
			return Step{}, "", err
		}
		step.Preds = append(step.Preds, pred)
		rest = tail
	}
	return step, rest, nil
}

// parsePred consumes one [...] predicate, with rest positioned at the
// opening bracket.
func parsePred(s, whole string) (Pred, string, error) {
	rest := s[1:]
	if rest == "" {
		return Pred{}, "", fmt.Errorf("%w: unterminated predicate in %q", ErrSyntax, whole)
	}
	if rest[0] == '@' {
		rest = rest[1:]
		nameEnd := strings.IndexAny(rest, "=]")
		if nameEnd < 0 {
			return Pred{}, "", fmt.Errorf("%w: unterminated predicate in %q", ErrSyntax, whole)
		}
		name := rest[:nameEnd]
		if name == "" || !stepTagPattern.MatchString(name) {
			return Pred{}, "", fmt.Errorf("%w: bad attribute name %q in %q", ErrSyntax, name, whole)
		}
		if rest[nameEnd] == ']' {
			return Pred{Kind: AttrPresent, Key: name}, rest[nameEnd+1:], nil
		}
		rest = rest[nameEnd+1:]
		if rest == "" || (rest[0] != '\'' && rest[0] != '"') {
			return Pred{}, "", fmt.Errorf("%w: attribute value must be quoted in %q", ErrSyntax, whole)
		}
		quote := rest[0]
		valEnd := strings.IndexByte(rest[1:], quote)
		if valEnd < 0 {
			return Pred{}, "", fmt.Errorf("%w: unterminated string in %q", ErrSyntax, whole)
		}
		value := rest[1 : 1+valEnd]
		rest = rest[1+valEnd+1:]
		if !strings.HasPrefix(rest, "]") {
			return Pred{}, "", fmt.Errorf("%w: unterminated predicate in %q", ErrSyntax, whole)
		}
		return Pred{Kind: AttrEq, Key: name, Value: value}, rest[1:], nil
	}

	numEnd := strings.IndexByte(rest, ']')
	if numEnd < 0 {
		return Pred{}, "", fmt.Errorf("%w: unterminated predicate in %q", ErrSyntax, whole)
	}
	pos, err := strconv.Atoi(rest[:numEnd])
	if err != nil || pos < 1 {
		return Pred{}, "", fmt.Errorf("%w: bad predicate %q in %q", ErrSyntax, rest[:numEnd], whole)
	}
	return Pred{Kind: Position, Pos: pos}, rest[numEnd+1:], nil
}

// String renders the query back to its textual form.
func (q *Query) String() string {
	var b strings.Builder
	for i, step := range q.Steps {
		switch {
		case step.Descendant:
			b.WriteString("//")
		case i > 0 || q.Rooted:
			b.WriteString("/")
		}
		b.WriteString(step.Tag)
		for _, p := range step.Preds {
			switch p.Kind {
			case AttrEq:
				fmt.Fprintf(&b, "[@%s='%s']", p.Key, p.Value)
			case AttrPresent:
				fmt.Fprintf(&b, "[@%s]", p.Key)
			case Position:
				fmt.Fprintf(&b, "[%d]", p.Pos)
			}
		}
	}
	return b.String()
}
