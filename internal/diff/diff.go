// Package diff compares a remote file with its staged content by line
// presence: a line is added when the staged side has more copies of it than
// the remote side, and removed in the opposite case. Line order is not
// aligned.
package diff

import "strings"

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

func (t LineType) Prefix() string {
	switch t {
	case Addition:
		return "+"
	case Deletion:
		return "-"
	}
	return " "
}

type Line struct {
	Type    LineType
	Content string
}

type Stats struct {
	Additions int
	Deletions int
	Changes   int
}

// DiffResult lists staged lines in order, followed by the remote lines
// that no longer appear.
type DiffResult struct {
	Lines []Line
	Stats Stats
}

// Identical reports whether both sides hold the same lines.
func (r *DiffResult) Identical() bool {
	return r.Stats.Changes == 0
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// Compare diffs oldContent (remote) against newContent (staged).
func Compare(oldContent, newContent string) *DiffResult {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	remaining := make(map[string]int, len(oldLines))
	for _, l := range oldLines {
		remaining[l]++
	}

	result := &DiffResult{}
	for _, l := range newLines {
		if remaining[l] > 0 {
			remaining[l]--
			result.Lines = append(result.Lines, Line{Type: Context, Content: l})
			continue
		}
		result.Lines = append(result.Lines, Line{Type: Addition, Content: l})
		result.Stats.Additions++
	}

	for _, l := range oldLines {
		if remaining[l] > 0 {
			remaining[l]--
			result.Lines = append(result.Lines, Line{Type: Deletion, Content: l})
			result.Stats.Deletions++
		}
	}

	result.Stats.Changes = result.Stats.Additions + result.Stats.Deletions
	return result
}

// Changed returns only the added and removed lines.
func (r *DiffResult) Changed() []Line {
	var out []Line
	for _, l := range r.Lines {
		if l.Type != Context {
			out = append(out, l)
		}
	}
	return out
}
