package prompt

import (
	"path"
	"sort"
	"strings"

	"github.com/bizmatters/agent-builder/pages-builder/internal/fileset"
	"github.com/bizmatters/agent-builder/pages-builder/internal/parser"
)

const (
	// PrimaryCap bounds index.html and README.md in round-2 context.
	PrimaryCap = 2000
	// OtherCap bounds every other allow-listed file.
	OtherCap = 1000
)

var textExtensions = map[string]bool{
	".html": true,
	".htm":  true,
	".css":  true,
	".js":   true,
	".mjs":  true,
	".json": true,
	".md":   true,
	".txt":  true,
	".svg":  true,
	".csv":  true,
	".xml":  true,
	".yml":  true,
	".yaml": true,
}

// Truncate returns the first n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Excerpt is one previous file as it appears in the context section.
type Excerpt struct {
	Path    string
	Content string
}

// Excerpts selects and truncates previous files: the entry point and README
// first, then allow-listed text files in lexical order. Hidden paths are
// never included.
func Excerpts(previous fileset.FileSet) []Excerpt {
	var out []Excerpt

	for _, p := range []string{parser.EntryPoint, parser.ReadmePath} {
		if content, ok := previous[p]; ok {
			out = append(out, Excerpt{Path: p, Content: Truncate(content, PrimaryCap)})
		}
	}

	var others []string
	for p := range previous {
		if p == parser.EntryPoint || p == parser.ReadmePath || fileset.IsHidden(p) {
			continue
		}
		if textExtensions[strings.ToLower(path.Ext(p))] {
			others = append(others, p)
		}
	}
	sort.Strings(others)

	for _, p := range others {
		out = append(out, Excerpt{Path: p, Content: Truncate(previous[p], OtherCap)})
	}

	return out
}

// Context serialises Excerpts with "=== FILE" headers so the section never
// contains a block header the parser would recognise.
func Context(previous fileset.FileSet) string {
	excerpts := Excerpts(previous)
	if len(excerpts) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, e := range excerpts {
		sb.WriteString("=== FILE: " + e.Path + " ===\n")
		sb.WriteString(e.Content)
		if !strings.HasSuffix(e.Content, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("=== END FILE ===\n\n")
	}
	return sb.String()
}
