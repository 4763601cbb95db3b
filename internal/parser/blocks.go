package parser

import (
	"regexp"
	"slices"
	"strings"

	"github.com/bizmatters/agent-builder/pages-builder/internal/fileset"
)

// headerPattern matches "```index.html", "```filename index.html" and
// "```filename\nindex.html". Candidates still go through isFilePath.
var headerPattern = regexp.MustCompile("(?m)^```[ \\t]*(?:filename(?:[ \\t]+|[ \\t]*\\n[ \\t]*))?([A-Za-z0-9_.\\-]+(?:/[A-Za-z0-9_.\\-]+)?)[ \\t]*$")

var extensionless = map[string]bool{
	"LICENSE":    true,
	"Makefile":   true,
	"Dockerfile": true,
	"CNAME":      true,
	"Procfile":   true,
	"Gemfile":    true,
}

// isFilePath rejects language tags such as "html" or "js" so that an inner
// code fence is never taken for a new file.
func isFilePath(p string) bool {
	for _, segment := range strings.Split(p, "/") {
		if segment == "." || segment == ".." || segment == "" {
			return false
		}
	}
	base := p[strings.LastIndex(p, "/")+1:]
	return strings.Contains(base, ".") || extensionless[base]
}

type header struct {
	start int // offset of the opening fence
	body  int // offset of the first content byte
	path  string
}

func findHeaders(text string) []header {
	var headers []header
	for _, m := range headerPattern.FindAllStringSubmatchIndex(text, -1) {
		p := text[m[2]:m[3]]
		if !isFilePath(p) {
			continue
		}
		body := m[1]
		if body < len(text) && text[body] == '\n' {
			body++
		}
		headers = append(headers, header{start: m[0], body: body, path: p})
	}
	return headers
}

// ParseBlocks splits raw into fenced file blocks. A body runs until the next
// header; its closing fence line and anything after it are dropped. A body
// that still contains the fence marker is kept whole and flagged. A path
// repeated in a later block keeps the later content and is reported in
// Duplicates. Without any block the whole trimmed text becomes EntryPoint.
func ParseBlocks(raw string) Result {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	headers := findHeaders(text)

	if len(headers) == 0 {
		return Result{
			Files:    fileset.FileSet{EntryPoint: strings.TrimSpace(raw)},
			Fallback: true,
		}
	}

	result := Result{Files: fileset.FileSet{}}
	for i, h := range headers {
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1].start
		}
		if h.body > end {
			h.body = end
		}

		content := stripClosingFence(text[h.body:end])
		block := Block{
			Path:    h.path,
			Content: strings.TrimSpace(content),
			Nested:  strings.Contains(content, FenceMarker),
		}

		result.Blocks = append(result.Blocks, block)
		if _, seen := result.Files[block.Path]; seen && !slices.Contains(result.Duplicates, block.Path) {
			result.Duplicates = append(result.Duplicates, block.Path)
		}
		result.Files[block.Path] = block.Content
		if block.Nested {
			result.Flagged = append(result.Flagged, block.Path)
		}
	}

	return result
}

// stripClosingFence cuts body at its last line that consists of the fence
// marker alone. Bodies without such a line are returned unchanged.
func stripClosingFence(body string) string {
	lines := strings.Split(body, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == FenceMarker {
			return strings.Join(lines[:i], "\n")
		}
	}
	return body
}
