package parser

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/bizmatters/agent-builder/pages-builder/internal/fileset"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var readmeTemplate = template.Must(template.ParseFS(templatesFS, "templates/readme.md.tmpl"))

var (
	separatorPattern = regexp.MustCompile(`(?m)^[ \t]*` + regexp.QuoteMeta(Separator) + `[ \t]*$`)
	bareWordPattern  = regexp.MustCompile(`^[A-Za-z0-9_+\-]+$`)
)

// ReadmeData populates the synthesized README when the separator is missing.
type ReadmeData struct {
	Task   string
	Brief  string
	Checks []string
	Round  int
}

// ParseTwoPart splits raw into EntryPoint and ReadmePath around the
// Separator line, after removing an outer fence wrapper. Without a separator
// the whole text is the HTML document and the README is rendered from data.
// The result always has exactly two entries.
func ParseTwoPart(raw string, data ReadmeData) Result {
	text := strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))

	if !separatorOutsideWrapper(text) {
		text = unwrapFence(text)
	}

	var html, readme string
	fallback := false
	if loc := separatorPattern.FindStringIndex(text); loc != nil {
		html = trimPartFences(text[:loc[0]])
		readme = trimPartFences(text[loc[1]:])
	} else {
		html = strings.TrimSpace(text)
		readme = RenderReadme(data)
		fallback = true
	}

	return Result{
		Files: fileset.FileSet{
			EntryPoint: html,
			ReadmePath: readme,
		},
		Blocks: []Block{
			{Path: EntryPoint, Content: html},
			{Path: ReadmePath, Content: readme},
		},
		Fallback: fallback,
	}
}

// RenderReadme renders the description file used when the backend omitted one.
func RenderReadme(data ReadmeData) string {
	if data.Task == "" {
		data.Task = "Generated site"
	}

	var buf bytes.Buffer
	if err := readmeTemplate.Execute(&buf, data); err != nil {
		return fmt.Sprintf("# %s\n\n%s\n\n%s\n\nGenerated in round %d.\n",
			data.Task, data.Brief, strings.Join(data.Checks, "\n"), data.Round)
	}
	return buf.String()
}

func isFenceLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), FenceMarker)
}

func fenceLines(lines []string) []int {
	var idx []int
	for i, line := range lines {
		if isFenceLine(line) {
			idx = append(idx, i)
		}
	}
	return idx
}

// separatorOutsideWrapper reports whether the separator sits before the
// first or after the last fence line, in which case the fences wrap the
// individual parts rather than the whole response.
func separatorOutsideWrapper(text string) bool {
	lines := strings.Split(text, "\n")
	fences := fenceLines(lines)
	if len(fences) < 2 {
		return false
	}
	first, last := fences[0], fences[len(fences)-1]
	for i, line := range lines {
		if separatorPattern.MatchString(line) && (i < first || i > last) {
			return true
		}
	}
	return false
}

// unwrapFence keeps the text between the first and the last fence line.
// A language tag on the opening fence is discarded, as is a single bare word
// on the line right after a bare opening fence.
func unwrapFence(text string) string {
	lines := strings.Split(text, "\n")
	fences := fenceLines(lines)
	if len(fences) < 2 {
		return text
	}

	first, last := fences[0], fences[len(fences)-1]
	inner := lines[first+1 : last]

	tag := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[first]), FenceMarker))
	if tag == "" && len(inner) > 0 && bareWordPattern.MatchString(strings.TrimSpace(inner[0])) {
		inner = inner[1:]
	}

	return strings.Join(inner, "\n")
}

// trimPartFences drops a fence line opening or closing a single part.
func trimPartFences(part string) string {
	lines := strings.Split(strings.TrimSpace(part), "\n")
	if len(lines) > 0 && isFenceLine(lines[0]) {
		lines = lines[1:]
	}
	if len(lines) > 0 && isFenceLine(lines[len(lines)-1]) {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
