// Package publish pushes a FileSet to a GitHub repository served by GitHub
// Pages and reads back what is currently published.
package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/bizmatters/agent-builder/pages-builder/internal/fileset"
	"github.com/bizmatters/agent-builder/pages-builder/internal/parser"
)

// LicensePath is the file every published site carries.
const LicensePath = "LICENSE"

// HelloWorldPage is published when the generated set has no HTML at all.
const HelloWorldPage = "<!DOCTYPE html><html><body><h1>Hello World</h1></body></html>"

// MITLicense is the license text added when the generated set has none.
const MITLicense = `MIT License

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
`

// Deployment describes a published round.
type Deployment struct {
	RepoURL   string `json:"repo_url"`
	PagesURL  string `json:"pages_url"`
	CommitSHA string `json:"commit_sha"`
}

// Publisher publishes a task's files and reads back the current tree.
type Publisher interface {
	Publish(ctx context.Context, task string, files fileset.FileSet, message string) (Deployment, error)
	CurrentFiles(ctx context.Context, task string) (fileset.FileSet, error)
}

// EnsureRequired returns a copy of files that has an index.html entry point
// and a LICENSE. A missing index.html is copied from the first HTML file in
// path order, or replaced by a placeholder page.
func EnsureRequired(files fileset.FileSet) fileset.FileSet {
	out := files.Clone()

	if _, ok := out[parser.EntryPoint]; !ok {
		page := HelloWorldPage
		for _, p := range out.Paths() {
			if strings.HasSuffix(strings.ToLower(p), ".html") {
				page = out[p]
				break
			}
		}
		out[parser.EntryPoint] = page
	}

	if _, ok := out[LicensePath]; !ok {
		out[LicensePath] = MITLicense
	}

	return out
}

// RepoName maps a task identifier to a repository name.
func RepoName(task string) string {
	return strings.ReplaceAll(strings.TrimSpace(task), " ", "-")
}

// CommitMessage formats the commit message of a round.
func CommitMessage(round int, brief string) string {
	runes := []rune(strings.TrimSpace(brief))
	if len(runes) > 60 {
		runes = runes[:60]
	}
	return fmt.Sprintf("Round %d: %s", round, string(runes))
}
