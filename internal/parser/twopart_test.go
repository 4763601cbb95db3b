package parser

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/agent-builder/pages-builder/internal/fileset"
)

func TestParseTwoPart(t *testing.T) {
	data := ReadmeData{Task: "todo", Brief: "todo app", Checks: []string{"has add button"}, Round: 1}

	tests := []struct {
		name string
		raw  string
		want fileset.FileSet
	}{
		{
			name: "separator_without_wrapper",
			raw:  "<html>ok</html>\n---README.md---\n# Hi",
			want: fileset.FileSet{"index.html": "<html>ok</html>", "README.md": "# Hi"},
		},
		{
			name: "outer_wrapper_with_language_tag",
			raw:  "```html\n<html>ok</html>\n---README.md---\n# Hi\n```",
			want: fileset.FileSet{"index.html": "<html>ok</html>", "README.md": "# Hi"},
		},
		{
			name: "bare_fence_followed_by_language_word",
			raw:  "Sure!\n```\nhtml\n<html>ok</html>\n---README.md---\n# Hi\n```\nEnjoy.",
			want: fileset.FileSet{"index.html": "<html>ok</html>", "README.md": "# Hi"},
		},
		{
			name: "each_part_fenced",
			raw:  "```html\n<html>ok</html>\n```\n---README.md---\n```markdown\n# Hi\n```",
			want: fileset.FileSet{"index.html": "<html>ok</html>", "README.md": "# Hi"},
		},
		{
			name: "separator_after_wrapped_html",
			raw:  "```html\n<html>ok</html>\n```\n---README.md---\n# Hi",
			want: fileset.FileSet{"index.html": "<html>ok</html>", "README.md": "# Hi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseTwoPart(tt.raw, data)
			if diff := cmp.Diff(tt.want, result.Files); diff != "" {
				t.Errorf("files mismatch (-want +got):\n%s", diff)
			}
			assert.False(t, result.Fallback)
		})
	}
}

func TestParseTwoPart_PartsRecoverInput(t *testing.T) {
	inputs := []string{
		"<html>ok</html>\n---README.md---\n# Hi",
		"  <p>a</p>\n\n---README.md---\n\n## Title\nbody\n",
		"<main></main>\n---README.md---\n",
	}

	for _, raw := range inputs {
		result := ParseTwoPart(raw, ReadmeData{})
		require.Len(t, result.Files, 2)

		joined := result.Files[EntryPoint] + "\n" + Separator + "\n" + result.Files[ReadmePath]
		assert.Equal(t, normalizeSpace(raw), normalizeSpace(joined))
	}
}

func TestParseTwoPart_MissingSeparatorSynthesizesReadme(t *testing.T) {
	data := ReadmeData{
		Task:   "captcha-solver",
		Brief:  "Solve captchas passed via ?url=",
		Checks: []string{"page shows the image", "solution appears within 15 seconds"},
		Round:  2,
	}

	result := ParseTwoPart("```html\n<html><body>solver</body></html>\n```", data)

	require.Len(t, result.Files, 2)
	assert.True(t, result.Fallback)
	assert.Equal(t, "<html><body>solver</body></html>", result.Files[EntryPoint])

	readme := result.Files[ReadmePath]
	assert.Contains(t, readme, data.Brief)
	lines := strings.Split(readme, "\n")
	for _, check := range data.Checks {
		assert.Contains(t, lines, "- "+check)
	}
	assert.Contains(t, readme, "round 2")
}

func TestRenderReadme_DefaultTitle(t *testing.T) {
	readme := RenderReadme(ReadmeData{Brief: "b", Round: 1})
	assert.True(t, strings.HasPrefix(readme, "# Generated site\n"))
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
