// Package prompt assembles the instruction text sent to the generation
// backend for one round.
package prompt

import (
	"fmt"
	"strings"

	"github.com/bizmatters/agent-builder/pages-builder/internal/fileset"
	"github.com/bizmatters/agent-builder/pages-builder/internal/parser"
)

// SystemInstruction is sent as the system message of every request.
const SystemInstruction = "You are a helpful web app code generator."

// Request holds everything one round contributes to the prompt.
type Request struct {
	Task          string
	Brief         string
	Checks        []string
	Round         int
	PreviousFiles fileset.FileSet
	Attachments   []string
}

// Prompt is the system/user message pair for the generation backend.
type Prompt struct {
	System string
	User   string
}

// Build dispatches on the deployment's output contract.
func Build(contract parser.Contract, req Request) Prompt {
	if contract == parser.ContractTwoPart {
		return BuildTwoPart(req)
	}
	return BuildBlocks(req)
}

// BuildBlocks asks for any number of path-labelled fenced blocks.
func BuildBlocks(req Request) Prompt {
	var sb strings.Builder
	writeTask(&sb, req)

	fence := parser.FenceMarker
	sb.WriteString("Return code files with filenames in the following format:\n")
	sb.WriteString(fence + "filename\n<path>\n<content>\n" + fence + "\n")
	sb.WriteString("The first line after " + fence + "filename must always be the actual file path (e.g., README.md, index.html, script.js, css/style.css, LICENSE).\n")
	sb.WriteString("Paths may contain at most one directory (css/style.css, not assets/css/style.css), must not start with ./ or /, and use only letters, digits, _, . and -. Every file name needs an extension except LICENSE.\n")
	sb.WriteString("Include at least one HTML file named index.html as the entry point.\n")
	sb.WriteString("Include LICENSE with the MIT License.\n")
	sb.WriteString("Include a professional README.md explaining the project, usage, and license.\n")
	sb.WriteString("Do not include explanations or extra text outside the blocks.\n")
	sb.WriteString("Do not nest " + fence + " inside file content; that sequence ends the file. Use indentation or <pre> for code samples instead.\n")

	writePrevious(&sb, req)

	return Prompt{System: SystemInstruction, User: sb.String()}
}

// BuildTwoPart asks for one self-contained HTML document, the separator
// line, and the README.
func BuildTwoPart(req Request) Prompt {
	var sb strings.Builder
	writeTask(&sb, req)

	sb.WriteString("Return exactly two parts:\n")
	sb.WriteString("1. The complete " + parser.EntryPoint + " with all CSS and JavaScript inline.\n")
	sb.WriteString("2. A line containing only " + parser.Separator + " followed by a professional " + parser.ReadmePath + " explaining the project, usage, and license.\n")
	sb.WriteString("Do not add any other files, explanations, or text outside these two parts.\n")
	sb.WriteString("Do not nest " + parser.FenceMarker + " inside either part.\n")

	writePrevious(&sb, req)

	return Prompt{System: SystemInstruction, User: sb.String()}
}

func writeTask(sb *strings.Builder, req Request) {
	sb.WriteString("Generate a web app for this task. It will be deployed on GitHub Pages and must work from there.\n\n")
	sb.WriteString("Brief:\n")
	sb.WriteString(req.Brief)
	sb.WriteString("\n\n")

	if len(req.Checks) > 0 {
		sb.WriteString("Checks the app must pass:\n")
		for _, check := range req.Checks {
			sb.WriteString("- " + check + "\n")
		}
		sb.WriteString("\n")
	}

	if len(req.Attachments) > 0 {
		sb.WriteString("Attachments published next to the site (reference them by these relative paths):\n")
		for _, name := range req.Attachments {
			sb.WriteString("- attachments/" + name + "\n")
		}
		sb.WriteString("\n")
	}
}

func writePrevious(sb *strings.Builder, req Request) {
	if req.Round < 2 {
		return
	}

	sb.WriteString(fmt.Sprintf("\nThis is round %d: revise the existing app to satisfy the brief and checks above.\n", req.Round))

	ctx := Context(req.PreviousFiles)
	if ctx == "" {
		sb.WriteString("No previous version is available; build the app from scratch.\n")
		return
	}

	sb.WriteString("Keep what already works and return the complete content of every file the new version needs.\n")
	sb.WriteString(fmt.Sprintf("Previous version context (index.html and README.md truncated to %d characters, other files to %d):\n\n", PrimaryCap, OtherCap))
	sb.WriteString(ctx)
}
