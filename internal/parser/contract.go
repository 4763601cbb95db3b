// Package parser turns a generation backend's raw text into a FileSet.
//
// Two output contracts exist and a deployment uses exactly one of them:
// ContractBlocks (any number of fenced, path-labelled blocks) and
// ContractTwoPart (one HTML document, a separator line, one README).
package parser

import (
	"fmt"

	"github.com/bizmatters/agent-builder/pages-builder/internal/fileset"
)

// Contract names the output format the backend is instructed to produce.
type Contract string

const (
	ContractBlocks  Contract = "blocks"
	ContractTwoPart Contract = "two-part"
)

const (
	// FenceMarker opens and closes file blocks.
	FenceMarker = "```"
	// EntryPoint is the HTML file served at the site root.
	EntryPoint = "index.html"
	// ReadmePath is the project description file.
	ReadmePath = "README.md"
	// Separator splits the two parts of a ContractTwoPart response.
	Separator = "---README.md---"
)

// ParseContract validates a configured contract name.
func ParseContract(s string) (Contract, error) {
	switch Contract(s) {
	case ContractBlocks, ContractTwoPart:
		return Contract(s), nil
	case "":
		return ContractBlocks, nil
	default:
		return "", fmt.Errorf("unknown output contract %q", s)
	}
}

// Block is one file block found in a response.
type Block struct {
	Path    string
	Content string
	// Nested is set when the fence marker occurs inside the content.
	Nested bool
}

// Result is the outcome of parsing one response. Files always holds at
// least one entry.
type Result struct {
	Files   fileset.FileSet
	Blocks  []Block
	Flagged []string
	// Duplicates lists paths that appeared in more than one block; the last
	// block wins in Files.
	Duplicates []string
	Fallback   bool
}

// FencePolicy decides what a flagged block does to the round.
type FencePolicy string

const (
	// FencePolicyRecover keeps flagged blocks and lets the round continue.
	FencePolicyRecover FencePolicy = "recover"
	// FencePolicyFail aborts the round before anything is published.
	FencePolicyFail FencePolicy = "fail"
)

// ParseFencePolicy validates a configured policy name.
func ParseFencePolicy(s string) (FencePolicy, error) {
	switch FencePolicy(s) {
	case FencePolicyRecover, FencePolicyFail:
		return FencePolicy(s), nil
	case "":
		return FencePolicyRecover, nil
	default:
		return "", fmt.Errorf("unknown nested fence policy %q", s)
	}
}

// Parse runs the parser for contract. data is only used by ContractTwoPart.
func Parse(contract Contract, raw string, data ReadmeData) Result {
	if contract == ContractTwoPart {
		return ParseTwoPart(raw, data)
	}
	return ParseBlocks(raw)
}
