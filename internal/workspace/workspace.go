// Package workspace manages the per-task scratch directory a round works in.
//
// Layout under the scratch root:
//
//	<scratch>/<task-key>/site/         parsed files, written at the publish boundary
//	<scratch>/<task-key>/attachments/  downloaded attachments
//
// Workspaces are keyed by task and are not locked. Two concurrent requests for
// the same task share a directory.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bizmatters/agent-builder/pages-builder/internal/fileset"
)

// ErrInvalidTask is returned when a task identifier cannot name a directory.
var ErrInvalidTask = errors.New("invalid task identifier")

const (
	siteDir        = "site"
	attachmentsDir = "attachments"
)

// Workspace is the working context of one round.
type Workspace struct {
	Task  string
	Round int
	root  string
}

// Key maps a task identifier to its directory and repository name.
func Key(task string) (string, error) {
	key := strings.ReplaceAll(strings.TrimSpace(task), " ", "-")
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTask, task)
	}
	return key, nil
}

// Open prepares the workspace for a round. Round 1 starts from an empty
// directory; later rounds keep what earlier rounds left behind.
func Open(scratchDir, task string, round int) (*Workspace, error) {
	key, err := Key(task)
	if err != nil {
		return nil, err
	}

	root := filepath.Join(scratchDir, key)
	if round <= 1 {
		if err := os.RemoveAll(root); err != nil {
			return nil, fmt.Errorf("failed to clear workspace: %w", err)
		}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	return &Workspace{Task: task, Round: round, root: root}, nil
}

// Root returns the workspace directory.
func (w *Workspace) Root() string { return w.root }

// SiteDir returns the directory parsed files are written to.
func (w *Workspace) SiteDir() string { return filepath.Join(w.root, siteDir) }

// AttachmentsDir returns the directory attachments are stored in.
func (w *Workspace) AttachmentsDir() string { return filepath.Join(w.root, attachmentsDir) }

// WriteSite persists files under SiteDir.
func (w *Workspace) WriteSite(files fileset.FileSet) error {
	return fileset.WriteDir(w.SiteDir(), files)
}

// ReadSite returns the files a previous round left in SiteDir, skipping hidden
// paths. A missing directory yields an empty set.
func (w *Workspace) ReadSite() (fileset.FileSet, error) {
	return fileset.ReadDir(w.SiteDir())
}

// SaveAttachment stores data under AttachmentsDir and returns the FileSet
// path it should be published at.
func (w *Workspace) SaveAttachment(name string, data []byte) (string, error) {
	clean, err := fileset.CleanPath(filepath.ToSlash(filepath.Base(name)))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.AttachmentsDir(), 0o755); err != nil {
		return "", fmt.Errorf("failed to create attachments dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.AttachmentsDir(), clean), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write attachment %s: %w", clean, err)
	}
	return attachmentsDir + "/" + clean, nil
}
