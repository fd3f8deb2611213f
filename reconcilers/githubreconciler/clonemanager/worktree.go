/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package clonemanager

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Files gives path-based access to a git worktree. All paths are relative
// to the worktree root and may not escape it. Writes are staged in the index
// as they happen.
type Files struct {
	wt   *gogit.Worktree
	root string
}

// WorktreeFiles binds Files to a worktree.
func WorktreeFiles(wt *gogit.Worktree) *Files {
	return &Files{wt: wt, root: wt.Filesystem.Root()}
}

// validatePath ensures path doesn't escape root and returns its absolute form.
func validatePath(root, p string) (string, error) {
	fullPath := filepath.Join(root, filepath.Clean(p))
	rel, err := filepath.Rel(root, fullPath)
	if err != nil {
		return "", fmt.Errorf("path %q: %w", p, err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes worktree", p)
	}
	return fullPath, nil
}

func (f *Files) rel(p string) (string, error) {
	fullPath, err := validatePath(f.root, p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(f.root, fullPath)
	if err != nil {
		return "", fmt.Errorf("path %q: %w", p, err)
	}
	return filepath.ToSlash(rel), nil
}

// Root returns the absolute worktree directory.
func (f *Files) Root() string {
	return f.root
}

// ReadFile returns the content of p. A missing file yields an error matching
// fs.ErrNotExist.
func (f *Files) ReadFile(p string) ([]byte, error) {
	rel, err := f.rel(p)
	if err != nil {
		return nil, err
	}
	return util.ReadFile(f.wt.Filesystem, rel)
}

// WriteFile replaces the content of p, creating parent directories, and
// stages it.
func (f *Files) WriteFile(p string, data []byte) error {
	rel, err := f.rel(p)
	if err != nil {
		return err
	}
	if dir := path.Dir(rel); dir != "." {
		if err := f.wt.Filesystem.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := util.WriteFile(f.wt.Filesystem, rel, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	if _, err := f.wt.Add(rel); err != nil {
		return fmt.Errorf("staging %s: %w", rel, err)
	}
	return nil
}
