package worktree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Tree abstracts read/write access to the checked-out working copy.
// Paths are always relative, slash-separated.
type Tree interface {
	Read(path string) (string, bool)
	Write(path, content string) error
	Remove(path string) error
	Paths() ([]string, error)
}

// DirTree is a Tree rooted at a directory on disk
type DirTree struct {
	root string
}

// NewDirTree creates a tree rooted at root
func NewDirTree(root string) (*DirTree, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid tree root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("tree root not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tree root %s is not a directory", abs)
	}
	return &DirTree{root: abs}, nil
}

// Root returns the absolute root directory of the tree
func (d *DirTree) Root() string {
	return d.root
}

// resolve maps a relative path inside the tree, rejecting escapes
func (d *DirTree) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("path %q escapes the working tree", path)
	}
	return filepath.Join(d.root, clean), nil
}

// Read returns the file content, or false when the path is absent
func (d *DirTree) Read(path string) (string, bool) {
	full, err := d.resolve(path)
	if err != nil {
		return "", false
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Write stores content at path, creating parent directories as needed
func (d *DirTree) Write(path, content string) error {
	full, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Remove deletes the file at path. Removing an absent path is an error.
func (d *DirTree) Remove(path string) error {
	full, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// Paths walks the tree and returns all known relative file paths,
// skipping hidden directories, vendor and node_modules
func (d *DirTree) Paths() ([]string, error) {
	var paths []string

	err := filepath.Walk(d.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			name := info.Name()
			if path != d.root && (strings.HasPrefix(name, ".") || name == "vendor" || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})

	return paths, err
}
