package worktree

import (
	"fmt"
	"sort"
)

// MemTree is an in-memory Tree used by tests and for cheap
// snapshot/restore of small working copies
type MemTree struct {
	files map[string]string
}

// NewMemTree creates an empty in-memory tree
func NewMemTree() *MemTree {
	return &MemTree{files: make(map[string]string)}
}

// Read returns the file content, or false when the path is absent
func (m *MemTree) Read(path string) (string, bool) {
	content, ok := m.files[path]
	return content, ok
}

// Write stores content at path
func (m *MemTree) Write(path, content string) error {
	m.files[path] = content
	return nil
}

// Remove deletes the file at path
func (m *MemTree) Remove(path string) error {
	if _, ok := m.files[path]; !ok {
		return fmt.Errorf("failed to remove %s: no such file", path)
	}
	delete(m.files, path)
	return nil
}

// Paths returns all known paths in sorted order
func (m *MemTree) Paths() ([]string, error) {
	paths := make([]string, 0, len(m.files))
	for path := range m.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// Clone returns an independent copy of the tree
func (m *MemTree) Clone() *MemTree {
	clone := NewMemTree()
	for path, content := range m.files {
		clone.files[path] = content
	}
	return clone
}

// RestoreFrom replaces the tree content with that of other
func (m *MemTree) RestoreFrom(other *MemTree) {
	m.files = make(map[string]string, len(other.files))
	for path, content := range other.files {
		m.files[path] = content
	}
}

// Equal reports whether two trees hold identical content
func (m *MemTree) Equal(other *MemTree) bool {
	if len(m.files) != len(other.files) {
		return false
	}
	for path, content := range m.files {
		if otherContent, ok := other.files[path]; !ok || otherContent != content {
			return false
		}
	}
	return true
}
