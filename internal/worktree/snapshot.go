package worktree

// Snapshot is the set of known relative paths in the working copy,
// loaded once per attempt and mutated in place as chunks add and
// delete files, so later chunks in the same attempt see an up-to-date
// view. It is never persisted beyond the attempt.
type Snapshot struct {
	paths map[string]struct{}
}

// NewSnapshot loads the current path set from the tree
func NewSnapshot(tree Tree) (*Snapshot, error) {
	paths, err := tree.Paths()
	if err != nil {
		return nil, err
	}
	s := &Snapshot{paths: make(map[string]struct{}, len(paths))}
	for _, path := range paths {
		s.paths[path] = struct{}{}
	}
	return s, nil
}

// Has reports whether path is present in the snapshot
func (s *Snapshot) Has(path string) bool {
	_, ok := s.paths[path]
	return ok
}

// Add records a newly created path
func (s *Snapshot) Add(path string) {
	s.paths[path] = struct{}{}
}

// Delete removes a path from the snapshot
func (s *Snapshot) Delete(path string) {
	delete(s.paths, path)
}

// Len returns the number of known paths
func (s *Snapshot) Len() int {
	return len(s.paths)
}
