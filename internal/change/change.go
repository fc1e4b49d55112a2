package change

// Mode describes the intent of a run
type Mode string

const (
	ModeFix     Mode = "FIX"
	ModeFeature Mode = "FEATURE"
	ModeUpgrade Mode = "UPGRADE"
)

// Representation describes how a candidate change is expressed
type Representation string

const (
	RepPatch Representation = "patch"
	RepFiles Representation = "files"
)

// Kind tags the payload shape of a Candidate
type Kind string

const (
	KindPatch Kind = "patch"
	KindFiles Kind = "files"
)

// FileEntry is one full file body in a files-shaped candidate
type FileEntry struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Candidate is a proposed change received from the generator.
// Exactly one of Patch or Entries is meaningful, selected by Kind.
// A Candidate is immutable once received and discarded after the
// attempt that consumed it.
type Candidate struct {
	Kind    Kind
	Patch   string
	Entries []FileEntry
}

// IsEmpty reports whether the candidate carries no usable payload
func (c *Candidate) IsEmpty() bool {
	switch c.Kind {
	case KindPatch:
		return c.Patch == ""
	case KindFiles:
		return len(c.Entries) == 0
	}
	return true
}
