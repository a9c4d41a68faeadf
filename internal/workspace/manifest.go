package workspace

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// File is one entry in a project's file manifest.
type File struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// CommandOutput is the captured output of one executed command.
type CommandOutput struct {
	ResultID string `json:"result_id"`
	Command  string `json:"command"`
	Output   string `json:"output"`
}

// Manifest is the mutable project workspace: its files plus the side
// outputs accumulated during a run.
type Manifest struct {
	Files    []File          `json:"files"`
	Packages []string        `json:"packages,omitempty"`
	Commands []CommandOutput `json:"commands,omitempty"`
	Images   []string        `json:"images,omitempty"` // paths of generated images
}

// FileByPath returns the first file at path, or nil.
func (m *Manifest) FileByPath(path string) *File {
	for i := range m.Files {
		if m.Files[i].Path == path {
			return &m.Files[i]
		}
	}
	return nil
}

// FileByID returns the file with the given id, or nil.
func (m *Manifest) FileByID(id string) *File {
	for i := range m.Files {
		if m.Files[i].ID == id {
			return &m.Files[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the manifest.
func (m Manifest) Clone() Manifest {
	out := Manifest{
		Files:    append([]File(nil), m.Files...),
		Packages: append([]string(nil), m.Packages...),
		Commands: append([]CommandOutput(nil), m.Commands...),
		Images:   append([]string(nil), m.Images...),
	}
	return out
}

// Summary renders a compact listing of the manifest for prompt context.
func (m *Manifest) Summary() string {
	if len(m.Files) == 0 && len(m.Packages) == 0 {
		return "The workspace is empty."
	}
	var b strings.Builder
	paths := make([]string, 0, len(m.Files))
	for _, f := range m.Files {
		paths = append(paths, fmt.Sprintf("- %s (id: %s, %d bytes)", f.Path, f.ID, len(f.Content)))
	}
	sort.Strings(paths)
	b.WriteString(fmt.Sprintf("Workspace files (%d):\n", len(m.Files)))
	b.WriteString(strings.Join(paths, "\n"))
	if len(m.Packages) > 0 {
		b.WriteString("\nInstalled packages: " + strings.Join(m.Packages, ", "))
	}
	return b.String()
}

// Snapshot wraps a manifest behind a lock so read-tools can observe the
// engine's in-progress state while results are folded in between reads.
type Snapshot struct {
	mu sync.RWMutex
	m  Manifest
}

func NewSnapshot(m Manifest) *Snapshot {
	return &Snapshot{m: m.Clone()}
}

// Reset replaces the snapshot's contents. Called at the start of an
// invocation; the engine serializes invocations so tools never observe a
// reset mid-run.
func (s *Snapshot) Reset(m Manifest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = m.Clone()
}

// Manifest returns a copy of the current manifest.
func (s *Snapshot) Manifest() Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m.Clone()
}

// FileByPath returns a copy of the file at path, if present.
func (s *Snapshot) FileByPath(path string) (File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f := s.m.FileByPath(path); f != nil {
		return *f, true
	}
	return File{}, false
}

// FileByID returns a copy of the file with the given id, if present.
func (s *Snapshot) FileByID(id string) (File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f := s.m.FileByID(id); f != nil {
		return *f, true
	}
	return File{}, false
}
