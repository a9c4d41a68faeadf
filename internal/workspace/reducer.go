package workspace

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/rahul/taskforge/internal/plan"
)

// Tool names the reducer understands. Results from any other tool leave the
// manifest untouched.
const (
	ToolCreateFile     = "create_file"
	ToolEditFile       = "edit_file"
	ToolDeleteFile     = "delete_file"
	ToolReadFile       = "read_file"
	ToolListFiles      = "list_files"
	ToolRunCommand     = "run_command"
	ToolInstallPackage = "install_package"
	ToolGenerateImage  = "generate_image"
	ToolCompleteStep   = "complete_step"
	ToolSearchWeb      = "search_web"
	ToolFetchWebpage   = "fetch_webpage"
	ToolPreviewSite    = "preview_site"
)

// Reduce applies a batch of tool results to a manifest and returns the new
// manifest. It is pure (the input is not mutated) and idempotent: applying
// the same batch twice yields the same manifest. Duplicate suppression is
// keyed by path for creates and images, by file id for edits and deletes,
// by package name for installs, and by result id for command outputs.
func Reduce(m Manifest, results []plan.ToolResult) Manifest {
	out := m.Clone()
	for _, r := range results {
		if !r.Success {
			continue
		}
		switch r.Tool {
		case ToolCreateFile:
			applyCreate(&out, r)
		case ToolEditFile:
			applyEdit(&out, r)
		case ToolDeleteFile:
			applyDelete(&out, r)
		case ToolInstallPackage:
			applyInstall(&out, r)
		case ToolRunCommand:
			applyCommand(&out, r)
		case ToolGenerateImage:
			applyImage(&out, r)
		}
	}
	return out
}

// Apply folds results into the snapshot in place, through Reduce.
func (s *Snapshot) Apply(results []plan.ToolResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = Reduce(s.m, results)
}

type fileArgs struct {
	Path    string `json:"path"`
	FileID  string `json:"file_id"`
	Content string `json:"content"`
}

type filePayload struct {
	FileID string `json:"file_id"`
	Path   string `json:"path"`
	Output string `json:"output"`
}

func decode(raw string, v any) bool {
	return json.Unmarshal([]byte(raw), v) == nil
}

func applyCreate(m *Manifest, r plan.ToolResult) {
	var args fileArgs
	if !decode(r.Args, &args) || args.Path == "" {
		return
	}
	// First writer wins: a duplicate path is ignored.
	if m.FileByPath(args.Path) != nil {
		return
	}
	var p filePayload
	id := ""
	if decode(r.Result, &p) {
		id = p.FileID
	}
	if id == "" {
		id = uuid.New().String()
	}
	m.Files = append(m.Files, File{ID: id, Path: args.Path, Content: args.Content})
}

func applyEdit(m *Manifest, r plan.ToolResult) {
	var args fileArgs
	if !decode(r.Args, &args) {
		return
	}
	f := m.FileByID(args.FileID)
	if f == nil {
		return // unknown id is a no-op
	}
	f.Content = args.Content
	if args.Path != "" {
		f.Path = args.Path
	}
}

func applyDelete(m *Manifest, r plan.ToolResult) {
	var args fileArgs
	if !decode(r.Args, &args) {
		return
	}
	for i := range m.Files {
		if m.Files[i].ID == args.FileID {
			m.Files = append(m.Files[:i], m.Files[i+1:]...)
			return
		}
	}
}

func applyInstall(m *Manifest, r plan.ToolResult) {
	var args struct {
		Name string `json:"name"`
	}
	if !decode(r.Args, &args) || args.Name == "" {
		return
	}
	for _, p := range m.Packages {
		if p == args.Name {
			return
		}
	}
	m.Packages = append(m.Packages, args.Name)
}

func applyCommand(m *Manifest, r plan.ToolResult) {
	for _, c := range m.Commands {
		if c.ResultID == r.ID {
			return
		}
	}
	var args struct {
		Command string `json:"command"`
	}
	_ = json.Unmarshal([]byte(r.Args), &args)
	var p filePayload
	output := r.Result
	if decode(r.Result, &p) && p.Output != "" {
		output = p.Output
	}
	m.Commands = append(m.Commands, CommandOutput{ResultID: r.ID, Command: args.Command, Output: output})
}

func applyImage(m *Manifest, r plan.ToolResult) {
	var p filePayload
	if !decode(r.Result, &p) || p.Path == "" {
		return
	}
	// An existing file at the conventional path means the image was already
	// synthesized; skip instead of overwriting.
	if m.FileByPath(p.Path) != nil {
		return
	}
	id := p.FileID
	if id == "" {
		id = uuid.New().String()
	}
	var args struct {
		Prompt string `json:"prompt"`
	}
	_ = json.Unmarshal([]byte(r.Args), &args)
	m.Files = append(m.Files, File{ID: id, Path: p.Path, Content: "generated image: " + args.Prompt})
	for _, existing := range m.Images {
		if existing == p.Path {
			return
		}
	}
	m.Images = append(m.Images, p.Path)
}

// ImagePath derives the conventional path an image for the given prompt is
// synthesized at.
func ImagePath(prompt string) string {
	slug := strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			return c
		case c >= 'A' && c <= 'Z':
			return c + ('a' - 'A')
		case c == ' ', c == '-', c == '_':
			return '-'
		default:
			return -1
		}
	}, strings.TrimSpace(prompt))
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	if len(slug) > 48 {
		slug = slug[:48]
	}
	if slug == "" {
		slug = "image"
	}
	return "assets/" + slug + ".png"
}
