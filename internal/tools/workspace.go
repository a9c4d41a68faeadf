package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rahul/taskforge/internal/workspace"
)

// The file tools operate on the engine's in-memory workspace snapshot, not
// the real filesystem. Mutations are described by the tool's result and only
// take effect when the engine folds the result through the reducer; reads go
// straight to the snapshot so a step can observe an earlier step's output.

type CreateFileTool struct {
	Snapshot *workspace.Snapshot
}

func NewCreateFileTool(snap *workspace.Snapshot) *CreateFileTool {
	return &CreateFileTool{Snapshot: snap}
}

func (t *CreateFileTool) Name() string {
	return workspace.ToolCreateFile
}

func (t *CreateFileTool) Description() string {
	return "Create a new file in the project workspace with the given path and content."
}

func (t *CreateFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The file path relative to the project root (e.g. index.html, css/style.css)",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The full content of the file",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *CreateFileTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.Path == "" {
		return "", fmt.Errorf("path must not be empty")
	}
	if existing, ok := t.Snapshot.FileByPath(args.Path); ok {
		// First writer wins; report the existing file instead of failing
		// so the model can switch to edit_file.
		return payload(map[string]any{
			"file_id": existing.ID,
			"path":    existing.Path,
			"note":    "file already exists, content unchanged; use edit_file to modify it",
		}), nil
	}
	return payload(map[string]any{
		"file_id": uuid.New().String(),
		"path":    args.Path,
	}), nil
}

type EditFileTool struct {
	Snapshot *workspace.Snapshot
}

func NewEditFileTool(snap *workspace.Snapshot) *EditFileTool {
	return &EditFileTool{Snapshot: snap}
}

func (t *EditFileTool) Name() string {
	return workspace.ToolEditFile
}

func (t *EditFileTool) Description() string {
	return "Replace the content (and optionally the path) of an existing workspace file, addressed by its id."
}

func (t *EditFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_id": map[string]any{
				"type":        "string",
				"description": "The id of the file to edit (from create_file or list_files)",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The new full content of the file",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Optional new path to rename the file to",
			},
		},
		"required": []string{"file_id", "content"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		FileID string `json:"file_id"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	f, ok := t.Snapshot.FileByID(args.FileID)
	if !ok {
		return "", fmt.Errorf("no file with id %s", args.FileID)
	}
	return payload(map[string]any{"file_id": f.ID, "path": f.Path}), nil
}

type DeleteFileTool struct {
	Snapshot *workspace.Snapshot
}

func NewDeleteFileTool(snap *workspace.Snapshot) *DeleteFileTool {
	return &DeleteFileTool{Snapshot: snap}
}

func (t *DeleteFileTool) Name() string {
	return workspace.ToolDeleteFile
}

func (t *DeleteFileTool) Description() string {
	return "Delete a workspace file by its id."
}

func (t *DeleteFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_id": map[string]any{
				"type":        "string",
				"description": "The id of the file to delete",
			},
		},
		"required": []string{"file_id"},
	}
}

func (t *DeleteFileTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		FileID string `json:"file_id"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	f, ok := t.Snapshot.FileByID(args.FileID)
	if !ok {
		return "", fmt.Errorf("no file with id %s", args.FileID)
	}
	return payload(map[string]any{"file_id": f.ID, "path": f.Path}), nil
}

type ReadFileTool struct {
	Snapshot *workspace.Snapshot
}

func NewReadFileTool(snap *workspace.Snapshot) *ReadFileTool {
	return &ReadFileTool{Snapshot: snap}
}

func (t *ReadFileTool) Name() string {
	return workspace.ToolReadFile
}

func (t *ReadFileTool) Description() string {
	return "Read the content of a workspace file, addressed by id or path."
}

func (t *ReadFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_id": map[string]any{
				"type":        "string",
				"description": "The id of the file to read",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "The path of the file to read (used when file_id is omitted)",
			},
		},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		FileID string `json:"file_id"`
		Path   string `json:"path"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	var (
		f  workspace.File
		ok bool
	)
	if args.FileID != "" {
		f, ok = t.Snapshot.FileByID(args.FileID)
	} else if args.Path != "" {
		f, ok = t.Snapshot.FileByPath(args.Path)
	} else {
		return "", fmt.Errorf("either file_id or path is required")
	}
	if !ok {
		return "", fmt.Errorf("file not found")
	}
	return f.Content, nil
}

type ListFilesTool struct {
	Snapshot *workspace.Snapshot
}

func NewListFilesTool(snap *workspace.Snapshot) *ListFilesTool {
	return &ListFilesTool{Snapshot: snap}
}

func (t *ListFilesTool) Name() string {
	return workspace.ToolListFiles
}

func (t *ListFilesTool) Description() string {
	return "List all files currently in the project workspace with their ids and sizes."
}

func (t *ListFilesTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, input string) (string, error) {
	m := t.Snapshot.Manifest()
	if len(m.Files) == 0 {
		return "The workspace is empty", nil
	}
	lines := make([]string, 0, len(m.Files))
	for _, f := range m.Files {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%d bytes", f.ID, f.Path, len(f.Content)))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n"), nil
}

func payload(v map[string]any) string {
	data, _ := json.Marshal(v)
	return string(data)
}
