package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rahul/taskforge/internal/workspace"
)

// ImageSynthesizer produces image data for a prompt. The default backend is
// a deterministic placeholder; a real generation service can be injected in
// its place.
type ImageSynthesizer func(ctx context.Context, prompt string) (description string, err error)

// PlaceholderSynthesizer fabricates a described placeholder instead of
// calling an image service.
func PlaceholderSynthesizer() ImageSynthesizer {
	return func(ctx context.Context, prompt string) (string, error) {
		return "placeholder image for: " + prompt, nil
	}
}

type GenerateImageTool struct {
	Snapshot    *workspace.Snapshot
	Synthesizer ImageSynthesizer
}

func NewGenerateImageTool(snap *workspace.Snapshot, synth ImageSynthesizer) *GenerateImageTool {
	return &GenerateImageTool{Snapshot: snap, Synthesizer: synth}
}

func (t *GenerateImageTool) Name() string {
	return workspace.ToolGenerateImage
}

func (t *GenerateImageTool) Description() string {
	return "Synthesize an image from a text prompt and add it to the workspace under assets/."
}

func (t *GenerateImageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "A description of the image to generate",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Optional explicit workspace path for the image file",
			},
		},
		"required": []string{"prompt"},
	}
}

func (t *GenerateImageTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Prompt string `json:"prompt"`
		Path   string `json:"path"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.Prompt == "" {
		return "", fmt.Errorf("prompt must not be empty")
	}
	path := args.Path
	if path == "" {
		path = workspace.ImagePath(args.Prompt)
	}
	if existing, ok := t.Snapshot.FileByPath(path); ok {
		return payload(map[string]any{
			"file_id": existing.ID,
			"path":    path,
			"note":    "a file already exists at this path; generation skipped",
		}), nil
	}
	desc, err := t.Synthesizer(ctx, args.Prompt)
	if err != nil {
		return "", fmt.Errorf("image synthesis failed: %v", err)
	}
	return payload(map[string]any{
		"file_id":     uuid.New().String(),
		"path":        path,
		"description": desc,
	}), nil
}
