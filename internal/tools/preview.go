package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/rahul/taskforge/internal/workspace"
)

// PreviewSiteTool renders an HTML file from the workspace in a headless
// browser and captures a screenshot. The manifest is materialized into a
// scratch directory first so relative css/js/image references resolve.
type PreviewSiteTool struct {
	Snapshot   *workspace.Snapshot
	ScratchDir string

	mu          sync.Mutex
	allocCtx    context.Context
	browserCtx  context.Context
	allocCancel context.CancelFunc
	browserStop context.CancelFunc
}

func NewPreviewSiteTool(snap *workspace.Snapshot, scratchDir string) *PreviewSiteTool {
	return &PreviewSiteTool{Snapshot: snap, ScratchDir: scratchDir}
}

func (t *PreviewSiteTool) Name() string {
	return workspace.ToolPreviewSite
}

func (t *PreviewSiteTool) Description() string {
	return "Render a workspace HTML file in a headless browser and capture a PNG screenshot to check how it looks."
}

func (t *PreviewSiteTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The workspace path of the HTML file to render (e.g. index.html)",
			},
		},
		"required": []string{"path"},
	}
}

func (t *PreviewSiteTool) initBrowser() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.browserCtx != nil {
		select {
		case <-t.browserCtx.Done():
			t.cleanup()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	t.allocCtx, t.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	t.browserCtx, t.browserStop = chromedp.NewContext(t.allocCtx)

	return chromedp.Run(t.browserCtx)
}

func (t *PreviewSiteTool) cleanup() {
	if t.browserStop != nil {
		t.browserStop()
	}
	if t.allocCancel != nil {
		t.allocCancel()
	}
	t.browserCtx = nil
	t.allocCtx = nil
}

// Close shuts the headless browser down, if one was started.
func (t *PreviewSiteTool) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanup()
}

func (t *PreviewSiteTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if !strings.HasSuffix(args.Path, ".html") && !strings.HasSuffix(args.Path, ".htm") {
		return "", fmt.Errorf("path must point to an HTML file")
	}
	if _, ok := t.Snapshot.FileByPath(args.Path); !ok {
		return "", fmt.Errorf("no workspace file at %s", args.Path)
	}

	stageDir, err := t.materialize()
	if err != nil {
		return "", fmt.Errorf("failed to stage workspace: %v", err)
	}
	defer os.RemoveAll(stageDir)

	if err := t.initBrowser(); err != nil {
		return "", fmt.Errorf("failed to initialize browser: %v", err)
	}

	actionCtx, cancel := context.WithTimeout(t.browserCtx, 60*time.Second)
	defer cancel()

	var shot []byte
	target := "file://" + filepath.Join(stageDir, args.Path)
	err = chromedp.Run(actionCtx,
		chromedp.Navigate(target),
		chromedp.FullScreenshot(&shot, 90),
	)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %v", args.Path, err)
	}

	if err := os.MkdirAll(t.ScratchDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create scratch dir: %v", err)
	}
	outPath := filepath.Join(t.ScratchDir, "preview-"+uuid.New().String()[:8]+".png")
	if err := os.WriteFile(outPath, shot, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %v", err)
	}

	return payload(map[string]any{
		"screenshot": outPath,
		"rendered":   args.Path,
		"bytes":      len(shot),
	}), nil
}

// materialize writes the current manifest into a fresh temp directory.
func (t *PreviewSiteTool) materialize() (string, error) {
	dir, err := os.MkdirTemp("", "taskforge-preview-")
	if err != nil {
		return "", err
	}
	m := t.Snapshot.Manifest()
	for _, f := range m.Files {
		target := filepath.Join(dir, filepath.Clean(f.Path))
		rel, err := filepath.Rel(dir, target)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue // refuse to stage paths escaping the stage dir
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
		if err := os.WriteFile(target, []byte(f.Content), 0644); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	}
	return dir, nil
}
