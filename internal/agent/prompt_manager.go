package agent

import (
	"fmt"
	"io/ioutil"
	"log"
	"path/filepath"
	"sort"
	"strings"
)

type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// reserved prompt files loaded individually, never merged into the
// executor prompt.
var reservedPrompts = map[string]bool{
	"planner.md":  true,
	"verifier.md": true,
}

// GetExecutorPrompt assembles the step executor's system prompt from the
// markdown files in the prompts directory.
func (pm *PromptManager) GetExecutorPrompt() (string, error) {
	files, err := ioutil.ReadDir(pm.Directory)
	if err != nil {
		return "", fmt.Errorf("failed to read prompts directory: %v", err)
	}

	var contents []string

	// Sort files to ensure deterministic prompt order:
	// identity, capabilities, directive, user
	order := map[string]int{
		"identity.md":           1,
		"capabilities.md":       2,
		"executor_directive.md": 3,
		"user.md":               4,
	}

	sort.Slice(files, func(i, j int) bool {
		oi, okI := order[files[i].Name()]
		oj, okJ := order[files[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return files[i].Name() < files[j].Name()
	})

	for _, f := range files {
		if !f.IsDir() && strings.HasSuffix(f.Name(), ".md") && !reservedPrompts[f.Name()] {
			path := filepath.Join(pm.Directory, f.Name())
			data, err := ioutil.ReadFile(path)
			if err != nil {
				log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
				continue
			}
			contents = append(contents, string(data))
		}
	}

	if len(contents) == 0 {
		return "", fmt.Errorf("no prompt files found in %s", pm.Directory)
	}

	return strings.Join(contents, "\n\n---\n\n"), nil
}

// GetPlannerPrompt loads the strategic planner's system prompt.
func (pm *PromptManager) GetPlannerPrompt() (string, error) {
	path := filepath.Join(pm.Directory, "planner.md")
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read planner prompt: %v", err)
	}
	return string(data), nil
}

// GetVerifierPrompt loads the outcome verifier's system prompt.
func (pm *PromptManager) GetVerifierPrompt() (string, error) {
	path := filepath.Join(pm.Directory, "verifier.md")
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read verifier prompt: %v", err)
	}
	return string(data), nil
}
