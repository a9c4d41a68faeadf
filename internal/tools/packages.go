package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rahul/taskforge/internal/workspace"
)

// PackageInstaller resolves a package for the workspace and returns the
// version that was pinned. Like CommandRunner, the backend is injected.
type PackageInstaller func(ctx context.Context, name string) (version string, err error)

// RegistryInstaller delegates installation to the shell package manager.
func RegistryInstaller(runner CommandRunner) PackageInstaller {
	return func(ctx context.Context, name string) (string, error) {
		out, err := runner(ctx, "npm install --save "+name)
		if err != nil {
			return "", err
		}
		return out, nil
	}
}

// SimulatedInstaller acknowledges installs without touching any registry.
// Used when the workspace is purely virtual.
func SimulatedInstaller() PackageInstaller {
	return func(ctx context.Context, name string) (string, error) {
		return "latest", nil
	}
}

type InstallPackageTool struct {
	Installer PackageInstaller
}

func NewInstallPackageTool(installer PackageInstaller) *InstallPackageTool {
	return &InstallPackageTool{Installer: installer}
}

func (t *InstallPackageTool) Name() string {
	return workspace.ToolInstallPackage
}

func (t *InstallPackageTool) Description() string {
	return "Install a dependency package for the project. The package is recorded in the workspace package list."
}

func (t *InstallPackageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "The name of the package to install (e.g. express, tailwindcss)",
			},
		},
		"required": []string{"name"},
	}
}

func (t *InstallPackageTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.Name == "" {
		return "", fmt.Errorf("package name must not be empty")
	}
	version, err := t.Installer(ctx, args.Name)
	if err != nil {
		return "", fmt.Errorf("failed to install %s: %v", args.Name, err)
	}
	return payload(map[string]any{"package": args.Name, "version": version}), nil
}
