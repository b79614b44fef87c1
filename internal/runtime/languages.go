package runtime

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
)

// Builtins returns the descriptors the engine ships with. Images can be
// overridden through configuration in cmd.
func Builtins() []Descriptor {
	return []Descriptor{
		{
			Language:   execution.LanguagePython,
			Image:      "python:3.12-alpine",
			Workdir:    "/workspace",
			EntryFile:  "main.py",
			RunCommand: []string{"python3", "{main}"},
			Manifest: &ManifestSpec{
				Filename:       "requirements.txt",
				Render:         renderRequirementsTxt,
				InstallCommand: []string{"pip", "install", "--no-cache-dir", "-r", "requirements.txt"},
				Network:        true,
			},
		},
		{
			Language:   execution.LanguageJavaScript,
			Image:      "node:22-alpine",
			Workdir:    "/workspace",
			EntryFile:  "main.js",
			RunCommand: []string{"node", "{main}"},
			Manifest: &ManifestSpec{
				Filename:       "package.json",
				Render:         renderPackageJSON,
				InstallCommand: []string{"npm", "install", "--no-audit", "--no-fund"},
				Network:        true,
			},
		},
		{
			Language:       execution.LanguageJava,
			Image:          "eclipse-temurin:21-jdk-alpine",
			Workdir:        "/workspace",
			EntryFile:      "Main.java",
			CompileCommand: []string{"javac", "{main}"},
			RunCommand:     []string{"java", "{base}"},
		},
		{
			Language:       execution.LanguageCPP,
			Image:          "gcc:14",
			Workdir:        "/workspace",
			EntryFile:      "main.cpp",
			CompileCommand: []string{"g++", "-O2", "-o", "program", "{main}"},
			RunCommand:     []string{"./program"},
		},
		{
			Language:       execution.LanguageGo,
			Image:          "golang:1.23-alpine",
			Workdir:        "/workspace",
			EntryFile:      "main.go",
			CompileCommand: []string{"go", "build", "-o", "program", "{main}"},
			RunCommand:     []string{"./program"},
		},
	}
}

func renderRequirementsTxt(deps map[string]string) ([]byte, error) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("dependency with empty name")
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		if version := deps[name]; version != "" {
			b.WriteString("==")
			b.WriteString(version)
		}
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

func renderPackageJSON(deps map[string]string) ([]byte, error) {
	pinned := make(map[string]string, len(deps))
	for name, version := range deps {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("dependency with empty name")
		}
		if version == "" {
			version = "latest"
		}
		pinned[name] = version
	}

	manifest := struct {
		Name         string            `json:"name"`
		Private      bool              `json:"private"`
		Dependencies map[string]string `json:"dependencies"`
	}{
		Name:         "workspace",
		Private:      true,
		Dependencies: pinned,
	}

	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal package.json: %w", err)
	}
	return append(payload, '\n'), nil
}
