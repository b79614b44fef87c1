package runtime

import (
	"fmt"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
)

// Workspace is the fully resolved file set for one run: user sources plus, if
// dependencies were declared, the generated manifest and its install step.
type Workspace struct {
	Files    []execution.SourceFile
	MainFile string
	// Install is nil when no installation is needed (the fast path for
	// dependency-free snippets).
	Install *InstallStep
}

// InstallStep describes the dependency installation to run inside the
// sandbox before anything else.
type InstallStep struct {
	Command []string
	Network bool
}

// BuildWorkspace validates the request against the descriptor and resolves
// the declared dependencies into a manifest file merged into the workspace.
func BuildWorkspace(desc Descriptor, req execution.Request) (Workspace, error) {
	if len(req.Files) == 0 {
		return Workspace{}, fmt.Errorf("request has no files")
	}

	mainFile := req.MainFile
	if mainFile == "" {
		mainFile = desc.EntryFile
	}
	if !req.HasFile(mainFile) {
		return Workspace{}, fmt.Errorf("main file %q not present in request files", mainFile)
	}

	ws := Workspace{
		Files:    append([]execution.SourceFile(nil), req.Files...),
		MainFile: mainFile,
	}

	if len(req.Dependencies) == 0 {
		return ws, nil
	}

	if desc.Manifest == nil {
		return Workspace{}, fmt.Errorf("language %q does not support declared dependencies", desc.Language)
	}

	content, err := desc.Manifest.Render(req.Dependencies)
	if err != nil {
		return Workspace{}, fmt.Errorf("render %s: %w", desc.Manifest.Filename, err)
	}

	for _, f := range ws.Files {
		if f.Name == desc.Manifest.Filename {
			return Workspace{}, fmt.Errorf("request file %q collides with the generated manifest", f.Name)
		}
	}

	ws.Files = append(ws.Files, execution.SourceFile{
		Name:    desc.Manifest.Filename,
		Content: string(content),
	})
	ws.Install = &InstallStep{
		Command: desc.Manifest.InstallCommand,
		Network: desc.Manifest.Network,
	}

	return ws, nil
}
