package runtime

import (
	"strings"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
)

// Descriptor is the immutable per-language runtime configuration. Command
// slices may reference the placeholders {main} (the entry file name) and
// {base} (the entry file name without extension); ExpandCommand substitutes
// them for a concrete workspace.
type Descriptor struct {
	Language execution.Language
	// Image is the container image providing the toolchain.
	Image string
	// Workdir is the directory inside the container that receives the workspace.
	Workdir string
	// EntryFile is the conventional main file name, used when a request does
	// not name one.
	EntryFile string
	// CompileCommand builds the workspace before running. Empty for
	// interpreted languages.
	CompileCommand []string
	// RunCommand starts the program.
	RunCommand []string
	// Manifest describes dependency support. Nil when the language has none.
	Manifest *ManifestSpec
}

// ManifestSpec describes how a declared dependency map becomes an installable
// manifest for one language.
type ManifestSpec struct {
	// Filename of the generated manifest inside the workspace.
	Filename string
	// Render produces the manifest content from the dependency map.
	Render func(deps map[string]string) ([]byte, error)
	// InstallCommand runs inside the sandbox to install the manifest.
	InstallCommand []string
	// Network reports whether installation needs network access.
	Network bool
}

// Compiled reports whether the language has a compile step.
func (d Descriptor) Compiled() bool {
	return len(d.CompileCommand) > 0
}

// ExpandCommand substitutes the {main} and {base} placeholders of cmd for the
// given entry file name.
func (d Descriptor) ExpandCommand(cmd []string, mainFile string) []string {
	base := strings.TrimSuffix(mainFile, extension(mainFile))
	expanded := make([]string, len(cmd))
	for i, arg := range cmd {
		arg = strings.ReplaceAll(arg, "{main}", mainFile)
		arg = strings.ReplaceAll(arg, "{base}", base)
		expanded[i] = arg
	}
	return expanded
}

func extension(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		return name[idx:]
	}
	return ""
}
