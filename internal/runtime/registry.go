package runtime

import (
	"fmt"
	"sort"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
)

// Registry is a pure lookup table of language descriptors, loaded once at
// startup. Adding a language is a configuration change: a new descriptor,
// nothing else.
type Registry struct {
	descriptors map[execution.Language]Descriptor
}

// NewRegistry constructs a registry from the supplied descriptors.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	reg := &Registry{
		descriptors: make(map[execution.Language]Descriptor, len(descriptors)),
	}

	for _, desc := range descriptors {
		if desc.Language == "" {
			return nil, fmt.Errorf("descriptor missing language identifier")
		}
		if desc.Image == "" {
			return nil, fmt.Errorf("descriptor for %q missing image", desc.Language)
		}
		if len(desc.RunCommand) == 0 {
			return nil, fmt.Errorf("descriptor for %q missing run command", desc.Language)
		}
		if desc.EntryFile == "" {
			return nil, fmt.Errorf("descriptor for %q missing entry file convention", desc.Language)
		}
		if _, exists := reg.descriptors[desc.Language]; exists {
			return nil, fmt.Errorf("duplicate descriptor for language %q", desc.Language)
		}
		if desc.Workdir == "" {
			desc.Workdir = "/workspace"
		}

		reg.descriptors[desc.Language] = desc
	}

	if len(reg.descriptors) == 0 {
		return nil, fmt.Errorf("at least one language descriptor must be registered")
	}

	return reg, nil
}

// Resolve returns the descriptor for the given language.
func (r *Registry) Resolve(lang execution.Language) (Descriptor, error) {
	desc, ok := r.descriptors[lang]
	if !ok {
		return Descriptor{}, &execution.UnsupportedLanguageError{Language: lang}
	}
	return desc, nil
}

// Languages lists the registered languages in stable order.
func (r *Registry) Languages() []execution.Language {
	langs := make([]execution.Language, 0, len(r.descriptors))
	for lang := range r.descriptors {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}
