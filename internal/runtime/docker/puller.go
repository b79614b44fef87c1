package docker

import (
	"context"
	"fmt"
	"io"
	"sync"

	typesimage "github.com/docker/docker/api/types/image"
)

// imagePuller pulls each image reference at most once per process.
type imagePuller struct {
	cli dockerClient

	mu    sync.Mutex
	pulls map[string]*pullState
}

type pullState struct {
	once sync.Once
	err  error
}

func newImagePuller(cli dockerClient) *imagePuller {
	return &imagePuller{
		cli:   cli,
		pulls: make(map[string]*pullState),
	}
}

func (p *imagePuller) ensure(ctx context.Context, ref string) error {
	p.mu.Lock()
	state, ok := p.pulls[ref]
	if !ok {
		state = &pullState{}
		p.pulls[ref] = state
	}
	p.mu.Unlock()

	state.once.Do(func() {
		state.err = p.pull(ctx, ref)
	})
	return state.err
}

func (p *imagePuller) pull(ctx context.Context, ref string) error {
	reader, err := p.cli.ImagePull(ctx, ref, typesimage.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("consume pull output for %s: %w", ref, err)
	}
	return nil
}
