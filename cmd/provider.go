package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-matcher/internal/config"
	"github.com/kozaktomas/face-matcher/internal/constants"
	"github.com/kozaktomas/face-matcher/internal/embedding"
	"github.com/kozaktomas/face-matcher/internal/imageload"
)

// initTimeout bounds the embedding server health check at startup.
const initTimeout = 30 * time.Second

// newMatchingStack creates the image loader and an initialized embedding client.
func newMatchingStack(ctx context.Context, cfg *config.Config) (*embedding.Client, *imageload.Loader, error) {
	client := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Dim, cfg.Embedding.MinDetScore)

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	if err := client.Init(initCtx); err != nil {
		return nil, nil, fmt.Errorf("initializing embedding server at %s: %w", cfg.Embedding.URL, err)
	}

	loader := imageload.NewLoader(cfg.Image.FetchTimeout, constants.MaxImageBytes, constants.MaxImageSize)
	return client, loader, nil
}
