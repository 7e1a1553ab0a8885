package client

import (
	"fmt"

	"github.com/ethan-huo/automation-chatbot/internal/config"
	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/model"
)

// Registry maps each asset type to the provider that produces it.
type Registry map[model.AssetType]Provider

// NewRegistry wires the configured providers, falling back to mocks for
// any provider without an API key.
func NewRegistry(cfg *config.Config, log *logger.Logger) Registry {
	reg := Registry{}

	if cfg.Minimax.Enabled() {
		reg[model.AssetTypeAudio] = NewMinimaxClient(cfg.Minimax, log)
	} else {
		log.Warn("minimax not configured, using mock provider")
		reg[model.AssetTypeAudio] = NewMockProvider(model.AssetTypeAudio)
	}
	if cfg.Midjourney.Enabled() {
		reg[model.AssetTypeImage] = NewMidjourneyClient(cfg.Midjourney, log)
	} else {
		log.Warn("midjourney not configured, using mock provider")
		reg[model.AssetTypeImage] = NewMockProvider(model.AssetTypeImage)
	}
	if cfg.SpeedPainter.Enabled() {
		reg[model.AssetTypeWhiteboardAnimation] = NewSpeedPainterClient(cfg.SpeedPainter, log)
	} else {
		log.Warn("speedpainter not configured, using mock provider")
		reg[model.AssetTypeWhiteboardAnimation] = NewMockProvider(model.AssetTypeWhiteboardAnimation)
	}
	// TODO: wire a remote composer once one is chosen; until then story
	// videos come from the mock.
	reg[model.AssetTypeVideoComposition] = NewMockProvider(model.AssetTypeVideoComposition)
	return reg
}

func (r Registry) For(t model.AssetType) (Provider, error) {
	p, ok := r[t]
	if !ok {
		return nil, fmt.Errorf("no provider for asset type %q", t)
	}
	return p, nil
}

// Names lists the provider serving each asset type.
func (r Registry) Names() map[string]string {
	out := make(map[string]string, len(r))
	for t, p := range r {
		out[string(t)] = p.Name()
	}
	return out
}
