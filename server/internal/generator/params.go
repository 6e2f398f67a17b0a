package generator

import (
	"time"

	"github.com/livefeed/livefeed/server/internal/config"
)

// Params are the tunable workload parameters. They may change while the
// generator runs (see SetParams).
type Params struct {
	TickInterval time.Duration
	MaxOps       int
	MaxOffset    time.Duration
	MaxSentences int
	Weights      Weights
}

// Weights is the relative likelihood of each operation.
type Weights struct {
	Insert, Mutate, Delete int
}

func (w Weights) total() int { return w.Insert + w.Mutate + w.Delete }

// ParamsFromConfig extracts the runtime parameters from cfg.
func ParamsFromConfig(cfg config.GeneratorConfig) Params {
	return Params{
		TickInterval: cfg.TickInterval,
		MaxOps:       cfg.MaxOpsPerTick,
		MaxOffset:    cfg.MaxOffset,
		MaxSentences: cfg.MaxSentences,
		Weights: Weights{
			Insert: cfg.Weights.Insert,
			Mutate: cfg.Weights.Mutate,
			Delete: cfg.Weights.Delete,
		},
	}
}
