package conflict

import (
	"fmt"
	"time"

	"redline/internal/config"
	models "redline/internal/domain/models/suggestion"
)

// Strategy adjusts the display priority of a suggestion that competes with
// at least one other suggestion for the same span.
type Strategy interface {
	Name() config.ConflictStrategy
	Adjust(s *models.Suggestion, base float64, now time.Time) float64
}

// NewStrategy builds the configured strategy.
func NewStrategy(cfg config.ConflictConfig) (Strategy, error) {
	switch cfg.Strategy {
	case config.StrategyPriority:
		return priorityStrategy{ratio: cfg.PriorityBoostRatio}, nil
	case config.StrategyTimestamp:
		return timestampStrategy{window: cfg.RecencyWindow, maxBonus: cfg.RecencyMaxBonus}, nil
	case config.StrategyType:
		return typeStrategy{boosts: cfg.TypeBoosts}, nil
	default:
		return nil, fmt.Errorf("unknown conflict strategy %q", cfg.Strategy)
	}
}

// priorityStrategy adds a fixed share of the suggestion's own base priority,
// so already-strong suggestions pull further ahead.
type priorityStrategy struct {
	ratio float64
}

func (priorityStrategy) Name() config.ConflictStrategy { return config.StrategyPriority }

func (p priorityStrategy) Adjust(_ *models.Suggestion, base float64, _ time.Time) float64 {
	return base + base*p.ratio
}

// timestampStrategy favors recent suggestions. The bonus decays linearly
// from maxBonus at creation to zero once the suggestion is window old.
type timestampStrategy struct {
	window   time.Duration
	maxBonus float64
}

func (timestampStrategy) Name() config.ConflictStrategy { return config.StrategyTimestamp }

func (ts timestampStrategy) Adjust(s *models.Suggestion, base float64, now time.Time) float64 {
	if ts.window <= 0 || s.CreatedAt.IsZero() {
		return base
	}
	age := now.Sub(s.CreatedAt)
	if age < 0 {
		age = 0
	}
	if age >= ts.window {
		return base
	}
	return base + ts.maxBonus*(1-float64(age)/float64(ts.window))
}

// typeStrategy adds a fixed per-type boost.
type typeStrategy struct {
	boosts map[models.Type]float64
}

func (typeStrategy) Name() config.ConflictStrategy { return config.StrategyType }

func (ts typeStrategy) Adjust(s *models.Suggestion, base float64, _ time.Time) float64 {
	return base + ts.boosts[s.Type]
}
