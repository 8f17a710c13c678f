package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"redline/internal/domain/models/suggestion"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

//go:embed engine.yaml
var defaultEngineYAML []byte

// ConflictStrategy selects how displayPriority is adjusted for conflicting suggestions.
type ConflictStrategy string

const (
	StrategyPriority  ConflictStrategy = "priority"
	StrategyTimestamp ConflictStrategy = "timestamp"
	StrategyType      ConflictStrategy = "type"
)

// Engine holds every tunable of the anchoring, conflict and revalidation
// components. It is loaded once at startup and passed by reference.
type Engine struct {
	Anchor       AnchorConfig       `yaml:"anchor"`
	Conflict     ConflictConfig     `yaml:"conflict"`
	Creation     CreationConfig     `yaml:"creation"`
	Revalidation RevalidationConfig `yaml:"revalidation"`
	StoreRetry   RetryConfig        `yaml:"store_retry"`
}

// AnchorConfig tunes the anchor resolver.
type AnchorConfig struct {
	Tolerance     int `yaml:"tolerance"`      // characters searched either side of a hint
	ContextWindow int `yaml:"context_window"` // characters captured before/after the anchor
}

// ConflictConfig tunes validation, weighting and conflict resolution.
type ConflictConfig struct {
	Strategy            ConflictStrategy             `yaml:"strategy"`
	MaxContextLength    int                          `yaml:"max_context_length"`
	SimilarityThreshold float64                      `yaml:"similarity_threshold"`
	SimilarityMinLength int                          `yaml:"similarity_min_length"`
	ZIndexBase          int                          `yaml:"z_index_base"`
	PriorityWeights     map[suggestion.Priority]int  `yaml:"priority_weights"`
	TypeWeights         map[suggestion.Type]int      `yaml:"type_weights"`
	PriorityBoostRatio  float64                      `yaml:"priority_boost_ratio"`
	TypeBoosts          map[suggestion.Type]float64  `yaml:"type_boosts"`
	RecencyWindow       time.Duration                `yaml:"recency_window"`
	RecencyMaxBonus     float64                      `yaml:"recency_max_bonus"`
}

// CreationConfig tunes the creation batch.
type CreationConfig struct {
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
	Retention   time.Duration `yaml:"retention"`
	DedupWindow time.Duration `yaml:"dedup_window"` // 0 disables dedup
}

// RevalidationConfig tunes the revalidation pass.
type RevalidationConfig struct {
	ScanPageSize int `yaml:"scan_page_size"`
}

// RetryConfig configures store write retries.
type RetryConfig struct {
	MaxAttempts           int           `yaml:"max_attempts"`
	InitialBackoff        time.Duration `yaml:"initial_backoff"`
	MaxBackoff            time.Duration `yaml:"max_backoff"`
	Multiplier            float64       `yaml:"multiplier"`
	BatchFailureThreshold int           `yaml:"batch_failure_threshold"`
}

// DefaultEngine returns the embedded engine defaults.
func DefaultEngine() *Engine {
	var e Engine
	if err := yaml.Unmarshal(defaultEngineYAML, &e); err != nil {
		// The embedded file is part of the binary; a parse failure is a build defect.
		panic(fmt.Sprintf("parse embedded engine.yaml: %v", err))
	}
	return &e
}

// LoadEngine returns the embedded defaults overlaid with the YAML file at path
// (if non-empty), validated.
func LoadEngine(path string) (*Engine, error) {
	e := DefaultEngine()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read engine config: %w", err)
		}
		if err := yaml.Unmarshal(data, e); err != nil {
			return nil, fmt.Errorf("parse engine config %s: %w", path, err)
		}
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	return e, nil
}

// Validate checks ranges and that every weight table covers its enumeration.
func (e *Engine) Validate() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.Anchor),
		validation.Field(&e.Conflict),
		validation.Field(&e.Creation),
		validation.Field(&e.Revalidation),
		validation.Field(&e.StoreRetry),
	)
}

func (a AnchorConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Tolerance, validation.Min(0)),
		validation.Field(&a.ContextWindow, validation.Min(0)),
	)
}

func (c ConflictConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Strategy, validation.Required,
			validation.In(StrategyPriority, StrategyTimestamp, StrategyType)),
		validation.Field(&c.MaxContextLength, validation.Min(1)),
		validation.Field(&c.SimilarityThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.SimilarityMinLength, validation.Min(0)),
		validation.Field(&c.ZIndexBase, validation.Min(1)),
		validation.Field(&c.PriorityWeights, validation.By(coversPriorities)),
		validation.Field(&c.TypeWeights, validation.By(coversTypes[int])),
		validation.Field(&c.TypeBoosts, validation.By(coversTypes[float64])),
		validation.Field(&c.PriorityBoostRatio, validation.Min(0.0)),
		validation.Field(&c.RecencyWindow, validation.Min(time.Duration(0))),
		validation.Field(&c.RecencyMaxBonus, validation.Min(0.0)),
	)
}

func (c CreationConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BatchSize, validation.Min(1), validation.Max(MaxBatchSize)),
		validation.Field(&c.Concurrency, validation.Min(1)),
		validation.Field(&c.Retention, validation.Min(time.Minute)),
		validation.Field(&c.DedupWindow, validation.Min(time.Duration(0))),
	)
}

func (r RevalidationConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ScanPageSize, validation.Min(1), validation.Max(1000)),
	)
}

func (r RetryConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MaxAttempts, validation.Min(1)),
		validation.Field(&r.InitialBackoff, validation.Min(time.Duration(0))),
		validation.Field(&r.MaxBackoff, validation.Min(r.InitialBackoff)),
		validation.Field(&r.Multiplier, validation.Min(1.0)),
		validation.Field(&r.BatchFailureThreshold, validation.Min(1)),
	)
}

func coversPriorities(value interface{}) error {
	weights, _ := value.(map[suggestion.Priority]int)
	for _, p := range suggestion.AllPriorities {
		if _, ok := weights[p]; !ok {
			return fmt.Errorf("missing weight for priority %q", p)
		}
	}
	return nil
}

func coversTypes[V int | float64](value interface{}) error {
	table, _ := value.(map[suggestion.Type]V)
	for _, t := range suggestion.AllTypes {
		if _, ok := table[t]; !ok {
			return fmt.Errorf("missing entry for type %q", t)
		}
	}
	return nil
}
