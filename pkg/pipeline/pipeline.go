// Package pipeline orchestrates a whole embedding run: corpus loading,
// train/test splitting, negative sampling, model construction, SGD training,
// and rank-based evaluation. The model layer performs no recovery; any error
// aborts the run and it is the caller's decision whether to retry with a
// different seed or configuration.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/google/uuid"

	"github.com/cnclabs/kge/pkg/eval"
	"github.com/cnclabs/kge/pkg/model"
	"github.com/cnclabs/kge/pkg/train"
	"github.com/cnclabs/kge/pkg/triples"
)

// Model names accepted by Config.Model.
const (
	ModelDistMult = "distmult"
	ModelSE       = "se"
)

// Sampler names accepted by Config.Sampler.
const (
	SamplerUniform   = "uniform"
	SamplerFrequency = "frequency"
)

// ErrConfig is returned for unusable pipeline configurations.
var ErrConfig = errors.New("pipeline: invalid config")

// Config is the full configuration surface of one run. Zero-valued fields
// take the conventional defaults, so an explicit zero margin or zero
// learning rate is not expressible here; construct the model and trainer
// directly for such runs.
type Config struct {
	Model        string  `yaml:"model"`
	EmbeddingDim int     `yaml:"embedding_dim"`
	Margin       float64 `yaml:"margin"`
	ScoringNorm  int     `yaml:"scoring_norm"` // Structured Embedding only
	LearningRate float64 `yaml:"learning_rate"`
	NumEpochs    int     `yaml:"num_epochs"`
	TestRatio    float64 `yaml:"test_ratio"` // 0 disables evaluation
	Sampler      string  `yaml:"sampler"`
	FilterKnown  bool    `yaml:"filter_known"` // filtered rank evaluation
	Seed         int64   `yaml:"seed"`
}

// withDefaults fills unset fields with the conventional defaults.
func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = ModelDistMult
	}
	if c.EmbeddingDim == 0 {
		c.EmbeddingDim = 50
	}
	if c.Margin == 0 {
		c.Margin = model.DefaultMargin
	}
	if c.ScoringNorm == 0 {
		c.ScoringNorm = model.DefaultScoringNorm
	}
	if c.LearningRate == 0 {
		c.LearningRate = train.DefaultLearningRate
	}
	if c.Sampler == "" {
		c.Sampler = SamplerUniform
	}
	return c
}

// Results is everything a run produces for downstream consumers.
type Results struct {
	RunID  string `yaml:"run_id"`
	Config Config `yaml:"config"`

	EpochLosses []float64     `yaml:"losses"`
	Metrics     *eval.Metrics `yaml:"metrics,omitempty"`

	EntityToID   map[string]int `yaml:"-"`
	RelationToID map[string]int `yaml:"-"`

	EntityToEmbedding   map[string][]float64 `yaml:"-"`
	RelationToEmbedding map[string][]float64 `yaml:"-"`

	// Model is the trained embedding store, queryable by id.
	Model model.Model `yaml:"-"`
}

// Run executes the pipeline over an already-loaded triples factory.
func Run(cfg Config, factory *triples.Factory, logger *slog.Logger) (*Results, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if factory.NumTriples() == 0 {
		return nil, fmt.Errorf("%w: factory holds no triples", ErrConfig)
	}
	if cfg.TestRatio < 0 || cfg.TestRatio >= 1 {
		return nil, fmt.Errorf("%w: test ratio %v", ErrConfig, cfg.TestRatio)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	logger.Info("corpus loaded",
		"entities", factory.NumEntities(),
		"relations", factory.NumRelations(),
		"triples", factory.NumTriples(),
	)

	trainPos, testPos := factory.Split(cfg.TestRatio, rng)

	sampler, err := buildSampler(cfg, factory, trainPos)
	if err != nil {
		return nil, err
	}
	trainNeg := triples.CorruptAll(trainPos, sampler, rng)
	logger.Info("negative triples created", "count", len(trainNeg))

	m, err := buildModel(cfg, factory)
	if err != nil {
		return nil, err
	}
	if err := m.InitializeEmpty(); err != nil {
		return nil, err
	}

	trainer := &train.Trainer{
		LearningRate: cfg.LearningRate,
		NumEpochs:    cfg.NumEpochs,
		Seed:         cfg.Seed,
		Logger:       logger,
	}
	logger.Info("training started", "model", cfg.Model, "epochs", cfg.NumEpochs)
	trained, err := trainer.Train(m, trainPos, trainNeg)
	if err != nil {
		return nil, err
	}

	res := &Results{
		RunID:        uuid.NewString(),
		Config:       cfg,
		EpochLosses:  trained.EpochLosses,
		EntityToID:   factory.EntityToID,
		RelationToID: factory.RelationToID,
		Model:        m,
	}

	if cfg.TestRatio > 0 && len(testPos) > 0 {
		evaluator := &eval.Evaluator{Filter: cfg.FilterKnown}
		if cfg.FilterKnown {
			evaluator.Known = factory.Triples
		}
		logger.Info("evaluation started", "test_triples", len(testPos))
		metrics, err := evaluator.Evaluate(m, testPos)
		if err != nil {
			return nil, err
		}
		res.Metrics = metrics
		logger.Info("evaluation finished", "mean_rank", metrics.MeanRank)
	}

	res.EntityToEmbedding = make(map[string][]float64, factory.NumEntities())
	for label, id := range factory.EntityToID {
		res.EntityToEmbedding[label] = m.EntityEmbedding(id)
	}
	res.RelationToEmbedding = make(map[string][]float64, factory.NumRelations())
	for label, id := range factory.RelationToID {
		res.RelationToEmbedding[label] = m.RelationEmbedding(id)
	}

	return res, nil
}

// buildModel constructs the configured model over the factory's id space.
func buildModel(cfg Config, factory *triples.Factory) (model.Model, error) {
	numEntities := factory.NumEntities()
	numRelations := factory.NumRelations()

	switch cfg.Model {
	case ModelDistMult:
		return model.NewDistMult(numEntities, numRelations, cfg.EmbeddingDim, cfg.Seed,
			model.WithDistMultLoss(model.NewMarginRankingLoss(cfg.Margin)))
	case ModelSE:
		return model.NewSE(numEntities, numRelations, cfg.EmbeddingDim, cfg.Seed,
			model.WithScoringNorm(cfg.ScoringNorm),
			model.WithSELoss(model.NewMarginRankingLoss(cfg.Margin)))
	default:
		return nil, fmt.Errorf("%w: unknown model %q", ErrConfig, cfg.Model)
	}
}

// buildSampler constructs the configured negative sampler.
func buildSampler(cfg Config, factory *triples.Factory, pos []triples.Triple) (triples.NegativeSampler, error) {
	switch cfg.Sampler {
	case SamplerUniform:
		return triples.UniformSampler{NumEntities: factory.NumEntities()}, nil
	case SamplerFrequency:
		return triples.NewFrequencySampler(factory.NumEntities(), pos), nil
	default:
		return nil, fmt.Errorf("%w: unknown sampler %q", ErrConfig, cfg.Sampler)
	}
}
