package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cnclabs/kge/pkg/pipeline"
	"github.com/cnclabs/kge/pkg/triples"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train an embedding model on a triples file",
	Long: `Train loads a whitespace-separated triples file (head relation tail, one
per line), trains the selected embedding model, optionally holds out a test
split for rank-based evaluation, and writes the learned embeddings and a
YAML run summary.`,
	RunE: runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.String("train", "", "path to the triples file (required)")
	f.String("model", pipeline.ModelDistMult, "model: distmult or se")
	f.Int("dimensions", 50, "embedding dimension")
	f.Float64("margin", 1.0, "margin for the ranking loss")
	f.Int("norm", 1, "scoring-function norm order (se only)")
	f.Float64("alpha", 0.01, "learning rate")
	f.Int("epochs", 100, "number of training epochs")
	f.Float64("test-ratio", 0, "fraction of triples held out for evaluation")
	f.String("sampler", pipeline.SamplerUniform, "negative sampler: uniform or frequency")
	f.Bool("filter-known", false, "exclude known positives from rankings")
	f.Int64("seed", 0, "random seed")
	f.String("save-entity", "entities.txt", "entity embedding output file")
	f.String("save-relation", "relations.txt", "relation embedding output file")
	f.String("summary", "", "optional YAML run summary output file")

	trainCmd.MarkFlagRequired("train")
	viper.BindPFlags(f)

	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	factory := triples.NewFactory()
	if err := factory.Load(viper.GetString("train")); err != nil {
		return err
	}

	cfg := pipeline.Config{
		Model:        viper.GetString("model"),
		EmbeddingDim: viper.GetInt("dimensions"),
		Margin:       viper.GetFloat64("margin"),
		ScoringNorm:  viper.GetInt("norm"),
		LearningRate: viper.GetFloat64("alpha"),
		NumEpochs:    viper.GetInt("epochs"),
		TestRatio:    viper.GetFloat64("test-ratio"),
		Sampler:      viper.GetString("sampler"),
		FilterKnown:  viper.GetBool("filter-known"),
		Seed:         viper.GetInt64("seed"),
	}

	results, err := pipeline.Run(cfg, factory, logger)
	if err != nil {
		return err
	}

	if err := results.SaveEmbeddings(viper.GetString("save-entity"), viper.GetString("save-relation")); err != nil {
		return err
	}
	logger.Info("embeddings saved",
		"entities", viper.GetString("save-entity"),
		"relations", viper.GetString("save-relation"),
	)

	if path := viper.GetString("summary"); path != "" {
		if err := results.WriteSummary(path); err != nil {
			return err
		}
		logger.Info("summary saved", "path", path)
	}

	fmt.Println("run", results.RunID, "complete")
	return nil
}
