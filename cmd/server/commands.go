package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shopmind/backend/internal/application/agents"
	"github.com/shopmind/backend/internal/domain/events"
	"github.com/shopmind/backend/internal/infrastructure/config"
	applog "github.com/shopmind/backend/internal/infrastructure/log"
	"github.com/shopmind/backend/internal/infrastructure/ml"
	"github.com/shopmind/backend/internal/wire"
)

func newReindexCmd() *cobra.Command {
	var kinds []string
	var reconcile bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild vector collections from the relational store",
		Long: `Re-embed entities from the database and upsert them into the vector index.
With --reconcile (default), vector points whose ids no longer exist in the
database are deleted afterwards.`,
		Example: `  # Rebuild every collection
  shopmind reindex

  # Only products and FAQs, keep orphaned points
  shopmind reindex --kind product --kind faq --reconcile=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			indexer, cleanup, err := wire.InitializeIndexer(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			selected := make([]events.EntityKind, 0, len(kinds))
			for _, k := range kinds {
				selected = append(selected, events.EntityKind(k))
			}
			if err := indexer.EnsureCollections(ctx); err != nil {
				return err
			}
			stats, err := indexer.Reindex(ctx, selected...)
			if err != nil {
				return err
			}
			if reconcile {
				reconciled, err := indexer.Reconcile(ctx, selected...)
				if err != nil {
					return err
				}
				stats = append(stats, reconciled...)
			}
			return printJSON(stats)
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "entity kinds to rebuild: product, category, faq, review, chat, search_log (default all)")
	cmd.Flags().BoolVar(&reconcile, "reconcile", true, "delete vector points missing from the store")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "overall deadline")
	return cmd
}

func newTrainIntentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train-intent",
		Short: "Train the intent classifier on the synthetic corpus and persist it",
		Long: `Train the TF-IDF + gradient boosted intent model and write the artifacts
to the model directory. A running server watching that directory reloads them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			report, err := wire.InitializeClassifier(cfg).Train(cmd.Context())
			if err != nil {
				return err
			}
			applog.GetLogger().Info("Intent model trained",
				"documents", report.Documents,
				"accuracy", report.Accuracy,
				"dir", cfg.ML.ModelDir,
			)
			return printJSON(report)
		},
	}
}

func newTrainRecommendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train-recommend",
		Short: "Train the recommendation scorer on synthetic interactions and persist it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			scorer := agents.NewRecommendScorer(ml.NewArtifactStore(cfg.ML.ModelDir))
			if err := scorer.Train(cmd.Context()); err != nil {
				return err
			}
			applog.GetLogger().Info("Recommendation model trained", "dir", cfg.ML.ModelDir)
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
