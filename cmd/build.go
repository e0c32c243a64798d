package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Hofman2HQ/LookALike/internal/config"
	"github.com/Hofman2HQ/LookALike/internal/constants"
	"github.com/Hofman2HQ/LookALike/internal/database"
	"github.com/Hofman2HQ/LookALike/internal/indexer"
	"github.com/Hofman2HQ/LookALike/internal/pipeline"
)

var buildCmd = &cobra.Command{
	Use:   "build [dataset-dir]",
	Short: "Build the reference index from a dataset",
	Long: `Build the reference face index from a dataset directory.

Every immediate subdirectory is one identity; its name (underscores become
spaces) is the display name and every image inside is one reference face.
The index and metadata files are replaced atomically.

Examples:
  # Build from DATASET_DIR into DATA_DIR
  lookalike build

  # Build from a specific folder and also write the HNSW graph
  lookalike build ./celebs --hnsw

  # Mirror the references into PostgreSQL (requires DATABASE_URL)
  lookalike build --pgvector

  # JSON output for scripting
  lookalike build --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().String("index", "", "Output index path (default from INDEX_PATH / DATA_DIR)")
	buildCmd.Flags().String("meta", "", "Output metadata path (default from META_PATH / DATA_DIR)")
	buildCmd.Flags().String("photo-base-url", "", "Prefix for photo_url values (default from PHOTO_BASE_URL)")
	buildCmd.Flags().Int("concurrency", constants.WorkerPoolSize, "Number of images embedded in parallel")
	buildCmd.Flags().Bool("hnsw", false, "Also write the HNSW graph next to the index")
	buildCmd.Flags().Bool("pgvector", false, "Also replace the references stored in PostgreSQL")
	buildCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// BuildResult represents the result of an index build
type BuildResult struct {
	Success       bool   `json:"success"`
	Identities    int    `json:"identities"`
	Entries       int    `json:"entries"`
	Skipped       int    `json:"skipped"`
	Dim           int    `json:"dim"`
	Embedder      string `json:"embedder"`
	Detector      string `json:"detector"`
	IndexPath     string `json:"index_path"`
	MetaPath      string `json:"meta_path"`
	PgVector      bool   `json:"pgvector"`
	DurationMs    int64  `json:"duration_ms"`
	DurationHuman string `json:"duration_human,omitempty"`
}

func applyBuildFlags(cmd *cobra.Command, cfg *config.Config, args []string) {
	if len(args) > 0 {
		cfg.Data.DatasetDir = args[0]
	}
	if v := mustGetString(cmd, "index"); v != "" {
		cfg.Data.IndexPath = v
	}
	if v := mustGetString(cmd, "meta"); v != "" {
		cfg.Data.MetaPath = v
	}
	if v := mustGetString(cmd, "photo-base-url"); v != "" {
		cfg.Data.PhotoBaseURL = v
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	withGraph := mustGetBool(cmd, "hnsw")
	withPg := mustGetBool(cmd, "pgvector")

	ctx := context.Background()
	cfg := config.Load()
	applyBuildFlags(cmd, cfg, args)
	startTime := time.Now()

	if withPg {
		if err := initPostgres(cfg); err != nil {
			return err
		}
	}

	p, err := pipeline.Get(ctx, pipeline.OptionsFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	var (
		bar   *progressbar.ProgressBar
		barMu sync.Mutex
	)
	opts := indexer.Options{
		PhotoBaseURL: cfg.Data.PhotoBaseURL,
		Concurrency:  mustGetInt(cmd, "concurrency"),
	}
	if !jsonOutput {
		fmt.Printf("Building index from %s\n\n", cfg.Data.DatasetDir)
		opts.Progress = func(_, total int, _ string) {
			barMu.Lock()
			defer barMu.Unlock()
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("Embedding faces"),
					progressbar.OptionShowCount(),
					progressbar.OptionShowIts(),
					progressbar.OptionSetItsString("images"),
					progressbar.OptionShowElapsedTimeOnFinish(),
					progressbar.OptionSetPredictTime(true),
					progressbar.OptionFullWidth(),
				)
			}
			bar.Add(1) //nolint:errcheck // rendering only
		}
	}

	builder := indexer.NewBuilder(p.Preprocessor(), p.Embedder(), opts)
	res, err := builder.Build(ctx, cfg.Data.DatasetDir)
	if bar != nil {
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}

	if err := res.Save(cfg.Data.IndexPath, cfg.Data.MetaPath, withGraph); err != nil {
		return err
	}

	if withPg {
		writer, err := database.GetReferenceWriter(ctx, res.Dim)
		if err != nil {
			return fmt.Errorf("failed to get reference writer: %w", err)
		}
		if err := res.Export(ctx, writer); err != nil {
			return err
		}
	}

	duration := time.Since(startTime)
	result := BuildResult{
		Success:       true,
		Identities:    res.Identities,
		Entries:       len(res.Entries),
		Skipped:       len(res.Skipped),
		Dim:           res.Dim,
		Embedder:      p.Embedder().Name(),
		Detector:      p.Preprocessor().DetectorName(),
		IndexPath:     cfg.Data.IndexPath,
		MetaPath:      cfg.Data.MetaPath,
		PgVector:      withPg,
		DurationMs:    duration.Milliseconds(),
		DurationHuman: formatDuration(duration),
	}

	if jsonOutput {
		result.DurationHuman = ""
		return outputJSON(cmd.OutOrStdout(), result)
	}

	fmt.Println("\nBuild complete!")
	fmt.Printf("  Identities: %d\n", result.Identities)
	fmt.Printf("  Faces:      %d\n", result.Entries)
	if result.Skipped > 0 {
		fmt.Printf("  Skipped:    %d\n", result.Skipped)
	}
	fmt.Printf("  Embedder:   %s (%d dims)\n", result.Embedder, result.Dim)
	fmt.Printf("  Index:      %s\n", result.IndexPath)
	fmt.Printf("  Metadata:   %s\n", result.MetaPath)
	if withGraph {
		fmt.Printf("  HNSW graph: %s\n", database.HNSWGraphPath(result.IndexPath))
	}
	if withPg {
		fmt.Printf("  PostgreSQL: %d references replaced\n", result.Entries)
	}
	fmt.Printf("  Duration:   %s\n", result.DurationHuman)

	return nil
}
