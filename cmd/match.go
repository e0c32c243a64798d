package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Hofman2HQ/LookALike/internal/config"
	"github.com/Hofman2HQ/LookALike/internal/database"
	"github.com/Hofman2HQ/LookALike/internal/imaging"
	"github.com/Hofman2HQ/LookALike/internal/pipeline"
)

var matchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Find the closest reference faces for an image",
	Long: `Detect the face in an image file and print the most similar reference faces.

Examples:
  # Top 3 matches with the configured threshold
  lookalike match selfie.jpg

  # Top 5 matches scoring at least 0.5
  lookalike match selfie.jpg --top-k 5 --threshold 0.5

  # JSON output for scripting
  lookalike match selfie.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Int("top-k", 0, "Number of matches to return (default from TOP_K)")
	matchCmd.Flags().Float64("threshold", -1, "Minimum inclusive score (default from SCORE_THRESHOLD)")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

// MatchOutput represents the result of a match command
type MatchOutput struct {
	QueryID string                 `json:"query_id"`
	Image   string                 `json:"image"`
	Matches []database.MatchResult `json:"matches"`
}

func runMatch(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()

	topK := cfg.Search.TopK
	if v := mustGetInt(cmd, "top-k"); v != 0 {
		topK = v
	}
	threshold := cfg.Search.ScoreThreshold
	if v := mustGetFloat64(cmd, "threshold"); v >= 0 {
		threshold = v
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", args[0], err)
	}

	if cfg.Search.Backend == pipeline.BackendPostgres {
		if err := initPostgres(cfg); err != nil {
			return err
		}
	}
	matcher, err := pipeline.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load matcher: %w", err)
	}

	matches, err := matcher.Match(ctx, img, topK, threshold)
	if err != nil {
		return fmt.Errorf("failed to match: %w", err)
	}

	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), MatchOutput{
			QueryID: uuid.NewString(),
			Image:   args[0],
			Matches: matches,
		})
	}

	if len(matches) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matches found.")
		return nil
	}
	for i, m := range matches {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %-30s %.4f  %s\n", i+1, m.Name, m.Score, m.PhotoURL)
	}
	return nil
}
