package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/face-matcher/internal/config"
	"github.com/kozaktomas/face-matcher/internal/embedding"
	"github.com/kozaktomas/face-matcher/internal/imageload"
	"github.com/kozaktomas/face-matcher/internal/matcher"
	"github.com/kozaktomas/face-matcher/internal/refset"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank a directory of reference faces against a query image",
	Long: `Rank every reference image in a directory against a query image.

Reference labels are the file names without extension. Files without a
detectable face are skipped. All references are listed by descending
confidence, followed by the ones above the threshold. A query without a
detectable face produces an empty ranking.

Examples:
  # Rank ./faces against a query image
  face-matcher match --query unknown.jpg

  # Use another reference directory and threshold
  face-matcher match --faces ./people --query unknown.jpg --threshold 0.7

  # Output as JSON
  face-matcher match --query unknown.jpg --json`,
	Args: cobra.NoArgs,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("faces", "", "Directory of reference faces (defaults to REFERENCE_DIR)")
	matchCmd.Flags().String("query", "", "Query image path or URL")
	matchCmd.Flags().Float64("threshold", 0.6, "Minimum confidence for a high confidence match (defaults to MATCH_THRESHOLD)")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
	_ = matchCmd.MarkFlagRequired("query")
}

// MatchOutput represents the JSON output of the match command
type MatchOutput struct {
	Query          string                `json:"query"`
	Faces          string                `json:"faces"`
	QueryFace      bool                  `json:"queryFace"`
	Matches        []matcher.MatchResult `json:"matches"`
	HighConfidence []matcher.MatchResult `json:"highConfidence"`
	Threshold      float64               `json:"threshold"`
	Skipped        []refset.Skipped      `json:"skipped"`
}

// matchOptions holds the resolved inputs of a match run
type matchOptions struct {
	Query       string
	Faces       string
	Threshold   float64
	JSON        bool
	Extensions  []string
	Concurrency int
}

// newMatchProgressBar creates a progress bar for reference processing, or nil if JSON output.
func newMatchProgressBar(count int, jsonOutput bool) *progressbar.ProgressBar {
	if jsonOutput {
		return nil
	}
	return progressbar.NewOptions(count,
		progressbar.OptionSetDescription("Describing faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("faces"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	threshold, err := thresholdFlag(cmd, cfg.Match.Threshold)
	if err != nil {
		return err
	}
	opts := matchOptions{
		Query:       mustGetString(cmd, "query"),
		Faces:       mustGetString(cmd, "faces"),
		Threshold:   threshold,
		JSON:        mustGetBool(cmd, "json"),
		Extensions:  cfg.Match.Extensions,
		Concurrency: cfg.Match.Concurrency,
	}
	if opts.Faces == "" {
		opts.Faces = cfg.Match.ReferenceDir
	}
	ctx := context.Background()

	client, loader, err := newMatchingStack(ctx, cfg)
	if err != nil {
		return err
	}
	return matchFaces(ctx, os.Stdout, loader, client, opts)
}

// matchFaces ranks the reference directory against the query and writes the result to out.
func matchFaces(ctx context.Context, out io.Writer, loader *imageload.Loader, provider embedding.Provider, opts matchOptions) error {
	candidates, err := refset.ListImages(opts.Faces, opts.Extensions)
	if err != nil {
		return err
	}

	queryDesc, err := describeRefs(ctx, loader, provider, opts.Query)
	if errors.Is(err, embedding.ErrNoFaceDetected) {
		if !opts.JSON {
			fmt.Fprintf(out, "No face detected in query image %s\n\n", opts.Query)
		}
		return writeMatchResults(out, opts, &refset.Set{}, emptyRanking(opts.Threshold), false)
	}
	if err != nil {
		return err
	}

	if !opts.JSON {
		fmt.Fprintf(out, "Found %d reference images in %s\n", len(candidates), opts.Faces)
	}
	bar := newMatchProgressBar(len(candidates), opts.JSON)
	set, err := refset.Build(ctx, opts.Faces, loader, provider, refset.Options{
		Extensions:  opts.Extensions,
		Concurrency: opts.Concurrency,
		OnProgress: func(string) {
			if bar != nil {
				bar.Add(1)
			}
		},
	})
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(out)
	}
	if err != nil {
		return fmt.Errorf("building reference set: %w", err)
	}

	ranking, err := refset.Rank(set, queryDesc[0], opts.Threshold)
	if err != nil {
		return fmt.Errorf("ranking references: %w", err)
	}
	return writeMatchResults(out, opts, set, ranking, true)
}

func emptyRanking(threshold float64) *refset.Ranking {
	return &refset.Ranking{
		All:            []matcher.MatchResult{},
		HighConfidence: []matcher.MatchResult{},
		Threshold:      threshold,
	}
}

func writeMatchResults(out io.Writer, opts matchOptions, set *refset.Set, ranking *refset.Ranking, queryFace bool) error {
	if opts.JSON {
		skipped := set.Skipped
		if skipped == nil {
			skipped = []refset.Skipped{}
		}
		return writeJSON(out, MatchOutput{
			Query:          opts.Query,
			Faces:          opts.Faces,
			QueryFace:      queryFace,
			Matches:        ranking.All,
			HighConfidence: ranking.HighConfidence,
			Threshold:      ranking.Threshold,
			Skipped:        skipped,
		})
	}

	printMatchResults(out, set, ranking)
	return nil
}

func printMatchTable(out io.Writer, set *refset.Set, results []matcher.MatchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tFILE\tDISTANCE\tCONFIDENCE\tMATCH")
	fmt.Fprintln(w, "-----\t----\t--------\t----------\t-----")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%s\n",
			r.Label, set.File(r.Label), r.Distance, r.Confidence, matcher.PercentageMatch(r.Confidence))
	}
	w.Flush()
}

func printMatchResults(out io.Writer, set *refset.Set, ranking *refset.Ranking) {
	fmt.Fprintf(out, "Ranked %d reference faces\n\n", set.Len())
	fmt.Fprintln(out, "All matches:")
	printMatchTable(out, set, ranking.All)

	fmt.Fprintf(out, "\nHigh confidence matches (> %.2f):\n", ranking.Threshold)
	if len(ranking.HighConfidence) == 0 {
		fmt.Fprintln(out, "  none")
	} else {
		printMatchTable(out, set, ranking.HighConfidence)
	}

	if len(set.Skipped) > 0 {
		fmt.Fprintf(out, "\nSkipped: %d\n", len(set.Skipped))
		for _, s := range set.Skipped {
			fmt.Fprintf(out, "  - %s: %s\n", s.File, s.Reason)
		}
	}
}
