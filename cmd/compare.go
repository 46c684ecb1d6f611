package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-matcher/internal/config"
	"github.com/kozaktomas/face-matcher/internal/embedding"
	"github.com/kozaktomas/face-matcher/internal/imageload"
	"github.com/kozaktomas/face-matcher/internal/matcher"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var compareCmd = &cobra.Command{
	Use:   "compare <image1> <image2>",
	Short: "Compare the faces in two images",
	Long: `Compare the faces in two images. Each image may be a file path or an
http(s) URL. Both images are loaded and described in parallel.

Examples:
  # Compare two local files
  face-matcher compare alice.jpg unknown.jpg

  # Compare a local file with a remote image using a stricter threshold
  face-matcher compare alice.jpg https://example.com/photo.jpg --threshold 0.7

  # Output as JSON
  face-matcher compare alice.jpg unknown.jpg --json`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().Float64("threshold", 0.6, "Minimum similarity for a match (defaults to MATCH_THRESHOLD)")
	compareCmd.Flags().Bool("json", false, "Output as JSON")
}

// CompareOutput represents the JSON output of the compare command
type CompareOutput struct {
	Image1          string  `json:"image1"`
	Image2          string  `json:"image2"`
	Matched         bool    `json:"matched"`
	Similarity      float64 `json:"similarity"`
	Distance        float64 `json:"distance"`
	PercentageMatch string  `json:"percentageMatch"`
	Threshold       float64 `json:"threshold"`
}

// describeRefs loads and describes every ref concurrently, preserving order.
func describeRefs(ctx context.Context, loader *imageload.Loader, provider embedding.Provider, refs ...string) ([]matcher.Descriptor, error) {
	descriptors := make([]matcher.Descriptor, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			data, err := loader.Load(gctx, ref)
			if err != nil {
				return fmt.Errorf("loading %s: %w", ref, err)
			}
			desc, err := provider.Describe(gctx, data)
			if err != nil {
				return fmt.Errorf("describing %s: %w", ref, err)
			}
			descriptors[i] = desc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return descriptors, nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	threshold, err := thresholdFlag(cmd, cfg.Match.Threshold)
	if err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()

	client, loader, err := newMatchingStack(ctx, cfg)
	if err != nil {
		return err
	}

	descriptors, err := describeRefs(ctx, loader, client, args[0], args[1])
	if errors.Is(err, embedding.ErrNoFaceDetected) {
		return fmt.Errorf("no face detected in one or both images: %w", err)
	}
	if err != nil {
		return err
	}

	result, err := matcher.CompareSinglePair(descriptors[0], descriptors[1], threshold)
	if err != nil {
		return fmt.Errorf("comparing faces: %w", err)
	}

	output := CompareOutput{
		Image1:          args[0],
		Image2:          args[1],
		Matched:         result.Matched,
		Similarity:      result.Similarity,
		Distance:        result.Distance,
		PercentageMatch: matcher.PercentageMatch(result.Similarity),
		Threshold:       result.Threshold,
	}
	if jsonOutput {
		return outputJSON(output)
	}

	printCompareResult(output)
	return nil
}

func printCompareResult(out CompareOutput) {
	verdict := "NO MATCH"
	if out.Matched {
		verdict = "MATCH"
	}

	fmt.Printf("Image 1:     %s\n", out.Image1)
	fmt.Printf("Image 2:     %s\n", out.Image2)
	fmt.Printf("Distance:    %.4f\n", out.Distance)
	fmt.Printf("Similarity:  %.4f (%s)\n", out.Similarity, out.PercentageMatch)
	fmt.Printf("Threshold:   %.2f\n", out.Threshold)
	fmt.Printf("Result:      %s\n", verdict)
}
