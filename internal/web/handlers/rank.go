package handlers

import (
	"errors"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-matcher/internal/embedding"
	"github.com/kozaktomas/face-matcher/internal/matcher"
	"github.com/kozaktomas/face-matcher/internal/metrics"
	"github.com/kozaktomas/face-matcher/internal/refset"
)

// RankMatch is one reference in a ranking response
type RankMatch struct {
	Label           string  `json:"label"`
	File            string  `json:"file"`
	Distance        float64 `json:"distance"`
	Confidence      float64 `json:"confidence"`
	PercentageMatch string  `json:"percentageMatch"`
}

// RankResponse represents the ranking of an uploaded face against the reference directory
type RankResponse struct {
	Matches        []RankMatch      `json:"matches"`
	HighConfidence []RankMatch      `json:"highConfidence"`
	Threshold      float64          `json:"threshold"`
	Skipped        []refset.Skipped `json:"skipped"`
}

func toRankMatches(set *refset.Set, results []matcher.MatchResult) []RankMatch {
	out := make([]RankMatch, len(results))
	for i, r := range results {
		out[i] = RankMatch{
			Label:           r.Label,
			File:            set.File(r.Label),
			Distance:        r.Distance,
			Confidence:      r.Confidence,
			PercentageMatch: matcher.PercentageMatch(r.Confidence),
		}
	}
	return out
}

// Rank ranks an uploaded face against every image in the reference directory.
// The reference set is rebuilt for every request and the upload is always removed.
func (h *CompareHandler) Rank(w http.ResponseWriter, r *http.Request) {
	if err := parseUploadForm(r); err != nil {
		respondCompareError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	threshold, ok := parseThreshold(r.FormValue("threshold"), h.config.Match.Threshold)
	if !ok {
		respondCompareError(w, http.StatusBadRequest, "threshold must be a number")
		return
	}

	upload, err := saveUpload(r, h.config.Image.UploadDir)
	if errors.Is(err, errMissingUpload) {
		respondCompareError(w, http.StatusBadRequest, "image file is required")
		return
	}
	if err != nil {
		h.respondFailure(w, "rank", err, http.StatusInternalServerError, errUploadStorage)
		return
	}
	defer upload.cleanup()

	var (
		set   *refset.Set
		query matcher.Descriptor
	)
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		set, err = refset.Build(gctx, h.config.Match.ReferenceDir, h.loader, h.provider, refset.Options{
			Extensions:  h.config.Match.Extensions,
			Concurrency: h.config.Match.Concurrency,
		})
		return err
	})
	g.Go(func() error {
		data, err := h.loader.FromFile(upload.Path)
		if err != nil {
			return err
		}
		query, err = h.provider.Describe(gctx, data)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, embedding.ErrNoFaceDetected) {
			// Reference files without a face are skipped, so this is always the query.
			h.respondFailure(w, "rank", err, http.StatusBadRequest, errQueryNoFace)
			return
		}
		h.fail(w, "rank", err)
		return
	}

	ranking, err := refset.Rank(set, query, threshold)
	if err != nil {
		h.fail(w, "rank", err)
		return
	}

	outcome := metrics.OutcomeNotMatched
	if len(ranking.HighConfidence) > 0 {
		outcome = metrics.OutcomeMatched
	}
	metrics.RecordComparison("rank", outcome)

	skipped := set.Skipped
	if skipped == nil {
		skipped = []refset.Skipped{}
	}
	respondJSON(w, http.StatusOK, RankResponse{
		Matches:        toRankMatches(set, ranking.All),
		HighConfidence: toRankMatches(set, ranking.HighConfidence),
		Threshold:      ranking.Threshold,
		Skipped:        skipped,
	})
}

