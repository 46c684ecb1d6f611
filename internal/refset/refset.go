// Package refset builds labeled reference descriptors from a directory of face
// images and ranks query descriptors against them.
package refset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/face-matcher/internal/embedding"
	"github.com/kozaktomas/face-matcher/internal/imageload"
	"github.com/kozaktomas/face-matcher/internal/matcher"
)

// ImageLoader reads an image file into bytes the provider accepts.
type ImageLoader interface {
	FromFile(path string) ([]byte, error)
}

// Options controls how a reference set is built.
type Options struct {
	Extensions  []string
	Concurrency int
	// OnProgress is called once per candidate file, from worker goroutines.
	OnProgress func(file string)
}

// Skipped is a reference file that produced no descriptor.
type Skipped struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// Set is an immutable, ordered collection of reference descriptors.
type Set struct {
	references []matcher.LabeledDescriptor
	files      map[string]string
	Skipped    []Skipped
}

// Ranking is the result of ranking a query against a Set.
type Ranking struct {
	All            []matcher.MatchResult `json:"matches"`
	HighConfidence []matcher.MatchResult `json:"highConfidence"`
	Threshold      float64               `json:"threshold"`
}

// References returns the labeled descriptors in directory order.
func (s *Set) References() []matcher.LabeledDescriptor {
	return s.references
}

// File returns the file name a label was built from.
func (s *Set) File(label string) string {
	return s.files[label]
}

// Len returns the number of usable references.
func (s *Set) Len() int {
	return len(s.references)
}

// Label derives a reference label from a file name: the base name without
// extension, NFC-normalized so labels read the same on every filesystem.
func Label(fileName string) string {
	base := filepath.Base(fileName)
	return norm.NFC.String(strings.TrimSuffix(base, filepath.Ext(base)))
}

// ListImages returns the file names in dir that carry an accepted extension, in directory order.
func ListImages(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading reference directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !imageload.IsReferenceImage(e.Name(), exts) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Build describes every image in dir. Files without a detectable face are skipped
// and recorded; any other failure aborts the build. The resulting order always
// follows directory order, whatever order the workers finish in.
func Build(ctx context.Context, dir string, loader ImageLoader, provider embedding.Provider, opts Options) (*Set, error) {
	names, err := ListImages(dir, opts.Extensions)
	if err != nil {
		return nil, err
	}

	type slot struct {
		descriptor matcher.Descriptor
		skipReason string
	}
	slots := make([]slot, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Concurrency, 1))

	for i, name := range names {
		g.Go(func() error {
			if opts.OnProgress != nil {
				defer opts.OnProgress(name)
			}

			data, err := loader.FromFile(filepath.Join(dir, name))
			if err != nil {
				return fmt.Errorf("loading %s: %w", name, err)
			}

			desc, err := provider.Describe(gctx, data)
			if errors.Is(err, embedding.ErrNoFaceDetected) {
				slots[i].skipReason = err.Error()
				return nil
			}
			if err != nil {
				return fmt.Errorf("describing %s: %w", name, err)
			}
			slots[i].descriptor = desc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := &Set{
		references: make([]matcher.LabeledDescriptor, 0, len(names)),
		files:      make(map[string]string, len(names)),
	}
	for i, name := range names {
		if len(slots[i].descriptor) == 0 {
			if slots[i].skipReason == "" {
				slots[i].skipReason = "empty descriptor"
			}
			set.Skipped = append(set.Skipped, Skipped{File: name, Reason: slots[i].skipReason})
			slog.Debug("reference skipped", "file", name, "reason", slots[i].skipReason)
			continue
		}
		label := Label(name)
		if _, ok := set.files[label]; ok {
			// Same base name with another extension: keep the first label, rank this one under its file name.
			label = norm.NFC.String(name)
		}
		if prev, ok := set.files[label]; ok {
			set.Skipped = append(set.Skipped, Skipped{File: name, Reason: "duplicate label of " + prev})
			continue
		}
		set.files[label] = name
		set.references = append(set.references, matcher.LabeledDescriptor{
			Label:       label,
			Descriptors: []matcher.Descriptor{slots[i].descriptor},
		})
	}

	return set, nil
}

// Rank scores query against every reference and splits out the matches above threshold.
func Rank(set *Set, query matcher.Descriptor, threshold float64) (*Ranking, error) {
	all, err := matcher.RankMatches(query, set.References())
	if err != nil {
		return nil, err
	}
	return &Ranking{
		All:            all,
		HighConfidence: matcher.FilterAbove(all, threshold),
		Threshold:      threshold,
	}, nil
}
