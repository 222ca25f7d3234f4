package playback

import (
	"context"
	"errors"
	"strings"

	"github.com/franz/media-librarian/internal/normalize"
	"github.com/franz/media-librarian/internal/query"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// relatedWords caps how many seed words feed the search
const relatedWords = 100

// RelatedOptions picks what the expansion keeps from the original query
type RelatedOptions struct {
	DropFilters bool // ignore the original row filters and path prefixes
	DropSearch  bool // ignore the original include/exclude terms
}

// Related finds media that share words with seed, best match first
func (s *Selector) Related(ctx context.Context, seed store.Row, spec query.Spec, opts RelatedOptions) ([]store.Row, error) {
	var text []string
	for _, col := range store.MediaSearchColumns {
		text = append(text, normalize.PathToSentence(seed.String(col)))
	}
	words := normalize.LongestWords(strings.Join(text, " "), relatedWords)
	if len(words) == 0 {
		return nil, nil
	}

	rel := relatedSpec(spec, opts)
	rel.Include = append(rel.Include, words...)
	rel.Flex = true
	rel.Skip = append(rel.Skip, seed.String("path"))

	res, err := s.Queue(ctx, rel)
	if errors.Is(err, util.ErrNoMedia) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

func relatedSpec(spec query.Spec, opts RelatedOptions) query.Spec {
	rel := spec
	rel.Sort = nil
	rel.Random = false
	if opts.DropSearch {
		rel.Include = nil
		rel.Exclude = nil
	} else {
		rel.Include = append([]string(nil), spec.Include...)
	}
	if opts.DropFilters {
		rel = query.Spec{
			Action:      spec.Action,
			Table:       spec.Table,
			Include:     rel.Include,
			Exclude:     rel.Exclude,
			Skip:        spec.Skip,
			Limit:       spec.Limit,
			Print:       spec.Print,
			SubtitleMix: spec.SubtitleMix,
			Seed:        spec.Seed,
		}
	}
	return rel
}
