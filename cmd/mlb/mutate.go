package main

import (
	"context"
	"errors"
	"time"

	"github.com/franz/media-librarian/internal/postaction"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// mutation is what a query run does to the rows it matched
type mutation int

const (
	mutateNone mutation = iota
	mutateMarkDeleted
	mutateMarkWatched
	mutateDeleteRows
	mutateDeleteFiles
)

func (f *queryFlags) mutation(letters string) mutation {
	switch {
	case f.markDeleted:
		return mutateMarkDeleted
	case f.markWatched:
		return mutateMarkWatched
	case f.deleteRows:
		return mutateDeleteRows
	case f.deleteFiles:
		return mutateDeleteFiles
	}
	for _, r := range letters {
		switch r {
		case 'd':
			return mutateMarkDeleted
		case 'w':
			return mutateMarkWatched
		}
	}
	return mutateNone
}

// mutate applies m to rows and returns how many were changed
func mutate(ctx context.Context, a *app, m mutation, rows []store.Row) (int64, error) {
	paths := make([]string, len(rows))
	for i, r := range rows {
		paths[i] = r.String("path")
	}

	switch m {
	case mutateMarkDeleted:
		return a.store.MarkDeleted(ctx, time.Now(), paths...)

	case mutateMarkWatched:
		rec := postaction.NewRecorder(a.store, a.events, nil)
		var n int64
		for _, r := range rows {
			if err := rec.MarkWatched(ctx, r); err != nil {
				return n, err
			}
			n++
		}
		return n, nil

	case mutateDeleteRows:
		return a.store.DeleteRows(ctx, paths...)

	case mutateDeleteFiles:
		var errs []error
		var trashed []string
		for _, p := range paths {
			if !util.IsURL(p) {
				if err := a.files.Trash(ctx, p); err != nil {
					errs = append(errs, err)
					continue
				}
			}
			trashed = append(trashed, p)
		}
		n, err := a.store.MarkDeleted(ctx, time.Now(), trashed...)
		if err != nil {
			errs = append(errs, err)
		}
		return n, errors.Join(errs...)
	}
	return 0, nil
}
