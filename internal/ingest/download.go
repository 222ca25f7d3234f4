package ingest

import (
	"context"
	"errors"

	"github.com/franz/media-librarian/internal/extractor"
	"github.com/franz/media-librarian/internal/report"
	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// Fetcher downloads one URL into a directory
type Fetcher interface {
	Download(ctx context.Context, url, dir string) (extractor.Entry, error)
}

// Downloader fetches online rows and re-ingests them under their local path
type Downloader struct {
	store    *store.Store
	ingester *Ingester
	fetcher  Fetcher
	dir      string
	logger   *report.EventLogger
}

// NewDownloader creates a Downloader writing below dir
func NewDownloader(st *store.Store, in *Ingester, fetcher Fetcher, dir string, logger *report.EventLogger) *Downloader {
	return &Downloader{store: st, ingester: in, fetcher: fetcher, dir: dir, logger: logger}
}

// DownloadStats summarizes a download run
type DownloadStats struct {
	Downloaded int
	Failed     int
	Deleted    int
}

// Download fetches every online row. Recoverable failures are recorded on
// the row, unrecoverable ones soft-delete it, Prefix ones stop the run.
func (d *Downloader) Download(ctx context.Context, rows []store.Row) (DownloadStats, error) {
	var stats DownloadStats
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		url := row.String("path")
		if !util.IsURL(url) {
			continue
		}

		entry, err := d.fetcher.Download(ctx, url, d.dir)
		if err == nil {
			entry["webpage_url"] = url
			_, err = d.ingester.Add(ctx, entry, Options{
				PlaylistID: row.Int64("playlist_id"),
				Downloaded: true,
				Source:     url,
			})
		}
		local, _ := entry["filepath"].(string)
		d.logger.LogDownload(url, local, err)
		if err == nil {
			stats.Downloaded++
			util.SuccessLog("Downloaded %s", url)
			continue
		}

		stats.Failed++
		if errors.Is(err, util.ErrAbortRun) {
			return stats, err
		}
		if errors.Is(err, util.ErrUnrecoverable) {
			if _, derr := d.store.MarkDeleted(ctx, d.ingester.now(), url); derr != nil {
				return stats, derr
			}
			stats.Deleted++
			util.WarnLog("Gone for good: %s", url)
			continue
		}
		if serr := d.store.SetError(ctx, url, err.Error()); serr != nil {
			return stats, serr
		}
		util.WarnLog("Download failed, will retry later: %s: %v", url, err)
	}
	return stats, nil
}
