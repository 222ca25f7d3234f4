package playback

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// Folder is one bigdirs group
type Folder struct {
	Path       string
	SizeSum    int64
	MedianSize int64
	Exists     int
	Deleted    int
	Played     int
	Total      int
}

// BigDirsOptions bounds the rollup; zero values are unbounded
type BigDirsOptions struct {
	Depth         int // path components to keep, 0 for the parent folder
	Lower, Upper  int // member count band
	MinFolderSize int64
	MaxFolderSize int64
	Sort          []FolderSort // after these, average size then path
}

// FolderSort is one folder ordering key
type FolderSort struct {
	Field string
	Desc  bool
}

// folderFields are the numeric keys a folder can be sorted by; path sorts
// as text
var folderFields = map[string]func(Folder) float64{
	"size":        func(f Folder) float64 { return float64(f.SizeSum) },
	"avg_size":    func(f Folder) float64 { return f.avgSize() },
	"median_size": func(f Folder) float64 { return float64(f.MedianSize) },
	"count":       func(f Folder) float64 { return float64(f.Exists) },
	"exists":      func(f Folder) float64 { return float64(f.Exists) },
	"deleted":     func(f Folder) float64 { return float64(f.Deleted) },
	"played":      func(f Folder) float64 { return float64(f.Played) },
	"total":       func(f Folder) float64 { return float64(f.Total) },
}

// ParseFolderSort reads "field [asc|desc]" entries, comma separated
func ParseFolderSort(entries []string) ([]FolderSort, error) {
	var out []FolderSort
	for _, entry := range entries {
		for _, part := range strings.Split(entry, ",") {
			fields := strings.Fields(strings.ToLower(part))
			if len(fields) == 0 {
				continue
			}
			key := FolderSort{Field: fields[0]}
			if _, ok := folderFields[key.Field]; !ok && key.Field != "path" {
				return nil, fmt.Errorf("unknown folder sort key %q: %w", part, util.ErrBadPredicate)
			}
			switch {
			case len(fields) == 1:
			case len(fields) == 2 && fields[1] == "desc":
				key.Desc = true
			case len(fields) == 2 && fields[1] == "asc":
			default:
				return nil, fmt.Errorf("bad folder sort %q: %w", part, util.ErrBadPredicate)
			}
			out = append(out, key)
		}
	}
	return out, nil
}

func (f Folder) avgSize() float64 {
	if f.Exists == 0 {
		return 0
	}
	return float64(f.SizeSum) / float64(f.Exists)
}

// less orders f before o under keys
func (f Folder) less(o Folder, keys []FolderSort) bool {
	for _, k := range keys {
		if k.Field == "path" {
			if f.Path != o.Path {
				return (f.Path < o.Path) != k.Desc
			}
			continue
		}
		x, y := folderFields[k.Field](f), folderFields[k.Field](o)
		if x != y {
			return (x < y) != k.Desc
		}
	}
	if x, y := f.avgSize(), o.avgSize(); x != y {
		return x < y
	}
	return f.Path < o.Path
}

// BigDirs groups rows by folder, smallest average size first unless
// opts.Sort says otherwise. Rows should include soft-deleted media so
// the deleted counts are meaningful; play_count is read when present.
func BigDirs(rows []store.Row, opts BigDirsOptions) []Folder {
	groups := make(map[string][]store.Row)
	for _, r := range rows {
		p := r.String("path")
		if util.IsURL(p) {
			continue
		}
		key := folderKey(p, opts.Depth)
		groups[key] = append(groups[key], r)
	}

	var folders []Folder
	for key, members := range groups {
		f := Folder{Path: key, Total: len(members)}
		var sizes []int64
		for _, r := range members {
			if r.Int64("time_deleted") > 0 {
				f.Deleted++
				continue
			}
			f.Exists++
			size := r.Int64("size")
			f.SizeSum += size
			sizes = append(sizes, size)
			if r.Int64("play_count") > 0 {
				f.Played++
			}
		}
		if f.Exists == 0 {
			continue
		}
		if (opts.Lower > 0 && f.Total < opts.Lower) || (opts.Upper > 0 && f.Total > opts.Upper) {
			continue
		}
		if (opts.MinFolderSize > 0 && f.SizeSum < opts.MinFolderSize) || (opts.MaxFolderSize > 0 && f.SizeSum > opts.MaxFolderSize) {
			continue
		}
		f.MedianSize = median(sizes)
		folders = append(folders, f)
	}

	sort.Slice(folders, func(i, j int) bool { return folders[i].less(folders[j], opts.Sort) })
	return folders
}

func folderKey(p string, depth int) string {
	dir := path.Dir(p)
	if depth <= 0 {
		return dir
	}
	parts := strings.Split(strings.TrimPrefix(dir, "/"), "/")
	if len(parts) > depth {
		parts = parts[:depth]
	}
	key := strings.Join(parts, "/")
	if strings.HasPrefix(p, "/") {
		key = "/" + key
	}
	return key
}

func median(values []int64) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
