// Package query compiles user filter options into one parameterized SQL
// statement over the catalog.
package query

import (
	"context"
	"fmt"

	"github.com/franz/media-librarian/internal/store"
	"github.com/franz/media-librarian/internal/util"
)

// Action is the subcommand a query serves; it picks limits and sort preambles
type Action string

const (
	ActionWatch     Action = "watch"
	ActionListen    Action = "listen"
	ActionRead      Action = "read"
	ActionView      Action = "view"
	ActionDownload  Action = "download"
	ActionSearch    Action = "search"
	ActionBigDirs   Action = "bigdirs"
	ActionDedupe    Action = "dedupe"
	ActionHistory   Action = "history"
	ActionPlaylists Action = "playlists"
)

// IsPlayback reports actions that hand a queue to a player
func (a Action) IsPlayback() bool {
	switch a {
	case ActionWatch, ActionListen, ActionRead, ActionView:
		return true
	}
	return false
}

// DefaultSubtitleMix is the chance that a watch queue prefers media
// without subtitles
const DefaultSubtitleMix = 0.35

// Spec is everything a query subcommand was asked for. The CLI fills it;
// nothing in here knows about flags.
type Spec struct {
	Action Action
	Table  string // "media" (default) or "playlists"

	Paths   []string // positional path prefixes
	Include []string
	Exclude []string
	Where   []string
	Skip    []string // exact paths left out of the result
	Sort    []string
	Limit   string // "" for the action default, "all" or "inf" for none
	Offset  int
	Random  bool

	Ext              []string
	Sizes            []string
	Bitrates         []string
	Durations        []string
	DurationFromSize []string

	CreatedWithin, CreatedBefore       string
	ChangedWithin, ChangedBefore       string
	DeletedWithin, DeletedBefore       string
	DownloadedWithin, DownloadedBefore string
	PlayedWithin, PlayedBefore         string

	Portrait    bool
	NoVideo     bool
	NoAudio     bool
	NoSubtitles bool
	Subtitles   bool
	OnlineOnly  bool
	LocalOnly   bool

	// Partial is the watch-history mode; PartialSet distinguishes "-P" from absent
	Partial    string
	PartialSet bool

	NoFTS bool
	Flex  bool
	Exact bool

	Print       string // composable letters, see HasPrint
	KeepDir     string
	Deleted     bool // include soft-deleted rows
	SubtitleMix float64
	Seed        int64
}

// HasPrint reports whether letter was requested with --print
func (s Spec) HasPrint(letter rune) bool {
	for _, r := range s.Print {
		if r == letter {
			return true
		}
	}
	return false
}

// Catalog is the schema a query is compiled against
type Catalog struct {
	Table     string
	Columns   map[string]string
	FTSTable  string
	Tokenizer string // "trigram" cannot match terms under three runes
}

// Has reports whether the base table has col
func (c Catalog) Has(col string) bool {
	_, ok := c.Columns[col]
	return ok
}

// SearchColumns are the LIKE search targets present in the table
func (c Catalog) SearchColumns() []string {
	candidates := store.MediaSearchColumns
	if c.Table == "playlists" {
		candidates = []string{"path", "title", "uploader", "category"}
	}
	var cols []string
	for _, col := range candidates {
		if c.Has(col) {
			cols = append(cols, col)
		}
	}
	return cols
}

// LoadCatalog reads the schema of table from the store
func LoadCatalog(ctx context.Context, st *store.Store, table string) (Catalog, error) {
	if table == "" {
		table = "media"
	}
	cols, err := st.Columns(ctx, table)
	if err != nil {
		return Catalog{}, err
	}
	if len(cols) == 0 {
		return Catalog{}, fmt.Errorf("table %s: %w", table, util.ErrNotFound)
	}
	cat := Catalog{Table: table, Columns: cols}
	if fts, ok := st.DetectFTS(ctx, table); ok {
		cat.FTSTable = fts
		cat.Tokenizer = st.FTSTokenizer(ctx, fts)
	}
	return cat, nil
}

// BadPredicateError reports an option value the compiler cannot use
type BadPredicateError struct {
	Option string
	Value  string
	Reason string
}

func (e *BadPredicateError) Error() string {
	return fmt.Sprintf("bad %s %q: %s", e.Option, e.Value, e.Reason)
}

func (e *BadPredicateError) Unwrap() error {
	return util.ErrBadPredicate
}

func badPredicate(option, value string, err error) error {
	return &BadPredicateError{Option: option, Value: value, Reason: err.Error()}
}
