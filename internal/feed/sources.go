package feed

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

// ErrAbsent marks a feed whose source is unconfigured, missing, or
// unreachable this run. The engine treats such feeds as empty, not as
// failures.
var ErrAbsent = eris.New("feed: source absent")

// Absent reports whether err means the feed's source was absent.
func Absent(err error) bool {
	return eris.Is(err, ErrAbsent)
}

// Provider produces rows for a feed backed by an API client rather than
// a file location (the CRM contact query, the remote master).
type Provider func(ctx context.Context) ([]reconcile.Row, error)

// SourceSet maps feed names to their row sources and caches fetched rows
// so prefetch and ingest see the same data.
type SourceSet struct {
	loader    *RowLoader
	locations map[string]string
	providers map[string]Provider

	mu   sync.Mutex
	rows map[string][]reconcile.Row
	errs map[string]error
}

// NewSourceSet creates an empty source set backed by loader.
func NewSourceSet(loader *RowLoader) *SourceSet {
	return &SourceSet{
		loader:    loader,
		locations: make(map[string]string),
		providers: make(map[string]Provider),
		rows:      make(map[string][]reconcile.Row),
		errs:      make(map[string]error),
	}
}

// SetLocation binds a feed name to a file path or URL.
func (s *SourceSet) SetLocation(feed, location string) {
	s.locations[feed] = location
}

// SetProvider binds a feed name to a row provider.
func (s *SourceSet) SetProvider(feed string, p Provider) {
	s.providers[feed] = p
}

// Location returns the configured location for a feed, if any. Feeds
// with non-tabular sources (directory exports) read it directly.
func (s *SourceSet) Location(feed string) (string, bool) {
	loc, ok := s.locations[feed]
	return loc, ok
}

// SetRows caches rows for a feed directly. Used by tests and by replays
// of already-fetched data.
func (s *SourceSet) SetRows(feed string, rows []reconcile.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[feed] = rows
}

// Rows returns the rows for a feed, fetching them on first use. Any
// fetch or parse failure is folded into ErrAbsent: a feed that cannot be
// read degrades to a feed with no data.
func (s *SourceSet) Rows(ctx context.Context, feed string) ([]reconcile.Row, error) {
	s.mu.Lock()
	if rows, ok := s.rows[feed]; ok {
		s.mu.Unlock()
		return rows, nil
	}
	if err, ok := s.errs[feed]; ok {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	rows, err := s.fetch(ctx, feed)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errs[feed] = err
		return nil, err
	}
	s.rows[feed] = rows
	return rows, nil
}

func (s *SourceSet) fetch(ctx context.Context, feed string) ([]reconcile.Row, error) {
	if p, ok := s.providers[feed]; ok {
		rows, err := p(ctx)
		if err != nil {
			return nil, eris.Wrapf(ErrAbsent, "feed %s: provider: %v", feed, err)
		}
		return rows, nil
	}

	loc, ok := s.locations[feed]
	if !ok {
		return nil, eris.Wrapf(ErrAbsent, "feed %s: no source configured", feed)
	}

	rows, err := s.loader.Load(ctx, loc)
	if err != nil {
		return nil, eris.Wrapf(ErrAbsent, "feed %s: load %q: %v", feed, loc, err)
	}
	return rows, nil
}

// remote reports whether the feed's source involves a network fetch.
func (s *SourceSet) remote(feed string) bool {
	if _, ok := s.providers[feed]; ok {
		return true
	}
	loc, ok := s.locations[feed]
	if !ok {
		return false
	}
	return strings.HasPrefix(loc, "http://") ||
		strings.HasPrefix(loc, "https://") ||
		strings.HasPrefix(loc, "ftp://") ||
		strings.HasPrefix(loc, "sheet:")
}

// Prefetch resolves every remote source among the given feeds
// concurrently, caching rows or failures. It always returns once all
// fetches settle; per-source failures surface later through Rows. The
// ingestion pipeline must not start until this returns, since ingestion
// order is load-bearing for override semantics.
func (s *SourceSet) Prefetch(ctx context.Context, feeds []string, limit int) {
	if limit <= 0 {
		limit = 4
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, feed := range feeds {
		if !s.remote(feed) {
			continue
		}
		g.Go(func() error {
			if _, err := s.Rows(ctx, feed); err != nil {
				zap.L().Warn("feed: prefetch failed", zap.String("feed", feed), zap.Error(err))
			}
			return nil
		})
	}

	g.Wait() //nolint:errcheck
}
