package feed

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/podium-performance/funnel-cli/internal/fetcher"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

// SheetReader pulls one tab of a remote spreadsheet as raw records.
type SheetReader interface {
	ReadTable(ctx context.Context, ref string) ([][]string, error)
}

// RowLoader resolves a feed source location into normalized rows.
// Locations are local paths (relative to Dir), http(s):// or ftp:// URLs,
// or Google Sheets URLs. The format is picked by file extension; anything
// that is not .xlsx parses as CSV.
type RowLoader struct {
	Dir    string
	HTTP   *fetcher.HTTPFetcher
	FTP    *fetcher.FTPFetcher
	Sheets SheetReader
}

// Load fetches and parses the rows at location.
func (l *RowLoader) Load(ctx context.Context, location string) ([]reconcile.Row, error) {
	switch {
	case isSheetURL(location):
		if l.Sheets == nil {
			return nil, eris.Errorf("feed: sheets source %q but no sheets client configured", location)
		}
		records, err := l.Sheets.ReadTable(ctx, location)
		if err != nil {
			return nil, eris.Wrapf(err, "feed: read sheet %q", location)
		}
		return Table(records), nil

	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return l.loadRemote(ctx, l.HTTP, location)

	case strings.HasPrefix(location, "ftp://"):
		return l.loadRemote(ctx, l.FTP, location)

	default:
		return l.loadLocal(ctx, location)
	}
}

func isSheetURL(location string) bool {
	return strings.HasPrefix(location, "https://docs.google.com/spreadsheets/") ||
		strings.HasPrefix(location, "sheet:")
}

func (l *RowLoader) loadRemote(ctx context.Context, f fetcher.Fetcher, location string) ([]reconcile.Row, error) {
	if f == nil {
		return nil, eris.Errorf("feed: no fetcher configured for %q", location)
	}

	rc, err := f.Download(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	if remoteExt(location) == ".xlsx" {
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, eris.Wrapf(err, "feed: read %q", location)
		}
		records, err := fetcher.ReadXLSXBytes(data, fetcher.XLSXOptions{})
		if err != nil {
			return nil, err
		}
		return Table(records), nil
	}

	records, err := fetcher.ReadCSV(ctx, rc, fetcher.CSVOptions{TrimSpace: true})
	if err != nil {
		return nil, err
	}
	return Table(records), nil
}

func (l *RowLoader) loadLocal(ctx context.Context, location string) ([]reconcile.Row, error) {
	path := location
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.Dir, path)
	}

	if filepath.Ext(path) == ".xlsx" {
		records, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
		if err != nil {
			return nil, err
		}
		return Table(records), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: open %q", path)
	}
	defer f.Close() //nolint:errcheck

	records, err := fetcher.ReadCSV(ctx, f, fetcher.CSVOptions{TrimSpace: true})
	if err != nil {
		return nil, err
	}
	return Table(records), nil
}

func remoteExt(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return strings.ToLower(filepath.Ext(u.Path))
}

// Table zips raw records into rows keyed by the normalized header. The
// first record is the header; cells beyond the header width are dropped,
// short rows leave the remaining columns blank.
func Table(records [][]string) []reconcile.Row {
	if len(records) == 0 {
		return nil
	}

	header := records[0]
	rows := make([]reconcile.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(reconcile.Row, len(header))
		for i, col := range header {
			key := reconcile.NormalizeKey(col)
			if key == "" {
				continue
			}
			if i < len(record) {
				row[key] = record[i]
			} else {
				row[key] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows
}
