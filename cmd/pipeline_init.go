package main

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/podium-performance/funnel-cli/internal/config"
	"github.com/podium-performance/funnel-cli/internal/feed"
	"github.com/podium-performance/funnel-cli/internal/fetcher"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
	"github.com/podium-performance/funnel-cli/internal/report"
	"github.com/podium-performance/funnel-cli/internal/store"
	"github.com/podium-performance/funnel-cli/pkg/crm"
	"github.com/podium-performance/funnel-cli/pkg/notion"
	"github.com/podium-performance/funnel-cli/pkg/sheets"
)

// initStore opens the snapshot store selected by store.driver.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// dataPath resolves a file name from configuration against the data
// directory. Absolute paths pass through.
func dataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(cfg.Data.Dir, name)
}

// newRowLoader builds the transport layer feed sources load through:
// local files under the data dir, HTTP and FTP downloads, and the
// Sheets API when a key is configured.
func newRowLoader() *feed.RowLoader {
	l := &feed.RowLoader{
		Dir:  cfg.Data.Dir,
		HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}),
		FTP:  fetcher.NewFTPFetcher(fetcher.FTPOptions{}),
	}
	if cfg.Sheets.APIKey != "" {
		var opts []sheets.Option
		if cfg.Sheets.BaseURL != "" {
			opts = append(opts, sheets.WithBaseURL(cfg.Sheets.BaseURL))
		}
		l.Sheets = sheets.NewClient(cfg.Sheets.APIKey, opts...)
	}
	return l
}

// notionMaster returns the remote master client, or nil when Notion is
// not configured. Callers degrade: the master feed reads as absent and
// pushes are refused with a clear error.
func notionMaster() *notion.Master {
	if cfg.Notion.Token == "" || cfg.Notion.RidersDB == "" {
		return nil
	}
	return notion.NewMaster(notion.NewClient(cfg.Notion.Token), cfg.Notion.RidersDB)
}

// buildEngine assembles one run's pipeline: the feed registry, the
// source set with provider-backed feeds bound to their API clients, and
// any manifest scans.
func buildEngine() (*feed.Engine, error) {
	reg := feed.NewRegistry(cfg)
	srcs := feed.DefaultSources(cfg, newRowLoader())

	if cfg.Salesforce.ClientID != "" {
		sf, err := crm.Connect(cfg.Salesforce)
		if err != nil {
			return nil, err
		}
		client := crm.NewClient(sf)
		srcs.SetProvider("crm_contacts", func(ctx context.Context) ([]reconcile.Row, error) {
			return crm.Rows(ctx, client)
		})
	}

	if m := notionMaster(); m != nil {
		srcs.SetProvider("master", m.Rows)
	}

	manifest, err := feed.LoadManifest(dataPath(cfg.Data.Manifest))
	if err != nil {
		return nil, err
	}
	if err := feed.RegisterManifest(reg, srcs, manifest); err != nil {
		return nil, err
	}

	return feed.NewEngine(reg, srcs), nil
}

// reportConfig maps the configured targets onto the reporter.
func reportConfig(c *config.Config) report.Config {
	return report.Config{
		MonthlyRevenueTarget: c.Targets.MonthlyRevenue,
		AverageDealValue:     c.Targets.DealValue,
		Rates: report.Rates{
			ContactToReply:    c.Targets.ContactToReply,
			ReplyToRegistered: c.Targets.ReplyToRegistered,
			RegisteredToDay2:  c.Targets.RegisteredToDay2,
			Day2ToCall:        c.Targets.Day2ToCall,
			CallToClient:      c.Targets.CallToClient,
		},
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
