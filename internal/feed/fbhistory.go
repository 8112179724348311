package feed

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/podium-performance/funnel-cli/internal/fetcher"
	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

// FBHistory ingests a Facebook Messenger data export: a directory (or
// zip) of per-thread JSON files. Each thread attests that the rider was
// messaged, dated from the earliest message. Threads carry names but
// never emails, so identities match existing riders by name slug first
// and otherwise key under a no_email_ placeholder.
type FBHistory struct {
	owner string
}

// NewFBHistory creates the Messenger history feed. owner is the coach's
// own display name, used to tell which thread participant is the rider.
func NewFBHistory(owner string) *FBHistory {
	return &FBHistory{owner: owner}
}

func (f *FBHistory) Name() string { return "fb_history" }
func (f *FBHistory) Phase() Phase { return PhaseEnrichment }

type fbThread struct {
	Participants []struct {
		Name string `json:"name"`
	} `json:"participants"`
	Messages []struct {
		SenderName  string `json:"sender_name"`
		TimestampMS int64  `json:"timestamp_ms"`
	} `json:"messages"`
}

func (f *FBHistory) Ingest(ctx context.Context, env *Env) error {
	loc, ok := env.Sources.Location(f.Name())
	if !ok {
		return eris.Wrapf(ErrAbsent, "feed %s: no source configured", f.Name())
	}
	log := zap.L().With(zap.String("feed", f.Name()))

	dir, err := f.exportDir(loc)
	if err != nil {
		return eris.Wrapf(ErrAbsent, "feed %s: %v", f.Name(), err)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasPrefix(d.Name(), "message_") && strings.HasSuffix(d.Name(), ".json") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return eris.Wrapf(ErrAbsent, "feed %s: walk %q: %v", f.Name(), dir, err)
	}

	for _, path := range paths {
		env.Seen()

		thread, err := readThread(path)
		if err != nil {
			env.Skip(model.SkipBadEntry)
			log.Warn("unreadable thread", zap.String("path", path), zap.Error(err))
			continue
		}

		name := f.riderName(thread)
		if name == "" {
			env.Skip(model.SkipNoIdentity)
			continue
		}

		r := f.riderFor(env, name)
		if at, ok := earliestMessage(thread); ok {
			r.MarkMilestone(model.StageMessaged, at, false)
		}
		r.AdvanceTo(model.StageMessaged)

		env.Loaded()
	}

	return nil
}

// exportDir resolves the configured location to a directory of thread
// files, extracting zip exports into a temp dir first.
func (f *FBHistory) exportDir(loc string) (string, error) {
	info, err := os.Stat(loc)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return loc, nil
	}
	if strings.ToLower(filepath.Ext(loc)) != ".zip" {
		return "", eris.Errorf("expected a directory or zip, got %q", loc)
	}

	dir, err := os.MkdirTemp("", "fb_history")
	if err != nil {
		return "", err
	}
	if _, err := fetcher.ExtractZIPMatching(loc, ".json", dir); err != nil {
		return "", err
	}
	return dir, nil
}

func readThread(path string) (*fbThread, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t fbThread
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// riderName returns the repaired name of the thread participant who is
// not the coach.
func (f *FBHistory) riderName(t *fbThread) string {
	owner := strings.ToLower(f.owner)
	for _, p := range t.Participants {
		name := FixMojibake(p.Name)
		if name == "" {
			continue
		}
		if owner != "" && strings.Contains(strings.ToLower(name), owner) {
			continue
		}
		return name
	}
	return ""
}

func (f *FBHistory) riderFor(env *Env, name string) *model.Rider {
	slug := reconcile.Slugify(name)
	if r, ok := env.Riders.FindBySlug(slug); ok {
		return r
	}
	first, last := reconcile.SplitName(name)
	return env.Riders.GetOrCreate("no_email_"+slug, first, last)
}

// earliestMessage finds the thread's oldest plausible message time.
// Facebook has shipped exports with epoch-zero and garbage timestamps,
// so anything before 2000 is ignored.
func earliestMessage(t *fbThread) (time.Time, bool) {
	var earliest time.Time
	for _, m := range t.Messages {
		at := time.UnixMilli(m.TimestampMS).UTC()
		if at.Year() <= 2000 {
			continue
		}
		if earliest.IsZero() || at.Before(earliest) {
			earliest = at
		}
	}
	return earliest, !earliest.IsZero()
}

// FixMojibake repairs the double-encoding in Facebook exports, which
// write UTF-8 bytes escaped as latin-1 codepoints. If every rune fits in
// latin-1 and the resulting bytes are valid UTF-8, the re-decoded string
// wins; otherwise the input is returned unchanged.
func FixMojibake(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	raw, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil {
		return s
	}
	if !utf8.ValidString(raw) {
		return s
	}
	return raw
}
