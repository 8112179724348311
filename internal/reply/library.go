// Package reply suggests coach replies for incoming prospect messages.
// Suggestions are retrieved from past conversations: the Messenger
// history export is mined for prospect-message → coach-reply pairs, and
// an incoming text is matched against the stored triggers by text
// similarity.
package reply

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/feed"
	"github.com/podium-performance/funnel-cli/internal/fetcher"
)

// minMessageRunes filters out reactions, thumbs-ups and link-only blips
// that make useless triggers.
const minMessageRunes = 4

// Pair is one mined exchange: what a prospect wrote and what the coach
// answered next in the same thread.
type Pair struct {
	Trigger string    `json:"trigger"`
	Reply   string    `json:"reply"`
	Sender  string    `json:"sender"`
	SentAt  time.Time `json:"sent_at"`
}

// Library holds the mined pairs in export order.
type Library struct {
	pairs []Pair
}

// Pairs returns the mined exchanges.
func (l *Library) Pairs() []Pair { return l.pairs }

// Len reports how many exchanges were mined.
func (l *Library) Len() int { return len(l.pairs) }

type historyThread struct {
	Messages []struct {
		SenderName  string `json:"sender_name"`
		Content     string `json:"content"`
		TimestampMS int64  `json:"timestamp_ms"`
	} `json:"messages"`
}

// LoadLibrary mines a Messenger export (directory or zip of per-thread
// message_*.json files) for conversation pairs. Within each thread,
// messages are ordered by timestamp and every prospect message directly
// answered by the coach becomes a pair. coachName decides which side of
// the conversation is the coach, by substring match on the sender.
func LoadLibrary(path, coachName string) (*Library, error) {
	dir, err := exportDir(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reply: open export %q", path)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasPrefix(d.Name(), "message_") && strings.HasSuffix(d.Name(), ".json") {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "reply: walk export %q", dir)
	}

	lib := &Library{}
	threads := 0
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			zap.L().Warn("reply: unreadable thread", zap.String("path", p), zap.Error(err))
			continue
		}
		var t historyThread
		if err := json.Unmarshal(data, &t); err != nil {
			zap.L().Warn("reply: bad thread json", zap.String("path", p), zap.Error(err))
			continue
		}
		lib.mineThread(&t, coachName)
		threads++
	}

	zap.L().Info("reply: library loaded",
		zap.Int("threads", threads),
		zap.Int("pairs", lib.Len()),
	)
	return lib, nil
}

// mineThread extracts adjacent prospect→coach exchanges from one thread.
func (l *Library) mineThread(t *historyThread, coachName string) {
	msgs := t.Messages
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].TimestampMS < msgs[j].TimestampMS
	})

	coach := strings.ToLower(coachName)
	isCoach := func(sender string) bool {
		return coach != "" && strings.Contains(strings.ToLower(sender), coach)
	}

	for i := 0; i+1 < len(msgs); i++ {
		cur, next := msgs[i], msgs[i+1]
		if isCoach(cur.SenderName) || !isCoach(next.SenderName) {
			continue
		}

		trigger := feed.FixMojibake(cur.Content)
		answer := feed.FixMojibake(next.Content)
		if utf8.RuneCountInString(trigger) < minMessageRunes ||
			utf8.RuneCountInString(answer) < minMessageRunes {
			continue
		}

		l.pairs = append(l.pairs, Pair{
			Trigger: trigger,
			Reply:   answer,
			Sender:  feed.FixMojibake(cur.SenderName),
			SentAt:  time.UnixMilli(next.TimestampMS).UTC(),
		})
	}
}

// exportDir resolves a directory or zip export to a walkable directory.
func exportDir(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return path, nil
	}
	if strings.ToLower(filepath.Ext(path)) != ".zip" {
		return "", eris.Errorf("expected a directory or zip, got %q", path)
	}

	dir, err := os.MkdirTemp("", "reply_history")
	if err != nil {
		return "", err
	}
	if _, err := fetcher.ExtractZIPMatching(path, ".json", dir); err != nil {
		return "", err
	}
	return dir, nil
}
