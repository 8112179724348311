package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/podium-performance/funnel-cli/internal/model"
)

// Headers for the append-only edit logs. The column names must stay
// parseable by the corresponding feeds, which replay these files on
// every run.
var (
	manualLogHeader  = []string{"timestamp", "rider", "stage"}
	detailsLogHeader = []string{"timestamp", "rider", "field", "value"}
	revenueLogHeader = []string{"timestamp", "rider", "amount", "note"}
)

// logStamp formats a log timestamp in the UTC form the replay parser
// accepts.
func logStamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// appendLog appends one record to an append-only CSV log, writing the
// header first when the file does not exist yet.
func appendLog(path string, header, record []string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "create log directory for %s", path)
		}
	}

	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "open log %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(header); err != nil {
			return eris.Wrapf(err, "write log header %s", path)
		}
	}
	if err := w.Write(record); err != nil {
		return eris.Wrapf(err, "append to log %s", path)
	}
	w.Flush()
	return eris.Wrapf(w.Error(), "flush log %s", path)
}

// appendStageEdit records a manual stage change. The change takes full
// effect on the next reconciliation run.
func appendStageEdit(key string, stage model.Stage, at time.Time) error {
	path := dataPath(cfg.Data.ManualLog)
	return appendLog(path, manualLogHeader, []string{logStamp(at), key, string(stage)})
}

// appendFieldEdit records a manual profile field edit.
func appendFieldEdit(key, field, value string, at time.Time) error {
	path := dataPath(cfg.Data.DetailsLog)
	return appendLog(path, detailsLogHeader, []string{logStamp(at), key, field, value})
}

// appendRevenueEdit records a payment.
func appendRevenueEdit(key string, amount float64, note string, at time.Time) error {
	path := dataPath(cfg.Data.RevenueLog)
	return appendLog(path, revenueLogHeader, []string{logStamp(at), key, fmt.Sprintf("%.2f", amount), note})
}
