package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/config"
	"github.com/podium-performance/funnel-cli/internal/feed"
	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/report"
	"github.com/podium-performance/funnel-cli/internal/store"
	"github.com/podium-performance/funnel-cli/internal/venue"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the funnel HTTP API",
	Long:  "Serves the reconciled snapshot to the dashboard: rider listing and lookup, the funnel report, manual stage updates, and async reconciliation reloads.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		a := &api{ctx: ctx, st: st, cfg: cfg}
		if m := notionMaster(); m != nil {
			a.master = m
		}
		if cfg.Venues.ShapefilePath != "" {
			reg, err := venue.LoadShapefile(cfg.Venues.ShapefilePath)
			if err != nil {
				zap.L().Warn("venue registry unavailable", zap.Error(err))
			} else {
				a.venues = reg
			}
		}
		a.reload = func(ctx context.Context) error {
			engine, err := buildEngine()
			if err != nil {
				return err
			}
			riders, rep, err := engine.Run(ctx, feed.RunOpts{})
			if err != nil {
				return err
			}
			saved, _, err := saveRun(ctx, st, riders.Riders(), rep)
			if err != nil {
				return err
			}
			zap.L().Info("reload saved snapshot",
				zap.String("run_id", rep.RunID),
				zap.Int("riders", saved),
			)
			return nil
		}

		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: a.router(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// api bundles the handler dependencies so the routes can be built and
// exercised without a running command.
type api struct {
	ctx    context.Context // base context for work that outlives a request
	st     store.Store
	cfg    *config.Config
	master pusher                          // nil when notion is unconfigured
	venues *venue.Registry                 // nil when no shapefile is configured
	reload func(ctx context.Context) error // full reconciliation run

	reloading atomic.Bool
}

// router builds the API routes.
func (a *api) router() http.Handler {
	origins := a.cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/riders", a.handleListRiders)
		r.Get("/riders/{key}", a.handleGetRider)
		r.Post("/riders/{key}/stage", a.handleStageUpdate)
		r.Get("/report", a.handleReport)
		r.Get("/venues/nearest", a.handleNearestVenue)
		r.Post("/reload", a.handleReload)
	})
	return r
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) handleListRiders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.RiderFilter{Search: q.Get("search")}
	if raw := q.Get("stage"); raw != "" {
		s, ok := model.ParseStage(raw)
		if !ok {
			writeErr(w, http.StatusBadRequest, fmt.Sprintf("unknown stage %q", raw))
			return
		}
		filter.Stage = s
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		filter.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		filter.Offset = n
	}

	riders, err := a.st.ListRiders(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list riders", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "list riders failed")
		return
	}
	if riders == nil {
		riders = []model.Rider{}
	}
	writeJSON(w, http.StatusOK, riders)
}

func (a *api) handleGetRider(w http.ResponseWriter, r *http.Request) {
	key := riderKeyParam(r)
	rider, err := a.st.GetRider(r.Context(), key)
	if err != nil {
		zap.L().Error("api: get rider", zap.String("key", key), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "get rider failed")
		return
	}
	if rider == nil {
		writeErr(w, http.StatusNotFound, "rider not found")
		return
	}
	writeJSON(w, http.StatusOK, rider)
}

func (a *api) handleStageUpdate(w http.ResponseWriter, r *http.Request) {
	key := riderKeyParam(r)

	var req struct {
		Stage string `json:"stage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	stage, ok := model.ParseStage(req.Stage)
	if !ok {
		writeErr(w, http.StatusBadRequest, fmt.Sprintf("unknown stage %q", req.Stage))
		return
	}

	now := time.Now().UTC()
	if err := a.appendStage(key, stage, now); err != nil {
		zap.L().Error("api: append stage edit", zap.String("key", key), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "record stage edit failed")
		return
	}

	// The log line is the durable change; the push is fire-and-forget.
	if a.master != nil {
		go a.pushStage(key, stage, now)
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"rider":  key,
		"stage":  string(stage),
	})
}

func (a *api) handleReport(w http.ResponseWriter, r *http.Request) {
	riders, err := a.st.ListRiders(r.Context(), store.RiderFilter{Limit: 100000})
	if err != nil {
		zap.L().Error("api: report", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "report failed")
		return
	}
	funnel := report.New(reportConfig(a.cfg)).Build(riders, time.Now())
	writeJSON(w, http.StatusOK, funnel)
}

// handleNearestVenue resolves a map coordinate from the dashboard to the
// closest registered circuit.
func (a *api) handleNearestVenue(w http.ResponseWriter, r *http.Request) {
	if a.venues == nil {
		writeErr(w, http.StatusServiceUnavailable, "venue registry is not configured")
		return
	}

	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		writeErr(w, http.StatusBadRequest, "lat and lng query parameters are required")
		return
	}

	c, km, ok := a.venues.Nearest(lat, lng)
	if !ok {
		writeErr(w, http.StatusNotFound, "no circuits registered")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        c.Name,
		"lat":         c.Lat(),
		"lng":         c.Lng(),
		"distance_km": km,
	})
}

func (a *api) handleReload(w http.ResponseWriter, r *http.Request) {
	if a.reload == nil {
		writeErr(w, http.StatusServiceUnavailable, "reload is not available")
		return
	}
	if !a.reloading.CompareAndSwap(false, true) {
		writeErr(w, http.StatusConflict, "a reload is already running")
		return
	}

	go func() {
		defer a.reloading.Store(false)
		if err := a.reload(a.ctx); err != nil {
			zap.L().Error("api: reload failed", zap.Error(err))
			return
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// appendStage writes the manual log line for an API stage update.
func (a *api) appendStage(key string, stage model.Stage, at time.Time) error {
	name := a.cfg.Data.ManualLog
	if name == "" {
		name = "manual_updates.csv"
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.cfg.Data.Dir, path)
	}
	return appendLog(path, manualLogHeader, []string{logStamp(at), key, string(stage)})
}

// pushStage sends the updated record to the master from a background
// goroutine; failures land on the push queue.
func (a *api) pushStage(key string, stage model.Stage, at time.Time) {
	rider, err := a.st.GetRider(a.ctx, key)
	if err != nil {
		zap.L().Error("api: load rider for push", zap.String("key", key), zap.Error(err))
		return
	}
	if rider == nil {
		rider = model.NewRider(key, "", "")
	}
	rider.ForceStage(stage)
	rider.MarkMilestone(stage, at, true)

	if err := pushRider(a.ctx, a.st, a.master, rider); err != nil {
		zap.L().Warn("api: master push failed, queued for retry",
			zap.String("rider", key),
			zap.Error(err),
		)
	}
}

func riderKeyParam(r *http.Request) string {
	key := chi.URLParam(r, "key")
	if dec, err := url.PathUnescape(key); err == nil {
		key = dec
	}
	return strings.ToLower(strings.TrimSpace(key))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: write response", zap.Error(err))
	}
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
