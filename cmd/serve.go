package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth-cli/internal/classify"
	"github.com/sells-group/choropleth-cli/internal/export"
	"github.com/sells-group/choropleth-cli/internal/model"
	"github.com/sells-group/choropleth-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve maps, selections, and diagnostics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		api := &mapAPI{
			env:   env,
			store: st,
			ttl:   storeTTL(cfg),
			bands: model.BinEdges(cfg.Classify.HistogramBands),
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(api, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.String("dataset", env.Dataset))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// mapAPI serves engine results. store may be nil, in which case every map is
// computed on request.
type mapAPI struct {
	env   *mapEnv
	store store.Store
	ttl   time.Duration
	bands model.BinEdges
}

func buildRouter(api *mapAPI, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", api.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/selections", api.handleSelections)
		r.Get("/map", api.handleMap)
		r.Get("/maps", api.handleListMaps)
		r.Get("/missing", api.handleMissing)
		r.Get("/histogram", api.handleHistogram)
	})
	return r
}

func (a *mapAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type categoryOption struct {
	Code  model.Category `json:"code"`
	Label string         `json:"label"`
}

func (a *mapAPI) handleSelections(w http.ResponseWriter, r *http.Request) {
	eng := a.env.Engine
	cats := make([]categoryOption, 0, len(model.Categories))
	for _, c := range eng.Categories() {
		cats = append(cats, categoryOption{Code: c, Label: c.Label()})
	}
	periods := eng.Periods()
	if periods == nil {
		periods = []int{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset":    a.env.Dataset,
		"boundary":   a.env.Boundary,
		"periods":    periods,
		"categories": cats,
	})
}

func (a *mapAPI) handleMap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := zap.L().With(zap.String("component", "serve"), zap.String("request_id", middleware.GetReqID(ctx)))

	sel, ok := a.selection(w, r)
	if !ok {
		return
	}

	if a.store != nil {
		e, err := a.store.GetMap(ctx, a.env.Dataset, sel.Key())
		if err != nil {
			log.Warn("map cache read failed", zap.Error(err))
		} else if e != nil {
			writeGeoJSON(w, e.Payload, "hit")
			return
		}
	}

	res, err := a.env.Engine.Run(ctx, sel)
	if err != nil {
		log.Error("map computation failed", zap.String("selection", sel.Key()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "map computation failed")
		return
	}
	entry, err := mapEntry(a.env.Dataset, res)
	if err != nil {
		log.Error("map encoding failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "map encoding failed")
		return
	}
	if a.store != nil {
		if err := a.store.PutMap(ctx, entry, a.ttl); err != nil {
			log.Warn("map cache write failed", zap.Error(err))
		}
	}
	writeGeoJSON(w, entry.Payload, "miss")
}

func (a *mapAPI) handleListMaps(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeJSON(w, http.StatusOK, []store.Entry{})
		return
	}
	entries, err := a.store.ListMaps(r.Context(), a.env.Dataset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list maps failed")
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *mapAPI) handleMissing(w http.ResponseWriter, r *http.Request) {
	sel, ok := a.selection(w, r)
	if !ok {
		return
	}
	res, err := a.env.Engine.Run(r.Context(), sel)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "map computation failed")
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(http.StatusOK)
		_ = export.WriteMissingCSV(w, res)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"selection":   res.Selection,
		"empty":       res.Empty,
		"diagnostics": res.Diagnostics,
	})
}

func (a *mapAPI) handleHistogram(w http.ResponseWriter, r *http.Request) {
	sel, ok := a.selection(w, r)
	if !ok {
		return
	}
	counts, err := a.env.Engine.Histogram(r.Context(), sel, a.bands)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "histogram failed")
		return
	}
	if counts == nil {
		counts = []classify.BandCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"selection": sel,
		"bands":     counts,
	})
}

// selection reads period and category query parameters, writing a 400 when
// they cannot be resolved.
func (a *mapAPI) selection(w http.ResponseWriter, r *http.Request) (model.Selection, bool) {
	q := r.URL.Query()
	sel, err := resolveSelection(a.env.Engine, q.Get("period"), q.Get("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return model.Selection{}, false
	}
	return sel, true
}

func writeGeoJSON(w http.ResponseWriter, payload []byte, cache string) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("X-Cache", cache)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
