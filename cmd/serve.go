package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/config"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/report"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the persisted dataset over HTTP",
	Long: "Exposes the territorial-unit dataset, quick statistics, and the run\n" +
		"history as a JSON API with CORS and a global rate limit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st, cfg.Server),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("serve: shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Error("serve: shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("serve: listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter wires the dataset API over the store.
func newRouter(st store.Store, sc config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(throttle(rate.NewLimiter(rate.Limit(sc.RequestsPerSec), sc.Burst)))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/units", handleListUnits(st))
		r.Get("/units/{cve}", handleGetUnit(st))
		r.Get("/stats/population", handlePopulation(st))
		r.Get("/runs", handleListRuns(st))
	})
	return r
}

// throttle applies one token-bucket limiter across all clients. The
// dataset is small and public; fairness per client is not a goal.
func throttle(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("serve: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func handleListUnits(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.UnitFilter{
			Limit:  queryInt(r, "limit", 0),
			Offset: queryInt(r, "offset", 0),
		}
		units, err := st.ListUnits(r.Context(), filter)
		if err != nil {
			zap.L().Error("serve: list units", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list units failed")
			return
		}
		if units == nil {
			units = []store.Unit{}
		}
		if r.URL.Query().Get("format") == "geojson" {
			writeJSON(w, http.StatusOK, featureCollection(units))
			return
		}
		writeJSON(w, http.StatusOK, units)
	}
}

func handleGetUnit(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cve := chi.URLParam(r, "cve")
		u, err := st.GetUnit(r.Context(), cve)
		if err != nil {
			zap.L().Error("serve: get unit", zap.String("cve", cve), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get unit failed")
			return
		}
		if u == nil {
			writeError(w, http.StatusNotFound, "unit not found")
			return
		}
		if r.URL.Query().Get("format") == "geojson" {
			writeJSON(w, http.StatusOK, featureCollection([]store.Unit{*u}).Features[0])
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func handlePopulation(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		units, err := st.ListUnits(r.Context(), store.UnitFilter{})
		if err != nil {
			zap.L().Error("serve: population stats", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "population stats failed")
			return
		}
		writeJSON(w, http.StatusOK, report.Population(units))
	}
}

func handleListRuns(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := st.ListRuns(r.Context(), queryInt(r, "limit", 20))
		if err != nil {
			zap.L().Error("serve: list runs", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list runs failed")
			return
		}
		if runs == nil {
			runs = []store.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

// featureCollection renders units as GeoJSON, geometry included.
func featureCollection(units []store.Unit) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{}
	for _, u := range units {
		props := make(map[string]interface{}, len(u.Attrs)+2)
		props["cve_ut"] = u.CVE
		props["nombre_ut"] = u.Name
		for k, v := range u.Attrs {
			props[k] = v
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         u.CVE,
			Geometry:   u.Geom,
			Properties: props,
		})
	}
	return fc
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("serve: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
