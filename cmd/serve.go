package main

import (
	"context"
	"encoding/json"
	"errors"
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

	"github.com/sells-group/pharmacy-harvester/internal/harvest"
	"github.com/sells-group/pharmacy-harvester/internal/model"
	"github.com/sells-group/pharmacy-harvester/internal/registry"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP sync server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		env, err := initEnv(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(env.Harvester, env.Cities, env.Store, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// statusLister reports persisted per-city coverage.
type statusLister interface {
	CityStatuses(ctx context.Context) ([]model.CityStatus, error)
}

type syncRequest struct {
	CitySlug string `json:"citySlug"`
}

type cityView struct {
	Slug   string  `json:"slug"`
	NameME string  `json:"name_me"`
	NameEN string  `json:"name_en"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Radius int     `json:"radius"`
}

// buildRouter mounts the sync API.
func buildRouter(h citySyncer, cities *registry.Cities, st statusLister, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/online-data", func(r chi.Router) {
		r.Post("/sync", func(w http.ResponseWriter, req *http.Request) {
			var body syncRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				respond(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if body.CitySlug == "" {
				respond(w, http.StatusBadRequest, map[string]string{"error": "citySlug is required"})
				return
			}

			res, err := h.Sync(req.Context(), body.CitySlug)
			switch {
			case errors.Is(err, harvest.ErrMissingCity):
				respond(w, http.StatusNotFound, res)
			case errors.Is(err, harvest.ErrStoreUnavailable):
				zap.L().Error("sync failed: store unavailable", zap.String("city", body.CitySlug), zap.Error(err))
				respond(w, http.StatusServiceUnavailable, res)
			case err != nil:
				zap.L().Error("sync failed", zap.String("city", body.CitySlug), zap.Error(err))
				respond(w, http.StatusInternalServerError, res)
			default:
				respond(w, http.StatusOK, res)
			}
		})

		r.Get("/cities", func(w http.ResponseWriter, _ *http.Request) {
			out := []cityView{}
			for _, c := range cities.All() {
				if !c.HasCoords() {
					continue
				}
				out = append(out, cityView{Slug: c.Slug, NameME: c.NameME, NameEN: c.NameEN, Lat: c.Lat, Lng: c.Lng, Radius: c.RadiusM})
			}
			respond(w, http.StatusOK, map[string]any{"success": true, "cities": out})
		})

		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			statuses, err := st.CityStatuses(req.Context())
			if err != nil {
				zap.L().Error("status failed", zap.Error(err))
				respond(w, http.StatusInternalServerError, map[string]string{"error": "status unavailable"})
				return
			}
			if statuses == nil {
				statuses = []model.CityStatus{}
			}
			respond(w, http.StatusOK, map[string]any{"success": true, "cities": statuses})
		})
	})

	return r
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
