package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/placematch/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and background job worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := buildEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		e.Worker.Start(ctx)

		r := buildRouter(e)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background()) //nolint:errcheck
			return nil
		})

		if err := g.Wait(); err != nil {
			return err
		}

		if err := e.Worker.Stop(cfg.Worker.ShutdownWait()); err != nil {
			zap.L().Warn("worker did not stop cleanly", zap.Error(err))
		}
		return nil
	},
}

func buildRouter(e *env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/jobs", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Location string `json:"location"`
			Category string `json:"category"`
			Force    bool   `json:"force"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Location == "" {
			writeError(w, http.StatusBadRequest, "location is required")
			return
		}

		job, cached, err := e.Jobs.CreateOrReuse(req.Context(), body.Location, body.Category, body.Force)
		if err != nil {
			zap.L().Error("create job failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not create job")
			return
		}

		status := http.StatusAccepted
		if cached {
			status = http.StatusOK
		}
		writeJSON(w, status, jobResponse(job, cached))
	})

	r.Get("/jobs", func(w http.ResponseWriter, req *http.Request) {
		list, err := e.Jobs.List(req.Context(), 50)
		if err != nil {
			zap.L().Error("list jobs failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not list jobs")
			return
		}
		out := make([]map[string]any, 0, len(list))
		for i := range list {
			out = append(out, jobResponse(&list[i], false))
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/jobs/{id}", func(w http.ResponseWriter, req *http.Request) {
		job, err := e.Jobs.Get(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			zap.L().Error("get job failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not read job")
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, jobResponse(job, false))
	})

	r.Get("/providers", func(w http.ResponseWriter, req *http.Request) {
		out := make([]map[string]any, 0)
		for _, a := range e.Registry.All() {
			entry := map[string]any{
				"name":       a.Name(),
				"configured": a.Configured(),
			}
			if a.Configured() {
				n, err := e.Budget.Remaining(req.Context(), a.Name())
				if err != nil {
					zap.L().Error("budget lookup failed", zap.String("provider", a.Name()), zap.Error(err))
					writeError(w, http.StatusInternalServerError, "could not read budgets")
					return
				}
				if n >= 0 {
					entry["remaining"] = n
				}
			}
			out = append(out, entry)
		}
		writeJSON(w, http.StatusOK, out)
	})

	return r
}

func jobResponse(job *model.Job, cached bool) map[string]any {
	out := map[string]any{
		"id":         job.ID,
		"status":     job.Status,
		"location":   job.Location,
		"category":   job.Category,
		"created_at": job.CreatedAt,
	}
	if cached {
		out["cached"] = true
	}
	if job.StartedAt != nil {
		out["started_at"] = job.StartedAt
	}
	if job.CompletedAt != nil {
		out["completed_at"] = job.CompletedAt
	}
	if job.Status == model.JobRunning && job.Progress != nil {
		out["progress"] = job.Progress
	}
	if job.Error != "" {
		out["error"] = job.Error
	}
	if job.Result != nil {
		out["result"] = job.Result
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
