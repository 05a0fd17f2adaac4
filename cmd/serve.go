package main

import (
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

	"github.com/clearcoast/claims-cli/internal/model"
	"github.com/clearcoast/claims-cli/internal/review"
	"github.com/clearcoast/claims-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the claims intake and review API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		gw := review.NewGateway(env.Store)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/claims", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				ClinicalNote string `json:"clinical_note"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if body.ClinicalNote == "" {
				writeError(w, http.StatusBadRequest, "clinical_note is required")
				return
			}

			claim, err := env.Pipeline.Run(req.Context(), body.ClinicalNote)
			if err != nil {
				zap.L().Error("intake run failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "claim processing failed")
				return
			}
			writeJSON(w, http.StatusCreated, claim)
		})

		r.Get("/claims", func(w http.ResponseWriter, req *http.Request) {
			filter := store.ClaimFilter{Limit: 50}
			if s := req.URL.Query().Get("status"); s != "" {
				filter.Status = model.ClaimStatus(s)
			}
			claims, err := env.Store.ListClaims(req.Context(), filter)
			if err != nil {
				zap.L().Error("list claims failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "list failed")
				return
			}
			writeJSON(w, http.StatusOK, claims)
		})

		r.Get("/claims/{id}", func(w http.ResponseWriter, req *http.Request) {
			claim, err := env.Store.GetClaim(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				if eris.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusNotFound, "claim not found")
					return
				}
				zap.L().Error("get claim failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "lookup failed")
				return
			}
			writeJSON(w, http.StatusOK, claim)
		})

		r.Post("/claims/{id}/review", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Decision string `json:"decision"`
				Reviewer string `json:"reviewer"`
				Notes    string `json:"notes"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}

			claim, err := gw.SubmitReview(req.Context(), chi.URLParam(req, "id"),
				model.ReviewDecision(body.Decision), body.Reviewer, body.Notes)
			if err != nil {
				var nre *review.NotReviewableError
				switch {
				case eris.Is(err, review.ErrInvalidDecision):
					writeError(w, http.StatusBadRequest, err.Error())
				case errors.As(err, &nre):
					writeError(w, http.StatusConflict, nre.Error())
				case eris.Is(err, store.ErrNotFound):
					writeError(w, http.StatusNotFound, "claim not found")
				default:
					zap.L().Error("review failed", zap.Error(err))
					writeError(w, http.StatusInternalServerError, "review failed")
				}
				return
			}
			writeJSON(w, http.StatusOK, claim)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
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
