package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/reconcile"
	"github.com/sells-group/reconcile-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reconciliation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env.Store, env.Engine, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
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
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// api serves the engine and ledger over HTTP.
type api struct {
	store  store.Store
	engine *reconcile.Engine
}

// buildRouter returns the HTTP handler for the API.
func buildRouter(st store.Store, eng *reconcile.Engine, allowedOrigins []string) http.Handler {
	a := &api{store: st, engine: eng}

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/records", func(rr chi.Router) {
		rr.Get("/", a.listRecords)
		rr.Get("/{id}", a.getRecord)
		rr.Post("/{id}/reconcile", a.reconcileRecord)
		rr.Get("/{id}/changes", a.recordChanges)
		rr.Put("/{id}/fields/{field}/verify", a.verifyField)
		rr.Delete("/{id}/fields/{field}/verify", a.unverifyField)
	})
	r.Route("/batches", func(br chi.Router) {
		br.Post("/{id}/rollback", a.rollbackBatch)
		br.Get("/{id}/changes", a.batchChanges)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type reconcileBody struct {
	Observations      []model.Observation `json:"observations"`
	DryRun            bool                `json:"dry_run"`
	BatchID           string              `json:"batch_id"`
	ApprovedConflicts []string            `json:"approved_conflicts"`
	Actor             string              `json:"actor"`
}

func (a *api) reconcileRecord(w http.ResponseWriter, r *http.Request) {
	var body reconcileBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	report, err := a.engine.Reconcile(r.Context(), reconcile.Request{
		RecordID:          chi.URLParam(r, "id"),
		Observations:      body.Observations,
		DryRun:            body.DryRun,
		BatchID:           body.BatchID,
		ApprovedConflicts: body.ApprovedConflicts,
		Actor:             body.Actor,
	})
	if err != nil {
		handleEngineError(w, err, report)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (a *api) rollbackBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actor string `json:"actor"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body", nil)
			return
		}
	}

	report, err := a.engine.Rollback(r.Context(), chi.URLParam(r, "id"), body.Actor)
	if err != nil {
		handleEngineError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (a *api) verifyField(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Note string `json:"note"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body", nil)
			return
		}
	}

	id, field := chi.URLParam(r, "id"), chi.URLParam(r, "field")
	ok, err := a.engine.VerifyField(r.Context(), id, field, body.Note)
	if err != nil {
		handleEngineError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, verifyResult{RecordID: id, Field: field, Verified: ok, Changed: ok})
}

func (a *api) unverifyField(w http.ResponseWriter, r *http.Request) {
	id, field := chi.URLParam(r, "id"), chi.URLParam(r, "field")
	ok, err := a.engine.UnverifyField(r.Context(), id, field)
	if err != nil {
		handleEngineError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, verifyResult{RecordID: id, Field: field, Verified: false, Changed: ok})
}

func (a *api) getRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := a.store.GetRecord(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "record not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (a *api) listRecords(w http.ResponseWriter, r *http.Request) {
	filter := store.RecordFilter{Limit: 100}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", nil)
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid offset", nil)
			return
		}
		filter.Offset = n
	}

	ids, err := a.store.ListRecordIDs(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"record_ids": ids})
}

func (a *api) recordChanges(w http.ResponseWriter, r *http.Request) {
	changes, err := a.store.ChangesByRecord(r.Context(), chi.URLParam(r, "id"))
	a.respondChanges(w, changes, err)
}

func (a *api) batchChanges(w http.ResponseWriter, r *http.Request) {
	changes, err := a.store.ChangesByBatch(r.Context(), chi.URLParam(r, "id"))
	a.respondChanges(w, changes, err)
}

func (a *api) respondChanges(w http.ResponseWriter, changes []model.ChangeRecord, err error) {
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if changes == nil {
		changes = []model.ChangeRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"changes": changes})
}

// handleEngineError maps engine errors to status codes. A persistence
// failure still carries the computed report.
func handleEngineError(w http.ResponseWriter, err error, report *reconcile.Report) {
	switch {
	case errors.Is(err, reconcile.ErrRecordNotFound):
		respondError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, reconcile.ErrPersistence):
		zap.L().Error("api: persistence failure", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error(), report)
	default:
		zap.L().Error("api: unexpected error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error(), report)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string, report *reconcile.Report) {
	body := map[string]any{"error": msg}
	if report != nil {
		body["report"] = report
	}
	respondJSON(w, status, body)
}
