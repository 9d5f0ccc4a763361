package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/logging"
	"github.com/dmitrijs2005/medsync/internal/server/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

// RecordService is the set of record operations the API serves.
type RecordService interface {
	Create(ctx context.Context, collection string, fields map[string]any, idempotencyKey string) (*models.Record, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) (*models.Record, error)
	Delete(ctx context.Context, collection, id string) error
	Get(ctx context.Context, collection, id string) (*models.Record, error)
	List(ctx context.Context, collection string) ([]*models.Record, error)
}

type handler struct {
	svc RecordService
	log logging.Logger
}

// NewHandler builds the router. A nil reg disables /metrics and request
// metrics.
func NewHandler(svc RecordService, log logging.Logger, reg *prometheus.Registry) http.Handler {
	h := &handler{svc: svc, log: log.With("module", "http_api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)
	if reg != nil {
		r.Use(newRequestMetrics(reg).middleware)
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Get(common.HealthPath, h.health)
	r.Route("/{collection}", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	collection, ok := h.param(w, r, "collection")
	if !ok {
		return
	}
	list, err := h.svc.List(r.Context(), collection)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Record{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	collection, ok := h.param(w, r, "collection")
	if !ok {
		return
	}
	fields, ok := h.decodeFields(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Create(r.Context(), collection, fields, r.Header.Get(common.IdempotencyKeyHeader))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	collection, id, ok := h.recordParams(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Get(r.Context(), collection, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	collection, id, ok := h.recordParams(w, r)
	if !ok {
		return
	}
	fields, ok := h.decodeFields(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Update(r.Context(), collection, id, fields)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	collection, id, ok := h.recordParams(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), collection, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// param returns an unescaped path parameter. chi matches on the raw path, so
// escaped slashes in ids arrive still encoded.
func (h *handler) param(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil || v == "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return "", false
	}
	return v, true
}

func (h *handler) recordParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	collection, ok := h.param(w, r, "collection")
	if !ok {
		return "", "", false
	}
	id, ok := h.param(w, r, "id")
	if !ok {
		return "", "", false
	}
	return collection, id, true
}

func (h *handler) decodeFields(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var fields map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%v: %v", common.ErrInvalidPayload, err))
		return nil, false
	}
	return fields, true
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrUnknownCollection), errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, common.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
