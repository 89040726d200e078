package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dab/internal/registry/models"
	"dab/internal/registry/service"
	id "dab/pkg/domain"
	dErrors "dab/pkg/domain-errors"
	"dab/pkg/platform/httputil"
	"dab/pkg/requestcontext"
)

// Service is the named registry surface the handler drives.
type Service interface {
	Name() string
	Add(ctx context.Context, caller id.Identity, d *models.CanisterDescriptor) error
	Remove(ctx context.Context, caller id.Identity, name string) error
	Edit(ctx context.Context, caller id.Identity, name string, req models.EditRequest) error
	Get(ctx context.Context, name string) (*models.CanisterDescriptor, error)
	GetAll(ctx context.Context) ([]*models.CanisterDescriptor, error)
}

// Handler exposes the named registry over HTTP. Reads are open; mutations
// run behind requireCaller.
type Handler struct {
	svc           Service
	logger        *slog.Logger
	requireCaller func(http.Handler) http.Handler
}

func New(svc Service, logger *slog.Logger, requireCaller func(http.Handler) http.Handler) *Handler {
	return &Handler{svc: svc, logger: logger, requireCaller: requireCaller}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/registry", func(r chi.Router) {
		r.Get("/name", h.handleName)
		r.Get("/canisters", h.handleGetAll)
		r.Get("/canisters/{name}", h.handleGet)

		r.Group(func(r chi.Router) {
			r.Use(h.requireCaller)
			r.Post("/canisters", h.handleAdd)
			r.Delete("/canisters/{name}", h.handleRemove)
			r.Patch("/canisters/{name}", h.handleEdit)
		})
	})
}

func (h *Handler) handleName(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, NameResponse{Name: h.svc.Name()})
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[AddCanisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.svc.Add(ctx, requestcontext.Caller(ctx), req.Descriptor()); err != nil {
		h.writeServiceError(ctx, w, "add", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: service.MsgSuccess})
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.Remove(ctx, requestcontext.Caller(ctx), name); err != nil {
		h.writeServiceError(ctx, w, "remove", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: service.MsgSuccess})
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[EditCanisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.svc.Edit(ctx, requestcontext.Caller(ctx), name, req.EditRequest()); err != nil {
		h.writeServiceError(ctx, w, "edit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: service.MsgSuccess})
}

// handleGet renders a missing entry as JSON null with 200.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	d, err := h.svc.Get(ctx, name)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			httputil.WriteJSON(w, http.StatusOK, nil)
			return
		}
		h.writeServiceError(ctx, w, "get", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) handleGetAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all, err := h.svc.GetAll(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "get_all", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, all)
}

func (h *Handler) nameParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := httputil.PathParam(r, "name")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid canister name in path"))
		return "", false
	}
	return name, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "registry operation failed",
			"operation", operation,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, "registry operation rejected",
			"operation", operation,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
