package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dab/internal/addressbook/models"
	id "dab/pkg/domain"
	dErrors "dab/pkg/domain-errors"
	"dab/pkg/platform/httputil"
	"dab/pkg/requestcontext"
)

type Service interface {
	Name() string
	AddAddress(ctx context.Context, caller id.Identity, name string, target id.Identity) error
	RemoveAddress(ctx context.Context, caller id.Identity, name string) error
	GetAddress(ctx context.Context, caller id.Identity, name string) (*models.AddressLookup, error)
	RemoveAll(ctx context.Context, caller id.Identity) (int, error)
	GetAll(ctx context.Context, caller id.Identity) ([]*models.AddressEntry, error)
}

// Handler exposes the caller's address book over HTTP. Every route except
// the name query needs a resolved caller.
type Handler struct {
	svc           Service
	logger        *slog.Logger
	requireCaller func(http.Handler) http.Handler
}

func New(svc Service, logger *slog.Logger, requireCaller func(http.Handler) http.Handler) *Handler {
	return &Handler{svc: svc, logger: logger, requireCaller: requireCaller}
}

// Register mounts the routes. The static /name route shadows an entry
// literally called "name"; use GET /address-book to read it.
func (h *Handler) Register(r chi.Router) {
	r.Route("/address-book", func(r chi.Router) {
		r.Get("/name", h.handleName)

		r.Group(func(r chi.Router) {
			r.Use(h.requireCaller)
			r.Get("/", h.handleGetAll)
			r.Delete("/", h.handleRemoveAll)
			r.Put("/{name}", h.handleAdd)
			r.Delete("/{name}", h.handleRemove)
			r.Get("/{name}", h.handleGet)
		})
	})
}

func (h *Handler) handleName(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, NameResponse{Name: h.svc.Name()})
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddAddressRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.svc.AddAddress(ctx, requestcontext.Caller(ctx), name, req.target); err != nil {
		h.writeServiceError(ctx, w, "add_address", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.RemoveAddress(ctx, requestcontext.Caller(ctx), name); err != nil {
		h.writeServiceError(ctx, w, "remove_address", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, ok := h.nameParam(w, r)
	if !ok {
		return
	}
	lookup, err := h.svc.GetAddress(ctx, requestcontext.Caller(ctx), name)
	if err != nil {
		h.writeServiceError(ctx, w, "get_address", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lookup)
}

func (h *Handler) handleGetAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := h.svc.GetAll(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, "get_all", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEntryResponses(entries))
}

func (h *Handler) handleRemoveAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := h.svc.RemoveAll(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, "remove_all", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RemoveAllResponse{Removed: n})
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
		h.logger.ErrorContext(ctx, "address book operation failed",
			"operation", operation,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
