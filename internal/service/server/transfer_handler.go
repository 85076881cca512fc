package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
)

// transferResponse is a transfer together with its display data
type transferResponse struct {
	domain.TransferRecord
	Presentation domain.Presentation `json:"presentation"`
}

func newTransferResponse(rec domain.TransferRecord) transferResponse {
	return transferResponse{TransferRecord: rec, Presentation: domain.Present(rec)}
}

type listResponse struct {
	Transfers []transferResponse `json:"transfers"`
}

func newListResponse(recs []domain.TransferRecord) listResponse {
	out := listResponse{Transfers: make([]transferResponse, 0, len(recs))}
	for _, rec := range recs {
		out.Transfers = append(out.Transfers, newTransferResponse(rec))
	}
	return out
}

// TransferHandler serves the transfer queries and commands
type TransferHandler struct {
	queue  Queue
	logger *zap.Logger
}

// NewTransferHandler creates a new TransferHandler
func NewTransferHandler(queue Queue, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{
		queue:  queue,
		logger: logger,
	}
}

// Routes returns the /transfers router
func (h *TransferHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Post("/pause", h.command(h.queue.Pause))
		r.Post("/resume", h.command(h.queue.Resume))
		r.Post("/cancel", h.command(h.queue.Cancel))
		r.Post("/retry", h.command(h.queue.Retry))
	})
	return r
}

// HandleList lists transfers, optionally narrowed by ?filter=active,paused
func (h *TransferHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := domain.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(h.queue.List(filter)))
}

// HandleCreate enqueues the transfer spec in the request body
func (h *TransferHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var spec domain.TransferSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.queue.Enqueue(spec)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSpec) || errors.Is(err, domain.ErrUnsupportedScheme) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to enqueue transfer", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to enqueue transfer")
		return
	}

	rec := h.queue.Transfer(id)
	if rec == nil {
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
		return
	}
	writeJSON(w, http.StatusCreated, newTransferResponse(*rec))
}

// HandleGet returns one transfer
func (h *TransferHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := transferID(w, r)
	if !ok {
		return
	}
	rec := h.queue.Transfer(id)
	if rec == nil {
		writeError(w, http.StatusNotFound, domain.ErrUnknownTransfer.Error())
		return
	}
	writeJSON(w, http.StatusOK, newTransferResponse(*rec))
}

// command adapts a per-transfer queue command to a handler that answers
// with the transfer's state after the command.
func (h *TransferHandler) command(fn func(int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := transferID(w, r)
		if !ok {
			return
		}
		if err := fn(id); err != nil {
			if errors.Is(err, domain.ErrUnknownTransfer) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			h.logger.Error("transfer command failed", zap.Int64("transfer_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "command failed")
			return
		}
		h.HandleGet(w, r)
	}
}

// HandlePauseAll pauses every running transfer
func (h *TransferHandler) HandlePauseAll(w http.ResponseWriter, r *http.Request) {
	h.queue.PauseAll()
	writeJSON(w, http.StatusOK, newListResponse(h.queue.List(domain.FilterAll)))
}

// HandleResumeAll resumes every transfer paused by the user
func (h *TransferHandler) HandleResumeAll(w http.ResponseWriter, r *http.Request) {
	h.queue.ResumeAll()
	writeJSON(w, http.StatusOK, newListResponse(h.queue.List(domain.FilterAll)))
}

// HandleCancelAll cancels every unfinished transfer
func (h *TransferHandler) HandleCancelAll(w http.ResponseWriter, r *http.Request) {
	h.queue.CancelAll()
	writeJSON(w, http.StatusOK, newListResponse(h.queue.List(domain.FilterAll)))
}

func transferID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transfer id")
		return 0, false
	}
	return id, true
}
