package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/port"
	"github.com/otaupdater/ota-download-manager/internal/service/queue"
)

type preferencesJSON struct {
	WifiOnly       bool  `json:"wifi_only"`
	MobileMaxBytes int64 `json:"mobile_max_bytes"`
}

type preferencesRequest struct {
	WifiOnly       *bool  `json:"wifi_only"`
	MobileMaxBytes *int64 `json:"mobile_max_bytes"`
}

type connectivityJSON struct {
	Type       string `json:"type"`
	Connected  bool   `json:"connected"`
	Connecting bool   `json:"connecting"`
}

type connectivityRequest struct {
	Type      string `json:"type"`
	Connected *bool  `json:"connected"`
}

func newConnectivityJSON(c domain.Connectivity) connectivityJSON {
	return connectivityJSON{Type: c.Type.String(), Connected: c.Connected, Connecting: c.Connecting}
}

// SettingsHandler serves the network preferences and the connectivity signal
type SettingsHandler struct {
	queue  Queue
	prefs  port.PreferenceRepository
	conn   Connectivity
	logger *zap.Logger
}

// NewSettingsHandler creates a new SettingsHandler. prefs and conn may be nil.
func NewSettingsHandler(q Queue, prefs port.PreferenceRepository, conn Connectivity, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		queue:  q,
		prefs:  prefs,
		conn:   conn,
		logger: logger,
	}
}

// Register adds the preferences and connectivity routes to r
func (h *SettingsHandler) Register(r chi.Router) {
	r.Get("/preferences", h.HandleGetPreferences)
	r.Put("/preferences", h.HandlePutPreferences)
	r.Get("/connectivity", h.HandleGetConnectivity)
	r.Put("/connectivity", h.HandlePutConnectivity)
	r.Delete("/connectivity", h.HandleClearConnectivity)
}

// HandleGetPreferences returns the network settings in force
func (h *SettingsHandler) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	s := h.queue.NetworkSettings()
	writeJSON(w, http.StatusOK, preferencesJSON{WifiOnly: s.WifiOnly, MobileMaxBytes: s.MobileMaxBytes})
}

// HandlePutPreferences updates the fields present in the body, stores them and
// re-evaluates waiting transfers
func (h *SettingsHandler) HandlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s := h.queue.NetworkSettings()
	if req.WifiOnly != nil {
		s.WifiOnly = *req.WifiOnly
	}
	if req.MobileMaxBytes != nil {
		s.MobileMaxBytes = *req.MobileMaxBytes
	}
	if s.MobileMaxBytes < 0 {
		writeError(w, http.StatusBadRequest, "mobile_max_bytes must not be negative")
		return
	}

	if h.prefs != nil {
		if err := queue.SaveNetworkSettings(r.Context(), h.prefs, s); err != nil {
			h.logger.Error("failed to save preferences", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to save preferences")
			return
		}
	}
	h.queue.SetNetworkSettings(s)

	h.logger.Info("network preferences updated",
		zap.Bool("wifi_only", s.WifiOnly),
		zap.Int64("mobile_max_bytes", s.MobileMaxBytes))
	h.HandleGetPreferences(w, r)
}

// HandleGetConnectivity returns the connectivity admission sees
func (h *SettingsHandler) HandleGetConnectivity(w http.ResponseWriter, r *http.Request) {
	if h.conn == nil {
		writeError(w, http.StatusNotFound, "connectivity source not configured")
		return
	}
	writeJSON(w, http.StatusOK, newConnectivityJSON(h.conn.Current()))
}

// HandlePutConnectivity overrides the probed connectivity, for hosts whose
// network state is known to an outside agent
func (h *SettingsHandler) HandlePutConnectivity(w http.ResponseWriter, r *http.Request) {
	if h.conn == nil {
		writeError(w, http.StatusNotFound, "connectivity source not configured")
		return
	}

	var req connectivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t, err := domain.ParseNetworkType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	connected := t != domain.NetworkNone
	if req.Connected != nil {
		connected = *req.Connected && t != domain.NetworkNone
	}

	c := domain.Connectivity{Connected: connected, Type: t}
	h.conn.Set(c)
	h.queue.ConnectivityChanged()
	h.logger.Info("connectivity overridden", zap.Stringer("network", c))
	writeJSON(w, http.StatusOK, newConnectivityJSON(h.conn.Current()))
}

// HandleClearConnectivity drops the override and goes back to probing
func (h *SettingsHandler) HandleClearConnectivity(w http.ResponseWriter, r *http.Request) {
	if h.conn == nil {
		writeError(w, http.StatusNotFound, "connectivity source not configured")
		return
	}
	h.conn.ClearOverride()
	h.queue.ConnectivityChanged()
	w.WriteHeader(http.StatusNoContent)
}
