package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/graylogic-tuya/internal/audit"
	"github.com/nerrad567/graylogic-tuya/internal/device"
)

// handleListRegistered returns the registered devices ordered by name.
// Query parameters: driver.
func (s *Server) handleListRegistered(w http.ResponseWriter, r *http.Request) {
	driverName := r.URL.Query().Get("driver")

	devices := s.registry.ListDevices()
	if driverName != "" {
		filtered := make([]device.Device, 0, len(devices))
		for _, d := range devices {
			if d.Driver == driverName {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetRegistered returns a single registered device.
func (s *Server) handleGetRegistered(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writePairingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleDeleteRegistered unpairs a device. The next pairing listing of its
// account offers it again.
func (s *Server) handleDeleteRegistered(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		writePairingError(w, err)
		return
	}
	if err := s.registry.DeleteDevice(r.Context(), id); err != nil {
		s.logger.Error("deleting device failed", "id", id, "error", err)
		writePairingError(w, err)
		return
	}

	s.recordAudit(&audit.Entry{
		Action:   audit.ActionDeviceRemoved,
		Driver:   d.Driver,
		DeviceID: d.DeviceID,
		Subject:  subjectFrom(r),
		Details:  map[string]any{"registry_id": d.ID, "product_id": d.ProductID},
	})
	w.WriteHeader(http.StatusNoContent)
}
