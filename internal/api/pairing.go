package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/graylogic-tuya/internal/audit"
	"github.com/nerrad567/graylogic-tuya/internal/bridges/tuya"
	"github.com/nerrad567/graylogic-tuya/internal/device"
)

const (
	// maxSessions caps concurrently open pairing sessions.
	maxSessions = 32

	// sessionTTL is how long a pairing session may stay open.
	sessionTTL = 30 * time.Minute

	sessionSweepInterval = time.Minute

	auditWriteTimeout = 2 * time.Second
)

// sessionResponse describes a pairing session.
type sessionResponse struct {
	ID        string    `json:"id"`
	Driver    string    `json:"driver"`
	Channel   string    `json:"channel"`
	PollState string    `json:"poll_state"`
	CreatedAt time.Time `json:"created_at"`
}

func newSessionResponse(sess *tuya.Session) sessionResponse {
	return sessionResponse{
		ID:        sess.ID(),
		Driver:    sess.Driver(),
		Channel:   PairingChannel(sess.ID()),
		PollState: sess.PollState().String(),
		CreatedAt: sess.CreatedAt().UTC(),
	}
}

type userCodeRequest struct {
	UserCode string `json:"user_code"`
}

type userCodeResponse struct {
	QRCode    string `json:"qrcode"`
	PollState string `json:"poll_state"`
}

type registerRequest struct {
	Devices []tuya.ListedDevice `json:"devices"`
}

type skippedDevice struct {
	DeviceID  string `json:"device_id"`
	ProductID string `json:"product_id"`
	Reason    string `json:"reason"`
}

// registerResponse reports every device handled before the request ended.
// Error is set when an unexpected failure stopped registration part way.
type registerResponse struct {
	Registered []device.Device `json:"registered"`
	Skipped    []skippedDevice `json:"skipped"`
	Error      *Error          `json:"error,omitempty"`
}

// reasonCategory is the skip reason for descriptors the driver's family
// does not accept.
const reasonCategory = "category not supported by driver"

// handleCreateSession opens a pairing session for the driver in the path.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "driver")
	drv, ok := s.drivers[name]
	if !ok {
		writeNotFound(w, "unknown pairing driver: "+name)
		return
	}

	sess, err := tuya.NewSession(tuya.SessionConfig{
		Driver:       drv.name,
		Exchanger:    s.exchanger,
		Provider:     s.provider,
		Discoverer:   drv.discoverer,
		Views:        s.hub,
		PollInterval: s.pollInterval,
		Observer:     s.observer,
		Logger:       s.logger.With("component", "tuya.session", "driver", drv.name),
	})
	if err != nil {
		s.logger.Error("creating pairing session failed", "driver", name, "error", err)
		writeInternalError(w, "failed to create pairing session")
		return
	}

	s.sessionsMu.Lock()
	if len(s.sessions) >= maxSessions {
		s.sessionsMu.Unlock()
		sess.Close()
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "too many pairing sessions")
		return
	}
	s.sessions[sess.ID()] = sess
	s.sessionsMu.Unlock()

	if s.metrics != nil {
		s.metrics.SessionOpened()
	}
	s.logger.Info("pairing session opened",
		"session_id", sess.ID(),
		"driver", name,
		"subject", subjectFrom(r),
	)
	s.recordAudit(&audit.Entry{
		Action:    audit.ActionSessionOpened,
		Driver:    name,
		SessionID: sess.ID(),
		Subject:   subjectFrom(r),
	})

	writeJSON(w, http.StatusCreated, newSessionResponse(sess))
}

// handleDeleteSession disconnects and tears down a session.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if s.closeSession(sess.ID()) {
		s.recordAudit(&audit.Entry{
			Action:    audit.ActionSessionClosed,
			Driver:    sess.Driver(),
			SessionID: sess.ID(),
			Subject:   subjectFrom(r),
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCheckLinked reports whether an account is already linked.
func (s *Server) handleCheckLinked(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"linked": sess.CheckLinked(r.Context())})
}

// handleUnlink deletes the saved client adopted by the session. The account
// must be linked again through a QR login before devices can be listed.
func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	if err := sess.Unlink(r.Context()); err != nil {
		s.logger.Warn("unlinking account failed", "session_id", sess.ID(), "error", err)
		writePairingError(w, err)
		return
	}

	s.recordAudit(&audit.Entry{
		Action:    audit.ActionAccountUnlinked,
		Driver:    sess.Driver(),
		SessionID: sess.ID(),
		Subject:   subjectFrom(r),
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmitUserCode requests the QR code for a user code and starts
// polling. The UI renders the returned code and waits for the view event.
func (s *Server) handleSubmitUserCode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req userCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}

	artifact, err := sess.SubmitUserCode(r.Context(), req.UserCode)
	if err != nil {
		s.logger.Warn("submitting user code failed", "session_id", sess.ID(), "error", err)
		writePairingError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, userCodeResponse{
		QRCode:    artifact.Code,
		PollState: sess.PollState().String(),
	})
}

// handleListDevices returns the pairing candidates of the linked account.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	devices, err := sess.ListDevices(r.Context())
	if err != nil {
		s.logger.Warn("listing devices failed", "session_id", sess.ID(), "error", err)
		writePairingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleRegisterDevices stores chosen candidates in the device registry.
// Devices that are already registered, invalid or outside the driver's
// categories are reported as skipped; later listings no longer offer the
// registered ones. An unexpected failure ends with a 500 that still lists
// the devices handled before it.
func (s *Server) handleRegisterDevices(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Devices) == 0 {
		writeBadRequest(w, "devices is required")
		return
	}

	client := sess.Client()
	if client == nil {
		writePairingError(w, tuya.ErrNotLinked)
		return
	}
	family := s.drivers[sess.Driver()].discoverer.Family()

	resp := registerResponse{Registered: []device.Device{}, Skipped: []skippedDevice{}}
	for _, ld := range req.Devices {
		d := toDevice(sess.Driver(), client.SessionID, ld)
		entry := &audit.Entry{
			Action:    audit.ActionDeviceSkipped,
			Driver:    sess.Driver(),
			SessionID: sess.ID(),
			DeviceID:  ld.Data.DeviceID,
			Subject:   subjectFrom(r),
			Details:   map[string]any{"product_id": ld.Data.ProductID},
		}

		if !family.Filter(tuya.Device{ID: d.DeviceID, ProductID: d.ProductID, Category: d.Category}) {
			resp.Skipped = append(resp.Skipped, skipped(ld, reasonCategory))
			entry.Details["reason"] = reasonCategory
			s.recordAudit(entry)
			continue
		}

		err := s.registry.CreateDevice(r.Context(), d)
		switch {
		case err == nil:
			resp.Registered = append(resp.Registered, *d)
			entry.Action = audit.ActionDeviceRegistered
			entry.Details["registry_id"] = d.ID
			s.recordAudit(entry)
		case errors.Is(err, device.ErrDeviceExists):
			resp.Skipped = append(resp.Skipped, skipped(ld, "already registered"))
			entry.Details["reason"] = "already registered"
			s.recordAudit(entry)
		case errors.Is(err, device.ErrInvalidDevice), errors.Is(err, device.ErrInvalidName):
			resp.Skipped = append(resp.Skipped, skipped(ld, err.Error()))
			entry.Details["reason"] = err.Error()
			s.recordAudit(entry)
		default:
			s.logger.Error("registering device failed",
				"session_id", sess.ID(), "device_id", ld.Data.DeviceID,
				"registered", len(resp.Registered), "error", err)
			resp.Error = &Error{
				Status:  http.StatusInternalServerError,
				Code:    ErrCodeInternal,
				Message: "failed to register device " + ld.Data.DeviceID,
			}
			writeJSON(w, http.StatusInternalServerError, resp)
			return
		}
	}

	status := http.StatusOK
	if len(resp.Registered) > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func skipped(ld tuya.ListedDevice, reason string) skippedDevice {
	return skippedDevice{DeviceID: ld.Data.DeviceID, ProductID: ld.Data.ProductID, Reason: reason}
}

// toDevice converts a listed candidate into a registry record bound to the
// saved client that found it.
func toDevice(driver, clientID string, ld tuya.ListedDevice) *device.Device {
	category, _ := ld.Store[tuya.StoreCategoryKey].(string) //nolint:errcheck // absent for foreign descriptors

	options := make(map[string]any, len(ld.CapabilitiesOptions))
	for k, v := range ld.CapabilitiesOptions {
		options[k] = v
	}

	d := &device.Device{
		Name:                ld.Name,
		Driver:              driver,
		ProductID:           ld.Data.ProductID,
		DeviceID:            ld.Data.DeviceID,
		Category:            category,
		Capabilities:        ld.Capabilities,
		CapabilitiesOptions: options,
		Store:               ld.Store,
		Settings:            ld.Settings,
	}
	if clientID != "" {
		d.OAuthClientID = &clientID
	}
	return d
}

// lookupSession resolves the {driver} and {id} path parameters, writing a
// 404 when the session does not exist or belongs to another driver.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*tuya.Session, bool) {
	id := chi.URLParam(r, "id")

	s.sessionsMu.Lock()
	sess, ok := s.sessions[id]
	s.sessionsMu.Unlock()

	if !ok || sess.Driver() != chi.URLParam(r, "driver") {
		writeNotFound(w, "pairing session not found")
		return nil, false
	}
	return sess, true
}

// closeSession removes and tears down one session. It reports false for
// unknown IDs, including a session another caller already closed.
func (s *Server) closeSession(id string) bool {
	s.sessionsMu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.sessionsMu.Unlock()

	if !ok {
		return false
	}
	s.teardown(sess)
	s.logger.Info("pairing session closed", "session_id", id, "driver", sess.Driver())
	return true
}

// closeAllSessions tears down every session, stopping every poller.
func (s *Server) closeAllSessions() {
	s.sessionsMu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*tuya.Session)
	s.sessionsMu.Unlock()

	for _, sess := range sessions {
		s.teardown(sess)
		s.recordAudit(&audit.Entry{
			Action:    audit.ActionSessionClosed,
			Driver:    sess.Driver(),
			SessionID: sess.ID(),
			Details:   map[string]any{"reason": "shutdown"},
		})
	}
	if len(sessions) > 0 {
		s.logger.Info("pairing sessions closed", "count", len(sessions))
	}
}

// closeExpiredSessions tears down sessions opened before now-sessionTTL.
func (s *Server) closeExpiredSessions(now time.Time) {
	var expired []*tuya.Session

	s.sessionsMu.Lock()
	for id, sess := range s.sessions {
		if now.Sub(sess.CreatedAt()) > sessionTTL {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.sessionsMu.Unlock()

	for _, sess := range expired {
		s.teardown(sess)
		s.logger.Info("pairing session expired", "session_id", sess.ID(), "driver", sess.Driver())
		s.recordAudit(&audit.Entry{
			Action:    audit.ActionSessionExpired,
			Driver:    sess.Driver(),
			SessionID: sess.ID(),
		})
	}
}

// teardown must be called after the session left the map; Close blocks
// until its poller has stopped.
func (s *Server) teardown(sess *tuya.Session) {
	sess.Close()
	s.hub.Forget(sess.ID())
	if s.metrics != nil {
		s.metrics.SessionClosed()
	}
}

// cleanSessionsLoop expires stale sessions until ctx is cancelled.
func (s *Server) cleanSessionsLoop(ctx context.Context) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.closeExpiredSessions(now)
		}
	}
}

func (s *Server) sessionCount() int {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return len(s.sessions)
}

// recordAudit writes an audit entry. Failures are logged and never fail the
// request that caused them.
func (s *Server) recordAudit(e *audit.Entry) {
	if s.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()
	if err := s.audit.Create(ctx, e); err != nil {
		s.logger.Warn("writing pairing audit entry failed",
			"action", e.Action, "session_id", e.SessionID, "error", err)
	}
}

// handleListAudit returns the pairing audit trail, most recent first.
// Query parameters: action, driver, session_id, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action:    q.Get("action"),
		Driver:    q.Get("driver"),
		SessionID: q.Get("session_id"),
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &filter.Limit}, {"offset", &filter.Offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "invalid "+p.name+": "+raw)
			return
		}
		*p.dst = n
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing pairing audit failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func subjectFrom(r *http.Request) string {
	subject, _ := r.Context().Value(ctxKeySubject).(string) //nolint:errcheck // set by authMiddleware
	return subject
}
