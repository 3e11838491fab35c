package tuya

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/logging"
)

// ViewListDevices is the view shown once the account is linked.
const ViewListDevices = "list_devices"

// ViewNotifier switches the pairing UI of a session to another view.
type ViewNotifier interface {
	ShowView(ctx context.Context, sessionID, view string) error
}

type noopViews struct{}

func (noopViews) ShowView(context.Context, string, string) error { return nil }

// SessionConfig configures a Session.
type SessionConfig struct {
	// ID defaults to a random UUID.
	ID     string
	Driver string

	Exchanger  CredentialExchanger
	Provider   ClientProvider
	Discoverer *Discoverer
	Views      ViewNotifier

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	Observer Observer
	Logger   Logger
}

// Session is one pairing attempt. It exposes the four pairing handlers:
// CheckLinked, SubmitUserCode, ListDevices and Disconnect, plus Unlink to
// forget a linked account.
//
// Sessions share no mutable state with each other.
//
// Thread Safety: all methods are safe for concurrent use.
type Session struct {
	id           string
	driver       string
	exchanger    CredentialExchanger
	provider     ClientProvider
	discoverer   *Discoverer
	views        ViewNotifier
	pollInterval time.Duration
	observer     Observer
	logger       Logger
	newTicker    func(time.Duration) Ticker

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	client  *AuthorizedClient
	poller  *Poller
	closed  bool
	created time.Time
}

// NewSession validates cfg and returns a session ready for its handlers.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Exchanger == nil {
		return nil, fmt.Errorf("credential exchanger is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("client provider is required")
	}
	if cfg.Discoverer == nil {
		return nil, fmt.Errorf("discoverer is required")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Views == nil {
		cfg.Views = noopViews{}
	}
	if cfg.Observer == nil {
		cfg.Observer = NoopObserver{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:           cfg.ID,
		driver:       cfg.Driver,
		exchanger:    cfg.Exchanger,
		provider:     cfg.Provider,
		discoverer:   cfg.Discoverer,
		views:        cfg.Views,
		pollInterval: cfg.PollInterval,
		observer:     cfg.Observer,
		logger:       loggerOrNoop(cfg.Logger),
		newTicker:    newTimeTicker,
		ctx:          ctx,
		cancel:       cancel,
		created:      time.Now(),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Driver returns the pairing driver name.
func (s *Session) Driver() string { return s.driver }

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time { return s.created }

// Client returns the authorized client, or nil before linking.
func (s *Session) Client() *AuthorizedClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// PollState reports the state of the current poller; PollIdle when no code
// has been submitted.
func (s *Session) PollState() PollState {
	s.mu.Lock()
	p := s.poller
	s.mu.Unlock()
	if p == nil {
		return PollIdle
	}
	return p.State()
}

// CheckLinked reports whether a client saved by an earlier session exists,
// and adopts it. Lookup failures count as not linked.
func (s *Session) CheckLinked(ctx context.Context) bool {
	client, err := s.provider.FirstSaved(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotLinked) {
			s.logger.Warn("saved client lookup failed", "session_id", s.id, "error", err)
		}
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.client = client
	return true
}

// SubmitUserCode requests a QR code for userCode and starts polling for the
// credential. A poller left over from an earlier code is cancelled.
func (s *Session) SubmitUserCode(ctx context.Context, userCode string) (AuthorizationArtifact, error) {
	userCode = strings.TrimSpace(userCode)
	if userCode == "" {
		return AuthorizationArtifact{}, ErrInvalidUserCode
	}
	if s.isClosed() {
		return AuthorizationArtifact{}, ErrSessionClosed
	}

	artifact, err := s.exchanger.RequestAuthorizationArtifact(ctx, userCode)
	if err != nil {
		return AuthorizationArtifact{}, err
	}

	p := NewPoller(PollerConfig{
		Exchanger:    s.exchanger,
		UserCode:     userCode,
		Artifact:     artifact,
		Interval:     s.pollInterval,
		OnAuthorized: s.onAuthorized,
		Driver:       s.driver,
		Observer:     s.observer,
		Logger:       s.logger,
		newTicker:    s.newTicker,
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return AuthorizationArtifact{}, ErrSessionClosed
	}
	previous := s.poller
	s.poller = p
	p.Start(s.ctx)
	s.mu.Unlock()

	if previous != nil {
		previous.Cancel()
	}

	s.logger.Info("qr code issued", "session_id", s.id, "driver", s.driver, "qrcode", logging.Mask(artifact.Code))
	return artifact, nil
}

// onAuthorized runs on the winning poll: the ticker is already stopped.
// It builds the client, saves it and advances the UI.
func (s *Session) onAuthorized(ctx context.Context, tok *Token) {
	client := s.provider.Create(uuid.NewString(), tok)

	saved := true
	if err := s.provider.Save(ctx, client); err != nil {
		saved = false
		s.logger.Error("saving authorized client failed", "session_id", s.id, "error", err)
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	s.observer.Authorized(AuthorizedEvent{
		SessionID: s.id,
		Driver:    s.driver,
		UID:       tok.UID,
		Endpoint:  tok.Endpoint,
		Saved:     saved,
	})

	if err := s.views.ShowView(ctx, s.id, ViewListDevices); err != nil {
		s.logger.Warn("showing device list failed", "session_id", s.id, "error", err)
	}
}

// ListDevices runs discovery with the session's authorized client.
func (s *Session) ListDevices(ctx context.Context) ([]ListedDevice, error) {
	s.mu.Lock()
	client, closed := s.client, s.closed
	s.mu.Unlock()

	if closed {
		return nil, ErrSessionClosed
	}
	if client == nil {
		return nil, ErrNotLinked
	}

	devices, err := s.discoverer.ListCandidateDevices(ctx, client)
	if err != nil {
		return nil, err
	}

	ev := DiscoveredEvent{SessionID: s.id, Driver: s.driver, Devices: make([]DeviceData, len(devices))}
	for i, d := range devices {
		ev.Devices[i] = d.Data
	}
	s.observer.Discovered(ev)

	return devices, nil
}

// Unlink forgets the account linked to this session: the saved client is
// deleted and a later CheckLinked or ListDevices needs a new QR login.
func (s *Session) Unlink(ctx context.Context) error {
	s.mu.Lock()
	client, closed := s.client, s.closed
	s.mu.Unlock()

	if closed {
		return ErrSessionClosed
	}
	if client == nil {
		return ErrNotLinked
	}

	if err := s.provider.Unlink(ctx, client.SessionID); err != nil && !errors.Is(err, ErrNotLinked) {
		return err
	}

	s.mu.Lock()
	if s.client == client {
		s.client = nil
	}
	s.mu.Unlock()

	s.logger.Info("account unlinked", "session_id", s.id, "client_id", client.SessionID)
	return nil
}

// Disconnect cancels any polling in progress. It is safe to call at any
// time and any number of times.
func (s *Session) Disconnect() {
	s.mu.Lock()
	p := s.poller
	s.mu.Unlock()

	if p != nil {
		p.Cancel()
	}
}

// Close disconnects and rejects further handler calls.
func (s *Session) Close() {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()

	s.Disconnect()
	s.cancel()

	if !already {
		s.logger.Debug("pairing session closed", "session_id", s.id)
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
