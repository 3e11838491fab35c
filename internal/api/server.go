package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/graylogic-tuya/internal/audit"
	"github.com/nerrad567/graylogic-tuya/internal/bridges/tuya"
	"github.com/nerrad567/graylogic-tuya/internal/device"
	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/config"
	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/logging"
	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/metrics"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is a dependency reported by the health endpoint.
// *database.DB, *mqtt.Client and *influxdb.Client implement it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Tuya     config.TuyaConfig
	Logger   *logging.Logger
	Registry *device.Registry

	// Exchanger and Provider are shared by every pairing session.
	Exchanger tuya.CredentialExchanger
	Provider  tuya.ClientProvider

	// Observer receives pairing events. Optional.
	Observer tuya.Observer

	// Metrics is optional; /metrics is not mounted without it.
	Metrics *metrics.Metrics

	// Audit records the pairing trail. Optional; /pairing/audit is not
	// mounted without it.
	Audit audit.Repository

	// Checks are reported by /api/v1/health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// driver is one configured pairing driver.
type driver struct {
	name       string
	discoverer *tuya.Discoverer
}

// Server is the HTTP API server for pairing Tuya devices.
//
// It manages the HTTP listener, routes, middleware, the WebSocket hub and
// the live pairing sessions. The server is created with New() and started
// with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	registry  *device.Registry
	exchanger tuya.CredentialExchanger
	provider  tuya.ClientProvider
	observer  tuya.Observer
	metrics   *metrics.Metrics
	audit     audit.Repository
	checks    map[string]HealthChecker
	version   string

	drivers      map[string]*driver
	pollInterval time.Duration

	sessionsMu sync.Mutex
	sessions   map[string]*tuya.Session

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// Every configured driver gets its own family and discoverer. The server is
// not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Exchanger == nil {
		return nil, fmt.Errorf("credential exchanger is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("client provider is required")
	}
	if deps.Observer == nil {
		deps.Observer = tuya.NoopObserver{}
	}

	drivers := make(map[string]*driver, len(deps.Tuya.Drivers))
	for _, dc := range deps.Tuya.Drivers {
		family, err := tuya.NewFamily(dc.Family, dc.Categories)
		if err != nil {
			return nil, fmt.Errorf("driver %q: %w", dc.Name, err)
		}
		discoverer, err := tuya.NewDiscoverer(tuya.DiscovererConfig{
			Driver:      dc.Name,
			Family:      family,
			Registry:    deps.Registry,
			Concurrency: deps.Tuya.DiscoveryConcurrency,
			Observer:    deps.Observer,
			Logger:      deps.Logger.With("component", "tuya.discovery", "driver", dc.Name),
		})
		if err != nil {
			return nil, fmt.Errorf("driver %q: %w", dc.Name, err)
		}
		drivers[dc.Name] = &driver{name: dc.Name, discoverer: discoverer}
	}

	return &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		registry:     deps.Registry,
		exchanger:    deps.Exchanger,
		provider:     deps.Provider,
		observer:     deps.Observer,
		metrics:      deps.Metrics,
		audit:        deps.Audit,
		checks:       deps.Checks,
		version:      deps.Version,
		drivers:      drivers,
		pollInterval: deps.Tuya.GetPollInterval(),
		sessions:     make(map[string]*tuya.Session),
		hub:          NewHub(deps.WS, deps.Logger),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and the stale session sweeper, then launches
// the HTTP listener in a background goroutine. The server can be stopped
// with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanSessionsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// Every pairing session is torn down first so no poller outlives the
// server. In-flight requests get up to 10 seconds to complete.
func (s *Server) Close() error {
	s.closeAllSessions()

	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}
