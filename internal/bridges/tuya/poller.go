package tuya

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/logging"
)

// DefaultPollInterval is the token polling cadence.
const DefaultPollInterval = time.Second

// PollState is the poller's position in its state machine:
//
//	Idle -> Polling -> {Authorized, Cancelled}
//
// Idle may also go straight to Cancelled.
type PollState int

const (
	PollIdle PollState = iota
	PollPolling
	PollAuthorized
	PollCancelled
)

func (s PollState) String() string {
	switch s {
	case PollIdle:
		return "idle"
	case PollPolling:
		return "polling"
	case PollAuthorized:
		return "authorized"
	case PollCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Poll outcomes reported to the Observer.
const (
	PollOutcomeFailure   = "failure"
	PollOutcomeSuccess   = "success"
	PollOutcomeDiscarded = "discarded"
	PollOutcomeCancelled = "cancelled"
)

// Ticker is the recurring timer driving the poller.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Exchanger CredentialExchanger
	UserCode  string
	Artifact  AuthorizationArtifact

	// Interval defaults to DefaultPollInterval.
	Interval time.Duration

	// OnAuthorized runs once, on the goroutine of the winning poll, after
	// the ticker is stopped. It must not call Cancel.
	OnAuthorized func(ctx context.Context, tok *Token)

	Driver   string
	Observer Observer
	Logger   Logger

	newTicker func(time.Duration) Ticker
}

// Poller polls the gateway until a credential is issued or it is cancelled.
//
// Each tick starts an independent poll; a slow poll may overlap the next
// one. The first successful poll wins the Polling -> Authorized transition
// under mu; later successes are discarded.
//
// Thread Safety: all methods are safe for concurrent use.
type Poller struct {
	cfg    PollerConfig
	logger Logger

	mu    sync.Mutex
	state PollState

	ctx    context.Context
	cancel context.CancelFunc

	done     chan struct{} // closed to stop the ticker loop
	stopOnce sync.Once
	loopWG   sync.WaitGroup
	firingWG sync.WaitGroup
}

// NewPoller creates an idle poller. Call Start to begin polling.
//
// Parameters:
//   - cfg: Polling inputs; Interval defaults to DefaultPollInterval and
//     Observer to a no-op
//
// Returns:
//   - *Poller: Idle poller, stopped until Start is called
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Observer == nil {
		cfg.Observer = NoopObserver{}
	}
	if cfg.newTicker == nil {
		cfg.newTicker = newTimeTicker
	}
	if cfg.OnAuthorized == nil {
		cfg.OnAuthorized = func(context.Context, *Token) {}
	}

	return &Poller{
		cfg:    cfg,
		logger: loggerOrNoop(cfg.Logger),
		done:   make(chan struct{}),
	}
}

// State returns the current state.
func (p *Poller) State() PollState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start moves Idle -> Polling and starts the ticker loop. Polls use a
// context derived from parent. Start on a non-idle poller does nothing.
func (p *Poller) Start(parent context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PollIdle {
		return
	}
	p.state = PollPolling
	p.ctx, p.cancel = context.WithCancel(parent)

	p.loopWG.Add(1)
	go p.loop()

	p.logger.Info("token polling started",
		"driver", p.cfg.Driver,
		"interval", p.cfg.Interval,
		"qrcode", logging.Mask(p.cfg.Artifact.Code))
}

// Cancel stops polling and waits for the ticker loop and in-flight polls to
// finish. After Cancel returns no further poll request is made.
//
// Cancel is idempotent and a no-op in every state but Polling. If the
// poller already reached Authorized, Cancel only waits for the winning poll
// to finish its OnAuthorized callback.
func (p *Poller) Cancel() {
	p.mu.Lock()
	wasPolling := p.state == PollPolling
	switch p.state {
	case PollIdle, PollPolling:
		p.state = PollCancelled
	}
	p.mu.Unlock()

	p.halt()
	if wasPolling {
		p.cancel()
		p.logger.Info("token polling cancelled", "driver", p.cfg.Driver)
	}

	p.loopWG.Wait()
	p.firingWG.Wait()

	if p.cancel != nil {
		p.cancel()
	}
}

// halt stops the ticker loop without waiting for it.
func (p *Poller) halt() {
	p.stopOnce.Do(func() { close(p.done) })
}

func (p *Poller) loop() {
	defer p.loopWG.Done()

	ticker := p.cfg.newTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C():
			// A tick racing with halt must not start a poll.
			select {
			case <-p.done:
				return
			default:
			}
			p.firingWG.Add(1)
			go p.fire()
		}
	}
}

// fire performs one poll.
func (p *Poller) fire() {
	defer p.firingWG.Done()

	if p.State() != PollPolling {
		return
	}

	tok, err := p.cfg.Exchanger.PollForCredential(p.ctx, p.cfg.UserCode, p.cfg.Artifact)
	if err != nil {
		if p.ctx.Err() != nil {
			p.cfg.Observer.PollAttempt(p.cfg.Driver, PollOutcomeCancelled)
			return
		}
		// "Not yet approved" and real failures look the same; keep polling.
		p.logger.Debug("token fetch failed", "driver", p.cfg.Driver, "error", err)
		p.cfg.Observer.PollAttempt(p.cfg.Driver, PollOutcomeFailure)
		return
	}

	p.mu.Lock()
	if p.state != PollPolling {
		p.mu.Unlock()
		p.logger.Debug("discarding late token", "driver", p.cfg.Driver)
		p.cfg.Observer.PollAttempt(p.cfg.Driver, PollOutcomeDiscarded)
		return
	}
	p.state = PollAuthorized
	p.mu.Unlock()

	p.halt()
	p.cfg.Observer.PollAttempt(p.cfg.Driver, PollOutcomeSuccess)
	p.logger.Info("token issued", "driver", p.cfg.Driver, "uid", tok.UID)

	p.cfg.OnAuthorized(p.ctx, tok)
}
