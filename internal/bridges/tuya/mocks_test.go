package tuya

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// fakeTicker is driven by the test through tick.
type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Int32
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time)}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Add(1) }

// tick delivers one tick and reports whether the loop accepted it.
func (f *fakeTicker) tick() bool {
	select {
	case f.ch <- time.Now():
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}

// tickerFactory hands out one fakeTicker per poller.
type tickerFactory struct {
	tickers chan *fakeTicker
}

func newTickerFactory() *tickerFactory {
	return &tickerFactory{tickers: make(chan *fakeTicker, 8)}
}

func (f *tickerFactory) new(time.Duration) Ticker {
	t := newFakeTicker()
	f.tickers <- t
	return t
}

func (f *tickerFactory) next(t *testing.T) *fakeTicker {
	t.Helper()
	select {
	case tk := <-f.tickers:
		return tk
	case <-time.After(2 * time.Second):
		t.Fatal("poller never created its ticker")
		return nil
	}
}

// fakeExchanger scripts the gateway. poll receives the 1-based call number.
type fakeExchanger struct {
	artifact AuthorizationArtifact
	reqErr   error
	poll     func(ctx context.Context, n int) (*Token, error)

	requests atomic.Int32
	polls    atomic.Int32

	mu        sync.Mutex
	userCodes []string
}

var errNotYet = &RemoteRejectedError{Message: "not yet"}

func (f *fakeExchanger) RequestAuthorizationArtifact(_ context.Context, userCode string) (AuthorizationArtifact, error) {
	f.requests.Add(1)
	f.mu.Lock()
	f.userCodes = append(f.userCodes, userCode)
	f.mu.Unlock()
	if f.reqErr != nil {
		return AuthorizationArtifact{}, f.reqErr
	}
	return f.artifact, nil
}

func (f *fakeExchanger) PollForCredential(ctx context.Context, _ string, _ AuthorizationArtifact) (*Token, error) {
	n := int(f.polls.Add(1))
	if f.poll == nil {
		return nil, errNotYet
	}
	return f.poll(ctx, n)
}

// successAfter fails the first n polls and then issues a token.
func successAfter(n int) func(context.Context, int) (*Token, error) {
	return func(_ context.Context, call int) (*Token, error) {
		if call <= n {
			return nil, errNotYet
		}
		return &Token{AccessToken: "at", RefreshToken: "rt", ExpireTime: 7200, UID: "uid-1", Endpoint: "https://example.test"}, nil
	}
}

// recordingObserver records every event.
type recordingObserver struct {
	mu            sync.Mutex
	outcomes      []string
	authorized    []AuthorizedEvent
	discovered    []DiscoveredEvent
	supplementary []string
}

func (r *recordingObserver) PollAttempt(_, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingObserver) Authorized(ev AuthorizedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authorized = append(r.authorized, ev)
}

func (r *recordingObserver) Discovered(ev DiscoveredEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discovered = append(r.discovered, ev)
}

func (r *recordingObserver) SupplementaryFailed(_, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.supplementary = append(r.supplementary, kind)
}

func (r *recordingObserver) count(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.outcomes {
		if o == outcome {
			n++
		}
	}
	return n
}

func (r *recordingObserver) authorizedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.authorized)
}

// fakeAccount is an in-memory AccountClient.
type fakeAccount struct {
	homes    []Home
	homesErr error
	devices  map[string][]Device
	devErr   map[string]error
	specs    map[string]*Specification
	specErr  map[string]error
	points   map[string]*DataPoints
	pointErr map[string]error

	mu          sync.Mutex
	deviceCalls []string
}

func (f *fakeAccount) GetHomes(context.Context) ([]Home, error) {
	return f.homes, f.homesErr
}

func (f *fakeAccount) GetDevices(_ context.Context, homeID string) ([]Device, error) {
	f.mu.Lock()
	f.deviceCalls = append(f.deviceCalls, homeID)
	f.mu.Unlock()
	if err := f.devErr[homeID]; err != nil {
		return nil, err
	}
	return f.devices[homeID], nil
}

func (f *fakeAccount) GetSpecification(_ context.Context, deviceID string) (*Specification, error) {
	if err := f.specErr[deviceID]; err != nil {
		return nil, err
	}
	if s, ok := f.specs[deviceID]; ok {
		return s, nil
	}
	return &Specification{}, nil
}

func (f *fakeAccount) QueryDataPoints(_ context.Context, deviceID string) (*DataPoints, error) {
	if err := f.pointErr[deviceID]; err != nil {
		return nil, err
	}
	if p, ok := f.points[deviceID]; ok {
		return p, nil
	}
	return &DataPoints{Properties: []DataPoint{}}, nil
}

// fakeRegistry reports registered (product, device) pairs.
type fakeRegistry map[[2]string]bool

func (r fakeRegistry) IsRegistered(productID, deviceID string) bool {
	return r[[2]string{productID, deviceID}]
}

// fakeProvider is an in-memory ClientProvider.
type fakeProvider struct {
	account AccountClient
	saved   *AuthorizedClient
	saveErr error
	findErr error

	mu      sync.Mutex
	saves   []*AuthorizedClient
	unlinks []string
}

func (p *fakeProvider) FirstSaved(context.Context) (*AuthorizedClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.findErr != nil {
		return nil, p.findErr
	}
	if p.saved == nil {
		return nil, ErrNotLinked
	}
	return p.saved, nil
}

func (p *fakeProvider) Create(sessionID string, tok *Token) *AuthorizedClient {
	return &AuthorizedClient{SessionID: sessionID, ConfigID: "cfg", Token: tok, AccountClient: p.account}
}

func (p *fakeProvider) Save(_ context.Context, c *AuthorizedClient) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = append(p.saves, c)
	return p.saveErr
}

func (p *fakeProvider) Unlink(_ context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlinks = append(p.unlinks, sessionID)
	if p.saved == nil || p.saved.SessionID != sessionID {
		return ErrNotLinked
	}
	p.saved = nil
	return nil
}

func (p *fakeProvider) saveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saves)
}

// fakeViews records ShowView calls.
type fakeViews struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (v *fakeViews) ShowView(_ context.Context, sessionID, view string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, sessionID+":"+view)
	return v.err
}

func (v *fakeViews) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.calls)
}

var errBoom = errors.New("boom")
