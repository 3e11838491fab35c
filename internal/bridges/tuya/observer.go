package tuya

// Observer receives pairing events for metrics and telemetry.
// Implementations must be safe for concurrent use and should return
// quickly; they run on poll and request goroutines.
type Observer interface {
	// PollAttempt is called once per completed poll with a PollOutcome* value.
	PollAttempt(driver, outcome string)

	// Authorized is called after a new credential has been saved.
	Authorized(ev AuthorizedEvent)

	// Discovered is called after each successful device listing.
	Discovered(ev DiscoveredEvent)

	// SupplementaryFailed is called when a per-device fetch fails.
	// kind is SupplementarySpecification or SupplementaryDataPoints.
	SupplementaryFailed(driver, kind string)
}

// Supplementary fetch kinds.
const (
	SupplementarySpecification = "specification"
	SupplementaryDataPoints    = "data_points"
)

// AuthorizedEvent describes a completed QR login. It carries no secrets.
type AuthorizedEvent struct {
	SessionID string `json:"session_id"`
	Driver    string `json:"driver"`
	UID       string `json:"uid"`
	Endpoint  string `json:"endpoint"`
	Saved     bool   `json:"saved"`
}

// DiscoveredEvent describes one device listing.
type DiscoveredEvent struct {
	SessionID string       `json:"session_id"`
	Driver    string       `json:"driver"`
	Devices   []DeviceData `json:"devices"`
}

// NoopObserver ignores all events.
type NoopObserver struct{}

func (NoopObserver) PollAttempt(string, string)         {}
func (NoopObserver) Authorized(AuthorizedEvent)         {}
func (NoopObserver) Discovered(DiscoveredEvent)         {}
func (NoopObserver) SupplementaryFailed(string, string) {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) PollAttempt(driver, outcome string) {
	for _, ob := range o {
		ob.PollAttempt(driver, outcome)
	}
}

func (o Observers) Authorized(ev AuthorizedEvent) {
	for _, ob := range o {
		ob.Authorized(ev)
	}
}

func (o Observers) Discovered(ev DiscoveredEvent) {
	for _, ob := range o {
		ob.Discovered(ev)
	}
}

func (o Observers) SupplementaryFailed(driver, kind string) {
	for _, ob := range o {
		ob.SupplementaryFailed(driver, kind)
	}
}
