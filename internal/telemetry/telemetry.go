package telemetry

import (
	"time"

	"github.com/nerrad567/graylogic-tuya/internal/bridges/tuya"
	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/influxdb"
	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/metrics"
	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/mqtt"
)

// EventLinked is the core event type published when an account is linked.
const EventLinked = "tuya_linked"

// protocol names the bridge in discovery topics.
const protocol = "tuya"

// Publisher publishes JSON events on the bus. *mqtt.Client implements it.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// PointWriter records pairing points. *influxdb.Client implements it.
type PointWriter interface {
	WritePairingEvent(event, driver string, fields map[string]any)
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Config wires the sinks. Any of them may be nil.
type Config struct {
	Publisher Publisher
	Writer    PointWriter
	Metrics   *metrics.Metrics
	Logger    Logger
}

// Observer fans pairing events out to MQTT, InfluxDB and Prometheus.
// It implements tuya.Observer.
type Observer struct {
	publisher Publisher
	writer    PointWriter
	metrics   *metrics.Metrics
	logger    Logger
	now       func() time.Time
}

var _ tuya.Observer = (*Observer)(nil)

// New returns an Observer writing to the configured sinks.
func New(cfg Config) *Observer {
	o := &Observer{
		publisher: cfg.Publisher,
		writer:    cfg.Writer,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       time.Now,
	}
	if o.logger == nil {
		o.logger = noopLogger{}
	}
	return o
}

// linkedEvent is the MQTT payload for EventLinked.
type linkedEvent struct {
	tuya.AuthorizedEvent
	Timestamp string `json:"timestamp"`
}

// discoveryEvent is the MQTT payload for a device listing.
type discoveryEvent struct {
	tuya.DiscoveredEvent
	Count     int    `json:"count"`
	Timestamp string `json:"timestamp"`
}

func (o *Observer) PollAttempt(driver, outcome string) {
	if o.metrics != nil {
		o.metrics.PollAttempt(driver, outcome)
	}
	if o.writer != nil {
		o.writer.WritePairingEvent(influxdb.EventPoll, driver, map[string]any{"result": outcome})
	}
}

func (o *Observer) Authorized(ev tuya.AuthorizedEvent) {
	if o.metrics != nil {
		o.metrics.Authorized(ev.Driver)
	}
	if o.writer != nil {
		o.writer.WritePairingEvent(influxdb.EventAuthorized, ev.Driver, map[string]any{"saved": ev.Saved})
	}
	o.publish(mqtt.Topics{}.CoreEvent(EventLinked), linkedEvent{
		AuthorizedEvent: ev,
		Timestamp:       o.timestamp(),
	})
}

func (o *Observer) Discovered(ev tuya.DiscoveredEvent) {
	if o.metrics != nil {
		o.metrics.Discovered(ev.Driver, len(ev.Devices))
	}
	if o.writer != nil {
		o.writer.WritePairingEvent(influxdb.EventDiscovered, ev.Driver, map[string]any{"devices": len(ev.Devices)})
	}
	if ev.Devices == nil {
		ev.Devices = []tuya.DeviceData{}
	}
	o.publish(mqtt.Topics{}.BridgeDiscovery(protocol), discoveryEvent{
		DiscoveredEvent: ev,
		Count:           len(ev.Devices),
		Timestamp:       o.timestamp(),
	})
}

func (o *Observer) SupplementaryFailed(driver, kind string) {
	if o.metrics != nil {
		o.metrics.SupplementaryFailed(driver, kind)
	}
	if o.writer != nil {
		o.writer.WritePairingEvent(influxdb.EventSupplementaryFailed, driver, map[string]any{"kind": kind})
	}
}

// publish sends an event; failures are logged and otherwise ignored.
func (o *Observer) publish(topic string, v any) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishJSON(topic, v); err != nil {
		o.logger.Warn("publishing pairing event failed", "topic", topic, "error", err)
	}
}

func (o *Observer) timestamp() string {
	return o.now().UTC().Format(time.RFC3339)
}
