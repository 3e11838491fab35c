package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-tuya-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// mockToken is a completed paho token.
type mockToken struct {
	err     error
	timeout bool
}

func (t *mockToken) Wait() bool                     { return !t.timeout }
func (t *mockToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *mockToken) Error() error                   { return t.err }
func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// mockPahoClient implements pahomqtt.Client for testing.
type mockPahoClient struct {
	mu           sync.Mutex
	connected    bool
	published    []mockPublish
	publishErr   error
	disconnected bool
}

func (m *mockPahoClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockPahoClient) IsConnectionOpen() bool { return m.IsConnected() }
func (m *mockPahoClient) Connect() pahomqtt.Token {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return &mockToken{}
}

func (m *mockPahoClient) Disconnect(uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnected = true
}

func (m *mockPahoClient) Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = p
	case string:
		body = []byte(p)
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: body, QoS: qos, Retained: retained})
	return &mockToken{err: m.publishErr}
}

func (m *mockPahoClient) Subscribe(string, byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return &mockToken{}
}

func (m *mockPahoClient) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return &mockToken{}
}

func (m *mockPahoClient) Unsubscribe(...string) pahomqtt.Token { return &mockToken{} }
func (m *mockPahoClient) AddRoute(string, pahomqtt.MessageHandler) {}
func (m *mockPahoClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func (m *mockPahoClient) getPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// recordingLogger records log messages.
type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) Info(msg string, _ ...any) { l.record(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any) { l.record(msg) }
func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func newTestClient(t *testing.T) (*Client, *mockPahoClient) {
	t.Helper()
	paho := &mockPahoClient{connected: true}
	return newClient(paho, testConfig()), paho
}

func decodeStatus(t *testing.T, payload []byte) statusPayload {
	t.Helper()
	var s statusPayload
	if err := json.Unmarshal(payload, &s); err != nil {
		t.Fatalf("status payload is not JSON: %v", err)
	}
	return s
}

// =============================================================================
// Options
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "tuya", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "graylogic-tuya-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "tuya" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.CleanSession || !opts.AutoReconnect {
		t.Error("expected clean session with auto-reconnect")
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS configured without cfg.Broker.TLS")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLSConfig = %+v", opts.TLSConfig)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, "graylogic-tuya-test")

	if !opts.WillEnabled || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will enabled=%v retained=%v qos=%d", opts.WillEnabled, opts.WillRetained, opts.WillQos)
	}
	if opts.WillTopic != "graylogic/system/tuya/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	s := decodeStatus(t, opts.WillPayload)
	if s.Status != "offline" || s.Reason != "unexpected_disconnect" || s.ClientID != "graylogic-tuya-test" {
		t.Errorf("will payload = %+v", s)
	}
}

// =============================================================================
// Publish
// =============================================================================

func TestPublish(t *testing.T) {
	client, paho := newTestClient(t)

	if err := client.Publish("graylogic/discovery/tuya", []byte(`{"test":true}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	published := paho.getPublished()
	if len(published) != 1 {
		t.Fatalf("published %d messages, want 1", len(published))
	}
	if published[0].Topic != "graylogic/discovery/tuya" || published[0].QoS != 1 || published[0].Retained {
		t.Errorf("published = %+v", published[0])
	}
}

func TestPublish_Validation(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "test/topic", []byte("x"), 3, ErrInvalidQoS},
		{"payload too large", "test/topic", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, paho := newTestClient(t)
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
			if len(paho.getPublished()) != 0 {
				t.Error("invalid message reached the broker")
			}
		})
	}
}

func TestPublish_NilPayload(t *testing.T) {
	client, _ := newTestClient(t)
	if err := client.Publish("test/topic", nil, 0, false); err != nil {
		t.Errorf("Publish(nil) error = %v", err)
	}
}

func TestPublish_Disconnected(t *testing.T) {
	client, paho := newTestClient(t)
	paho.Disconnect(0)

	err := client.Publish("test/topic", []byte("x"), 1, false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublish_BrokerError(t *testing.T) {
	client, paho := newTestClient(t)
	paho.publishErr = errors.New("not authorised")

	err := client.Publish("test/topic", []byte("x"), 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishJSON(t *testing.T) {
	client, paho := newTestClient(t)

	event := map[string]any{"session_id": "s1", "saved": true}
	if err := client.PublishJSON(Topics{}.CoreEvent("tuya_linked"), event); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	p := paho.getPublished()[0]
	if p.Topic != "graylogic/core/event/tuya_linked" || p.QoS != 1 || p.Retained {
		t.Errorf("published = %+v", p)
	}
	var got map[string]any
	if err := json.Unmarshal(p.Payload, &got); err != nil || got["session_id"] != "s1" {
		t.Errorf("payload = %s", p.Payload)
	}

	if err := client.PublishJSON("test/topic", make(chan int)); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON(chan) error = %v, want ErrPublishFailed", err)
	}
}

// =============================================================================
// Connection lifecycle
// =============================================================================

func TestHandleConnect_PublishesOnlineStatus(t *testing.T) {
	client, paho := newTestClient(t)
	logger := &recordingLogger{}
	client.SetLogger(logger)

	client.handleConnect()

	statusTopic := Topics{}.SystemStatus()
	published := paho.getPublished()
	if len(published) != 1 || published[0].Topic != statusTopic || !published[0].Retained {
		t.Fatalf("published = %+v", published)
	}
	if s := decodeStatus(t, published[0].Payload); s.Status != "online" {
		t.Errorf("status = %+v", s)
	}
	if len(logger.msgs) != 1 {
		t.Errorf("log messages = %v", logger.msgs)
	}
}

func TestHandleDisconnect(t *testing.T) {
	client, _ := newTestClient(t)
	logger := &recordingLogger{}
	client.SetLogger(logger)

	client.handleDisconnect(errors.New("EOF"))

	if client.IsConnected() {
		t.Error("IsConnected() = true after connection loss")
	}
	if len(logger.msgs) != 1 || !strings.Contains(logger.msgs[0], "lost") {
		t.Errorf("log messages = %v", logger.msgs)
	}
}

func TestClose(t *testing.T) {
	client, paho := newTestClient(t)

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	published := paho.getPublished()
	if len(published) != 1 {
		t.Fatalf("published %d messages, want offline status", len(published))
	}
	if s := decodeStatus(t, published[0].Payload); s.Status != "offline" || s.Reason != "graceful_shutdown" {
		t.Errorf("status = %+v", s)
	}
	if !paho.disconnected {
		t.Error("paho client not disconnected")
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
	if client.IsConnected() {
		t.Error("unconnected client reports connected")
	}
}

func TestHealthCheck(t *testing.T) {
	client, paho := newTestClient(t)

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}

	paho.Disconnect(0)
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() disconnected error = %v, want ErrNotConnected", err)
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		got, want string
	}{
		{topics.CoreEvent("tuya_linked"), "graylogic/core/event/tuya_linked"},
		{topics.BridgeDiscovery("tuya"), "graylogic/discovery/tuya"},
		{topics.SystemStatus(), "graylogic/system/tuya/status"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}
