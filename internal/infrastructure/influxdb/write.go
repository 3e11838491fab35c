package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// PairingMeasurement is the measurement every pairing event is written to.
const PairingMeasurement = "tuya_pairing"

// Pairing event names, used as the "event" tag.
const (
	EventPoll                = "poll"
	EventAuthorized          = "authorized"
	EventDiscovered          = "discovered"
	EventSupplementaryFailed = "supplementary_failed"
)

// WritePairingEvent records one pairing event, tagged with the event name
// and driver. The write is non-blocking.
//
//	client.WritePairingEvent(influxdb.EventDiscovered, "socket", map[string]any{"devices": 3})
func (c *Client) WritePairingEvent(event, driver string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	if len(fields) == 0 {
		fields = map[string]any{"count": 1}
	}

	point := write.NewPoint(
		PairingMeasurement,
		map[string]string{
			"event":  event,
			"driver": driver,
		},
		fields,
		c.now(),
	)
	c.writeAPI.WritePoint(point)
}
