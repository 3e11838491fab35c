// Package influxdb records Tuya pairing telemetry in InfluxDB.
//
// Every pairing event becomes one point of the tuya_pairing measurement,
// tagged with the event name and the pairing driver:
//
//	tuya_pairing,driver=socket,event=poll result="failure"
//	tuya_pairing,driver=socket,event=authorized saved=true
//	tuya_pairing,driver=socket,event=discovered devices=3i
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval; failures are delivered to the SetOnError callback.
package influxdb
