// Package telemetry reports pairing events to the rest of Gray Logic.
//
// Observer implements tuya.Observer and forwards each event to up to three
// sinks: MQTT (link and discovery events), InfluxDB (one tuya_pairing
// point per event) and Prometheus counters. A sink that is not configured
// is skipped; a failing sink never affects pairing.
package telemetry
