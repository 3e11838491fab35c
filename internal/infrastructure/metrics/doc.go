// Package metrics exposes pairing counters in the Prometheus format.
//
//	graylogic_tuya_poll_attempts_total{driver,result}
//	graylogic_tuya_authorizations_total{driver}
//	graylogic_tuya_discovered_devices_total{driver}
//	graylogic_tuya_supplementary_failures_total{driver,kind}
//	graylogic_tuya_active_sessions
//
// The API mounts Handler at /metrics.
package metrics
