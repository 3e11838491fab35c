// Package mqtt publishes Tuya pairing events on the Gray Logic MQTT bus.
//
// This package manages:
//   - Connection to the Mosquitto broker with auto-reconnect
//   - Publishing with QoS guarantees and payload size limits
//   - Last Will and Testament (LWT) for offline detection
//
// Topics written:
//
//	graylogic/core/event/tuya_linked   an account was linked (no secrets)
//	graylogic/discovery/tuya           a device listing completed
//	graylogic/system/tuya/status       retained online/offline status
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Payloads never carry access or refresh tokens
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.CoreEvent("tuya_linked"), event)
package mqtt
