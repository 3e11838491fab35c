// Package config loads the Gray Logic Tuya service configuration.
//
// Values come from built-in defaults, then the YAML file, then GRAYLOGIC_*
// environment variables. Validate reports every problem at once.
//
// The tuya section names the QR login gateway and the pairing drivers:
//
//	tuya:
//	  poll_interval: 1            # seconds between credential polls
//	  discovery_concurrency: 4    # parallel specification/status fetches
//	  drivers:
//	    - name: socket
//	      family: socket
//	    - name: plugs-eu
//	      family: generic
//	      categories: [cz, pc]
//
// Secrets (JWT secret, InfluxDB token, MQTT password) belong in the
// environment. The JWT secret must match the one Gray Logic Core signs with.
package config
