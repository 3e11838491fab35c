// Package api implements the HTTP pairing API and WebSocket hub for the
// Gray Logic Tuya service.
//
// This package provides:
//   - Pairing session endpoints, one session per pairing UI
//   - WebSocket channels ("pairing.<session id>") that tell a UI which view to show
//   - JWT bearer authentication (tokens minted by Gray Logic Core)
//   - Health and Prometheus endpoints
//
// # Pairing Flow
//
//	POST   /api/v1/pairing/{driver}/sessions              open a session
//	GET    /api/v1/pairing/{driver}/sessions/{id}/linked  reuse a saved account
//	POST   /api/v1/pairing/{driver}/sessions/{id}/usercode
//	GET    /api/v1/pairing/{driver}/sessions/{id}/devices
//	POST   /api/v1/pairing/{driver}/sessions/{id}/devices register chosen devices
//	DELETE /api/v1/pairing/{driver}/sessions/{id}/link    forget the saved account
//	DELETE /api/v1/pairing/{driver}/sessions/{id}         disconnect
//	GET    /api/v1/pairing/audit                          session and registration trail
//
// # Registered Devices
//
//	GET    /api/v1/devices[?driver=]  list, ordered by name
//	GET    /api/v1/devices/{id}
//	DELETE /api/v1/devices/{id}       unpair; later listings offer it again
//
// After a user code is submitted the session polls for the credential in the
// background. Once the QR code is scanned, a "list_devices" view event is
// pushed on the session channel.
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Close tears down every open session before the listener stops. Sessions
// left open longer than 30 minutes are closed by a background sweeper.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
