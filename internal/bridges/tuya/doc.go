// Package tuya implements the Tuya Smart Life QR pairing flow.
//
// Pairing links a Tuya account and lists its devices for registration:
//
//  1. The user enters the user code shown in the Smart Life app.
//  2. AuthClient exchanges it for a QR code, which the UI renders.
//  3. A Poller asks the gateway once per interval whether the QR login was
//     approved. The first successful poll wins; the credential is saved
//     through a ClientProvider and the UI moves to the device list.
//  4. A Discoverer enumerates every home of the account, drops devices
//     that are already registered or outside the driver's Family, fetches
//     specification and live data points for the rest and maps each one
//     to capabilities, store and settings.
//
// Session ties the steps together for one pairing attempt. Sessions are
// independent: two pairing UIs open at once never share a poller or a
// client.
//
// Error Handling:
//
// Gateway responses are wrapped in {"success": ..., "result": ...}. A
// non-2xx status yields *TransportError, a false success yields
// *RemoteRejectedError and anything else ErrMalformedResponse. All wrap
// the package sentinels, so callers use errors.Is.
//
// Thread Safety:
//
// AuthClient, CloudClient, Poller, Discoverer and Session are safe for
// concurrent use.
package tuya
