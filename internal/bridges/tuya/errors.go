package tuya

import (
	"errors"
	"net/http"
)

// Domain errors for the Tuya bridge package.
var (
	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("tuya: transport error")

	// ErrRemoteRejected matches every *RemoteRejectedError.
	ErrRemoteRejected = errors.New("tuya: remote rejected request")

	// ErrMalformedResponse is returned when a response body is neither a
	// success nor a failure envelope.
	ErrMalformedResponse = errors.New("tuya: malformed response")

	// ErrAccountEnumeration is returned when the homes of the linked
	// account cannot be listed.
	ErrAccountEnumeration = errors.New("tuya: account enumeration failed")

	// ErrDeviceEnumeration is returned when the devices of a home cannot
	// be listed.
	ErrDeviceEnumeration = errors.New("tuya: device enumeration failed")

	// ErrSupplementaryFetch marks a failed specification or data point
	// fetch. It is logged, never returned by the discovery pipeline.
	ErrSupplementaryFetch = errors.New("tuya: supplementary fetch failed")

	// ErrNotLinked is returned when an operation needs an authorized client
	// and the session has none.
	ErrNotLinked = errors.New("tuya: no authorized client")

	// ErrInvalidUserCode is returned for an empty user code.
	ErrInvalidUserCode = errors.New("tuya: user code is required")

	// ErrSessionClosed is returned by a session after Close.
	ErrSessionClosed = errors.New("tuya: session closed")

	// ErrUnknownFamily is returned for an unregistered device family name.
	ErrUnknownFamily = errors.New("tuya: unknown device family")
)

// TransportError is returned when the remote answers with a non-2xx status.
// The body is not inspected.
type TransportError struct {
	StatusCode int
	Status     string
}

func newTransportError(resp *http.Response) *TransportError {
	status := http.StatusText(resp.StatusCode)
	if status == "" {
		status = resp.Status
	}
	return &TransportError{StatusCode: resp.StatusCode, Status: status}
}

func (e *TransportError) Error() string {
	return "tuya: transport error: " + e.Status
}

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// RemoteRejectedError is returned for a {"success": false} envelope.
// Message is the envelope's msg, or its code when msg is missing.
type RemoteRejectedError struct {
	Message string
}

func (e *RemoteRejectedError) Error() string {
	if e.Message == "" {
		return ErrRemoteRejected.Error()
	}
	return ErrRemoteRejected.Error() + ": " + e.Message
}

// Is reports whether target is ErrRemoteRejected.
func (e *RemoteRejectedError) Is(target error) bool {
	return target == ErrRemoteRejected
}
