package tuya

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 4 << 20

// envelope is the wrapper every Tuya endpoint answers with:
//
//	{"success": true, "result": ...}
//	{"success": false, "msg": "...", "code": 1106}
//
// Fields are kept raw so the exact shape can be checked.
type envelope struct {
	Success json.RawMessage `json:"success"`
	Result  json.RawMessage `json:"result"`
	Msg     json.RawMessage `json:"msg"`
	Code    json.RawMessage `json:"code"`
}

// decodeResponse checks the transport status and unwraps the envelope,
// returning the raw result payload. It always closes the body.
func decodeResponse(resp *http.Response) (json.RawMessage, error) {
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize)) //nolint:errcheck // draining for reuse
		return nil, newTransportError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return parseEnvelope(body)
}

// parseEnvelope unwraps a response body. "success" must be the literal
// true or false; anything else is malformed.
func parseEnvelope(body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	switch string(bytes.TrimSpace(env.Success)) {
	case "true":
		return env.Result, nil
	case "false":
		return nil, &RemoteRejectedError{Message: rejectionMessage(env)}
	default:
		return nil, ErrMalformedResponse
	}
}

// rejectionMessage prefers msg and falls back to code. String values are
// unquoted; numbers are used verbatim.
func rejectionMessage(env envelope) string {
	for _, raw := range []json.RawMessage{env.Msg, env.Code} {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return string(raw)
	}
	return ""
}

// decodeResult unmarshals a result payload into out.
func decodeResult(result json.RawMessage, out any) error {
	if len(bytes.TrimSpace(result)) == 0 {
		return fmt.Errorf("%w: missing result", ErrMalformedResponse)
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
