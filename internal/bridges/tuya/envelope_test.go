package tuya

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantResult string
		wantErr    error
		wantMsg    string
	}{
		{"success", `{"success":true,"result":{"qrcode":"Q1"}}`, `{"qrcode":"Q1"}`, nil, ""},
		{"success without result", `{"success":true}`, "", nil, ""},
		{"rejected with msg", `{"success":false,"msg":"bad code","code":1106}`, "", ErrRemoteRejected, "bad code"},
		{"rejected code only", `{"success":false,"code":1106}`, "", ErrRemoteRejected, "1106"},
		{"rejected string code", `{"success":false,"code":"USER_CODE_INVALID"}`, "", ErrRemoteRejected, "USER_CODE_INVALID"},
		{"rejected null msg", `{"success":false,"msg":null,"code":7}`, "", ErrRemoteRejected, "7"},
		{"rejected bare", `{"success":false}`, "", ErrRemoteRejected, ""},
		{"success as string", `{"success":"true","result":{}}`, "", ErrMalformedResponse, ""},
		{"success as number", `{"success":1}`, "", ErrMalformedResponse, ""},
		{"missing success", `{"result":{}}`, "", ErrMalformedResponse, ""},
		{"not json", `<html>`, "", ErrMalformedResponse, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseEnvelope([]byte(tt.body))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("parseEnvelope() error = %v", err)
				}
				if string(result) != tt.wantResult {
					t.Errorf("result = %s, want %s", result, tt.wantResult)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("parseEnvelope() error = %v, want %v", err, tt.wantErr)
			}
			var rejected *RemoteRejectedError
			if errors.As(err, &rejected) && rejected.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", rejected.Message, tt.wantMsg)
			}
		})
	}
}

func TestDecodeResponse_TransportError(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusBadGateway,
		Status:     "502 Bad Gateway",
		Body:       io.NopCloser(strings.NewReader(`{"success":true}`)),
	}

	_, err := decodeResponse(resp)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error %T is not *TransportError", err)
	}
	if te.StatusCode != http.StatusBadGateway || te.Status != "Bad Gateway" {
		t.Errorf("TransportError = %+v", te)
	}
}

func TestDecodeResponse_UnknownStatusText(t *testing.T) {
	resp := &http.Response{
		StatusCode: 599,
		Status:     "599 Custom",
		Body:       io.NopCloser(strings.NewReader("")),
	}
	_, err := decodeResponse(resp)
	var te *TransportError
	if !errors.As(err, &te) || te.Status != "599 Custom" {
		t.Fatalf("error = %v, want status fallback", err)
	}
}

func TestDecodeResult(t *testing.T) {
	var out struct{ A int }
	if err := decodeResult(nil, &out); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("empty result error = %v", err)
	}
	if err := decodeResult([]byte(`"x"`), &out); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("wrong type error = %v", err)
	}
	if err := decodeResult([]byte(`{"A":3}`), &out); err != nil || out.A != 3 {
		t.Errorf("decodeResult() = %v, out %+v", err, out)
	}
}
