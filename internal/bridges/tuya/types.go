package tuya

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// flexString decodes a JSON string or number into a string. Tuya IDs are
// sent either way depending on the endpoint.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// Home is one account ("home") of the linked identity.
type Home struct {
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
}

func (h *Home) UnmarshalJSON(data []byte) error {
	var raw struct {
		OwnerID flexString `json:"ownerId"`
		Name    string     `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	h.OwnerID, h.Name = string(raw.OwnerID), raw.Name
	return nil
}

// StatusEntry is one reported data point of a device.
type StatusEntry struct {
	Code  string `json:"code"`
	Value any    `json:"value"`
}

// Device is a raw device record as returned by the cloud.
//
// Raw keeps every field of the record for the diagnostic setting. Status is
// nil when the record had no status list; the discovery pipeline replaces
// that with an empty list before mapping.
type Device struct {
	ID        string
	ProductID string
	Category  string
	Name      string
	Status    []StatusEntry
	Raw       map[string]any
}

func (d *Device) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("device record is null")
	}

	*d = Device{
		ID:        stringField(raw, "id"),
		ProductID: stringField(raw, "product_id"),
		Category:  stringField(raw, "category"),
		Name:      stringField(raw, "name"),
		Raw:       raw,
	}

	if list, ok := raw["status"].([]any); ok {
		d.Status = make([]StatusEntry, 0, len(list))
		for _, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			d.Status = append(d.Status, StatusEntry{Code: stringField(entry, "code"), Value: entry["value"]})
		}
	}
	return nil
}

// MarshalJSON renders the raw record.
func (d Device) MarshalJSON() ([]byte, error) {
	if d.Raw != nil {
		return json.Marshal(d.Raw)
	}
	return json.Marshal(map[string]any{
		"id":         d.ID,
		"product_id": d.ProductID,
		"category":   d.Category,
		"name":       d.Name,
		"status":     d.Status,
	})
}

// normalizeStatus replaces a missing or non-list status with an empty list.
// Some devices omit the field entirely.
func (d *Device) normalizeStatus() {
	if d.Status != nil {
		return
	}
	d.Status = []StatusEntry{}
	if d.Raw != nil {
		d.Raw["status"] = []any{}
	}
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// Specification describes the functions and status codes a device supports.
type Specification struct {
	Category  string               `json:"category"`
	Functions []SpecificationEntry `json:"functions"`
	Status    []SpecificationEntry `json:"status"`

	// Raw is the result document as received, including fields not
	// modelled above. Empty when the value was built in code.
	Raw json.RawMessage `json:"-"`
}

// SpecificationEntry is one function or status code. Values is a JSON
// document, which the cloud usually sends as an encoded string.
type SpecificationEntry struct {
	Code   string          `json:"code"`
	Type   string          `json:"type"`
	Name   string          `json:"name,omitempty"`
	Values json.RawMessage `json:"values,omitempty"`
}

// DecodeValues unmarshals Values into out, unwrapping a string-encoded
// document first.
func (e SpecificationEntry) DecodeValues(out any) error {
	raw := bytes.TrimSpace(e.Values)
	if len(raw) == 0 {
		return fmt.Errorf("no values for %s", e.Code)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		raw = []byte(s)
	}
	return json.Unmarshal(raw, out)
}

// DataPoints is the live state of a device.
type DataPoints struct {
	Properties []DataPoint `json:"properties"`
}

// DataPoint is one live value.
type DataPoint struct {
	Code       string `json:"code"`
	DPID       int    `json:"dp_id"`
	Type       string `json:"type"`
	Value      any    `json:"value"`
	Time       int64  `json:"time,omitempty"`
	CustomName string `json:"custom_name,omitempty"`
}

// Properties is what a Family produces for one device.
type Properties struct {
	Capabilities        []string                  `json:"capabilities"`
	CapabilitiesOptions map[string]map[string]any `json:"capabilitiesOptions"`
	Store               map[string]any            `json:"store"`
	Settings            map[string]any            `json:"settings"`
}

// DeviceData identifies a listed device. It round-trips to the cloud record.
type DeviceData struct {
	DeviceID  string `json:"deviceId"`
	ProductID string `json:"productId"`
}

// ListedDevice is a pairing candidate ready for the device registry.
type ListedDevice struct {
	Name string     `json:"name"`
	Data DeviceData `json:"data"`
	Properties
}
