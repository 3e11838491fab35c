package device

import "time"

// Device is a Tuya device registered through a pairing session.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Driver is the pairing driver that registered the device.
	Driver string `json:"driver"`

	// ProductID and DeviceID identify the device in the Tuya cloud.
	ProductID string `json:"product_id"`
	DeviceID  string `json:"device_id"`
	Category  string `json:"category,omitempty"`

	// OAuthClientID references the saved client used to reach the device.
	OAuthClientID *string `json:"oauth_client_id,omitempty"`

	Capabilities        []string       `json:"capabilities"`
	CapabilitiesOptions map[string]any `json:"capabilities_options"`
	Store               map[string]any `json:"store"`
	Settings            map[string]any `json:"settings"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key identifies a device by its cloud identity.
type Key struct {
	ProductID string
	DeviceID  string
}

// Key returns the device's cloud identity.
func (d *Device) Key() Key {
	return Key{ProductID: d.ProductID, DeviceID: d.DeviceID}
}

// DeepCopy returns an independent copy; the registry hands these out so the
// cache cannot be mutated by callers.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	if d.Capabilities != nil {
		cpy.Capabilities = append([]string(nil), d.Capabilities...)
	}
	cpy.CapabilitiesOptions = deepCopyMap(d.CapabilitiesOptions)
	cpy.Store = deepCopyMap(d.Store)
	cpy.Settings = deepCopyMap(d.Settings)
	if d.OAuthClientID != nil {
		id := *d.OAuthClientID
		cpy.OAuthClientID = &id
	}
	return &cpy
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
