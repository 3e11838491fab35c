package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	maxNameLength     = 100
	maxCapabilities   = 64
	maxIdentifierLen  = 64
	maxSettingsKeys   = 50
	maxStringValueLen = 64 * 1024 // the deviceSpecification setting holds a JSON dump
)

// ValidateDevice checks a device before it is persisted.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if d.Driver == "" {
		return fmt.Errorf("%w: driver is required", ErrInvalidDevice)
	}
	for field, v := range map[string]string{"product_id": d.ProductID, "device_id": d.DeviceID} {
		if v == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidDevice, field)
		}
		if len(v) > maxIdentifierLen {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidDevice, field, maxIdentifierLen)
		}
	}
	if len(d.Capabilities) > maxCapabilities {
		return fmt.Errorf("%w: more than %d capabilities", ErrInvalidDevice, maxCapabilities)
	}
	if len(d.Settings) > maxSettingsKeys {
		return fmt.Errorf("%w: settings exceeds max keys (%d)", ErrInvalidDevice, maxSettingsKeys)
	}
	for k, v := range d.Settings {
		if s, ok := v.(string); ok && len(s) > maxStringValueLen {
			return fmt.Errorf("%w: settings.%s exceeds %d bytes", ErrInvalidDevice, k, maxStringValueLen)
		}
	}
	return nil
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
