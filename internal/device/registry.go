package device

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry caches registered devices in memory on top of a Repository.
//
// The cache is populated by RefreshCache and kept in sync by CreateDevice
// and DeleteDevice. All methods are safe for concurrent use; IsRegistered is
// called from parallel discovery workers.
type Registry struct {
	repo   Repository
	logger Logger

	mu    sync.RWMutex
	byID  map[string]*Device
	byKey map[Key]string
}

// NewRegistry creates a registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		logger: noopLogger{},
		byID:   make(map[string]*Device),
		byKey:  make(map[Key]string),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	byID := make(map[string]*Device, len(devices))
	byKey := make(map[Key]string, len(devices))
	for i := range devices {
		d := devices[i].DeepCopy()
		byID[d.ID] = d
		byKey[d.Key()] = d.ID
	}

	r.mu.Lock()
	r.byID, r.byKey = byID, byKey
	r.mu.Unlock()

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// IsRegistered reports whether a device with this cloud identity has been
// paired already.
func (r *Registry) IsRegistered(productID, deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byKey[Key{ProductID: productID, DeviceID: deviceID}]
	return ok
}

// GetDevice returns a copy of the device with the given ID.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.mu.RLock()
	cached, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache(d)
	return d, nil
}

// ListDevices returns copies of all cached devices ordered by name, then ID.
func (r *Registry) ListDevices() []Device {
	r.mu.RLock()
	devices := make([]Device, 0, len(r.byID))
	for _, d := range r.byID {
		devices = append(devices, *d.DeepCopy())
	}
	r.mu.RUnlock()

	slices.SortFunc(devices, func(a, b Device) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return devices
}

// CreateDevice validates and persists a device, assigning an ID if empty.
func (r *Registry) CreateDevice(ctx context.Context, d *Device) error {
	if d.ID == "" {
		d.ID = GenerateID()
	}
	if err := ValidateDevice(d); err != nil {
		return err
	}
	if r.IsRegistered(d.ProductID, d.DeviceID) {
		return ErrDeviceExists
	}

	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}
	r.cache(d)

	r.logger.Info("device registered",
		"id", d.ID, "driver", d.Driver, "product_id", d.ProductID, "device_id", d.DeviceID)
	return nil
}

// DeleteDevice removes a device, making it discoverable again.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	if d, ok := r.byID[id]; ok {
		delete(r.byKey, d.Key())
		delete(r.byID, id)
	}
	r.mu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) cache(d *Device) {
	cpy := d.DeepCopy()
	r.mu.Lock()
	r.byID[cpy.ID] = cpy
	r.byKey[cpy.Key()] = cpy.ID
	r.mu.Unlock()
}
