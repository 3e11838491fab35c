package tuya

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultDiscoveryConcurrency bounds parallel supplementary fetches.
const DefaultDiscoveryConcurrency = 4

// AccountClient is the authorized cloud API used by discovery.
// *CloudClient implements it.
type AccountClient interface {
	GetHomes(ctx context.Context) ([]Home, error)
	GetDevices(ctx context.Context, homeID string) ([]Device, error)
	GetSpecification(ctx context.Context, deviceID string) (*Specification, error)
	QueryDataPoints(ctx context.Context, deviceID string) (*DataPoints, error)
}

// Registry reports whether a device has already been paired.
// *device.Registry implements it.
type Registry interface {
	IsRegistered(productID, deviceID string) bool
}

// DiscovererConfig configures a Discoverer.
type DiscovererConfig struct {
	Driver   string
	Family   Family
	Registry Registry

	// Concurrency defaults to DefaultDiscoveryConcurrency.
	Concurrency int

	Observer Observer
	Logger   Logger
}

// Discoverer lists the devices of a linked account that can be paired.
type Discoverer struct {
	driver      string
	family      Family
	registry    Registry
	concurrency int
	observer    Observer
	logger      Logger
}

// NewDiscoverer validates cfg and returns a Discoverer.
//
// Parameters:
//   - cfg: Family and Registry are required; Concurrency defaults to
//     DefaultDiscoveryConcurrency
//
// Returns:
//   - *Discoverer: Ready to list candidates for any linked account
//   - error: If the family or registry is missing
func NewDiscoverer(cfg DiscovererConfig) (*Discoverer, error) {
	if cfg.Family == nil {
		return nil, fmt.Errorf("family is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultDiscoveryConcurrency
	}
	if cfg.Observer == nil {
		cfg.Observer = NoopObserver{}
	}

	return &Discoverer{
		driver:      cfg.Driver,
		family:      cfg.Family,
		registry:    cfg.Registry,
		concurrency: cfg.Concurrency,
		observer:    cfg.Observer,
		logger:      loggerOrNoop(cfg.Logger),
	}, nil
}

// Family returns the device family used for filtering and mapping.
func (d *Discoverer) Family() Family {
	return d.family
}

// ListCandidateDevices enumerates every home and its devices, drops devices
// that are already registered or outside the family's categories, enriches
// the rest and maps them.
//
// Enumeration failures abort the listing. Supplementary fetch failures are
// logged and the device is mapped without that data. The result keeps
// home order, then device order, whatever order the fetches finish in.
//
// Parameters:
//   - ctx: Context for timeout/cancellation of every cloud request
//   - client: Cloud API authorized for the linked account
//
// Returns:
//   - []ListedDevice: Mapped candidates, empty when nothing can be paired
//   - error: ErrAccountEnumeration or ErrDeviceEnumeration wrapping the
//     cause, or the context error
func (d *Discoverer) ListCandidateDevices(ctx context.Context, client AccountClient) ([]ListedDevice, error) {
	homes, err := client.GetHomes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccountEnumeration, err)
	}

	var candidates []Device
	for _, home := range homes {
		devices, err := client.GetDevices(ctx, home.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("%w: home %s: %w", ErrDeviceEnumeration, home.OwnerID, err)
		}

		for _, dev := range devices {
			if d.registry.IsRegistered(dev.ProductID, dev.ID) {
				continue
			}
			if !d.family.Filter(dev) {
				continue
			}
			dev.normalizeStatus()
			candidates = append(candidates, dev)
		}
	}

	d.logger.Info("listing devices to pair",
		"driver", d.driver, "homes", len(homes), "candidates", len(candidates))

	listed := make([]ListedDevice, len(candidates))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i := range candidates {
		g.Go(func() error {
			listed[i] = d.enrich(ctx, client, candidates[i])
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // enrich never returns an error

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return listed, nil
}

// enrich fetches both supplementary documents independently and maps the
// device.
func (d *Discoverer) enrich(ctx context.Context, client AccountClient, dev Device) ListedDevice {
	d.logger.Debug("device candidate", "driver", d.driver, "device", RedactFields(dev))

	spec, err := client.GetSpecification(ctx, dev.ID)
	if err != nil {
		d.supplementaryFailed(dev, SupplementarySpecification, err)
		spec = nil
	}

	dataPoints, err := client.QueryDataPoints(ctx, dev.ID)
	if err != nil {
		d.supplementaryFailed(dev, SupplementaryDataPoints, err)
		dataPoints = nil
	}

	return ListedDevice{
		Name:       dev.Name,
		Data:       DeviceData{DeviceID: dev.ID, ProductID: dev.ProductID},
		Properties: d.family.Map(dev, spec, dataPoints),
	}
}

func (d *Discoverer) supplementaryFailed(dev Device, kind string, err error) {
	d.logger.Warn("device "+kind+" retrieval failed",
		"driver", d.driver,
		"device_id", dev.ID,
		"error", fmt.Errorf("%w: %w", ErrSupplementaryFetch, err))
	d.observer.SupplementaryFailed(d.driver, kind)
}
