package tuya

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Family filters and maps the devices of one device family.
//
// Map must never fail: missing specification or data points are rendered
// as a placeholder in the diagnostic setting.
type Family interface {
	Name() string

	// Categories is the allow-list of Tuya category codes.
	Categories() []string

	Filter(d Device) bool
	Map(d Device, spec *Specification, dataPoints *DataPoints) Properties
}

// Family names accepted by NewFamily.
const (
	FamilyGeneric = "generic"
	FamilySocket  = "socket"
	FamilyLight   = "light"
)

// Keys written by BaseFamily.
const (
	StoreCapabilitiesKey  = "tuya_capabilities"
	StoreCategoryKey      = "tuya_category"
	SettingSpecificationK = "deviceSpecification"

	notAvailable = "<not available>"
	redacted     = "<redacted>"
)

// redactedFields are removed from device records before they are logged
// or written to the diagnostic setting.
var redactedFields = []string{"local_key", "ip", "lat", "lon", "uid", "owner_id", "uuid"}

// NewFamily returns the family registered under name. categories replaces
// the family's built-in allow-list when non-empty.
func NewFamily(name string, categories []string) (Family, error) {
	switch name {
	case FamilyGeneric:
		return NewBaseFamily(categories...), nil
	case FamilySocket:
		if len(categories) == 0 {
			categories = defaultSocketCategories
		}
		return &SocketFamily{BaseFamily: NewBaseFamily(categories...)}, nil
	case FamilyLight:
		if len(categories) == 0 {
			categories = defaultLightCategories
		}
		return &LightFamily{BaseFamily: NewBaseFamily(categories...)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, name)
	}
}

// BaseFamily accepts devices by category and fills only diagnostic
// metadata. It is the fallback for unrecognised families and the base the
// other families build on.
type BaseFamily struct {
	categories []string
}

// NewBaseFamily creates a family accepting the given categories.
func NewBaseFamily(categories ...string) BaseFamily {
	return BaseFamily{categories: slices.Clone(categories)}
}

func (BaseFamily) Name() string { return FamilyGeneric }

func (f BaseFamily) Categories() []string { return slices.Clone(f.categories) }

// Filter reports whether the device category is in the allow-list.
func (f BaseFamily) Filter(d Device) bool {
	return slices.Contains(f.categories, d.Category)
}

// Map returns empty capabilities, the category in the store and a JSON
// dump of the redacted record and its supplementary data.
func (f BaseFamily) Map(d Device, spec *Specification, dataPoints *DataPoints) Properties {
	return Properties{
		Capabilities:        []string{},
		CapabilitiesOptions: map[string]map[string]any{},
		Store: map[string]any{
			StoreCapabilitiesKey: []string{},
			StoreCategoryKey:     d.Category,
		},
		Settings: map[string]any{
			SettingSpecificationK: diagnosticSpecification(d, spec, dataPoints),
		},
	}
}

// diagnosticSpecification renders the record for support purposes with
// two space indentation.
func diagnosticSpecification(d Device, spec *Specification, dataPoints *DataPoints) string {
	combined := struct {
		Device         any `json:"device"`
		Specifications any `json:"specifications"`
		DataPoints     any `json:"data_points"`
	}{
		Device:         RedactFields(d),
		Specifications: notAvailable,
		DataPoints:     notAvailable,
	}
	switch {
	case spec != nil && json.Valid(spec.Raw):
		combined.Specifications = spec.Raw
	case spec != nil:
		combined.Specifications = spec
	}
	if dataPoints != nil && dataPoints.Properties != nil {
		combined.DataPoints = dataPoints.Properties
	}

	// Placeholders such as "<redacted>" must stay readable.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(combined); err != nil {
		return notAvailable
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

// RedactFields returns a copy of the raw record with sensitive fields
// replaced.
func RedactFields(d Device) map[string]any {
	src := d.Raw
	if src == nil {
		src = map[string]any{
			"id":         d.ID,
			"product_id": d.ProductID,
			"category":   d.Category,
			"name":       d.Name,
			"status":     d.Status,
		}
	}

	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	for _, k := range redactedFields {
		if _, ok := out[k]; ok {
			out[k] = redacted
		}
	}
	return out
}

// capabilitySet accumulates capabilities in insertion order.
type capabilitySet struct {
	props Properties
	codes []string
}

func newCapabilitySet(base Properties) *capabilitySet {
	return &capabilitySet{props: base}
}

func (c *capabilitySet) add(capability string, options map[string]any) {
	if !slices.Contains(c.props.Capabilities, capability) {
		c.props.Capabilities = append(c.props.Capabilities, capability)
	}
	if len(options) > 0 {
		c.props.CapabilitiesOptions[capability] = options
	}
}

func (c *capabilitySet) recognise(code string) {
	if !slices.Contains(c.codes, code) {
		c.codes = append(c.codes, code)
	}
}

func (c *capabilitySet) properties() Properties {
	c.props.Store[StoreCapabilitiesKey] = c.codes
	if c.codes == nil {
		c.props.Store[StoreCapabilitiesKey] = []string{}
	}
	return c.props
}

// reportedCodes lists the status codes a device reports or declares, in
// record order then specification order.
func reportedCodes(d Device, spec *Specification) []string {
	var codes []string
	seen := make(map[string]bool)
	addCode := func(code string) {
		if code != "" && !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	for _, s := range d.Status {
		addCode(s.Code)
	}
	if spec != nil {
		for _, s := range spec.Status {
			addCode(s.Code)
		}
		for _, f := range spec.Functions {
			addCode(f.Code)
		}
	}
	return codes
}

// specEntry finds a code among the specification's status and functions.
func specEntry(spec *Specification, code string) (SpecificationEntry, bool) {
	if spec == nil {
		return SpecificationEntry{}, false
	}
	for _, list := range [][]SpecificationEntry{spec.Status, spec.Functions} {
		for _, e := range list {
			if e.Code == code {
				return e, true
			}
		}
	}
	return SpecificationEntry{}, false
}
