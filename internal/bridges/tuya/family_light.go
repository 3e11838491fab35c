package tuya

var defaultLightCategories = []string{"dj", "dd", "xdd", "fwd", "dc", "tgq"}

// Store keys for the value ranges of dimmable lights.
const (
	StoreBrightnessRangeKey  = "tuya_brightness"
	StoreTemperatureRangeKey = "tuya_temperature"
)

// ValueRange is the integer range of a Tuya value-type code.
type ValueRange struct {
	Min   int `json:"min"`
	Max   int `json:"max"`
	Scale int `json:"scale"`
	Step  int `json:"step"`
}

// lightFeature maps one light feature. The first code present wins, so the
// v2 codes are listed first.
type lightFeature struct {
	codes        []string
	capabilities []string
	rangeKey     string
}

var lightFeatures = []lightFeature{
	{codes: []string{"switch_led"}, capabilities: []string{"onoff"}},
	{codes: []string{"bright_value_v2", "bright_value"}, capabilities: []string{"dim"}, rangeKey: StoreBrightnessRangeKey},
	{codes: []string{"temp_value_v2", "temp_value"}, capabilities: []string{"light_temperature"}, rangeKey: StoreTemperatureRangeKey},
	{codes: []string{"colour_data_v2", "colour_data"}, capabilities: []string{"light_hue", "light_saturation"}},
	{codes: []string{"work_mode"}, capabilities: []string{"light_mode"}},
}

// LightFamily maps bulbs, strips and dimmers.
type LightFamily struct {
	BaseFamily
}

func (*LightFamily) Name() string { return FamilyLight }

func (f *LightFamily) Map(d Device, spec *Specification, dataPoints *DataPoints) Properties {
	set := newCapabilitySet(f.BaseFamily.Map(d, spec, dataPoints))

	present := make(map[string]bool)
	for _, code := range reportedCodes(d, spec) {
		present[code] = true
	}

	for _, feature := range lightFeatures {
		code, ok := firstPresent(feature.codes, present)
		if !ok {
			continue
		}
		for _, capability := range feature.capabilities {
			set.add(capability, nil)
		}
		set.recognise(code)

		if feature.rangeKey == "" {
			continue
		}
		if entry, ok := specEntry(spec, code); ok {
			var r ValueRange
			if err := entry.DecodeValues(&r); err == nil && r.Max > r.Min {
				set.props.Store[feature.rangeKey] = r
			}
		}
	}

	return set.properties()
}

func firstPresent(codes []string, present map[string]bool) (string, bool) {
	for _, c := range codes {
		if present[c] {
			return c, true
		}
	}
	return "", false
}
