package tuya

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"
)

func mustDevice(t *testing.T, raw string) Device {
	t.Helper()
	var d Device
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("decoding device: %v", err)
	}
	return d
}

func diagnostic(t *testing.T, p Properties) map[string]any {
	t.Helper()
	s, ok := p.Settings[SettingSpecificationK].(string)
	if !ok {
		t.Fatalf("setting %s is %T, want string", SettingSpecificationK, p.Settings[SettingSpecificationK])
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		t.Fatalf("diagnostic setting is not JSON: %v", err)
	}
	return out
}

func TestNewFamily(t *testing.T) {
	tests := []struct {
		name       string
		categories []string
		wantName   string
		wantCats   []string
	}{
		{FamilyGeneric, []string{"kg"}, FamilyGeneric, []string{"kg"}},
		{FamilySocket, nil, FamilySocket, []string{"cz", "pc"}},
		{FamilySocket, []string{"cz"}, FamilySocket, []string{"cz"}},
		{FamilyLight, nil, FamilyLight, []string{"dj", "dd", "xdd", "fwd", "dc", "tgq"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFamily(tt.name, tt.categories)
			if err != nil {
				t.Fatalf("NewFamily() error = %v", err)
			}
			if f.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", f.Name(), tt.wantName)
			}
			if !slices.Equal(f.Categories(), tt.wantCats) {
				t.Errorf("Categories() = %v, want %v", f.Categories(), tt.wantCats)
			}
		})
	}

	if _, err := NewFamily("thermostat", nil); !errors.Is(err, ErrUnknownFamily) {
		t.Errorf("unknown family error = %v, want ErrUnknownFamily", err)
	}
}

func TestBaseFamily_Filter(t *testing.T) {
	f := NewBaseFamily("cz", "kg")
	if !f.Filter(Device{Category: "kg"}) {
		t.Error("kg should pass")
	}
	if f.Filter(Device{Category: "dj"}) {
		t.Error("dj should not pass")
	}
}

func TestBaseFamily_MapWithoutSupplementaryData(t *testing.T) {
	d := mustDevice(t, `{"id":"d1","product_id":"p1","category":"kg","name":"Plug","status":[]}`)
	p := NewBaseFamily("kg").Map(d, nil, nil)

	if len(p.Capabilities) != 0 || len(p.CapabilitiesOptions) != 0 {
		t.Errorf("capabilities = %v / %v, want empty", p.Capabilities, p.CapabilitiesOptions)
	}
	if p.Store[StoreCategoryKey] != "kg" {
		t.Errorf("store category = %v", p.Store[StoreCategoryKey])
	}

	diag := diagnostic(t, p)
	if diag["specifications"] != notAvailable {
		t.Errorf("specifications = %v, want placeholder", diag["specifications"])
	}
	if diag["data_points"] != notAvailable {
		t.Errorf("data_points = %v, want placeholder", diag["data_points"])
	}
	dev, ok := diag["device"].(map[string]any)
	if !ok || dev["id"] != "d1" {
		t.Errorf("device = %v", diag["device"])
	}

	if s := p.Settings[SettingSpecificationK].(string); !strings.Contains(s, "\n  \"device\": {") {
		t.Errorf("setting is not indented with two spaces:\n%s", s)
	}
}

func TestBaseFamily_MapWithSupplementaryData(t *testing.T) {
	d := mustDevice(t, `{"id":"d1","category":"kg","status":[]}`)
	spec := &Specification{Category: "kg", Status: []SpecificationEntry{{Code: "switch_1", Type: "Boolean"}}}
	points := &DataPoints{Properties: []DataPoint{{Code: "switch_1", DPID: 1, Value: true}}}

	diag := diagnostic(t, NewBaseFamily("kg").Map(d, spec, points))
	specOut, ok := diag["specifications"].(map[string]any)
	if !ok || specOut["category"] != "kg" {
		t.Errorf("specifications = %v", diag["specifications"])
	}
	pointsOut, ok := diag["data_points"].([]any)
	if !ok || len(pointsOut) != 1 {
		t.Errorf("data_points = %v", diag["data_points"])
	}
}

func TestBaseFamily_MapKeepsPlaceholdersUnescaped(t *testing.T) {
	d := mustDevice(t, `{"id":"d1","category":"kg","local_key":"secret","status":[]}`)
	s := NewBaseFamily("kg").Map(d, nil, nil).Settings[SettingSpecificationK].(string)

	for _, want := range []string{`"<not available>"`, `"<redacted>"`} {
		if !strings.Contains(s, want) {
			t.Errorf("setting does not contain %s:\n%s", want, s)
		}
	}
	if strings.Contains(s, `\u003c`) {
		t.Errorf("setting has HTML-escaped placeholders:\n%s", s)
	}
	if strings.HasSuffix(s, "\n") {
		t.Error("setting ends with a newline")
	}
}

func TestBaseFamily_MapRendersRawSpecification(t *testing.T) {
	d := mustDevice(t, `{"id":"d1","category":"kg","status":[]}`)
	spec := &Specification{
		Category: "kg",
		Raw:      json.RawMessage(`{"category":"kg","functions":[],"status":[],"support_local":true}`),
	}

	diag := diagnostic(t, NewBaseFamily("kg").Map(d, spec, nil))
	specOut, ok := diag["specifications"].(map[string]any)
	if !ok {
		t.Fatalf("specifications = %v", diag["specifications"])
	}
	if specOut["support_local"] != true {
		t.Errorf("unmodelled field dropped: %v", specOut)
	}
}

func TestRedactFields(t *testing.T) {
	d := mustDevice(t, `{"id":"d1","local_key":"secret","ip":"1.2.3.4","uuid":"u","name":"Lamp"}`)
	out := RedactFields(d)

	for _, k := range []string{"local_key", "ip", "uuid"} {
		if out[k] != redacted {
			t.Errorf("%s = %v, want redacted", k, out[k])
		}
	}
	if out["name"] != "Lamp" {
		t.Errorf("name = %v", out["name"])
	}
	if _, ok := out["lat"]; ok {
		t.Error("absent fields must not be added")
	}
	if d.Raw["local_key"] != "secret" {
		t.Error("RedactFields modified the source record")
	}
}

func TestSocketFamily_Map(t *testing.T) {
	socket, _ := NewFamily(FamilySocket, nil)

	t.Run("single switch with metering", func(t *testing.T) {
		d := mustDevice(t, `{"id":"d1","category":"cz","status":[
			{"code":"switch_1","value":true},
			{"code":"cur_power","value":120},
			{"code":"add_ele","value":5},
			{"code":"countdown_1","value":0}]}`)
		p := socket.Map(d, nil, nil)

		want := []string{"onoff", "measure_power", "meter_power"}
		if !slices.Equal(p.Capabilities, want) {
			t.Errorf("Capabilities = %v, want %v", p.Capabilities, want)
		}
		codes, _ := p.Store[StoreCapabilitiesKey].([]string)
		if !slices.Equal(codes, []string{"switch_1", "cur_power", "add_ele"}) {
			t.Errorf("store codes = %v", codes)
		}
	})

	t.Run("power strip", func(t *testing.T) {
		d := mustDevice(t, `{"id":"d2","category":"pc","status":[
			{"code":"switch_1","value":true},
			{"code":"switch_2","value":false},
			{"code":"switch_usb1","value":false}]}`)
		p := socket.Map(d, nil, nil)

		want := []string{"onoff.switch_1", "onoff.switch_2"}
		if !slices.Equal(p.Capabilities, want) {
			t.Errorf("Capabilities = %v, want %v", p.Capabilities, want)
		}
		if p.CapabilitiesOptions["onoff.switch_2"]["title"] != "Switch 2" {
			t.Errorf("options = %v", p.CapabilitiesOptions)
		}
	})

	t.Run("codes from specification", func(t *testing.T) {
		d := mustDevice(t, `{"id":"d3","category":"cz"}`)
		d.normalizeStatus()
		spec := &Specification{Functions: []SpecificationEntry{{Code: "switch", Type: "Boolean"}}}
		p := socket.Map(d, spec, nil)
		if !slices.Equal(p.Capabilities, []string{"onoff"}) {
			t.Errorf("Capabilities = %v", p.Capabilities)
		}
	})

	t.Run("no codes", func(t *testing.T) {
		d := mustDevice(t, `{"id":"d4","category":"cz","status":[]}`)
		p := socket.Map(d, nil, nil)
		if len(p.Capabilities) != 0 {
			t.Errorf("Capabilities = %v, want none", p.Capabilities)
		}
		if codes, _ := p.Store[StoreCapabilitiesKey].([]string); codes == nil || len(codes) != 0 {
			t.Errorf("store codes = %#v, want empty list", p.Store[StoreCapabilitiesKey])
		}
	})
}

func TestLightFamily_Map(t *testing.T) {
	light, _ := NewFamily(FamilyLight, nil)

	d := mustDevice(t, `{"id":"l1","category":"dj","status":[
		{"code":"switch_led","value":true},
		{"code":"work_mode","value":"white"},
		{"code":"bright_value_v2","value":500},
		{"code":"bright_value","value":100},
		{"code":"temp_value_v2","value":300},
		{"code":"colour_data_v2","value":"{}"}]}`)
	spec := &Specification{Status: []SpecificationEntry{
		{Code: "bright_value_v2", Type: "Integer", Values: json.RawMessage(`"{\"min\":10,\"max\":1000,\"scale\":0,\"step\":1}"`)},
		{Code: "temp_value_v2", Type: "Integer", Values: json.RawMessage(`{"min":0,"max":0}`)},
	}}

	p := light.Map(d, spec, nil)

	want := []string{"onoff", "dim", "light_temperature", "light_hue", "light_saturation", "light_mode"}
	if !slices.Equal(p.Capabilities, want) {
		t.Errorf("Capabilities = %v, want %v", p.Capabilities, want)
	}
	codes, _ := p.Store[StoreCapabilitiesKey].([]string)
	if !slices.Equal(codes, []string{"switch_led", "bright_value_v2", "temp_value_v2", "colour_data_v2", "work_mode"}) {
		t.Errorf("store codes = %v", codes)
	}

	r, ok := p.Store[StoreBrightnessRangeKey].(ValueRange)
	if !ok || r.Min != 10 || r.Max != 1000 {
		t.Errorf("brightness range = %#v", p.Store[StoreBrightnessRangeKey])
	}
	if _, ok := p.Store[StoreTemperatureRangeKey]; ok {
		t.Error("empty temperature range should not be stored")
	}
}

func TestSpecificationEntry_DecodeValues(t *testing.T) {
	var r ValueRange
	e := SpecificationEntry{Code: "x"}
	if err := e.DecodeValues(&r); err == nil {
		t.Error("expected error for missing values")
	}
	e.Values = json.RawMessage(`{"min":1,"max":2}`)
	if err := e.DecodeValues(&r); err != nil || r.Max != 2 {
		t.Errorf("DecodeValues() = %v, %+v", err, r)
	}
}
