package tuya

import (
	"regexp"
	"strings"
)

var defaultSocketCategories = []string{"cz", "pc"}

var switchCodePattern = regexp.MustCompile(`^switch(_\d+)?$`)

// socketMetering maps metering status codes to capabilities.
var socketMetering = []struct {
	code       string
	capability string
}{
	{"cur_power", "measure_power"},
	{"add_ele", "meter_power"},
	{"cur_voltage", "measure_voltage"},
	{"cur_current", "measure_current"},
}

// SocketFamily maps smart plugs and power strips.
//
// A single switch becomes "onoff"; several become "onoff.switch_N" with a
// title each.
type SocketFamily struct {
	BaseFamily
}

func (*SocketFamily) Name() string { return FamilySocket }

func (f *SocketFamily) Map(d Device, spec *Specification, dataPoints *DataPoints) Properties {
	set := newCapabilitySet(f.BaseFamily.Map(d, spec, dataPoints))
	codes := reportedCodes(d, spec)

	var switches []string
	for _, code := range codes {
		if switchCodePattern.MatchString(code) {
			switches = append(switches, code)
		}
	}
	if len(switches) == 1 {
		set.add("onoff", nil)
		set.recognise(switches[0])
	} else {
		for _, code := range switches {
			set.add("onoff."+code, map[string]any{"title": switchTitle(code)})
			set.recognise(code)
		}
	}

	for _, m := range socketMetering {
		for _, code := range codes {
			if code == m.code {
				set.add(m.capability, nil)
				set.recognise(code)
			}
		}
	}

	return set.properties()
}

// switchTitle turns "switch_2" into "Switch 2".
func switchTitle(code string) string {
	if n, ok := strings.CutPrefix(code, "switch_"); ok {
		return "Switch " + n
	}
	return "Switch"
}
