package datasets

// Preset names a curated market-code filter set screening jobs can select
// by name instead of enumerating codes by hand.
type Preset struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	MarketCodes []string `json:"market_codes"`
}

// presets is the in-memory table of named presets. It is small and static
// enough not to warrant a database table of its own.
var presets = map[string]Preset{
	"topix500": {
		Name:        "topix500",
		Description: "TOPIX 500 constituent universe, filtered by prime market segment",
		MarketCodes: []string{"prime"},
	},
	"prime": {
		Name:        "prime",
		Description: "All prime-segment listings",
		MarketCodes: []string{"prime"},
	},
	"standard": {
		Name:        "standard",
		Description: "All standard-segment listings",
		MarketCodes: []string{"standard"},
	},
	"growth": {
		Name:        "growth",
		Description: "All growth-segment listings",
		MarketCodes: []string{"growth"},
	},
}

// ResolvePreset looks up a named preset. The second return value is false
// for an unrecognized name.
func ResolvePreset(name string) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// ListPresets returns every known preset, in no particular order.
func ListPresets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	return out
}
