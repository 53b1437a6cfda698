// Package config implements the nested, deep-mergeable configuration model
// for streamfx pipelines and modules.
//
// A Config is a plain nested key/value tree with two top-level namespaces,
// "audio" and "video", each holding one sub-config per module keyed by module
// name. Every module sub-config carries at minimum an "enabled" flag plus
// module-specific parameters.
//
// Merge semantics are forward-compatible: nested maps merge field-by-field,
// arrays and primitives replace wholesale, and unknown keys always survive.
package config

import (
	"reflect"

	"github.com/sirupsen/logrus"
)

// Namespace and module keys recognized by the orchestrator. Unknown keys are
// preserved through merges but never instantiate modules.
const (
	NamespaceAudio = "audio"
	NamespaceVideo = "video"

	KeyNoiseSuppression = "noiseSuppression"
	KeyAGC              = "agc"
	KeyVoiceFocus       = "voiceFocus"
	KeyColorCorrection  = "colorCorrection"
	KeyLowLight         = "lowLightCompensation"
	KeyBackgroundBlur   = "backgroundBlur"
)

// Config is a nested configuration tree. The zero value (nil) behaves as an
// empty tree for all read operations.
type Config map[string]interface{}

// Default returns the documented default configuration with every module
// present and disabled. Callers merge their overrides on top of this tree.
func Default() Config {
	return Config{
		NamespaceAudio: Config{
			KeyNoiseSuppression: Config{
				"enabled":   false,
				"intensity": "medium",
			},
			KeyAGC: Config{
				"enabled":          false,
				"targetLevel":      -20.0,
				"compressionRatio": 3.0,
				"attackTime":       0.01,
				"releaseTime":      0.1,
			},
			KeyVoiceFocus: Config{
				"enabled":        false,
				"sensitivity":    0.5,
				"voiceThreshold": 0.3,
				"frequencyRange": Config{
					"low":  85.0,
					"high": 255.0,
				},
			},
		},
		NamespaceVideo: Config{
			KeyColorCorrection: Config{
				"enabled":    false,
				"brightness": 1.0,
				"contrast":   1.0,
				"saturation": 1.0,
				"gamma":      1.0,
			},
			KeyLowLight: Config{
				"enabled":        false,
				"threshold":      0.3,
				"boost":          1.5,
				"preserveColors": true,
			},
			KeyBackgroundBlur: Config{
				"enabled":   false,
				"intensity": 3,
				"model":     "uniform",
			},
		},
	}
}

// Merge recursively merges overlay into c and returns the merged tree. Maps
// merge field-by-field; arrays and primitives from the overlay replace the
// base value wholesale. Neither input is mutated. Merging an empty overlay
// returns a copy structurally equal to c.
func (c Config) Merge(overlay Config) Config {
	merged := c.Clone()
	if merged == nil {
		merged = Config{}
	}

	for key, overlayVal := range overlay {
		baseVal, exists := merged[key]
		if !exists {
			merged[key] = deepCopyValue(overlayVal)
			continue
		}

		baseMap, baseIsMap := toConfig(baseVal)
		overlayMap, overlayIsMap := toConfig(overlayVal)
		if baseIsMap && overlayIsMap {
			merged[key] = baseMap.Merge(overlayMap)
		} else {
			merged[key] = deepCopyValue(overlayVal)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Config.Merge",
		"overlay_keys": len(overlay),
		"merged_keys":  len(merged),
	}).Debug("Configuration merged")

	return merged
}

// Clone returns a structurally independent deep copy of the tree.
func (c Config) Clone() Config {
	if c == nil {
		return nil
	}
	out := make(Config, len(c))
	for key, val := range c {
		out[key] = deepCopyValue(val)
	}
	return out
}

// Equal reports structural equality with other.
func (c Config) Equal(other Config) bool {
	return reflect.DeepEqual(normalize(c), normalize(other))
}

// Sub returns the nested Config at key, or nil when absent or not a map.
func (c Config) Sub(key string) Config {
	if c == nil {
		return nil
	}
	sub, ok := toConfig(c[key])
	if !ok {
		return nil
	}
	return sub
}

// Bool returns the boolean at key, or fallback when absent or mistyped.
func (c Config) Bool(key string, fallback bool) bool {
	if c == nil {
		return fallback
	}
	if v, ok := c[key].(bool); ok {
		return v
	}
	return fallback
}

// Float returns the numeric value at key as a float64, accepting any Go
// numeric type the tree may carry (YAML decodes whole numbers as int).
func (c Config) Float(key string, fallback float64) float64 {
	if c == nil {
		return fallback
	}
	switch v := c[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

// Int returns the integer at key, or fallback when absent or mistyped.
func (c Config) Int(key string, fallback int) int {
	if c == nil {
		return fallback
	}
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

// String returns the string at key, or fallback when absent or mistyped.
func (c Config) String(key string, fallback string) string {
	if c == nil {
		return fallback
	}
	if v, ok := c[key].(string); ok {
		return v
	}
	return fallback
}

// HasEnabled reports whether any module sub-config directly under the given
// namespace carries enabled=true. It drives per-domain pipeline activation.
func (c Config) HasEnabled(namespace string) bool {
	ns := c.Sub(namespace)
	for key := range ns {
		if ns.Sub(key).Bool("enabled", false) {
			return true
		}
	}
	return false
}

// toConfig converts any map-shaped value into a Config. YAML decoding
// produces map[string]interface{}, so both shapes are accepted.
func toConfig(v interface{}) (Config, bool) {
	switch m := v.(type) {
	case Config:
		return m, true
	case map[string]interface{}:
		return Config(m), true
	}
	return nil, false
}

func deepCopyValue(v interface{}) interface{} {
	if m, ok := toConfig(v); ok {
		return m.Clone()
	}
	if s, ok := v.([]interface{}); ok {
		out := make([]interface{}, len(s))
		for i, elem := range s {
			out[i] = deepCopyValue(elem)
		}
		return out
	}
	return v
}

// normalize rewrites every map level to Config so DeepEqual does not
// distinguish Config from map[string]interface{}.
func normalize(v interface{}) interface{} {
	if m, ok := toConfig(v); ok {
		out := make(Config, len(m))
		for key, val := range m {
			out[key] = normalize(val)
		}
		return out
	}
	if s, ok := v.([]interface{}); ok {
		out := make([]interface{}, len(s))
		for i, elem := range s {
			out[i] = normalize(elem)
		}
		return out
	}
	return v
}
