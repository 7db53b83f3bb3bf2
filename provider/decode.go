package provider

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// DecodeSettings decodes the Settings map into out, a pointer to a struct
// with mapstructure tags. Durations may be given as strings ("5s") and
// numbers may arrive as floats from JSON documents.
func (c Config) DecodeSettings(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(c.Settings); err != nil {
		return fmt.Errorf("decoding settings of %q: %w", c.Name, err)
	}
	return nil
}

// Secret returns the named secret or def.
func (c Config) Secret(key, def string) string {
	if v, ok := c.Secrets[key]; ok && v != "" {
		return v
	}
	return def
}
