package sanity

import "github.com/spf13/viper"

// Config file keys
const (
	KeyPixelsPerFrame       = "npixels"
	KeyMaxFrames            = "nframes"
	KeyMinSanity            = "min_sanity"
	KeyMinTestedFraction    = "min_tested_fraction"
	KeyMaxOcclusionFraction = "max_occlusion_frac"
	KeyWorkers              = "workers"
)

// ConfigFromViper returns base, with every key that is set in v applied on top
func ConfigFromViper(v *viper.Viper, base Config) Config {
	cfg := base
	if v.IsSet(KeyPixelsPerFrame) {
		cfg.PixelsPerFrame = v.GetInt(KeyPixelsPerFrame)
	}
	if v.IsSet(KeyMaxFrames) {
		cfg.MaxFrames = v.GetInt(KeyMaxFrames)
	}
	if v.IsSet(KeyMinSanity) {
		cfg.MinSanity = v.GetFloat64(KeyMinSanity)
	}
	if v.IsSet(KeyMinTestedFraction) {
		cfg.MinTestedFraction = v.GetFloat64(KeyMinTestedFraction)
	}
	if v.IsSet(KeyMaxOcclusionFraction) {
		cfg.MaxOcclusionFraction = v.GetFloat64(KeyMaxOcclusionFraction)
	}
	if v.IsSet(KeyWorkers) {
		cfg.Workers = v.GetInt(KeyWorkers)
	}
	return cfg
}

// ReadConfigFile loads a YAML, TOML or JSON file (chosen by extension)
func ReadConfigFile(filename string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(filename)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v, nil
}
