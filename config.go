package hwc

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// fileConfig is the on-disk form of Config. Durations are written in
// milliseconds.
type fileConfig struct {
	*Config
	IdleTimeoutMS *int `json:"idle_timeout_ms"`
}

// LoadConfig reads a JSON configuration file. Fields not set in the file
// keep their [DefaultConfig] values. When the file names a hardware
// generation, that generation's capability preset is the base the other
// capability fields override.
//
// Example file:
//
//	{
//	  "max_pipes_per_mixer": 4,
//	  "idle_timeout_ms": 70,
//	  "capabilities": {"generation": "MDSS5", "dma_pipes": 2}
//	}
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes a JSON configuration, see [LoadConfig].
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	var probe struct {
		Capabilities struct {
			Generation *Generation `json:"generation"`
		} `json:"capabilities"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Config{}, err
	}
	if g := probe.Capabilities.Generation; g != nil {
		cfg.Capabilities = CapabilitiesFor(*g)
	}

	fc := fileConfig{Config: &cfg}
	if err := json.Unmarshal(data, &fc); err != nil {
		return Config{}, err
	}
	if fc.IdleTimeoutMS != nil {
		cfg.IdleTimeout = time.Duration(*fc.IdleTimeoutMS) * time.Millisecond
		if *fc.IdleTimeoutMS < 0 {
			cfg.IdleTimeout = -1
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MarshalText implements encoding.TextMarshaler.
func (g Generation) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Names are matched
// without regard to case; "MDP41" and "MDP4.1" are equivalent.
func (g *Generation) UnmarshalText(text []byte) error {
	name := strings.ToUpper(strings.ReplaceAll(string(text), ".", ""))
	for _, cand := range []Generation{GenerationMDP41, GenerationMDP42, GenerationMDP43, GenerationMDSS5} {
		if strings.ReplaceAll(cand.String(), ".", "") == name {
			*g = cand
			return nil
		}
	}
	return fmt.Errorf("%w: unknown generation %q", ErrInvalidConfig, text)
}
