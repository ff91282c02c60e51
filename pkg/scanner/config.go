package scanner

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full configuration for one scan. It is validated before
// any network activity and treated as immutable for the scan's duration.
type Config struct {
	// URL template. BaseURL is kept for callers that split the sample URL
	// themselves; Prefix may already contain it.
	BaseURL  string `json:"base_url" yaml:"base_url"`
	Prefix   string `json:"prefix" yaml:"prefix"`
	NumWidth int    `json:"num_width" yaml:"num_width"`

	// BaseNum is the identifier from the sample URL; the gate phase seeds
	// the browser with it since it is known to resolve. StartNum is where
	// the scan range begins.
	BaseNum  int `json:"base_num" yaml:"base_num"`
	StartNum int `json:"start_num" yaml:"start_num"`

	// Range and termination policy.
	MaxN      int `json:"max_n" yaml:"max_n"`
	MaxMisses int `json:"max_misses" yaml:"max_misses"`

	// Politeness delay drawn uniformly from [DelayMin, DelayMax] between
	// every individual probe.
	DelayMin time.Duration `json:"delay_min" yaml:"delay_min"`
	DelayMax time.Duration `json:"delay_max" yaml:"delay_max"`

	// RateCeiling caps the overall request rate in requests per second,
	// layered under the uniform delay. Zero means no ceiling.
	RateCeiling float64 `json:"rate_ceiling" yaml:"rate_ceiling"`

	// Probe strategy. ClickMode drives a full browser per identifier instead
	// of fetching constructed file URLs directly.
	ClickMode    bool     `json:"click_mode" yaml:"click_mode"`
	AutoDownload bool     `json:"auto_download" yaml:"auto_download"`
	Extensions   []string `json:"extensions" yaml:"extensions"`

	// Cookie is a raw "name=value; name2=value2" header string. When set,
	// the gate bypass phase is skipped and the cookies are injected into the
	// fetch client instead.
	Cookie string `json:"cookie,omitempty" yaml:"cookie,omitempty"`

	// Classification knobs. MinHitSize is the content-length floor below
	// which a non-HTML response is treated as a placeholder.
	MinHitSize int64 `json:"min_hit_size" yaml:"min_hit_size"`

	// Gate bypass knobs.
	GatePollAttempts int           `json:"gate_poll_attempts" yaml:"gate_poll_attempts"`
	GatePollInterval time.Duration `json:"gate_poll_interval" yaml:"gate_poll_interval"`

	// Click-mode knobs.
	RenderDelay     time.Duration `json:"render_delay" yaml:"render_delay"`
	DownloadTimeout time.Duration `json:"download_timeout" yaml:"download_timeout"`

	// Where auto-downloaded files are persisted.
	DownloadDir string `json:"download_dir" yaml:"download_dir"`

	// Request timeout for a single direct fetch.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Headless controls the gate-bypass browser. The gate is often cleared
	// manually, so the default is a visible window.
	Headless bool `json:"headless" yaml:"headless"`

	Verbose bool `json:"verbose" yaml:"verbose"`
}

// DefaultConfig returns scanning defaults matching a polite, conservative
// scan profile.
func DefaultConfig() *Config {
	return &Config{
		NumWidth:         8,
		MaxN:             500,
		MaxMisses:        50,
		DelayMin:         1 * time.Second,
		DelayMax:         3 * time.Second,
		Extensions:       []string{""},
		MinHitSize:       10000,
		GatePollAttempts: 20,
		GatePollInterval: 1 * time.Second,
		RenderDelay:      2500 * time.Millisecond,
		DownloadTimeout:  60 * time.Second,
		DownloadDir:      "downloads",
		Timeout:          12 * time.Second,
	}
}

// LoadFromFile loads configuration from a YAML or JSON file, layered over
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file, JSON when the path ends in
// .json, YAML otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks the configuration for values that cannot produce a
// meaningful scan.
func (c *Config) Validate() error {
	if c.Prefix == "" && c.BaseURL == "" {
		return fmt.Errorf("url prefix is required")
	}
	if c.NumWidth < 1 {
		return fmt.Errorf("num_width must be at least 1")
	}
	if c.StartNum < 0 {
		return fmt.Errorf("start_num must not be negative")
	}
	if c.MaxN < 1 {
		return fmt.Errorf("max_n must be at least 1")
	}
	if c.MaxMisses < 1 {
		return fmt.Errorf("max_misses must be at least 1")
	}
	if c.DelayMin < 0 || c.DelayMax < c.DelayMin {
		return fmt.Errorf("delay range [%v, %v] is invalid", c.DelayMin, c.DelayMax)
	}
	if c.RateCeiling < 0 {
		return fmt.Errorf("rate_ceiling must not be negative")
	}
	if len(c.Extensions) == 0 {
		// Click mode navigates to the bare item page and direct mode still
		// needs one pass per identifier.
		c.Extensions = []string{""}
	}
	if c.MinHitSize < 0 {
		return fmt.Errorf("min_hit_size must not be negative")
	}
	return nil
}

// URLRoot returns the string every candidate URL starts with.
func (c *Config) URLRoot() string {
	return c.BaseURL + c.Prefix
}

// CandidateURL builds the direct-fetch URL for identifier n and an
// extension.
func (c *Config) CandidateURL(n int, ext string) string {
	return c.URLRoot() + ZeroPad(n, c.NumWidth) + ext
}

// PageURL builds the click-mode item page URL for identifier n.
func (c *Config) PageURL(n int) string {
	return c.Prefix + ZeroPad(n, c.NumWidth)
}
