package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig holds the sink settings read from the configuration file.
type FileConfig struct {
	MQTTServer       string `yaml:"mqtt_server" json:"mqtt_server"`
	MQTTPort         int    `yaml:"mqtt_port" json:"mqtt_port"`
	MQTTUser         string `yaml:"mqtt_user" json:"mqtt_user"`
	MQTTPassword     string `yaml:"mqtt_password" json:"mqtt_password"`
	MQTTRoot         string `yaml:"mqtt_root" json:"mqtt_root"`
	MQTTWindroseRoot string `yaml:"mqtt_windrose_root" json:"mqtt_windrose_root"`
	MQTTRetain       bool   `yaml:"mqtt_retain" json:"mqtt_retain"`

	DatabaseFile string `yaml:"database_file" json:"database_file"`
	DatabaseURL  string `yaml:"database_url" json:"database_url"`

	ExtractorURL string `yaml:"extractor_url" json:"extractor_url"`

	MQTTConnectTimeout Duration `yaml:"mqtt_connect_timeout" json:"mqtt_connect_timeout"`
	MQTTPublishTimeout Duration `yaml:"mqtt_publish_timeout" json:"mqtt_publish_timeout"`
	ExtractTimeout     Duration `yaml:"extract_timeout" json:"extract_timeout"`

	keys map[string]bool
}

const (
	DefaultMQTTConnectTimeout = 10 * time.Second
	DefaultMQTTPublishTimeout = 5 * time.Second
	DefaultExtractTimeout     = 60 * time.Second
	DefaultExtractorURL       = "http://localhost:8090"
)

// Has reports whether key was present in the file, regardless of its value.
func (f FileConfig) Has(key string) bool {
	return f.keys[key]
}

func (f FileConfig) ConnectTimeout() time.Duration {
	return f.MQTTConnectTimeout.Or(DefaultMQTTConnectTimeout)
}

func (f FileConfig) PublishTimeout() time.Duration {
	return f.MQTTPublishTimeout.Or(DefaultMQTTPublishTimeout)
}

func (f FileConfig) ExtractTimeoutOrDefault() time.Duration {
	return f.ExtractTimeout.Or(DefaultExtractTimeout)
}

func (f FileConfig) ExtractorURLOrDefault() string {
	if u := strings.TrimSpace(f.ExtractorURL); u != "" {
		return strings.TrimRight(u, "/")
	}
	return DefaultExtractorURL
}

// LoadFile reads a YAML or JSON configuration file. Files ending in .json are
// decoded as JSON, everything else as YAML.
func LoadFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, err
	}

	var (
		fc  FileConfig
		raw map[string]any
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &raw); err != nil {
			return FileConfig{}, invalid("invalid JSON in configuration file %q: %w", path, err)
		}
		if err := json.Unmarshal(data, &fc); err != nil {
			return FileConfig{}, invalid("invalid configuration file %q: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return FileConfig{}, invalid("invalid YAML in configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return FileConfig{}, invalid("invalid configuration file %q: %w", path, err)
		}
	}

	fc.keys = make(map[string]bool, len(raw))
	for k := range raw {
		fc.keys[k] = true
	}
	return fc, nil
}

// Duration accepts Go duration strings ("10s") or a bare number of seconds.
type Duration time.Duration

func (d Duration) Or(def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return time.Duration(d)
}

func (d *Duration) set(v any) error {
	switch x := v.(type) {
	case nil:
		*d = 0
	case string:
		parsed, err := time.ParseDuration(strings.TrimSpace(x))
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", x, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(x) * time.Second)
	case float64:
		*d = Duration(time.Duration(x * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}
