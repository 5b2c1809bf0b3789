package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// BuildClientID is the OAuth client identifier baked in at build time:
//
//	go build -ldflags "-X github.com/scan-io-git/scanio-remote/pkg/shared/config.BuildClientID=..."
var BuildClientID = ""

type Config struct {
	ScanioRemote ScanioRemote `yaml:"scanio_remote"`
	Logger       Logger       `yaml:"logger"`
	HTTPClient   HTTPClient   `yaml:"http_client"`
	Remote       Remote       `yaml:"remote"`
	Auth         Auth         `yaml:"auth"`
	Polling      Polling      `yaml:"polling"`
}

type ScanioRemote struct {
	HomeFolder  string `yaml:"home_folder"`
	Workspace   string `yaml:"workspace"`
	ProjectName string `yaml:"project_name"`
}

type Logger struct {
	Level           string `yaml:"level"`
	DisableTime     *bool  `yaml:"disable_time"`
	JSONFormat      *bool  `yaml:"json_format"`
	IncludeLocation *bool  `yaml:"include_location"`
}

type HTTPClient struct {
	Debug            *bool           `yaml:"debug"`
	RetryCount       int             `yaml:"retry_count"`
	RetryWaitTime    time.Duration   `yaml:"retry_wait_time"`
	RetryMaxWaitTime time.Duration   `yaml:"retry_max_wait_time"`
	Timeout          time.Duration   `yaml:"timeout"`
	TLSClientConfig  TLSClientConfig `yaml:"tls_client_config"`
	Proxy            Proxy           `yaml:"proxy"`
}

type TLSClientConfig struct {
	Verify *bool `yaml:"verify"`
}

type Proxy struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Remote describes the scanning service.
type Remote struct {
	BaseURL    string `yaml:"base_url"`
	ClientID   string `yaml:"client_id"`
	ClientType string `yaml:"client_type"`
	Scope      string `yaml:"scope"`
}

// Auth holds settings of the local OAuth redirect listener.
type Auth struct {
	CallbackPorts   []int         `yaml:"callback_ports"`
	CallbackTimeout time.Duration `yaml:"callback_timeout"`
}

// Polling controls how scan status is tracked after submission.
type Polling struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

func ValidateConfigPath(path string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a file", path)
	}
	return nil
}

func LoadYAML(configPath string, data interface{}) error {
	if err := ValidateConfigPath(configPath); err != nil {
		return err
	}

	file, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)
	if err := d.Decode(data); err != nil {
		return err
	}

	return nil
}

// LoadConfig reads the YAML configuration. A missing file at the default location is not an error,
// the defaults are used instead.
func LoadConfig(configPath string, required bool) (*Config, error) {
	config := &Config{}

	if _, err := os.Stat(configPath); os.IsNotExist(err) && !required {
		return config, nil
	}

	if err := LoadYAML(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to load config %q: %w", configPath, err)
	}

	return config, nil
}
