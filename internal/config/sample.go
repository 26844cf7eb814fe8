package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrExists is returned by WriteSample when the target file is present.
var ErrExists = errors.New("config file already exists")

type sampleFile struct {
	BaseURL      string            `yaml:"base_url"`
	TotalReq     int               `yaml:"total_req"`
	Worker       int               `yaml:"worker"`
	UploadSecret string            `yaml:"upload_secret"`
	Warmup       int               `yaml:"warmup"`
	RateLimit    int               `yaml:"rate_limit"`
	Timeout      string            `yaml:"timeout"`
	Phases       []samplePhase     `yaml:"phases"`
	Thresholds   map[string]string `yaml:"thresholds"`
	Log          sampleLog         `yaml:"log"`
	Metrics      map[string]string `yaml:"metrics"`
	Database     map[string]string `yaml:"database"`
}

type samplePhase struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Path      string `yaml:"path,omitempty"`
	Requests  int    `yaml:"requests,omitempty"`
	ImageSize int    `yaml:"image_size,omitempty"`
}

type sampleLog struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Color  bool   `yaml:"color"`
}

// Sample returns the YAML written by WriteSample.
func Sample() ([]byte, error) {
	s := sampleFile{
		BaseURL:      "http://localhost:9980",
		TotalReq:     1000,
		Worker:       50,
		UploadSecret: "change-me",
		Timeout:      "30s",
		Phases: []samplePhase{
			{Name: "read", Kind: "read"},
			{Name: "write", Kind: "write", ImageSize: 100},
		},
		Thresholds: map[string]string{"p95": "500ms", "failure_rate": "1%"},
		Log:        sampleLog{Level: "info", Format: "console", Color: true},
		Metrics:    map[string]string{"addr": ""},
		Database:   map[string]string{"path": "avatars.db"},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encoding sample config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteSample writes a starter configuration to path. It refuses to
// overwrite an existing file unless force is set.
func WriteSample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	data, err := Sample()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing sample config: %w", err)
	}
	return nil
}
