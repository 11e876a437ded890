package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/reachmon/internal/domain"
)

// File is the YAML config file. Everything is optional; unset values keep
// what FromEnv produced.
//
//	interval: 30s
//	timeout: 2s
//	failure_threshold: 3
//	recovery_threshold: 2
//	max_concurrent_probes: 50
//	targets:
//	  - name: gateway
//	    host: 192.0.2.1
//	  - name: ssh
//	    host: ${BASTION_HOST:-bastion.internal}
//	    port: 22
//	    interval: 10s
type File struct {
	Interval          Duration       `yaml:"interval"`
	Timeout           Duration       `yaml:"timeout"`
	FailureThreshold  int            `yaml:"failure_threshold"`
	RecoveryThreshold int            `yaml:"recovery_threshold"`
	MaxConcurrent     int            `yaml:"max_concurrent_probes"`
	ShutdownGrace     *Duration      `yaml:"shutdown_grace"`
	Targets           []TargetConfig `yaml:"targets"`
}

type TargetConfig struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	Interval          Duration `yaml:"interval"`
	Timeout           Duration `yaml:"timeout"`
	FailureThreshold  int      `yaml:"failure_threshold"`
	RecoveryThreshold int      `yaml:"recovery_threshold"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// LoadFile reads path and merges it over c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return err
	}
	return c.Apply(f)
}

// Parse decodes YAML config data. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &f, nil
}

// Apply overlays file settings and appends the file's targets with
// defaults filled in.
func (c *Config) Apply(f *File) error {
	m := &c.Monitor
	if f.Interval > 0 {
		m.Interval = f.Interval.Duration()
	}
	if f.Timeout > 0 {
		m.Timeout = f.Timeout.Duration()
	}
	if f.FailureThreshold != 0 {
		m.FailureThreshold = f.FailureThreshold
	}
	if f.RecoveryThreshold != 0 {
		m.RecoveryThreshold = f.RecoveryThreshold
	}
	if f.MaxConcurrent != 0 {
		m.MaxConcurrent = f.MaxConcurrent
	}
	if f.ShutdownGrace != nil {
		m.ShutdownGrace = f.ShutdownGrace.Duration()
	}

	for i, tc := range f.Targets {
		host, err := expandEnvVars(tc.Host)
		if err != nil {
			return fmt.Errorf("targets[%d]: %w", i, err)
		}
		c.Targets = append(c.Targets, m.WithDefaults(domain.Target{
			ID:                domain.TargetID(tc.ID),
			Name:              tc.Name,
			Host:              host,
			Port:              tc.Port,
			Interval:          tc.Interval.Duration(),
			Timeout:           tc.Timeout.Duration(),
			FailureThreshold:  tc.FailureThreshold,
			RecoveryThreshold: tc.RecoveryThreshold,
		}))
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars substitutes environment variables. A variable that is unset
// and has no default is an error.
func expandEnvVars(s string) (string, error) {
	var firstErr error
	out := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		sub := envVarPattern.FindStringSubmatch(match)
		name, hasDefault, def := sub[1], sub[2] != "", sub[3]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if hasDefault {
			return def
		}
		firstErr = fmt.Errorf("environment variable %q is not set", name)
		return match
	})
	return out, firstErr
}
