package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidConfig is returned (wrapped) when a target fails validation at
// registration time. Invalid targets never enter the schedule.
var ErrInvalidConfig = errors.New("invalid config")

type TargetID string

// Target is one monitored endpoint and its probe configuration.
// Port 0 means no port: the target is checked with an echo probe.
type Target struct {
	ID                TargetID
	Name              string
	Host              string
	Port              int
	Interval          time.Duration
	Timeout           time.Duration
	FailureThreshold  int
	RecoveryThreshold int
	CreatedAt         time.Time
}

var hostPattern = regexp.MustCompile(`^[A-Za-z0-9.:\-]+$`)

const maxHostLen = 253

// ValidHost reports whether h looks like a hostname or an IP literal.
func ValidHost(h string) bool {
	if h == "" || len(h) > maxHostLen {
		return false
	}
	return hostPattern.MatchString(h)
}

// Validate checks the target against the registration rules.
func (t Target) Validate() error {
	switch {
	case t.Host == "":
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	case !ValidHost(t.Host):
		return fmt.Errorf("%w: host %q contains invalid characters", ErrInvalidConfig, t.Host)
	case t.Port < 0 || t.Port > 65535:
		return fmt.Errorf("%w: port %d out of range 1-65535", ErrInvalidConfig, t.Port)
	case t.Interval <= 0:
		return fmt.Errorf("%w: interval must be > 0, got %s", ErrInvalidConfig, t.Interval)
	case t.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be > 0, got %s", ErrInvalidConfig, t.Timeout)
	case t.Timeout > t.Interval:
		return fmt.Errorf("%w: timeout %s exceeds interval %s", ErrInvalidConfig, t.Timeout, t.Interval)
	case t.FailureThreshold < 1:
		return fmt.Errorf("%w: failure_threshold must be >= 1, got %d", ErrInvalidConfig, t.FailureThreshold)
	case t.RecoveryThreshold < 1:
		return fmt.Errorf("%w: recovery_threshold must be >= 1, got %d", ErrInvalidConfig, t.RecoveryThreshold)
	}
	return nil
}

// HasPort reports whether the target is checked with a TCP connect.
func (t Target) HasPort() bool { return t.Port != 0 }

// Address is host:port for port targets and the bare host otherwise.
func (t Target) Address() string {
	if !t.HasPort() {
		return t.Host
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Method names the probe kind used for this target.
func (t Target) Method() ProbeMethod {
	if t.HasPort() {
		return MethodTCP
	}
	return MethodEcho
}

// DisplayName falls back to the address when no name was given.
func (t Target) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Address()
}

type targetJSON struct {
	ID                TargetID  `json:"id"`
	Name              string    `json:"name,omitempty"`
	Host              string    `json:"host"`
	Port              int       `json:"port,omitempty"`
	Interval          string    `json:"interval"`
	Timeout           string    `json:"timeout"`
	FailureThreshold  int       `json:"failure_threshold"`
	RecoveryThreshold int       `json:"recovery_threshold"`
	CreatedAt         time.Time `json:"created_at"`
}

func (t Target) MarshalJSON() ([]byte, error) {
	return json.Marshal(targetJSON{
		ID:                t.ID,
		Name:              t.Name,
		Host:              t.Host,
		Port:              t.Port,
		Interval:          t.Interval.String(),
		Timeout:           t.Timeout.String(),
		FailureThreshold:  t.FailureThreshold,
		RecoveryThreshold: t.RecoveryThreshold,
		CreatedAt:         t.CreatedAt,
	})
}

func (t *Target) UnmarshalJSON(b []byte) error {
	var raw targetJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var interval, timeout time.Duration
	var err error
	if raw.Interval != "" {
		if interval, err = time.ParseDuration(raw.Interval); err != nil {
			return fmt.Errorf("interval: %w", err)
		}
	}
	if raw.Timeout != "" {
		if timeout, err = time.ParseDuration(raw.Timeout); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
	}
	*t = Target{
		ID:                raw.ID,
		Name:              raw.Name,
		Host:              raw.Host,
		Port:              raw.Port,
		Interval:          interval,
		Timeout:           timeout,
		FailureThreshold:  raw.FailureThreshold,
		RecoveryThreshold: raw.RecoveryThreshold,
		CreatedAt:         raw.CreatedAt,
	}
	return nil
}
