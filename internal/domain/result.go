package domain

import (
	"encoding/json"
	"time"
)

type ProbeMethod string

const (
	MethodEcho ProbeMethod = "echo"
	MethodTCP  ProbeMethod = "tcp"
)

// FailureReason classifies an unsuccessful probe.
type FailureReason string

const (
	ReasonNone              FailureReason = ""
	ReasonTimeout           FailureReason = "timeout"
	ReasonUnreachable       FailureReason = "unreachable"
	ReasonRefusedConnection FailureReason = "refused_connection"
	ReasonResolutionFailure FailureReason = "resolution_failure"
)

// ProbeResult is the outcome of one probe attempt. Latency is set iff
// Success; Reason is set iff !Success. Detail holds the underlying error text.
type ProbeResult struct {
	TargetID  TargetID
	Host      string
	Port      int
	Method    ProbeMethod
	CheckedAt time.Time
	Success   bool
	Latency   time.Duration
	Reason    FailureReason
	Detail    string
}

// Succeeded builds a successful result for t.
func Succeeded(t Target, at time.Time, latency time.Duration) ProbeResult {
	return ProbeResult{
		TargetID:  t.ID,
		Host:      t.Host,
		Port:      t.Port,
		Method:    t.Method(),
		CheckedAt: at,
		Success:   true,
		Latency:   latency,
	}
}

// Failed builds a failed result for t.
func Failed(t Target, at time.Time, reason FailureReason, detail string) ProbeResult {
	return ProbeResult{
		TargetID:  t.ID,
		Host:      t.Host,
		Port:      t.Port,
		Method:    t.Method(),
		CheckedAt: at,
		Reason:    reason,
		Detail:    detail,
	}
}

// LatencyMS is the latency in fractional milliseconds.
func (r ProbeResult) LatencyMS() float64 {
	return float64(r.Latency) / float64(time.Millisecond)
}

// NullableLatencyMS is LatencyMS for successes and nil for failures.
func (r ProbeResult) NullableLatencyMS() *float64 {
	if !r.Success {
		return nil
	}
	ms := r.LatencyMS()
	return &ms
}

type probeResultJSON struct {
	TargetID  TargetID      `json:"target_id"`
	Host      string        `json:"host"`
	Port      int           `json:"port,omitempty"`
	Method    ProbeMethod   `json:"method"`
	CheckedAt time.Time     `json:"checked_at"`
	Success   bool          `json:"success"`
	LatencyMS *float64      `json:"latency_ms,omitempty"`
	Reason    FailureReason `json:"reason,omitempty"`
	Detail    string        `json:"detail,omitempty"`
}

func (r ProbeResult) MarshalJSON() ([]byte, error) {
	out := probeResultJSON{
		TargetID:  r.TargetID,
		Host:      r.Host,
		Port:      r.Port,
		Method:    r.Method,
		CheckedAt: r.CheckedAt,
		Success:   r.Success,
		Reason:    r.Reason,
		Detail:    r.Detail,
	}
	out.LatencyMS = r.NullableLatencyMS()
	return json.Marshal(out)
}

func (r *ProbeResult) UnmarshalJSON(b []byte) error {
	var raw probeResultJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = ProbeResult{
		TargetID:  raw.TargetID,
		Host:      raw.Host,
		Port:      raw.Port,
		Method:    raw.Method,
		CheckedAt: raw.CheckedAt,
		Success:   raw.Success,
		Reason:    raw.Reason,
		Detail:    raw.Detail,
	}
	if raw.LatencyMS != nil {
		r.Latency = time.Duration(*raw.LatencyMS * float64(time.Millisecond))
	}
	return nil
}
