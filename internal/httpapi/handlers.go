package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/reachmon/internal/domain"
	"github.com/hamed0406/reachmon/internal/monitor"
	"github.com/hamed0406/reachmon/internal/probe"
)

const maxBody = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func limitParam(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}

type targetView struct {
	Target domain.Target       `json:"target"`
	State  *domain.TargetState `json:"state,omitempty"`
}

func (s *Server) handleAddTarget(w http.ResponseWriter, r *http.Request) {
	var t domain.Target
	if err := decode(w, r, &t); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload: "+err.Error())
		return
	}
	t = s.Defaults.WithDefaults(t)

	id, err := s.Monitor.RegisterUnique(r.Context(), t)
	switch {
	case errors.Is(err, domain.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, monitor.ErrDuplicateTarget):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "id": string(id)})
		return
	case err != nil:
		s.Logger.Error("add_target_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add")
		return
	}

	added, _ := s.Monitor.Get(id)
	s.Logger.Info("added_target",
		zap.String("target_id", string(id)),
		zap.String("address", added.Address()),
	)
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id := domain.TargetID(chi.URLParam(r, "id"))
	if s.Monitor.Unregister(r.Context(), id) {
		s.Logger.Info("removed_target", zap.String("target_id", string(id)))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Monitor.List())
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	id := domain.TargetID(chi.URLParam(r, "id"))
	t, ok := s.Monitor.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "target not found")
		return
	}
	view := targetView{Target: t}
	if st, ok := s.Monitor.State(id); ok {
		view.State = &st
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Monitor.States())
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Results.Latest(r.Context())
	if err != nil {
		s.Logger.Error("latest_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "latest error")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := domain.TargetID(chi.URLParam(r, "id"))
	rows, err := s.Results.History(r.Context(), id, limitParam(r))
	if err != nil {
		s.Logger.Error("history_error", zap.String("target_id", string(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history error")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	id := domain.TargetID(chi.URLParam(r, "id"))
	rows, err := s.Transitions.Transitions(r.Context(), id, limitParam(r))
	if err != nil {
		s.Logger.Error("transitions_error", zap.String("target_id", string(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "transitions error")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

type probeRequest struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Timeout string `json:"timeout"`
}

// handleProbe runs one probe right away. The result is returned but not
// tracked or stored.
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	var p probeRequest
	if err := decode(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload: "+err.Error())
		return
	}
	timeout := s.Defaults.Timeout
	if p.Timeout != "" {
		d, err := time.ParseDuration(p.Timeout)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid timeout %q", p.Timeout))
			return
		}
		timeout = d
	}
	t := domain.Target{
		ID: "adhoc", Host: p.Host, Port: p.Port,
		Interval: timeout, Timeout: timeout,
		FailureThreshold: 1, RecoveryThreshold: 1,
	}
	if err := t.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := s.Prober.Probe(r.Context(), t)
	s.Logger.Info("adhoc_probe",
		zap.String("address", t.Address()),
		zap.Bool("success", res.Success),
		zap.String("reason", string(res.Reason)),
	)
	writeJSON(w, http.StatusOK, res)
}

type scanRequest struct {
	Host    string `json:"host"`
	Ports   string `json:"ports"`
	Timeout string `json:"timeout"`
	Workers int    `json:"workers"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var p scanRequest
	if err := decode(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload: "+err.Error())
		return
	}
	if !domain.ValidHost(p.Host) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid host %q", p.Host))
		return
	}
	if p.Workers < 0 || p.Workers > probe.MaxScanWorkers {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("workers must be in [0, %d]", probe.MaxScanWorkers))
		return
	}
	ports, err := probe.ParsePorts(p.Ports)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var timeout time.Duration
	if p.Timeout != "" {
		if timeout, err = time.ParseDuration(p.Timeout); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid timeout %q", p.Timeout))
			return
		}
	}

	rep, err := s.Scanner.Scan(r.Context(), p.Host, ports, timeout, p.Workers)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if s.Scans != nil {
		if err := s.Scans.AppendScan(r.Context(), rep); err != nil {
			s.Logger.Warn("scan_persist_error", zap.String("host", rep.Host), zap.Error(err))
		}
	}
	s.Logger.Info("port_scan",
		zap.String("host", rep.Host),
		zap.Int("ports", len(rep.Ports)),
		zap.Ints("open", rep.Open),
		zap.Duration("took", rep.Duration),
	)
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	if s.Scans == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	rows, err := s.Scans.Scans(r.Context(), r.URL.Query().Get("host"), limitParam(r))
	if err != nil {
		s.Logger.Error("scans_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "scans error")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

// handleDNS explains how a host resolves, for chasing resolution failures.
func (s *Server) handleDNS(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	if host == "" {
		writeError(w, http.StatusBadRequest, "host is required")
		return
	}
	var res probe.DNSResolver = net.DefaultResolver
	if s.Resolver != nil {
		res = s.Resolver
	}
	rep := probe.Diagnose(r.Context(), res, host, s.Defaults.Timeout)
	if rep.Class == probe.DNSInvalidName {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid host %q", host))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// nonNil makes empty lists encode as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
