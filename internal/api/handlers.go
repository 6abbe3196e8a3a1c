// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"grimm.is/tcbridge/internal/brand"
	"grimm.is/tcbridge/internal/errors"
	"grimm.is/tcbridge/internal/monitor"
	"grimm.is/tcbridge/internal/qos"
)

type createBridgeRequest struct {
	Interfaces []string `json:"interfaces"`
}

type clearTCRequest struct {
	Interfaces []string `json:"interfaces"`
}

func (s *Server) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	list, err := s.interfaces.List()
	if err != nil {
		s.logger.WithError(err).Error("interface enumeration failed")
		WriteKindError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

func (s *Server) handleBridgeStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.bridge.Status(r.Context()))
}

func (s *Server) handleBridgeCreate(w http.ResponseWriter, r *http.Request) {
	var req createBridgeRequest
	if !BindJSON(w, r, &req) {
		return
	}
	if len(req.Interfaces) == 0 {
		Failure(w, "No interfaces selected")
		return
	}

	ctx := mutationContext(r)
	if err := s.bridge.Create(ctx, req.Interfaces); err != nil {
		s.logFailure("bridge create failed", err)
		Failure(w, "Error creating bridge: "+err.Error())
		return
	}
	s.pushStatus(ctx)
	Success(w, "Bridge created successfully")
}

func (s *Server) handleBridgeDestroy(w http.ResponseWriter, r *http.Request) {
	ctx := mutationContext(r)
	s.bridge.Destroy(ctx)
	s.pushStatus(ctx)
	Success(w, "Bridge destroyed successfully")
}

func (s *Server) handleTCApply(w http.ResponseWriter, r *http.Request) {
	var raw qos.RawRule
	if !BindJSON(w, r, &raw) {
		return
	}
	if len(raw.Interfaces) == 0 {
		Failure(w, "No interfaces selected for TC rules")
		return
	}

	sum, err := s.shaper.ApplyRaw(mutationContext(r), raw)
	if err != nil {
		s.logFailure("tc apply failed", err)
		Failure(w, tcFailureMessage(err))
		return
	}
	Success(w, sum.Message)
}

func (s *Server) handleTCClear(w http.ResponseWriter, r *http.Request) {
	var req clearTCRequest
	if !BindJSON(w, r, &req) {
		return
	}
	if len(req.Interfaces) == 0 {
		Failure(w, "No interfaces selected for TC rules")
		return
	}

	sum, err := s.shaper.Clear(mutationContext(r), req.Interfaces)
	if err != nil {
		s.logFailure("tc clear failed", err)
		Failure(w, tcFailureMessage(err))
		return
	}
	Success(w, sum.Message)
}

// mutationContext detaches host changes from the client connection so a
// disconnect cannot stop a command sequence midway. Each command stays
// bounded by the executor timeout.
func mutationContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// logFailure logs err with the attributes collected along its chain.
func (s *Server) logFailure(msg string, err error) {
	attrs := errors.GetAttributes(err)
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, attrs[k])
	}
	s.logger.WithError(err).Warn(msg, args...)
}

func tcFailureMessage(err error) string {
	if errors.IsKind(err, errors.KindInvalidSpec) {
		return "Invalid TC rule values: " + err.Error()
	}
	return "Error applying TC rules: " + err.Error()
}

func (s *Server) handleTCStatus(w http.ResponseWriter, r *http.Request) {
	dev := mux.Vars(r)["interface"]
	st, err := s.shaper.Status(r.Context(), dev)
	if err != nil {
		WriteKindError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

func (s *Server) handleTCDefaults(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.tcDefaults)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"name":      brand.Get().Name,
		"version":   s.version,
		"observers": s.ws.Count(),
	})
}

// pushStatus sends a fresh snapshot to observers after a bridge change so
// they do not wait for the next monitor tick.
func (s *Server) pushStatus(ctx context.Context) {
	if s.ws.Count() == 0 {
		return
	}
	s.ws.Publish(monitor.EventBridgeStatus, s.bridge.Status(ctx))
}
