// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package qos compiles traffic shaping requests into tc commands and
// applies them.
//
// Two layouts are used. Delay and loss alone attach a netem qdisc at the
// interface root. A bandwidth limit needs a classful root, so HTB is
// installed with one class and any emulation hangs off that class.
package qos

import (
	"context"
	"fmt"
	"strings"

	"grimm.is/tcbridge/internal/cmdexec"
	"grimm.is/tcbridge/internal/errors"
	"grimm.is/tcbridge/internal/logging"
	"grimm.is/tcbridge/internal/metrics"
	"grimm.is/tcbridge/internal/validation"
)

// Summary describes a successful apply.
type Summary struct {
	Topology   Topology `json:"topology"`
	Interfaces int      `json:"interfaces"`
	Message    string   `json:"message"`
}

// Manager handles traffic shaping configuration.
type Manager struct {
	run     cmdexec.Runner
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewManager creates a new QoS manager.
func NewManager(run cmdexec.Runner, logger *logging.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = logging.WithComponent("qos")
	}
	return &Manager{
		run:     run,
		logger:  logger,
		metrics: m,
	}
}

// ApplyRaw parses raw and applies it.
func (m *Manager) ApplyRaw(ctx context.Context, raw RawRule) (Summary, error) {
	spec, err := ParseRuleSpec(raw)
	if err != nil {
		m.metrics.IncTCApply("invalid", false)
		return Summary{}, err
	}
	return m.Apply(ctx, spec)
}

// Clear removes shaping from ifaces.
func (m *Manager) Clear(ctx context.Context, ifaces []string) (Summary, error) {
	return m.Apply(ctx, RuleSpec{Interfaces: ifaces})
}

// Apply compiles spec and runs it. Existing root qdiscs on every target are
// removed first. Interfaces are then configured in order; the first failing
// command aborts the run and interfaces already configured stay configured.
func (m *Manager) Apply(ctx context.Context, spec RuleSpec) (Summary, error) {
	plan, err := Compile(spec)
	if err != nil {
		m.metrics.IncTCApply("invalid", false)
		return Summary{}, err
	}

	log := m.logger.With("topology", string(plan.Topology))
	for _, ip := range plan.Interfaces {
		res, err := m.run.Run(ctx, ip.Clear...)
		if err != nil && !noQdisc(res, err) {
			log.WithError(err).Debug("clearing root qdisc failed", "interface", ip.Interface)
		}
	}

	for _, ip := range plan.Interfaces {
		for _, argv := range ip.Install {
			if _, err := m.run.Run(ctx, argv...); err != nil {
				m.metrics.IncTCApply(string(plan.Topology), false)
				log.WithError(err).Error("tc apply failed", "interface", ip.Interface)
				err = errors.Wrapf(err, errors.KindCommandFailed, "failed on %s", ip.Interface)
				return Summary{}, errors.Attr(err, "interface", ip.Interface)
			}
		}
	}

	m.metrics.IncTCApply(string(plan.Topology), true)
	sum := Summary{Topology: plan.Topology, Interfaces: len(plan.Interfaces)}
	if plan.Topology == TopologyClear {
		sum.Message = fmt.Sprintf("TC rules cleared from %d interfaces", sum.Interfaces)
	} else {
		sum.Message = fmt.Sprintf("TC rules applied successfully to %d interfaces (%s)", sum.Interfaces, plan.Topology)
	}
	log.Info(sum.Message, "interfaces", strings.Join(ifaceNames(plan), ","))
	return sum, nil
}

// Status reports the qdiscs installed on dev.
func (m *Manager) Status(ctx context.Context, dev string) (TcStatus, error) {
	if err := validation.ValidateInterfaceName(dev); err != nil {
		return TcStatus{}, err
	}
	res, err := m.run.Run(ctx, "tc", "qdisc", "show", "dev", dev)
	if err != nil {
		if strings.Contains(res.Stderr, "Cannot find device") {
			return TcStatus{}, errors.Wrapf(err, errors.KindNotFound, "interface %s not found", dev)
		}
		return TcStatus{}, errors.Wrapf(err, errors.KindCommandFailed, "query qdiscs on %s", dev)
	}
	return BuildStatus(dev, res.Stdout)
}

func ifaceNames(p Plan) []string {
	out := make([]string, len(p.Interfaces))
	for i, ip := range p.Interfaces {
		out[i] = ip.Interface
	}
	return out
}

// noQdisc reports whether a failed delete only means nothing was installed.
func noQdisc(res cmdexec.Result, err error) bool {
	text := res.Stderr
	if text == "" {
		text = err.Error()
	}
	return strings.Contains(text, "No such file or directory") ||
		strings.Contains(text, "Cannot delete qdisc with handle of zero") ||
		strings.Contains(text, "Invalid handle")
}
