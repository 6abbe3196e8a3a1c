// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package bridge manages the single Linux bridge device the controller owns.
//
// All kernel changes go through the ip and brctl tools. The in-memory
// State is a cache of kernel truth; it is reconciled by probing whenever a
// status read finds it inactive.
package bridge

import (
	"context"
	"strings"
	"sync"

	"grimm.is/tcbridge/internal/cmdexec"
	"grimm.is/tcbridge/internal/errors"
	"grimm.is/tcbridge/internal/logging"
	"grimm.is/tcbridge/internal/metrics"
	"grimm.is/tcbridge/internal/validation"
)

// Snapshot status values.
const (
	StatusUp    = "up"
	StatusDown  = "down"
	StatusError = "error"
)

// LinkProber reports the operational state of a link.
type LinkProber interface {
	LinkUp(name string) (bool, error)
}

// State is the cached view of the managed bridge.
type State struct {
	Name    string
	Members []string
	Address string
	Active  bool
	LinkUp  bool
}

// Snapshot is the status document served to clients.
type Snapshot struct {
	Name       string   `json:"name"`
	Active     bool     `json:"active"`
	Interfaces []string `json:"interfaces"`
	IP         *string  `json:"ip"`
	Status     string   `json:"status"`
	LinkUp     bool     `json:"link_up"`
	Error      string   `json:"error,omitempty"`
}

// Options configures a Manager.
type Options struct {
	Name    string
	Address string
	Runner  cmdexec.Runner
	Links   LinkProber
	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// Manager owns the bridge. All methods are safe for concurrent use; kernel
// mutations and probes are serialized by one lock.
type Manager struct {
	mu      sync.Mutex
	name    string
	address string
	run     cmdexec.Runner
	links   LinkProber
	logger  *logging.Logger
	metrics *metrics.Metrics
	state   State
}

// NewManager creates a Manager. It does not touch the kernel; call Detect
// to adopt a bridge left by a previous run.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("bridge")
	}
	return &Manager{
		name:    opts.Name,
		address: opts.Address,
		run:     opts.Runner,
		links:   opts.Links,
		logger:  logger,
		metrics: opts.Metrics,
		state:   State{Name: opts.Name},
	}
}

// Name returns the configured bridge device name.
func (m *Manager) Name() string {
	return m.name
}

// Active reports whether the cached state says the bridge exists.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Active
}

// State returns a copy of the cached state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	s.Members = append([]string(nil), m.state.Members...)
	return s
}

// Create builds the bridge from ifaces, replacing any existing device with
// the same name. Steps run in order and stop at the first failure; earlier
// steps are not undone.
func (m *Manager) Create(ctx context.Context, ifaces []string) error {
	if err := validation.ValidateInterfaceList(ifaces); err != nil {
		return err
	}
	for _, name := range ifaces {
		if name == m.name {
			return errors.Errorf(errors.KindInvalidSpec, "cannot enslave the bridge %s to itself", name)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.logger.With("bridge", m.name, "interfaces", strings.Join(ifaces, ","))
	log.Info("creating bridge")

	if err := m.create(ctx, ifaces); err != nil {
		// Whatever is left in the kernel is rediscovered by the next status read.
		m.setState(State{Name: m.name})
		log.WithError(err).Error("bridge creation failed")
		return err
	}

	m.setState(State{
		Name:    m.name,
		Members: append([]string(nil), ifaces...),
		Address: m.address,
		Active:  true,
		LinkUp:  true,
	})
	log.Info("bridge created", "address", m.address)
	return nil
}

func (m *Manager) create(ctx context.Context, ifaces []string) error {
	for _, name := range ifaces {
		if err := m.step(ctx, "link_down", "ip", "link", "set", name, "down"); err != nil {
			return err
		}
	}

	res, err := m.run.Run(ctx, "ip", "link", "delete", m.name, "type", "bridge")
	if err != nil && !isAbsent(res, err) {
		return stepError(err, "delete_existing")
	}

	if err := m.step(ctx, "add_bridge", "ip", "link", "add", "name", m.name, "type", "bridge"); err != nil {
		return err
	}
	for _, name := range ifaces {
		if err := m.step(ctx, "enslave", "ip", "link", "set", name, "master", m.name); err != nil {
			return err
		}
	}
	for _, name := range ifaces {
		if err := m.step(ctx, "link_up", "ip", "link", "set", name, "up"); err != nil {
			return err
		}
	}
	if err := m.step(ctx, "assign_address", "ip", "addr", "add", m.address, "dev", m.name); err != nil {
		return err
	}
	return m.step(ctx, "bridge_up", "ip", "link", "set", m.name, "up")
}

func (m *Manager) step(ctx context.Context, name string, argv ...string) error {
	if _, err := m.run.Run(ctx, argv...); err != nil {
		return stepError(err, name)
	}
	return nil
}

func stepError(err error, step string) error {
	kind := errors.GetKind(err)
	if kind == errors.KindUnknown {
		kind = errors.KindCommandFailed
	}
	return errors.Attr(errors.Wrapf(err, kind, "%s", strings.ReplaceAll(step, "_", " ")), "step", step)
}

// Destroy takes the bridge down and deletes it. A missing bridge is not an
// error, other failures are logged, and the cached state is always reset.
func (m *Manager) Destroy(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, argv := range [][]string{
		{"ip", "link", "set", m.name, "down"},
		{"ip", "link", "delete", m.name, "type", "bridge"},
	} {
		res, err := m.run.Run(ctx, argv...)
		if err != nil && !isAbsent(res, err) {
			m.logger.WithError(err).Warn("bridge teardown step failed", "argv", cmdexec.Join(argv))
		}
	}

	m.setState(State{Name: m.name})
	m.logger.Info("bridge destroyed", "bridge", m.name)
}

// Detect probes the kernel for the configured bridge and adopts its member
// list. It returns false with a nil error when no such device exists.
func (m *Manager) Detect(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detect(ctx)
}

func (m *Manager) detect(ctx context.Context) (bool, error) {
	res, err := m.run.Run(ctx, "ip", "link", "show", m.name)
	if err != nil {
		if isAbsent(res, err) {
			return false, nil
		}
		return false, errors.Wrapf(err, errors.KindCommandFailed, "probe bridge %s", m.name)
	}

	members, err := m.members(ctx)
	if err != nil {
		return false, err
	}

	m.setState(State{
		Name:    m.name,
		Members: members,
		Address: m.state.Address,
		Active:  true,
		LinkUp:  m.state.LinkUp,
	})
	m.logger.Info("detected existing bridge", "bridge", m.name, "interfaces", strings.Join(members, ","))
	return true, nil
}

// members lists enslaved interfaces with brctl, falling back to ip when
// brctl is unavailable or fails.
func (m *Manager) members(ctx context.Context) ([]string, error) {
	res, err := m.run.Run(ctx, "brctl", "show", m.name)
	if err == nil {
		return ParseBrctlShow(res.Stdout, m.name)
	}
	if !cmdexec.IsMissingTool(err) {
		m.logger.WithError(err).Debug("brctl failed, falling back to ip")
	}

	res, err = m.run.Run(ctx, "ip", "-o", "link", "show", "master", m.name)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindCommandFailed, "list members of %s", m.name)
	}
	return ParseLinkMasterList(res.Stdout)
}

// Status returns the current snapshot, running detection first when the
// cached state is inactive. Probe failures yield status "error".
func (m *Manager) Status(ctx context.Context) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Active {
		if _, err := m.detect(ctx); err != nil {
			return m.errorSnapshot(err)
		}
	}
	if !m.state.Active {
		return m.downSnapshot()
	}

	res, err := m.run.Run(ctx, "ip", "addr", "show", m.name)
	if err != nil {
		if isAbsent(res, err) {
			m.vanished()
			return m.downSnapshot()
		}
		return m.errorSnapshot(err)
	}

	up := false
	if m.links != nil {
		up, err = m.links.LinkUp(m.name)
		if err != nil {
			if errors.IsKind(err, errors.KindNotFound) {
				m.vanished()
				return m.downSnapshot()
			}
			return m.errorSnapshot(err)
		}
	}

	m.state.LinkUp = up
	snap := Snapshot{
		Name:       m.name,
		Active:     true,
		Interfaces: append([]string{}, m.state.Members...),
		Status:     StatusDown,
		LinkUp:     up,
	}
	if ip := ParseFirstInet(res.Stdout); ip != "" {
		m.state.Address = ip
		snap.IP = &ip
	}
	if up {
		snap.Status = StatusUp
	}
	return snap
}

func (m *Manager) vanished() {
	m.logger.Warn("bridge disappeared from the kernel", "bridge", m.name)
	m.setState(State{Name: m.name})
}

func (m *Manager) downSnapshot() Snapshot {
	return Snapshot{Name: m.name, Interfaces: []string{}, Status: StatusDown}
}

func (m *Manager) errorSnapshot(err error) Snapshot {
	m.logger.WithError(err).Warn("bridge status probe failed")
	return Snapshot{Name: m.name, Interfaces: []string{}, Status: StatusError, Error: err.Error()}
}

// setState must be called with mu held.
func (m *Manager) setState(s State) {
	m.state = s
	m.metrics.SetBridge(s.Active, len(s.Members))
}

// isAbsent reports whether a failed ip command failed only because the
// device does not exist.
func isAbsent(res cmdexec.Result, err error) bool {
	if err == nil || cmdexec.IsMissingTool(err) {
		return false
	}
	text := res.Stderr
	if text == "" {
		text = err.Error()
	}
	return strings.Contains(text, "Cannot find device") ||
		strings.Contains(text, "does not exist")
}
