// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package iface lists the host interfaces that can be offered for bridging.
package iface

import (
	"sort"
	"strings"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/tcbridge/internal/errors"
	"grimm.is/tcbridge/internal/logging"
)

// Address placeholders reported instead of an IPv4 address.
const (
	NoIP      = "No IP"
	UnknownIP = "Unknown"
)

// Link states.
const (
	StatusUp   = "up"
	StatusDown = "down"
)

// Info is a read-only snapshot of one host interface.
type Info struct {
	Name   string `json:"name"`
	IP     string `json:"ip"`
	Status string `json:"status"`
}

// Netlinker is the subset of netlink used here, split out for mocking.
type Netlinker interface {
	LinkList() ([]netlink.Link, error)
	LinkByName(name string) (netlink.Link, error)
	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
}

// RealNetlinker calls the kernel through vishvananda/netlink.
type RealNetlinker struct{}

func (RealNetlinker) LinkList() ([]netlink.Link, error) { return netlink.LinkList() }

func (RealNetlinker) LinkByName(name string) (netlink.Link, error) { return netlink.LinkByName(name) }

func (RealNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return netlink.AddrList(link, family)
}

// Enumerator lists interfaces, skipping excluded names and prefixes.
type Enumerator struct {
	nl       Netlinker
	excluded map[string]struct{}
	prefixes []string
	logger   *logging.Logger
}

// NewEnumerator creates an Enumerator. A nil Netlinker uses the kernel.
func NewEnumerator(nl Netlinker, excluded, prefixes []string, logger *logging.Logger) *Enumerator {
	if nl == nil {
		nl = RealNetlinker{}
	}
	if logger == nil {
		logger = logging.WithComponent("iface")
	}
	ex := make(map[string]struct{}, len(excluded))
	for _, name := range excluded {
		ex[name] = struct{}{}
	}
	return &Enumerator{
		nl:       nl,
		excluded: ex,
		prefixes: append([]string(nil), prefixes...),
		logger:   logger,
	}
}

// Excluded reports whether name is hidden from the listing.
func (e *Enumerator) Excluded(name string) bool {
	if _, ok := e.excluded[name]; ok {
		return true
	}
	for _, p := range e.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// List returns the bridgeable interfaces sorted by name. An interface whose
// addresses cannot be read is still listed with IP "Unknown".
func (e *Enumerator) List() ([]Info, error) {
	links, err := e.nl.LinkList()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindCommandFailed, "failed to list links")
	}

	out := make([]Info, 0, len(links))
	for _, link := range links {
		attrs := link.Attrs()
		if attrs == nil || e.Excluded(attrs.Name) {
			continue
		}
		out = append(out, Info{
			Name:   attrs.Name,
			IP:     e.firstIPv4(link),
			Status: OperStatus(attrs.OperState),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (e *Enumerator) firstIPv4(link netlink.Link) string {
	addrs, err := e.nl.AddrList(link, unix.AF_INET)
	if err != nil {
		e.logger.Debug("address lookup failed", "interface", link.Attrs().Name, "error", err)
		return UnknownIP
	}
	for _, a := range addrs {
		if a.IPNet != nil && a.IP.To4() != nil {
			return a.IP.String()
		}
	}
	return NoIP
}

// LinkUp reports whether the named link is operationally up.
func (e *Enumerator) LinkUp(name string) (bool, error) {
	link, err := e.nl.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return false, errors.Wrapf(err, errors.KindNotFound, "link %s not found", name)
		}
		return false, errors.Wrapf(err, errors.KindCommandFailed, "failed to look up link %s", name)
	}
	return OperStatus(link.Attrs().OperState) == StatusUp, nil
}

// OperStatus maps a kernel oper state to "up" or "down".
func OperStatus(state netlink.LinkOperState) string {
	if state == netlink.OperUp {
		return StatusUp
	}
	return StatusDown
}
