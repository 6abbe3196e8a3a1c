// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package qos

import (
	"strconv"
)

// Topology names the qdisc layout a spec compiles to.
type Topology string

const (
	// TopologyClear removes shaping and installs nothing.
	TopologyClear Topology = "clear"
	// TopologyNetem is a single emulation qdisc at the root.
	TopologyNetem Topology = "netem"
	// TopologyHTB is a rate-limited HTB class with no emulation.
	TopologyHTB Topology = "htb"
	// TopologyHTBNetem is an HTB class with a netem child.
	TopologyHTBNetem Topology = "htb+netem"
)

// InterfacePlan is the command sequence for one interface. Clear is run
// best-effort; Install must succeed command by command.
type InterfacePlan struct {
	Interface string     `json:"interface"`
	Clear     []string   `json:"clear"`
	Install   [][]string `json:"install"`
}

// Plan is the compiled form of a RuleSpec.
type Plan struct {
	Topology   Topology        `json:"topology"`
	Interfaces []InterfacePlan `json:"interfaces"`
}

// Classify picks the topology for spec.
func Classify(spec RuleSpec) Topology {
	switch {
	case spec.HasBandwidth() && spec.HasEmulation():
		return TopologyHTBNetem
	case spec.HasBandwidth():
		return TopologyHTB
	case spec.HasEmulation():
		return TopologyNetem
	default:
		return TopologyClear
	}
}

// Compile validates spec and turns it into per-interface tc commands. It
// performs no I/O.
func Compile(spec RuleSpec) (Plan, error) {
	if err := spec.Validate(); err != nil {
		return Plan{}, err
	}
	ifaces, _ := normalizeInterfaces(spec.Interfaces)

	plan := Plan{Topology: Classify(spec)}
	for _, dev := range ifaces {
		plan.Interfaces = append(plan.Interfaces, InterfacePlan{
			Interface: dev,
			Clear:     []string{"tc", "qdisc", "del", "dev", dev, rootDevSpec},
			Install:   installCommands(plan.Topology, dev, spec),
		})
	}
	return plan, nil
}

func installCommands(topo Topology, dev string, spec RuleSpec) [][]string {
	switch topo {
	case TopologyNetem:
		cmd := []string{"tc", "qdisc", "add", "dev", dev, rootDevSpec, "handle", FormatHandle(RootHandle), "netem"}
		return [][]string{append(cmd, netemArgs(spec)...)}

	case TopologyHTB, TopologyHTBNetem:
		rate := FormatRate(spec.BandwidthMbit)
		cmds := [][]string{
			{"tc", "qdisc", "add", "dev", dev, rootDevSpec, "handle", FormatHandle(RootHandle),
				"htb", "default", strconv.Itoa(defaultCls)},
			{"tc", "class", "add", "dev", dev, "parent", FormatHandle(RootHandle),
				"classid", FormatHandle(ClassHandle), "htb", "rate", rate, "ceil", rate},
		}
		if topo == TopologyHTBNetem {
			cmd := []string{"tc", "qdisc", "add", "dev", dev, "parent", FormatHandle(ClassHandle),
				"handle", FormatHandle(NetemHandle), "netem"}
			cmds = append(cmds, append(cmd, netemArgs(spec)...))
		}
		return cmds
	}
	return nil
}

// netemArgs combines every requested emulation parameter into one argument
// list. The jitter value is only emitted after a delay; jitter alone yields a
// bare netem qdisc.
func netemArgs(spec RuleSpec) []string {
	var args []string
	if spec.HasDelay() {
		args = append(args, "delay", FormatMs(spec.DelayMs))
		if spec.HasJitter() {
			args = append(args, FormatMs(spec.JitterMs))
		}
	}
	if spec.HasLoss() {
		args = append(args, "loss", FormatPercent(spec.PacketLossPct))
	}
	return args
}
