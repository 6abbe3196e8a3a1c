// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package qos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/tcbridge/internal/errors"
)

func count(cmds [][]string, pred func([]string) bool) int {
	n := 0
	for _, c := range cmds {
		if pred(c) {
			n++
		}
	}
	return n
}

func isClass(c []string) bool { return len(c) > 2 && c[1] == "class" }

func isNetem(c []string) bool {
	for _, a := range c {
		if a == "netem" {
			return true
		}
	}
	return false
}

func TestCompile_NoParametersIsClear(t *testing.T) {
	for _, spec := range []RuleSpec{
		{Interfaces: []string{"eth0", "eth1"}},
		{Interfaces: []string{"eth0"}},
	} {
		plan, err := Compile(spec)
		require.NoError(t, err)
		assert.Equal(t, TopologyClear, plan.Topology)

		clearPlan, err := Compile(RuleSpec{Interfaces: spec.Interfaces})
		require.NoError(t, err)
		assert.Equal(t, clearPlan, plan)

		for _, ip := range plan.Interfaces {
			assert.Equal(t, []string{"tc", "qdisc", "del", "dev", ip.Interface, "root"}, ip.Clear)
			assert.Empty(t, ip.Install)
		}
	}
}

func TestCompile_BandwidthOnly(t *testing.T) {
	for _, b := range []int{1, 10, 100, 10000} {
		plan, err := Compile(RuleSpec{Interfaces: []string{"eth0"}, BandwidthMbit: b})
		require.NoError(t, err)
		assert.Equal(t, TopologyHTB, plan.Topology)

		cmds := plan.Interfaces[0].Install
		assert.Equal(t, 1, count(cmds, isClass))
		assert.Equal(t, 0, count(cmds, isNetem))
		assert.Equal(t, []string{"tc", "qdisc", "add", "dev", "eth0", "root", "handle", "1:", "htb", "default", "1"}, cmds[0])
		assert.Equal(t, []string{"tc", "class", "add", "dev", "eth0", "parent", "1:", "classid", "1:1",
			"htb", "rate", FormatRate(b), "ceil", FormatRate(b)}, cmds[1])
	}
}

func TestCompile_DelayWithoutBandwidthAttachesAtRoot(t *testing.T) {
	plan, err := Compile(RuleSpec{Interfaces: []string{"eth0"}, DelayMs: 50})
	require.NoError(t, err)
	assert.Equal(t, TopologyNetem, plan.Topology)
	assert.Equal(t, [][]string{
		{"tc", "qdisc", "add", "dev", "eth0", "root", "handle", "1:", "netem", "delay", "50ms"},
	}, plan.Interfaces[0].Install)
	assert.Equal(t, 0, count(plan.Interfaces[0].Install, isClass))
}

func TestCompile_NetemParametersCombine(t *testing.T) {
	tests := []struct {
		name string
		spec RuleSpec
		args []string
	}{
		{"delay and jitter", RuleSpec{DelayMs: 50, JitterMs: 10}, []string{"delay", "50ms", "10ms"}},
		{"loss only", RuleSpec{PacketLossPct: 1}, []string{"loss", "1%"}},
		{"fractional loss", RuleSpec{PacketLossPct: 0.5}, []string{"loss", "0.5%"}},
		{"everything", RuleSpec{DelayMs: 100, JitterMs: 20, PacketLossPct: 2.5}, []string{"delay", "100ms", "20ms", "loss", "2.5%"}},
		{"jitter value dropped without delay", RuleSpec{JitterMs: 20, PacketLossPct: 3}, []string{"loss", "3%"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.spec.Interfaces = []string{"eth0"}
			plan, err := Compile(tt.spec)
			require.NoError(t, err)
			require.Len(t, plan.Interfaces[0].Install, 1)

			cmd := plan.Interfaces[0].Install[0]
			assert.Equal(t, tt.args, cmd[9:])
		})
	}
}

func TestCompile_JitterOnlyInstallsNetem(t *testing.T) {
	plan, err := Compile(RuleSpec{Interfaces: []string{"eth0"}, JitterMs: 10})
	require.NoError(t, err)
	assert.Equal(t, TopologyNetem, plan.Topology)
	assert.Equal(t, [][]string{
		{"tc", "qdisc", "add", "dev", "eth0", "root", "handle", "1:", "netem"},
	}, plan.Interfaces[0].Install)
}

func TestCompile_BandwidthAndJitterAddsNetemChild(t *testing.T) {
	plan, err := Compile(RuleSpec{Interfaces: []string{"eth0"}, BandwidthMbit: 10, JitterMs: 10})
	require.NoError(t, err)
	assert.Equal(t, TopologyHTBNetem, plan.Topology)

	cmds := plan.Interfaces[0].Install
	require.Len(t, cmds, 3)
	assert.Equal(t, 1, count(cmds, isClass))
	assert.Equal(t, []string{"tc", "qdisc", "add", "dev", "eth0", "parent", "1:1", "handle", "10:", "netem"}, cmds[2])
}

func TestCompile_BandwidthAndDelay(t *testing.T) {
	plan, err := Compile(RuleSpec{Interfaces: []string{"eth0"}, BandwidthMbit: 20, DelayMs: 30, PacketLossPct: 1})
	require.NoError(t, err)
	assert.Equal(t, TopologyHTBNetem, plan.Topology)

	assert.Equal(t, [][]string{
		{"tc", "qdisc", "add", "dev", "eth0", "root", "handle", "1:", "htb", "default", "1"},
		{"tc", "class", "add", "dev", "eth0", "parent", "1:", "classid", "1:1", "htb", "rate", "20mbit", "ceil", "20mbit"},
		{"tc", "qdisc", "add", "dev", "eth0", "parent", "1:1", "handle", "10:", "netem", "delay", "30ms", "loss", "1%"},
	}, plan.Interfaces[0].Install)
}

func TestCompile_PreservesInterfaceOrder(t *testing.T) {
	plan, err := Compile(RuleSpec{Interfaces: []string{"eth2", "eth0", "eth2", "eth1"}, DelayMs: 5})
	require.NoError(t, err)

	var got []string
	for _, ip := range plan.Interfaces {
		got = append(got, ip.Interface)
	}
	assert.Equal(t, []string{"eth2", "eth0", "eth1"}, got)
}

func TestCompile_Invalid(t *testing.T) {
	for _, spec := range []RuleSpec{
		{},
		{Interfaces: []string{"eth0"}, PacketLossPct: 150},
		{Interfaces: []string{"eth0"}, BandwidthMbit: -1},
		{Interfaces: []string{"--help"}},
	} {
		_, err := Compile(spec)
		require.Error(t, err)
		assert.Equal(t, errors.KindInvalidSpec, errors.GetKind(err))
	}
}

func TestFormatHandle(t *testing.T) {
	assert.Equal(t, "1:", FormatHandle(RootHandle))
	assert.Equal(t, "1:1", FormatHandle(ClassHandle))
	assert.Equal(t, "10:", FormatHandle(NetemHandle))
}
