// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package qos

import (
	"strconv"

	"github.com/vishvananda/netlink"
)

// Handle layout of the installed topologies:
//
//	netem:      root 1: netem
//	htb:        root 1: htb default 1 -> class 1:1
//	htb+netem:  root 1: htb default 1 -> class 1:1 -> 10: netem
const (
	rootMajor   = 1
	classMinor  = 1
	netemMajor  = 0x10
	defaultCls  = classMinor
	rootDevSpec = "root"
)

var (
	// RootHandle is the handle of the root qdisc we install.
	RootHandle = netlink.MakeHandle(rootMajor, 0)
	// ClassHandle is the single rate-limiting class.
	ClassHandle = netlink.MakeHandle(rootMajor, classMinor)
	// NetemHandle is the emulation qdisc under the class.
	NetemHandle = netlink.MakeHandle(netemMajor, 0)
)

// FormatHandle renders a qdisc or class handle the way tc expects it:
// "1:" for a qdisc (minor zero) and "1:1" for a class.
func FormatHandle(h uint32) string {
	major, minor := netlink.MajorMinor(h)
	if minor == 0 {
		return strconv.FormatUint(uint64(major), 16) + ":"
	}
	return strconv.FormatUint(uint64(major), 16) + ":" + strconv.FormatUint(uint64(minor), 16)
}

// FormatRate renders a megabit rate for tc.
func FormatRate(mbit int) string {
	return strconv.Itoa(mbit) + "mbit"
}

// FormatMs renders a millisecond duration for tc.
func FormatMs(ms int) string {
	return strconv.Itoa(ms) + "ms"
}

// FormatPercent renders a percentage for tc without trailing zeros.
func FormatPercent(pct float64) string {
	return strconv.FormatFloat(pct, 'f', -1, 64) + "%"
}
