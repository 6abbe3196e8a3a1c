// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package bridge

import (
	"strings"

	"grimm.is/tcbridge/internal/errors"
)

// ParseBrctlShow extracts the member interfaces of bridge name from
// `brctl show` output. Members appear after the STP column on the bridge's
// own line and then one per indented continuation line:
//
//	bridge name	bridge id		STP enabled	interfaces
//	br0		8000.0242ac110002	no		eth0
//								eth1
//
// Continuation ends at the first non-indented line. Blank lines are skipped.
func ParseBrctlShow(out, name string) ([]string, error) {
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		if isIndented(line) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != name {
			continue
		}

		members := []string{}
		if len(fields) > 3 {
			members = append(members, fields[3:]...)
		}
		for _, next := range lines[i+1:] {
			if strings.TrimSpace(next) == "" {
				continue
			}
			if !isIndented(next) {
				break
			}
			members = append(members, strings.Fields(next)[0])
		}
		return members, nil
	}
	return nil, errors.Errorf(errors.KindParseFailed, "bridge %s not present in brctl output", name)
}

// ParseLinkMasterList extracts interface names from `ip -o link show master <br>`:
//
//	3: eth0: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 master br0 state UP ...
//	7: veth1a2b@if6: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 master br0 ...
func ParseLinkMasterList(out string) ([]string, error) {
	members := []string{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 || !strings.HasSuffix(fields[0], ":") {
			return nil, errors.Errorf(errors.KindParseFailed, "unexpected ip link line: %q", line)
		}
		name := strings.TrimSuffix(fields[1], ":")
		if at := strings.IndexByte(name, '@'); at > 0 {
			name = name[:at]
		}
		if name == "" {
			return nil, errors.Errorf(errors.KindParseFailed, "unexpected ip link line: %q", line)
		}
		members = append(members, name)
	}
	return members, nil
}

// ParseFirstInet returns the first IPv4 address, in CIDR form, from
// `ip addr show` output, or "" if there is none.
func ParseFirstInet(out string) string {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "inet" {
			return fields[1]
		}
	}
	return ""
}

func isIndented(line string) bool {
	return strings.HasPrefix(line, "\t") || strings.HasPrefix(line, " ")
}
