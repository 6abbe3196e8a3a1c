// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package qos

import (
	"strings"

	"grimm.is/tcbridge/internal/errors"
)

// NoRulesDescription is reported when tc prints nothing for an interface.
const NoRulesDescription = "No TC rules"

// defaultKinds are qdiscs the kernel installs on its own.
var defaultKinds = map[string]bool{
	"noqueue":    true,
	"pfifo_fast": true,
	"fq_codel":   true,
	"mq":         true,
	"noop":       true,
	"fq":         true,
	"pfifo":      true,
}

// Qdisc is one line of `tc qdisc show`.
type Qdisc struct {
	Kind    string `json:"kind"`
	Handle  string `json:"handle"`
	Parent  string `json:"parent"`
	Options string `json:"options,omitempty"`
}

// Root reports whether the qdisc is attached at the interface root.
func (q Qdisc) Root() bool {
	return q.Parent == "root"
}

// TcStatus is the derived shaping state of one interface.
type TcStatus struct {
	Interface   string  `json:"interface"`
	HasRules    bool    `json:"has_rules"`
	Description string  `json:"description"`
	Qdiscs      []Qdisc `json:"qdiscs"`
}

// ParseQdiscShow parses `tc qdisc show dev X` output:
//
//	qdisc htb 1: root refcnt 2 r2q 10 default 0x1 direct_packets_stat 0
//	qdisc netem 10: parent 1:1 limit 1000 delay 50ms  10ms loss 1%
func ParseQdiscShow(out string) ([]Qdisc, error) {
	qdiscs := []Qdisc{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] != "qdisc" {
			// Statistics and continuation lines from -s or -d output.
			if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
				continue
			}
			return nil, errors.Errorf(errors.KindParseFailed, "unexpected tc output line: %q", line)
		}
		if len(fields) < 4 {
			return nil, errors.Errorf(errors.KindParseFailed, "short qdisc line: %q", line)
		}

		q := Qdisc{Kind: fields[1], Handle: fields[2]}
		rest := fields[3:]
		switch rest[0] {
		case "root", "ingress":
			q.Parent = rest[0]
			rest = rest[1:]
		case "parent":
			if len(rest) < 2 {
				return nil, errors.Errorf(errors.KindParseFailed, "qdisc line missing parent: %q", line)
			}
			q.Parent = rest[1]
			rest = rest[2:]
		default:
			return nil, errors.Errorf(errors.KindParseFailed, "qdisc line missing attachment point: %q", line)
		}
		// Reference counts are kernel bookkeeping, not discipline options.
		if len(rest) >= 2 && rest[0] == "refcnt" {
			rest = rest[2:]
		}
		q.Options = strings.Join(rest, " ")
		qdiscs = append(qdiscs, q)
	}
	return qdiscs, nil
}

// BuildStatus derives a TcStatus from raw `tc qdisc show` output.
func BuildStatus(dev, out string) (TcStatus, error) {
	qdiscs, err := ParseQdiscShow(out)
	if err != nil {
		return TcStatus{}, err
	}
	st := TcStatus{
		Interface:   dev,
		Description: strings.TrimSpace(out),
		Qdiscs:      qdiscs,
	}
	if st.Description == "" {
		st.Description = NoRulesDescription
	}
	for _, q := range qdiscs {
		if !defaultKinds[q.Kind] {
			st.HasRules = true
			break
		}
	}
	return st, nil
}
