// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package qos

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"grimm.is/tcbridge/internal/errors"
	"grimm.is/tcbridge/internal/validation"
)

// RawRule is a rule request as submitted by a client. Numeric fields may be
// JSON numbers or strings; null, missing and "" mean absent.
type RawRule struct {
	Interfaces []string        `json:"interfaces"`
	Bandwidth  json.RawMessage `json:"bandwidth,omitempty"`
	Delay      json.RawMessage `json:"delay,omitempty"`
	Jitter     json.RawMessage `json:"jitter,omitempty"`
	PacketLoss json.RawMessage `json:"packet_loss,omitempty"`
}

// RuleSpec is a validated shaping request. A zero value in any numeric
// field means the parameter is not requested.
type RuleSpec struct {
	Interfaces    []string `json:"interfaces"`
	BandwidthMbit int      `json:"bandwidth_mbit,omitempty"`
	DelayMs       int      `json:"delay_ms,omitempty"`
	JitterMs      int      `json:"jitter_ms,omitempty"`
	PacketLossPct float64  `json:"packet_loss_pct,omitempty"`
}

// HasBandwidth reports whether rate limiting is requested.
func (s RuleSpec) HasBandwidth() bool { return s.BandwidthMbit > 0 }

// HasDelay reports whether a delay is requested.
func (s RuleSpec) HasDelay() bool { return s.DelayMs > 0 }

// HasJitter reports whether jitter is requested.
func (s RuleSpec) HasJitter() bool { return s.JitterMs > 0 }

// HasLoss reports whether packet loss is requested.
func (s RuleSpec) HasLoss() bool { return s.PacketLossPct > 0 }

// HasEmulation reports whether a netem discipline is needed. Jitter on its
// own still installs netem, even though netem only renders it after a delay.
func (s RuleSpec) HasEmulation() bool { return s.HasDelay() || s.HasJitter() || s.HasLoss() }

// ParseRuleSpec validates raw and converts it to a RuleSpec. Every field is
// checked before anything is returned, so a bad value never leads to a
// partially applied rule.
func ParseRuleSpec(raw RawRule) (RuleSpec, error) {
	ifaces, err := normalizeInterfaces(raw.Interfaces)
	if err != nil {
		return RuleSpec{}, err
	}

	spec := RuleSpec{Interfaces: ifaces}
	if spec.BandwidthMbit, err = parseCount("bandwidth", raw.Bandwidth); err != nil {
		return RuleSpec{}, err
	}
	if spec.DelayMs, err = parseCount("delay", raw.Delay); err != nil {
		return RuleSpec{}, err
	}
	if spec.JitterMs, err = parseCount("jitter", raw.Jitter); err != nil {
		return RuleSpec{}, err
	}
	if spec.PacketLossPct, err = parsePercent("packet_loss", raw.PacketLoss); err != nil {
		return RuleSpec{}, err
	}
	return spec, nil
}

// Validate checks an already-typed spec.
func (s RuleSpec) Validate() error {
	if _, err := normalizeInterfaces(s.Interfaces); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		v    int
	}{{"bandwidth", s.BandwidthMbit}, {"delay", s.DelayMs}, {"jitter", s.JitterMs}} {
		if f.v < 0 {
			return errors.Errorf(errors.KindInvalidSpec, "%s must not be negative: %d", f.name, f.v)
		}
	}
	return checkPercent("packet_loss", s.PacketLossPct)
}

// normalizeInterfaces validates names and drops repeats, keeping first order.
func normalizeInterfaces(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, errors.New(errors.KindInvalidSpec, "no interfaces selected for TC rules")
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, name := range in {
		name = strings.TrimSpace(name)
		if err := validation.ValidateInterfaceName(name); err != nil {
			return nil, err
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

// scalar decodes a raw JSON value into a trimmed string; "" means absent.
func scalar(field string, raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", errors.Wrapf(err, errors.KindInvalidSpec, "invalid %s value", field)
	}
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(val), nil
	case float64:
		return string(raw), nil
	default:
		return "", errors.Errorf(errors.KindInvalidSpec, "invalid %s value: %s", field, raw)
	}
}

func parseCount(field string, raw json.RawMessage) (int, error) {
	s, err := scalar(field, raw)
	if err != nil || s == "" {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// JSON numbers such as 1e2 or 50.0 are accepted when integral.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
			return 0, errors.Errorf(errors.KindInvalidSpec, "%s must be a whole number: %s", field, s)
		}
		n = int(f)
	}
	if n > math.MaxInt32 {
		return 0, errors.Errorf(errors.KindInvalidSpec, "%s is out of range: %s", field, s)
	}
	if n < 0 {
		return 0, errors.Errorf(errors.KindInvalidSpec, "%s must not be negative: %d", field, n)
	}
	return n, nil
}

func parsePercent(field string, raw json.RawMessage) (float64, error) {
	s, err := scalar(field, raw)
	if err != nil || s == "" {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Errorf(errors.KindInvalidSpec, "%s must be a number: %s", field, s)
	}
	if err := checkPercent(field, f); err != nil {
		return 0, err
	}
	return f, nil
}

func checkPercent(field string, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > 100 {
		return errors.Errorf(errors.KindInvalidSpec, "%s must be between 0 and 100: %v", field, f)
	}
	return nil
}
