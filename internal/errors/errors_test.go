// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	"errors"
	"os/exec"
	"testing"
)

func TestError(t *testing.T) {
	err := New(KindInvalidSpec, "packet loss out of range")
	if err.Error() != "packet loss out of range" {
		t.Errorf("expected 'packet loss out of range', got '%s'", err.Error())
	}

	wrapped := Wrap(err, KindInternal, "failed to compile rules")
	if wrapped.Error() != "failed to compile rules: packet loss out of range" {
		t.Errorf("unexpected message: '%s'", wrapped.Error())
	}

	if Wrap(nil, KindInternal, "nothing") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestGetKind(t *testing.T) {
	err := New(KindNotFound, "device br0 does not exist")
	if GetKind(err) != KindNotFound {
		t.Errorf("expected KindNotFound, got %v", GetKind(err))
	}

	wrapped := Wrap(err, KindCommandFailed, "ip link delete")
	if GetKind(wrapped) != KindCommandFailed {
		t.Errorf("expected KindCommandFailed, got %v", GetKind(wrapped))
	}
	if !IsKind(wrapped, KindCommandFailed) {
		t.Error("IsKind should match the outermost kind")
	}

	if GetKind(errors.New("std error")) != KindUnknown {
		t.Errorf("expected KindUnknown, got %v", GetKind(errors.New("std error")))
	}
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		KindCommandFailed: "command_failed",
		KindNotFound:      "not_found",
		KindInvalidSpec:   "invalid_spec",
		KindParseFailed:   "parse_failed",
		KindInternal:      "internal",
		Kind(99):          "unknown",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestAttributes(t *testing.T) {
	err := New(KindCommandFailed, "command exited 2")
	err = Attr(err, "argv", "tc qdisc add dev eth0 root")
	err = Attr(err, "exit_code", 2)

	attrs := GetAttributes(err)
	if attrs["argv"] != "tc qdisc add dev eth0 root" {
		t.Errorf("expected argv attribute, got %v", attrs["argv"])
	}
	if attrs["exit_code"] != 2 {
		t.Errorf("expected 2, got %v", attrs["exit_code"])
	}

	wrapped := Wrap(err, KindCommandFailed, "apply failed on eth0")
	wrapped = Attr(wrapped, "interface", "eth0")

	allAttrs := GetAttributes(wrapped)
	if allAttrs["exit_code"] != 2 || allAttrs["interface"] != "eth0" {
		t.Errorf("missing attributes: %v", allAttrs)
	}
}

func TestWrapPreservesSentinel(t *testing.T) {
	err := Wrap(exec.ErrNotFound, KindCommandFailed, "brctl")
	if !Is(err, exec.ErrNotFound) {
		t.Error("expected exec.ErrNotFound to remain reachable through Wrap")
	}
}
