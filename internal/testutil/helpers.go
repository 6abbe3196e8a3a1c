// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package testutil holds guards for tests that touch the real kernel.
package testutil

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/vishvananda/netns"
)

// IntegrationEnv must be set for tests that mutate host networking.
const IntegrationEnv = "TCBRIDGE_INTEGRATION"

// RequireRoot skips the test unless it runs as root with IntegrationEnv
// set. Such tests create and delete real links, so they only run in a VM
// or a throwaway network namespace.
func RequireRoot(t *testing.T) {
	t.Helper()
	if os.Getenv(IntegrationEnv) == "" {
		t.Skip("Skipping test: requires " + IntegrationEnv + " environment")
	}
	if os.Geteuid() != 0 {
		t.Skip("Skipping test: requires root")
	}
}

// RequireTools skips the test if any of the named programs is not on PATH.
func RequireTools(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		if _, err := exec.LookPath(n); err != nil {
			t.Skipf("Skipping test: %s not found on PATH", n)
		}
	}
}

// DummyLink creates a dummy interface and removes it when the test ends.
func DummyLink(t *testing.T, name string) {
	t.Helper()
	run := func(args ...string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return exec.CommandContext(ctx, "ip", args...).Run()
	}
	_ = run("link", "del", name)
	if err := run("link", "add", name, "type", "dummy"); err != nil {
		t.Fatalf("failed to create dummy link %s: %v", name, err)
	}
	t.Cleanup(func() { _ = run("link", "del", name) })
}

// IsolatedNetns moves the test goroutine into a fresh network namespace for
// the rest of the test. The goroutine stays locked to its OS thread so
// netlink calls and child processes see the new namespace. Tests using it
// must not start goroutines that touch the network.
func IsolatedNetns(t *testing.T) {
	t.Helper()
	runtime.LockOSThread()

	orig, err := netns.Get()
	if err != nil {
		runtime.UnlockOSThread()
		t.Fatalf("failed to get current netns: %v", err)
	}
	ns, err := netns.New()
	if err != nil {
		orig.Close()
		runtime.UnlockOSThread()
		t.Fatalf("failed to create netns: %v", err)
	}

	t.Cleanup(func() {
		defer orig.Close()
		defer ns.Close()
		if err := netns.Set(orig); err != nil {
			// Leave the thread locked; the runtime discards it when the
			// goroutine exits.
			t.Errorf("failed to restore netns: %v", err)
			return
		}
		runtime.UnlockOSThread()
	})

	// lo starts down in a new namespace.
	if err := exec.Command("ip", "link", "set", "lo", "up").Run(); err != nil {
		t.Fatalf("failed to bring up lo: %v", err)
	}
}
