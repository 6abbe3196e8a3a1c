// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package validation

import (
	"net"
	"regexp"
	"strconv"
	"strings"

	"grimm.is/tcbridge/internal/errors"
)

// Interface name validation
var (
	// Valid interface name: alphanumeric, dash, underscore, dot (for VLANs), max 15 chars
	interfaceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,15}$`)
)

// ValidateInterfaceName validates a network interface name.
// Names are passed to ip/tc as discrete argv elements, so the remaining risk
// is a name that the tools would parse as an option.
func ValidateInterfaceName(name string) error {
	if name == "" {
		return errors.New(errors.KindInvalidSpec, "interface name cannot be empty")
	}

	if len(name) > 15 {
		return errors.Errorf(errors.KindInvalidSpec, "interface name too long (max 15 characters): %s", name)
	}

	if !interfaceNameRegex.MatchString(name) {
		return errors.Errorf(errors.KindInvalidSpec, "invalid interface name: %s (must be alphanumeric with -_.)", name)
	}

	if strings.HasPrefix(name, "-") {
		return errors.Errorf(errors.KindInvalidSpec, "interface name must not start with '-': %s", name)
	}

	if name == "." || name == ".." {
		return errors.Errorf(errors.KindInvalidSpec, "invalid interface name: %s", name)
	}

	return nil
}

// ValidateInterfaceList validates a non-empty list of distinct interface names.
func ValidateInterfaceList(names []string) error {
	if len(names) == 0 {
		return errors.New(errors.KindInvalidSpec, "no interfaces selected")
	}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if err := ValidateInterfaceName(n); err != nil {
			return err
		}
		if _, dup := seen[n]; dup {
			return errors.Errorf(errors.KindInvalidSpec, "interface listed more than once: %s", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

// ValidateCIDR validates an address in CIDR notation (e.g. 192.168.1.10/24).
func ValidateCIDR(s string) error {
	if s == "" {
		return errors.New(errors.KindInvalidSpec, "CIDR cannot be empty")
	}
	if !strings.Contains(s, "/") {
		return errors.Errorf(errors.KindInvalidSpec, "address must include a prefix length: %s", s)
	}
	if _, _, err := net.ParseCIDR(s); err != nil {
		return errors.Wrap(err, errors.KindInvalidSpec, "invalid CIDR")
	}
	return nil
}

// ValidateListenAddr validates a host:port listen address. The host may be empty.
func ValidateListenAddr(addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.Wrapf(err, errors.KindInvalidSpec, "invalid listen address %q", addr)
	}
	if host != "" && net.ParseIP(host) == nil && host != "localhost" {
		return errors.Errorf(errors.KindInvalidSpec, "invalid listen host: %s", host)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return errors.Errorf(errors.KindInvalidSpec, "invalid port: %s", portStr)
	}
	return ValidatePortNumber(port)
}

// ValidateAllowlist checks if a value is in an allowed list
func ValidateAllowlist(value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return errors.Errorf(errors.KindInvalidSpec, "value not in allowlist: %s (must be one of: %s)", value, strings.Join(allowed, ", "))
}

// ValidatePortNumber validates a port number
func ValidatePortNumber(port int) error {
	if port < 1 || port > 65535 {
		return errors.Errorf(errors.KindInvalidSpec, "invalid port number: %d (must be 1-65535)", port)
	}
	return nil
}
