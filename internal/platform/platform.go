// Package platform decides which accelerator backend a host can reach.
package platform

import "strings"

// BackendKind enumerates the accelerator backends.
type BackendKind int

const (
	// Discrete backends enumerate indexed accelerators through a driver.
	Discrete BackendKind = iota
	// Unified is the single implicit integrated GPU of Apple silicon.
	Unified
)

func (k BackendKind) String() string {
	if k == Unified {
		return "unified"
	}
	return "discrete"
}

// Backend is the outcome of platform detection, resolved once per run.
type Backend struct {
	Kind BackendKind
	Arch string
	OS   string
}

// IsUnified reports whether the integrated unified-memory path applies.
func (b Backend) IsUnified() bool {
	return b.Kind == Unified
}

// Detect selects the unified backend for arm64 hosts running macOS and the
// discrete backend for everything else. A nil arch selects discrete.
func Detect(arch *string, os string) Backend {
	backend := Backend{Kind: Discrete, OS: os}
	if arch == nil {
		return backend
	}
	backend.Arch = *arch

	if isAppleSiliconArch(*arch) && strings.EqualFold(strings.TrimSpace(os), "macos") {
		backend.Kind = Unified
	}
	return backend
}

func isAppleSiliconArch(arch string) bool {
	switch strings.ToLower(strings.TrimSpace(arch)) {
	case "arm64", "aarch64":
		return true
	default:
		return false
	}
}
