package storage

import (
	"fmt"
	"os"
	"strings"
)

// Capability selects which backends the coordinator writes to.
type Capability string

const (
	// CapabilityFile uses the file store as primary and mirrors to the kv store.
	CapabilityFile Capability = "file"
	// CapabilityKVOnly uses the kv store exclusively.
	CapabilityKVOnly Capability = "kv-only"
)

// ParseCapability maps a configuration value to a Capability.
// "auto" and "" yield an empty Capability, meaning "probe with ResolveCapability".
func ParseCapability(s string) (Capability, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return "", nil
	case "file", "fs":
		return CapabilityFile, nil
	case "kv", "kv-only", "badger":
		return CapabilityKVOnly, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want auto, file or kv)", s)
	}
}

// ResolveCapability probes once whether dir can hold the data file.
// The directory is created if missing.
func ResolveCapability(dir string) Capability {
	if dir == "" {
		return CapabilityKVOnly
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return CapabilityKVOnly
	}
	probe, err := os.CreateTemp(dir, ".stickies-probe-*")
	if err != nil {
		return CapabilityKVOnly
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return CapabilityFile
}
