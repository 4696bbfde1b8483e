// Package inventory loads the host inventory: which hosts to validate, how
// to reach them, and optionally which switch each one is cabled to.
package inventory

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Host describes one test host.
type Host struct {
	// Name is the inventory key, used in reports and logs.
	Name string `yaml:"-"`

	// Address is the SSH target. The literal value "local" selects in-process
	// execution on the engine's own machine.
	Address string `yaml:"address"`

	User    string `yaml:"user,omitempty"`
	Port    int    `yaml:"port,omitempty"`
	SSHKey  string `yaml:"ssh_key,omitempty"`

	// Interfaces restricts testing to the named interfaces. Empty means
	// discover.
	Interfaces []string `yaml:"interfaces,omitempty"`

	// SwitchAddress, when set, enables switch log collection for failed
	// probes on this host.
	SwitchAddress string `yaml:"switch_address,omitempty"`
	SwitchUser    string `yaml:"switch_user,omitempty"`
}

// IsLocal reports whether the host is the engine's own machine.
func (h Host) IsLocal() bool {
	return h.Address == "local" || h.Address == ""
}

// Inventory is the parsed hosts file.
type Inventory struct {
	Hosts []Host
}

type hostsFile struct {
	Hosts map[string]Host `yaml:"hosts"`
}

// Load reads and validates a hosts.yaml file. Hosts come back sorted by
// name so runs are deterministic.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	return Parse(data)
}

// Parse parses inventory YAML.
func Parse(data []byte) (*Inventory, error) {
	var f hostsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}
	if len(f.Hosts) == 0 {
		return nil, fmt.Errorf("inventory names no hosts")
	}

	inv := &Inventory{}
	for name, h := range f.Hosts {
		h.Name = name
		if err := validate(h); err != nil {
			return nil, err
		}
		inv.Hosts = append(inv.Hosts, h)
	}
	sort.Slice(inv.Hosts, func(i, j int) bool {
		return inv.Hosts[i].Name < inv.Hosts[j].Name
	})
	return inv, nil
}

func validate(h Host) error {
	if h.IsLocal() {
		return nil
	}
	if h.User == "" {
		return fmt.Errorf("host %s: remote hosts need a user", h.Name)
	}
	if h.SSHKey == "" {
		return fmt.Errorf("host %s: remote hosts need an ssh_key", h.Name)
	}
	return nil
}

// LocalOnly returns an inventory containing just the engine's own machine,
// used when no hosts file is given.
func LocalOnly() *Inventory {
	return &Inventory{Hosts: []Host{{Name: "local", Address: "local"}}}
}
