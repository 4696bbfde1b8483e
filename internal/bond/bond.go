// Package bond models Linux bonding configurations and enumerates the
// candidate set a host sweep will test.
package bond

import (
	"fmt"
	"strings"
)

// Mode is a Linux bonding mode.
type Mode string

const (
	ModeBalanceRR    Mode = "balance-rr"
	ModeActiveBackup Mode = "active-backup"
	ModeBalanceXOR   Mode = "balance-xor"
	ModeBroadcast    Mode = "broadcast"
	Mode8023AD       Mode = "802.3ad"
	ModeBalanceTLB   Mode = "balance-tlb"
	ModeBalanceALB   Mode = "balance-alb"
)

// AllModes lists the seven bonding modes in kernel order.
var AllModes = []Mode{
	ModeBalanceRR,
	ModeActiveBackup,
	ModeBalanceXOR,
	ModeBroadcast,
	Mode8023AD,
	ModeBalanceTLB,
	ModeBalanceALB,
}

// KernelValue returns the numeric mode written to the bonding driver's
// sysfs mode file.
func (m Mode) KernelValue() string {
	switch m {
	case ModeBalanceRR:
		return "0"
	case ModeActiveBackup:
		return "1"
	case ModeBalanceXOR:
		return "2"
	case ModeBroadcast:
		return "3"
	case Mode8023AD:
		return "4"
	case ModeBalanceTLB:
		return "5"
	case ModeBalanceALB:
		return "6"
	}
	return ""
}

// IsLACP reports whether the mode negotiates with the switch via LACP.
func (m Mode) IsLACP() bool {
	return m == Mode8023AD
}

// ParseMode maps user-facing names (including the "lacp" alias) to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "802.3ad", "lacp", "8023ad":
		return Mode8023AD, nil
	case "active-backup":
		return ModeActiveBackup, nil
	case "balance-rr":
		return ModeBalanceRR, nil
	case "balance-xor":
		return ModeBalanceXOR, nil
	case "broadcast":
		return ModeBroadcast, nil
	case "balance-tlb":
		return ModeBalanceTLB, nil
	case "balance-alb":
		return ModeBalanceALB, nil
	}
	return "", fmt.Errorf("unknown bonding mode %q", s)
}

// LACPRate is the LACPDU transmission rate requested from the partner.
type LACPRate string

const (
	RateSlow LACPRate = "slow" // one LACPDU every 30s
	RateFast LACPRate = "fast" // one LACPDU every 1s
)

// MIIInterval is the MII link-monitoring interval in milliseconds.
type MIIInterval int

const (
	MIIDisabled MIIInterval = 0
	MIIFrequent MIIInterval = 50
	MIINormal   MIIInterval = 100
)

// MIIIntervals lists the monitor variants swept in full-permutation mode.
var MIIIntervals = []MIIInterval{MIIDisabled, MIIFrequent, MIINormal}

// Config is one bonding configuration under test. Immutable once built.
type Config struct {
	Name           string      `json:"bond_name"`
	Mode           Mode        `json:"mode"`
	Interfaces     []string    `json:"interfaces"`
	MIIMon         MIIInterval `json:"miimon"`
	LACPRate       LACPRate    `json:"lacp_rate"`
	Primary        string      `json:"primary,omitempty"`
	XmitHashPolicy string      `json:"xmit_hash_policy,omitempty"`
}

// Key uniquely identifies the configuration by mode, subordinate set,
// monitor interval, and rate. The bond name is a per-run label and is
// deliberately excluded.
func (c Config) Key() string {
	return fmt.Sprintf("%s|%s|%d|%s", c.Mode, strings.Join(c.Interfaces, ","), c.MIIMon, c.LACPRate)
}

// ClassKey identifies the configuration class used for cross-host
// comparison: interface names differ per host, so the class is
// (mode, subordinate count, monitor interval, rate).
func (c Config) ClassKey() string {
	return fmt.Sprintf("%s|%d|%d|%s", c.Mode, len(c.Interfaces), c.MIIMon, c.LACPRate)
}

func (c Config) String() string {
	return fmt.Sprintf("%s mode=%s members=%s miimon=%d rate=%s",
		c.Name, c.Mode, strings.Join(c.Interfaces, "+"), c.MIIMon, c.LACPRate)
}
