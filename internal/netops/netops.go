// Package netops manipulates and inspects host network interfaces for
// bonding validation: discovery of eligible NICs, bond lifecycle
// (create/enslave/teardown), pre-test state snapshot and restore, and
// parsing of the bonding driver's runtime state.
//
// All operations go through the Transport interface so the same logic runs
// against the local machine (netlink), a remote host (command transport over
// SSH), or a mock in tests.
package netops

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by transports on platforms or hosts that cannot
// perform the requested operation.
var ErrUnsupported = errors.New("operation not supported on this transport")

// ErrLinkNotFound is returned when a named interface does not exist.
var ErrLinkNotFound = errors.New("link not found")

// OperState is an interface operational state as reported by the kernel.
type OperState string

const (
	OperUp      OperState = "up"
	OperDown    OperState = "down"
	OperUnknown OperState = "unknown"
)

// LinkAttrs are the attributes of one link that snapshot/restore and the
// lifecycle manager care about.
type LinkAttrs struct {
	Name      string
	MTU       int
	MAC       string
	OperState OperState
	Master    string // name of the bond this link is enslaved to, if any
	IsBond    bool
}

// InterfaceInfo describes a physical interface as discovered for testing.
type InterfaceInfo struct {
	Name         string `json:"name"`
	MAC          string `json:"mac_address"`
	Driver       string `json:"driver"`
	Speed        string `json:"speed"`
	Duplex       string `json:"duplex"`
	LinkDetected bool   `json:"link_detected"`
	BusInfo      string `json:"pci_slot"`
}

// BondParams are the driver parameters applied when a bond is created.
// Mode semantics follow the bonding driver; LACPRate and XmitHashPolicy are
// meaningful for 802.3ad only.
type BondParams struct {
	Mode           string // user-facing mode name, e.g. "802.3ad"
	KernelMode     string // numeric sysfs value, e.g. "4"
	MIIMonMillis   int
	LACPRate       string
	XmitHashPolicy string
}

// Transport performs link operations on one host.
type Transport interface {
	// LinkNames lists all interface names on the host.
	LinkNames() ([]string, error)

	// LinkAttrs returns the attributes of one link. Returns an error
	// wrapping ErrLinkNotFound if the link does not exist.
	LinkAttrs(name string) (*LinkAttrs, error)

	// CreateBond creates a bond interface with the given driver parameters,
	// left in the down state with no members.
	CreateBond(name string, params BondParams) error

	// DeleteLink removes an interface.
	DeleteLink(name string) error

	SetLinkUp(name string) error
	SetLinkDown(name string) error
	SetLinkMTU(name string, mtu int) error

	// Enslave adds member to the named bond. The member must be down.
	Enslave(bondName, member string) error

	// ReadFile reads a host file (sysfs, /proc/net/bonding) as text.
	ReadFile(path string) (string, error)

	// WriteFile writes a value to a host file (bonding sysfs parameters).
	WriteFile(path, value string) error

	// InterfaceDetails returns hardware details for discovery.
	InterfaceDetails(name string) (*InterfaceInfo, error)
}

// BondingDir returns the sysfs bonding directory for a bond interface.
func BondingDir(bondName string) string {
	return fmt.Sprintf("/sys/class/net/%s/bonding", bondName)
}

// BondParamPath returns the sysfs path of one bonding driver parameter.
func BondParamPath(bondName, param string) string {
	return fmt.Sprintf("/sys/class/net/%s/bonding/%s", bondName, param)
}

// ProcBondingPath returns the bonding driver's runtime state file.
func ProcBondingPath(bondName string) string {
	return fmt.Sprintf("/proc/net/bonding/%s", bondName)
}

// SysfsAttrPath returns the sysfs path of a plain link attribute.
func SysfsAttrPath(iface, attr string) string {
	return fmt.Sprintf("/sys/class/net/%s/%s", iface, attr)
}
