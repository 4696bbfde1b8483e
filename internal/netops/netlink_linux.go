//go:build linux
// +build linux

package netops

import (
	"fmt"
	"os"
	"strings"

	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"
)

// Netlinker abstracts the netlink operations the local transport needs.
// This allows for mocking netlink calls during unit testing.
type Netlinker interface {
	LinkByName(name string) (netlink.Link, error)
	LinkByIndex(index int) (netlink.Link, error)
	LinkList() ([]netlink.Link, error)
	LinkAdd(link netlink.Link) error
	LinkDel(link netlink.Link) error
	LinkSetUp(link netlink.Link) error
	LinkSetDown(link netlink.Link) error
	LinkSetMTU(link netlink.Link, mtu int) error
	LinkSetMaster(slave, master netlink.Link) error
}

// RealNetlinker is a concrete implementation of Netlinker backed by the
// netlink package.
type RealNetlinker struct{}

func (r *RealNetlinker) LinkByName(name string) (netlink.Link, error) {
	return netlink.LinkByName(name)
}

func (r *RealNetlinker) LinkByIndex(index int) (netlink.Link, error) {
	return netlink.LinkByIndex(index)
}

func (r *RealNetlinker) LinkList() ([]netlink.Link, error) {
	return netlink.LinkList()
}

func (r *RealNetlinker) LinkAdd(link netlink.Link) error {
	return netlink.LinkAdd(link)
}

func (r *RealNetlinker) LinkDel(link netlink.Link) error {
	return netlink.LinkDel(link)
}

func (r *RealNetlinker) LinkSetUp(link netlink.Link) error {
	return netlink.LinkSetUp(link)
}

func (r *RealNetlinker) LinkSetDown(link netlink.Link) error {
	return netlink.LinkSetDown(link)
}

func (r *RealNetlinker) LinkSetMTU(link netlink.Link, mtu int) error {
	return netlink.LinkSetMTU(link, mtu)
}

func (r *RealNetlinker) LinkSetMaster(slave, master netlink.Link) error {
	return netlink.LinkSetMaster(slave, master)
}

// Ethtooler abstracts the ethtool queries used during discovery.
type Ethtooler interface {
	DriverName(iface string) (string, error)
	BusInfo(iface string) (string, error)
	LinkState(iface string) (uint32, error)
	LinkSettings(iface string) (speed string, duplex string, err error)
	Close()
}

// RealEthtool wraps an ethtool netlink handle.
type RealEthtool struct {
	handle *ethtool.Ethtool
}

// NewRealEthtool opens an ethtool handle.
func NewRealEthtool() (*RealEthtool, error) {
	h, err := ethtool.NewEthtool()
	if err != nil {
		return nil, fmt.Errorf("failed to open ethtool handle: %w", err)
	}
	return &RealEthtool{handle: h}, nil
}

func (e *RealEthtool) DriverName(iface string) (string, error) {
	return e.handle.DriverName(iface)
}

func (e *RealEthtool) BusInfo(iface string) (string, error) {
	return e.handle.BusInfo(iface)
}

func (e *RealEthtool) LinkState(iface string) (uint32, error) {
	return e.handle.LinkState(iface)
}

func (e *RealEthtool) LinkSettings(iface string) (string, string, error) {
	settings, err := e.handle.GetLinkSettings(iface)
	if err != nil {
		return "", "", err
	}

	duplex := "unknown"
	switch settings.Duplex {
	case ethtool.DUPLEX_FULL:
		duplex = "full"
	case ethtool.DUPLEX_HALF:
		duplex = "half"
	}
	return fmt.Sprintf("%d Mb/s", settings.Speed), duplex, nil
}

func (e *RealEthtool) Close() {
	e.handle.Close()
}

// NetlinkTransport performs link operations on the local machine via
// netlink, with sysfs for bonding driver parameters and runtime state.
type NetlinkTransport struct {
	nl  Netlinker
	eth Ethtooler
}

// NewNetlinkTransport returns a Transport for the local machine.
func NewNetlinkTransport() (*NetlinkTransport, error) {
	eth, err := NewRealEthtool()
	if err != nil {
		return nil, err
	}
	return &NetlinkTransport{nl: &RealNetlinker{}, eth: eth}, nil
}

// NewNetlinkTransportWithDeps wires explicit dependencies, for tests.
func NewNetlinkTransportWithDeps(nl Netlinker, eth Ethtooler) *NetlinkTransport {
	return &NetlinkTransport{nl: nl, eth: eth}
}

// Close releases the ethtool handle.
func (t *NetlinkTransport) Close() {
	if t.eth != nil {
		t.eth.Close()
	}
}

func (t *NetlinkTransport) LinkNames() ([]string, error) {
	links, err := t.nl.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	names := make([]string, 0, len(links))
	for _, l := range links {
		names = append(names, l.Attrs().Name)
	}
	return names, nil
}

func (t *NetlinkTransport) LinkAttrs(name string) (*LinkAttrs, error) {
	link, err := t.nl.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLinkNotFound, name, err)
	}
	attrs := link.Attrs()

	out := &LinkAttrs{
		Name:      attrs.Name,
		MTU:       attrs.MTU,
		OperState: operStateFromNetlink(attrs.OperState),
		IsBond:    link.Type() == "bond",
	}
	if attrs.HardwareAddr != nil {
		out.MAC = attrs.HardwareAddr.String()
	}
	if attrs.MasterIndex != 0 {
		if master, err := t.nl.LinkByIndex(attrs.MasterIndex); err == nil {
			out.Master = master.Attrs().Name
		}
	}
	return out, nil
}

func operStateFromNetlink(s netlink.LinkOperState) OperState {
	switch s {
	case netlink.OperUp:
		return OperUp
	case netlink.OperDown, netlink.OperLowerLayerDown:
		return OperDown
	default:
		return OperUnknown
	}
}

func (t *NetlinkTransport) CreateBond(name string, params BondParams) error {
	b := netlink.NewLinkBond(netlink.LinkAttrs{Name: name})
	b.Mode = bondModeToNetlink(params.Mode)
	b.Miimon = params.MIIMonMillis
	if params.LACPRate != "" {
		b.LacpRate = netlink.StringToBondLacpRate(params.LACPRate)
	}
	if params.XmitHashPolicy != "" {
		b.XmitHashPolicy = netlink.StringToBondXmitHashPolicy(params.XmitHashPolicy)
	}

	if err := t.nl.LinkAdd(b); err != nil {
		return fmt.Errorf("failed to create bond %s: %w", name, err)
	}
	return nil
}

// bondModeToNetlink maps a user-facing mode name to the netlink constant.
func bondModeToNetlink(mode string) netlink.BondMode {
	switch mode {
	case "802.3ad", "lacp":
		return netlink.BOND_MODE_802_3AD
	case "active-backup":
		return netlink.BOND_MODE_ACTIVE_BACKUP
	case "balance-rr":
		return netlink.BOND_MODE_BALANCE_RR
	case "balance-xor":
		return netlink.BOND_MODE_BALANCE_XOR
	case "broadcast":
		return netlink.BOND_MODE_BROADCAST
	case "balance-tlb":
		return netlink.BOND_MODE_BALANCE_TLB
	case "balance-alb":
		return netlink.BOND_MODE_BALANCE_ALB
	}
	return netlink.BOND_MODE_802_3AD
}

func (t *NetlinkTransport) DeleteLink(name string) error {
	link, err := t.nl.LinkByName(name)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLinkNotFound, name, err)
	}
	if err := t.nl.LinkDel(link); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

func (t *NetlinkTransport) SetLinkUp(name string) error {
	link, err := t.nl.LinkByName(name)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLinkNotFound, name, err)
	}
	return t.nl.LinkSetUp(link)
}

func (t *NetlinkTransport) SetLinkDown(name string) error {
	link, err := t.nl.LinkByName(name)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLinkNotFound, name, err)
	}
	return t.nl.LinkSetDown(link)
}

func (t *NetlinkTransport) SetLinkMTU(name string, mtu int) error {
	link, err := t.nl.LinkByName(name)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLinkNotFound, name, err)
	}
	return t.nl.LinkSetMTU(link, mtu)
}

func (t *NetlinkTransport) Enslave(bondName, member string) error {
	bondLink, err := t.nl.LinkByName(bondName)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLinkNotFound, bondName, err)
	}
	memberLink, err := t.nl.LinkByName(member)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLinkNotFound, member, err)
	}
	if err := t.nl.LinkSetMaster(memberLink, bondLink); err != nil {
		return fmt.Errorf("failed to enslave %s to %s: %w", member, bondName, err)
	}
	return nil
}

func (t *NetlinkTransport) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (t *NetlinkTransport) WriteFile(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}

func (t *NetlinkTransport) InterfaceDetails(name string) (*InterfaceInfo, error) {
	info := &InterfaceInfo{Name: name, Driver: "unknown", Speed: "unknown", Duplex: "unknown"}

	if mac, err := t.ReadFile(SysfsAttrPath(name, "address")); err == nil {
		info.MAC = strings.TrimSpace(mac)
	}

	if t.eth != nil {
		if driver, err := t.eth.DriverName(name); err == nil && driver != "" {
			info.Driver = driver
		}
		if bus, err := t.eth.BusInfo(name); err == nil {
			info.BusInfo = strings.TrimSpace(bus)
		}
		if state, err := t.eth.LinkState(name); err == nil {
			info.LinkDetected = state != 0
		}
		if speed, duplex, err := t.eth.LinkSettings(name); err == nil {
			info.Speed = speed
			info.Duplex = duplex
			return info, nil
		}
	}

	// ethtool unavailable or refused (common on virtual NICs), read sysfs.
	t.detailsFromSysfs(info)
	return info, nil
}

func (t *NetlinkTransport) detailsFromSysfs(info *InterfaceInfo) {
	if info.Driver == "unknown" {
		if target, err := os.Readlink(SysfsAttrPath(info.Name, "device/driver")); err == nil {
			parts := strings.Split(target, "/")
			info.Driver = parts[len(parts)-1]
		}
	}
	if speed, err := t.ReadFile(SysfsAttrPath(info.Name, "speed")); err == nil {
		s := strings.TrimSpace(speed)
		if s != "" && s != "-1" {
			info.Speed = s + " Mb/s"
		}
	}
	if duplex, err := t.ReadFile(SysfsAttrPath(info.Name, "duplex")); err == nil {
		d := strings.TrimSpace(duplex)
		if d == "full" || d == "half" {
			info.Duplex = d
		}
	}
	if carrier, err := t.ReadFile(SysfsAttrPath(info.Name, "carrier")); err == nil {
		info.LinkDetected = strings.TrimSpace(carrier) == "1"
	}
}
