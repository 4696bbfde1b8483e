//go:build !linux
// +build !linux

package netops

// NetlinkTransport is only available on Linux. Non-Linux builds can still
// drive remote hosts through the exec transport.
type NetlinkTransport struct{}

// NewNetlinkTransport reports netlink as unsupported off-Linux.
func NewNetlinkTransport() (*NetlinkTransport, error) {
	return nil, ErrUnsupported
}

func (t *NetlinkTransport) Close() {}

func (t *NetlinkTransport) LinkNames() ([]string, error) { return nil, ErrUnsupported }

func (t *NetlinkTransport) LinkAttrs(name string) (*LinkAttrs, error) { return nil, ErrUnsupported }

func (t *NetlinkTransport) CreateBond(name string, params BondParams) error { return ErrUnsupported }

func (t *NetlinkTransport) DeleteLink(name string) error { return ErrUnsupported }

func (t *NetlinkTransport) SetLinkUp(name string) error { return ErrUnsupported }

func (t *NetlinkTransport) SetLinkDown(name string) error { return ErrUnsupported }

func (t *NetlinkTransport) SetLinkMTU(name string, mtu int) error { return ErrUnsupported }

func (t *NetlinkTransport) Enslave(bondName, member string) error { return ErrUnsupported }

func (t *NetlinkTransport) ReadFile(path string) (string, error) { return "", ErrUnsupported }

func (t *NetlinkTransport) WriteFile(path, value string) error { return ErrUnsupported }

func (t *NetlinkTransport) InterfaceDetails(name string) (*InterfaceInfo, error) {
	return nil, ErrUnsupported
}
