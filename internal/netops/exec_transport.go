package netops

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandRunner executes a shell command on a host and returns its stdout.
// hostconn provides SSH and local implementations.
type CommandRunner interface {
	Run(cmd string) (string, error)
}

// ExecTransport drives a host through ip(8), ethtool(8), and sysfs reads
// over a CommandRunner. It is the transport used for remote hosts, where
// netlink is not reachable.
type ExecTransport struct {
	runner CommandRunner
}

// NewExecTransport returns a Transport backed by shell commands.
func NewExecTransport(runner CommandRunner) *ExecTransport {
	return &ExecTransport{runner: runner}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (t *ExecTransport) LinkNames() ([]string, error) {
	out, err := t.runner.Run("ls -1 /sys/class/net")
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (t *ExecTransport) LinkAttrs(name string) (*LinkAttrs, error) {
	q := shellQuote(name)
	out, err := t.runner.Run(fmt.Sprintf(
		"cat /sys/class/net/%s/operstate /sys/class/net/%s/mtu /sys/class/net/%s/address", q, q, q))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLinkNotFound, name, err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 3 {
		return nil, fmt.Errorf("unexpected sysfs output for %s: %q", name, out)
	}

	attrs := &LinkAttrs{Name: name}
	switch strings.TrimSpace(lines[0]) {
	case "up":
		attrs.OperState = OperUp
	case "down", "lowerlayerdown":
		attrs.OperState = OperDown
	default:
		attrs.OperState = OperUnknown
	}
	attrs.MTU, _ = strconv.Atoi(strings.TrimSpace(lines[1]))
	attrs.MAC = strings.TrimSpace(lines[2])

	if _, err := t.ReadFile(BondParamPath(name, "mode")); err == nil {
		attrs.IsBond = true
	}
	attrs.Master = t.masterOf(name)
	return attrs, nil
}

// masterOf parses "master <name>" out of ip -o link output. Empty when the
// link is not enslaved.
func (t *ExecTransport) masterOf(name string) string {
	out, err := t.runner.Run("ip -o link show dev " + shellQuote(name))
	if err != nil {
		return ""
	}
	fields := strings.Fields(out)
	for i, f := range fields {
		if f == "master" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

func (t *ExecTransport) CreateBond(name string, params BondParams) error {
	q := shellQuote(name)
	if _, err := t.runner.Run("ip link add " + q + " type bond"); err != nil {
		return fmt.Errorf("failed to create bond %s: %w", name, err)
	}

	// Driver parameters go through sysfs, in the same order the bonding
	// documentation prescribes: mode first, while the bond has no members.
	writes := []struct{ param, value string }{
		{"mode", params.KernelMode},
		{"miimon", strconv.Itoa(params.MIIMonMillis)},
	}
	if params.LACPRate != "" {
		writes = append(writes, struct{ param, value string }{"lacp_rate", params.LACPRate})
	}
	if params.XmitHashPolicy != "" {
		writes = append(writes, struct{ param, value string }{"xmit_hash_policy", params.XmitHashPolicy})
	}
	for _, w := range writes {
		if err := t.WriteFile(BondParamPath(name, w.param), w.value); err != nil {
			return fmt.Errorf("failed to set bonding %s on %s: %w", w.param, name, err)
		}
	}
	return nil
}

func (t *ExecTransport) DeleteLink(name string) error {
	if _, err := t.runner.Run("ip link delete " + shellQuote(name)); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

func (t *ExecTransport) SetLinkUp(name string) error {
	_, err := t.runner.Run("ip link set " + shellQuote(name) + " up")
	return err
}

func (t *ExecTransport) SetLinkDown(name string) error {
	_, err := t.runner.Run("ip link set " + shellQuote(name) + " down")
	return err
}

func (t *ExecTransport) SetLinkMTU(name string, mtu int) error {
	_, err := t.runner.Run(fmt.Sprintf("ip link set %s mtu %d", shellQuote(name), mtu))
	return err
}

func (t *ExecTransport) Enslave(bondName, member string) error {
	if err := t.WriteFile(BondParamPath(bondName, "slaves"), "+"+member); err != nil {
		return fmt.Errorf("failed to enslave %s to %s: %w", member, bondName, err)
	}
	return nil
}

func (t *ExecTransport) ReadFile(path string) (string, error) {
	return t.runner.Run("cat " + shellQuote(path))
}

func (t *ExecTransport) WriteFile(path, value string) error {
	_, err := t.runner.Run(fmt.Sprintf("printf %%s %s > %s", shellQuote(value), shellQuote(path)))
	return err
}

func (t *ExecTransport) InterfaceDetails(name string) (*InterfaceInfo, error) {
	info := &InterfaceInfo{Name: name, Driver: "unknown", Speed: "unknown", Duplex: "unknown"}

	if mac, err := t.ReadFile(SysfsAttrPath(name, "address")); err == nil {
		info.MAC = strings.TrimSpace(mac)
	} else {
		return nil, fmt.Errorf("%w: %s: %v", ErrLinkNotFound, name, err)
	}

	if out, err := t.runner.Run("ethtool -i " + shellQuote(name)); err == nil {
		for _, line := range strings.Split(out, "\n") {
			if v, ok := strings.CutPrefix(line, "driver:"); ok {
				info.Driver = strings.TrimSpace(v)
			}
			if v, ok := strings.CutPrefix(line, "bus-info:"); ok {
				info.BusInfo = strings.TrimSpace(v)
			}
		}
	}

	if out, err := t.runner.Run("ethtool " + shellQuote(name)); err == nil {
		for _, line := range strings.Split(out, "\n") {
			line = strings.TrimSpace(line)
			if v, ok := strings.CutPrefix(line, "Speed:"); ok {
				info.Speed = strings.TrimSpace(v)
			}
			if v, ok := strings.CutPrefix(line, "Duplex:"); ok {
				info.Duplex = strings.ToLower(strings.TrimSpace(v))
			}
			if v, ok := strings.CutPrefix(line, "Link detected:"); ok {
				info.LinkDetected = strings.Contains(strings.ToLower(v), "yes")
			}
		}
	} else if carrier, err := t.ReadFile(SysfsAttrPath(name, "carrier")); err == nil {
		info.LinkDetected = strings.TrimSpace(carrier) == "1"
	}

	return info, nil
}
