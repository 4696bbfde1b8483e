package netops

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecTransportLinkNames(t *testing.T) {
	mr := new(MockCommandRunner)
	mr.On("Run", "ls -1 /sys/class/net").Return("eth0\neth1\nlo\n", nil).Once()

	et := NewExecTransport(mr)
	names, err := et.LinkNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"eth0", "eth1", "lo"}, names)
}

func TestExecTransportLinkAttrs(t *testing.T) {
	mr := new(MockCommandRunner)
	mr.On("Run", "cat /sys/class/net/'eth0'/operstate /sys/class/net/'eth0'/mtu /sys/class/net/'eth0'/address").
		Return("up\n1500\naa:bb:cc:dd:ee:ff\n", nil).Once()
	mr.On("Run", "cat '/sys/class/net/eth0/bonding/mode'").Return("", errors.New("no such file")).Once()
	mr.On("Run", "ip -o link show dev 'eth0'").
		Return("2: eth0: <BROADCAST,MULTICAST,SLAVE,UP> mtu 1500 master bond0 state UP", nil).Once()

	et := NewExecTransport(mr)
	attrs, err := et.LinkAttrs("eth0")
	require.NoError(t, err)

	assert.Equal(t, OperUp, attrs.OperState)
	assert.Equal(t, 1500, attrs.MTU)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", attrs.MAC)
	assert.Equal(t, "bond0", attrs.Master)
	assert.False(t, attrs.IsBond)
}

func TestExecTransportLinkAttrsMissing(t *testing.T) {
	mr := new(MockCommandRunner)
	mr.On("Run", "cat /sys/class/net/'eth9'/operstate /sys/class/net/'eth9'/mtu /sys/class/net/'eth9'/address").
		Return("", errors.New("no such file")).Once()

	et := NewExecTransport(mr)
	_, err := et.LinkAttrs("eth9")
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestExecTransportCreateBond(t *testing.T) {
	mr := new(MockCommandRunner)
	mr.On("Run", "ip link add 'bondvet0' type bond").Return("", nil).Once()
	mr.On("Run", "printf %s '802.3ad' > '/sys/class/net/bondvet0/bonding/mode'").Return("", nil).Once()
	mr.On("Run", "printf %s '100' > '/sys/class/net/bondvet0/bonding/miimon'").Return("", nil).Once()
	mr.On("Run", "printf %s 'fast' > '/sys/class/net/bondvet0/bonding/lacp_rate'").Return("", nil).Once()
	mr.On("Run", "printf %s 'layer2' > '/sys/class/net/bondvet0/bonding/xmit_hash_policy'").Return("", nil).Once()

	et := NewExecTransport(mr)
	err := et.CreateBond("bondvet0", BondParams{
		Mode:           "802.3ad",
		KernelMode:     "802.3ad",
		MIIMonMillis:   100,
		LACPRate:       "fast",
		XmitHashPolicy: "layer2",
	})
	require.NoError(t, err)
	mr.AssertExpectations(t)
}

func TestExecTransportCreateBondNoLACPParams(t *testing.T) {
	mr := new(MockCommandRunner)
	mr.On("Run", "ip link add 'bondvet1' type bond").Return("", nil).Once()
	mr.On("Run", "printf %s 'balance-rr' > '/sys/class/net/bondvet1/bonding/mode'").Return("", nil).Once()
	mr.On("Run", "printf %s '0' > '/sys/class/net/bondvet1/bonding/miimon'").Return("", nil).Once()

	et := NewExecTransport(mr)
	err := et.CreateBond("bondvet1", BondParams{Mode: "balance-rr", KernelMode: "balance-rr"})
	require.NoError(t, err)
	mr.AssertExpectations(t)
}

func TestExecTransportEnslave(t *testing.T) {
	mr := new(MockCommandRunner)
	mr.On("Run", "printf %s '+eth0' > '/sys/class/net/bondvet0/bonding/slaves'").Return("", nil).Once()

	et := NewExecTransport(mr)
	require.NoError(t, et.Enslave("bondvet0", "eth0"))
}

func TestExecTransportInterfaceDetails(t *testing.T) {
	mr := new(MockCommandRunner)
	mr.On("Run", "cat '/sys/class/net/eth0/address'").Return("aa:bb:cc:dd:ee:ff\n", nil).Once()
	mr.On("Run", "ethtool -i 'eth0'").Return("driver: ixgbe\nversion: 5.1\nbus-info: 0000:3b:00.0\n", nil).Once()
	mr.On("Run", "ethtool 'eth0'").Return(
		"Settings for eth0:\n\tSpeed: 10000Mb/s\n\tDuplex: Full\n\tLink detected: yes\n", nil).Once()

	et := NewExecTransport(mr)
	info, err := et.InterfaceDetails("eth0")
	require.NoError(t, err)

	assert.Equal(t, "ixgbe", info.Driver)
	assert.Equal(t, "0000:3b:00.0", info.BusInfo)
	assert.Equal(t, "10000Mb/s", info.Speed)
	assert.Equal(t, "full", info.Duplex)
	assert.True(t, info.LinkDetected)
}

func TestExecTransportInterfaceDetailsCarrierFallback(t *testing.T) {
	mr := new(MockCommandRunner)
	mr.On("Run", "cat '/sys/class/net/eth0/address'").Return("aa:bb:cc:dd:ee:ff\n", nil).Once()
	mr.On("Run", "ethtool -i 'eth0'").Return("", errors.New("ethtool not installed")).Once()
	mr.On("Run", "ethtool 'eth0'").Return("", errors.New("ethtool not installed")).Once()
	mr.On("Run", "cat '/sys/class/net/eth0/carrier'").Return("1\n", nil).Once()

	et := NewExecTransport(mr)
	info, err := et.InterfaceDetails("eth0")
	require.NoError(t, err)

	assert.Equal(t, "unknown", info.Driver)
	assert.True(t, info.LinkDetected)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'eth0'", shellQuote("eth0"))
	assert.Equal(t, `'a'\''b'`, shellQuote("a'b"))
}
