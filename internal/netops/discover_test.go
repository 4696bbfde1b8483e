package netops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverInterfacesFiltering(t *testing.T) {
	mt := new(MockTransport)
	mt.On("LinkNames").Return([]string{
		"lo", "eth1", "eth0", "docker0", "veth12ab", "bond0", "eth2", "eth3",
	}, nil).Once()

	mt.On("LinkAttrs", "eth0").Return(&LinkAttrs{Name: "eth0", OperState: OperUp}, nil).Once()
	mt.On("LinkAttrs", "eth1").Return(&LinkAttrs{Name: "eth1", OperState: OperUp}, nil).Once()
	// eth2 is already enslaved, eth3 has no carrier
	mt.On("LinkAttrs", "eth2").Return(&LinkAttrs{Name: "eth2", Master: "bond0"}, nil).Once()
	mt.On("LinkAttrs", "eth3").Return(&LinkAttrs{Name: "eth3", OperState: OperDown}, nil).Once()

	mt.On("InterfaceDetails", "eth0").Return(&InterfaceInfo{Name: "eth0", Driver: "ixgbe", LinkDetected: true}, nil).Once()
	mt.On("InterfaceDetails", "eth1").Return(&InterfaceInfo{Name: "eth1", Driver: "ixgbe", LinkDetected: true}, nil).Once()
	mt.On("InterfaceDetails", "eth3").Return(&InterfaceInfo{Name: "eth3", LinkDetected: false}, nil).Once()

	infos, err := DiscoverInterfaces(mt, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"eth0", "eth1"}, InterfaceNames(infos))
	mt.AssertNotCalled(t, "LinkAttrs", "lo")
	mt.AssertNotCalled(t, "LinkAttrs", "docker0")
	mt.AssertNotCalled(t, "LinkAttrs", "bond0")
}

func TestDiscoverInterfacesDeterministicOrder(t *testing.T) {
	mt := new(MockTransport)
	mt.On("LinkNames").Return([]string{"ens1f1", "ens1f0"}, nil).Once()
	for _, name := range []string{"ens1f0", "ens1f1"} {
		mt.On("LinkAttrs", name).Return(&LinkAttrs{Name: name, OperState: OperUp}, nil).Once()
		mt.On("InterfaceDetails", name).Return(&InterfaceInfo{Name: name, LinkDetected: true}, nil).Once()
	}

	infos, err := DiscoverInterfaces(mt, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ens1f0", "ens1f1"}, InterfaceNames(infos))
}

func TestDiscoverInterfacesRestricted(t *testing.T) {
	mt := new(MockTransport)
	mt.On("LinkAttrs", "eth5").Return(&LinkAttrs{Name: "eth5", OperState: OperUp}, nil).Once()
	mt.On("InterfaceDetails", "eth5").Return(&InterfaceInfo{Name: "eth5", LinkDetected: true}, nil).Once()

	infos, err := DiscoverInterfaces(mt, []string{"eth5"})
	require.NoError(t, err)
	assert.Equal(t, []string{"eth5"}, InterfaceNames(infos))
	mt.AssertNotCalled(t, "LinkNames")
}

func TestDiscoverInterfacesRestrictedMissing(t *testing.T) {
	mt := new(MockTransport)
	mt.On("LinkAttrs", "eth9").Return(nil, ErrLinkNotFound).Once()

	_, err := DiscoverInterfaces(mt, []string{"eth9"})
	assert.Error(t, err)
}
