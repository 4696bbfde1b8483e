package netops

import (
	"github.com/stretchr/testify/mock"
)

// MockTransport is a mock implementation of the Transport interface.
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) LinkNames() ([]string, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockTransport) LinkAttrs(name string) (*LinkAttrs, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*LinkAttrs), args.Error(1)
}

func (m *MockTransport) CreateBond(name string, params BondParams) error {
	args := m.Called(name, params)
	return args.Error(0)
}

func (m *MockTransport) DeleteLink(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *MockTransport) SetLinkUp(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *MockTransport) SetLinkDown(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *MockTransport) SetLinkMTU(name string, mtu int) error {
	args := m.Called(name, mtu)
	return args.Error(0)
}

func (m *MockTransport) Enslave(bondName, member string) error {
	args := m.Called(bondName, member)
	return args.Error(0)
}

func (m *MockTransport) ReadFile(path string) (string, error) {
	args := m.Called(path)
	return args.String(0), args.Error(1)
}

func (m *MockTransport) WriteFile(path, value string) error {
	args := m.Called(path, value)
	return args.Error(0)
}

func (m *MockTransport) InterfaceDetails(name string) (*InterfaceInfo, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*InterfaceInfo), args.Error(1)
}

// MockCommandRunner is a mock implementation of CommandRunner.
type MockCommandRunner struct {
	mock.Mock
}

func (m *MockCommandRunner) Run(cmd string) (string, error) {
	args := m.Called(cmd)
	return args.String(0), args.Error(1)
}
