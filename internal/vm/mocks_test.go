package vm

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/digitalocean/go-libvirt"
)

// mockLibvirtClient is a mock implementation of the libvirtClient interface for testing.
type mockLibvirtClient struct {
	mu sync.Mutex

	// Domains returned by the active and inactive listings
	active   []libvirt.Domain
	inactive []libvirt.Domain

	// Configurable behavior
	connectListAllDomainsFunc func(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	domainDefineXMLFunc       func(xml string) (libvirt.Domain, error)
	domainCreateFunc          func(dom libvirt.Domain) error
	domainDestroyFunc         func(dom libvirt.Domain) error
	domainSetAutostartFunc    func(dom libvirt.Domain, autostart int32) error
	domainGetAutostartFunc    func(dom libvirt.Domain) (int32, error)
	domainGetInfoFunc         func(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error)

	// Call tracking
	connectListAllDomainsCalls []libvirt.ConnectListAllDomainsFlags
	domainDefineXMLCalls       []string
	domainCreateCalls          []libvirt.Domain
	domainDestroyCalls         []libvirt.Domain
	domainSetAutostartCalls    []int32
	domainGetInfoCalls         []libvirt.Domain
}

// newMockLibvirtClient creates a new mock libvirt client with default behavior.
func newMockLibvirtClient() *mockLibvirtClient {
	m := &mockLibvirtClient{}

	// Default: list from the active/inactive fields
	m.connectListAllDomainsFunc = func(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
		switch flags {
		case libvirt.ConnectListDomainsActive:
			return m.active, uint32(len(m.active)), nil
		case libvirt.ConnectListDomainsInactive:
			return m.inactive, uint32(len(m.inactive)), nil
		}
		return nil, 0, errors.New("unexpected list flags")
	}

	// Default: define succeeds and the domain becomes inactive
	m.domainDefineXMLFunc = func(xml string) (libvirt.Domain, error) {
		dom := libvirt.Domain{Name: "allinone"}
		m.inactive = append(m.inactive, dom)
		return dom, nil
	}

	// Default: create succeeds
	m.domainCreateFunc = func(dom libvirt.Domain) error {
		return nil
	}

	// Default: destroy succeeds
	m.domainDestroyFunc = func(dom libvirt.Domain) error {
		return nil
	}

	// Default: set autostart succeeds
	m.domainSetAutostartFunc = func(dom libvirt.Domain, autostart int32) error {
		return nil
	}

	// Default: autostart enabled
	m.domainGetAutostartFunc = func(dom libvirt.Domain) (int32, error) {
		return 1, nil
	}

	// Default: 6 GiB, 2 vCPUs
	m.domainGetInfoFunc = func(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
		return 1, 6 * 1024 * 1024, 6 * 1024 * 1024, 2, 0, nil
	}

	return m
}

func (m *mockLibvirtClient) ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectListAllDomainsCalls = append(m.connectListAllDomainsCalls, flags)
	return m.connectListAllDomainsFunc(needResults, flags)
}

func (m *mockLibvirtClient) DomainDefineXML(xml string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDefineXMLCalls = append(m.domainDefineXMLCalls, xml)
	return m.domainDefineXMLFunc(xml)
}

func (m *mockLibvirtClient) DomainCreate(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainCreateCalls = append(m.domainCreateCalls, dom)
	return m.domainCreateFunc(dom)
}

func (m *mockLibvirtClient) DomainDestroy(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDestroyCalls = append(m.domainDestroyCalls, dom)
	return m.domainDestroyFunc(dom)
}

func (m *mockLibvirtClient) DomainSetAutostart(dom libvirt.Domain, autostart int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainSetAutostartCalls = append(m.domainSetAutostartCalls, autostart)
	return m.domainSetAutostartFunc(dom, autostart)
}

func (m *mockLibvirtClient) DomainGetAutostart(dom libvirt.Domain) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domainGetAutostartFunc(dom)
}

func (m *mockLibvirtClient) DomainGetInfo(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainGetInfoCalls = append(m.domainGetInfoCalls, dom)
	return m.domainGetInfoFunc(dom)
}

// mockConnector hands out the same mock client and counts connections.
type mockConnector struct {
	client *mockLibvirtClient
	err    error
	opened int
	closed int
}

func (c *mockConnector) connect(ctx context.Context) (libvirtClient, io.Closer, error) {
	if c.err != nil {
		return nil, nil, c.err
	}
	c.opened++
	return c.client, closerFunc(func() error {
		c.closed++
		return nil
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
