package vm

import (
	"context"
	"io"

	"github.com/digitalocean/go-libvirt"
)

// libvirtClient defines the libvirt operations needed for VM lifecycle management.
// This wraps operations from *libvirt.Libvirt to allow for testing.
//
// In production, this is satisfied by *libvirt.Libvirt directly.
// In tests, this is satisfied by mock implementations.
type libvirtClient interface {
	// ConnectListAllDomains lists domains matching flags
	ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)

	// DomainDefineXML defines a domain from XML
	DomainDefineXML(xml string) (libvirt.Domain, error)

	// DomainCreate starts a domain
	DomainCreate(dom libvirt.Domain) error

	// DomainDestroy force-stops a domain
	DomainDestroy(dom libvirt.Domain) error

	// DomainSetAutostart sets autostart for a domain
	DomainSetAutostart(dom libvirt.Domain, autostart int32) error

	// DomainGetAutostart reports whether a domain starts with the host
	DomainGetAutostart(dom libvirt.Domain) (int32, error)

	// DomainGetInfo gets basic domain information (state, memory, vCPUs)
	DomainGetInfo(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error)
}

// connectFunc opens a hypervisor connection for a single operation.
// The returned closer releases it.
type connectFunc func(ctx context.Context) (libvirtClient, io.Closer, error)
