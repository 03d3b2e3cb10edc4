// Package libvirt holds the hypervisor connection and the domain
// descriptor for the all-in-one VM.
//
// Connections go to the local daemon over its UNIX socket:
//
//	client, err := libvirt.ConnectWithContext(ctx, libvirt.DefaultSocket, 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// BuildDomainXML renders the fixed KVM topology with the per-VM values
// (name, disk path, bridge, memory, vCPUs, UUID, MAC) filled in.
//
// This package does not define interfaces. Consumers such as internal/vm
// declare the subset of *libvirt.Libvirt they need.
package libvirt
