package libvirt

import (
	"errors"
	"fmt"
	"path/filepath"

	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/allinone/internal/host"
	"github.com/jbweber/allinone/internal/identity"
)

const (
	// Emulator is the QEMU binary on RHEL-family hosts.
	Emulator = "/usr/libexec/qemu-kvm"

	// MachineType is the i440fx machine the VM is pinned to.
	MachineType = "pc-i440fx-rhel7.0.0"

	// CPUModel is the guest CPU model; the host may fall back to a close match.
	CPUModel = "SandyBridge"

	// SpicePort is the requested SPICE port. autoport is also set, so
	// libvirt picks another when it is taken.
	SpicePort = 5903

	// qemuDACLabel runs the VM as the qemu user (UID/GID 107).
	qemuDACLabel = "+107:+107"
)

// DomainSpec holds everything that varies between generated descriptors.
type DomainSpec struct {
	Name       string
	DiskPath   string
	Bridge     string
	Allocation host.Allocation
	Identity   identity.Identity
}

// Validate checks the fields BuildDomainXML needs.
func (s DomainSpec) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !filepath.IsAbs(s.DiskPath) {
		errs = append(errs, fmt.Errorf("disk path must be absolute, got %q", s.DiskPath))
	}
	if s.Bridge == "" {
		errs = append(errs, errors.New("bridge is required"))
	}
	if s.Allocation.MemSize <= 0 || s.Allocation.MemUnit == "" {
		errs = append(errs, fmt.Errorf("invalid memory %d%s", s.Allocation.MemSize, s.Allocation.MemUnit))
	}
	if s.Allocation.VCPU <= 0 {
		errs = append(errs, fmt.Errorf("invalid vcpu count %d", s.Allocation.VCPU))
	}
	if len(s.Identity.MAC) != 6 {
		errs = append(errs, errors.New("mac address is required"))
	}
	return errors.Join(errs...)
}

// BuildDomainXML generates the libvirt domain XML for the all-in-one VM.
// The device topology is fixed; only DomainSpec's fields vary, and the same
// spec always produces the same document.
func BuildDomainXML(spec DomainSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", fmt.Errorf("invalid domain spec: %w", err)
	}

	domain := &libvirtxml.Domain{
		Type: "kvm",
		Name: spec.Name,
		UUID: spec.Identity.UUID.String(),
		Memory: &libvirtxml.DomainMemory{
			Value: uint(spec.Allocation.MemSize),
			Unit:  spec.Allocation.MemUnit,
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     uint(spec.Allocation.VCPU),
		},
		Resource: &libvirtxml.DomainResource{
			Partition: "/machine",
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch:    "x86_64",
				Machine: MachineType,
				Type:    "hvm",
			},
			BootMenu: &libvirtxml.DomainBootMenu{
				Enable: "yes",
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
		},
		CPU: &libvirtxml.DomainCPU{
			Mode:  "custom",
			Match: "exact",
			Model: &libvirtxml.DomainCPUModel{
				Fallback: "allow",
				Value:    CPUModel,
			},
		},
		Clock: &libvirtxml.DomainClock{
			Offset: "utc",
			Timer: []libvirtxml.DomainTimer{
				{Name: "rtc", TickPolicy: "catchup"},
				{Name: "pit", TickPolicy: "delay"},
				{Name: "hpet", Present: "no"},
			},
		},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "restart",
		PM: &libvirtxml.DomainPM{
			SuspendToMem:  &libvirtxml.DomainPMPolicy{Enabled: "no"},
			SuspendToDisk: &libvirtxml.DomainPMPolicy{Enabled: "no"},
		},
		Devices: &libvirtxml.DomainDeviceList{
			Emulator:    Emulator,
			Disks:       []libvirtxml.DomainDisk{bootDisk(spec.DiskPath)},
			Controllers: controllers(),
			Interfaces:  []libvirtxml.DomainInterface{bridgeInterface(spec.Bridge, spec.Identity.MAC.String())},
			Serials: []libvirtxml.DomainSerial{
				{
					Source: &libvirtxml.DomainChardevSource{
						Pty: &libvirtxml.DomainChardevSourcePty{},
					},
					Target: &libvirtxml.DomainSerialTarget{
						Port: uintPtr(0),
					},
				},
			},
			Consoles: []libvirtxml.DomainConsole{
				{
					Source: &libvirtxml.DomainChardevSource{
						Pty: &libvirtxml.DomainChardevSourcePty{},
					},
					Target: &libvirtxml.DomainConsoleTarget{
						Type: "serial",
						Port: uintPtr(0),
					},
				},
			},
			Channels: []libvirtxml.DomainChannel{
				{
					Source: &libvirtxml.DomainChardevSource{
						SpiceVMC: &libvirtxml.DomainChardevSourceSpiceVMC{},
					},
					Target: &libvirtxml.DomainChannelTarget{
						VirtIO: &libvirtxml.DomainChannelTargetVirtIO{
							Name: "com.redhat.spice.0",
						},
					},
					Address: &libvirtxml.DomainAddress{
						VirtioSerial: &libvirtxml.DomainAddressVirtioSerial{
							Controller: uintPtr(0),
							Bus:        uintPtr(0),
							Port:       uintPtr(1),
						},
					},
				},
			},
			Inputs: []libvirtxml.DomainInput{
				{Type: "mouse", Bus: "ps2"},
			},
			Graphics: []libvirtxml.DomainGraphic{
				{
					Spice: &libvirtxml.DomainGraphicSpice{
						Port:     SpicePort,
						AutoPort: "yes",
						Listen:   "0.0.0.0",
						Listeners: []libvirtxml.DomainGraphicListener{
							{
								Address: &libvirtxml.DomainGraphicListenerAddress{
									Address: "0.0.0.0",
								},
							},
						},
					},
				},
			},
			Sounds: []libvirtxml.DomainSound{
				{
					Model:   "ich6",
					Address: pciAddress(0x05, 0x0, ""),
				},
			},
			Videos: []libvirtxml.DomainVideo{
				{
					Model: libvirtxml.DomainVideoModel{
						Type:    "qxl",
						Ram:     65536,
						VRam:    65536,
						VGAMem:  16384,
						Heads:   1,
						Primary: "yes",
					},
					Address: pciAddress(0x02, 0x0, ""),
				},
			},
			RedirDevs: []libvirtxml.DomainRedirDev{
				usbRedirect("1"),
				usbRedirect("2"),
			},
			MemBalloon: &libvirtxml.DomainMemBalloon{
				Model:   "virtio",
				Address: pciAddress(0x09, 0x0, ""),
			},
		},
		SecLabel: []libvirtxml.DomainSecLabel{
			{
				Type:       "dynamic",
				Model:      "dac",
				Relabel:    "yes",
				Label:      qemuDACLabel,
				ImageLabel: qemuDACLabel,
			},
		},
	}

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}

	return xml, nil
}

func bootDisk(path string) libvirtxml.DomainDisk {
	return libvirtxml.DomainDisk{
		Device: "disk",
		Driver: &libvirtxml.DomainDiskDriver{
			Name: "qemu",
			Type: "qcow2",
		},
		Source: &libvirtxml.DomainDiskSource{
			File: &libvirtxml.DomainDiskSourceFile{
				File: path,
			},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: "vda",
			Bus: "virtio",
		},
		Boot: &libvirtxml.DomainDeviceBoot{
			Order: 2,
		},
		Address: pciAddress(0x08, 0x0, ""),
	}
}

// controllers returns the ICH9 USB companion set on slot 7, the PCI root,
// and the virtio-serial controller the SPICE channel attaches to.
func controllers() []libvirtxml.DomainController {
	usb := func(model string, function uint, startPort *uint, multifunction string) libvirtxml.DomainController {
		c := libvirtxml.DomainController{
			Type:    "usb",
			Index:   uintPtr(0),
			Model:   model,
			Address: pciAddress(0x07, function, multifunction),
		}
		if startPort != nil {
			c.USB = &libvirtxml.DomainControllerUSB{
				Master: &libvirtxml.DomainControllerUSBMaster{StartPort: *startPort},
			}
		}
		return c
	}

	return []libvirtxml.DomainController{
		usb("ich9-ehci1", 0x7, nil, ""),
		usb("ich9-uhci1", 0x0, uintPtr(0), "on"),
		usb("ich9-uhci2", 0x1, uintPtr(2), ""),
		usb("ich9-uhci3", 0x2, uintPtr(4), ""),
		{
			Type:  "pci",
			Index: uintPtr(0),
			Model: "pci-root",
		},
		{
			Type:    "virtio-serial",
			Index:   uintPtr(0),
			Address: pciAddress(0x06, 0x0, ""),
		},
	}
}

func bridgeInterface(bridge, mac string) libvirtxml.DomainInterface {
	return libvirtxml.DomainInterface{
		MAC: &libvirtxml.DomainInterfaceMAC{
			Address: mac,
		},
		Source: &libvirtxml.DomainInterfaceSource{
			Bridge: &libvirtxml.DomainInterfaceSourceBridge{
				Bridge: bridge,
			},
		},
		Target: &libvirtxml.DomainInterfaceTarget{
			Dev: "vnet0",
		},
		Model: &libvirtxml.DomainInterfaceModel{
			Type: "virtio",
		},
		Boot: &libvirtxml.DomainDeviceBoot{
			Order: 1,
		},
		Address: pciAddress(0x03, 0x0, ""),
	}
}

func usbRedirect(port string) libvirtxml.DomainRedirDev {
	return libvirtxml.DomainRedirDev{
		Bus: "usb",
		Source: &libvirtxml.DomainChardevSource{
			SpiceVMC: &libvirtxml.DomainChardevSourceSpiceVMC{},
		},
		Address: &libvirtxml.DomainAddress{
			USB: &libvirtxml.DomainAddressUSB{
				Bus:  uintPtr(0),
				Port: port,
			},
		},
	}
}

func pciAddress(slot, function uint, multifunction string) *libvirtxml.DomainAddress {
	return &libvirtxml.DomainAddress{
		PCI: &libvirtxml.DomainAddressPCI{
			Domain:        uintPtr(0),
			Bus:           uintPtr(0),
			Slot:          uintPtr(slot),
			Function:      uintPtr(function),
			MultiFunction: multifunction,
		},
	}
}

func uintPtr(v uint) *uint {
	return &v
}
