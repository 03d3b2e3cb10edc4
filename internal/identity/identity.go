// Package identity generates the per-VM UUID and MAC address.
//
// Uniqueness is the only requirement; neither value needs to be
// unpredictable. Two VMs drawing the same MAC on one bridge is possible and
// accepted since a host carries a single managed VM.
package identity

import (
	"math/rand/v2"
	"net"

	"github.com/google/uuid"
)

// MACPrefix is the QEMU/KVM locally administered OUI (52:54:00).
var MACPrefix = [3]byte{0x52, 0x54, 0x00}

// Identity is the UUID and MAC given to a freshly defined VM.
type Identity struct {
	UUID uuid.UUID
	MAC  net.HardwareAddr
}

// Generator draws identities. IntN defaults to math/rand/v2.IntN.
type Generator struct {
	IntN func(n int) int
}

// New returns a fresh Identity.
func (g Generator) New() Identity {
	return Identity{
		UUID: NewUUID(),
		MAC:  g.NewMAC(),
	}
}

// NewMAC returns 52:54:00:XX:YY:ZZ with XX in [0x00,0x7f] and YY, ZZ in
// [0x00,0xff].
func (g Generator) NewMAC() net.HardwareAddr {
	intN := g.IntN
	if intN == nil {
		intN = rand.IntN
	}

	return net.HardwareAddr{
		MACPrefix[0], MACPrefix[1], MACPrefix[2],
		byte(intN(0x80)),
		byte(intN(0x100)),
		byte(intN(0x100)),
	}
}

// New returns a fresh Identity from the default generator.
func New() Identity {
	return Generator{}.New()
}

// NewUUID returns a random (version 4) UUID.
func NewUUID() uuid.UUID {
	return uuid.New()
}

// NewMAC returns a MAC from the default generator.
func NewMAC() net.HardwareAddr {
	return Generator{}.NewMAC()
}
