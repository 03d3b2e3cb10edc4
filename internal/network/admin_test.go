package network

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const astuteYAML = `# Fuel master node settings
HOSTNAME: fuel
mac_interface: eth1
ADMIN_NETWORK:
  # PXE network
  interface: eth1
  ipaddress: 10.20.0.2

  netmask: 255.255.255.0
  dhcp_pool_start: 10.20.0.3
DNS_DOMAIN: domain.tld
`

func TestPatchAdminInterface_PreservesDocument(t *testing.T) {
	got, err := PatchAdminInterface([]byte(astuteYAML), "br0")
	require.NoError(t, err)

	want := `# Fuel master node settings
HOSTNAME: fuel
mac_interface: eth1
ADMIN_NETWORK:
  # PXE network
  interface: br0
  ipaddress: 10.20.0.2

  netmask: 255.255.255.0
  dhcp_pool_start: 10.20.0.3
DNS_DOMAIN: domain.tld
`
	assert.Equal(t, want, string(got))
}

func TestPatchAdminInterface_QuotingStyles(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "double quoted",
			in:   "ADMIN_NETWORK:\n  interface: \"eth1\"\n",
			want: "ADMIN_NETWORK:\n  interface: \"br0\"\n",
		},
		{
			name: "single quoted",
			in:   "ADMIN_NETWORK:\n  interface: 'eth1'\n",
			want: "ADMIN_NETWORK:\n  interface: 'br0'\n",
		},
		{
			name: "trailing comment",
			in:   "ADMIN_NETWORK:\n  interface: eth1 # pxe\n",
			want: "ADMIN_NETWORK:\n  interface: br0 # pxe\n",
		},
		{
			name: "flow mapping",
			in:   "ADMIN_NETWORK: {interface: eth1, netmask: 255.255.255.0}\n",
			want: "ADMIN_NETWORK: {interface: br0, netmask: 255.255.255.0}\n",
		},
		{
			name: "no trailing newline",
			in:   "ADMIN_NETWORK:\n  interface: eth1",
			want: "ADMIN_NETWORK:\n  interface: br0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PatchAdminInterface([]byte(tt.in), "br0")
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestPatchAdminInterface_Missing(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"no section", "HOSTNAME: fuel\n"},
		{"no interface key", "ADMIN_NETWORK:\n  netmask: 255.255.255.0\n"},
		{"empty interface", "ADMIN_NETWORK:\n  interface:\n"},
		{"empty document", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PatchAdminInterface([]byte(tt.in), "br0")
			assert.ErrorIs(t, err, ErrAdminInterfaceMissing)
		})
	}
}

func TestPatchAdminInterface_InvalidName(t *testing.T) {
	_, err := PatchAdminInterface([]byte(astuteYAML), "br 0")
	assert.Error(t, err)
}

func TestSetAdminInterface_ReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "astute.yaml")
	require.NoError(t, os.WriteFile(path, []byte(astuteYAML), 0600))

	iface, err := ReadAdminInterface(path)
	require.NoError(t, err)
	assert.Equal(t, "eth1", iface)

	require.NoError(t, SetAdminInterface(path, "br0"))

	iface, err = ReadAdminInterface(path)
	require.NoError(t, err)
	assert.Equal(t, "br0", iface)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestReadAdminInterface_MissingFile(t *testing.T) {
	_, err := ReadAdminInterface(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
