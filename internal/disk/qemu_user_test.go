package disk

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQEMUConf(t *testing.T) {
	tests := []struct {
		name          string
		configContent string
		wantUser      string
		wantGroup     string
	}{
		{
			name: "basic config with quotes",
			configContent: `# QEMU configuration
user = "qemu"
group = "qemu"
`,
			wantUser:  "qemu",
			wantGroup: "qemu",
		},
		{
			name: "config with single quotes",
			configContent: `user = 'libvirt-qemu'
group = 'libvirt-qemu'
`,
			wantUser:  "libvirt-qemu",
			wantGroup: "libvirt-qemu",
		},
		{
			name: "config with comments and whitespace",
			configContent: `# User configuration
# user = "root"
user = "qemu"

# Group configuration
group = "kvm"
`,
			wantUser:  "qemu",
			wantGroup: "kvm",
		},
		{
			name:          "config with no quotes",
			configContent: "user = qemu\ngroup = qemu\n",
			wantUser:      "qemu",
			wantGroup:     "qemu",
		},
		{
			name:          "similar keys are ignored",
			configContent: "user_namespace = 1\ngroup_id = 9\n",
		},
		{
			name:          "empty config",
			configContent: "",
		},
		{
			name:          "only user specified",
			configContent: "user = \"qemu\"\n",
			wantUser:      "qemu",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "qemu.conf")
			require.NoError(t, os.WriteFile(path, []byte(tt.configContent), 0644))

			gotUser, gotGroup := parseQEMUConf(path)
			assert.Equal(t, tt.wantUser, gotUser)
			assert.Equal(t, tt.wantGroup, gotGroup)
		})
	}
}

func TestOwnerResolver_Resolve(t *testing.T) {
	users := map[string]*user.User{
		"qemu":         {Username: "qemu", Uid: "107", Gid: "107"},
		"libvirt-qemu": {Username: "libvirt-qemu", Uid: "64055", Gid: "108"},
		"svc":          {Username: "svc", Uid: "990", Gid: "990"},
	}
	groups := map[string]*user.Group{
		"kvm": {Name: "kvm", Gid: "36"},
	}

	lookupUser := func(available ...string) func(string) (*user.User, error) {
		return func(name string) (*user.User, error) {
			for _, a := range available {
				if a == name {
					return users[name], nil
				}
			}
			return nil, user.UnknownUserError(name)
		}
	}
	lookupGroup := func(name string) (*user.Group, error) {
		if g, ok := groups[name]; ok {
			return g, nil
		}
		return nil, user.UnknownGroupError(name)
	}

	tests := []struct {
		name    string
		conf    string
		users   []string
		wantUID int
		wantGID int
		wantErr bool
	}{
		{
			name:    "configured user and group",
			conf:    "user = \"svc\"\ngroup = \"kvm\"\n",
			users:   []string{"svc", "qemu"},
			wantUID: 990,
			wantGID: 36,
		},
		{
			name:    "configured group missing uses primary gid",
			conf:    "user = \"svc\"\ngroup = \"nogroup\"\n",
			users:   []string{"svc"},
			wantUID: 990,
			wantGID: 990,
		},
		{
			name:    "configured user missing falls back to common names",
			conf:    "user = \"svc\"\n",
			users:   []string{"libvirt-qemu"},
			wantUID: 64055,
			wantGID: 108,
		},
		{
			name:    "qemu preferred over libvirt-qemu",
			users:   []string{"qemu", "libvirt-qemu"},
			wantUID: 107,
			wantGID: 107,
		},
		{
			name:    "fallback ids",
			wantUID: 107,
			wantGID: 107,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "qemu.conf")
			require.NoError(t, os.WriteFile(path, []byte(tt.conf), 0644))

			r := &OwnerResolver{
				ConfPath:    path,
				LookupUser:  lookupUser(tt.users...),
				LookupGroup: lookupGroup,
			}

			uid, gid, err := r.Resolve()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantUID, uid)
			assert.Equal(t, tt.wantGID, gid)
		})
	}
}

func TestParseIDs_Invalid(t *testing.T) {
	uid, gid, err := parseIDs("abc", "107")
	assert.Error(t, err)
	assert.Equal(t, fallbackQEMUID, uid)
	assert.Equal(t, fallbackQEMUID, gid)

	_, _, err = parseIDs("107", "")
	assert.True(t, err != nil && !errors.Is(err, os.ErrNotExist))
}
