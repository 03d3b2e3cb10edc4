package disk

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
)

const (
	// DefaultQEMUConf is libvirt's QEMU driver configuration.
	DefaultQEMUConf = "/etc/libvirt/qemu.conf"

	// fallbackQEMUID is the Fedora/RHEL qemu UID and GID.
	fallbackQEMUID = 107
)

// OwnerResolver determines the user and group the QEMU process runs as.
type OwnerResolver struct {
	ConfPath    string
	LookupUser  func(name string) (*user.User, error)
	LookupGroup func(name string) (*user.Group, error)
}

// NewOwnerResolver returns a resolver reading DefaultQEMUConf and the
// host's user database.
func NewOwnerResolver() *OwnerResolver {
	return &OwnerResolver{
		ConfPath:    DefaultQEMUConf,
		LookupUser:  user.Lookup,
		LookupGroup: user.LookupGroup,
	}
}

// Resolve returns the UID and GID for the QEMU process user.
// It tries, in order:
// 1. the user/group configured in qemu.conf
// 2. the common user names (qemu, libvirt-qemu)
// 3. UID/GID 107
//
// When the fallback is used, 107/107 is returned along with an error.
func (r *OwnerResolver) Resolve() (uid, gid int, err error) {
	username, groupname := parseQEMUConf(r.ConfPath)

	if username != "" {
		if u, err := r.LookupUser(username); err == nil {
			gidStr := u.Gid
			if groupname != "" {
				if g, err := r.LookupGroup(groupname); err == nil {
					gidStr = g.Gid
				}
			}
			return parseIDs(u.Uid, gidStr)
		}
	}

	for _, name := range []string{"qemu", "libvirt-qemu"} {
		if u, err := r.LookupUser(name); err == nil {
			return parseIDs(u.Uid, u.Gid)
		}
	}

	return fallbackQEMUID, fallbackQEMUID, fmt.Errorf("could not determine QEMU user/group, using fallback UID/GID %d", fallbackQEMUID)
}

func parseIDs(uidStr, gidStr string) (int, int, error) {
	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return fallbackQEMUID, fallbackQEMUID, fmt.Errorf("invalid UID %q: %w", uidStr, err)
	}
	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return fallbackQEMUID, fallbackQEMUID, fmt.Errorf("invalid GID %q: %w", gidStr, err)
	}
	return uid, gid, nil
}

// parseQEMUConf extracts the user and group settings from qemu.conf.
// Returns empty strings if the file doesn't exist or the settings aren't found.
func parseQEMUConf(path string) (username, groupname string) {
	file, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		switch strings.TrimSpace(key) {
		case "user":
			username = value
		case "group":
			groupname = value
		}
	}

	return username, groupname
}
