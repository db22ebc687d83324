package common

import (
	"syscall"
)

// SetRestrictiveUmask masks the group and world bits. This ensures that key material
// and databases we create aren't accidentally group- or world-readable.
func SetRestrictiveUmask() {
	syscall.Umask(0077) // cannot fail
}
