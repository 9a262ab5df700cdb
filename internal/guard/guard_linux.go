//go:build linux

package guard

import (
	"fmt"
	"os"
)

func checkPrivileges() error {
	if uid := os.Geteuid(); uid == 0 {
		return fmt.Errorf(
			"ldapauth must NOT run as root (euid=%d); "+
				"use a dedicated service account, e.g. svc_ldapauth", uid,
		)
	}
	return nil
}
