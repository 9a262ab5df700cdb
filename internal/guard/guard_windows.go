//go:build windows

package guard

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

func checkPrivileges() error {
	token := windows.GetCurrentProcessToken()

	if token.IsElevated() {
		return errors.New(
			"ldapauth must NOT run with elevated (Administrator) privileges; " +
				"use a dedicated low-privilege service account, e.g. svc_ldapauth",
		)
	}

	user, err := token.GetTokenUser()
	if err != nil {
		return fmt.Errorf("guard: GetTokenUser: %w", err)
	}
	system, err := windows.CreateWellKnownSid(windows.WinLocalSystemSid)
	if err != nil {
		return fmt.Errorf("guard: LocalSystem SID: %w", err)
	}
	if user.User.Sid.Equals(system) {
		return errors.New("ldapauth must NOT run as LocalSystem; use a dedicated service account")
	}
	return nil
}
