//go:build !linux && !windows

package guard

func checkPrivileges() error { return nil }
