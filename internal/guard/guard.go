// Package guard implements a startup privilege check.
//
// ldapauth must NOT run as root (Linux) or with elevated Administrator
// privileges (Windows). The process holds the service bind credentials and
// a cache of authenticated users in memory; a dedicated low-privilege
// account keeps both out of reach of unrelated local services.
package guard

// Check returns a non-nil error if the current process runs with excessive
// privileges. Call this at startup before reading any configuration.
func Check() error {
	return checkPrivileges()
}
