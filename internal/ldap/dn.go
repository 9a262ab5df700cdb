package ldap

import (
	"fmt"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
)

// ParseDN parses a distinguished name into attribute type → value. Attribute
// types are lower-cased; when a type repeats (OU=a,OU=b) the leftmost value
// wins, so "CN=ops,OU=Groups,DC=example,DC=com" yields cn=ops.
func ParseDN(dn string) (map[string]string, error) {
	parsed, err := goldap.ParseDN(dn)
	if err != nil {
		return nil, fmt.Errorf("ldap: parse dn %q: %w", dn, err)
	}
	out := make(map[string]string)
	for _, rdn := range parsed.RDNs {
		for _, atv := range rdn.Attributes {
			key := strings.ToLower(atv.Type)
			if _, seen := out[key]; !seen {
				out[key] = atv.Value
			}
		}
	}
	return out, nil
}
