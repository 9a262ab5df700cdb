package auth

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/ruslano69/ldapauth/internal/ldap"
)

// memberOfAttribute holds group DNs on the user entry (AD, OpenLDAP memberof overlay).
const memberOfAttribute = "memberOf"

// Normalize turns a user record into its canonical name and group list.
//
// Groups come from two sources, in this order: the entries found by the group
// search (their groupAttr value), then every memberOf DN (its groupAttr RDN
// value). Absent sources contribute nothing; order of discovery is kept and
// duplicates are not removed. Unparsable memberOf values are skipped and
// logged at debug on logger.
func Normalize(logger zerolog.Logger, rec *ldap.UserRecord, groupAttr, canonicalAttr string) (string, []string) {
	if rec == nil {
		return "", nil
	}
	canonical := rec.Value(canonicalAttr)

	groups := make([]string, 0, len(rec.Groups)+len(rec.Values(memberOfAttribute)))
	for _, g := range rec.Groups {
		if name := g.Value(groupAttr); name != "" {
			groups = append(groups, name)
		}
	}

	key := strings.ToLower(groupAttr)
	for _, dn := range rec.Values(memberOfAttribute) {
		attrs, err := ldap.ParseDN(dn)
		if err != nil {
			logger.Debug().Err(err).Str("member_of", dn).Msg("skipping unparsable memberOf value")
			continue
		}
		if name, ok := attrs[key]; ok && name != "" {
			groups = append(groups, name)
		}
	}
	return canonical, groups
}
