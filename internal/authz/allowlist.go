package authz

import "strings"

// AllowList is the configured set of admin emails. It gates navigation to the
// admin area; row scoping is still applied by the queries themselves.
type AllowList struct {
	emails map[string]struct{}
}

// ParseAllowList splits a comma-separated list, trimming and lower-casing
// every entry and dropping empties.
func ParseAllowList(raw string) AllowList {
	al := AllowList{emails: map[string]struct{}{}}
	for _, part := range strings.Split(raw, ",") {
		e := strings.ToLower(strings.TrimSpace(part))
		if e != "" {
			al.emails[e] = struct{}{}
		}
	}
	return al
}

func (a AllowList) IsAdmin(email string) bool {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" {
		return false
	}
	_, ok := a.emails[e]
	return ok
}

func (a AllowList) Len() int { return len(a.emails) }

// FirstEmail returns the first non-empty entry of raw, used for seeding.
func FirstEmail(raw string) string {
	for _, part := range strings.Split(raw, ",") {
		if e := strings.ToLower(strings.TrimSpace(part)); e != "" {
			return e
		}
	}
	return ""
}
