package session

import (
	"fmt"
	"strings"
)

// Realm identifies a class of portal user. Each realm has its own login
// endpoint and its own storage bucket.
type Realm string

const (
	RealmAdmin        Realm = "admin"
	RealmOrganization Realm = "organization"
	RealmEmployee     Realm = "employee"
)

// Realms lists every supported realm.
var Realms = []Realm{RealmAdmin, RealmOrganization, RealmEmployee}

// ParseRealm validates and normalizes a realm name.
func ParseRealm(s string) (Realm, error) {
	r := Realm(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown realm %q (want admin, organization or employee)", s)
	}
	return r, nil
}

// Valid reports whether r is one of the supported realms.
func (r Realm) Valid() bool {
	switch r {
	case RealmAdmin, RealmOrganization, RealmEmployee:
		return true
	}
	return false
}

// LoginPath is the backend path credentials for r are posted to.
func (r Realm) LoginPath() string {
	return "/login/" + string(r)
}

// Bucket is the storage bucket holding r's session keys.
func (r Realm) Bucket() string {
	return "session:" + string(r)
}

func (r Realm) String() string {
	return string(r)
}
