package mockbackend

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/portalauth/internal/util"
	"github.com/jmcleod/portalauth/internal/uuid"
	"github.com/jmcleod/portalauth/session"
)

// User is an account known to the development backend.
type User struct {
	Realm        session.Realm
	Username     string
	Password     string
	Role         string
	Name         string
	Email        string
	Department   string
	Organization string
	Suspended    bool
}

type account struct {
	User
	id           string
	passwordHash []byte
}

// DefaultUsers is the demo account set served by the mock-server command.
func DefaultUsers() []User {
	return []User{
		{Realm: session.RealmAdmin, Username: "admin", Password: "admin123", Role: "ROLE_ADMIN", Name: "Portal Admin", Email: "admin@portal.local"},
		{Realm: session.RealmOrganization, Username: "acme", Password: "acme123", Role: "ORGANIZATION", Name: "Acme Payroll", Email: "payroll@acme.local", Organization: "Acme Corp"},
		{Realm: session.RealmEmployee, Username: "alice", Password: "pw", Role: "EMPLOYEE", Name: "Alice Smith", Email: "alice@acme.local", Department: "Finance", Organization: "Acme Corp"},
		{Realm: session.RealmEmployee, Username: "mallory", Password: "pw", Role: "EMPLOYEE", Name: "Mallory Jones", Email: "mallory@acme.local", Department: "Sales", Organization: "Acme Corp", Suspended: true},
	}
}

func newAccount(u User, cost int) (*account, error) {
	if !u.Realm.Valid() {
		return nil, fmt.Errorf("user %q: invalid realm %q", u.Username, u.Realm)
	}
	u.Username = util.NormalizeUsername(u.Username)
	if u.Username == "" {
		return nil, fmt.Errorf("user has empty username")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password for %q: %w", u.Username, err)
	}
	u.Password = ""
	return &account{User: u, id: uuid.New(), passwordHash: hash}, nil
}

func (a *account) checkPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
}
