package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role int

const (
	RoleUser Role = iota
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "USER"
	case RoleAdmin:
		return "ADMIN"
	default:
		return "UNKNOWN"
	}
}

func (r Role) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

func (r *Role) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}
	parsed, err := ParseRole(str)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func ParseRole(s string) (Role, error) {
	switch s {
	case "USER":
		return RoleUser, nil
	case "ADMIN":
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("unknown role: %s", s)
	}
}

// User is a principal of the exchange. APIKey is the bearer credential and
// is returned to the caller exactly once, on registration.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"-"`
}

func NewUser(name string, role Role) *User {
	return &User{
		ID:        uuid.New(),
		Name:      name,
		Role:      role,
		APIKey:    NewAPIKey(),
		CreatedAt: time.Now().UTC(),
	}
}

// NewAPIKey mints a 32-character hex credential.
func NewAPIKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
