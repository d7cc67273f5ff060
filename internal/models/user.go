package models

// Roles understood by the dashboard.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // don’t expose hash
	Role         string `json:"role"`
}

// Identity is the authenticated principal carried by a token.
type Identity struct {
	UserID int    `json:"userId"`
	Role   string `json:"role"`
}

// IsAdmin reports whether the identity has the administrative role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
