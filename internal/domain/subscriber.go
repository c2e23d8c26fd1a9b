package domain

import "time"

// Subscriber is a destination address owned independently of any
// broadcast. Inactive subscribers are excluded from group resolution.
type Subscriber struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BroadcastGroup is a named collection of subscribers. At most one
// group per owner carries IsDefault, and the default group can never
// be deleted.
type BroadcastGroup struct {
	ID          string    `json:"id" db:"id"`
	OwnerID     string    `json:"owner_id" db:"owner_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	IsDefault   bool      `json:"is_default" db:"is_default"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Identity is the caller identity injected by the upstream auth layer.
// Authentication itself is outside this engine; handlers only check
// ownership or an elevated role.
type Identity struct {
	UserID string
	Role   string
}

// ElevatedRoles may act on broadcasts they do not own.
var ElevatedRoles = map[string]bool{"admin": true, "owner": true}

// CanAccess reports whether the identity may act on a resource owned
// by ownerID.
func (id Identity) CanAccess(ownerID string) bool {
	return id.UserID == ownerID || ElevatedRoles[id.Role]
}
