package internal

import (
	"fmt"
	"strings"
	"time"
)

// OwnerKind distinguishes authenticated users from anonymous guests.
type OwnerKind string

const (
	OwnerUser  OwnerKind = "user"
	OwnerGuest OwnerKind = "guest"
)

// OwnerKey identifies who a session belongs to. Exactly one kind applies.
type OwnerKey struct {
	Kind OwnerKind
	ID   string
}

// UserOwner returns the owner key for an authenticated user id.
func UserOwner(id string) OwnerKey {
	return OwnerKey{Kind: OwnerUser, ID: id}
}

// GuestOwner returns the owner key for an anonymous session token.
func GuestOwner(token string) OwnerKey {
	return OwnerKey{Kind: OwnerGuest, ID: token}
}

// Validate reports whether the key names a usable owner.
func (o OwnerKey) Validate() error {
	if o.Kind != OwnerUser && o.Kind != OwnerGuest {
		return &ValidationError{Field: "owner", Reason: fmt.Sprintf("unknown owner kind %q", o.Kind)}
	}
	if strings.TrimSpace(o.ID) == "" {
		return &ValidationError{Field: "owner", Reason: "empty owner id"}
	}
	return nil
}

// IsGuest reports whether the owner is anonymous.
func (o OwnerKey) IsGuest() bool {
	return o.Kind == OwnerGuest
}

func (o OwnerKey) String() string {
	return string(o.Kind) + ":" + o.ID
}

// columns returns the (user_id, anon_token) pair stored for this owner.
func (o OwnerKey) columns() (userID, anonToken any) {
	if o.IsGuest() {
		return nil, o.ID
	}
	return o.ID, nil
}

// Role is the author of a message.
type Role string

const (
	RoleHuman Role = "HUMAN"
	RoleAI    Role = "AI"
	RoleTool  Role = "TOOL"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleHuman, RoleAI, RoleTool:
		return true
	}
	return false
}

// Session is one conversation owned by a single owner key.
type Session struct {
	ID        int64     `json:"id" yaml:"id"`
	Owner     OwnerKey  `json:"-" yaml:"-"`
	Title     string    `json:"title" yaml:"title"`
	Rank      int       `json:"rank" yaml:"rank"`
	Pinned    bool      `json:"pinned" yaml:"pinned"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Message is one turn entry in a session's log.
type Message struct {
	ID        int64     `json:"id" yaml:"id"`
	SessionID int64     `json:"session_id" yaml:"session_id"`
	Role      Role      `json:"role" yaml:"role"`
	Sequence  int64     `json:"sequence" yaml:"sequence"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Transcript is a session together with its ordered messages.
type Transcript struct {
	Session  *Session  `json:"session" yaml:"session"`
	Messages []Message `json:"messages" yaml:"messages"`
}

const (
	defaultUserTitle  = "New Chat"
	defaultGuestTitle = "Guest Chat"
)

// DefaultTitle is the title given to a session created on first use.
func DefaultTitle(owner OwnerKey) string {
	if owner.IsGuest() {
		return defaultGuestTitle
	}
	return defaultUserTitle
}

// NumberedTitle is the title given to a session created by an explicit "new chat".
func NumberedTitle(owner OwnerKey, n int) string {
	return fmt.Sprintf("%s %d", DefaultTitle(owner), n)
}
