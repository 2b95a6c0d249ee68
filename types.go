package portalAuth

import (
	"fmt"
	"strings"
	"time"
)

// Role defines a public type used by portalAuth APIs.
//
// A Role is assigned once at signup and stays fixed for the lifetime of a session.
// The zero value means "no role required" when handed to the route guard.
type Role string

const (
	// RoleStudent is an exported constant or variable used by the session store.
	RoleStudent Role = "student"
	// RoleTeacher is an exported constant or variable used by the session store.
	RoleTeacher Role = "teacher"
	// RoleCommittee is an exported constant or variable used by the session store.
	RoleCommittee Role = "committee"
)

// Roles lists every assignable role in display order.
func Roles() []Role {
	return []Role{RoleStudent, RoleTeacher, RoleCommittee}
}

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleCommittee:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// ParseRole describes the parserole operation and its observable behavior.
//
// ParseRole trims and lower-cases raw before matching. Unknown values return an error
// wrapping [ErrInvalidInput].
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
	return r, nil
}

// SocialLinks holds optional profile links. Empty strings mean "not set".
type SocialLinks struct {
	Website  string `json:"website,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	GitHub   string `json:"github,omitempty"`
	Twitter  string `json:"twitter,omitempty"`
}

// UserProfile defines a public type used by portalAuth APIs.
//
// UserProfile is the application-level record for an authenticated identity. ID equals
// the provider identity id. Role is authoritative for routing.
type UserProfile struct {
	ID              string      `json:"id"`
	Email           string      `json:"email"`
	DisplayName     string      `json:"display_name"`
	Role            Role        `json:"role"`
	Department      string      `json:"department,omitempty"`
	Phone           string      `json:"phone,omitempty"`
	Bio             string      `json:"bio,omitempty"`
	ProfileImageURL string      `json:"profile_image_url,omitempty"`
	SocialLinks     SocialLinks `json:"social_links"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// ProfileUpdate defines a public type used by portalAuth APIs.
//
// Nil fields are left untouched. There is intentionally no Role field: role changes
// are not a session operation.
type ProfileUpdate struct {
	DisplayName     *string      `json:"display_name,omitempty"`
	Department      *string      `json:"department,omitempty"`
	Phone           *string      `json:"phone,omitempty"`
	Bio             *string      `json:"bio,omitempty"`
	ProfileImageURL *string      `json:"profile_image_url,omitempty"`
	SocialLinks     *SocialLinks `json:"social_links,omitempty"`
}

// IsEmpty reports whether the update carries no field at all.
func (u ProfileUpdate) IsEmpty() bool {
	return u.DisplayName == nil &&
		u.Department == nil &&
		u.Phone == nil &&
		u.Bio == nil &&
		u.ProfileImageURL == nil &&
		u.SocialLinks == nil
}

// ApplyTo returns p with every non-nil field of u merged in. ID, Email and Role are
// never touched.
func (u ProfileUpdate) ApplyTo(p UserProfile) UserProfile {
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.Department != nil {
		p.Department = *u.Department
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	if u.Bio != nil {
		p.Bio = *u.Bio
	}
	if u.ProfileImageURL != nil {
		p.ProfileImageURL = *u.ProfileImageURL
	}
	if u.SocialLinks != nil {
		p.SocialLinks = *u.SocialLinks
	}
	return p
}

// Session defines a public type used by portalAuth APIs.
//
// Session is an immutable snapshot of the store. User is nil when nobody is signed in.
// Version increases by one on every published change, so observers can drop anything
// older than what they already rendered.
type Session struct {
	User      *UserProfile `json:"user"`
	IsLoading bool         `json:"is_loading"`
	LastError string       `json:"last_error,omitempty"`
	Version   uint64       `json:"version"`
}

// Authenticated reports whether a user profile is present.
func (s Session) Authenticated() bool {
	return s.User != nil
}

// Role returns the signed-in user's role, or "" when nobody is signed in.
func (s Session) Role() Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// Identity is what the identity provider knows about an authenticated principal.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// SignUpAttributes carries the profile fields recorded at account creation.
type SignUpAttributes struct {
	DisplayName string
	Role        Role
}

// SessionEventKind defines a public type used by portalAuth APIs.
type SessionEventKind uint8

const (
	// EventSignedIn is an exported constant or variable used by the session store.
	EventSignedIn SessionEventKind = iota + 1
	// EventSignedOut is an exported constant or variable used by the session store.
	EventSignedOut
	// EventTokenRefreshed is an exported constant or variable used by the session store.
	EventTokenRefreshed
	// EventUserUpdated is an exported constant or variable used by the session store.
	EventUserUpdated
)

var eventKindNames = map[SessionEventKind]string{
	EventSignedIn:       "signed_in",
	EventSignedOut:      "signed_out",
	EventTokenRefreshed: "token_refreshed",
	EventUserUpdated:    "user_updated",
}

func (k SessionEventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseSessionEventKind maps a wire name back to its kind.
func ParseSessionEventKind(name string) (SessionEventKind, bool) {
	for k, n := range eventKindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// SessionEvent is one provider-pushed authentication state change. Identity is nil
// for EventSignedOut.
type SessionEvent struct {
	Kind     SessionEventKind
	Identity *Identity
	At       time.Time
}
