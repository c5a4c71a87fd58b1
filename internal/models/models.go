// Package models defines the domain records the core stores and syncs.
//
// Records are flat JSON structures with last-write-wins semantics: each field
// can be updated independently and the updated_at timestamp resolves
// conflicts. Record bodies that the client encrypts before handing them to
// the core travel through as opaque strings; the core never inspects
// ciphertext.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type tags a record with the entity it represents. The tag is the routing
// key for the generic profile:sync:model command.
type Type string

const (
	TypeUser   Type = "user"
	TypeSpace  Type = "space"
	TypeBoard  Type = "board"
	TypeNote   Type = "note"
	TypeInvite Type = "invite"
)

// Valid reports whether t is a known entity type.
func (t Type) Valid() bool {
	switch t {
	case TypeUser, TypeSpace, TypeBoard, TypeNote, TypeInvite:
		return true
	}
	return false
}

// Model is implemented by every syncable record.
type Model interface {
	// ModelType returns the entity tag.
	ModelType() Type
	// ModelID returns the record id, assigning one if empty.
	ModelID() string
	// Validate checks required fields.
	Validate() error
}

// NewID returns a fresh record id.
func NewID() string {
	return uuid.NewString()
}

// User is the account record. The auth field is a derived credential, never
// the password itself.
type User struct {
	ID       string         `json:"id"`
	Username string         `json:"username"`
	Auth     string         `json:"auth,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) ModelType() Type { return TypeUser }

func (u *User) ModelID() string {
	if u.ID == "" {
		u.ID = NewID()
	}
	return u.ID
}

func (u *User) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}

// Space is the top-level container for boards and notes.
type Space struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Color  string `json:"color,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Space) ModelType() Type { return TypeSpace }

func (s *Space) ModelID() string {
	if s.ID == "" {
		s.ID = NewID()
	}
	return s.ID
}

func (s *Space) Validate() error {
	if s.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// Board groups notes inside a space.
type Board struct {
	ID      string `json:"id"`
	SpaceID string `json:"space_id"`
	UserID  string `json:"user_id"`
	Title   string `json:"title"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Board) ModelType() Type { return TypeBoard }

func (b *Board) ModelID() string {
	if b.ID == "" {
		b.ID = NewID()
	}
	return b.ID
}

func (b *Board) Validate() error {
	if b.SpaceID == "" {
		return fmt.Errorf("space_id is required")
	}
	if b.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// Note is the main content record.
type Note struct {
	ID      string `json:"id"`
	SpaceID string `json:"space_id"`
	BoardID string `json:"board_id,omitempty"`
	UserID  string `json:"user_id"`

	Title string   `json:"title,omitempty"`
	Body  string   `json:"body,omitempty"`
	URL   string   `json:"url,omitempty"`
	Tags  []string `json:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (n *Note) ModelType() Type { return TypeNote }

func (n *Note) ModelID() string {
	if n.ID == "" {
		n.ID = NewID()
	}
	return n.ID
}

func (n *Note) Validate() error {
	if n.SpaceID == "" {
		return fmt.Errorf("space_id is required")
	}
	return nil
}

// Invite shares a space with another account.
type Invite struct {
	ID         string `json:"id"`
	SpaceID    string `json:"space_id"`
	FromUserID string `json:"from_user_id"`
	ToUser     string `json:"to_user"`
	Role       string `json:"role,omitempty"`
	Token      string `json:"token,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i *Invite) ModelType() Type { return TypeInvite }

func (i *Invite) ModelID() string {
	if i.ID == "" {
		i.ID = NewID()
	}
	return i.ID
}

func (i *Invite) Validate() error {
	if i.SpaceID == "" {
		return fmt.Errorf("space_id is required")
	}
	if i.ToUser == "" {
		return fmt.Errorf("to_user is required")
	}
	return nil
}

// New returns an empty record of the given type, or nil for an unknown tag.
func New(t Type) Model {
	switch t {
	case TypeUser:
		return &User{}
	case TypeSpace:
		return &Space{}
	case TypeBoard:
		return &Board{}
	case TypeNote:
		return &Note{}
	case TypeInvite:
		return &Invite{}
	}
	return nil
}
