package store

import (
	"encoding/json"
	"time"
)

// User is the external collaborator record. Only id, name, and email are
// authoritative here; everything else about a user lives elsewhere.
type User struct {
	ID          string
	DisplayName string
	Email       string
	CreatedAt   time.Time
}

type Folder struct {
	ID        string
	Name      string
	OwnerID   string
	ParentID  *string
	SortOrder int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PathEntry is one step of a root-to-folder path.
type PathEntry struct {
	ID   string
	Name string
}

type Note struct {
	ID         string
	Title      string
	Content    string
	OwnerID    string
	FolderID   *string
	Visibility string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NotePatch is a field-level partial update. Nil fields are left untouched.
type NotePatch struct {
	Title      *string
	Content    *string
	Visibility *string
}

type NotePermission struct {
	ID        string
	NoteID    string
	UserID    string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
	// Joined fields for API responses; nil when the user record is missing
	UserName  *string
	UserEmail *string
}

// Comment belongs to the external comment subsystem. The body is opaque
// jsonb; this core only touches comments during a note's cascade delete.
type Comment struct {
	ID        string
	NoteID    string
	AuthorID  string
	Body      json.RawMessage
	CreatedAt time.Time
}

// ActivityEvent is append-only: inserted, never updated, bulk-deleted only
// as part of a note's cascade.
type ActivityEvent struct {
	ID        int64
	NoteID    string
	Type      string
	ActorID   string
	Metadata  json.RawMessage
	CreatedAt time.Time
	// Joined fields for API responses; nil when the actor record is missing
	ActorName  *string
	ActorEmail *string
}

const (
	VisibilityPrivate = "private"
	VisibilityShared  = "shared"
	VisibilityPublic  = "public"
)

func ValidVisibility(v string) bool {
	return v == VisibilityPrivate || v == VisibilityShared || v == VisibilityPublic
}
