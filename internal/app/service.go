package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"notable/api/internal/access"
	"notable/api/internal/config"
	"notable/api/internal/permcache"
	"notable/api/internal/store"
	"notable/api/internal/util"
)

type CreateUserInput struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type CreateFolderInput struct {
	Name     string  `json:"name"`
	OwnerID  string  `json:"ownerId"`
	ParentID *string `json:"parentId"`
}

type UpdateFolderInput struct {
	Name *string `json:"name"`
}

type MoveFolderInput struct {
	NewParentID *string `json:"parentId"`
}

type ReorderFolderInput struct {
	NewIndex int `json:"order"`
}

type CreateNoteInput struct {
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	OwnerID  string  `json:"ownerId"`
	FolderID *string `json:"folderId"`
}

type UpdateNoteInput struct {
	Title      *string `json:"title"`
	Content    *string `json:"content"`
	Visibility *string `json:"visibility"`
	ActorID    string  `json:"actorId"`
}

type ForkNoteInput struct {
	UserID string `json:"userId"`
}

type GrantPermissionInput struct {
	UserID  string `json:"userId"`
	Role    string `json:"role"`
	ActorID string `json:"actorId"`
}

type LogActivityInput struct {
	Type     string         `json:"type"`
	ActorID  string         `json:"actorId"`
	Metadata map[string]any `json:"metadata"`
}

type dataStore interface {
	EnsureUser(context.Context, store.User) (store.User, error)
	GetUserByID(context.Context, string) (*store.User, error)

	InsertFolder(context.Context, store.Folder) error
	GetFolder(context.Context, string) (*store.Folder, error)
	ListFoldersByOwner(context.Context, string) ([]store.Folder, error)
	RenameFolder(context.Context, string, *string) error
	MoveFolder(context.Context, string, *string) error
	ReorderFolder(context.Context, string, int) error
	DeleteFolder(context.Context, string) error
	FolderPath(context.Context, string) ([]store.PathEntry, error)

	InsertNoteWithOwner(context.Context, store.Note, store.NotePermission, *store.ActivityEvent) error
	GetNote(context.Context, string) (*store.Note, error)
	UpdateNote(context.Context, string, store.NotePatch, *store.ActivityEvent) (bool, error)
	ListUserNotes(context.Context, string) ([]store.Note, error)
	DeleteNoteCascade(context.Context, string) (bool, error)

	UpsertPermission(context.Context, store.NotePermission, *store.ActivityEvent) (string, error)
	DeletePermission(context.Context, string, string, *store.ActivityEvent) (bool, error)
	GetPermission(context.Context, string, string) (*store.NotePermission, error)
	ListPermissions(context.Context, string) ([]store.NotePermission, error)

	InsertComment(context.Context, store.Comment) error
	CountNoteComments(context.Context, string) (int, error)

	InsertActivity(context.Context, store.ActivityEvent) (int64, error)
	ListNoteActivity(context.Context, string) ([]store.ActivityEvent, error)

	Ping(ctx context.Context) error
}

type Service struct {
	cfg   config.Config
	store dataStore
	cache *permcache.Cache
}

func New(cfg config.Config, dataStore dataStore) *Service {
	return &Service{cfg: cfg, store: dataStore}
}

// NewWithCache attaches a permission cache. The cache may be nil, in which
// case every access check goes to the store.
func NewWithCache(cfg config.Config, dataStore dataStore, cache *permcache.Cache) *Service {
	return &Service{cfg: cfg, store: dataStore, cache: cache}
}

func (s *Service) EnsureUser(ctx context.Context, input CreateUserInput) (map[string]any, error) {
	displayName := strings.TrimSpace(input.DisplayName)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if displayName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "displayName is required", nil)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a valid email is required", nil)
	}
	user, err := s.store.EnsureUser(ctx, store.User{
		ID:          util.NewID("usr"),
		DisplayName: displayName,
		Email:       email,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          user.ID,
		"displayName": user.DisplayName,
		"email":       user.Email,
		"createdAt":   user.CreatedAt.Format(time.RFC3339),
	}, nil
}

// Seed creates a small demo workspace on an empty store so a fresh
// deployment has something to show.
func (s *Service) Seed(ctx context.Context) error {
	owner, err := s.store.EnsureUser(ctx, store.User{
		ID:          util.NewID("usr"),
		DisplayName: "Avery",
		Email:       "avery@example.com",
	})
	if err != nil {
		return err
	}
	existing, err := s.store.ListFoldersByOwner(ctx, owner.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	inbox := store.Folder{ID: util.NewID("fld"), Name: "Inbox", OwnerID: owner.ID}
	if err := s.store.InsertFolder(ctx, inbox); err != nil {
		return err
	}
	projects := store.Folder{ID: util.NewID("fld"), Name: "Projects", OwnerID: owner.ID}
	if err := s.store.InsertFolder(ctx, projects); err != nil {
		return err
	}

	note := store.Note{
		ID:         util.NewID("note"),
		Title:      "Welcome to your workspace",
		Content:    "Organize notes in folders, share them with teammates, and publish the ones you want everyone to see.",
		OwnerID:    owner.ID,
		FolderID:   &inbox.ID,
		Visibility: store.VisibilityPrivate,
	}
	ownerPerm := store.NotePermission{
		ID:     util.NewID("perm"),
		NoteID: note.ID,
		UserID: owner.ID,
		Role:   string(access.RoleOwner),
	}
	return s.store.InsertNoteWithOwner(ctx, note, ownerPerm, nil)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
