package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"notable/api/internal/access"
	"notable/api/internal/activity"
	"notable/api/internal/store"
	"notable/api/internal/util"
)

func notePayload(note store.Note) map[string]any {
	return map[string]any{
		"id":         note.ID,
		"title":      note.Title,
		"content":    note.Content,
		"ownerId":    note.OwnerID,
		"folderId":   note.FolderID,
		"visibility": note.Visibility,
		"createdAt":  note.CreatedAt.Format(time.RFC3339),
		"updatedAt":  note.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Service) CreateNote(ctx context.Context, input CreateNoteInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if strings.TrimSpace(input.OwnerID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "ownerId is required", nil)
	}
	if input.FolderID != nil {
		folder, err := s.store.GetFolder(ctx, *input.FolderID)
		if err != nil {
			return nil, err
		}
		if folder == nil {
			return nil, domainError(http.StatusUnprocessableEntity, "FOLDER_NOT_FOUND", "folder does not exist", nil)
		}
		if folder.OwnerID != input.OwnerID {
			return nil, domainError(http.StatusUnprocessableEntity, "FOLDER_OWNER_MISMATCH", "folder belongs to a different owner", nil)
		}
	}

	note := store.Note{
		ID:         util.NewID("note"),
		Title:      title,
		Content:    input.Content,
		OwnerID:    input.OwnerID,
		FolderID:   input.FolderID,
		Visibility: store.VisibilityPrivate,
	}
	ownerPerm := store.NotePermission{
		ID:     util.NewID("perm"),
		NoteID: note.ID,
		UserID: note.OwnerID,
		Role:   string(access.RoleOwner),
	}
	if err := s.store.InsertNoteWithOwner(ctx, note, ownerPerm, nil); err != nil {
		return nil, err
	}
	created, err := s.store.GetNote(ctx, note.ID)
	if err != nil {
		return nil, err
	}
	return notePayload(*created), nil
}

func (s *Service) GetNote(ctx context.Context, noteID string) (map[string]any, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "note not found", nil)
	}
	commentCount, err := s.store.CountNoteComments(ctx, noteID)
	if err != nil {
		return nil, err
	}
	payload := notePayload(*note)
	payload["commentCount"] = commentCount
	return payload, nil
}

// GetPublicNote serves the unauthenticated read path. Anything that is not
// public looks exactly like a missing note.
func (s *Service) GetPublicNote(ctx context.Context, noteID string) (map[string]any, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note == nil || note.Visibility != store.VisibilityPublic {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "note not found", nil)
	}
	return notePayload(*note), nil
}

func (s *Service) ListUserNotes(ctx context.Context, userID string) ([]map[string]any, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId is required", nil)
	}
	notes, err := s.store.ListUserNotes(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(notes))
	for _, note := range notes {
		items = append(items, notePayload(note))
	}
	return items, nil
}

// UpdateNote patches the note and records an edit event naming the changed
// fields in the same transaction. Updating a missing note is a hard 404.
func (s *Service) UpdateNote(ctx context.Context, noteID string, input UpdateNoteInput) (map[string]any, error) {
	if input.Visibility != nil && !store.ValidVisibility(*input.Visibility) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "visibility must be private, shared, or public", nil)
	}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title must not be empty", nil)
	}

	fields := make([]string, 0, 3)
	if input.Title != nil {
		fields = append(fields, "title")
	}
	if input.Content != nil {
		fields = append(fields, "content")
	}
	if input.Visibility != nil {
		fields = append(fields, "visibility")
	}
	metadata, err := activity.Encode(activity.EditMetadata{Fields: fields})
	if err != nil {
		return nil, err
	}
	event := &store.ActivityEvent{
		NoteID:   noteID,
		Type:     string(activity.TypeEdit),
		ActorID:  input.ActorID,
		Metadata: metadata,
	}

	patch := store.NotePatch{Title: input.Title, Content: input.Content, Visibility: input.Visibility}
	updated, err := s.store.UpdateNote(ctx, noteID, patch, event)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "note not found", nil)
	}
	if input.Visibility != nil {
		if err := s.cache.Invalidate(ctx, noteID); err != nil {
			return nil, err
		}
	}
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	return notePayload(*note), nil
}

// DeleteNote removes the note with all of its permissions, comments, and
// activity. Deleting a missing note succeeds without effect.
func (s *Service) DeleteNote(ctx context.Context, noteID string) (map[string]any, error) {
	deleted, err := s.store.DeleteNoteCascade(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if deleted {
		if err := s.cache.Invalidate(ctx, noteID); err != nil {
			return nil, err
		}
	}
	return map[string]any{"ok": true, "noteId": noteID}, nil
}

// ForkNote copies the note's current title and content into a fresh private
// note owned by the forking user. The fork event lands on the new note and
// points back at the source.
func (s *Service) ForkNote(ctx context.Context, noteID string, input ForkNoteInput) (map[string]any, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId is required", nil)
	}
	source, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "note not found", nil)
	}

	fork := store.Note{
		ID:         util.NewID("note"),
		Title:      source.Title,
		Content:    source.Content,
		OwnerID:    input.UserID,
		Visibility: store.VisibilityPrivate,
	}
	ownerPerm := store.NotePermission{
		ID:     util.NewID("perm"),
		NoteID: fork.ID,
		UserID: input.UserID,
		Role:   string(access.RoleOwner),
	}
	metadata, err := activity.Encode(activity.ForkMetadata{SourceNoteID: source.ID})
	if err != nil {
		return nil, err
	}
	event := &store.ActivityEvent{
		NoteID:   fork.ID,
		Type:     string(activity.TypeFork),
		ActorID:  input.UserID,
		Metadata: metadata,
	}
	if err := s.store.InsertNoteWithOwner(ctx, fork, ownerPerm, event); err != nil {
		return nil, err
	}
	created, err := s.store.GetNote(ctx, fork.ID)
	if err != nil {
		return nil, err
	}
	payload := notePayload(*created)
	payload["sourceNoteId"] = source.ID
	return payload, nil
}
