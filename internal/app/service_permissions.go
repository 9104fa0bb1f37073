package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"notable/api/internal/access"
	"notable/api/internal/activity"
	"notable/api/internal/permcache"
	"notable/api/internal/store"
	"notable/api/internal/util"
)

func permissionPayload(perm store.NotePermission) map[string]any {
	payload := map[string]any{
		"id":        perm.ID,
		"noteId":    perm.NoteID,
		"userId":    perm.UserID,
		"role":      perm.Role,
		"createdAt": perm.CreatedAt.Format(time.RFC3339),
		"updatedAt": perm.UpdatedAt.Format(time.RFC3339),
	}
	if perm.UserName != nil {
		payload["userName"] = *perm.UserName
	}
	if perm.UserEmail != nil {
		payload["userEmail"] = *perm.UserEmail
	}
	return payload
}

// GrantPermission creates or overwrites the single permission row for the
// target user. Granting on a missing note is a hard 404.
func (s *Service) GrantPermission(ctx context.Context, noteID string, input GrantPermissionInput) (map[string]any, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId is required", nil)
	}
	if !access.Valid(input.Role) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "role must be owner, editor, or viewer", nil)
	}
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "note not found", nil)
	}

	metadata, err := activity.Encode(activity.PermissionMetadata{
		Action:       "grant",
		TargetUserID: input.UserID,
		Role:         input.Role,
	})
	if err != nil {
		return nil, err
	}
	event := &store.ActivityEvent{
		NoteID:   noteID,
		Type:     string(activity.TypePermission),
		ActorID:  input.ActorID,
		Metadata: metadata,
	}
	permID, err := s.store.UpsertPermission(ctx, store.NotePermission{
		ID:     util.NewID("perm"),
		NoteID: noteID,
		UserID: input.UserID,
		Role:   input.Role,
	}, event)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Invalidate(ctx, noteID); err != nil {
		return nil, err
	}
	perm, err := s.store.GetPermission(ctx, noteID, input.UserID)
	if err != nil {
		return nil, err
	}
	if perm == nil {
		return map[string]any{"id": permID, "noteId": noteID, "userId": input.UserID, "role": input.Role}, nil
	}
	return permissionPayload(*perm), nil
}

// RevokePermission removes the target user's grant. Revoking a grant that
// does not exist succeeds without effect and logs nothing.
func (s *Service) RevokePermission(ctx context.Context, noteID, userID, actorID string) (map[string]any, error) {
	metadata, err := activity.Encode(activity.PermissionMetadata{
		Action:       "revoke",
		TargetUserID: userID,
	})
	if err != nil {
		return nil, err
	}
	event := &store.ActivityEvent{
		NoteID:   noteID,
		Type:     string(activity.TypePermission),
		ActorID:  actorID,
		Metadata: metadata,
	}
	revoked, err := s.store.DeletePermission(ctx, noteID, userID, event)
	if err != nil {
		return nil, err
	}
	if revoked {
		if err := s.cache.Invalidate(ctx, noteID); err != nil {
			return nil, err
		}
	}
	return map[string]any{"ok": true, "noteId": noteID, "userId": userID, "revoked": revoked}, nil
}

func (s *Service) ListNotePermissions(ctx context.Context, noteID string) ([]map[string]any, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "note not found", nil)
	}
	perms, err := s.store.ListPermissions(ctx, noteID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(perms))
	for _, perm := range perms {
		items = append(items, permissionPayload(perm))
	}
	return items, nil
}

// resolveAccess computes the user's effective role on a note. Ownership wins
// over an explicit grant, which wins over the public-visibility fallback.
// A missing note resolves to no access rather than an error.
func (s *Service) resolveAccess(ctx context.Context, noteID, userID string) (permcache.Access, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return permcache.Access{}, err
	}
	if note == nil {
		return permcache.Access{}, nil
	}
	if note.OwnerID == userID {
		role := string(access.RoleOwner)
		return permcache.Access{HasAccess: true, Role: &role}, nil
	}
	perm, err := s.store.GetPermission(ctx, noteID, userID)
	if err != nil {
		return permcache.Access{}, err
	}
	if perm != nil {
		role := string(access.Normalize(perm.Role))
		return permcache.Access{HasAccess: true, Role: &role}, nil
	}
	if note.Visibility == store.VisibilityPublic {
		role := string(access.RoleViewer)
		return permcache.Access{HasAccess: true, Role: &role}, nil
	}
	return permcache.Access{}, nil
}

// ResolveAccess reads through the permission cache. Cache failures on the
// read path degrade to a store lookup; invalidation failures elsewhere are
// surfaced, so a reachable cache never serves revoked access.
func (s *Service) ResolveAccess(ctx context.Context, noteID, userID string) (permcache.Access, error) {
	if cached, ok, err := s.cache.Get(ctx, noteID, userID); err == nil && ok {
		return cached, nil
	}
	resolved, err := s.resolveAccess(ctx, noteID, userID)
	if err != nil {
		return permcache.Access{}, err
	}
	_ = s.cache.Put(ctx, noteID, userID, resolved)
	return resolved, nil
}

func (s *Service) CheckAccess(ctx context.Context, noteID, userID string) (map[string]any, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId is required", nil)
	}
	resolved, err := s.ResolveAccess(ctx, noteID, userID)
	if err != nil {
		return nil, err
	}
	return accessPayload(noteID, userID, resolved), nil
}

// Can reports whether a role may perform an action.
func (s *Service) Can(role access.Role, action access.Action) bool {
	return access.Can(role, action)
}

func accessPayload(noteID, userID string, a permcache.Access) map[string]any {
	var role any
	if a.Role != nil {
		role = *a.Role
	}
	return map[string]any{
		"noteId":    noteID,
		"userId":    userID,
		"hasAccess": a.HasAccess,
		"role":      role,
	}
}
