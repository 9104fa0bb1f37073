package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"notable/api/internal/store"
	"notable/api/internal/util"
)

func folderPayload(folder store.Folder) map[string]any {
	return map[string]any{
		"id":        folder.ID,
		"name":      folder.Name,
		"ownerId":   folder.OwnerID,
		"parentId":  folder.ParentID,
		"sortOrder": folder.SortOrder,
		"createdAt": folder.CreatedAt.Format(time.RFC3339),
		"updatedAt": folder.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Service) CreateFolder(ctx context.Context, input CreateFolderInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if strings.TrimSpace(input.OwnerID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "ownerId is required", nil)
	}
	if input.ParentID != nil {
		parent, err := s.store.GetFolder(ctx, *input.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, domainError(http.StatusUnprocessableEntity, "PARENT_NOT_FOUND", "parent folder does not exist", nil)
		}
		if parent.OwnerID != input.OwnerID {
			return nil, domainError(http.StatusUnprocessableEntity, "PARENT_OWNER_MISMATCH", "parent folder belongs to a different owner", nil)
		}
	}

	folder := store.Folder{
		ID:       util.NewID("fld"),
		Name:     name,
		OwnerID:  input.OwnerID,
		ParentID: input.ParentID,
	}
	if err := s.store.InsertFolder(ctx, folder); err != nil {
		return nil, err
	}
	created, err := s.store.GetFolder(ctx, folder.ID)
	if err != nil {
		return nil, err
	}
	return folderPayload(*created), nil
}

func (s *Service) ListFolders(ctx context.Context, ownerID string) ([]map[string]any, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "ownerId is required", nil)
	}
	folders, err := s.store.ListFoldersByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(folders))
	for _, folder := range folders {
		items = append(items, folderPayload(folder))
	}
	return items, nil
}

// UpdateFolder renames a folder. Renaming a folder that does not exist is a
// no-op, matching the other lenient tree operations.
func (s *Service) UpdateFolder(ctx context.Context, folderID string, input UpdateFolderInput) (map[string]any, error) {
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name must not be empty", nil)
	}
	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		input.Name = &trimmed
	}
	if err := s.store.RenameFolder(ctx, folderID, input.Name); err != nil {
		return nil, err
	}
	folder, err := s.store.GetFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return map[string]any{"ok": true, "folderId": folderID}, nil
	}
	return folderPayload(*folder), nil
}

func (s *Service) MoveFolder(ctx context.Context, folderID string, input MoveFolderInput) (map[string]any, error) {
	err := s.store.MoveFolder(ctx, folderID, input.NewParentID)
	if errors.Is(err, store.ErrFolderCycle) {
		return nil, domainError(http.StatusUnprocessableEntity, "FOLDER_CYCLE", "cannot move a folder into its own subtree", map[string]any{
			"folderId": folderID,
		})
	}
	if err != nil {
		return nil, err
	}
	folder, err := s.store.GetFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return map[string]any{"ok": true, "folderId": folderID}, nil
	}
	return folderPayload(*folder), nil
}

func (s *Service) ReorderFolder(ctx context.Context, folderID string, input ReorderFolderInput) (map[string]any, error) {
	if err := s.store.ReorderFolder(ctx, folderID, input.NewIndex); err != nil {
		return nil, err
	}
	folder, err := s.store.GetFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return map[string]any{"ok": true, "folderId": folderID}, nil
	}
	return folderPayload(*folder), nil
}

// DeleteFolder removes the folder and promotes its contents one level up.
// Deleting a missing folder succeeds without effect.
func (s *Service) DeleteFolder(ctx context.Context, folderID string) (map[string]any, error) {
	if err := s.store.DeleteFolder(ctx, folderID); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "folderId": folderID}, nil
}

// FolderPath returns the chain of folders from the root down to folderID.
// An unknown folder yields an empty path rather than an error.
func (s *Service) FolderPath(ctx context.Context, folderID string) (map[string]any, error) {
	path, err := s.store.FolderPath(ctx, folderID)
	if err != nil {
		return nil, err
	}
	entries := make([]map[string]any, 0, len(path))
	for _, entry := range path {
		entries = append(entries, map[string]any{"id": entry.ID, "name": entry.Name})
	}
	return map[string]any{"folderId": folderID, "path": entries}, nil
}
