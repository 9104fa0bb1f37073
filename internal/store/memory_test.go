package store

import (
	"context"
	"errors"
	"testing"
)

func newTestFolder(t *testing.T, s *MemoryStore, id, owner string, parentID *string) Folder {
	t.Helper()
	folder := Folder{ID: id, Name: "folder " + id, OwnerID: owner, ParentID: parentID}
	if err := s.InsertFolder(context.Background(), folder); err != nil {
		t.Fatalf("insert folder %s: %v", id, err)
	}
	return folder
}

func newTestNote(t *testing.T, s *MemoryStore, id, owner string) Note {
	t.Helper()
	note := Note{ID: id, Title: "note " + id, OwnerID: owner, Visibility: VisibilityPrivate}
	perm := NotePermission{ID: "perm_" + id, NoteID: id, UserID: owner, Role: "owner"}
	if err := s.InsertNoteWithOwner(context.Background(), note, perm, nil); err != nil {
		t.Fatalf("insert note %s: %v", id, err)
	}
	return note
}

func TestMoveFolderRejectsCycleAndLeavesFolderUnchanged(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	newTestFolder(t, s, "fld_a", "usr_1", nil)
	newTestFolder(t, s, "fld_b", "usr_1", strPtr("fld_a"))
	newTestFolder(t, s, "fld_c", "usr_1", strPtr("fld_b"))

	before, err := s.GetFolder(ctx, "fld_a")
	if err != nil {
		t.Fatalf("get folder: %v", err)
	}

	if err := s.MoveFolder(ctx, "fld_a", strPtr("fld_c")); !errors.Is(err, ErrFolderCycle) {
		t.Fatalf("expected ErrFolderCycle, got %v", err)
	}
	if err := s.MoveFolder(ctx, "fld_a", strPtr("fld_a")); !errors.Is(err, ErrFolderCycle) {
		t.Fatalf("expected ErrFolderCycle for self-parent, got %v", err)
	}

	after, err := s.GetFolder(ctx, "fld_a")
	if err != nil {
		t.Fatalf("get folder: %v", err)
	}
	if after.ParentID != before.ParentID || after.SortOrder != before.SortOrder {
		t.Fatalf("rejected move changed folder: before=%+v after=%+v", before, after)
	}
}

func TestMoveFolderAppendsToNewSiblingGroup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	newTestFolder(t, s, "fld_root", "usr_1", nil)
	newTestFolder(t, s, "fld_x", "usr_1", strPtr("fld_root"))
	newTestFolder(t, s, "fld_y", "usr_1", nil)

	if err := s.MoveFolder(ctx, "fld_y", strPtr("fld_root")); err != nil {
		t.Fatalf("move folder: %v", err)
	}
	moved, err := s.GetFolder(ctx, "fld_y")
	if err != nil {
		t.Fatalf("get folder: %v", err)
	}
	if moved.ParentID == nil || *moved.ParentID != "fld_root" {
		t.Fatalf("expected parent fld_root, got %v", moved.ParentID)
	}
	if moved.SortOrder != 1 {
		t.Fatalf("expected sort order 1 after existing sibling, got %d", moved.SortOrder)
	}
}

func TestReorderFolderPlacesFolderAtClampedIndex(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"fld_1", "fld_2", "fld_3", "fld_4"} {
		newTestFolder(t, s, id, "usr_1", nil)
	}

	tests := []struct {
		name     string
		folderID string
		newIndex int
		want     []string
	}{
		{"forward", "fld_1", 2, []string{"fld_2", "fld_3", "fld_1", "fld_4"}},
		{"past end clamps to last", "fld_2", 99, []string{"fld_3", "fld_1", "fld_4", "fld_2"}},
		{"negative clamps to zero", "fld_4", -5, []string{"fld_4", "fld_3", "fld_1", "fld_2"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := s.ReorderFolder(ctx, tc.folderID, tc.newIndex); err != nil {
				t.Fatalf("reorder: %v", err)
			}
			items, err := s.ListFoldersByOwner(ctx, "usr_1")
			if err != nil {
				t.Fatalf("list folders: %v", err)
			}
			for i, want := range tc.want {
				if items[i].ID != want {
					t.Fatalf("position %d: got %s, want %s (full: %+v)", i, items[i].ID, want, items)
				}
				if items[i].SortOrder != i {
					t.Fatalf("expected dense sort order %d for %s, got %d", i, items[i].ID, items[i].SortOrder)
				}
			}
		})
	}
}

func TestDeleteFolderPromotesChildrenAndNotes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	newTestFolder(t, s, "fld_top", "usr_1", nil)
	newTestFolder(t, s, "fld_mid", "usr_1", strPtr("fld_top"))
	newTestFolder(t, s, "fld_leaf", "usr_1", strPtr("fld_mid"))
	note := Note{ID: "note_1", Title: "filed note", OwnerID: "usr_1", FolderID: strPtr("fld_mid"), Visibility: VisibilityPrivate}
	perm := NotePermission{ID: "perm_note_1", NoteID: note.ID, UserID: note.OwnerID, Role: "owner"}
	if err := s.InsertNoteWithOwner(ctx, note, perm, nil); err != nil {
		t.Fatalf("insert note: %v", err)
	}

	if err := s.DeleteFolder(ctx, "fld_mid"); err != nil {
		t.Fatalf("delete folder: %v", err)
	}

	if folder, _ := s.GetFolder(ctx, "fld_mid"); folder != nil {
		t.Fatal("deleted folder still present")
	}
	leaf, _ := s.GetFolder(ctx, "fld_leaf")
	if leaf.ParentID == nil || *leaf.ParentID != "fld_top" {
		t.Fatalf("child folder not promoted, parent=%v", leaf.ParentID)
	}
	got, _ := s.GetNote(ctx, note.ID)
	if got.FolderID == nil || *got.FolderID != "fld_top" {
		t.Fatalf("note not promoted, folder=%v", got.FolderID)
	}
	items, _ := s.ListFoldersByOwner(ctx, "usr_1")
	for _, item := range items {
		if item.ParentID != nil && *item.ParentID == "fld_mid" {
			t.Fatalf("folder %s still references deleted parent", item.ID)
		}
	}
}

func TestDeleteFolderPromotesRootChildrenToRoot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	newTestFolder(t, s, "fld_parent", "usr_1", nil)
	newTestFolder(t, s, "fld_child", "usr_1", strPtr("fld_parent"))

	if err := s.DeleteFolder(ctx, "fld_parent"); err != nil {
		t.Fatalf("delete folder: %v", err)
	}
	child, _ := s.GetFolder(ctx, "fld_child")
	if child.ParentID != nil {
		t.Fatalf("expected root parent, got %v", *child.ParentID)
	}
}

func TestDeleteNoteCascadeRemovesAllRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	note := newTestNote(t, s, "note_1", "usr_1")
	if _, err := s.UpsertPermission(ctx, NotePermission{ID: "perm_2", NoteID: note.ID, UserID: "usr_2", Role: "viewer"}, nil); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := s.InsertComment(ctx, Comment{ID: "cmt_1", NoteID: note.ID, AuthorID: "usr_2"}); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if _, err := s.InsertActivity(ctx, ActivityEvent{NoteID: note.ID, Type: "edit", ActorID: "usr_1"}); err != nil {
		t.Fatalf("activity: %v", err)
	}

	deleted, err := s.DeleteNoteCascade(ctx, note.ID)
	if err != nil {
		t.Fatalf("delete note: %v", err)
	}
	if !deleted {
		t.Fatal("expected deleted=true")
	}

	if got, _ := s.GetNote(ctx, note.ID); got != nil {
		t.Fatal("note still present")
	}
	if perms, _ := s.ListPermissions(ctx, note.ID); len(perms) != 0 {
		t.Fatalf("expected zero permissions, got %d", len(perms))
	}
	if count, _ := s.CountNoteComments(ctx, note.ID); count != 0 {
		t.Fatalf("expected zero comments, got %d", count)
	}
	if events, _ := s.ListNoteActivity(ctx, note.ID); len(events) != 0 {
		t.Fatalf("expected zero activity events, got %d", len(events))
	}

	deleted, err = s.DeleteNoteCascade(ctx, note.ID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if deleted {
		t.Fatal("expected deleted=false on missing note")
	}
}

func TestUpsertPermissionOverwritesRole(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	note := newTestNote(t, s, "note_1", "usr_1")

	first, err := s.UpsertPermission(ctx, NotePermission{ID: "perm_a", NoteID: note.ID, UserID: "usr_2", Role: "viewer"}, nil)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	second, err := s.UpsertPermission(ctx, NotePermission{ID: "perm_b", NoteID: note.ID, UserID: "usr_2", Role: "editor"}, nil)
	if err != nil {
		t.Fatalf("regrant: %v", err)
	}
	if first != second {
		t.Fatalf("expected regrant to reuse permission row, got %s then %s", first, second)
	}
	perm, _ := s.GetPermission(ctx, note.ID, "usr_2")
	if perm == nil || perm.Role != "editor" {
		t.Fatalf("expected editor role, got %+v", perm)
	}
	perms, _ := s.ListPermissions(ctx, note.ID)
	if len(perms) != 2 {
		t.Fatalf("expected owner + one grant, got %d rows", len(perms))
	}
}

func TestListUserNotesDeduplicatesOwnedAndGranted(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	owned := newTestNote(t, s, "note_owned", "usr_1")
	shared := newTestNote(t, s, "note_shared", "usr_2")
	newTestNote(t, s, "note_other", "usr_3")
	if _, err := s.UpsertPermission(ctx, NotePermission{ID: "perm_x", NoteID: shared.ID, UserID: "usr_1", Role: "viewer"}, nil); err != nil {
		t.Fatalf("grant: %v", err)
	}

	items, err := s.ListUserNotes(ctx, "usr_1")
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(items))
	}
	seen := map[string]bool{}
	for _, item := range items {
		if seen[item.ID] {
			t.Fatalf("duplicate note %s", item.ID)
		}
		seen[item.ID] = true
	}
	if !seen[owned.ID] || !seen[shared.ID] {
		t.Fatalf("missing expected notes: %v", seen)
	}
}

func TestFolderPathRootToLeaf(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	newTestFolder(t, s, "fld_a", "usr_1", nil)
	newTestFolder(t, s, "fld_b", "usr_1", strPtr("fld_a"))
	newTestFolder(t, s, "fld_c", "usr_1", strPtr("fld_b"))

	path, err := s.FolderPath(ctx, "fld_c")
	if err != nil {
		t.Fatalf("folder path: %v", err)
	}
	want := []string{"fld_a", "fld_b", "fld_c"}
	if len(path) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(path))
	}
	for i, id := range want {
		if path[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, path[i].ID, id)
		}
	}
}
