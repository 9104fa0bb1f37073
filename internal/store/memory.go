package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps the entire workspace in process memory behind one mutex.
// It implements the same semantics as PostgresStore and backs tests and local
// experiments that should not need a database.
type MemoryStore struct {
	mu sync.Mutex

	users       map[string]User
	folders     map[string]Folder
	notes       map[string]Note
	permissions map[string]NotePermission
	comments    map[string]Comment
	activity    []ActivityEvent
	nextEventID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]User),
		folders:     make(map[string]Folder),
		notes:       make(map[string]Note),
		permissions: make(map[string]NotePermission),
		comments:    make(map[string]Comment),
		nextEventID: 1,
	}
}

func (s *MemoryStore) EnsureUser(_ context.Context, user User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return existing, nil
		}
	}
	user.CreatedAt = time.Now().UTC()
	s.users[user.ID] = user
	return user, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, userID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// siblingIDs returns the folder ids in (ownerID, parentID) ordered by
// sort_order then creation time. Callers hold s.mu.
func (s *MemoryStore) siblingIDs(ownerID string, parentID *string, exclude string) []Folder {
	siblings := make([]Folder, 0)
	for _, item := range s.folders {
		if item.OwnerID != ownerID || item.ID == exclude || !sameParent(item.ParentID, parentID) {
			continue
		}
		siblings = append(siblings, item)
	}
	sort.Slice(siblings, func(i, j int) bool {
		if siblings[i].SortOrder != siblings[j].SortOrder {
			return siblings[i].SortOrder < siblings[j].SortOrder
		}
		return siblings[i].CreatedAt.Before(siblings[j].CreatedAt)
	})
	return siblings
}

func (s *MemoryStore) nextSortOrder(ownerID string, parentID *string, exclude string) int {
	next := 0
	for _, item := range s.folders {
		if item.OwnerID != ownerID || item.ID == exclude || !sameParent(item.ParentID, parentID) {
			continue
		}
		if item.SortOrder >= next {
			next = item.SortOrder + 1
		}
	}
	return next
}

func (s *MemoryStore) InsertFolder(_ context.Context, folder Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.folders[folder.ID]; ok {
		return fmt.Errorf("insert folder: duplicate id %s", folder.ID)
	}
	now := time.Now().UTC()
	folder.SortOrder = s.nextSortOrder(folder.OwnerID, folder.ParentID, folder.ID)
	folder.CreatedAt = now
	folder.UpdatedAt = now
	s.folders[folder.ID] = folder
	return nil
}

func (s *MemoryStore) GetFolder(_ context.Context, folderID string) (*Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.folders[folderID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *MemoryStore) ListFoldersByOwner(_ context.Context, ownerID string) ([]Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Folder, 0)
	for _, item := range s.folders {
		if item.OwnerID == ownerID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].SortOrder != items[j].SortOrder {
			return items[i].SortOrder < items[j].SortOrder
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *MemoryStore) RenameFolder(_ context.Context, folderID string, name *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.folders[folderID]
	if !ok {
		return nil
	}
	if name != nil {
		item.Name = *name
	}
	item.UpdatedAt = time.Now().UTC()
	s.folders[folderID] = item
	return nil
}

func (s *MemoryStore) MoveFolder(_ context.Context, folderID string, newParentID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.folders[folderID]
	if !ok {
		return nil
	}
	if newParentID != nil {
		if _, ok := s.folders[*newParentID]; !ok {
			return nil
		}
	}
	parentOf := func(id string) (*string, bool) {
		parent, ok := s.folders[id]
		if !ok {
			return nil, false
		}
		return parent.ParentID, true
	}
	if onAncestorPath(folderID, newParentID, parentOf) {
		return ErrFolderCycle
	}
	item.ParentID = newParentID
	item.SortOrder = s.nextSortOrder(item.OwnerID, newParentID, item.ID)
	item.UpdatedAt = time.Now().UTC()
	s.folders[folderID] = item
	return nil
}

func (s *MemoryStore) ReorderFolder(_ context.Context, folderID string, newIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.folders[folderID]
	if !ok {
		return nil
	}
	siblings := s.siblingIDs(item.OwnerID, item.ParentID, "")
	ids := make([]string, len(siblings))
	for i, sibling := range siblings {
		ids[i] = sibling.ID
	}
	now := time.Now().UTC()
	for index, id := range reorderSiblings(ids, folderID, newIndex) {
		sibling := s.folders[id]
		if sibling.SortOrder == index {
			continue
		}
		sibling.SortOrder = index
		sibling.UpdatedAt = now
		s.folders[id] = sibling
	}
	return nil
}

func (s *MemoryStore) DeleteFolder(_ context.Context, folderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.folders[folderID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	for id, child := range s.folders {
		if child.ParentID != nil && *child.ParentID == folderID {
			child.ParentID = item.ParentID
			child.UpdatedAt = now
			s.folders[id] = child
		}
	}
	for id, note := range s.notes {
		if note.FolderID != nil && *note.FolderID == folderID {
			note.FolderID = item.ParentID
			note.UpdatedAt = now
			s.notes[id] = note
		}
	}
	delete(s.folders, folderID)
	return nil
}

func (s *MemoryStore) FolderPath(_ context.Context, folderID string) ([]PathEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lookup := func(id string) (string, *string, bool) {
		item, ok := s.folders[id]
		if !ok {
			return "", nil, false
		}
		return item.Name, item.ParentID, true
	}
	return walkPath(folderID, lookup), nil
}

func (s *MemoryStore) InsertNoteWithOwner(ctx context.Context, note Note, owner NotePermission, event *ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[note.ID]; ok {
		return fmt.Errorf("insert note: duplicate id %s", note.ID)
	}
	now := time.Now().UTC()
	note.CreatedAt = now
	note.UpdatedAt = now
	s.notes[note.ID] = note
	owner.CreatedAt = now
	owner.UpdatedAt = now
	s.permissions[owner.ID] = owner
	if event != nil {
		s.appendEvent(*event)
	}
	return nil
}

func (s *MemoryStore) GetNote(_ context.Context, noteID string) (*Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.notes[noteID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *MemoryStore) UpdateNote(_ context.Context, noteID string, patch NotePatch, event *ActivityEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.notes[noteID]
	if !ok {
		return false, nil
	}
	if patch.Title != nil {
		item.Title = *patch.Title
	}
	if patch.Content != nil {
		item.Content = *patch.Content
	}
	if patch.Visibility != nil {
		item.Visibility = *patch.Visibility
	}
	item.UpdatedAt = time.Now().UTC()
	s.notes[noteID] = item
	if event != nil {
		s.appendEvent(*event)
	}
	return true, nil
}

func (s *MemoryStore) ListUserNotes(_ context.Context, userID string) ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	granted := make(map[string]bool)
	for _, perm := range s.permissions {
		if perm.UserID == userID {
			granted[perm.NoteID] = true
		}
	}
	items := make([]Note, 0)
	for _, item := range s.notes {
		if item.OwnerID == userID || granted[item.ID] {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	return items, nil
}

func (s *MemoryStore) DeleteNoteCascade(_ context.Context, noteID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.notes[noteID]
	for id, perm := range s.permissions {
		if perm.NoteID == noteID {
			delete(s.permissions, id)
		}
	}
	for id, comment := range s.comments {
		if comment.NoteID == noteID {
			delete(s.comments, id)
		}
	}
	kept := s.activity[:0]
	for _, event := range s.activity {
		if event.NoteID != noteID {
			kept = append(kept, event)
		}
	}
	s.activity = kept
	delete(s.notes, noteID)
	return existed, nil
}

func (s *MemoryStore) UpsertPermission(_ context.Context, perm NotePermission, event *ActivityEvent) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for id, existing := range s.permissions {
		if existing.NoteID == perm.NoteID && existing.UserID == perm.UserID {
			existing.Role = perm.Role
			existing.UpdatedAt = now
			s.permissions[id] = existing
			if event != nil {
				s.appendEvent(*event)
			}
			return id, nil
		}
	}
	perm.CreatedAt = now
	perm.UpdatedAt = now
	s.permissions[perm.ID] = perm
	if event != nil {
		s.appendEvent(*event)
	}
	return perm.ID, nil
}

func (s *MemoryStore) DeletePermission(_ context.Context, noteID, userID string, event *ActivityEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, perm := range s.permissions {
		if perm.NoteID == noteID && perm.UserID == userID {
			delete(s.permissions, id)
			if event != nil {
				s.appendEvent(*event)
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetPermission(_ context.Context, noteID, userID string) (*NotePermission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, perm := range s.permissions {
		if perm.NoteID == noteID && perm.UserID == userID {
			return &perm, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListPermissions(_ context.Context, noteID string) ([]NotePermission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]NotePermission, 0)
	for _, perm := range s.permissions {
		if perm.NoteID != noteID {
			continue
		}
		if user, ok := s.users[perm.UserID]; ok {
			name := user.DisplayName
			email := user.Email
			perm.UserName = &name
			perm.UserEmail = &email
		}
		items = append(items, perm)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *MemoryStore) InsertComment(_ context.Context, comment Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(comment.Body) == 0 {
		comment.Body = []byte(`{}`)
	}
	comment.CreatedAt = time.Now().UTC()
	s.comments[comment.ID] = comment
	return nil
}

func (s *MemoryStore) CountNoteComments(_ context.Context, noteID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, comment := range s.comments {
		if comment.NoteID == noteID {
			count++
		}
	}
	return count, nil
}

// appendEvent assigns the next event id. Callers hold s.mu.
func (s *MemoryStore) appendEvent(event ActivityEvent) int64 {
	event.ID = s.nextEventID
	s.nextEventID++
	if len(event.Metadata) == 0 {
		event.Metadata = []byte(`{}`)
	}
	event.CreatedAt = time.Now().UTC()
	s.activity = append(s.activity, event)
	return event.ID
}

func (s *MemoryStore) InsertActivity(_ context.Context, event ActivityEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendEvent(event), nil
}

func (s *MemoryStore) ListNoteActivity(_ context.Context, noteID string) ([]ActivityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]ActivityEvent, 0)
	for _, event := range s.activity {
		if event.NoteID != noteID {
			continue
		}
		if user, ok := s.users[event.ActorID]; ok {
			name := user.DisplayName
			email := user.Email
			event.ActorName = &name
			event.ActorEmail = &email
		}
		items = append(items, event)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
