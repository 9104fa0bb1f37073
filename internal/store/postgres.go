package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// withTx runs fn inside a single transaction. Every mutation that touches
// more than one row goes through here: the call either fully applies or
// fully rolls back.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) EnsureUser(ctx context.Context, user User) (User, error) {
	var existing User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, created_at FROM users WHERE email=$1
	`, user.Email).Scan(&existing.ID, &existing.DisplayName, &existing.Email, &existing.CreatedAt)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, display_name, email)
		VALUES ($1, $2, $3)
		RETURNING id, display_name, email, created_at
	`, user.ID, user.DisplayName, user.Email).Scan(&existing.ID, &existing.DisplayName, &existing.Email, &existing.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return existing, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, created_at FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// ================================ Folders ================================

func (s *PostgresStore) InsertFolder(ctx context.Context, folder Folder) error {
	// sort_order is appended to the end of the sibling group; the subquery
	// and the insert are one statement, so concurrent creates cannot tear.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO folders (id, name, owner_id, parent_id, sort_order)
		VALUES ($1, $2, $3, $4, (
			SELECT COALESCE(MAX(sort_order) + 1, 0)
			FROM folders
			WHERE owner_id = $3 AND parent_id IS NOT DISTINCT FROM $4
		))
	`, folder.ID, folder.Name, folder.OwnerID, folder.ParentID)
	if err != nil {
		return fmt.Errorf("insert folder: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFolder(ctx context.Context, folderID string) (*Folder, error) {
	var item Folder
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_id, parent_id, sort_order, created_at, updated_at
		FROM folders
		WHERE id=$1
	`, folderID).Scan(&item.ID, &item.Name, &item.OwnerID, &item.ParentID, &item.SortOrder, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get folder: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) ListFoldersByOwner(ctx context.Context, ownerID string) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, owner_id, parent_id, sort_order, created_at, updated_at
		FROM folders
		WHERE owner_id=$1
		ORDER BY sort_order ASC, created_at ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	items := make([]Folder, 0)
	for rows.Next() {
		var item Folder
		if err := rows.Scan(&item.ID, &item.Name, &item.OwnerID, &item.ParentID, &item.SortOrder, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) RenameFolder(ctx context.Context, folderID string, name *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE folders
		SET name=COALESCE($2, name), updated_at=NOW()
		WHERE id=$1
	`, folderID, name)
	if err != nil {
		return fmt.Errorf("rename folder: %w", err)
	}
	return nil
}

// MoveFolder reparents a folder and appends it to the end of its new sibling
// group. The ancestor walk and the update share one transaction, so the
// cycle check cannot race a concurrent move of an ancestor. A missing folder
// or a missing target parent is a no-op; a cyclic target returns
// ErrFolderCycle with no change applied.
func (s *PostgresStore) MoveFolder(ctx context.Context, folderID string, newParentID *string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM folders WHERE id=$1)`, folderID).Scan(&exists); err != nil {
			return fmt.Errorf("lookup folder: %w", err)
		}
		if !exists {
			return nil
		}
		if newParentID != nil {
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM folders WHERE id=$1)`, *newParentID).Scan(&exists); err != nil {
				return fmt.Errorf("lookup new parent: %w", err)
			}
			if !exists {
				return nil
			}
		}

		var walkErr error
		parentOf := func(id string) (*string, bool) {
			var parent *string
			err := tx.QueryRowContext(ctx, `SELECT parent_id FROM folders WHERE id=$1`, id).Scan(&parent)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, false
			}
			if err != nil {
				walkErr = fmt.Errorf("walk ancestors: %w", err)
				return nil, false
			}
			return parent, true
		}
		if onAncestorPath(folderID, newParentID, parentOf) {
			return ErrFolderCycle
		}
		if walkErr != nil {
			return walkErr
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE folders
			SET parent_id=$2,
				sort_order=(
					SELECT COALESCE(MAX(sort_order) + 1, 0)
					FROM folders
					WHERE owner_id=(SELECT owner_id FROM folders WHERE id=$1)
					  AND parent_id IS NOT DISTINCT FROM $2
					  AND id <> $1
				),
				updated_at=NOW()
			WHERE id=$1
		`, folderID, newParentID)
		if err != nil {
			return fmt.Errorf("move folder: %w", err)
		}
		return nil
	})
}

// ReorderFolder reinserts a folder at newIndex within its current sibling
// group and reassigns a dense 0..n-1 ordering. Missing folders are a no-op.
func (s *PostgresStore) ReorderFolder(ctx context.Context, folderID string, newIndex int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var ownerID string
		var parentID *string
		err := tx.QueryRowContext(ctx, `SELECT owner_id, parent_id FROM folders WHERE id=$1`, folderID).Scan(&ownerID, &parentID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup folder: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT id, sort_order
			FROM folders
			WHERE owner_id=$1 AND parent_id IS NOT DISTINCT FROM $2
			ORDER BY sort_order ASC, created_at ASC
		`, ownerID, parentID)
		if err != nil {
			return fmt.Errorf("list siblings: %w", err)
		}
		defer rows.Close()

		ids := make([]string, 0)
		orders := make(map[string]int)
		for rows.Next() {
			var id string
			var order int
			if err := rows.Scan(&id, &order); err != nil {
				return fmt.Errorf("scan sibling: %w", err)
			}
			ids = append(ids, id)
			orders[id] = order
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate siblings: %w", err)
		}

		for index, id := range reorderSiblings(ids, folderID, newIndex) {
			if orders[id] == index {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE folders SET sort_order=$2, updated_at=NOW() WHERE id=$1
			`, id, index); err != nil {
				return fmt.Errorf("reindex sibling: %w", err)
			}
		}
		return nil
	})
}

// DeleteFolder removes a folder after promoting its direct child folders and
// notes to the deleted folder's own parent. Grandchildren keep their subtrees
// untouched. Missing folders are a no-op.
func (s *PostgresStore) DeleteFolder(ctx context.Context, folderID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var parentID *string
		err := tx.QueryRowContext(ctx, `SELECT parent_id FROM folders WHERE id=$1`, folderID).Scan(&parentID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup folder: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE folders SET parent_id=$2, updated_at=NOW() WHERE parent_id=$1
		`, folderID, parentID); err != nil {
			return fmt.Errorf("promote child folders: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE notes SET folder_id=$2, updated_at=NOW() WHERE folder_id=$1
		`, folderID, parentID); err != nil {
			return fmt.Errorf("promote folder notes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id=$1`, folderID); err != nil {
			return fmt.Errorf("delete folder: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) FolderPath(ctx context.Context, folderID string) ([]PathEntry, error) {
	var path []PathEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var walkErr error
		lookup := func(id string) (string, *string, bool) {
			var name string
			var parent *string
			err := tx.QueryRowContext(ctx, `SELECT name, parent_id FROM folders WHERE id=$1`, id).Scan(&name, &parent)
			if errors.Is(err, sql.ErrNoRows) {
				return "", nil, false
			}
			if err != nil {
				walkErr = fmt.Errorf("walk path: %w", err)
				return "", nil, false
			}
			return name, parent, true
		}
		path = walkPath(folderID, lookup)
		return walkErr
	})
	if err != nil {
		return nil, err
	}
	return path, nil
}

// ================================= Notes =================================

// InsertNoteWithOwner creates the note together with its implicit owner
// permission (and, for forks, the fork activity event). One transaction:
// readers see both rows or neither.
func (s *PostgresStore) InsertNoteWithOwner(ctx context.Context, note Note, owner NotePermission, event *ActivityEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notes (id, title, content, owner_id, folder_id, visibility)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, note.ID, note.Title, note.Content, note.OwnerID, note.FolderID, note.Visibility); err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO note_permissions (id, note_id, user_id, role)
			VALUES ($1, $2, $3, $4)
		`, owner.ID, owner.NoteID, owner.UserID, owner.Role); err != nil {
			return fmt.Errorf("insert owner permission: %w", err)
		}
		if event != nil {
			if err := insertActivityTx(ctx, tx, *event); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetNote(ctx context.Context, noteID string) (*Note, error) {
	var item Note
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, owner_id, folder_id, visibility, created_at, updated_at
		FROM notes
		WHERE id=$1
	`, noteID).Scan(&item.ID, &item.Title, &item.Content, &item.OwnerID, &item.FolderID, &item.Visibility, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return &item, nil
}

// UpdateNote applies a field-level patch and records the edit event in the
// same transaction. Returns false without touching anything when the note
// does not exist.
func (s *PostgresStore) UpdateNote(ctx context.Context, noteID string, patch NotePatch, event *ActivityEvent) (bool, error) {
	updated := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE notes
			SET title=COALESCE($2, title),
				content=COALESCE($3, content),
				visibility=COALESCE($4, visibility),
				updated_at=NOW()
			WHERE id=$1
		`, noteID, patch.Title, patch.Content, patch.Visibility)
		if err != nil {
			return fmt.Errorf("update note: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("update note rows: %w", err)
		}
		if affected == 0 {
			return nil
		}
		updated = true
		if event != nil {
			return insertActivityTx(ctx, tx, *event)
		}
		return nil
	})
	return updated, err
}

func (s *PostgresStore) ListUserNotes(ctx context.Context, userID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, owner_id, folder_id, visibility, created_at, updated_at
		FROM notes n
		WHERE n.owner_id=$1
		   OR EXISTS (SELECT 1 FROM note_permissions p WHERE p.note_id=n.id AND p.user_id=$1)
		ORDER BY n.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		var item Note
		if err := rows.Scan(&item.ID, &item.Title, &item.Content, &item.OwnerID, &item.FolderID, &item.Visibility, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

// DeleteNoteCascade removes the note's permissions, comments, and activity
// events, then the note row itself. The note row goes last so a visible note
// never has missing children.
func (s *PostgresStore) DeleteNoteCascade(ctx context.Context, noteID string) (bool, error) {
	deleted := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM note_permissions WHERE note_id=$1`, noteID); err != nil {
			return fmt.Errorf("delete note permissions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM note_comments WHERE note_id=$1`, noteID); err != nil {
			return fmt.Errorf("delete note comments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM activity_events WHERE note_id=$1`, noteID); err != nil {
			return fmt.Errorf("delete note activity: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id=$1`, noteID)
		if err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete note rows: %w", err)
		}
		deleted = affected > 0
		return nil
	})
	return deleted, err
}

// ============================== Permissions ==============================

// UpsertPermission inserts or overwrites the single permission row for
// (noteId, userId) and records the permission event in the same transaction.
func (s *PostgresStore) UpsertPermission(ctx context.Context, perm NotePermission, event *ActivityEvent) (string, error) {
	var permID string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO note_permissions (id, note_id, user_id, role)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (note_id, user_id)
			DO UPDATE SET role=EXCLUDED.role, updated_at=NOW()
			RETURNING id
		`, perm.ID, perm.NoteID, perm.UserID, perm.Role).Scan(&permID)
		if err != nil {
			return fmt.Errorf("upsert permission: %w", err)
		}
		if event != nil {
			return insertActivityTx(ctx, tx, *event)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return permID, nil
}

// DeletePermission is idempotent: a missing row is a no-op and logs nothing.
func (s *PostgresStore) DeletePermission(ctx context.Context, noteID, userID string, event *ActivityEvent) (bool, error) {
	deleted := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM note_permissions WHERE note_id=$1 AND user_id=$2
		`, noteID, userID)
		if err != nil {
			return fmt.Errorf("delete permission: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete permission rows: %w", err)
		}
		if affected == 0 {
			return nil
		}
		deleted = true
		if event != nil {
			return insertActivityTx(ctx, tx, *event)
		}
		return nil
	})
	return deleted, err
}

func (s *PostgresStore) GetPermission(ctx context.Context, noteID, userID string) (*NotePermission, error) {
	var item NotePermission
	err := s.db.QueryRowContext(ctx, `
		SELECT id, note_id, user_id, role, created_at, updated_at
		FROM note_permissions
		WHERE note_id=$1 AND user_id=$2
	`, noteID, userID).Scan(&item.ID, &item.NoteID, &item.UserID, &item.Role, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get permission: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) ListPermissions(ctx context.Context, noteID string) ([]NotePermission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.note_id, p.user_id, p.role, p.created_at, p.updated_at,
			u.display_name, u.email
		FROM note_permissions p
		LEFT JOIN users u ON u.id = p.user_id
		WHERE p.note_id=$1
		ORDER BY p.created_at ASC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	items := make([]NotePermission, 0)
	for rows.Next() {
		var item NotePermission
		if err := rows.Scan(&item.ID, &item.NoteID, &item.UserID, &item.Role, &item.CreatedAt, &item.UpdatedAt, &item.UserName, &item.UserEmail); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}
	return items, nil
}

// =============================== Comments ================================

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	body := comment.Body
	if len(body) == 0 {
		body = []byte(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO note_comments (id, note_id, author_id, body)
		VALUES ($1, $2, $3, $4::jsonb)
	`, comment.ID, comment.NoteID, comment.AuthorID, string(body))
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountNoteComments(ctx context.Context, noteID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM note_comments WHERE note_id=$1`, noteID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count note comments: %w", err)
	}
	return count, nil
}

// =============================== Activity ================================

func insertActivityTx(ctx context.Context, tx *sql.Tx, event ActivityEvent) error {
	metadata := event.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO activity_events (note_id, type, actor_id, metadata)
		VALUES ($1, $2, $3, $4::jsonb)
	`, event.NoteID, event.Type, event.ActorID, string(metadata)); err != nil {
		return fmt.Errorf("insert activity event: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertActivity(ctx context.Context, event ActivityEvent) (int64, error) {
	metadata := event.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO activity_events (note_id, type, actor_id, metadata)
		VALUES ($1, $2, $3, $4::jsonb)
		RETURNING id
	`, event.NoteID, event.Type, event.ActorID, string(metadata)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert activity event: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListNoteActivity(ctx context.Context, noteID string) ([]ActivityEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.note_id, a.type, a.actor_id, a.metadata::text, a.created_at,
			u.display_name, u.email
		FROM activity_events a
		LEFT JOIN users u ON u.id = a.actor_id
		WHERE a.note_id=$1
		ORDER BY a.created_at DESC, a.id DESC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list note activity: %w", err)
	}
	defer rows.Close()

	items := make([]ActivityEvent, 0)
	for rows.Next() {
		var item ActivityEvent
		var metadata string
		if err := rows.Scan(&item.ID, &item.NoteID, &item.Type, &item.ActorID, &metadata, &item.CreatedAt, &item.ActorName, &item.ActorEmail); err != nil {
			return nil, fmt.Errorf("scan activity event: %w", err)
		}
		item.Metadata = []byte(metadata)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity events: %w", err)
	}
	return items, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
