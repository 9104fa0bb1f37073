// Package activity defines the append-only note activity event types and
// their per-type metadata payloads.
package activity

import (
	"encoding/json"
	"fmt"
)

type Type string

const (
	TypeEdit       Type = "edit"
	TypeComment    Type = "comment"
	TypeResolve    Type = "resolve"
	TypeFork       Type = "fork"
	TypePermission Type = "permission"
)

func ValidType(t Type) bool {
	switch t {
	case TypeEdit, TypeComment, TypeResolve, TypeFork, TypePermission:
		return true
	default:
		return false
	}
}

// Metadata is the event-type-specific payload. One variant exists per
// event type; an omitted payload decodes to the variant's zero value.
type Metadata interface {
	EventType() Type
}

type EditMetadata struct {
	Fields []string `json:"fields,omitempty"`
}

func (EditMetadata) EventType() Type { return TypeEdit }

type CommentMetadata struct {
	CommentID string `json:"commentId,omitempty"`
}

func (CommentMetadata) EventType() Type { return TypeComment }

type ResolveMetadata struct {
	CommentID  string `json:"commentId,omitempty"`
	ResolvedBy string `json:"resolvedBy,omitempty"`
}

func (ResolveMetadata) EventType() Type { return TypeResolve }

type ForkMetadata struct {
	SourceNoteID string `json:"sourceNoteId,omitempty"`
}

func (ForkMetadata) EventType() Type { return TypeFork }

type PermissionMetadata struct {
	Action       string `json:"action,omitempty"` // grant or revoke
	TargetUserID string `json:"targetUserId,omitempty"`
	Role         string `json:"role,omitempty"`
}

func (PermissionMetadata) EventType() Type { return TypePermission }

// Decode parses raw metadata into the variant for the given event type.
// nil or empty raw yields the zero variant.
func Decode(t Type, raw json.RawMessage) (Metadata, error) {
	decode := func(target Metadata) (Metadata, error) {
		if len(raw) == 0 {
			return target, nil
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("decode %s metadata: %w", t, err)
		}
		return target, nil
	}

	switch t {
	case TypeEdit:
		meta := &EditMetadata{}
		return decode(meta)
	case TypeComment:
		meta := &CommentMetadata{}
		return decode(meta)
	case TypeResolve:
		meta := &ResolveMetadata{}
		return decode(meta)
	case TypeFork:
		meta := &ForkMetadata{}
		return decode(meta)
	case TypePermission:
		meta := &PermissionMetadata{}
		return decode(meta)
	default:
		return nil, fmt.Errorf("unknown activity type %q", t)
	}
}

func Encode(m Metadata) (json.RawMessage, error) {
	if m == nil {
		return json.RawMessage(`{}`), nil
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s metadata: %w", m.EventType(), err)
	}
	return encoded, nil
}
