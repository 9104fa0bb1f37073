package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"notable/api/internal/activity"
	"notable/api/internal/store"
)

func activityPayload(event store.ActivityEvent) map[string]any {
	payload := map[string]any{
		"id":        event.ID,
		"noteId":    event.NoteID,
		"type":      event.Type,
		"actorId":   event.ActorID,
		"metadata":  json.RawMessage(event.Metadata),
		"createdAt": event.CreatedAt.Format(time.RFC3339),
	}
	if event.ActorName != nil {
		payload["actorName"] = *event.ActorName
	}
	if event.ActorEmail != nil {
		payload["actorEmail"] = *event.ActorEmail
	}
	return payload
}

// LogActivity appends an event to a note's activity log. The metadata is
// validated against the event type's payload shape and re-encoded, so the
// log never stores fields the type does not define.
func (s *Service) LogActivity(ctx context.Context, noteID string, input LogActivityInput) (map[string]any, error) {
	eventType := activity.Type(input.Type)
	if !activity.ValidType(eventType) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown activity type", map[string]any{
			"type": input.Type,
		})
	}
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "note not found", nil)
	}

	raw, err := json.Marshal(input.Metadata)
	if err != nil {
		return nil, err
	}
	if input.Metadata == nil {
		raw = nil
	}
	decoded, err := activity.Decode(eventType, raw)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid activity metadata", map[string]any{
			"type": input.Type,
		})
	}
	metadata, err := activity.Encode(decoded)
	if err != nil {
		return nil, err
	}

	event := store.ActivityEvent{
		NoteID:   noteID,
		Type:     input.Type,
		ActorID:  input.ActorID,
		Metadata: metadata,
	}
	id, err := s.store.InsertActivity(ctx, event)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "noteId": noteID, "type": input.Type, "ok": true}, nil
}

// NoteActivity returns the note's events newest first, with actor identity
// joined in when the user record still exists.
func (s *Service) NoteActivity(ctx context.Context, noteID string) ([]map[string]any, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "note not found", nil)
	}
	events, err := s.store.ListNoteActivity(ctx, noteID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(events))
	for _, event := range events {
		items = append(items, activityPayload(event))
	}
	return items, nil
}
