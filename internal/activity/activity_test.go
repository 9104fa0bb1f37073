package activity

import (
	"encoding/json"
	"testing"
)

func TestDecodeVariants(t *testing.T) {
	cases := []struct {
		name string
		typ  Type
		raw  string
		want Type
	}{
		{name: "edit", typ: TypeEdit, raw: `{"fields":["title"]}`, want: TypeEdit},
		{name: "comment", typ: TypeComment, raw: `{"commentId":"cmt_1"}`, want: TypeComment},
		{name: "resolve", typ: TypeResolve, raw: `{"commentId":"cmt_1","resolvedBy":"usr_1"}`, want: TypeResolve},
		{name: "fork", typ: TypeFork, raw: `{"sourceNoteId":"note_1"}`, want: TypeFork},
		{name: "permission", typ: TypePermission, raw: `{"action":"grant","targetUserId":"usr_2","role":"editor"}`, want: TypePermission},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta, err := Decode(tc.typ, json.RawMessage(tc.raw))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if meta.EventType() != tc.want {
				t.Fatalf("EventType() = %q, want %q", meta.EventType(), tc.want)
			}
		})
	}
}

func TestDecodeEmptyPayloadDefaultsToZeroVariant(t *testing.T) {
	meta, err := Decode(TypeEdit, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	edit, ok := meta.(*EditMetadata)
	if !ok {
		t.Fatalf("expected *EditMetadata, got %T", meta)
	}
	if len(edit.Fields) != 0 {
		t.Fatalf("expected empty fields, got %v", edit.Fields)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	if _, err := Decode(Type("rename"), nil); err == nil {
		t.Fatal("expected error for unknown activity type")
	}
}

func TestEncodeNilMetadataIsEmptyObject(t *testing.T) {
	raw, err := Encode(nil)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if string(raw) != "{}" {
		t.Fatalf("Encode(nil) = %s, want {}", raw)
	}
}

func TestEncodeDecodeFork(t *testing.T) {
	raw, err := Encode(&ForkMetadata{SourceNoteID: "note_src"})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	meta, err := Decode(TypeFork, raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	fork := meta.(*ForkMetadata)
	if fork.SourceNoteID != "note_src" {
		t.Fatalf("SourceNoteID = %q", fork.SourceNoteID)
	}
}
