package chat_test

import (
	"context"
	"testing"

	modelchat "github.com/kaviyashree6/empathyconnect/internal/model/chat"
	chat "github.com/kaviyashree6/empathyconnect/internal/service/chat"
	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
)

func TestServiceGetSession(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "", "es")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	got, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}

	if got.ID != session.ID {
		t.Fatalf("unexpected session ID: got %s want %s", got.ID, session.ID)
	}
	if got.Language != "es" {
		t.Fatalf("unexpected language: got %s", got.Language)
	}
	if len(got.PseudoUserID) != len("User_")+4 {
		t.Fatalf("unexpected pseudo user id: %s", got.PseudoUserID)
	}
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	if _, err := svc.GetSession(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing session")
	}
}

func TestEnsureSessionIsIdempotent(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	first, err := svc.EnsureSession(ctx, "client-made-id", "u1", "fr")
	if err != nil {
		t.Fatalf("EnsureSession err: %v", err)
	}
	second, err := svc.EnsureSession(ctx, "client-made-id", "other", "de")
	if err != nil {
		t.Fatalf("EnsureSession err: %v", err)
	}
	if first != second {
		t.Fatalf("expected the same session, got %+v and %+v", first, second)
	}
	if first.PseudoUserID != "User_CLIE" {
		t.Fatalf("unexpected pseudo user id: %s", first.PseudoUserID)
	}

	if _, err := svc.EnsureSession(ctx, "  ", "", ""); err != chat.ErrSessionRequired {
		t.Fatalf("expected ErrSessionRequired, got %v", err)
	}
}

func TestSaveMessageAndTranscriptCopy(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx, "", "")

	saved, err := svc.SaveMessage(ctx, modelchat.Message{SessionID: session.ID, Role: chatapi.RoleUser, Content: "hello"})
	if err != nil {
		t.Fatalf("SaveMessage err: %v", err)
	}
	if saved.ID == "" || saved.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", saved)
	}

	transcript, err := svc.LoadTranscript(ctx, session.ID)
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	transcript[0].Content = "mutated"

	again, _ := svc.LoadTranscript(ctx, session.ID)
	if again[0].Content != "hello" {
		t.Fatalf("transcript must be a copy, got %q", again[0].Content)
	}

	if _, err := svc.SaveMessage(ctx, modelchat.Message{SessionID: "ghost", Content: "x"}); err != chat.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.SaveMessage(ctx, modelchat.Message{SessionID: session.ID, Content: " "}); err != chat.ErrEmptyMessage {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestEnsureSessionEvictsOldestBeyondCap(t *testing.T) {
	svc := chat.NewService(chat.WithMaxSessions(2))
	ctx := context.Background()

	for _, id := range []string{"first", "second", "third"} {
		if _, err := svc.EnsureSession(ctx, id, "", "en"); err != nil {
			t.Fatalf("ensure %s: %v", id, err)
		}
	}
	if _, err := svc.SaveMessage(ctx, modelchat.Message{SessionID: "third", Role: chatapi.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("save message: %v", err)
	}

	if _, err := svc.GetSession(ctx, "first"); err != chat.ErrSessionNotFound {
		t.Fatalf("expected oldest session to be evicted, got %v", err)
	}
	if _, err := svc.LoadTranscript(ctx, "first"); err != chat.ErrSessionNotFound {
		t.Fatalf("expected evicted transcript to be gone, got %v", err)
	}
	for _, id := range []string{"second", "third"} {
		if _, err := svc.GetSession(ctx, id); err != nil {
			t.Fatalf("session %s should remain: %v", id, err)
		}
	}

	// Re-ensuring an existing session does not count against the cap.
	if _, err := svc.EnsureSession(ctx, "second", "", "en"); err != nil {
		t.Fatalf("ensure existing: %v", err)
	}
	if _, err := svc.GetSession(ctx, "third"); err != nil {
		t.Fatalf("third should remain: %v", err)
	}
}
