package store

import (
	"fmt"
	"testing"

	"chatrelay/pkg/models"
)

func openTestDB(t *testing.T) {
	t.Helper()
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = Close() })
}

func TestAppendAndListMessages(t *testing.T) {
	openTestDB(t)

	for i := 0; i < 5; i++ {
		_, err := AppendMessage(SpaceDirect, "conv1", models.Message{
			SenderID: "alice",
			Content:  fmt.Sprintf("msg-%d", i),
		})
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	msgs, err := ListMessages(SpaceDirect, "conv1", 0, false)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages; got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.Content != fmt.Sprintf("msg-%d", i) {
			t.Fatalf("out of order at %d: %s", i, m.Content)
		}
		if m.MessageID == "" || m.Timestamp == "" {
			t.Fatalf("message %d missing generated fields: %+v", i, m)
		}
		if m.Status != models.StatusSent {
			t.Fatalf("expected status sent; got %s", m.Status)
		}
	}
}

func TestListMessagesLimitAndDesc(t *testing.T) {
	openTestDB(t)

	for i := 0; i < 4; i++ {
		if _, err := AppendMessage(SpaceGroup, "g1", models.Message{Content: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	msgs, err := ListMessages(SpaceGroup, "g1", 2, true)
	if err != nil {
		t.Fatalf("ListMessages desc: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages; got %d", len(msgs))
	}
	if msgs[0].Content != "m3" || msgs[1].Content != "m2" {
		t.Fatalf("unexpected desc order: %s, %s", msgs[0].Content, msgs[1].Content)
	}
}

func TestChannelsAreIsolated(t *testing.T) {
	openTestDB(t)

	if _, err := AppendMessage(SpaceDirect, "conv1", models.Message{Content: "a"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if _, err := AppendMessage(SpaceDirect, "conv2", models.Message{Content: "b"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	// same channel id in the other space must not leak across
	if _, err := AppendMessage(SpaceGroup, "conv1", models.Message{Content: "c"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := ListMessages(SpaceDirect, "conv1", 0, false)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "a" {
		t.Fatalf("expected only conv1 direct messages; got %+v", msgs)
	}
}

func TestLatestMessage(t *testing.T) {
	openTestDB(t)

	if _, ok, err := LatestMessage(SpaceDirect, "empty"); err != nil || ok {
		t.Fatalf("expected empty channel; ok=%v err=%v", ok, err)
	}

	for _, c := range []string{"first", "second", "third"} {
		if _, err := AppendMessage(SpaceDirect, "conv1", models.Message{Content: c}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	m, ok, err := LatestMessage(SpaceDirect, "conv1")
	if err != nil || !ok {
		t.Fatalf("LatestMessage: ok=%v err=%v", ok, err)
	}
	if m.Content != "third" {
		t.Fatalf("expected latest=third; got %s", m.Content)
	}
}

func TestMutateMessageRecall(t *testing.T) {
	openTestDB(t)

	stored, err := AppendMessage(SpaceDirect, "conv1", models.Message{SenderID: "alice", Content: "secret"})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	got, err := MutateMessage(SpaceDirect, "conv1", stored.Timestamp, func(m *models.Message) error {
		m.Status = models.StatusRecalled
		m.Content = ""
		return nil
	})
	if err != nil {
		t.Fatalf("MutateMessage: %v", err)
	}
	if got.Status != models.StatusRecalled || got.Content != "" {
		t.Fatalf("recall not applied: %+v", got)
	}

	// persisted under the same key
	msgs, err := ListMessages(SpaceDirect, "conv1", 0, false)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message after mutate; got %d", len(msgs))
	}
	if msgs[0].Status != models.StatusRecalled {
		t.Fatalf("mutation not persisted: %+v", msgs[0])
	}
}

func TestMutateMessageNotFound(t *testing.T) {
	openTestDB(t)

	_, err := MutateMessage(SpaceDirect, "conv1", "2026-01-01T00:00:00Z", func(m *models.Message) error { return nil })
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound; got %v", err)
	}
}

func TestPerViewerDelete(t *testing.T) {
	openTestDB(t)

	stored, err := AppendMessage(SpaceDirect, "conv1", models.Message{SenderID: "alice", Content: "hi"})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	for i := 0; i < 2; i++ { // idempotent
		if _, err := MutateMessage(SpaceDirect, "conv1", stored.Timestamp, func(m *models.Message) error {
			m.MarkDeletedFor("bob")
			return nil
		}); err != nil {
			t.Fatalf("MutateMessage: %v", err)
		}
	}

	msgs, _ := ListMessages(SpaceDirect, "conv1", 0, false)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message; got %d", len(msgs))
	}
	m := msgs[0]
	if !m.DeletedFor("bob") {
		t.Fatalf("expected deleted for bob")
	}
	if m.DeletedFor("alice") {
		t.Fatalf("alice's view must be untouched")
	}
	if len(m.DeletedBy) != 1 {
		t.Fatalf("MarkDeletedFor not idempotent: %v", m.DeletedBy)
	}
}

func TestDeleteChannelMessages(t *testing.T) {
	openTestDB(t)

	for i := 0; i < 3; i++ {
		if _, err := AppendMessage(SpaceGroup, "g1", models.Message{Content: "x"}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	if _, err := AppendMessage(SpaceGroup, "g2", models.Message{Content: "keep"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	if err := DeleteChannelMessages(SpaceGroup, "g1"); err != nil {
		t.Fatalf("DeleteChannelMessages: %v", err)
	}
	msgs, _ := ListMessages(SpaceGroup, "g1", 0, false)
	if len(msgs) != 0 {
		t.Fatalf("expected g1 empty; got %d", len(msgs))
	}
	msgs, _ = ListMessages(SpaceGroup, "g2", 0, false)
	if len(msgs) != 1 {
		t.Fatalf("g2 must be untouched; got %d", len(msgs))
	}
}

func TestNotOpened(t *testing.T) {
	// no Open; operations must fail cleanly
	if _, err := AppendMessage(SpaceDirect, "c", models.Message{Content: "x"}); err == nil {
		t.Fatalf("expected error before Open")
	}
	if Ready() {
		t.Fatalf("Ready must be false before Open")
	}
}
