package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(st.Close)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func seedContact(t *testing.T, st *Store, name string) *models.Contact {
	t.Helper()
	c := &models.Contact{
		AccountID:       "acc-1",
		ContactName:     name,
		ConversationRef: "t/" + name,
	}
	if _, err := st.UpsertContact(context.Background(), c); err != nil {
		t.Fatalf("upsert contact: %v", err)
	}
	return c
}

func TestSeedScheduleCreates24Slots(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sc, err := st.SeedSchedule(ctx, models.AgentLeadGen)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(sc.Slots) != 24 {
		t.Fatalf("got %d slots", len(sc.Slots))
	}
	for i, h := range sc.Slots {
		if h.Hour != i {
			t.Errorf("slot %d has hour %d", i, h.Hour)
		}
		if h.Enabled {
			t.Errorf("slot %d enabled by default", i)
		}
	}

	// Seeding again must be a no-op returning the same schedule.
	again, err := st.SeedSchedule(ctx, models.AgentLeadGen)
	if err != nil {
		t.Fatalf("re-seed: %v", err)
	}
	if again.ID != sc.ID {
		t.Errorf("re-seed created a new schedule: %d vs %d", again.ID, sc.ID)
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sc, err := st.SeedSchedule(ctx, models.AgentMessageAgent)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	sc.Enabled = true
	sc.Timezone = "Africa/Tunis"
	sc.Peak = models.PerKindCounts{DMs: 4}
	sc.Normal = models.PerKindCounts{DMs: 2}
	if err := st.PutSchedule(ctx, sc); err != nil {
		t.Fatalf("put: %v", err)
	}

	slot := sc.Slots[14]
	slot.Enabled = true
	slot.Overridden = true
	slot.Budget = models.PerKindCounts{DMs: 1, Comments: 2}
	slot.ScheduledTimes = []string{"14:05", "14:31"}
	if err := st.UpdateSlot(ctx, sc.ID, &slot); err != nil {
		t.Fatalf("update slot: %v", err)
	}

	got, err := st.GetSchedule(ctx, models.AgentMessageAgent)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Enabled || got.Timezone != "Africa/Tunis" || got.Peak.DMs != 4 {
		t.Errorf("schedule fields lost: %+v", got)
	}
	h := got.Slots[14]
	if !h.Enabled || !h.Overridden || h.Budget.Comments != 2 {
		t.Errorf("slot fields lost: %+v", h)
	}
	if len(h.ScheduledTimes) != 2 || h.ScheduledTimes[0] != "14:05" {
		t.Errorf("scheduled times lost: %v", h.ScheduledTimes)
	}
}

func TestStageNeedsReplyCAS(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	c := seedContact(t, st, "Amine")
	now := time.Now()

	if err := st.StageNeedsReply(ctx, c.ID, "", "salut", now); err != nil {
		t.Fatalf("stage: %v", err)
	}
	got, err := st.GetContact(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != models.StateNeedsReply || got.LastTheirMessage != "salut" {
		t.Errorf("contact not staged: %+v", got)
	}

	// A second cycle still holding the old preview must lose.
	err = st.StageNeedsReply(ctx, c.ID, "", "salut again", now)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, _ = st.GetContact(ctx, c.ID)
	if got.LastTheirMessage != "salut" {
		t.Errorf("losing write mutated the contact: %+v", got)
	}
}

func TestAppendMessagesDeduplicates(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	c := seedContact(t, st, "Amine")
	now := time.Now()

	n, err := st.AppendMessages(ctx, c.ID, models.SenderThem, []string{"hello", "are you there?"}, now)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if n != 2 {
		t.Fatalf("inserted %d, want 2", n)
	}

	// Re-append with one duplicate: only the new text lands.
	n, err = st.AppendMessages(ctx, c.ID, models.SenderThem, []string{"hello", "one more"}, now)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if n != 1 {
		t.Fatalf("inserted %d, want 1", n)
	}

	msgs, err := st.Messages(ctx, c.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	want := []string{"hello", "are you there?", "one more"}
	for i, m := range msgs {
		if m.Content != want[i] {
			t.Errorf("message %d = %q, want %q", i, m.Content, want[i])
		}
		if m.Sender != models.SenderThem {
			t.Errorf("message %d sender = %q", i, m.Sender)
		}
	}
}

func TestMarkReplied(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	c := seedContact(t, st, "Amine")

	if err := st.StageNeedsReply(ctx, c.ID, "", "hi", time.Now()); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := st.MarkReplied(ctx, c.ID, time.Now()); err != nil {
		t.Fatalf("mark replied: %v", err)
	}
	got, err := st.GetContact(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != models.StateWaiting || !got.LastMessageIsOurs {
		t.Errorf("contact = %+v", got)
	}
}

func TestListContactsScopedToAccount(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seedContact(t, st, "Amine")
	if _, err := st.UpsertContact(ctx, &models.Contact{AccountID: "acc-2", ContactName: "Sami"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	list, err := st.ListContacts(ctx, "acc-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ContactName != "Amine" {
		t.Errorf("list = %+v", list)
	}
}
