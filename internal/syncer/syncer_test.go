package syncer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ouederniamin/lead-fb-sub001/internal/logging"
	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
	"github.com/Ouederniamin/lead-fb-sub001/internal/source"
	"github.com/Ouederniamin/lead-fb-sub001/internal/store"
)

func setup(t *testing.T) (*store.Store, *Engine) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(st.Close)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st, New(st, logging.New("error"))
}

func TestDiffFlagsChangedContacts(t *testing.T) {
	st, eng := setup(t)
	ctx := context.Background()

	idA, err := st.UpsertContact(ctx, &models.Contact{AccountID: "acc-1", ContactName: "Amine", ConversationRef: "t/1"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := st.StageNeedsReply(ctx, idA, "", "hi", time.Now()); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := st.MarkReplied(ctx, idA, time.Now()); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if _, err := st.UpsertContact(ctx, &models.Contact{AccountID: "acc-1", ContactName: "Sami", ConversationRef: "t/2"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	now := time.Now()
	snapshot := []source.Preview{
		{ContactName: "Sami", LastMessagePreview: "hey, interested", LastMessageIsOurs: false},
		{ContactName: "Unknown Person", LastMessagePreview: "who dis", LastMessageIsOurs: false},
		{ContactName: "Amine", LastMessagePreview: "hi", LastMessageIsOurs: false},
	}
	flagged, err := eng.Diff(ctx, "acc-1", snapshot, now)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	// Amine's preview equals the ledger text (no change) and the unknown name
	// is untracked; only Sami is flagged.
	if len(flagged) != 1 || flagged[0].ContactName != "Sami" {
		t.Fatalf("flagged = %+v", flagged)
	}

	got, err := st.GetContact(ctx, flagged[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != models.StateNeedsReply || got.LastTheirMessage != "hey, interested" {
		t.Errorf("contact not staged: %+v", got)
	}
}

func TestDiffSkipsOurOwnMessages(t *testing.T) {
	st, eng := setup(t)
	ctx := context.Background()

	if _, err := st.UpsertContact(ctx, &models.Contact{AccountID: "acc-1", ContactName: "Amine", ConversationRef: "t/1"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	snapshot := []source.Preview{
		{ContactName: "Amine", LastMessagePreview: "thanks, talk soon", LastMessageIsOurs: true},
	}
	flagged, err := eng.Diff(ctx, "acc-1", snapshot, time.Now())
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(flagged) != 0 {
		t.Fatalf("flagged = %+v", flagged)
	}
}

func TestDiffPreservesSourceOrder(t *testing.T) {
	st, eng := setup(t)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		if _, err := st.UpsertContact(ctx, &models.Contact{AccountID: "acc-1", ContactName: name, ConversationRef: "t/" + name}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	snapshot := []source.Preview{
		{ContactName: "C", LastMessagePreview: "3"},
		{ContactName: "A", LastMessagePreview: "1"},
		{ContactName: "B", LastMessagePreview: "2"},
	}
	flagged, err := eng.Diff(ctx, "acc-1", snapshot, time.Now())
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(flagged) != 3 {
		t.Fatalf("flagged %d contacts", len(flagged))
	}
	for i, want := range []string{"C", "A", "B"} {
		if flagged[i].ContactName != want {
			t.Errorf("flagged[%d] = %s, want %s (source order)", i, flagged[i].ContactName, want)
		}
	}
}
