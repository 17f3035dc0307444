package reply

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ouederniamin/lead-fb-sub001/internal/logging"
	"github.com/Ouederniamin/lead-fb-sub001/internal/models"
	"github.com/Ouederniamin/lead-fb-sub001/internal/pacing"
	"github.com/Ouederniamin/lead-fb-sub001/internal/source"
	"github.com/Ouederniamin/lead-fb-sub001/internal/store"
)

type fakeSink struct {
	sent    []string
	failAt  int // 1-based send index to fail on; 0 = never
}

func (f *fakeSink) Send(ctx context.Context, ref, text string) error {
	if f.failAt > 0 && len(f.sent)+1 == f.failAt {
		return errors.New("sink rejected message")
	}
	f.sent = append(f.sent, text)
	return nil
}

type fakeGenerator struct {
	replies []string
	err     error
	history []source.ChatMessage
}

func (f *fakeGenerator) Generate(ctx context.Context, name string, history []source.ChatMessage, gctx models.GenerationContext) ([]string, error) {
	f.history = history
	return f.replies, f.err
}

func setup(t *testing.T, sink source.ActionSink, gen source.ReplyGenerator) (*store.Store, *Orchestrator, *models.Contact) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(st.Close)
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	c := &models.Contact{AccountID: "acc-1", ContactName: "Amine", ConversationRef: "t/1"}
	if _, err := st.UpsertContact(ctx, c); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := st.StageNeedsReply(ctx, c.ID, "", "hello?", time.Now()); err != nil {
		t.Fatalf("stage: %v", err)
	}
	c.State = models.StateNeedsReply

	clk := pacing.NewFakeClock(time.Unix(1000, 0))
	orch := New(st, sink, gen, clk, logging.New("error"), 10, 20)
	return st, orch, c
}

func countBySender(t *testing.T, st *store.Store, contactID int64) (them, ours int) {
	t.Helper()
	msgs, err := st.Messages(context.Background(), contactID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	for _, m := range msgs {
		if m.Sender == models.SenderUs {
			ours++
		} else {
			them++
		}
	}
	return
}

func TestRespondFullBatch(t *testing.T) {
	sink := &fakeSink{}
	gen := &fakeGenerator{replies: []string{"hey Amine!", "what are you working on?"}}
	st, orch, c := setup(t, sink, gen)
	ctx := context.Background()

	sent, err := orch.Respond(ctx, c, []string{"hello?", "anyone home?"}, nil)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent = %d", sent)
	}
	if len(sink.sent) != 2 || sink.sent[0] != "hey Amine!" {
		t.Errorf("sink.sent = %v", sink.sent)
	}
	// Generator saw the collected messages as part of history.
	if len(gen.history) != 2 {
		t.Errorf("generator history = %v", gen.history)
	}

	them, ours := countBySender(t, st, c.ID)
	if them != 2 || ours != 2 {
		t.Errorf("them=%d ours=%d", them, ours)
	}
	got, err := st.GetContact(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != models.StateWaiting || !got.LastMessageIsOurs {
		t.Errorf("contact = %+v", got)
	}
}

func TestRespondMidBatchFailureIsResumable(t *testing.T) {
	sink := &fakeSink{failAt: 2}
	gen := &fakeGenerator{replies: []string{"one", "two", "three"}}
	st, orch, c := setup(t, sink, gen)
	ctx := context.Background()

	sent, err := orch.Respond(ctx, c, []string{"hello?"}, nil)
	if err == nil {
		t.Fatal("expected send failure")
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}

	// Exactly the successfully sent replies are persisted, and the contact is
	// still NEEDS_REPLY so the next pass retries.
	_, ours := countBySender(t, st, c.ID)
	if ours != 1 {
		t.Errorf("ours = %d, want 1", ours)
	}
	got, err := st.GetContact(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != models.StateNeedsReply {
		t.Errorf("state = %s, want NEEDS_REPLY", got.State)
	}
	if got.LastMessageIsOurs {
		t.Error("lastMessageIsOurs must stay false on a failed batch")
	}
}

func TestRespondEmptyGenerationSkips(t *testing.T) {
	sink := &fakeSink{}
	gen := &fakeGenerator{replies: nil}
	st, orch, c := setup(t, sink, gen)
	ctx := context.Background()

	sent, err := orch.Respond(ctx, c, []string{"hello?"}, nil)
	if !errors.Is(err, ErrNoReply) {
		t.Fatalf("err = %v, want ErrNoReply", err)
	}
	if sent != 0 || len(sink.sent) != 0 {
		t.Errorf("sent = %d, sink = %v", sent, sink.sent)
	}
	got, _ := st.GetContact(ctx, c.ID)
	if got.State != models.StateNeedsReply {
		t.Errorf("state = %s, want NEEDS_REPLY (retry next pass)", got.State)
	}
	// The collected messages are still flushed durably before generation.
	them, _ := countBySender(t, st, c.ID)
	if them != 1 {
		t.Errorf("them = %d, want 1", them)
	}
}

// cancellingSink cancels the shared context right after the first successful
// send, simulating a cycle shutdown arriving mid-batch.
type cancellingSink struct {
	fakeSink
	cancel context.CancelFunc
}

func (c *cancellingSink) Send(ctx context.Context, ref, text string) error {
	if err := c.fakeSink.Send(ctx, ref, text); err != nil {
		return err
	}
	if len(c.sent) == 1 {
		c.cancel()
	}
	return nil
}

func TestRespondCancellationPersistsSentReplies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &cancellingSink{cancel: cancel}
	gen := &fakeGenerator{replies: []string{"one", "two"}}
	st, orch, c := setup(t, sink, gen)

	sent, err := orch.Respond(ctx, c, []string{"hello?"}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if sent != 1 || len(sink.sent) != 1 {
		t.Fatalf("sent = %d, sink = %v, want exactly the pre-cancel send", sent, sink.sent)
	}

	// The sent reply must be persisted despite the cancellation, and the
	// contact must stay NEEDS_REPLY so the next pass finishes the batch.
	_, ours := countBySender(t, st, c.ID)
	if ours != 1 {
		t.Errorf("ours = %d, want 1", ours)
	}
	got, err := st.GetContact(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != models.StateNeedsReply || got.LastMessageIsOurs {
		t.Errorf("contact = %+v", got)
	}
}

func TestRespondDeduplicatesFlushAcrossRuns(t *testing.T) {
	sink := &fakeSink{}
	gen := &fakeGenerator{replies: []string{"ok"}}
	st, orch, c := setup(t, sink, gen)
	ctx := context.Background()

	if _, err := orch.Respond(ctx, c, []string{"hello?"}, nil); err != nil {
		t.Fatalf("respond: %v", err)
	}
	// A retried run carrying the same collected text must not duplicate it.
	if _, err := orch.Respond(ctx, c, []string{"hello?"}, nil); err != nil {
		t.Fatalf("respond: %v", err)
	}
	them, _ := countBySender(t, st, c.ID)
	if them != 1 {
		t.Errorf("them = %d, want 1 (content-deduplicated)", them)
	}
}
