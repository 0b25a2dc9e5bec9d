package list

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInbox serves a fixed batch once and records acknowledgements. The
// worker runs in its own goroutine, so all state is mutex-guarded.
type fakeInbox struct {
	mu       sync.Mutex
	messages []*InboundMessage
	fetchErr error
	ackErr   error
	acked    []string
	closed   int
}

func (f *fakeInbox) FetchPending(_ context.Context) ([]*InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	batch := f.messages
	f.messages = nil
	return batch, nil
}

func (f *fakeInbox) Acknowledge(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ackErr != nil {
		return f.ackErr
	}
	f.acked = append(f.acked, id)
	return nil
}

func (f *fakeInbox) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeInbox) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}

func (f *fakeInbox) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func inboundBatch() []*InboundMessage {
	return []*InboundMessage{
		{
			ID:         "1",
			Sender:     "alice@example.com",
			Recipients: []string{"list@example.com"},
			Subject:    "subscribe",
		},
		{
			ID:         "2",
			Sender:     "alice@example.com",
			Recipients: []string{"list@example.com"},
			Subject:    "hello everyone",
			Body:       "first post",
		},
		{
			ID:         "3",
			Sender:     "spam@example.com",
			Recipients: []string{"other@example.com"},
			Subject:    "not for the list",
		},
	}
}

func TestRunOnceProcessesAndAcknowledges(t *testing.T) {
	store := &fakeStore{}
	sender := &fakeSender{}
	inbox := &fakeInbox{messages: inboundBatch()}
	w := NewWorker(inbox, newTestManager(store, sender, true), time.Minute, make(chan error, 1))

	err := w.RunOnce(context.Background())
	require.NoError(t, err)

	// Every message is acknowledged, including the ignored one.
	assert.Equal(t, []string{"1", "2", "3"}, inbox.ackedIDs())
	assert.Equal(t, 1, inbox.closeCount())

	// The subscribe took effect before the post was fanned out.
	ok, _ := store.Contains(context.Background(), "alice@example.com")
	assert.True(t, ok)
}

func TestRunOncePropagatesFetchErrors(t *testing.T) {
	inbox := &fakeInbox{fetchErr: fmt.Errorf("connection refused")}
	w := NewWorker(inbox, newTestManager(&fakeStore{}, &fakeSender{}, true), time.Minute, make(chan error, 1))

	err := w.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, inbox.closeCount())
}

func TestRunOnceFatalErrorSkipsAcknowledge(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("disk full")}
	inbox := &fakeInbox{messages: inboundBatch()}
	w := NewWorker(inbox, newTestManager(store, &fakeSender{}, true), time.Minute, make(chan error, 1))

	err := w.RunOnce(context.Background())
	assert.Error(t, err)
	// The failing message stays in the mailbox for reprocessing.
	assert.Empty(t, inbox.ackedIDs())
}

func TestRunOnceAckFailureContinuesBatch(t *testing.T) {
	inbox := &fakeInbox{messages: inboundBatch(), ackErr: fmt.Errorf("connection reset")}
	w := NewWorker(inbox, newTestManager(&fakeStore{}, &fakeSender{}, true), time.Minute, make(chan error, 1))

	err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, inbox.ackedIDs())
}

func TestPollTreatsFetchErrorsAsTransient(t *testing.T) {
	inbox := &fakeInbox{fetchErr: fmt.Errorf("connection refused")}
	w := NewWorker(inbox, newTestManager(&fakeStore{}, &fakeSender{}, true), time.Minute, make(chan error, 1))

	err := w.poll(context.Background())
	assert.NoError(t, err)
}

func TestPollReturnsFatalErrors(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("disk full")}
	inbox := &fakeInbox{messages: inboundBatch()}
	w := NewWorker(inbox, newTestManager(store, &fakeSender{}, true), time.Minute, make(chan error, 1))

	err := w.poll(context.Background())
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	inbox := &fakeInbox{messages: inboundBatch()}
	store := &fakeStore{}
	errCh := make(chan error, 1)
	w := NewWorker(inbox, newTestManager(store, &fakeSender{}, true), time.Hour, errCh)

	ctx := context.Background()
	w.Start(ctx)
	// Start is idempotent.
	w.Start(ctx)

	// The first poll runs immediately on start.
	assert.Eventually(t, func() bool {
		return len(inbox.ackedIDs()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()
	w.Stop()

	select {
	case err := <-errCh:
		t.Fatalf("unexpected worker error: %v", err)
	default:
	}
}

func TestWorkerReportsFatalErrorOnChannel(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("disk full")}
	inbox := &fakeInbox{messages: inboundBatch()}
	errCh := make(chan error, 1)
	w := NewWorker(inbox, newTestManager(store, &fakeSender{}, true), time.Hour, errCh)

	w.Start(context.Background())

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a fatal error on the error channel")
	}
}
