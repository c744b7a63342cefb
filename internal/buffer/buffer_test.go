package buffer

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajaro/RecordManager-Finna/internal/document"
)

type fakeSender struct {
	mu        sync.Mutex
	sends     [][]byte
	commits   int
	awaits    int
	sendErr   error
	commitErr error
	awaitErr  error
}

func (f *fakeSender) Send(ctx context.Context, body []byte, longTimeout bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	cp := make([]byte, len(body))
	copy(cp, body)
	f.sends = append(f.sends, cp)
	return nil
}

func (f *fakeSender) Commit(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return f.commitErr
	}
	f.commits++
	return nil
}

func (f *fakeSender) Await(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awaits++
	err := f.awaitErr
	f.awaitErr = nil
	return err
}

func TestAddFlushesAtRecordCeiling(t *testing.T) {
	sender := &fakeSender{}
	b := New(Config{MaxUpdateRecords: 2, MaxUpdateSize: 1 << 20}, sender)

	require.NoError(t, b.Add(context.Background(), document.Doc{"id": "1"}, 1, true))
	assert.Empty(t, sender.sends, "should not flush before the ceiling")

	require.NoError(t, b.Add(context.Background(), document.Doc{"id": "2"}, 2, true))
	assert.Len(t, sender.sends, 1, "should flush once the record ceiling is hit")
}

func TestAddFlushesAtByteCeiling(t *testing.T) {
	sender := &fakeSender{}
	b := New(Config{MaxUpdateRecords: 1000, MaxUpdateSize: 10}, sender)

	require.NoError(t, b.Add(context.Background(), document.Doc{"id": "a-very-long-identifier-value"}, 1, true))
	assert.Len(t, sender.sends, 1, "should flush once the byte ceiling is hit")
}

func TestAddIssuesCommitOnCadence(t *testing.T) {
	sender := &fakeSender{}
	b := New(Config{MaxUpdateRecords: 1000, MaxUpdateSize: 1 << 20, CommitInterval: 2}, sender)

	require.NoError(t, b.Add(context.Background(), document.Doc{"id": "1"}, 1, false))
	assert.Equal(t, 0, sender.commits)

	require.NoError(t, b.Add(context.Background(), document.Doc{"id": "2"}, 2, false))
	assert.Equal(t, 1, sender.commits, "commit interval of 2 should fire on the 2nd record")
}

func TestAddSkipsCommitWhenNoCommit(t *testing.T) {
	sender := &fakeSender{}
	b := New(Config{MaxUpdateRecords: 1000, MaxUpdateSize: 1 << 20, CommitInterval: 1}, sender)

	require.NoError(t, b.Add(context.Background(), document.Doc{"id": "1"}, 1, true))
	assert.Equal(t, 0, sender.commits)
}

func TestDeleteFlushesAtBatchCeiling(t *testing.T) {
	sender := &fakeSender{}
	b := New(Config{MaxUpdateRecords: 1000, MaxUpdateSize: 1 << 20}, sender)

	for i := 0; i < maxDeleteBatch-1; i++ {
		require.NoError(t, b.Delete(context.Background(), "id"))
	}
	assert.Empty(t, sender.sends)

	require.NoError(t, b.Delete(context.Background(), "final"))
	assert.Len(t, sender.sends, 1, "1000 queued deletes should flush as one batch")
}

func TestFlushSendsPendingAddsAndDeletes(t *testing.T) {
	sender := &fakeSender{}
	b := New(Config{MaxUpdateRecords: 1000, MaxUpdateSize: 1 << 20}, sender)

	require.NoError(t, b.Add(context.Background(), document.Doc{"id": "1"}, 1, true))
	require.NoError(t, b.Delete(context.Background(), "2"))

	require.NoError(t, b.Flush(context.Background()))
	assert.Len(t, sender.sends, 2)
	assert.True(t, b.EverSent())
	assert.Equal(t, 1, sender.awaits, "flush must await the background worker after sending")
}

func TestFlushIsNoOpWhenNothingBuffered(t *testing.T) {
	sender := &fakeSender{}
	b := New(Config{MaxUpdateRecords: 1000, MaxUpdateSize: 1 << 20}, sender)

	require.NoError(t, b.Flush(context.Background()))
	assert.Empty(t, sender.sends)
	assert.False(t, b.EverSent())
	assert.Equal(t, 1, sender.awaits, "flush must still await even with nothing buffered")
}

func TestFlushSurfacesAwaitError(t *testing.T) {
	sender := &fakeSender{awaitErr: assert.AnError}
	b := New(Config{MaxUpdateRecords: 1000, MaxUpdateSize: 1 << 20}, sender)

	require.NoError(t, b.Add(context.Background(), document.Doc{"id": "1"}, 1, true))

	err := b.Flush(context.Background())
	assert.ErrorIs(t, err, assert.AnError, "a background transport failure must surface from flush")
}

func TestAddFlattensAllFieldsToScalar(t *testing.T) {
	sender := &fakeSender{}
	b := New(Config{MaxUpdateRecords: 1, MaxUpdateSize: 1 << 20}, sender)

	doc := document.Doc{document.FieldAllFields: []string{"alpha", "beta"}}
	require.NoError(t, b.Add(context.Background(), doc, 1, true))

	require.Len(t, sender.sends, 1)
	assert.Contains(t, string(sender.sends[0]), `"allfields":"alpha beta"`)
}
