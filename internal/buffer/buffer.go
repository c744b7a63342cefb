// Package buffer implements the update buffer (C4): accumulates adds and
// deletes, flushing by record count, byte size, or explicit flush, and
// issuing intermediate commits on a configurable cadence, per spec.md §4.4.
package buffer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rajaro/RecordManager-Finna/internal/apperr"
	"github.com/rajaro/RecordManager-Finna/internal/document"
)

const maxDeleteBatch = 1000

// Sender is the subset of transport.Client the buffer needs.
type Sender interface {
	Send(ctx context.Context, body []byte, longTimeout bool) error
	Commit(ctx context.Context) error
	Await(ctx context.Context) error
}

// Config bounds the buffer's batching behavior, per spec.md §6.
type Config struct {
	MaxUpdateRecords int
	MaxUpdateSize    int // bytes
	CommitInterval   int // records between intermediate commits
}

// Buffer implements C4.
type Buffer struct {
	cfg    Config
	sender Sender

	mu         sync.Mutex
	addBuf     bytes.Buffer
	addCount   int
	deleteIDs  []string
	everSent   bool
}

// New builds a Buffer with the given ceilings (caller applies spec.md §6
// defaults: 5000 records, 1024 KiB, 50000-record commit interval).
func New(cfg Config, sender Sender) *Buffer {
	return &Buffer{cfg: cfg, sender: sender}
}

// EverSent reports whether any payload (add or delete) has been sent this
// pass, used by the driver to decide whether the final commit is needed.
func (b *Buffer) EverSent() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.everSent
}

// Add implements spec.md §4.4 add(doc, seq, noCommit). allfields is
// flattened to a single space-joined scalar before encoding, since the
// backend expects a scalar there.
func (b *Buffer) Add(ctx context.Context, doc document.Doc, seq int, noCommit bool) error {
	flat := doc.Clone()
	if lst := flat.GetList(document.FieldAllFields); len(lst) > 0 {
		flat[document.FieldAllFields] = strings.Join(lst, " ")
	}
	encoded, err := json.Marshal(flat)
	if err != nil {
		return apperr.Wrap(apperr.CodeStore, apperr.SeverityPass, "buffer", "Add", err)
	}

	b.mu.Lock()
	if b.addCount > 0 {
		b.addBuf.WriteByte(',')
	}
	b.addBuf.Write(encoded)
	b.addCount++
	shouldFlush := b.addCount >= b.cfg.MaxUpdateRecords || b.addBuf.Len() >= b.cfg.MaxUpdateSize
	b.mu.Unlock()

	if shouldFlush {
		if err := b.flushAdds(ctx); err != nil {
			return err
		}
	}

	if !noCommit && b.cfg.CommitInterval > 0 && seq%b.cfg.CommitInterval == 0 {
		if err := b.sender.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Delete implements spec.md §4.4 delete(id). At 1000 queued deletions it
// flushes as a single delete batch.
func (b *Buffer) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	b.deleteIDs = append(b.deleteIDs, id)
	shouldFlush := len(b.deleteIDs) >= maxDeleteBatch
	b.mu.Unlock()

	if shouldFlush {
		return b.flushDeletes(ctx)
	}
	return nil
}

// Flush implements spec.md §4.4 flush(): sends any pending add and delete
// batches, then awaits the background worker (spec.md §5's invariant that
// the driver awaits before the next send, before the final commit, and at
// flush()).
func (b *Buffer) Flush(ctx context.Context) error {
	if err := b.flushAdds(ctx); err != nil {
		return err
	}
	if err := b.flushDeletes(ctx); err != nil {
		return err
	}
	return b.sender.Await(ctx)
}

func (b *Buffer) flushAdds(ctx context.Context) error {
	b.mu.Lock()
	if b.addCount == 0 {
		b.mu.Unlock()
		return nil
	}
	payload := make([]byte, 0, b.addBuf.Len()+2)
	payload = append(payload, '[')
	payload = append(payload, b.addBuf.Bytes()...)
	payload = append(payload, ']')
	b.addBuf.Reset()
	b.addCount = 0
	b.everSent = true
	b.mu.Unlock()

	return b.sender.Send(ctx, payload, false)
}

func (b *Buffer) flushDeletes(ctx context.Context) error {
	b.mu.Lock()
	if len(b.deleteIDs) == 0 {
		b.mu.Unlock()
		return nil
	}
	ids := b.deleteIDs
	b.deleteIDs = nil
	b.everSent = true
	b.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, `"delete":{"id":%q}`, id)
	}
	buf.WriteByte('}')

	return b.sender.Send(ctx, buf.Bytes(), false)
}
