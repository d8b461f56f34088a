package lane

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/tradewatch/internal/model"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches []Batch
	notify  chan Batch
}

func newBatchRecorder() *batchRecorder {
	return &batchRecorder{notify: make(chan Batch, 100)}
}

func (r *batchRecorder) flush(b Batch) {
	r.mu.Lock()
	r.batches = append(r.batches, b)
	r.mu.Unlock()
	r.notify <- b
}

func (r *batchRecorder) all() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Batch, len(r.batches))
	copy(out, r.batches)
	return out
}

func (r *batchRecorder) wait(t *testing.T, timeout time.Duration) Batch {
	t.Helper()
	select {
	case b := <-r.notify:
		return b
	case <-time.After(timeout):
		t.Fatal("timeout waiting for flush")
		return Batch{}
	}
}

func envelope(i int) model.Envelope {
	return model.Envelope{
		Category: model.LatestTrades,
		Payload:  json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
		Source:   model.SourcePush,
	}
}

func startLane(t *testing.T, cfg Config, rec *batchRecorder) *Lane {
	t.Helper()
	l := New(model.LatestTrades, cfg, rec.flush, nil)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		l.Stop(ctx)
	})
	return l
}

func TestDefaultConfig(t *testing.T) {
	trades := DefaultConfig(model.LatestTrades)
	if trades.MaxCount != 10 || trades.MaxWait != 500*time.Millisecond || trades.Policy != Accumulate {
		t.Errorf("latest trades config = %+v", trades)
	}
	for _, cat := range model.Categories() {
		if cat == model.LatestTrades {
			continue
		}
		cfg := DefaultConfig(cat)
		if cfg.MaxCount != 10 || cfg.MaxWait != 2*time.Second || cfg.Policy != Replace {
			t.Errorf("%s config = %+v", cat, cfg)
		}
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	l := New(model.SellVolume, Config{}, nil, nil)
	if l.Config().MaxCount != DefaultMaxCount || l.Config().MaxWait != DefaultMaxWait {
		t.Errorf("unexpected config: %+v", l.Config())
	}
}

// Two submits below the count threshold flush together once the deadline passes.
func TestLane_DeadlineFlush(t *testing.T) {
	rec := newBatchRecorder()
	maxWait := 200 * time.Millisecond
	l := startLane(t, Config{MaxCount: 3, MaxWait: maxWait, Policy: Accumulate}, rec)

	start := time.Now()
	l.Submit(envelope(1))
	l.Submit(envelope(2))

	select {
	case b := <-rec.notify:
		t.Fatalf("unexpected early flush: %+v", b)
	case <-time.After(maxWait / 2):
	}

	b := rec.wait(t, time.Second)
	elapsed := time.Since(start)
	if elapsed < maxWait {
		t.Errorf("flushed after %v, before max wait %v", elapsed, maxWait)
	}
	if elapsed > maxWait+300*time.Millisecond {
		t.Errorf("flushed after %v, too late", elapsed)
	}
	if b.Reason != ReasonDeadline {
		t.Errorf("reason = %s, want deadline", b.Reason)
	}
	if b.Count != 2 || len(b.Payloads) != 2 {
		t.Errorf("batch count=%d payloads=%d, want 2/2", b.Count, len(b.Payloads))
	}
	if b.Full {
		t.Error("incremental batch should not be full")
	}
}

// The count-th submit flushes immediately.
func TestLane_CountFlush(t *testing.T) {
	rec := newBatchRecorder()
	l := startLane(t, Config{MaxCount: 3, MaxWait: 2 * time.Second, Policy: Accumulate}, rec)

	start := time.Now()
	for i := 0; i < 3; i++ {
		l.Submit(envelope(i))
		time.Sleep(10 * time.Millisecond)
	}

	b := rec.wait(t, time.Second)
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("count flush took %v", time.Since(start))
	}
	if b.Reason != ReasonCount || b.Count != 3 {
		t.Errorf("batch = reason %s count %d", b.Reason, b.Count)
	}
	for i, p := range b.Payloads {
		if string(p) != fmt.Sprintf(`{"n":%d}`, i) {
			t.Errorf("payload[%d] = %s", i, p)
		}
	}

	// Flushed window leaves nothing pending and no deadline armed.
	time.Sleep(20 * time.Millisecond)
	state := l.Snapshot()
	if state.Count != 0 || state.Armed {
		t.Errorf("state after flush = %+v", state)
	}
}

func TestLane_NoLossNoDuplication(t *testing.T) {
	rec := newBatchRecorder()
	l := startLane(t, Config{MaxCount: 7, MaxWait: 50 * time.Millisecond, Policy: Accumulate}, rec)

	const total = 100
	for i := 0; i < total; i++ {
		l.Submit(envelope(i))
		if i%13 == 0 {
			time.Sleep(5 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	seen := make(map[string]int)
	sum := 0
	for _, b := range rec.all() {
		sum += b.Count
		for _, p := range b.Payloads {
			seen[string(p)]++
		}
	}
	if sum != total {
		t.Errorf("flushed count = %d, want %d", sum, total)
	}
	for i := 0; i < total; i++ {
		key := fmt.Sprintf(`{"n":%d}`, i)
		if seen[key] != 1 {
			t.Errorf("payload %s delivered %d times", key, seen[key])
		}
	}
	if l.Stats().ValveFlushes != 0 {
		t.Errorf("valve flushes = %d, want 0", l.Stats().ValveFlushes)
	}
}

func TestLane_FIFOAcrossBatches(t *testing.T) {
	rec := newBatchRecorder()
	l := startLane(t, Config{MaxCount: 4, MaxWait: time.Second, Policy: Accumulate}, rec)

	for i := 0; i < 12; i++ {
		l.Submit(envelope(i))
	}
	next := 0
	for k := 0; k < 3; k++ {
		b := rec.wait(t, time.Second)
		for _, p := range b.Payloads {
			if string(p) != fmt.Sprintf(`{"n":%d}`, next) {
				t.Fatalf("out of order payload %s, want n=%d", p, next)
			}
			next++
		}
	}
}

func TestLane_ReplacePolicy(t *testing.T) {
	rec := newBatchRecorder()
	l := New(model.SellVolume, Config{MaxCount: 3, MaxWait: time.Second, Policy: Replace}, rec.flush, nil)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop(context.Background())

	for i := 0; i < 3; i++ {
		l.Submit(envelope(i))
	}
	b := rec.wait(t, time.Second)
	if len(b.Payloads) != 1 || string(b.Payloads[0]) != `{"n":2}` {
		t.Errorf("replace batch payloads = %v", b.Payloads)
	}
	if b.Count != 3 || !b.Full {
		t.Errorf("count=%d full=%v, want 3/true", b.Count, b.Full)
	}
}

func TestLane_SnapshotResetsAccumulation(t *testing.T) {
	rec := newBatchRecorder()
	l := startLane(t, Config{MaxCount: 3, MaxWait: time.Second, Policy: Accumulate}, rec)

	l.Submit(envelope(1))
	snap := envelope(2)
	snap.Snapshot = true
	l.Submit(snap)
	l.Submit(envelope(3))

	b := rec.wait(t, time.Second)
	if !b.Full {
		t.Error("batch containing a snapshot should be full")
	}
	if len(b.Payloads) != 2 || string(b.Payloads[0]) != `{"n":2}` {
		t.Errorf("payloads = %s", b.Payloads)
	}
	if b.Count != 3 {
		t.Errorf("count = %d, want 3", b.Count)
	}
}

func TestLane_Valve(t *testing.T) {
	rec := newBatchRecorder()
	l := New(model.LatestTrades, Config{MaxCount: 2, MaxWait: time.Minute, Policy: Accumulate}, rec.flush, nil)

	// Force a window already at the threshold, as if the count trigger had been missed.
	l.count = 2
	l.payloads = []json.RawMessage{json.RawMessage(`1`), json.RawMessage(`2`)}
	l.windowStart = time.Now()
	l.timer = time.NewTimer(time.Minute)

	l.submit(envelope(3))

	b := rec.wait(t, time.Second)
	if b.Reason != ReasonValve || b.Count != 2 {
		t.Errorf("first batch = reason %s count %d, want valve/2", b.Reason, b.Count)
	}
	state := l.Snapshot()
	if state.Count != 1 || !state.Armed {
		t.Errorf("state after valve = %+v, want 1 pending with deadline", state)
	}
	if l.Stats().ValveFlushes != 1 {
		t.Errorf("valve flushes = %d", l.Stats().ValveFlushes)
	}
}

func TestLane_TimerArmedIffPending(t *testing.T) {
	l := New(model.LatestTrades, Config{MaxCount: 3, MaxWait: time.Minute, Policy: Accumulate}, func(Batch) {}, nil)

	if s := l.Snapshot(); s.Count != 0 || s.Armed {
		t.Fatalf("new lane state = %+v", s)
	}
	l.submit(envelope(1))
	if s := l.Snapshot(); s.Count != 1 || !s.Armed || s.WindowStart.IsZero() {
		t.Fatalf("after one submit = %+v", s)
	}
	l.submit(envelope(2))
	l.submit(envelope(3))
	if s := l.Snapshot(); s.Count != 0 || s.Armed || !s.WindowStart.IsZero() {
		t.Fatalf("after count flush = %+v", s)
	}
}

func TestLane_StopDrains(t *testing.T) {
	rec := newBatchRecorder()
	l := New(model.LatestTrades, Config{MaxCount: 10, MaxWait: time.Minute, Policy: Accumulate}, rec.flush, nil)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	l.Submit(envelope(1))
	l.Submit(envelope(2))

	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	b := rec.wait(t, time.Second)
	if b.Reason != ReasonDrain || b.Count != 2 {
		t.Errorf("drain batch = reason %s count %d", b.Reason, b.Count)
	}
	if l.Submit(envelope(3)) {
		t.Error("Submit after Stop should return false")
	}
}

func TestLane_StartTwice(t *testing.T) {
	l := New(model.LatestTrades, Config{}, nil, nil)
	if err := l.Stop(context.Background()); err != ErrNotStarted {
		t.Errorf("Stop before Start = %v", err)
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop(context.Background())
	if err := l.Start(context.Background()); err != ErrAlreadyStarted {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestLane_ConsumerPanicDoesNotStopLane(t *testing.T) {
	calls := make(chan int, 4)
	n := 0
	l := New(model.LatestTrades, Config{MaxCount: 1, MaxWait: time.Second, Policy: Accumulate}, func(b Batch) {
		n++
		calls <- n
		if n == 1 {
			panic("boom")
		}
	}, nil)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop(context.Background())

	l.Submit(envelope(1))
	l.Submit(envelope(2))
	for want := 1; want <= 2; want++ {
		select {
		case got := <-calls:
			if got != want {
				t.Errorf("call %d, want %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for flush")
		}
	}
}
