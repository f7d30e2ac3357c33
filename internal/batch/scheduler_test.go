package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"canvasbridge/engine/internal/progress"
)

type recorder struct {
	mu     sync.Mutex
	events []progress.Update
}

func (r *recorder) sink(u progress.Update) {
	r.mu.Lock()
	r.events = append(r.events, u)
	r.mu.Unlock()
}

func newTracker(r *recorder) *progress.Tracker {
	return progress.NewReporter(r.sink, nil).Track("cmd-1", "test_batch")
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("n%d", i)
	}
	return out
}

func identity(s string) string { return s }

func TestPartitionReconstructsList(t *testing.T) {
	for n := 0; n <= 25; n++ {
		for size := 1; size <= 11; size++ {
			items := ids(n)
			chunks := Partition(items, size)
			want := (n + size - 1) / size
			if len(chunks) != want {
				t.Fatalf("n=%d size=%d: expected %d chunks, got %d", n, size, want, len(chunks))
			}
			var joined []string
			for _, c := range chunks {
				if len(c) == 0 || len(c) > size {
					t.Fatalf("n=%d size=%d: bad chunk length %d", n, size, len(c))
				}
				joined = append(joined, c...)
			}
			if len(joined) != n {
				t.Fatalf("n=%d size=%d: expected %d items, got %d", n, size, n, len(joined))
			}
			for i := range joined {
				if joined[i] != items[i] {
					t.Fatalf("n=%d size=%d: order broken at %d", n, size, i)
				}
			}
		}
	}
}

func TestRunPreservesOrderAcrossChunks(t *testing.T) {
	rec := &recorder{}
	items := ids(23)
	process := func(_ context.Context, id string) Result {
		// Later items in a chunk finish first.
		var idx int
		fmt.Sscanf(id, "n%d", &idx)
		time.Sleep(time.Duration(10-idx%10) * time.Millisecond)
		return Succeeded(id, map[string]any{"index": idx})
	}
	out, err := Run(context.Background(), newTracker(rec), items, identity, process, Options{ChunkSize: 10, Sleep: NoSleep})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(out.Results))
	}
	for i, r := range out.Results {
		if r.NodeID != items[i] {
			t.Fatalf("result %d out of order: %s", i, r.NodeID)
		}
	}
	if out.Chunks != 3 || out.TotalChunks != 3 {
		t.Fatalf("expected 3 chunks, got %d/%d", out.Chunks, out.TotalChunks)
	}
}

func TestRunEventsAndPercentages(t *testing.T) {
	rec := &recorder{}
	items := ids(23)
	process := func(_ context.Context, id string) Result { return Succeeded(id, nil) }
	if _, err := Run(context.Background(), newTracker(rec), items, identity, process, Options{ChunkSize: 10, Sleep: NoSleep}); err != nil {
		t.Fatalf("run: %v", err)
	}
	events := rec.events
	if events[0].Status != progress.StatusStarted || events[0].Progress != 0 || events[0].TotalItems != 23 {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].Progress != progress.PercentPlanned {
		t.Fatalf("expected planning event at 5%%, got %d", events[1].Progress)
	}
	last := events[len(events)-1]
	if last.Status != progress.StatusCompleted || last.Progress != 100 || last.ProcessedItems != 23 {
		t.Fatalf("unexpected terminal event %+v", last)
	}
	var chunkSeen []int
	for i, e := range events {
		if i > 0 && e.Progress < events[i-1].Progress {
			t.Fatalf("progress decreased at event %d", i)
		}
		if e.Status == progress.StatusStarted && i != 0 {
			t.Fatalf("started emitted twice")
		}
		if e.Status.Terminal() && i != len(events)-1 {
			t.Fatalf("terminal event before the end")
		}
		if e.CurrentChunk != nil {
			if *e.TotalChunks != 3 {
				t.Fatalf("expected totalChunks=3, got %d", *e.TotalChunks)
			}
			chunkSeen = append(chunkSeen, *e.CurrentChunk)
		}
	}
	want := []int{1, 1, 2, 2, 3, 3}
	if fmt.Sprint(chunkSeen) != fmt.Sprint(want) {
		t.Fatalf("expected chunk sequence %v, got %v", want, chunkSeen)
	}
	// pre/post chunk percentages: 5,35 | 35,65 | 65,95
	var pcts []int
	for _, e := range events {
		if e.CurrentChunk != nil {
			pcts = append(pcts, e.Progress)
		}
	}
	if fmt.Sprint(pcts) != fmt.Sprint([]int{5, 35, 35, 65, 65, 95}) {
		t.Fatalf("unexpected chunk percentages %v", pcts)
	}
}

func TestRunItemFailuresDoNotAbort(t *testing.T) {
	rec := &recorder{}
	items := ids(7)
	process := func(_ context.Context, id string) Result {
		if id == "n3" {
			return Failed(id, "Node not found: %s", id)
		}
		if id == "n5" {
			panic("host exploded")
		}
		return Succeeded(id, nil)
	}
	out, err := Run(context.Background(), newTracker(rec), items, identity, process, Options{ChunkSize: 5, Sleep: NoSleep})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.SuccessCount != 5 || out.FailureCount != 2 {
		t.Fatalf("expected 5/2, got %d/%d", out.SuccessCount, out.FailureCount)
	}
	if out.SuccessCount+out.FailureCount != len(items) {
		t.Fatalf("counts must cover all items")
	}
	if !out.Success() {
		t.Fatalf("expected best-effort success")
	}
	if out.Results[5].Success || out.Results[5].NodeID != "n5" {
		t.Fatalf("expected panic captured as failure for n5, got %+v", out.Results[5])
	}
}

func TestRunAllFailuresIsNotSuccess(t *testing.T) {
	rec := &recorder{}
	process := func(_ context.Context, id string) Result { return Failed(id, "nope") }
	out, err := Run(context.Background(), newTracker(rec), ids(3), identity, process, Options{Sleep: NoSleep})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Success() {
		t.Fatalf("expected failure when no item succeeded")
	}
}

func TestRunSleepsBetweenChunksOnly(t *testing.T) {
	rec := &recorder{}
	var waits []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	process := func(_ context.Context, id string) Result { return Succeeded(id, nil) }
	if _, err := Run(context.Background(), newTracker(rec), ids(12), identity, process, Options{ChunkSize: 5, Delay: time.Second, Sleep: sleep}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(waits) != 2 || waits[0] != time.Second {
		t.Fatalf("expected two one-second pauses, got %v", waits)
	}
}

func TestRunCancelBetweenChunks(t *testing.T) {
	rec := &recorder{}
	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()
	process := func(_ context.Context, id string) Result {
		if id == "n0" {
			cancelFn()
		}
		return Succeeded(id, nil)
	}
	out, err := Run(ctx, newTracker(rec), ids(10), identity, process, Options{ChunkSize: 5, Sleep: NoSleep})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if out.Chunks != 1 || len(out.Results) != 5 {
		t.Fatalf("expected first chunk to finish, got chunks=%d results=%d", out.Chunks, len(out.Results))
	}
	last := rec.events[len(rec.events)-1]
	if last.Status != progress.StatusError {
		t.Fatalf("expected error terminal event, got %s", last.Status)
	}
}

func TestRunEmptyList(t *testing.T) {
	rec := &recorder{}
	process := func(_ context.Context, id string) Result { return Succeeded(id, nil) }
	out, err := Run(context.Background(), newTracker(rec), nil, identity, process, Options{Sleep: NoSleep})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.TotalChunks != 0 || out.Success() {
		t.Fatalf("expected empty unsuccessful outcome, got %+v", out)
	}
	last := rec.events[len(rec.events)-1]
	if last.Status != progress.StatusCompleted || last.Progress != 100 {
		t.Fatalf("expected completed event, got %+v", last)
	}
}

func TestResultMarshalFlattensPayload(t *testing.T) {
	data, err := Succeeded("1:2", map[string]any{"originalText": "a"}).MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"nodeId":"1:2","originalText":"a","success":true}` {
		t.Fatalf("unexpected json %s", data)
	}
	data, _ = Failed("9", "Node not found: %s", "9").MarshalJSON()
	if string(data) != `{"error":"Node not found: 9","nodeId":"9","success":false}` {
		t.Fatalf("unexpected json %s", data)
	}
}
