package catchup_test

import (
	"context"
	"testing"

	"github.com/go-estoria/catchup"
	streammemory "github.com/go-estoria/catchup/streamstore/memory"
)

func TestMultiStreamCatchupDrainsDiscoveredStreams(t *testing.T) {
	// Two sub-streams over the same position space are discovered through
	// the upstream stream. The shared downstream cursor carries progress
	// from one into the next, so already-seen positions are not re-read.
	first := newOrderStream("o1", "o2", "o3")
	second := newOrderStream("o1", "o2", "o3", "o4", "o5")

	upstream := streammemory.NewStream[catchup.Stream[string, int64]]("order-streams")
	upstream.Append(first, second)

	downstream := catchup.NewCursor(int64(0), catchup.Ordered[int64]())

	sub := &recordingSubscription{}
	registry := catchup.NewRegistry[string, int64]()
	registry.Register("orders", sub)

	pump, err := catchup.NewMultiStreamCatchup(
		upstream,
		catchup.NewCursor(int64(0), catchup.Ordered[int64]()),
		downstream,
		registry,
		catchup.WithMultiStreamBatchSize[string, int64, int64](2),
	)
	if err != nil {
		t.Fatalf("wanted no error creating pump, got %v", err)
	}

	updated, err := pump.RunUntilCaughtUp(context.Background())
	if err != nil {
		t.Fatalf("wanted no error catching up, got %v", err)
	}

	if got := updated.Position(); got != 2 {
		t.Errorf("wanted upstream cursor at 2, got %d", got)
	}

	if got := downstream.Position(); got != 5 {
		t.Errorf("wanted downstream cursor at 5, got %d", got)
	}

	if got := len(sub.items()); got != 5 {
		t.Errorf("wanted 5 aggregated items, got %d", got)
	}
}

func TestMultiStreamCatchupEmptyUpstream(t *testing.T) {
	upstream := streammemory.NewStream[catchup.Stream[string, int64]]("order-streams")
	cursor := catchup.NewCursor(int64(0), catchup.Ordered[int64]())

	pump, err := catchup.NewMultiStreamCatchup(
		upstream,
		cursor,
		catchup.NewCursor(int64(0), catchup.Ordered[int64]()),
		catchup.NewRegistry[string, int64](),
	)
	if err != nil {
		t.Fatalf("wanted no error creating pump, got %v", err)
	}

	if _, err := pump.RunSingleBatch(context.Background()); err != nil {
		t.Fatalf("wanted no error on empty upstream, got %v", err)
	}

	if got := cursor.Position(); got != 0 {
		t.Errorf("wanted upstream cursor unchanged at 0, got %d", got)
	}
}

func TestMultiStreamCatchupAdvancesUpstreamOnlyAfterDraining(t *testing.T) {
	failing := &failOnBatchSubscription{failOn: 1}
	registry := catchup.NewRegistry[string, int64]()
	registry.Register("orders", failing)

	upstream := streammemory.NewStream[catchup.Stream[string, int64]]("order-streams")
	upstream.Append(catchup.Stream[string, int64](newOrderStream("o1", "o2")))

	cursor := catchup.NewCursor(int64(0), catchup.Ordered[int64]())

	pump, err := catchup.NewMultiStreamCatchup(
		upstream,
		cursor,
		catchup.NewCursor(int64(0), catchup.Ordered[int64]()),
		registry,
	)
	if err != nil {
		t.Fatalf("wanted no error creating pump, got %v", err)
	}

	if _, err := pump.RunSingleBatch(context.Background()); err == nil {
		t.Fatal("wanted an error from the failing subscription")
	}

	if got := cursor.Position(); got != 0 {
		t.Errorf("wanted upstream cursor unchanged at 0 after inner failure, got %d", got)
	}
}
