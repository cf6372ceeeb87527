package distributor_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-estoria/catchup"
	"github.com/go-estoria/catchup/distributor"
)

func TestNewRoundRobinValidation(t *testing.T) {
	for _, tt := range []struct {
		name          string
		haveResources []string
		wantErr       bool
	}{
		{
			name:          "creates a distributor over a non-empty resource set",
			haveResources: []string{"A", "B"},
		},
		{
			name:          "rejects an empty resource set",
			haveResources: []string{},
			wantErr:       true,
		},
		{
			name:          "rejects duplicate resources",
			haveResources: []string{"A", "A"},
			wantErr:       true,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := distributor.NewRoundRobin(tt.haveResources)

			if tt.wantErr {
				var initErr catchup.InitializationError
				if !errors.As(err, &initErr) {
					t.Errorf("wanted an InitializationError, got %v", err)
				}

				return
			}

			if err != nil {
				t.Errorf("wanted no error, got %v", err)
			}
		})
	}
}

func TestDistributeRequiresHandler(t *testing.T) {
	d, err := distributor.NewRoundRobin([]string{"A"})
	if err != nil {
		t.Fatalf("wanted no error creating distributor, got %v", err)
	}

	if _, err := d.Distribute(context.Background(), 1); err == nil {
		t.Error("wanted an error distributing without a handler")
	}
}

func TestDistributeProcessesEveryResourceOnce(t *testing.T) {
	d, err := distributor.NewRoundRobin([]string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("wanted no error creating distributor, got %v", err)
	}

	var mu sync.Mutex
	handled := []string{}

	d.OnReceive(func(_ context.Context, lease *distributor.Lease[string]) error {
		mu.Lock()
		defer mu.Unlock()

		handled = append(handled, lease.Resource())
		return nil
	})

	processed, err := d.Distribute(context.Background(), 3)
	if err != nil {
		t.Fatalf("wanted no error distributing, got %v", err)
	}

	sort.Strings(processed)
	sort.Strings(handled)

	want := []string{"A", "B", "C"}
	for i, resource := range want {
		if processed[i] != resource || handled[i] != resource {
			t.Fatalf("wanted every resource processed exactly once, processed %v handled %v", processed, handled)
		}
	}
}

func TestDistributeRoundRobinsBeforeRepeating(t *testing.T) {
	d, err := distributor.NewRoundRobin([]string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("wanted no error creating distributor, got %v", err)
	}

	d.OnReceive(func(_ context.Context, _ *distributor.Lease[string]) error {
		return nil
	})

	got := []string{}
	for i := 0; i < 6; i++ {
		processed, err := d.Distribute(context.Background(), 1)
		if err != nil {
			t.Fatalf("wanted no error distributing, got %v", err)
		}

		got = append(got, processed...)
	}

	want := []string{"A", "B", "C", "A", "B", "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("wanted round-robin order %v, got %v", want, got)
		}
	}
}

func TestAtMostOneOwnerPerResource(t *testing.T) {
	d, err := distributor.NewRoundRobin([]string{"A"})
	if err != nil {
		t.Fatalf("wanted no error creating distributor, got %v", err)
	}

	var owners atomic.Int32
	var violations atomic.Int32

	d.OnReceive(func(_ context.Context, _ *distributor.Lease[string]) error {
		if owners.Add(1) > 1 {
			violations.Add(1)
		}

		time.Sleep(time.Millisecond)
		owners.Add(-1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < 20; j++ {
				if _, err := d.Distribute(context.Background(), 1); err != nil {
					t.Errorf("wanted no error distributing, got %v", err)
				}
			}
		}()
	}

	wg.Wait()

	if violations.Load() != 0 {
		t.Errorf("wanted at most one concurrent owner, saw %d violations", violations.Load())
	}
}

func TestDistributeYieldsNothingWhileLeased(t *testing.T) {
	d, err := distributor.NewRoundRobin([]string{"A"})
	if err != nil {
		t.Fatalf("wanted no error creating distributor, got %v", err)
	}

	acquired := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	d.OnReceive(func(_ context.Context, _ *distributor.Lease[string]) error {
		if calls.Add(1) == 1 {
			close(acquired)
			<-release
		}

		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)

		if _, err := d.Distribute(context.Background(), 1); err != nil {
			t.Errorf("wanted no error from first distribution, got %v", err)
		}
	}()

	<-acquired

	processed, err := d.Distribute(context.Background(), 1)
	if err != nil {
		t.Fatalf("wanted no error from concurrent distribution, got %v", err)
	}

	if len(processed) != 0 {
		t.Errorf("wanted no acquisition while resource is leased, got %v", processed)
	}

	close(release)
	<-done

	processed, err = d.Distribute(context.Background(), 1)
	if err != nil {
		t.Fatalf("wanted no error after release, got %v", err)
	}

	if len(processed) != 1 || processed[0] != "A" {
		t.Errorf("wanted to acquire A after release, got %v", processed)
	}
}

func TestLeaseReleasedAfterHandlerFailure(t *testing.T) {
	d, err := distributor.NewRoundRobin([]string{"A"})
	if err != nil {
		t.Fatalf("wanted no error creating distributor, got %v", err)
	}

	var calls atomic.Int32

	d.OnReceive(func(_ context.Context, _ *distributor.Lease[string]) error {
		if calls.Add(1) == 1 {
			return errors.New("handler exploded")
		}

		return nil
	})

	processed, err := d.Distribute(context.Background(), 1)
	if err == nil {
		t.Fatal("wanted the handler error to propagate")
	}

	if len(processed) != 1 {
		t.Fatalf("wanted the failed resource reported as processed, got %v", processed)
	}

	// the failure must not poison the resource
	processed, err = d.Distribute(context.Background(), 1)
	if err != nil {
		t.Fatalf("wanted no error redistributing, got %v", err)
	}

	if len(processed) != 1 || processed[0] != "A" {
		t.Errorf("wanted to re-acquire A after a failed handler, got %v", processed)
	}
}

func TestExpiredLeaseIsReclaimable(t *testing.T) {
	d, err := distributor.NewRoundRobin([]string{"A"}, distributor.WithLeaseTTL[string](5*time.Millisecond))
	if err != nil {
		t.Fatalf("wanted no error creating distributor, got %v", err)
	}

	acquired := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	d.OnReceive(func(_ context.Context, _ *distributor.Lease[string]) error {
		if calls.Add(1) == 1 {
			close(acquired)
			<-release
		}

		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)

		_, _ = d.Distribute(context.Background(), 1)
	}()

	<-acquired
	time.Sleep(10 * time.Millisecond)

	processed, err := d.Distribute(context.Background(), 1)
	if err != nil {
		t.Fatalf("wanted no error reclaiming an expired lease, got %v", err)
	}

	if len(processed) != 1 || processed[0] != "A" {
		t.Errorf("wanted to reclaim A after lease expiry, got %v", processed)
	}

	close(release)
	<-done
}

func TestResourcesExposesFullSet(t *testing.T) {
	d, err := distributor.NewRoundRobin([]string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("wanted no error creating distributor, got %v", err)
	}

	var _ distributor.ResourceSet[string] = d

	resources := d.Resources()
	if len(resources) != 3 {
		t.Fatalf("wanted 3 resources, got %d", len(resources))
	}

	resources[0] = "mutated"
	if d.Resources()[0] != "A" {
		t.Error("wanted Resources to return a private copy")
	}
}
