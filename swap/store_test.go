package swap

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/hotswap/errors"
	"github.com/wippyai/hotswap/loader"
	"github.com/wippyai/hotswap/storage"
	"github.com/wippyai/hotswap/testbed"
)

type fixture struct {
	store   *Store
	temp    *storage.TempStore
	factory *loader.Factory
	dir     string
}

func newFixture(t *testing.T, retire func(string)) *fixture {
	t.Helper()
	ctx := context.Background()

	temp, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	factory := loader.NewFactory(ctx)
	t.Cleanup(func() { factory.Close(ctx) })

	return &fixture{
		store: NewStore(Config{
			Storage: temp,
			Factory: factory,
			Retire:  retire,
		}),
		temp:    temp,
		factory: factory,
		dir:     t.TempDir(),
	}
}

// tagOf runs an execution against the current bundle and returns its
// module's tag export.
func tagOf(t *testing.T, s *Store) uint64 {
	t.Helper()
	out, err := s.WithCurrent(context.Background(), func(ctx context.Context, h loader.Handle) (any, error) {
		res, err := s.factory.Build(h, nil).Invoke(ctx, "tag")
		if err != nil {
			return nil, err
		}
		return res[0], nil
	})
	if err != nil {
		t.Fatalf("execution: %v", err)
	}
	return out.(uint64)
}

func TestReplaceSequenceVersions(t *testing.T) {
	f := newFixture(t, nil)

	for i, want := range []string{"1.0.0", "1.1.0", "2.0.0"} {
		if err := f.store.Replace(testbed.Bytes(want, byte(i+1))); err != nil {
			t.Fatalf("replace %d: %v", i, err)
		}
		if got := f.store.Version(); got != want {
			t.Errorf("after replace %d: version = %q, want %q", i, got, want)
		}
	}
}

func TestSetLocationReadYourWrites(t *testing.T) {
	f := newFixture(t, nil)

	p1 := testbed.WriteBundle(t, f.dir, "3.0.0", 1)
	f.store.SetLocation(p1)
	if got := f.store.Version(); got != "3.0.0" {
		t.Errorf("version = %q, want 3.0.0", got)
	}
	if got := f.store.Location(); got != p1 {
		t.Errorf("location = %q, want %q", got, p1)
	}

	// a location whose version cannot be derived leaves version absent
	f.store.SetLocation(filepath.Join(f.dir, "missing.zip"))
	if got := f.store.Version(); got != "" {
		t.Errorf("version after bad location = %q, want absent", got)
	}
}

func TestReplaceStorageFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.store.Replace(testbed.Bytes("1.0.0", 1)); err != nil {
		t.Fatal(err)
	}
	loc, ver := f.store.Info()

	f.store.storage = failingStorage{}
	err := f.store.Replace(testbed.Bytes("9.9.9", 9))
	if err == nil {
		t.Fatal("expected storage error")
	}
	if !errors.IsStorage(err) {
		t.Errorf("not a storage error: %v", err)
	}

	gotLoc, gotVer := f.store.Info()
	if gotLoc != loc || gotVer != ver {
		t.Errorf("state changed after failed replace: (%q, %q) -> (%q, %q)", loc, ver, gotLoc, gotVer)
	}
}

type failingStorage struct{}

func (failingStorage) StoreToTemp(data []byte, prefix string) (string, error) {
	return "", errors.Storage("disk on fire", nil)
}

func TestWithCurrentNoActiveBundle(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.store.WithCurrent(context.Background(), func(ctx context.Context, h loader.Handle) (any, error) {
		t.Error("fn must not run without an active bundle")
		return nil, nil
	})
	if !errors.IsResolution(err) {
		t.Fatalf("expected resolution error, got %v", err)
	}
}

// An execution that began before a replace keeps the bundle it started
// with; the replace does not wait for it; executions started after the
// replace see the new bundle.
func TestIsolationUnderContention(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.store.Replace(testbed.Bytes("1.0.0", 1)); err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	aResult := make(chan uint64, 1)
	aErr := make(chan error, 1)

	go func() {
		_, err := f.store.WithCurrent(ctx, func(ctx context.Context, h loader.Handle) (any, error) {
			close(started)
			<-release
			res, err := f.factory.Build(h, nil).Invoke(ctx, "tag")
			if err != nil {
				return nil, err
			}
			aResult <- res[0]
			return nil, nil
		})
		aErr <- err
	}()
	<-started

	// A is in flight holding the content read lock. If Replace waited
	// for it the test would deadlock: release is only closed after
	// Replace returns.
	begin := time.Now()
	if err := f.store.Replace(testbed.Bytes("2.0.0", 2)); err != nil {
		t.Fatal(err)
	}
	if d := time.Since(begin); d > 2*time.Second {
		t.Errorf("replace took %v with a reader in flight", d)
	}

	if got := f.store.Version(); got != "2.0.0" {
		t.Errorf("version after replace = %q, want 2.0.0", got)
	}
	if got := tagOf(t, f.store); got != 2 {
		t.Errorf("execution B got tag %d, want 2", got)
	}

	close(release)
	if err := <-aErr; err != nil {
		t.Fatalf("execution A failed: %v", err)
	}
	if got := <-aResult; got != 1 {
		t.Errorf("execution A got tag %d, want 1 (its original bundle)", got)
	}
}

// Replace's latency must not scale with how long in-flight readers run.
func TestReplaceLatencyIndependentOfReaders(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.store.Replace(testbed.Bytes("1.0.0", 1)); err != nil {
		t.Fatal(err)
	}

	const holdFor = 3 * time.Second
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := f.store.WithCurrent(ctx, func(ctx context.Context, h loader.Handle) (any, error) {
			close(started)
			time.Sleep(holdFor)
			return nil, nil
		})
		done <- err
	}()
	<-started

	begin := time.Now()
	if err := f.store.Replace(testbed.Bytes("2.0.0", 2)); err != nil {
		t.Fatal(err)
	}
	if d := time.Since(begin); d > holdFor/2 {
		t.Errorf("replace took %v, should not wait out the %v reader", d, holdFor)
	}

	if err := <-done; err != nil {
		t.Fatalf("held execution failed: %v", err)
	}
}

// Concurrent readers never observe a (location, version) pair that was
// not written atomically.
func TestNoTornLocationVersionPair(t *testing.T) {
	f := newFixture(t, nil)

	paths := make(map[string]string) // location -> version
	var locs []string
	for i := 0; i < 4; i++ {
		v := fmt.Sprintf("%d.0.0", i+1)
		p := testbed.WriteBundle(t, f.dir, v, byte(i+1))
		paths[p] = v
		locs = append(locs, p)
	}
	f.store.SetLocation(locs[0])

	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				f.store.SetLocation(locs[i%len(locs)])
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				loc, ver := f.store.Info()
				if want := paths[loc]; ver != want {
					t.Errorf("torn pair: location %q with version %q, want %q", loc, ver, want)
					return
				}
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestRetireUncontended(t *testing.T) {
	retired := make(chan string, 4)
	f := newFixture(t, func(loc string) { retired <- loc })

	if err := f.store.Replace(testbed.Bytes("1.0.0", 1)); err != nil {
		t.Fatal(err)
	}
	first := f.store.Location()

	if err := f.store.Replace(testbed.Bytes("2.0.0", 2)); err != nil {
		t.Fatal(err)
	}

	select {
	case loc := <-retired:
		if loc != first {
			t.Errorf("retired %q, want %q", loc, first)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("previous bundle never retired")
	}
}

func TestRetireWaitsForDrain(t *testing.T) {
	retired := make(chan string, 4)
	f := newFixture(t, func(loc string) { retired <- loc })
	ctx := context.Background()

	if err := f.store.Replace(testbed.Bytes("1.0.0", 1)); err != nil {
		t.Fatal(err)
	}
	first := f.store.Location()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := f.store.WithCurrent(ctx, func(ctx context.Context, h loader.Handle) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
		done <- err
	}()
	<-started

	if err := f.store.Replace(testbed.Bytes("2.0.0", 2)); err != nil {
		t.Fatal(err)
	}

	// the old bundle must not be retired while its reader still runs
	select {
	case loc := <-retired:
		t.Fatalf("retired %q while still in use", loc)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	select {
	case loc := <-retired:
		if loc != first {
			t.Errorf("retired %q, want %q", loc, first)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned bundle never retired after drain")
	}
}

// Executions racing with replacement always run the bundle their handle
// points at, never a half-swapped state.
func TestConcurrentExecutionsDuringReplace(t *testing.T) {
	var f *fixture
	f = newFixture(t, func(loc string) { f.temp.Remove(loc) })
	ctx := context.Background()

	if err := f.store.Replace(testbed.Bytes("1.0.0", 1)); err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			tag := byte(i%8 + 1)
			if err := f.store.Replace(testbed.Bytes(fmt.Sprintf("%d.0.0", tag), tag)); err != nil {
				t.Errorf("replace: %v", err)
				return
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := f.store.WithCurrent(ctx, func(ctx context.Context, h loader.Handle) (any, error) {
					res, err := f.factory.Build(h, nil).Invoke(ctx, "tag")
					if err != nil {
						return nil, err
					}
					if res[0] < 1 || res[0] > 8 {
						t.Errorf("unexpected tag %d", res[0])
					}
					return nil, nil
				})
				if err != nil {
					t.Errorf("execution: %v", err)
					return
				}
			}
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(stop)
	wg.Wait()
}
