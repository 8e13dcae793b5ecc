package replication

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	domain "github.com/ahrav/osmdbt-courier/internal/domain/replication"
	"github.com/ahrav/osmdbt-courier/internal/infra/mediator"
)

// noopMetrics implements Metrics for testing.
type noopMetrics struct{}

func (noopMetrics) IncJobStarted(context.Context)                                             {}
func (noopMetrics) ObserveJobDuration(context.Context, int, time.Duration)                    {}
func (noopMetrics) ObserveCommandDuration(context.Context, string, string, int, time.Duration) {}
func (noopMetrics) IncObjectOp(context.Context, string)                                       {}
func (noopMetrics) IncS3Error(context.Context, string)                                        {}

// memObjectStore implements ObjectStore in memory for testing.
type memObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  map[string]error
	putErr  map[string]error
	puts    []string
	putNth  map[string]int

	// putErrFn, when set, can fail the nth put of a key (1-based).
	putErrFn func(key string, nth int) error
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{
		objects: make(map[string][]byte),
		getErr:  make(map[string]error),
		putErr:  make(map[string]error),
		putNth:  make(map[string]int),
	}
}

func (s *memObjectStore) GetObjectText(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.getErr[key]; err != nil {
		return "", err
	}
	data, ok := s.objects[key]
	if !ok {
		return "", domain.Errorf(domain.KindS3, "get %s: no such key", key)
	}
	return string(data), nil
}

func (s *memObjectStore) PutObject(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.putErr[key]; err != nil {
		return err
	}
	s.putNth[key]++
	if s.putErrFn != nil {
		if err := s.putErrFn(key, s.putNth[key]); err != nil {
			return err
		}
	}
	s.objects[key] = append([]byte(nil), data...)
	s.puts = append(s.puts, key)
	return nil
}

func (s *memObjectStore) object(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return string(data), ok
}

func (s *memObjectStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts)
}

// fakeTools implements ToolRunner with scriptable behavior.
type fakeTools struct {
	mu    sync.Mutex
	calls []string

	getLogFn     func(ctx context.Context) (string, error)
	createDiffFn func(ctx context.Context) (string, error)
	catchupFn    func(ctx context.Context) (string, error)
	fileInfoFn   func(ctx context.Context, diffPath string) (string, error)
}

func (t *fakeTools) record(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, name)
}

func (t *fakeTools) called(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.calls {
		if c == name {
			return true
		}
	}
	return false
}

func (t *fakeTools) GetLog(ctx context.Context) (string, error) {
	t.record("get-log")
	if t.getLogFn != nil {
		return t.getLogFn(ctx)
	}
	return "", nil
}

func (t *fakeTools) CreateDiff(ctx context.Context) (string, error) {
	t.record("create-diff")
	if t.createDiffFn != nil {
		return t.createDiffFn(ctx)
	}
	return "", nil
}

func (t *fakeTools) Catchup(ctx context.Context) (string, error) {
	t.record("catchup")
	if t.catchupFn != nil {
		return t.catchupFn(ctx)
	}
	return "", nil
}

func (t *fakeTools) FileInfo(ctx context.Context, diffPath string) (string, error) {
	t.record("fileinfo")
	if t.fileInfoFn != nil {
		return t.fileInfoFn(ctx, diffPath)
	}
	return "{}", nil
}

// mockMediator implements mediator.Mediator for testing.
type mockMediator struct{ mock.Mock }

func (m *mockMediator) ReserveAccess(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockMediator) CreateAction(ctx context.Context, state uint64) (uuid.UUID, error) {
	args := m.Called(ctx, state)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *mockMediator) UpdateAction(ctx context.Context, actionID uuid.UUID, status mediator.ActionStatus, metadata map[string]any) error {
	args := m.Called(ctx, actionID, status, metadata)
	return args.Error(0)
}

func (m *mockMediator) RemoveLock(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
