package resultstore

import (
	"context"
	"path"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/nqdecode/internal/db"
	"github.com/kailas-cloud/nqdecode/internal/domain/feature"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
)

// mockKVStore is an in-memory store recording TTL writes.
type mockKVStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration

	getErr error
	setErr error
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mockKVStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKVStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *mockKVStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.Set(ctx, key, value); err != nil {
		return err
	}
	m.mu.Lock()
	m.ttls[key] = ttl
	m.mu.Unlock()
	return nil
}

func (m *mockKVStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mockKVStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *mockKVStore) Scan(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockKVStore) {
	t.Helper()
	ms := newMockKVStore()
	r, err := New(ms, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, ms
}

func denseFixture(t *testing.T, id string) rawresult.Result {
	t.Helper()
	r, err := rawresult.NewDense(feature.UniqueID(id), rawresult.Dense{
		StartLogits:      []float64{0.1, 2.5, -1},
		EndLogits:        []float64{0, 1, 3.25},
		AnswerTypeLogits: []float64{1, 0, 0, 2, 0},
	})
	if err != nil {
		t.Fatalf("NewDense: %v", err)
	}
	return r
}

func topKFixture(t *testing.T, id string) rawresult.Result {
	t.Helper()
	r, err := rawresult.NewTopK(feature.UniqueID(id), rawresult.TopK{
		LongStart:        []rawresult.Entry{{Logit: 5, Index: 3}},
		LongEnd:          []rawresult.Entry{{Logit: 4, Index: 9}},
		ShortStart:       []rawresult.Entry{{Logit: 3, Index: 5}},
		ShortEnd:         []rawresult.Entry{{Logit: 2, Index: 7}},
		LongCLS:          1,
		ShortCLS:         0.5,
		AnswerTypeLogits: []float64{0.5, 0, 0, 1, 0},
	})
	if err != nil {
		t.Fatalf("NewTopK: %v", err)
	}
	return r
}
