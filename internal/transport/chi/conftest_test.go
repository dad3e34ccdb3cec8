package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/candidate"
	"github.com/kailas-cloud/nqdecode/internal/domain/feature"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
	"github.com/kailas-cloud/nqdecode/internal/usecase/decode"
	healthuc "github.com/kailas-cloud/nqdecode/internal/usecase/health"
	pipelineuc "github.com/kailas-cloud/nqdecode/internal/usecase/pipeline"
	submissionuc "github.com/kailas-cloud/nqdecode/internal/usecase/submission"
)

// mockResultRepo is an in-memory result store serving both the results
// endpoints and the pipeline lookup.
type mockResultRepo struct {
	mu   sync.Mutex
	data map[feature.UniqueID]rawresult.Result
}

func newMockResultRepo() *mockResultRepo {
	return &mockResultRepo{data: map[feature.UniqueID]rawresult.Result{}}
}

func (m *mockResultRepo) PutMany(_ context.Context, results []rawresult.Result) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range results {
		m.data[r.UniqueID()] = r
	}
	return len(results), nil
}

func (m *mockResultRepo) Get(_ context.Context, id feature.UniqueID) (rawresult.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[id]
	if !ok {
		return rawresult.Result{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *mockResultRepo) Lookup(_ context.Context, ids []feature.UniqueID) (map[feature.UniqueID]rawresult.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[feature.UniqueID]rawresult.Result, len(ids))
	for _, id := range ids {
		if r, ok := m.data[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (m *mockResultRepo) Delete(_ context.Context, id feature.UniqueID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.data, id)
	return nil
}

func (m *mockResultRepo) IDs(_ context.Context) ([]feature.UniqueID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]feature.UniqueID, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// newTestServer builds a server over the mock repo. A nil repo leaves the
// server without a store.
func newTestServer(repo *mockResultRepo, health *healthuc.Service) *Server {
	p := pipelineuc.New(decode.New(decode.DefaultOptions(), nil), nil)
	if health == nil {
		health = healthuc.New(nil)
	}
	if repo == nil {
		return NewServer(p, nil, submissionuc.New(submissionuc.DefaultThreshold, nil), health, nil)
	}
	p.WithStore(repo)
	return NewServer(p, repo, submissionuc.New(submissionuc.DefaultThreshold, nil), health, nil)
}

func newTestRouter(s *Server) http.Handler {
	return NewRouter(s, RouterConfig{})
}

// scenarioWindow is a 16 position window of document "1" where position p
// maps to original token p.
func scenarioWindow() feature.Window {
	m := make(map[int]int, 15)
	for p := 1; p < 16; p++ {
		m[p] = p
	}
	return feature.Window{UniqueID: "1_0", InputIDs: make([]int, 16), TokenToOrigMap: m}
}

// scenarioResult peaks at start 5 and end 8 with SHORT as the top answer type.
func scenarioResult(t *testing.T) rawresult.Result {
	t.Helper()
	start := make([]float64, 16)
	end := make([]float64, 16)
	start[5], end[8] = 4, 3
	r, err := rawresult.NewDense("1_0", rawresult.Dense{
		StartLogits:      start,
		EndLogits:        end,
		AnswerTypeLogits: []float64{1, 0, 0, 2, 0},
	})
	if err != nil {
		t.Fatalf("NewDense: %v", err)
	}
	return r
}

func scenarioRequest(t *testing.T, withResult bool) DecodeRequest {
	t.Helper()
	req := DecodeRequest{
		Documents: []DocumentRequest{{
			ExampleID:  "1",
			Candidates: []candidate.Candidate{{StartToken: 3, EndToken: 10, TopLevel: true}},
		}},
		Features: []feature.Window{scenarioWindow()},
	}
	if withResult {
		req.Results = []rawresult.Result{scenarioResult(t)}
	}
	return req
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// doRaw sends json.RawMessage bodies byte for byte, so broken JSON reaches the handler.
func doRaw(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, ok := body.(json.RawMessage)
	if !ok {
		return doJSON(t, h, method, target, body)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil {
		t.Fatalf("decode error response: %v (body %q)", err, rr.Body.String())
	}
	return e
}
