package resultstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/nqdecode/internal/db"
	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/feature"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
)

var keyPrefix = domain.KeyPrefix + "raw_result:"

// store is the consumer interface for the result store (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo persists raw results as zstd-compressed JSON.
type Repo struct {
	store  store
	ttl    time.Duration
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	total  *prometheus.CounterVec
	logger *zap.Logger
}

// New creates a result repository.
// total is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(s store, total *prometheus.CounterVec, logger *zap.Logger) (*Repo, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{store: s, enc: enc, dec: dec, total: total, logger: logger}, nil
}

// WithTTL makes every write expire after ttl. Zero disables expiry.
func (r *Repo) WithTTL(ttl time.Duration) *Repo {
	r.ttl = ttl
	return r
}

// Put stores one result under its unique id, replacing any previous one.
func (r *Repo) Put(ctx context.Context, res rawresult.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", res.UniqueID(), err)
	}
	blob := r.enc.EncodeAll(data, make([]byte, 0, len(data)/4))

	key := resultKey(res.UniqueID())
	if r.ttl > 0 {
		err = r.store.SetWithTTL(ctx, key, blob, r.ttl)
	} else {
		err = r.store.Set(ctx, key, blob)
	}
	if err != nil {
		return fmt.Errorf("store result %s: %w", res.UniqueID(), err)
	}
	return nil
}

// PutMany stores results in order and stops at the first failure.
// It returns how many were stored.
func (r *Repo) PutMany(ctx context.Context, results []rawresult.Result) (int, error) {
	for i := range results {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := r.Put(ctx, results[i]); err != nil {
			return i, err
		}
	}
	return len(results), nil
}

// Get loads one result. A missing key returns domain.ErrNotFound.
func (r *Repo) Get(ctx context.Context, id feature.UniqueID) (rawresult.Result, error) {
	data, err := r.store.Get(ctx, resultKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			r.inc("miss")
			return rawresult.Result{}, fmt.Errorf("result %s: %w", id, domain.ErrNotFound)
		}
		return rawresult.Result{}, fmt.Errorf("load result %s: %w", id, err)
	}
	r.inc("hit")
	return r.decode(id, data)
}

// Lookup loads every stored result among ids. Missing or unreadable entries
// are left out; only store failures are returned.
func (r *Repo) Lookup(ctx context.Context, ids []feature.UniqueID) (map[feature.UniqueID]rawresult.Result, error) {
	out := make(map[feature.UniqueID]rawresult.Result, len(ids))
	for _, id := range ids {
		res, err := r.Get(ctx, id)
		switch {
		case err == nil:
			out[id] = res
		case errors.Is(err, domain.ErrNotFound):
		case errors.Is(err, domain.ErrMalformedResult):
			r.logger.Warn("Ignoring unreadable stored result",
				zap.String("unique_id", string(id)), zap.Error(err))
		default:
			return nil, err
		}
	}
	return out, nil
}

// Exists reports whether a result is stored for id.
func (r *Repo) Exists(ctx context.Context, id feature.UniqueID) (bool, error) {
	ok, err := r.store.Exists(ctx, resultKey(id))
	if err != nil {
		return false, fmt.Errorf("check result %s: %w", id, err)
	}
	return ok, nil
}

// Delete removes a stored result. A missing key returns domain.ErrNotFound.
func (r *Repo) Delete(ctx context.Context, id feature.UniqueID) error {
	ok, err := r.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("result %s: %w", id, domain.ErrNotFound)
	}
	if err := r.store.Del(ctx, resultKey(id)); err != nil {
		return fmt.Errorf("delete result %s: %w", id, err)
	}
	return nil
}

// IDs lists the unique ids of every stored result.
func (r *Repo) IDs(ctx context.Context) ([]feature.UniqueID, error) {
	keys, err := r.store.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	ids := make([]feature.UniqueID, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, feature.UniqueID(strings.TrimPrefix(k, keyPrefix)))
	}
	return ids, nil
}

func (r *Repo) decode(id feature.UniqueID, blob []byte) (rawresult.Result, error) {
	data, err := r.dec.DecodeAll(blob, nil)
	if err != nil {
		return rawresult.Result{}, fmt.Errorf("decompress result %s: %v: %w", id, err, domain.ErrMalformedResult)
	}
	var res rawresult.Result
	if err := json.Unmarshal(data, &res); err != nil {
		if !errors.Is(err, domain.ErrMalformedResult) {
			err = fmt.Errorf("%v: %w", err, domain.ErrMalformedResult)
		}
		return rawresult.Result{}, fmt.Errorf("stored result %s: %w", id, err)
	}
	return res, nil
}

func (r *Repo) inc(result string) {
	if r.total != nil {
		r.total.WithLabelValues(result).Inc()
	}
}

func resultKey(id feature.UniqueID) string {
	return keyPrefix + string(id)
}
