package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sourcegraph/conc/pool"

	"github.com/animus-labs/flowq/internal/collection"
	"github.com/animus-labs/flowq/internal/encoding/codec"
)

// record is the stored form of one outcome.
type record struct {
	Value any                     `json:"value"`
	Error *collection.ErrorStored `json:"error,omitempty"`
}

// ResultStore keeps one object per message under prefix/<message id>.
// Blocking reads poll with exponential backoff until their deadline.
type ResultStore struct {
	store  Store
	bucket string
	prefix string
	codec  codec.Codec
	// decoders resolve objects written under another content type.
	decoders *codec.Registry
	// parallelism bounds concurrent object reads within one batch.
	parallelism int
	now         func() time.Time
	newBackOff  func() backoff.BackOff
}

var (
	_ collection.Backend = (*ResultStore)(nil)
	_ collection.Storer  = (*ResultStore)(nil)
)

type ResultOption func(*ResultStore)

// WithReadParallelism bounds concurrent reads; values below one are ignored.
func WithReadParallelism(n int) ResultOption {
	return func(s *ResultStore) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithDecoders lets reads decode objects by their stored content type, so
// results written before a codec change stay readable.
func WithDecoders(r *codec.Registry) ResultOption {
	return func(s *ResultStore) { s.decoders = r }
}

func NewResultStore(store Store, bucket, prefix string, c codec.Codec, opts ...ResultOption) (*ResultStore, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("bucket is required")
	}
	if c == nil {
		c = codec.JSON()
	}
	s := &ResultStore{
		store:       store,
		bucket:      bucket,
		prefix:      strings.Trim(prefix, "/"),
		codec:       c,
		parallelism: 8,
		now:         time.Now,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *ResultStore) key(messageID string) string {
	if s.prefix == "" {
		return messageID
	}
	return path.Join(s.prefix, messageID)
}

func (s *ResultStore) StoreResult(ctx context.Context, messageID string, value any) error {
	return s.put(ctx, messageID, record{Value: value})
}

func (s *ResultStore) StoreError(ctx context.Context, messageID string, stored collection.ErrorStored) error {
	return s.put(ctx, messageID, record{Error: &stored})
}

func (s *ResultStore) put(ctx context.Context, messageID string, rec record) error {
	blob, err := s.codec.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", messageID, err)
	}
	if err := s.store.Put(ctx, s.bucket, s.key(messageID), bytes.NewReader(blob), int64(len(blob)), s.codec.ContentType()); err != nil {
		return fmt.Errorf("put result %s: %w", messageID, err)
	}
	return nil
}

func (s *ResultStore) GetStatus(ctx context.Context, ids []string) (int, error) {
	p := pool.NewWithResults[bool]().WithContext(ctx).WithMaxGoroutines(s.parallelism)
	for _, id := range ids {
		p.Go(func(ctx context.Context) (bool, error) {
			_, err := s.store.Stat(ctx, s.bucket, s.key(id))
			if errors.Is(err, ErrNotFound) {
				return false, nil
			}
			if err != nil {
				return false, fmt.Errorf("stat result %s: %w", id, err)
			}
			return true, nil
		})
	}
	present, err := p.Wait()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, ok := range present {
		if ok {
			count++
		}
	}
	return count, nil
}

// GetResults reads every id or fails as a whole. Outcomes already read are
// kept across polls; nothing is forgotten unless the whole batch succeeds.
// With RaiseOnError a stored error fails the call on the poll that reads it.
func (s *ResultStore) GetResults(ctx context.Context, ids []string, opts collection.FetchOptions) (out []collection.Outcome, err error) {
	start := s.now()
	defer func() {
		label := "ok"
		switch {
		case errors.Is(err, collection.ErrResultTimeout):
			label = "timeout"
			resultTimeoutCounter.Inc()
		case err != nil:
			label = "error"
		}
		resultFetchHistogram.WithLabelValues(label).Observe(s.now().Sub(start).Seconds())
	}()

	deadline := start.Add(opts.Timeout)
	found := make(map[string]collection.Outcome, len(ids))
	policy := s.newBackOff()
	for {
		complete, err := s.readMissing(ctx, ids, found)
		if err != nil {
			return nil, err
		}
		if opts.RaiseOnError {
			if stored := firstError(ids, found); stored != nil {
				return nil, stored
			}
		}
		if complete {
			break
		}
		if !opts.Block {
			return nil, collection.ErrResultMissing
		}
		remaining := deadline.Sub(s.now())
		if remaining <= 0 {
			return nil, collection.ErrResultTimeout
		}
		wait := policy.NextBackOff()
		if wait == backoff.Stop || wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	out = make([]collection.Outcome, 0, len(ids))
	for _, id := range ids {
		out = append(out, found[id])
	}
	if opts.Forget {
		for _, id := range ids {
			if err := s.store.Delete(ctx, s.bucket, s.key(id)); err != nil && !errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("forget result %s: %w", id, err)
			}
		}
	}
	return out, nil
}

func (s *ResultStore) readMissing(ctx context.Context, ids []string, found map[string]collection.Outcome) (bool, error) {
	type fetched struct {
		id      string
		outcome collection.Outcome
		ok      bool
	}
	p := pool.NewWithResults[fetched]().WithContext(ctx).WithMaxGoroutines(s.parallelism)
	for _, id := range ids {
		if _, ok := found[id]; ok {
			continue
		}
		p.Go(func(ctx context.Context) (fetched, error) {
			outcome, err := s.read(ctx, id)
			if errors.Is(err, ErrNotFound) {
				return fetched{id: id}, nil
			}
			if err != nil {
				return fetched{}, err
			}
			return fetched{id: id, outcome: outcome, ok: true}, nil
		})
	}
	reads, err := p.Wait()
	if err != nil {
		return false, err
	}
	for _, r := range reads {
		if r.ok {
			found[r.id] = r.outcome
		}
	}
	return len(found) == len(uniq(ids)), nil
}

func firstError(ids []string, found map[string]collection.Outcome) *collection.ErrorStored {
	for _, id := range ids {
		if outcome, ok := found[id]; ok && outcome.Err != nil {
			return outcome.Err
		}
	}
	return nil
}

func uniq(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func (s *ResultStore) read(ctx context.Context, id string) (collection.Outcome, error) {
	body, info, err := s.store.Get(ctx, s.bucket, s.key(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return collection.Outcome{}, err
		}
		return collection.Outcome{}, fmt.Errorf("get result %s: %w", id, err)
	}
	defer body.Close()
	blob, err := io.ReadAll(body)
	if err != nil {
		return collection.Outcome{}, fmt.Errorf("read result %s: %w", id, err)
	}
	var rec record
	if err := s.decoder(info.ContentType).Unmarshal(blob, &rec); err != nil {
		return collection.Outcome{}, fmt.Errorf("decode result %s: %w", id, err)
	}
	if rec.Error != nil {
		return collection.ErrorOutcome(id, *rec.Error), nil
	}
	return collection.ValueOutcome(id, rec.Value), nil
}

func (s *ResultStore) decoder(contentType string) codec.Codec {
	if s.decoders == nil || contentType == "" || contentType == s.codec.ContentType() {
		return s.codec
	}
	if c := s.decoders.Get(contentType); c != nil {
		return c
	}
	return s.codec
}
