// Package aggregate fans a normalized query out to every configured source
// concurrently, bounds each call by a timeout and merges partial successes
// with per-source error reporting. One unreliable source never fails the
// whole request; only a malformed query does.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sourcegraph/conc"

	"streamhub/models"
)

// DefaultTimeout bounds one source call.
const DefaultTimeout = 8 * time.Second

// ErrInvalidQuery is returned when a query carries neither free text nor an
// external identifier. No fan-out happens in that case.
var ErrInvalidQuery = errors.New("query must carry text or an external id")

// Source is the uniform contract every upstream implements, whether it is an
// in-process site adapter or a remote endpoint.
type Source interface {
	Name() string
	Resolve(ctx context.Context, q models.Query) (*models.SourceResult, error)
}

// Service coordinates the fan-out.
type Service struct {
	sources []Source
	timeout time.Duration
}

// New constructs the gateway. A non-positive timeout falls back to
// DefaultTimeout.
func New(timeout time.Duration, sources ...Source) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{sources: sources, timeout: timeout}
}

// Aggregate validates and normalizes the query, dispatches it to every
// source concurrently and merges the answers in configured source order,
// deterministic regardless of which source answers first. Per-source
// failures land in SourceErrors; the call itself only fails on an invalid
// query.
func (s *Service) Aggregate(ctx context.Context, q models.Query) (*models.AggregateResult, error) {
	q.Normalize()
	if !q.Valid() {
		return nil, ErrInvalidQuery
	}

	type slot struct {
		result *models.SourceResult
		err    error
	}
	slots := make([]slot, len(s.sources))

	var wg conc.WaitGroup
	for i, src := range s.sources {
		i, src := i, src
		wg.Go(func() {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			start := time.Now()
			result, err := src.Resolve(cctx, q)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
					err = fmt.Errorf("timed out after %s", s.timeout)
				}
				log.Printf("[aggregate] %s failed after %s: %v", src.Name(), time.Since(start).Round(time.Millisecond), err)
				slots[i] = slot{err: err}
				return
			}
			log.Printf("[aggregate] %s answered with %d item(s) in %s", src.Name(), len(result.Items), time.Since(start).Round(time.Millisecond))
			slots[i] = slot{result: result}
		})
	}
	wg.Wait()

	merged := &models.AggregateResult{Items: []models.Item{}, Streams: []models.Stream{}}
	sourceErrors := make(map[string]string)
	for i, sl := range slots {
		name := s.sources[i].Name()
		if sl.err != nil {
			sourceErrors[name] = sl.err.Error()
			continue
		}
		if sl.result == nil {
			continue
		}
		merged.Items = append(merged.Items, sl.result.Items...)
		merged.Streams = append(merged.Streams, sl.result.Streams...)
	}
	if len(sourceErrors) > 0 {
		merged.SourceErrors = sourceErrors
	}
	return merged, nil
}
