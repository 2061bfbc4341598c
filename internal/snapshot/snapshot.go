// Package snapshot produces the named aggregates that are streamed to live
// clients. Every source is sampled on demand; Safe turns failures into an
// error payload so a broken source never stops the stream.
package snapshot

import (
	"context"
	"fmt"

	"github.com/agentstation/utc"
	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/agentstation/autonomy/pkg/constants"
	"github.com/agentstation/autonomy/pkg/logging"
)

// Source produces a named, JSON-serializable aggregate. Sample never fails;
// failures are reported inside the payload.
type Source interface {
	Name() string
	Sample(ctx context.Context) any
}

// Sampler is a source that may fail. Wrap it with Safe to get a Source.
type Sampler interface {
	Name() string
	Sample(ctx context.Context) (any, error)
}

// Snapshot is one sample of a source.
type Snapshot struct {
	Name       string   `json:"name"`
	Payload    any      `json:"payload"`
	CapturedAt utc.Time `json:"captured_at"`
}

// ErrorPayload replaces the payload of a failed sample.
type ErrorPayload struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// Take samples s and stamps the result with the capture time.
func Take(ctx context.Context, s Sampler, clk clock.Clock) (Snapshot, error) {
	payload, err := s.Sample(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Name:       s.Name(),
		Payload:    payload,
		CapturedAt: utc.New(clk.Now()),
	}, nil
}

type safe struct {
	inner  Sampler
	clock  clock.Clock
	logger *zerolog.Logger
}

// Safe wraps s so that errors and panics become an ErrorPayload.
func Safe(s Sampler, clk clock.Clock, logger *zerolog.Logger) Source {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &safe{inner: s, clock: clk, logger: logger}
}

func (s *safe) Name() string {
	return s.inner.Name()
}

func (s *safe) Sample(ctx context.Context) (out any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("source", s.inner.Name()).
				Interface("panic", r).
				Msg("Snapshot source panicked")
			out = s.errorPayload(fmt.Errorf("panic: %v", r))
		}
	}()

	payload, err := s.inner.Sample(ctx)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("source", s.inner.Name()).
			Msg("Snapshot source failed")
		return s.errorPayload(err)
	}
	return payload
}

func (s *safe) errorPayload(err error) ErrorPayload {
	return ErrorPayload{
		Error:     err.Error(),
		Timestamp: s.clock.Now().UTC().Format(constants.TimeFormatISO8601),
	}
}
