// Package scheduler computes when a card is next due.
package scheduler

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/conorfennell/knolcards/internal/delay"
	"github.com/conorfennell/knolcards/internal/domain"
)

// ErrEmptyDelay is returned when no delay can be determined.
var ErrEmptyDelay = errors.New("scheduler: delay is empty")

// ErrMaxDelayTooLong is returned by New for a cap beyond delay.MaxDelayLimit.
var ErrMaxDelayTooLong = errors.New("scheduler: max delay too long")

// Params holds the jitter ranges and the delay cap.
type Params struct {
	// Jitter applied to every recalculated delay, drawn from [MinFactor, MaxFactor).
	MinFactor float64
	MaxFactor float64
	// Jitter applied to MaxDelay when the jittered delay exceeds it.
	ClampMinFactor float64
	ClampMaxFactor float64
	// MaxDelay caps every schedule, e.g. "30d".
	MaxDelay string
}

// DefaultParams provides the standard jitter ranges and a 30 day cap.
func DefaultParams() *Params {
	return &Params{
		MinFactor:      0.85,
		MaxFactor:      1.15,
		ClampMinFactor: 0.90,
		ClampMaxFactor: 1.00,
		MaxDelay:       "30d",
	}
}

// Scheduler draws jitter from its own random source. It is not safe for
// concurrent use.
type Scheduler struct {
	params         Params
	maxDelayMillis int64
	rng            *rand.Rand
}

// New creates a Scheduler. A nil rng is replaced by one seeded from the clock.
func New(p *Params, rng *rand.Rand) (*Scheduler, error) {
	if p == nil {
		p = DefaultParams()
	}
	maxMillis, err := delay.Millis(p.MaxDelay)
	if err != nil {
		return nil, fmt.Errorf("scheduler: max delay: %w", err)
	}
	if maxMillis > delay.MaxDelayLimit {
		return nil, fmt.Errorf("%w: max delay %q exceeds %s", ErrMaxDelayTooLong, p.MaxDelay, delay.FromMillis(delay.MaxDelayLimit))
	}
	if p.MinFactor <= 0 || p.MaxFactor < p.MinFactor || p.ClampMinFactor <= 0 || p.ClampMaxFactor < p.ClampMinFactor {
		return nil, fmt.Errorf("scheduler: invalid jitter ranges %+v", *p)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scheduler{params: *p, maxDelayMillis: maxMillis, rng: rng}, nil
}

// MaxDelay returns the configured cap.
func (s *Scheduler) MaxDelay() string {
	return s.params.MaxDelay
}

// Initial returns the schedule of a freshly created card: due one second
// after creation, without jitter.
func Initial(cardID int64, now time.Time) domain.Schedule {
	return domain.Schedule{
		CardID:             cardID,
		UpdatedAt:          now,
		OrigDelay:          "1s",
		Delay:              "1s",
		RandomFactor:       1.0,
		NextAccessInMillis: 1000,
		NextAccessAt:       now.Add(time.Second),
	}
}

// Next computes the schedule that follows cur. requested is the delay asked
// for by the caller (nil keeps the current one) and may be a coefficient such
// as "x2". The schedule is recomputed only if recalculate is set or the
// requested delay differs from cur.Delay; otherwise cur is returned with
// changed == false.
func (s *Scheduler) Next(cur domain.Schedule, requested *string, recalculate bool, now time.Time) (next domain.Schedule, changed bool, err error) {
	origDelay := cur.OrigDelay
	effective := cur.Delay
	if requested != nil {
		effective = strings.TrimSpace(*requested)
		origDelay = effective
	}
	if effective == "" {
		return cur, false, ErrEmptyDelay
	}
	if !delay.Valid(effective) {
		return cur, false, fmt.Errorf("%w: %q", delay.ErrInvalidDelayFormat, effective)
	}

	if !recalculate && effective == cur.Delay {
		return cur, false, nil
	}

	if delay.IsCoefficient(effective) {
		effective, err = delay.Resolve(cur.Delay, effective)
		if err != nil {
			return cur, false, err
		}
	}
	baseMillis, err := delay.Millis(effective)
	if err != nil {
		return cur, false, err
	}

	factor := s.draw(s.params.MinFactor, s.params.MaxFactor)
	// Compared as float so products beyond int64 still clamp.
	jittered := math.Round(float64(baseMillis) * factor)
	if jittered > float64(s.maxDelayMillis) {
		factor = s.draw(s.params.ClampMinFactor, s.params.ClampMaxFactor)
		jittered = math.Round(float64(s.maxDelayMillis) * factor)
		effective = s.params.MaxDelay
	}
	inMillis := int64(jittered)

	return domain.Schedule{
		CardID:             cur.CardID,
		UpdatedAt:          now,
		OrigDelay:          origDelay,
		Delay:              effective,
		RandomFactor:       factor,
		NextAccessInMillis: inMillis,
		NextAccessAt:       time.UnixMilli(now.UnixMilli() + inMillis),
	}, true, nil
}

// draw returns a value uniformly distributed in [lo, hi).
func (s *Scheduler) draw(lo, hi float64) float64 {
	return lo + (hi-lo)*s.rng.Float64()
}
