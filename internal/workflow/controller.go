package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/liliang-cn/leadgen/internal/domain"
)

// ErrInvalidTransition is returned by Reset and Cancel when the current
// phase does not allow them
var ErrInvalidTransition = errors.New("invalid state transition")

// Validator turns raw input into a validated request
type Validator[In any, R domain.AnalysisRequest] func(raw In) (R, *domain.ErrorInfo)

// Dispatcher sends a validated request to the backend
type Dispatcher[R domain.AnalysisRequest] func(ctx context.Context, req R, sessionID string) (*domain.AnalysisResult, error)

// Observer receives a snapshot after every transition, in transition order.
// Observers run synchronously and must not call Submit, Reset or Cancel.
type Observer func(domain.State)

// Option configures a Controller
type Option func(*options)

type options struct {
	logger    *zap.Logger
	observers []Observer
	now       func() time.Time
}

// WithLogger sets the controller logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver registers an observer
func WithObserver(observer Observer) Option {
	return func(o *options) {
		o.observers = append(o.observers, observer)
	}
}

// Controller is the submission state machine of one flow. Only one
// submission may be in flight at a time; every submission, reset and
// cancel starts a new generation, and a response belonging to an older
// generation is dropped instead of applied.
type Controller[In any, R domain.AnalysisRequest] struct {
	flow     domain.Flow
	validate Validator[In, R]
	dispatch Dispatcher[R]
	fallback string

	logger    *zap.Logger
	observers []Observer
	now       func() time.Time

	// notifyMu serializes transition+notification so observers and
	// subscribers see transitions in order.
	notifyMu    sync.Mutex
	mu          sync.Mutex
	state       domain.State
	cancel      context.CancelFunc
	subscribers map[chan domain.State]struct{}
}

// NewController creates a controller in the Idle phase
func NewController[In any, R domain.AnalysisRequest](
	flow domain.Flow,
	validate Validator[In, R],
	dispatch Dispatcher[R],
	opts ...Option,
) *Controller[In, R] {
	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Controller[In, R]{
		flow:        flow,
		validate:    validate,
		dispatch:    dispatch,
		fallback:    domain.FallbackMessage(flow),
		logger:      o.logger.With(zap.String("flow", string(flow))),
		observers:   o.observers,
		now:         o.now,
		state:       domain.State{Flow: flow, Phase: domain.PhaseIdle, UpdatedAt: o.now()},
		subscribers: make(map[chan domain.State]struct{}),
	}
}

// Flow returns the flow this controller drives
func (c *Controller[In, R]) Flow() domain.Flow {
	return c.flow
}

// State returns a snapshot of the current state
func (c *Controller[In, R]) State() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Submit validates raw and, when valid, dispatches it and waits for the
// outcome. It returns false without touching anything when a submission
// is already underway.
func (c *Controller[In, R]) Submit(ctx context.Context, raw In, sessionID string) bool {
	run, ok := c.begin(ctx, raw, sessionID)
	if !ok {
		return false
	}
	run()
	return true
}

// SubmitAsync is Submit resolved in the background. The channel receives
// the snapshot that ended the submission, or the current state if the
// submission was cancelled.
func (c *Controller[In, R]) SubmitAsync(ctx context.Context, raw In, sessionID string) (<-chan domain.State, bool) {
	run, ok := c.begin(ctx, raw, sessionID)
	if !ok {
		return nil, false
	}

	done := make(chan domain.State, 1)
	go func() {
		done <- run()
		close(done)
	}()
	return done, true
}

// Reset returns a Success or Failed flow to Idle, dropping result, error and input
func (c *Controller[In, R]) Reset() error {
	var from domain.Phase
	_, ok := c.transition(func(s *domain.State) bool {
		from = s.Phase
		if !s.Phase.Terminal() {
			return false
		}
		*s = domain.State{Flow: c.flow, Phase: domain.PhaseIdle, Generation: s.Generation + 1}
		return true
	})
	if !ok {
		return fmt.Errorf("%w: cannot reset %s flow from %s", ErrInvalidTransition, c.flow, from)
	}
	return nil
}

// Cancel abandons the in-flight submission and returns the flow to Idle.
// Its response, if it still arrives, is discarded.
func (c *Controller[In, R]) Cancel() error {
	var from domain.Phase
	_, ok := c.transition(func(s *domain.State) bool {
		from = s.Phase
		if s.Phase != domain.PhaseSubmitting {
			return false
		}
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		*s = domain.State{Flow: c.flow, Phase: domain.PhaseIdle, Generation: s.Generation + 1}
		return true
	})
	if !ok {
		return fmt.Errorf("%w: cannot cancel %s flow from %s", ErrInvalidTransition, c.flow, from)
	}
	c.logger.Info("Submission cancelled")
	return nil
}

// Subscribe returns a channel of snapshots published after each transition
// and a function that ends the subscription. A subscriber that falls more
// than buffer snapshots behind misses the intermediate ones.
func (c *Controller[In, R]) Subscribe(buffer int) (<-chan domain.State, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.State, buffer)

	c.notifyMu.Lock()
	c.subscribers[ch] = struct{}{}
	c.notifyMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.notifyMu.Lock()
			delete(c.subscribers, ch)
			close(ch)
			c.notifyMu.Unlock()
		})
	}
}

// begin performs the synchronous part of a submission and returns the
// function that resolves it
func (c *Controller[In, R]) begin(ctx context.Context, raw In, sessionID string) (func() domain.State, bool) {
	var gen uint64
	_, ok := c.transition(func(s *domain.State) bool {
		if s.Phase.Busy() {
			return false
		}
		gen = s.Generation + 1
		*s = domain.State{Flow: c.flow, Phase: domain.PhaseValidating, Generation: gen}
		return true
	})
	if !ok {
		c.logger.Debug("Submission ignored, flow is busy")
		return nil, false
	}

	req, errInfo := c.validate(raw)
	if errInfo != nil {
		snap, _ := c.transition(func(s *domain.State) bool {
			if s.Generation != gen {
				return false
			}
			info := Normalize(errInfo, c.fallback)
			*s = domain.State{Flow: c.flow, Phase: domain.PhaseFailed, Error: &info, Generation: gen}
			return true
		})
		c.logger.Info("Input rejected", zap.String("reason", errInfo.Message))
		return func() domain.State { return snap }, true
	}

	dispatchCtx, cancel := context.WithCancel(ctx)
	_, ok = c.transition(func(s *domain.State) bool {
		if s.Generation != gen {
			return false
		}
		*s = domain.State{Flow: c.flow, Phase: domain.PhaseSubmitting, Input: req.Describe(), Generation: gen}
		c.cancel = cancel
		return true
	})
	if !ok {
		cancel()
		return c.State, true
	}

	return func() domain.State {
		defer cancel()
		return c.resolve(dispatchCtx, gen, req, sessionID)
	}, true
}

func (c *Controller[In, R]) resolve(ctx context.Context, gen uint64, req R, sessionID string) domain.State {
	start := c.now()
	c.logger.Info("Submitting analysis", zap.String("input", req.Describe()), zap.String("session_id", sessionID))

	result, err := c.dispatch(ctx, req, sessionID)

	snap, applied := c.transition(func(s *domain.State) bool {
		if s.Generation != gen || s.Phase != domain.PhaseSubmitting {
			return false
		}
		c.cancel = nil
		next := domain.State{Flow: c.flow, Input: s.Input, Generation: gen}
		if err != nil {
			info := Normalize(err, c.fallback)
			next.Phase = domain.PhaseFailed
			next.Error = &info
		} else if result == nil {
			info := domain.ErrorInfo{Kind: domain.ErrorKindUnknown, Message: c.fallback}
			next.Phase = domain.PhaseFailed
			next.Error = &info
		} else {
			next.Phase = domain.PhaseSuccess
			next.Result = result.Clone()
		}
		*s = next
		return true
	})

	if !applied {
		c.logger.Debug("Discarding stale response", zap.Uint64("generation", gen), zap.Error(err))
		return c.State()
	}

	elapsed := c.now().Sub(start)
	if snap.Phase == domain.PhaseFailed {
		c.logger.Warn("Analysis failed",
			zap.String("kind", string(snap.Error.Kind)),
			zap.String("message", snap.Error.Message),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	} else {
		c.logger.Info("Analysis completed", zap.Duration("elapsed", elapsed))
	}
	return snap
}

// transition applies fn to the state under lock and, when fn reports a
// change, stamps it and publishes the new snapshot
func (c *Controller[In, R]) transition(fn func(s *domain.State) bool) (domain.State, bool) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if !fn(&c.state) {
		snap := c.state.Clone()
		c.mu.Unlock()
		return snap, false
	}
	c.state.UpdatedAt = c.now()
	snap := c.state.Clone()
	c.mu.Unlock()

	for _, observe := range c.observers {
		observe(snap.Clone())
	}
	for ch := range c.subscribers {
		select {
		case ch <- snap.Clone():
		default:
		}
	}
	return snap, true
}
