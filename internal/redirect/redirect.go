// Package redirect negotiates the post-payment hop back to the merchant.
package redirect

import (
	"errors"
	"sync"
	"time"

	"github.com/pavlovicisidora/sep/internal/sched"
)

var ErrAlreadyIssued = errors.New("redirect already issued for this session")

// Outcome is the terminal result of one payment session. It is produced
// exactly once by the session machine and consumed exactly once here.
type Outcome struct {
	Success bool
	// Target is where the payer should land. For failures it is the
	// processor-supplied recovery page and may be empty.
	Target  string
	Message string
	// MerchantSupplied marks whether Target came from the merchant chain or
	// is a processor default.
	MerchantSupplied bool
}

// Plan is a resolved redirect: where to go and how long to let the outcome
// message render first.
type Plan struct {
	Target string
	Delay  time.Duration
}

const (
	DefaultSuccessDelay = 1500 * time.Millisecond
	DefaultFailureDelay = 2 * time.Second
)

// Redirector issues at most one redirect per session. Success outcomes get a
// short display delay so the confirmation message renders; failure outcomes
// redirect only when a recovery target exists, with a slightly longer delay.
type Redirector struct {
	scheduler    sched.Scheduler
	navigate     func(target string)
	successDelay time.Duration
	failureDelay time.Duration

	mu     sync.Mutex
	issued bool
	cancel sched.CancelFunc
}

type Option func(*Redirector)

// WithSuccessDelay overrides the success display delay. The QR flow uses a
// shorter one than the card flow.
func WithSuccessDelay(d time.Duration) Option {
	return func(r *Redirector) { r.successDelay = d }
}

func WithFailureDelay(d time.Duration) Option {
	return func(r *Redirector) { r.failureDelay = d }
}

func New(scheduler sched.Scheduler, navigate func(target string), opts ...Option) *Redirector {
	r := &Redirector{
		scheduler:    scheduler,
		navigate:     navigate,
		successDelay: DefaultSuccessDelay,
		failureDelay: DefaultFailureDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PlanFor resolves the redirect for an outcome. The second return value is
// false when no redirect should happen and the message is shown in place.
func (r *Redirector) PlanFor(o Outcome) (Plan, bool) {
	if o.Success {
		if o.Target == "" {
			return Plan{}, false
		}
		return Plan{Target: o.Target, Delay: r.successDelay}, true
	}
	if o.Target == "" {
		return Plan{}, false
	}
	return Plan{Target: o.Target, Delay: r.failureDelay}, true
}

// Issue schedules the navigation for an outcome. Exactly one redirect is
// ever issued; later calls fail with ErrAlreadyIssued even if the first
// outcome produced no navigation.
func (r *Redirector) Issue(o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.issued {
		return ErrAlreadyIssued
	}
	r.issued = true

	plan, ok := r.PlanFor(o)
	if !ok {
		return nil
	}

	r.cancel = r.scheduler.Schedule(plan.Delay, func() {
		r.navigate(plan.Target)
	})
	return nil
}

// Abort cancels a scheduled navigation that has not fired yet, for component
// teardown between Issue and the delay elapsing.
func (r *Redirector) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// Issued reports whether a redirect decision was already made.
func (r *Redirector) Issued() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.issued
}
