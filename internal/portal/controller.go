package portal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"certportal/internal/chain"
	"certportal/internal/models"
)

var (
	ErrEmptyCertID          = errors.New("certificate id is required")
	ErrVerificationInFlight = errors.New("verification already in progress")
	ErrVerificationFailed   = errors.New("verification failed")
)

// Recorder receives one audit row per settled verification.
type Recorder interface {
	Record(ctx context.Context, attempt *models.VerificationAttempt) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, *models.VerificationAttempt) error { return nil }

// Controller owns the ViewState of a single browser session and drives the
// Idle -> Loading -> Resolved/Failed cycle against a chain.Client.
type Controller struct {
	client chain.Client
	audit  Recorder
	log    *zap.SugaredLogger
	now    func() time.Time

	mu        sync.Mutex
	state     ViewState
	observers []func(ViewState)
}

type Option func(*Controller)

func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.audit = r
		}
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(client chain.Client, opts ...Option) *Controller {
	c := &Controller{
		client: client,
		audit:  nopRecorder{},
		log:    zap.NewNop().Sugar(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnChange registers fn to receive a snapshot after every state change.
// fn is called without the controller lock held.
func (c *Controller) OnChange(fn func(ViewState)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

func (c *Controller) Snapshot() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// update applies fn under the lock and then notifies observers.
func (c *Controller) update(fn func(s *ViewState) error) (ViewState, error) {
	c.mu.Lock()
	if err := fn(&c.state); err != nil {
		snap := c.state
		c.mu.Unlock()
		return snap, err
	}
	snap := c.state
	obs := append([]func(ViewState){}, c.observers...)
	c.mu.Unlock()

	for _, o := range obs {
		o(snap)
	}
	return snap, nil
}

// SetCertID records the input text. Result fields are left alone.
func (c *Controller) SetCertID(certID string) ViewState {
	snap, _ := c.update(func(s *ViewState) error {
		s.CertID = certID
		return nil
	})
	return snap
}

// Verify runs one verification cycle. It refuses to start while another is
// in flight, clears every result field before calling out, and always leaves
// Loading false once the client call settles.
func (c *Controller) Verify(ctx context.Context, certID string) (ViewState, error) {
	if certID == "" {
		return c.Snapshot(), ErrEmptyCertID
	}

	if _, err := c.update(func(s *ViewState) error {
		if s.Loading {
			return ErrVerificationInFlight
		}
		*s = ViewState{CertID: certID, Loading: true, Phase: PhaseLoading}
		return nil
	}); err != nil {
		return c.Snapshot(), err
	}

	start := c.now()
	res, callErr := c.call(ctx, certID)
	elapsed := c.now().Sub(start)

	snap, _ := c.update(func(s *ViewState) error {
		s.Loading = false
		if callErr != nil {
			s.Phase = PhaseFailed
			s.Message = MsgVerificationFailed
			return nil
		}
		s.IsValid = res.IsValid
		s.StudentName = res.StudentName
		s.BlobID = res.BlobID
		if res.IsValid {
			s.Phase = PhaseResolvedValid
		} else {
			s.Phase = PhaseResolvedInvalid
			s.Message = MsgInvalid
		}
		return nil
	})

	c.record(ctx, certID, snap, callErr, elapsed)

	if callErr != nil {
		return snap, fmt.Errorf("%w: %w", ErrVerificationFailed, callErr)
	}
	return snap, nil
}

// call shields the cycle from a panicking client so Loading is still cleared.
func (c *Controller) call(ctx context.Context, certID string) (res models.VerificationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("verification client panicked: %v", r)
		}
	}()
	return c.client.VerifyCertificate(ctx, certID)
}

// ImageLoadFailed is reported by the page when the gateway image fails to
// load. Verification state is untouched. Reports for an image that is not
// currently rendered (a late report from a previous cycle) are ignored.
func (c *Controller) ImageLoadFailed() ViewState {
	snap, _ := c.update(func(s *ViewState) error {
		if s.ShowImage() {
			s.Message = MsgImageFailed
		}
		return nil
	})
	return snap
}

func (c *Controller) record(ctx context.Context, certID string, snap ViewState, callErr error, elapsed time.Duration) {
	a := &models.VerificationAttempt{
		CertID:      certID,
		StudentName: snap.StudentName,
		BlobID:      snap.BlobID,
		DurationMs:  elapsed.Milliseconds(),
		CreatedAt:   c.now(),
	}
	switch snap.Phase {
	case PhaseResolvedValid:
		a.Outcome = models.OutcomeValid
	case PhaseResolvedInvalid:
		a.Outcome = models.OutcomeInvalid
	default:
		a.Outcome = models.OutcomeFailed
	}
	if callErr != nil {
		a.Error = callErr.Error()
		c.log.Warnw("certificate verification failed", "cert_id", certID, "duration", elapsed, "error", callErr)
	} else {
		c.log.Infow("certificate verified", "cert_id", certID, "outcome", a.Outcome, "duration", elapsed)
	}

	// the audit row outlives a cancelled request
	if err := c.audit.Record(context.WithoutCancel(ctx), a); err != nil {
		c.log.Errorw("failed to record verification attempt", "cert_id", certID, "error", err)
	}
}
