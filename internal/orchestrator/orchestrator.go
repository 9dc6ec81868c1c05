// Package orchestrator runs the validation pipeline for a piece of
// user-authored content. Safety always runs first and a critical safety
// signal ends the run before any other validator can influence it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/response"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/safety"
)

type State string

const (
	StateSafetyFirst     State = "SAFETY_FIRST"
	StateOverrideExit    State = "OVERRIDE_EXIT"
	StateOtherValidators State = "OTHER_VALIDATORS"
	StateDone            State = "DONE"
)

type Mode string

const (
	ModeParallel   Mode = "parallel"
	ModeSequential Mode = "sequential"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeParallel, ModeSequential:
		return Mode(s), nil
	case "":
		return ModeParallel, nil
	}
	return "", fmt.Errorf("unknown validation mode %q", s)
}

// failureConfidence is assigned to results of validators that errored,
// panicked or timed out.
const failureConfidence = 0.1

type Request struct {
	AppID       string
	UserID      uuid.UUID
	CoupleID    *uuid.UUID
	MessageType string
	Text        string
	History     []safety.HistoryEntry
	Behavior    *safety.BehavioralContext
	Preferences safety.Preferences
}

// Result is one validator's verdict.
type Result struct {
	Validator  string        `json:"validator"`
	Passed     bool          `json:"passed"`
	Confidence float64       `json:"confidence"`
	Reason     string        `json:"reason,omitempty"`
	// Message is the user-facing explanation of a rejection.
	Message    string        `json:"message,omitempty"`
	Failed     bool          `json:"failed,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// Validator is any non-safety check on the content.
type Validator interface {
	Name() string
	Validate(ctx context.Context, req Request) (Result, error)
}

// SafetyOutcome is what the safety gate reports back.
type SafetyOutcome struct {
	Assessment safety.Assessment `json:"assessment"`
	Decision   safety.Decision   `json:"decision"`
	// Block withholds the content even though no override fired.
	Block bool `json:"block"`
	// Skipped is set when the user's consent disabled automatic analysis.
	Skipped bool `json:"skipped"`
	// Response is the user-facing safety response, if any.
	Response *response.SafetyResponse `json:"response,omitempty"`
}

type SafetyGate interface {
	Evaluate(ctx context.Context, req Request) (SafetyOutcome, error)
}

type Config struct {
	Mode Mode
	// Timeout bounds the other-validators phase.
	Timeout time.Duration
	// DispatchEarly starts the other validators alongside the safety gate
	// in parallel mode. Their results are discarded on override.
	DispatchEarly bool
}

// Decision is the synthesized outcome of one run.
type Decision struct {
	Approved              bool          `json:"approved"`
	ImmediateIntervention bool          `json:"immediate_intervention"`
	State                 State         `json:"state"`
	Trace                 []State       `json:"trace"`
	Safety                SafetyOutcome `json:"safety"`
	Results               []Result      `json:"results"`
	Reasons               []string      `json:"reasons,omitempty"`
	Confidence            float64       `json:"confidence"`
}

type Orchestrator struct {
	gate       SafetyGate
	validators []Validator
	cfg        Config
	policy     safety.Policy
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithPolicy sets the policy used for the failsafe assessment when the
// safety gate itself fails.
func WithPolicy(p safety.Policy) Option { return func(o *Orchestrator) { o.policy = p } }

func New(gate SafetyGate, validators []Validator, cfg Config, opts ...Option) *Orchestrator {
	if cfg.Mode == "" {
		cfg.Mode = ModeParallel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	o := &Orchestrator{
		gate:       gate,
		validators: validators,
		cfg:        cfg,
		policy:     safety.DefaultPolicy(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the state machine. It only returns an error when ctx ends
// before the safety gate finished.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Decision, error) {
	d := Decision{Trace: []State{StateSafetyFirst}}

	var early *pending
	if o.cfg.Mode == ModeParallel && o.cfg.DispatchEarly && len(o.validators) > 0 {
		early = o.dispatch(ctx, req)
	}

	safetyOut, err := o.evaluateSafety(ctx, req)
	if err != nil {
		if early != nil {
			early.cancel()
		}
		return Decision{}, err
	}
	d.Safety = safetyOut

	if safetyOut.Decision.ImmediateIntervention(safetyOut.Assessment.RiskLevel) {
		if early != nil {
			early.cancel()
		}
		o.metrics.Override()
		o.logger.Warn("safety override",
			"app_id", req.AppID,
			"assessment_id", safetyOut.Assessment.ID.String(),
			"risk_level", safetyOut.Assessment.RiskLevel.String(),
		)
		d.Trace = append(d.Trace, StateOverrideExit)
		d.State = StateOverrideExit
		d.Approved = true
		d.ImmediateIntervention = true
		d.Confidence = safetyOut.Assessment.Confidence
		d.Reasons = []string{"immediate_intervention"}
		return d, nil
	}

	d.Trace = append(d.Trace, StateOtherValidators)
	switch {
	case early != nil:
		d.Results = early.wait()
	case o.cfg.Mode == ModeSequential:
		d.Results = o.runSequential(ctx, req)
	default:
		d.Results = o.dispatch(ctx, req).wait()
	}
	for _, r := range d.Results {
		outcome := "passed"
		switch {
		case r.Failed:
			outcome = "failed"
		case !r.Passed:
			outcome = "rejected"
		}
		o.metrics.ValidatorOutcome(r.Validator, outcome)
	}

	o.synthesize(&d)
	d.Trace = append(d.Trace, StateDone)
	d.State = StateDone
	return d, nil
}

func (o *Orchestrator) evaluateSafety(ctx context.Context, req Request) (out SafetyOutcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("safety gate panicked, using failsafe", "panic", fmt.Sprint(p))
			out, err = o.failsafe(req), nil
		}
	}()
	out, err = o.gate.Evaluate(ctx, req)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return SafetyOutcome{}, fmt.Errorf("safety gate: %w", err)
	}
	o.logger.Error("safety gate failed, using failsafe", "error", err)
	return o.failsafe(req), nil
}

func (o *Orchestrator) failsafe(req Request) SafetyOutcome {
	a := safety.FailsafeAssessment(req.Text, o.policy)
	d := safety.Decide(a, req.Preferences)
	return SafetyOutcome{Assessment: d.Apply(a), Decision: d}
}

type pending struct {
	g       errgroup.Group
	results []Result
	cancel  context.CancelFunc
}

func (p *pending) wait() []Result {
	_ = p.g.Wait()
	p.cancel()
	return p.results
}

// dispatch starts every validator concurrently. Each one settles on its
// own; a failure never cancels the others.
func (o *Orchestrator) dispatch(ctx context.Context, req Request) *pending {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	p := &pending{results: make([]Result, len(o.validators)), cancel: cancel}
	for i, v := range o.validators {
		i, v := i, v
		p.g.Go(func() error {
			p.results[i] = o.runOne(ctx, v, req)
			return nil
		})
	}
	return p
}

// runSequential stops at the first validator that rejects.
func (o *Orchestrator) runSequential(ctx context.Context, req Request) []Result {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	var results []Result
	for _, v := range o.validators {
		r := o.runOne(ctx, v, req)
		results = append(results, r)
		if !r.Passed && !r.Failed {
			break
		}
	}
	return results
}

func (o *Orchestrator) runOne(ctx context.Context, v Validator, req Request) Result {
	name := v.Name()
	start := time.Now()
	ch := make(chan Result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- failed(name, fmt.Errorf("panic: %v", p))
			}
		}()
		r, err := v.Validate(ctx, req)
		if err != nil {
			ch <- failed(name, err)
			return
		}
		r.Validator = name
		ch <- r
	}()

	var r Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		r = failed(name, ctx.Err())
	}
	r.Duration = time.Since(start)
	if r.Failed {
		o.logger.Warn("validator failed", "validator", name, "reason", r.Reason)
	}
	return r
}

func failed(name string, err error) Result {
	return Result{
		Validator:  name,
		Passed:     false,
		Failed:     true,
		Confidence: failureConfidence,
		Reason:     err.Error(),
	}
}

// synthesize approves unless the safety gate blocked or a validator that
// ran to completion rejected. Failed validators are recorded only.
func (o *Orchestrator) synthesize(d *Decision) {
	d.Approved = true
	if d.Safety.Block {
		d.Approved = false
		d.Reasons = append(d.Reasons, "blocked_by_safety")
	}
	sum := d.Safety.Assessment.Confidence
	n := 1
	if d.Safety.Skipped {
		sum, n = 0, 0
	}
	for _, r := range d.Results {
		sum += r.Confidence
		n++
		if r.Failed {
			continue
		}
		if !r.Passed {
			d.Approved = false
			reason := r.Reason
			if reason == "" {
				reason = "rejected"
			}
			d.Reasons = append(d.Reasons, r.Validator+": "+reason)
		}
	}
	if n > 0 {
		d.Confidence = sum / float64(n)
	}
}
