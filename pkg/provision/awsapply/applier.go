// Package awsapply applies a built provision.Stack to AWS.
//
// Resources are applied wave by wave: every resource in a wave depends only
// on resources of earlier waves, so a wave runs concurrently under a bounded
// errgroup. Every step is idempotent; re-applying an unchanged stack reports
// existing resources and re-puts configuration.
package awsapply

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/3leaps/renderstack/pkg/provision"
)

// Action is what happened to a resource.
type Action string

const (
	ActionCreated  Action = "created"
	ActionUpdated  Action = "updated"
	ActionApplied  Action = "applied"
	ActionExists   Action = "exists"
	ActionUploaded Action = "uploaded"
	ActionDeleted  Action = "deleted"
	ActionMissing  Action = "missing"
	ActionRetained Action = "retained"
	ActionSkipped  Action = "skipped"
	ActionFailed   Action = "failed"
)

// Defaults for Applier options.
const (
	DefaultConcurrency    = 8
	DefaultWaitTimeout    = 5 * time.Minute
	DefaultRoleRetries    = 6
	DefaultRoleRetryDelay = 5 * time.Second
)

// MaxArchiveBytes is the largest function archive uploaded inline.
const MaxArchiveBytes = 50 << 20

var (
	// ErrArchiveTooLarge is returned when the function archive exceeds
	// MaxArchiveBytes.
	ErrArchiveTooLarge = errors.New("function archive too large")

	// ErrUnsupportedResource is returned for a spec the applier cannot handle.
	ErrUnsupportedResource = errors.New("unsupported resource")
)

// ResourceError reports the resource a step failed on.
type ResourceError struct {
	ID   string
	Kind provision.Kind
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.ID, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// Event is emitted once per resource.
type Event struct {
	ID       string
	Kind     provision.Kind
	Name     string
	Action   Action
	Duration time.Duration
	Err      error
}

// Result collects the events of one run.
type Result struct {
	RunID   string
	Outputs provision.Outputs
	Events  []Event
}

// Counts tallies events by action.
func (r *Result) Counts() map[Action]int {
	counts := make(map[Action]int)
	for _, ev := range r.Events {
		counts[ev.Action]++
	}
	return counts
}

// Option configures an Applier.
type Option func(*Applier)

// WithConcurrency bounds the resources applied at once within a wave.
func WithConcurrency(n int) Option {
	return func(a *Applier) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithObserver receives every event as it happens. It may be called
// concurrently.
func WithObserver(fn func(Event)) Option {
	return func(a *Applier) { a.observer = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Applier) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithWaitTimeout bounds each wait for the function to settle.
func WithWaitTimeout(d time.Duration) Option {
	return func(a *Applier) {
		if d > 0 {
			a.waitTimeout = d
		}
	}
}

// WithRoleRetry sets how often function creation is retried while a new
// execution role propagates.
func WithRoleRetry(attempts int, delay time.Duration) Option {
	return func(a *Applier) {
		a.roleRetries = attempts
		a.roleRetryDelay = delay
	}
}

// WithRunID fixes the run ID reported in results. By default every run
// gets a fresh UUID.
func WithRunID(id string) Option {
	return func(a *Applier) { a.runID = id }
}

// Applier applies and destroys stacks.
type Applier struct {
	clients        Clients
	runID          string
	concurrency    int
	observer       func(Event)
	logger         *zap.Logger
	waitTimeout    time.Duration
	roleRetries    int
	roleRetryDelay time.Duration

	// readArchive is replaced in tests.
	readArchive func(path string) ([]byte, error)
}

// New creates an Applier over clients.
func New(clients Clients, opts ...Option) *Applier {
	a := &Applier{
		clients:        clients,
		concurrency:    DefaultConcurrency,
		logger:         zap.NewNop(),
		waitTimeout:    DefaultWaitTimeout,
		roleRetries:    DefaultRoleRetries,
		roleRetryDelay: DefaultRoleRetryDelay,
		readArchive:    readArchive,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// run carries the state shared by the resources of one run.
type run struct {
	result *Result

	mu         sync.Mutex
	policyARNs map[string]string
	roleARNs   map[string]string
}

func (a *Applier) newRun(stack *provision.Stack) *run {
	id := a.runID
	if id == "" {
		id = uuid.NewString()
	}
	return &run{
		result: &Result{
			RunID:   id,
			Outputs: stack.Outputs(),
		},
		policyARNs: make(map[string]string),
		roleARNs:   make(map[string]string),
	}
}

func (r *run) setPolicyARN(name, arn string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policyARNs[name] = arn
}

func (r *run) policyARN(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	arn, ok := r.policyARNs[name]
	return arn, ok
}

func (r *run) setRoleARN(name, arn string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roleARNs[name] = arn
}

func (r *run) roleARN(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	arn, ok := r.roleARNs[name]
	return arn, ok
}

type stepFunc func(ctx context.Context, r *run, res provision.Resource) (string, Action, error)

// Apply creates or updates every resource of stack in dependency order.
// On failure the returned Result holds the events up to that point.
func (a *Applier) Apply(ctx context.Context, stack *provision.Stack) (*Result, error) {
	r := a.newRun(stack)
	a.logger.Info("applying stack",
		zap.String("stack", stack.Config().Name),
		zap.String("run_id", r.result.RunID),
		zap.Int("resources", len(stack.Resources())),
	)
	err := a.runWaves(ctx, r, stack.Waves(), a.applyResource)
	return r.result, err
}

// Destroy removes the resources of stack in reverse dependency order.
// Missing resources are not an error. The bucket and its contents are
// retained unless the stack sets ForceDestroy.
func (a *Applier) Destroy(ctx context.Context, stack *provision.Stack) (*Result, error) {
	r := a.newRun(stack)
	a.logger.Info("destroying stack",
		zap.String("stack", stack.Config().Name),
		zap.String("run_id", r.result.RunID),
		zap.Bool("force_destroy", stack.Config().ForceDestroy),
	)
	w := stack.Waves()
	slices.Reverse(w)
	force := stack.Config().ForceDestroy
	err := a.runWaves(ctx, r, w, func(ctx context.Context, r *run, res provision.Resource) (string, Action, error) {
		return a.destroyResource(ctx, r, res, force)
	})
	return r.result, err
}

func (a *Applier) runWaves(ctx context.Context, r *run, waves [][]provision.Resource, step stepFunc) error {
	for i, wave := range waves {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.concurrency)

		for _, res := range wave {
			g.Go(func() error {
				start := time.Now()
				name, action, err := step(gctx, r, res)
				ev := Event{
					ID:       res.ID,
					Kind:     res.Kind,
					Name:     name,
					Action:   action,
					Duration: time.Since(start),
				}
				if err != nil {
					ev.Action = ActionFailed
					ev.Err = &ResourceError{ID: res.ID, Kind: res.Kind, Err: err}
				}
				a.emit(r, ev)
				return ev.Err
			})
		}

		if err := g.Wait(); err != nil {
			a.logger.Warn("wave failed", zap.Int("wave", i), zap.Error(err))
			return err
		}
	}
	return nil
}

func (a *Applier) emit(r *run, ev Event) {
	r.mu.Lock()
	r.result.Events = append(r.result.Events, ev)
	r.mu.Unlock()

	a.logger.Debug("resource",
		zap.String("id", ev.ID),
		zap.String("kind", string(ev.Kind)),
		zap.String("action", string(ev.Action)),
		zap.Duration("duration", ev.Duration),
		zap.Error(ev.Err),
	)
	if a.observer != nil {
		a.observer(ev)
	}
}

func (a *Applier) applyResource(ctx context.Context, r *run, res provision.Resource) (string, Action, error) {
	switch spec := res.Spec.(type) {
	case provision.BucketSpec:
		action, err := a.applyBucket(ctx, spec)
		return spec.Name, action, err
	case provision.OwnershipSpec:
		return spec.Bucket, ActionApplied, a.applyOwnership(ctx, spec)
	case provision.PublicAccessBlockSpec:
		return spec.Bucket, ActionApplied, a.applyPublicAccessBlock(ctx, spec)
	case provision.LifecycleSpec:
		return spec.Bucket, ActionApplied, a.applyLifecycle(ctx, spec)
	case provision.PolicySpec:
		action, err := a.applyPolicy(ctx, r, spec)
		return spec.Name, action, err
	case provision.RoleSpec:
		action, err := a.applyRole(ctx, r, spec)
		return spec.Name, action, err
	case provision.AttachmentSpec:
		return spec.Role, ActionApplied, a.applyAttachment(ctx, r, spec)
	case provision.FunctionSpec:
		action, err := a.applyFunction(ctx, r, spec)
		return spec.Name, action, err
	case provision.ObjectSpec:
		return spec.Key, ActionUploaded, a.putObject(ctx, spec)
	default:
		return "", "", fmt.Errorf("%w: %T", ErrUnsupportedResource, res.Spec)
	}
}

func (a *Applier) destroyResource(ctx context.Context, r *run, res provision.Resource, force bool) (string, Action, error) {
	switch spec := res.Spec.(type) {
	case provision.BucketSpec:
		if !force {
			return spec.Name, ActionRetained, nil
		}
		action, err := a.deleteBucket(ctx, spec)
		return spec.Name, action, err
	case provision.OwnershipSpec, provision.PublicAccessBlockSpec, provision.LifecycleSpec:
		// Bucket settings go away with the bucket.
		if !force {
			return "", ActionRetained, nil
		}
		return "", ActionSkipped, nil
	case provision.ObjectSpec:
		if !force {
			return spec.Key, ActionRetained, nil
		}
		action, err := a.deleteObject(ctx, spec)
		return spec.Key, action, err
	case provision.PolicySpec:
		action, err := a.deletePolicy(ctx, spec)
		return spec.Name, action, err
	case provision.RoleSpec:
		action, err := a.deleteRole(ctx, spec)
		return spec.Name, action, err
	case provision.AttachmentSpec:
		action, err := a.detachPolicy(ctx, spec)
		return spec.Role, action, err
	case provision.FunctionSpec:
		action, err := a.deleteFunction(ctx, spec)
		return spec.Name, action, err
	default:
		return "", "", fmt.Errorf("%w: %T", ErrUnsupportedResource, res.Spec)
	}
}
