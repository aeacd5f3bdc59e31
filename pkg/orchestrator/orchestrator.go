// Package orchestrator builds an image and launches a single container from it.
//
// An up operation runs build, duplicate detection, stop/remove, create,
// conflict retry, start and attach in sequence. Every step reports progress and
// failures on a shared events.Bus and returns its result to the caller.
package orchestrator

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dyluth/dbuilder/pkg/config"
	"github.com/dyluth/dbuilder/pkg/docker"
	"github.com/dyluth/dbuilder/pkg/events"
)

// Runtime is the part of the container runtime the orchestrator needs
type Runtime interface {
	BuildImage(ctx context.Context, source, tag string) (*docker.BuildHandle, error)
	ListContainers(ctx context.Context) ([]docker.ContainerInfo, error)
	StopContainer(ctx context.Context, ref string) error
	RemoveContainer(ctx context.Context, ref string) error
	CreateContainer(ctx context.Context, spec *docker.ContainerSpec) (docker.ContainerInfo, error)
	StartContainer(ctx context.Context, ref string) error
	AttachContainer(ctx context.Context, ref string) (*docker.AttachStream, error)
}

var _ Runtime = (*docker.Service)(nil)

// BuildInfo describes the most recent build started by an orchestrator
type BuildInfo struct {
	Tag       string
	StartedAt time.Time
}

// Orchestrator sequences the build and launch of one container
type Orchestrator struct {
	cfg     *config.Config
	runtime Runtime
	bus     *events.Bus
	logger  *zap.Logger

	mu         sync.Mutex
	debugOut   io.Writer
	lastBuild  BuildInfo
	stream     *docker.AttachStream
	streamDone chan struct{}
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger used for diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBus makes the orchestrator emit on an existing bus
func WithBus(bus *events.Bus) Option {
	return func(o *Orchestrator) {
		if bus != nil {
			o.bus = bus
		}
	}
}

// New creates an orchestrator for cfg on top of runtime
func New(cfg *config.Config, runtime Runtime, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		runtime: runtime,
		bus:     events.NewBus(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("name", cfg.Name))
	return o
}

// Up builds the image and then runs the container. A failed build stops
// before anything is created.
func (o *Orchestrator) Up(ctx context.Context) error {
	if err := o.Build(ctx); err != nil {
		return err
	}
	return o.Run(ctx)
}

// Events returns the bus lifecycle events are emitted on
func (o *Orchestrator) Events() *events.Bus {
	return o.bus
}

// Subscribe registers handler for the named events, or all events when none
// are given. Subscribe before calling Up: events are not replayed.
func (o *Orchestrator) Subscribe(handler events.Handler, names ...events.Name) (unsubscribe func()) {
	return o.bus.Subscribe(handler, names...)
}

// Pump copies the raw output of subsequent builds to w. Copy failures are
// logged and do not reach the event stream.
func (o *Orchestrator) Pump(w io.Writer) *Orchestrator {
	o.mu.Lock()
	o.debugOut = w
	o.mu.Unlock()
	return o
}

// LastBuild reports the most recently started build, if any
func (o *Orchestrator) LastBuild() (BuildInfo, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastBuild, o.lastBuild.Tag != ""
}

// Wait blocks until the output stream of the last started container ends or
// ctx is done. It returns immediately if nothing is attached.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.streamDone
	o.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close detaches from the container output. The container keeps running.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	stream := o.stream
	o.mu.Unlock()

	if stream == nil {
		return nil
	}
	return stream.Close()
}

// fail reports err on the event stream and returns it wrapped in a StageError
func (o *Orchestrator) fail(stage Stage, ref string, err error) error {
	serr := &StageError{Stage: stage, Ref: ref, Err: err}
	o.logger.Debug("stage failed", zap.String("stage", string(stage)), zap.String("ref", ref), zap.Error(err))
	o.bus.EmitError(serr)
	return serr
}
