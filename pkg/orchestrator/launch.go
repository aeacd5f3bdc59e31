package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/dyluth/dbuilder/pkg/config"
	"github.com/dyluth/dbuilder/pkg/docker"
	"github.com/dyluth/dbuilder/pkg/events"
)

var conflictPattern = regexp.MustCompile(`in use by container "?(\w+)"?\.`)

// ExtractConflictID returns the id of the container holding a name, taken
// from a runtime conflict message
func ExtractConflictID(message string) (string, bool) {
	m := conflictPattern.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Run creates, attaches to and starts the container.
//
// A name conflict whose holder can be identified is resolved with
// StopAndRemove and creation is retried, at most MaxConflictRetries times.
// After creation a Run event is emitted and every output chunk becomes a
// Data event. Run returns nil once the container started and produced its
// first chunk of output. Output keeps flowing after Run returns until the
// stream ends or Close is called.
func (o *Orchestrator) Run(ctx context.Context) error {
	spec := o.cfg.ContainerSpec()
	limit := o.maxConflictRetries()

	for resolved := 0; ; resolved++ {
		info, err := o.runtime.CreateContainer(ctx, spec)
		if err == nil {
			return o.launch(ctx, info)
		}
		if !docker.IsConflict(err) {
			return o.fail(StageCreate, spec.Name, err)
		}

		id, ok := ExtractConflictID(err.Error())
		if !ok {
			return o.fail(StageCreate, spec.Name, err)
		}
		if resolved >= limit {
			return o.fail(StageConflict, id, fmt.Errorf("%w: resolved %d, last: %v", ErrTooManyConflicts, resolved, err))
		}

		o.logger.Info("container name in use, removing holder", zap.String("container", id))
		if err := o.StopAndRemove(ctx, id); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) maxConflictRetries() int {
	if o.cfg.MaxConflictRetries > 0 {
		return o.cfg.MaxConflictRetries
	}
	return config.DefaultMaxConflictRetries
}

func (o *Orchestrator) launch(ctx context.Context, info docker.ContainerInfo) error {
	o.bus.Emit(events.Run, info.ID)

	stream, err := o.runtime.AttachContainer(ctx, info.ID)
	if err != nil {
		return o.fail(StageAttach, info.ID, err)
	}

	firstData := make(chan struct{})
	var once sync.Once
	unsubscribe := o.bus.Subscribe(func(events.Event) {
		once.Do(func() { close(firstData) })
	}, events.Data)
	defer unsubscribe()

	done := o.follow(info.ID, stream)

	if err := o.runtime.StartContainer(ctx, info.ID); err != nil {
		if cerr := stream.Close(); cerr != nil {
			o.logger.Debug("failed to detach", zap.Error(cerr))
		}
		return o.fail(StageStart, info.ID, err)
	}

	select {
	case <-firstData:
		return nil
	case <-done:
		// data is emitted synchronously, so a chunk read just before the
		// stream ended has already closed firstData
		select {
		case <-firstData:
			return nil
		default:
		}
		return o.fail(StageAttach, info.ID, ErrNoOutput)
	case <-ctx.Done():
		select {
		case <-firstData:
			return nil
		default:
		}
		if cerr := stream.Close(); cerr != nil {
			o.logger.Debug("failed to detach", zap.Error(cerr))
		}
		return &StageError{Stage: StageAttach, Ref: info.ID, Err: ctx.Err()}
	}
}

// follow pumps stream into Data events until it ends
func (o *Orchestrator) follow(id string, stream *docker.AttachStream) <-chan struct{} {
	done := make(chan struct{})

	o.mu.Lock()
	prev := o.stream
	o.stream = stream
	o.streamDone = done
	o.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			o.logger.Debug("failed to detach previous container", zap.Error(err))
		}
	}

	go func() {
		defer close(done)
		err := stream.Copy(func(chunk []byte) {
			o.bus.Emit(events.Data, string(chunk))
		})
		if err != nil {
			o.logger.Warn("container output stream failed", zap.String("container", id), zap.Error(err))
			return
		}
		o.logger.Debug("container output stream closed", zap.String("container", id))
	}()

	return done
}
