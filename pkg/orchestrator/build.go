package orchestrator

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/dyluth/dbuilder/pkg/docker"
	"github.com/dyluth/dbuilder/pkg/events"
)

// Build builds the configured image and clears any existing container created
// from it.
//
// A Download event is emitted for every progress record and Complete once the
// build stream ends. Afterwards containers are listed and the first whose image
// equals the configured name is stopped and removed.
//
// If listing fails an Error event is emitted and Build blocks until ctx is
// done; the returned StageError then carries both the listing failure and the
// context error.
func (o *Orchestrator) Build(ctx context.Context) error {
	if err := o.build(ctx); err != nil {
		return err
	}
	o.bus.Emit(events.Complete, "")

	containers, err := o.runtime.ListContainers(ctx)
	if err != nil {
		o.bus.EmitError(&StageError{Stage: StageList, Ref: o.cfg.Name, Err: err})
		o.logger.Warn("listing containers failed, waiting for cancellation", zap.Error(err))
		<-ctx.Done()
		return &StageError{Stage: StageList, Ref: o.cfg.Name, Err: errors.Join(err, ctx.Err())}
	}

	for _, c := range containers {
		if c.Image == o.cfg.Name {
			o.logger.Info("removing container from previous build",
				zap.String("container", c.ID), zap.String("status", string(c.Status)))
			return o.StopAndRemove(ctx, c.ID)
		}
	}
	return nil
}

// build streams one image build to completion
func (o *Orchestrator) build(ctx context.Context) error {
	handle, err := o.runtime.BuildImage(ctx, o.cfg.Image, o.cfg.Name)
	if err != nil {
		return o.fail(StageBuild, o.cfg.Name, err)
	}
	defer func() {
		if err := handle.Close(); err != nil {
			o.logger.Debug("failed to close build output", zap.Error(err))
		}
	}()
	o.recordBuild(handle)

	if out := o.debugWriter(); out != nil {
		handle.Pump(out, func(err error) {
			o.logger.Error("failed to render build output", zap.Error(err))
		})
	}

	if err := handle.Watch(func() { o.bus.Emit(events.Download, "") }); err != nil {
		return o.fail(StageBuild, o.cfg.Name, err)
	}
	o.logger.Debug("image built", zap.String("tag", handle.Tag))
	return nil
}

func (o *Orchestrator) recordBuild(handle *docker.BuildHandle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastBuild = BuildInfo{Tag: handle.Tag, StartedAt: handle.StartedAt}
}

func (o *Orchestrator) debugWriter() io.Writer {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.debugOut
}
