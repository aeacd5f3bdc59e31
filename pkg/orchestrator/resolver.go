package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/dyluth/dbuilder/pkg/docker"
	"github.com/dyluth/dbuilder/pkg/events"
)

// StopAndRemove stops the container ref and removes it. A container that is
// already stopped is not an error. On success a StoppedAndRemoved event is
// emitted before returning. No step is retried.
func (o *Orchestrator) StopAndRemove(ctx context.Context, ref string) error {
	if err := o.stop(ctx, ref); err != nil {
		return err
	}
	if err := o.remove(ctx, ref); err != nil {
		return err
	}

	o.logger.Debug("stale container stopped and removed", zap.String("container", ref))
	o.bus.Emit(events.StoppedAndRemoved, ref)
	return nil
}

func (o *Orchestrator) stop(ctx context.Context, ref string) error {
	err := o.runtime.StopContainer(ctx, ref)
	if err == nil {
		return nil
	}
	if docker.IsAlreadyStopped(err) {
		o.logger.Debug("container already stopped", zap.String("container", ref))
		return nil
	}
	return o.fail(StageStop, ref, err)
}

func (o *Orchestrator) remove(ctx context.Context, ref string) error {
	if err := o.runtime.RemoveContainer(ctx, ref); err != nil {
		return o.fail(StageRemove, ref, err)
	}
	return nil
}
