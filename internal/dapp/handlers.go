package dapp

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"physdapp/internal/observerproto"
	"physdapp/internal/protocol"
	"physdapp/internal/sim/physics"
	"physdapp/internal/sim/tuning"
)

// HandleAdvance publishes the payload as a notice, then runs an "add" action.
// Any other action is rejected with no effect on the world.
func (a *App) HandleAdvance(ctx context.Context, data protocol.RequestData) (string, error) {
	out, err := a.advance(ctx, data)
	return out.status, err
}

// HandleInspect echoes the payload as a report.
func (a *App) HandleInspect(ctx context.Context, data protocol.RequestData) (string, error) {
	out, err := a.inspect(ctx, data)
	return out.status, err
}

func (a *App) advance(ctx context.Context, data protocol.RequestData) (outcome, error) {
	a.log.Info().Str("payload", data.Payload).Msg("received advance request")
	if err := a.host.AddNotice(ctx, data.Payload); err != nil {
		return outcome{}, errors.Wrap(err, "add notice")
	}

	act, err := protocol.DecodeAction(data.Payload)
	if err != nil {
		return outcome{}, err
	}
	if act.Name != protocol.ActionAdd {
		a.log.Info().Str("action", act.Name).Msg("rejecting unsupported action")
		return outcome{status: protocol.StatusReject}, nil
	}

	sphere := SphereFromAdd(a.tune, *act.Add)
	id := a.world.AddSphere(sphere)
	a.log.Info().
		Int("body", int(id)).
		Floats64("pos", sphere.Pos[:]).
		Floats64("vel", sphere.Vel[:]).
		Float64("mass", sphere.Mass).
		Float64("radius", sphere.Radius).
		Msg("added sphere")

	started := a.now()
	if err := a.simulate(ctx, a.tune.StepsPerAdd()); err != nil {
		return outcome{}, err
	}
	a.log.Debug().
		Int("steps", a.tune.StepsPerAdd()).
		Dur("took", a.now().Sub(started)).
		Uint64("world_step", a.world.StepCount()).
		Msg("simulation finished")

	return outcome{status: protocol.StatusAccept, body: &id, start: sphere}, nil
}

func (a *App) inspect(ctx context.Context, data protocol.RequestData) (outcome, error) {
	a.log.Info().Str("payload", data.Payload).Msg("received inspect request")
	if err := a.host.AddReport(ctx, data.Payload); err != nil {
		return outcome{}, errors.Wrap(err, "add report")
	}
	return outcome{status: protocol.StatusAccept}, nil
}

// simulate runs n fixed steps, pacing them to wall clock in realtime mode.
func (a *App) simulate(ctx context.Context, n int) error {
	period := time.Second / time.Duration(a.tune.StepRateHz)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.world.Step()
		if a.frames != nil && a.tune.FrameEverySteps > 0 && a.world.StepCount()%uint64(a.tune.FrameEverySteps) == 0 {
			a.frames.Publish(observerproto.NewFrame(a.world.StepCount(), a.world.SimTime(), a.world.Bodies()))
		}
		if a.tune.Realtime {
			a.sleep(period)
		}
	}
	return nil
}

// SphereFromAdd fills payload defaults from tuning.
func SphereFromAdd(t tuning.Tuning, add protocol.AddAction) physics.SphereSpec {
	return physics.SphereSpec{
		Pos:    physics.Vec3(add.StartPosition),
		Vel:    physics.Vec3(add.Velocity),
		Mass:   add.MassOr(t.DefaultMass),
		Radius: add.RadiusOr(t.DefaultRadius),
	}
}
