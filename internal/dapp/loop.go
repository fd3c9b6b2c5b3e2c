package dapp

import (
	"context"

	"github.com/pkg/errors"

	"physdapp/internal/persistence/indexdb"
	persistlog "physdapp/internal/persistence/log"
	"physdapp/internal/protocol"
)

// Run polls the host until ctx is done or a request cannot be handled.
func (a *App) Run(ctx context.Context) error {
	a.log.Info().Str("run_id", a.runID).Int("steps_per_add", a.tune.StepsPerAdd()).Msg("rollup loop started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.RunOnce(ctx); err != nil {
			return err
		}
	}
}

// RunOnce performs one poll cycle. handled is false when the host had no
// pending request.
func (a *App) RunOnce(ctx context.Context) (handled bool, err error) {
	req, err := a.host.Finish(ctx, a.status)
	if err != nil {
		return false, errors.Wrap(err, "finish")
	}
	if req == nil {
		a.log.Debug().Msg("no pending rollup request, trying again")
		return false, nil
	}

	a.cycle++
	h, ok := a.handlers[req.RequestType]
	if !ok {
		return true, errors.Wrapf(protocol.ErrUnknownRequestType, "%q", req.RequestType)
	}
	out, err := h(ctx, req.Data)
	if err != nil {
		return true, errors.Wrapf(err, "cycle %d: %s", a.cycle, req.RequestType)
	}
	a.status = out.status
	a.record(req, out)
	return true, nil
}

func (a *App) record(req *protocol.RollupRequest, out outcome) {
	var inputIndex *uint64
	if req.Data.Metadata != nil {
		v := req.Data.Metadata.InputIndex
		inputIndex = &v
	}
	digest := a.world.Digest()

	if a.journal != nil {
		e := persistlog.InputEntry{
			RunID:       a.runID,
			Cycle:       a.cycle,
			RequestType: req.RequestType,
			Payload:     req.Data.Payload,
			InputIndex:  inputIndex,
			Status:      out.status,
			Step:        a.world.StepCount(),
			Digest:      digest,
		}
		if out.body != nil {
			id := int(*out.body)
			e.BodyID = &id
		}
		if err := a.journal.WriteInput(e); err != nil {
			a.log.Warn().Err(err).Msg("journal write failed")
		}
	}

	if a.index == nil {
		return
	}
	a.index.RecordRequest(indexdb.RequestRow{
		RunID:       a.runID,
		Cycle:       a.cycle,
		RequestType: req.RequestType,
		Payload:     req.Data.Payload,
		InputIndex:  inputIndex,
		Status:      out.status,
		Step:        a.world.StepCount(),
		Digest:      digest,
		RecordedAt:  a.now(),
	})
	if out.body != nil {
		b, _ := a.world.Body(*out.body)
		a.index.RecordBody(indexdb.BodyRow{
			RunID:    a.runID,
			BodyID:   int(b.ID),
			Cycle:    a.cycle,
			Mass:     b.Mass,
			Radius:   b.Radius,
			StartPos: out.start.Pos,
			StartVel: out.start.Vel,
			FinalPos: b.Pos,
			FinalVel: b.Vel,
		})
	}
}
