package dapp

import (
	"github.com/pkg/errors"

	persistlog "physdapp/internal/persistence/log"
	"physdapp/internal/protocol"
	"physdapp/internal/sim/physics"
	"physdapp/internal/sim/tuning"
)

var ErrDigestMismatch = errors.New("digest mismatch")

type ReplayStats struct {
	Entries  int
	Runs     int
	Advances int
	Steps    uint64
}

// Replayer re-applies journal entries to a fresh world and checks that the
// recorded digests are reproduced. A new run id starts a new world, matching
// a process restart.
type Replayer struct {
	tune  tuning.Tuning
	world *physics.World
	runID string
	stats ReplayStats
}

func NewReplayer(t tuning.Tuning) (*Replayer, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Replayer{tune: t}, nil
}

func (r *Replayer) Stats() ReplayStats { return r.stats }

func (r *Replayer) Apply(e persistlog.InputEntry) error {
	if r.world == nil || e.RunID != r.runID {
		w, err := physics.New(physics.ConfigFromTuning(r.tune))
		if err != nil {
			return err
		}
		r.world = w
		r.runID = e.RunID
		r.stats.Runs++
	}
	r.stats.Entries++

	if e.RequestType == protocol.RequestAdvanceState && e.Status == protocol.StatusAccept {
		act, err := protocol.DecodeAction(e.Payload)
		if err != nil {
			return errors.Wrapf(err, "cycle %d", e.Cycle)
		}
		if act.Add == nil {
			return errors.Errorf("cycle %d: accepted advance without add action", e.Cycle)
		}
		id := r.world.AddSphere(SphereFromAdd(r.tune, *act.Add))
		if e.BodyID != nil && *e.BodyID != int(id) {
			return errors.Errorf("cycle %d: body id %d, journal has %d", e.Cycle, id, *e.BodyID)
		}
		for i := 0; i < r.tune.StepsPerAdd(); i++ {
			r.world.Step()
		}
		r.stats.Advances++
	}
	r.stats.Steps = r.world.StepCount()

	if got := r.world.Digest(); got != e.Digest {
		return errors.Wrapf(ErrDigestMismatch, "run %s cycle %d: got %s want %s", e.RunID, e.Cycle, got, e.Digest)
	}
	return nil
}
