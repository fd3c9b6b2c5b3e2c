package dapp

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"physdapp/internal/observerproto"
	"physdapp/internal/persistence/indexdb"
	persistlog "physdapp/internal/persistence/log"
	"physdapp/internal/protocol"
	"physdapp/internal/sim/physics"
	"physdapp/internal/sim/tuning"
)

// Host is the rollup host API the loop drives.
type Host interface {
	// Finish reports status and returns the next request, or nil if none is pending.
	Finish(ctx context.Context, status string) (*protocol.RollupRequest, error)
	AddNotice(ctx context.Context, payload string) error
	AddReport(ctx context.Context, payload string) error
}

type Journal interface {
	WriteInput(e persistlog.InputEntry) error
}

type Index interface {
	RecordRequest(r indexdb.RequestRow)
	RecordBody(r indexdb.BodyRow)
}

type FramePublisher interface {
	Publish(f observerproto.FrameMsg)
}

type handlerFunc func(ctx context.Context, data protocol.RequestData) (outcome, error)

type outcome struct {
	status string
	body   *physics.BodyID
	start  physics.SphereSpec
}

// App is the state shared by the handlers: the physics world and the status
// reported on the next /finish.
type App struct {
	host  Host
	world *physics.World
	tune  tuning.Tuning
	log   zerolog.Logger
	runID string

	status string
	cycle  uint64

	handlers map[string]handlerFunc

	sleep   func(time.Duration)
	now     func() time.Time
	journal Journal
	index   Index
	frames  FramePublisher
}

type Option func(*App)

func WithLogger(l zerolog.Logger) Option     { return func(a *App) { a.log = l } }
func WithRunID(id string) Option             { return func(a *App) { a.runID = id } }
func WithJournal(j Journal) Option           { return func(a *App) { a.journal = j } }
func WithIndex(i Index) Option               { return func(a *App) { a.index = i } }
func WithFrames(p FramePublisher) Option     { return func(a *App) { a.frames = p } }
func WithSleep(f func(time.Duration)) Option { return func(a *App) { a.sleep = f } }
func WithClock(now func() time.Time) Option  { return func(a *App) { a.now = now } }

func New(host Host, tune tuning.Tuning, opts ...Option) (*App, error) {
	if host == nil {
		return nil, errors.New("host is required")
	}
	if err := tune.Validate(); err != nil {
		return nil, errors.Wrap(err, "tuning")
	}
	w, err := physics.New(physics.ConfigFromTuning(tune))
	if err != nil {
		return nil, errors.Wrap(err, "physics world")
	}
	a := &App{
		host:   host,
		world:  w,
		tune:   tune,
		log:    log.Logger,
		status: protocol.StatusAccept,
		sleep:  time.Sleep,
		now:    time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	a.handlers = map[string]handlerFunc{
		protocol.RequestAdvanceState: a.advance,
		protocol.RequestInspectState: a.inspect,
	}
	return a, nil
}

func (a *App) Status() string        { return a.status }
func (a *App) Cycle() uint64         { return a.cycle }
func (a *App) World() *physics.World { return a.world }
func (a *App) Tuning() tuning.Tuning { return a.tune }
