package observerproto

import (
	"github.com/samber/lo"

	"physdapp/internal/sim/physics"
)

const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeFrame     = "FRAME"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// MaxBodies caps the bodies per frame; the ground plane is always included.
	MaxBodies int `json:"max_bodies"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldParams     WorldParams `json:"world_params"`
	LastFrame       *FrameMsg   `json:"last_frame,omitempty"`
}

type WorldParams struct {
	StepRateHz  int        `json:"step_rate_hz"`
	StepsPerAdd int        `json:"steps_per_add"`
	Gravity     [3]float64 `json:"gravity"`
}

// Server -> Client. Sent every few simulation steps.
type FrameMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Step            uint64      `json:"step"`
	SimTime         float64     `json:"sim_time"`
	Bodies          []BodyState `json:"bodies"`
}

type BodyState struct {
	ID     int        `json:"id"`
	Shape  string     `json:"shape"`
	Mass   float64    `json:"mass"`
	Radius float64    `json:"radius,omitempty"`
	Pos    [3]float64 `json:"pos"`
	Vel    [3]float64 `json:"vel"`
}

func NewFrame(step uint64, simTime float64, bodies []physics.Body) FrameMsg {
	return FrameMsg{
		Type:            TypeFrame,
		ProtocolVersion: Version,
		Step:            step,
		SimTime:         simTime,
		Bodies: lo.Map(bodies, func(b physics.Body, _ int) BodyState {
			return BodyState{
				ID:     int(b.ID),
				Shape:  b.Shape.String(),
				Mass:   b.Mass,
				Radius: b.Radius,
				Pos:    b.Pos,
				Vel:    b.Vel,
			}
		}),
	}
}

// Truncate returns a copy of f holding at most max bodies.
func (f FrameMsg) Truncate(max int) FrameMsg {
	if max <= 0 || len(f.Bodies) <= max {
		return f
	}
	f.Bodies = f.Bodies[:max]
	return f
}
