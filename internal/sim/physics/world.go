package physics

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"physdapp/internal/sim/tuning"
)

type WorldConfig struct {
	Gravity     Vec3
	StepRateHz  int
	Restitution float64
	Friction    float64
}

func ConfigFromTuning(t tuning.Tuning) WorldConfig {
	return WorldConfig{
		Gravity:     Vec3(t.Gravity),
		StepRateHz:  t.StepRateHz,
		Restitution: t.Restitution,
		Friction:    t.Friction,
	}
}

// World holds a static ground plane (body 0) and any number of spheres.
// Bodies are never removed. World is not safe for concurrent use.
type World struct {
	cfg    WorldConfig
	dt     float64
	bodies []*Body
	steps  uint64
}

const PlaneID BodyID = 0

func New(cfg WorldConfig) (*World, error) {
	if cfg.StepRateHz <= 0 {
		return nil, fmt.Errorf("step rate must be > 0")
	}
	w := &World{
		cfg: cfg,
		dt:  1 / float64(cfg.StepRateHz),
	}
	w.bodies = append(w.bodies, &Body{ID: PlaneID, Shape: ShapePlane})
	return w, nil
}

func (w *World) Config() WorldConfig { return w.cfg }
func (w *World) StepCount() uint64   { return w.steps }
func (w *World) SimTime() float64    { return float64(w.steps) * w.dt }
func (w *World) BodyCount() int      { return len(w.bodies) }

func (w *World) AddSphere(s SphereSpec) BodyID {
	id := BodyID(len(w.bodies))
	w.bodies = append(w.bodies, &Body{
		ID:     id,
		Shape:  ShapeSphere,
		Mass:   s.Mass,
		Radius: s.Radius,
		Pos:    s.Pos,
		Vel:    s.Vel,
	})
	return id
}

func (w *World) Body(id BodyID) (Body, bool) {
	if id < 0 || int(id) >= len(w.bodies) {
		return Body{}, false
	}
	return *w.bodies[id], true
}

// Bodies returns copies in id order.
func (w *World) Bodies() []Body {
	out := make([]Body, len(w.bodies))
	for i, b := range w.bodies {
		out[i] = *b
	}
	return out
}

// Step advances the world by one fixed step.
func (w *World) Step() {
	g := w.cfg.Gravity.Scale(w.dt)
	plane := w.bodies[PlaneID]

	for _, b := range w.bodies {
		if b.Static() {
			continue
		}
		b.Vel = b.Vel.Add(g)
		b.Pos = b.Pos.Add(b.Vel.Scale(w.dt))
	}
	for _, b := range w.bodies {
		if b.Shape == ShapeSphere && !b.Static() {
			w.collidePlane(plane, b)
		}
	}
	for i := 1; i < len(w.bodies); i++ {
		for j := i + 1; j < len(w.bodies); j++ {
			w.collideSpheres(w.bodies[i], w.bodies[j])
		}
	}
	w.steps++
}

func (w *World) collidePlane(plane, b *Body) {
	pen := b.Radius - (b.Pos[2] - plane.Pos[2])
	if pen <= 0 {
		return
	}
	b.Pos[2] += pen

	vn := b.Vel[2]
	if vn >= 0 {
		return
	}
	jn := -(1 + w.cfg.Restitution) * vn
	b.Vel[2] = -w.cfg.Restitution * vn

	// Coulomb friction: tangential speed drops by at most mu*jn.
	vt := Vec3{b.Vel[0], b.Vel[1], 0}
	speed := vt.Len()
	if speed == 0 {
		return
	}
	drop := w.cfg.Friction * jn
	if drop >= speed {
		b.Vel[0], b.Vel[1] = 0, 0
		return
	}
	k := (speed - drop) / speed
	b.Vel[0] *= k
	b.Vel[1] *= k
}

func (w *World) collideSpheres(a, b *Body) {
	ia, ib := a.invMass(), b.invMass()
	if ia+ib == 0 {
		return
	}
	d := b.Pos.Sub(a.Pos)
	dist := d.Len()
	pen := a.Radius + b.Radius - dist
	if pen <= 0 || dist == 0 {
		return
	}
	n := d.Scale(1 / dist)

	a.Pos = a.Pos.Sub(n.Scale(pen * ia / (ia + ib)))
	b.Pos = b.Pos.Add(n.Scale(pen * ib / (ia + ib)))

	vr := b.Vel.Sub(a.Vel).Dot(n)
	if vr >= 0 {
		return
	}
	j := -(1 + w.cfg.Restitution) * vr / (ia + ib)
	a.Vel = a.Vel.Sub(n.Scale(j * ia))
	b.Vel = b.Vel.Add(n.Scale(j * ib))
}

// Digest hashes the exact state of every body; equal digests mean bit-identical worlds.
func (w *World) Digest() string {
	h := sha256.New()
	var buf [8]byte
	put := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	binary.LittleEndian.PutUint64(buf[:], w.steps)
	h.Write(buf[:])
	for _, b := range w.bodies {
		binary.LittleEndian.PutUint64(buf[:], uint64(b.ID))
		h.Write(buf[:])
		h.Write([]byte{byte(b.Shape)})
		put(b.Mass)
		put(b.Radius)
		for i := 0; i < 3; i++ {
			put(b.Pos[i])
		}
		for i := 0; i < 3; i++ {
			put(b.Vel[i])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
