package physics

type BodyID int

type Shape uint8

const (
	ShapePlane Shape = iota + 1
	ShapeSphere
)

func (s Shape) String() string {
	switch s {
	case ShapePlane:
		return "PLANE"
	case ShapeSphere:
		return "SPHERE"
	default:
		return "UNKNOWN"
	}
}

// Body is a rigid body. Mass 0 (or below) marks a static body.
type Body struct {
	ID     BodyID
	Shape  Shape
	Mass   float64
	Radius float64
	Pos    Vec3
	Vel    Vec3
}

func (b *Body) Static() bool { return b.Mass <= 0 }

func (b *Body) invMass() float64 {
	if b.Static() {
		return 0
	}
	return 1 / b.Mass
}

type SphereSpec struct {
	Pos    Vec3
	Vel    Vec3
	Mass   float64
	Radius float64
}
