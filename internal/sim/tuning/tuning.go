package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Gravity    [3]float64 `yaml:"gravity"`
	StepRateHz int        `yaml:"step_rate_hz"`
	SimSeconds float64    `yaml:"sim_seconds"`

	DefaultMass   float64 `yaml:"default_mass"`
	DefaultRadius float64 `yaml:"default_radius"`

	Restitution float64 `yaml:"restitution"`
	Friction    float64 `yaml:"friction"`

	// Realtime sleeps one step period after every step.
	Realtime        bool `yaml:"realtime"`
	FrameEverySteps int  `yaml:"frame_every_steps"`
}

func Defaults() Tuning {
	return Tuning{
		Gravity:         [3]float64{0, 0, -10},
		StepRateHz:      240,
		SimSeconds:      5,
		DefaultMass:     1.0,
		DefaultRadius:   0.1,
		Restitution:     0,
		Friction:        0.5,
		Realtime:        true,
		FrameEverySteps: 8,
	}
}

// StepsPerAdd is the number of fixed steps run after each "add" action.
func (t Tuning) StepsPerAdd() int {
	return int(t.SimSeconds * float64(t.StepRateHz))
}

func (t Tuning) Validate() error {
	if t.StepRateHz <= 0 {
		return fmt.Errorf("step_rate_hz must be > 0, got %d", t.StepRateHz)
	}
	if t.SimSeconds < 0 {
		return fmt.Errorf("sim_seconds must be >= 0, got %v", t.SimSeconds)
	}
	if t.DefaultMass < 0 || t.DefaultRadius <= 0 {
		return fmt.Errorf("default_mass must be >= 0 and default_radius > 0")
	}
	if t.Restitution < 0 || t.Restitution > 1 {
		return fmt.Errorf("restitution must be in [0,1], got %v", t.Restitution)
	}
	if t.Friction < 0 {
		return fmt.Errorf("friction must be >= 0, got %v", t.Friction)
	}
	return nil
}

// Load reads a tuning file on top of Defaults; keys absent from the file keep
// their default value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
