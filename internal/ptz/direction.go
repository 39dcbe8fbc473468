package ptz

import (
	"fmt"
	"math"
)

// Direction is a motor command.
type Direction string

const (
	Left    Direction = "left"
	Right   Direction = "right"
	Up      Direction = "up"
	Down    Direction = "down"
	ZoomIn  Direction = "zoomIn"
	ZoomOut Direction = "zoomOut"
	Stop    Direction = "stop"
)

// ParseDirection validates a direction name.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case Left, Right, Up, Down, ZoomIn, ZoomOut, Stop:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDirection, s)
}

// Velocity is a continuous move vector in the generic ONVIF velocity space.
// X is pan (positive right), Y is tilt (positive up), Z is zoom (positive in).
type Velocity struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ValidateSpeed checks that speed lies in (0, 1].
func ValidateSpeed(speed float64) error {
	if math.IsNaN(speed) || speed <= 0 || speed > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}
	return nil
}

// Velocity maps a movement direction and speed to a velocity vector. Stop
// has no vector and is rejected here.
func (d Direction) Velocity(speed float64) (Velocity, error) {
	if err := ValidateSpeed(speed); err != nil {
		return Velocity{}, err
	}
	switch d {
	case Left:
		return Velocity{X: -speed}, nil
	case Right:
		return Velocity{X: speed}, nil
	case Up:
		return Velocity{Y: speed}, nil
	case Down:
		return Velocity{Y: -speed}, nil
	case ZoomIn:
		return Velocity{Z: speed}, nil
	case ZoomOut:
		return Velocity{Z: -speed}, nil
	}
	return Velocity{}, fmt.Errorf("%w: %q has no velocity", ErrUnknownDirection, d)
}
