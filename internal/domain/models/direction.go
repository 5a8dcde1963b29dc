package models

// Direction is the predicted or realised move of the next candle.
type Direction string

const (
	DirectionNone    Direction = ""
	DirectionUp      Direction = "UP"
	DirectionDown    Direction = "DOWN"
	DirectionNeutral Direction = "NEUTRAL"
)

// IsDirectional reports whether d is UP or DOWN.
func (d Direction) IsDirectional() bool { return d == DirectionUp || d == DirectionDown }

// Opposite returns DOWN for UP and UP for DOWN; other values are returned unchanged.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionUp:
		return DirectionDown
	case DirectionDown:
		return DirectionUp
	default:
		return d
	}
}

// ParseDirection maps a free-form label to a Direction.
func ParseDirection(s string) Direction {
	switch s {
	case "UP", "up", "Up", "CALL", "call":
		return DirectionUp
	case "DOWN", "down", "Down", "PUT", "put":
		return DirectionDown
	case "NEUTRAL", "neutral", "Neutral":
		return DirectionNeutral
	default:
		return DirectionNone
	}
}
