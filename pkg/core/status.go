package core

import "fmt"

// Direction identifies which side of a flow a deployment targets.
type Direction string

const (
	DirectionSource      Direction = "source"
	DirectionDestination Direction = "destination"
)

// Directions lists both directions in the order configs are built.
var Directions = []Direction{DirectionSource, DirectionDestination}

// KeyPrefix returns the flow attribute key prefix for the direction.
func (d Direction) KeyPrefix() string {
	switch d {
	case DirectionSource:
		return "src_"
	case DirectionDestination:
		return "dest_"
	default:
		return ""
	}
}

// Valid returns true if d is one of the known directions.
func (d Direction) Valid() bool {
	return d == DirectionSource || d == DirectionDestination
}

// ParseDirection converts a string (source/src, destination/dest) to a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "source", "src":
		return DirectionSource, true
	case "destination", "dest":
		return DirectionDestination, true
	default:
		return "", false
	}
}

// ErrorKind classifies a failure according to how it propagates.
type ErrorKind int

const (
	KindNone           ErrorKind = iota // No error
	KindMatching                        // Path matching or inference failed, degrades to no selection
	KindValidationGap                   // Wizard transition blocked
	KindItemDeployment                  // External system rejected or failed a single item
	KindCancellation                    // User cancelled a conflict or the batch
	KindPrecondition                    // Target tree or settings could not be loaded
	KindConflict                        // Name collision reported by the external system
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMatching:
		return "matching"
	case KindValidationGap:
		return "validation_gap"
	case KindItemDeployment:
		return "item_deployment"
	case KindCancellation:
		return "cancellation"
	case KindPrecondition:
		return "precondition"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// MarshalText lets ErrorKind appear by name in JSON reports.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name written by MarshalText.
func (k *ErrorKind) UnmarshalText(text []byte) error {
	for c := KindNone; c <= KindConflict; c++ {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", text)
}
