// Package bearing parses compass bearing strings such as "N", "N32E" or "S45W"
// into azimuth angles measured clockwise from north. Non-zero degrees without a
// second cardinal ("N45") are rejected.
package bearing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrMalformedBearing is returned when the text does not match Cardinal [Degrees] [Cardinal]
	ErrMalformedBearing = errors.New("malformed bearing")
	// ErrInvalidCardinalPair is returned when the second cardinal is not adjacent to the first
	ErrInvalidCardinalPair = errors.New("invalid cardinal pair")
)

// ParseError describes why a bearing string was rejected.
type ParseError struct {
	Input  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bearing %q: %s: %s", e.Input, e.Err, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// base angles in degrees, indexed by cardinal letter
var cardinalDegrees = map[byte]float64{
	'N': 0,
	'E': 90,
	'S': 180,
	'W': 270,
}

// deflection sign for each ordered cardinal pair; absent pairs are invalid
var pairSign = map[[2]byte]float64{
	{'N', 'E'}: 1,
	{'E', 'S'}: 1,
	{'S', 'W'}: 1,
	{'W', 'N'}: 1,
	{'N', 'W'}: -1,
	{'W', 'S'}: -1,
	{'S', 'E'}: -1,
	{'E', 'N'}: -1,
}

// Parse converts a bearing string to an azimuth in radians in [0, 2π).
//
// "N" is 0, "E" is π/2, "N45E" is π/4, "S30W" is 210°. A deflection needs a
// direction, so "N45" is rejected while "N0" and "N" are accepted.
func Parse(text string) (float64, error) {
	deg, err := ParseDegrees(text)
	if err != nil {
		return 0, err
	}
	rad := deg * math.Pi / 180
	if rad >= 2*math.Pi {
		rad = 0
	}
	return rad, nil
}

// ParseDegrees is Parse with the result in degrees in [0, 360). Like Parse it
// rejects non-zero degrees without a second cardinal.
func ParseDegrees(text string) (float64, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, &ParseError{Input: text, Reason: "empty", Err: ErrMalformedBearing}
	}

	first := s[0]
	base, ok := cardinalDegrees[first]
	if !ok {
		return 0, &ParseError{Input: text, Reason: "must start with N, E, S or W", Err: ErrMalformedBearing}
	}

	rest := s[1:]
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	digits := rest[:i]
	tail := rest[i:]

	var second byte
	switch len(tail) {
	case 0:
	case 1:
		second = tail[0]
		if _, ok := cardinalDegrees[second]; !ok {
			return 0, &ParseError{Input: text, Reason: fmt.Sprintf("unexpected %q", tail), Err: ErrMalformedBearing}
		}
	default:
		return 0, &ParseError{Input: text, Reason: fmt.Sprintf("unexpected %q", tail), Err: ErrMalformedBearing}
	}

	var deflection float64
	if digits != "" {
		v, err := strconv.ParseUint(digits, 10, 32)
		if err != nil {
			return 0, &ParseError{Input: text, Reason: "degrees out of range", Err: ErrMalformedBearing}
		}
		deflection = float64(v)
	}

	if second == 0 {
		if deflection != 0 {
			return 0, &ParseError{Input: text, Reason: "deflection without direction", Err: ErrMalformedBearing}
		}
		return base, nil
	}

	if digits == "" {
		return 0, &ParseError{Input: text, Reason: "second cardinal without degrees", Err: ErrMalformedBearing}
	}

	sign, ok := pairSign[[2]byte{first, second}]
	if !ok {
		return 0, &ParseError{
			Input:  text,
			Reason: fmt.Sprintf("%c is not adjacent to %c", second, first),
			Err:    ErrInvalidCardinalPair,
		}
	}

	deg := math.Mod(base+sign*deflection, 360)
	if deg < 0 {
		deg += 360
	}
	if deg == 0 {
		deg = 0 // fold -0
	}
	return deg, nil
}

// Valid reports whether text parses.
func Valid(text string) bool {
	_, err := ParseDegrees(text)
	return err == nil
}
