package theory

import (
	"fmt"
	"strings"
)

type Scale string

const (
	Major Scale = "major"
	Minor Scale = "minor"
)

type scaleDef struct {
	triad [3]int
}

var scales = map[Scale]scaleDef{
	Major: {triad: [3]int{0, 4, PerfectFifth}},
	Minor: {triad: [3]int{0, 3, PerfectFifth}},
}

// Scales lists the supported scales in display order.
func Scales() []Scale {
	return []Scale{Major, Minor}
}

func ParseScale(s string) (Scale, error) {
	sc := Scale(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := scales[sc]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidScale, s)
	}
	return sc, nil
}

func lookup(scale Scale) (scaleDef, error) {
	def, ok := scales[scale]
	if !ok {
		return scaleDef{}, fmt.Errorf("%w: %q", ErrInvalidScale, string(scale))
	}
	return def, nil
}

// Third returns the scale's characteristic third in semitones.
func Third(scale Scale) (int, error) {
	def, err := lookup(scale)
	if err != nil {
		return 0, err
	}
	return def.triad[1], nil
}

func TriadIntervals(scale Scale) ([3]int, error) {
	def, err := lookup(scale)
	if err != nil {
		return [3]int{}, err
	}
	return def.triad, nil
}

// Triad returns root, third and fifth built on root.
func Triad(root Pitch, scale Scale) ([3]Pitch, error) {
	iv, err := TriadIntervals(scale)
	if err != nil {
		return [3]Pitch{}, err
	}
	return [3]Pitch{
		Transpose(root, iv[0]),
		Transpose(root, iv[1]),
		Transpose(root, iv[2]),
	}, nil
}
