package transform

import (
	"strings"

	"github.com/pkg/errors"
)

// CalibrationFlags constrain which parameters a Solver may refine. Bit values match OpenCV's
// calibrateCamera flags so masks can be exchanged with OpenCV based tools.
type CalibrationFlags int

// Named calibration flags.
const (
	UseIntrinsicGuess CalibrationFlags = 1 << 0
	FixAspectRatio    CalibrationFlags = 1 << 1
	FixPrincipalPoint CalibrationFlags = 1 << 2
	ZeroTangentDist   CalibrationFlags = 1 << 3
	FixFocalLength    CalibrationFlags = 1 << 4
	FixK1             CalibrationFlags = 1 << 5
	FixK2             CalibrationFlags = 1 << 6
	FixK3             CalibrationFlags = 1 << 7
	FixK4             CalibrationFlags = 1 << 11
	FixK5             CalibrationFlags = 1 << 12
	FixK6             CalibrationFlags = 1 << 13
	RationalModel     CalibrationFlags = 1 << 14
)

// DefaultConstraintFlags refines focal lengths and principal point from the supplied guess and
// holds every distortion coefficient at its input value (6377).
const DefaultConstraintFlags = UseIntrinsicGuess | ZeroTangentDist | FixK1 | FixK2 | FixK3 | FixK4 | FixK5

var flagNames = []struct {
	flag CalibrationFlags
	name string
}{
	{UseIntrinsicGuess, "use_intrinsic_guess"},
	{FixAspectRatio, "fix_aspect_ratio"},
	{FixPrincipalPoint, "fix_principal_point"},
	{ZeroTangentDist, "zero_tangent_dist"},
	{FixFocalLength, "fix_focal_length"},
	{FixK1, "fix_k1"},
	{FixK2, "fix_k2"},
	{FixK3, "fix_k3"},
	{FixK4, "fix_k4"},
	{FixK5, "fix_k5"},
	{FixK6, "fix_k6"},
	{RationalModel, "rational_model"},
}

// Has reports whether every bit of other is set.
func (f CalibrationFlags) Has(other CalibrationFlags) bool {
	return f&other == other
}

// Names lists the set flags in bit order.
func (f CalibrationFlags) Names() []string {
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return names
}

func (f CalibrationFlags) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.Names(), "|")
}

// ParseCalibrationFlags ors together flags given by name, e.g. "fix_k1". Names are case insensitive.
func ParseCalibrationFlags(names []string) (CalibrationFlags, error) {
	var flags CalibrationFlags
outer:
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		for _, fn := range flagNames {
			if fn.name == name {
				flags |= fn.flag
				continue outer
			}
		}
		return 0, errors.Errorf("unknown calibration flag %q", name)
	}
	return flags, nil
}
