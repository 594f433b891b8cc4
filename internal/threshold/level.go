// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package threshold

// Level represents the severity derived from comparing a density reading to
// the effective thresholds. Levels are totally ordered.
type Level string

const (
	LevelNormal    Level = "normal"
	LevelWarning   Level = "warning"
	LevelCritical  Level = "critical"
	LevelEmergency Level = "emergency"
)

var levelRank = map[Level]int{
	LevelNormal:    0,
	LevelWarning:   1,
	LevelCritical:  2,
	LevelEmergency: 3,
}

// Rank returns the level's position in the total order. Unknown levels rank
// below normal.
func (l Level) Rank() int {
	if r, ok := levelRank[l]; ok {
		return r
	}
	return -1
}

// Valid reports whether l is one of the four defined levels.
func (l Level) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// LevelFor returns the highest level whose threshold the density meets or
// exceeds, checking from emergency down, and the threshold value that was
// crossed (0 for normal).
func LevelFor(density float64, eff Effective) (Level, float64) {
	switch {
	case density >= eff.Emergency:
		return LevelEmergency, eff.Emergency
	case density >= eff.Critical:
		return LevelCritical, eff.Critical
	case density >= eff.Warning:
		return LevelWarning, eff.Warning
	default:
		return LevelNormal, 0
	}
}
