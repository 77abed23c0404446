package alert

// Level is the instantaneous threat severity for one camera, derived from
// the detections visible in the current cycle only. It has no memory: a
// cycle with no visible threat is SAFE regardless of alert history.
type Level int

const (
	LevelSafe Level = iota
	LevelElevated
	LevelHigh
	LevelCritical
)

var levelNames = map[Level]string{
	LevelSafe:     "SAFE",
	LevelElevated: "ELEVATED",
	LevelHigh:     "HIGH",
	LevelCritical: "CRITICAL",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "SAFE"
}

// MarshalText makes Level render as its name in JSON payloads.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// LevelThresholds tunes how visible threats map to a Level.
type LevelThresholds struct {
	// HighCount threats visible at once raise HIGH; CriticalCount raise
	// CRITICAL.
	HighCount     int
	CriticalCount int
	// A single threat at or above HighConfidence raises HIGH; HighCount
	// such threats raise CRITICAL.
	HighConfidence float64
}

// levelFor computes the threat level for one cycle's visible threats.
// Monotone in both count and confidence.
func (t LevelThresholds) levelFor(count int, maxConfidence float64) Level {
	switch {
	case count == 0:
		return LevelSafe
	case count >= t.CriticalCount,
		count >= t.HighCount && maxConfidence >= t.HighConfidence:
		return LevelCritical
	case count >= t.HighCount, maxConfidence >= t.HighConfidence:
		return LevelHigh
	default:
		return LevelElevated
	}
}
