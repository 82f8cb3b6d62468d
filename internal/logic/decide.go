package logic

// Decision is the outcome of evaluating a check boundary.
type Decision int

const (
	// DecideSufficient means moisture is at or above the threshold.
	DecideSufficient Decision = iota
	// DecideWater means moisture is below the threshold and watering may start.
	DecideWater
	// DecideTankLow means watering is needed but the reservoir is empty.
	DecideTankLow
	// DecideNoReading means no sensor reading has been accepted yet.
	DecideNoReading
)

func (d Decision) String() string {
	switch d {
	case DecideSufficient:
		return "sufficient"
	case DecideWater:
		return "water"
	case DecideTankLow:
		return "tank_low"
	case DecideNoReading:
		return "no_reading"
	default:
		return "unknown"
	}
}

// CheckInput is what a check boundary looks at.
type CheckInput struct {
	HasReading bool
	Raw        int
	Level      WaterLevel
	Threshold  int
}

// Decide evaluates a check boundary. Comparison is always percentage based:
// watering starts only when MoisturePercent(raw) < threshold.
func Decide(in CheckInput) Decision {
	if !in.HasReading {
		return DecideNoReading
	}
	if MoisturePercent(in.Raw) >= in.Threshold {
		return DecideSufficient
	}
	if in.Level == WaterLow {
		return DecideTankLow
	}
	return DecideWater
}
