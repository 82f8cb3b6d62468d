package hardware

import (
	"go.uber.org/zap"

	"github.com/sweeney/plant-waterer/internal/logic"
)

// IndicatorRecorder receives the colour currently shown.
type IndicatorRecorder interface {
	SetIndicator(c logic.Color)
}

// Lamp shows status colours on the RGB LED and records them.
// An LED failure is logged and never propagated: the indicator is advisory.
type Lamp struct {
	gw     Gateway
	record IndicatorRecorder
	log    *zap.Logger
}

// NewLamp creates a Lamp. record and log may be nil.
func NewLamp(gw Gateway, record IndicatorRecorder, log *zap.Logger) *Lamp {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lamp{gw: gw, record: record, log: log}
}

// Show drives the LED to c.
func (l *Lamp) Show(c logic.Color) {
	if err := l.gw.SetIndicator(c); err != nil {
		l.log.Warn("set indicator failed", zap.String("color", string(c)), zap.Error(err))
	}
	if l.record != nil {
		l.record.SetIndicator(c)
	}
}
