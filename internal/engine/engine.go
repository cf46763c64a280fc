package engine

import (
	"fmt"
	"math"

	"osintwarn/internal/model"
)

const (
	baseConfidence    = 0.3
	signalConfidence  = 0.1
	maxConfidence     = 0.9
	unknownIndicatorF = "Unknown indicator ID: %s"
)

// Definitions is the read side of the definition store.
type Definitions interface {
	Lookup(id string) (model.IndicatorDefinition, bool)
}

type Engine struct {
	defs Definitions
}

func NewEngine(defs Definitions) *Engine {
	return &Engine{defs: defs}
}

// Evaluate scores one event. Unknown indicators come back as an unmatched
// evaluation, never as an error. The payload is accepted but not scored.
func (e *Engine) Evaluate(ev model.Event) model.Evaluation {
	if e.defs == nil {
		return model.Unmatched(fmt.Sprintf(unknownIndicatorF, ev.IndicatorID))
	}
	def, ok := e.defs.Lookup(ev.IndicatorID)
	if !ok {
		return model.Unmatched(fmt.Sprintf(unknownIndicatorF, ev.IndicatorID))
	}
	return model.Matched(def, Confidence(len(def.DataSignals)), RecommendTask(def.PIR, def.COA))
}

// Confidence grows by 0.1 per data signal from 0.3, capped at 0.9 and
// rounded to two decimals.
func Confidence(signals int) float64 {
	c := min(maxConfidence, baseConfidence+signalConfidence*float64(signals))
	return math.Round(c*100) / 100
}
