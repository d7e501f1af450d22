package router

import (
	"fmt"

	"github.com/kgrant/tickdata/internal/model"
)

// TransformError reports a malformed canonical event. The record is dropped
// and the pipeline continues.
type TransformError struct {
	Symbol string
	Reason string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %s", e.Symbol, e.Reason)
}

// Stats is a snapshot of transformer counters.
type Stats struct {
	EventsReceived int64
	Transformed    int64
	Synthesized    int64
	Dropped        int64
}

// Config holds transformer configuration.
type Config struct {
	// Target is the record shape to produce for the batch path.
	Target model.DataType
}

// Number of synthetic book levels per side.
const syntheticBookDepth = 5
