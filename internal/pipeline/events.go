// internal/pipeline/events.go
package pipeline

import (
	"github.com/boomscraper/boomscraper/internal/utils"
)

// Stage names one step of the pipeline, in execution order.
type Stage string

const (
	StageEvasion   Stage = "evasion"
	StageFetch     Stage = "fetch"
	StageExtract   Stage = "extract"
	StageNormalize Stage = "normalize"
	StageValidate  Stage = "validate"
	StageDeliver   Stage = "deliver"
)

// Event is the structured diagnostic emitted after each stage completes.
// The pipeline defines the event shape; the sink implementation is the
// caller's.
type Event struct {
	Stage     Stage
	SourceURL string
	Outcome   string
	Err       error
}

// Observer consumes pipeline events. Implementations must be safe for
// concurrent use across units of work.
type Observer interface {
	Observe(event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(event Event) { f(event) }

// LogObserver writes events through a Logger, the default diagnostics sink.
type LogObserver struct {
	logger utils.Logger
}

// NewLogObserver wraps a logger as an event sink.
func NewLogObserver(logger utils.Logger) *LogObserver {
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) Observe(event Event) {
	entry := o.logger.WithFields(map[string]interface{}{
		"stage":      string(event.Stage),
		"source_url": event.SourceURL,
		"outcome":    event.Outcome,
	})
	if event.Err != nil {
		entry.WithField("error", event.Err.Error()).Warn("stage failed")
		return
	}
	entry.Info("stage completed")
}
