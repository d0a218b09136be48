package core

import "github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"

// Observer receives structured events. Implementations must not block.
type Observer interface {
	Observe(e model.Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(e model.Event)

func (f ObserverFunc) Observe(e model.Event) { f(e) }

// Observers fans an event out to every member.
type Observers []Observer

func (o Observers) Observe(e model.Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}
