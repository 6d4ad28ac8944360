package model

import "time"

// Observer receives registry events. Implementations must be safe for
// concurrent use; calls happen on the creating goroutine or on the background
// worker.
type Observer interface {
	ModelCreated(key Key, origin Origin)
	ModelFailed(key Key, err error)
	HookFinished(key Key, hook Hook, elapsed time.Duration, err error)
}

type observers []Observer

func (o observers) created(key Key, origin Origin) {
	for _, obs := range o {
		obs.ModelCreated(key, origin)
	}
}

func (o observers) failed(key Key, err error) {
	for _, obs := range o {
		obs.ModelFailed(key, err)
	}
}

func (o observers) hookFinished(key Key, hook Hook, elapsed time.Duration, err error) {
	for _, obs := range o {
		obs.HookFinished(key, hook, elapsed, err)
	}
}
