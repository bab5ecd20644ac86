package http

import (
	"context"

	"pointview/internal/usecase"
)

// LivePrefix names the session that holds the latest frame of a sensor.
const LivePrefix = "live-"

// ServeFrames loads every decoded frame into its sensor's session and
// publishes the resulting scene until frames is closed or ctx is done.
func (a *API) ServeFrames(ctx context.Context, frames <-chan usecase.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if len(frame.Points) == 0 {
				continue
			}
			s := a.sessions.GetOrCreate(LivePrefix + frame.Source)
			if err := s.Load(frame.Points); err != nil {
				a.log.WithError(err).WithField("source", frame.Source).Warn("live frame rejected")
				continue
			}
			scene, err := s.Scene()
			if err != nil {
				a.log.WithError(err).WithField("source", frame.Source).Warn("live scene failed")
				continue
			}
			a.publish(scene)
		}
	}
}
