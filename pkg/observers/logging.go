// Package observers provides listeners for monitoring an intersection
// controller: logging, statistics, safety checks and recording.
package observers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/fsm"
)

// LightLogger logs every published light state
type LightLogger struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLightLogger creates a light logger writing at level
func NewLightLogger(logger *slog.Logger, level slog.Level) *LightLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &LightLogger{logger: logger.With("component", "lights"), level: level}
}

// NewDefaultLightLogger logs to slog.Default at info level
func NewDefaultLightLogger() *LightLogger {
	return NewLightLogger(nil, slog.LevelInfo)
}

// Listen logs s
func (l *LightLogger) Listen(s junction.LightState) {
	l.logger.Log(context.Background(), l.level, "lights changed",
		"green", join(s.With(junction.Green)),
		"yellow", join(s.With(junction.Yellow)),
		"all_red", s.IsAllRed(),
	)
}

func join(ids []junction.SensorID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}

// CycleLogger logs phase cycle transitions
type CycleLogger struct {
	logger *slog.Logger
}

var _ fsm.ExtendedObserver = (*CycleLogger)(nil)

// NewCycleLogger creates a cycle logger
func NewCycleLogger(logger *slog.Logger) *CycleLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &CycleLogger{logger: logger.With("component", "cycle")}
}

// OnTransition logs transitions
func (o *CycleLogger) OnTransition(from, to string, event fsm.Event) {
	o.logger.Info("transition", "from", from, "to", to, "event", event.Name)
}

// OnStateEnter logs state entry
func (o *CycleLogger) OnStateEnter(state string) {
	o.logger.Debug("entering state", "state", state)
}

// OnStateExit logs state exit
func (o *CycleLogger) OnStateExit(state string) {
	o.logger.Debug("exiting state", "state", state)
}

// OnEventRejected logs events the cycle did not act on
func (o *CycleLogger) OnEventRejected(event fsm.Event, reason string) {
	o.logger.Debug("event rejected", "event", event.Name, "reason", reason)
}

// OnError logs errors
func (o *CycleLogger) OnError(err error) {
	o.logger.Error("cycle error", "error", err)
}
