package chatclient

import (
	"log/slog"
	"slices"
)

// TurnState is the lifecycle of a single chat turn.
type TurnState string

const (
	StateIdle            TurnState = "idle"
	StateSending         TurnState = "sending"
	StateStreaming       TurnState = "streaming"
	StateRateLimited     TurnState = "rate_limited"
	StateConnectionError TurnState = "connection_error"
	StateDone            TurnState = "done"
	StateError           TurnState = "error"
)

var turnTransitions = map[TurnState][]TurnState{
	StateIdle:            {StateSending, StateError},
	StateSending:         {StateStreaming, StateRateLimited, StateConnectionError, StateError},
	StateRateLimited:     {StateSending, StateError},
	StateConnectionError: {StateSending, StateError},
	StateStreaming:       {StateDone, StateError},
}

// Terminal reports whether no further transition is possible.
func (s TurnState) Terminal() bool {
	return s == StateDone || s == StateError
}

// StateHook observes every accepted transition of a turn.
type StateHook func(from, to TurnState)

type turn struct {
	state TurnState
	hook  StateHook
	log   *slog.Logger
}

func newTurn(hook StateHook, log *slog.Logger) *turn {
	return &turn{state: StateIdle, hook: hook, log: log}
}

// to moves the turn to next. Illegal moves are logged and ignored.
func (t *turn) to(next TurnState) bool {
	if !slices.Contains(turnTransitions[t.state], next) {
		t.log.Error("illegal turn transition", "from", t.state, "to", next)
		return false
	}
	prev := t.state
	t.state = next
	if t.hook != nil {
		t.hook(prev, next)
	}
	return true
}
