package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// callbackMsg carries a loop callback back into Update.
type callbackMsg func()

// Loop runs view callbacks inside the bubbletea Update loop. Posted
// callbacks run at the end of the current Update; blocking work and timers
// become tea.Cmds whose messages carry the callback back.
//
// A Loop is only touched from Update, so it needs no locking.
type Loop struct {
	ctx     context.Context
	posted  []func()
	pending []tea.Cmd
}

// NewLoop returns a loop whose work carries the values of ctx. Work is not
// cancelled when ctx is.
func NewLoop(ctx context.Context) *Loop {
	return &Loop{ctx: context.WithoutCancel(ctx)}
}

func (l *Loop) Post(fn func()) {
	l.posted = append(l.posted, fn)
}

func (l *Loop) Go(work func(ctx context.Context) func()) {
	ctx := l.ctx
	l.pending = append(l.pending, func() tea.Msg {
		if cb := work(ctx); cb != nil {
			return callbackMsg(cb)
		}
		return nil
	})
}

func (l *Loop) After(d time.Duration, fn func()) {
	l.pending = append(l.pending, tea.Tick(d, func(time.Time) tea.Msg {
		return callbackMsg(fn)
	}))
}

// flush runs posted callbacks, including ones they post, in order.
func (l *Loop) flush() {
	for len(l.posted) > 0 {
		fn := l.posted[0]
		l.posted = l.posted[1:]
		fn()
	}
}

// Cmd flushes posted callbacks and returns the accumulated work.
func (l *Loop) Cmd() tea.Cmd {
	l.flush()
	if len(l.pending) == 0 {
		return nil
	}
	cmds := l.pending
	l.pending = nil
	return tea.Batch(cmds...)
}
