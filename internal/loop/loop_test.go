package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSerial_RunsInOrder(t *testing.T) {
	s := NewSerial(nil)
	s.Start(context.Background())
	defer s.Stop()

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		s.Post(func() { got = append(got, i) })
	}
	require.NoError(t, s.Do(context.Background(), func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestSerial_GoPostsCallback(t *testing.T) {
	s := NewSerial(nil)
	s.Start(context.Background())
	defer s.Stop()

	done := make(chan string, 1)
	s.Go(func(ctx context.Context) func() {
		v := "worked"
		return func() { done <- v }
	})

	select {
	case v := <-done:
		assert.Equal(t, "worked", v)
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
}

func TestSerial_After(t *testing.T) {
	s := NewSerial(nil)
	s.Start(context.Background())
	defer s.Stop()

	fired := make(chan struct{})
	s.After(10*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestSerial_PostFromCallback(t *testing.T) {
	s := NewSerial(nil)
	s.Start(context.Background())
	defer s.Stop()

	var n int
	require.NoError(t, s.Do(context.Background(), func() {
		s.Post(func() { n++ })
	}))
	require.NoError(t, s.Do(context.Background(), func() {}))
	assert.Equal(t, 1, n)
}

func TestSerial_RecoversPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	s := NewSerial(zap.New(core))
	s.Start(context.Background())
	defer s.Stop()

	s.Post(func() { panic("boom") })
	var ran atomic.Bool
	require.NoError(t, s.Do(context.Background(), func() { ran.Store(true) }))
	assert.True(t, ran.Load())
	assert.Equal(t, 1, logs.FilterMessage("loop callback panicked").Len())
}

func TestSerial_DoAfterStop(t *testing.T) {
	s := NewSerial(nil)
	s.Start(context.Background())
	s.Stop()

	err := s.Do(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSerial_StopWithoutStart(t *testing.T) {
	s := NewSerial(nil)
	s.Stop()
	s.Post(func() { t.Fatal("posted after stop") })
}

func TestManual_CompleteOutOfOrder(t *testing.T) {
	m := NewManual()
	var order []string
	m.Go(func(context.Context) func() { return func() { order = append(order, "first") } })
	m.Go(func(context.Context) func() { return func() { order = append(order, "second") } })
	assert.Equal(t, 2, m.Pending())

	require.True(t, m.Complete(1))
	require.True(t, m.Complete(0))
	assert.False(t, m.Complete(0))
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestManual_Advance(t *testing.T) {
	m := NewManual()
	var fired []string
	m.After(time.Second, func() { fired = append(fired, "a") })
	m.After(500*time.Millisecond, func() {
		fired = append(fired, "b")
		m.After(200*time.Millisecond, func() { fired = append(fired, "c") })
	})

	m.Advance(999 * time.Millisecond)
	assert.Equal(t, []string{"b", "c"}, fired)
	assert.Equal(t, 1, m.Timers())

	m.Advance(time.Millisecond)
	assert.Equal(t, []string{"b", "c", "a"}, fired)
	assert.Equal(t, time.Second, m.Now())
}

func TestManual_CompleteAllFollowsChains(t *testing.T) {
	m := NewManual()
	n := 0
	m.Go(func(context.Context) func() {
		return func() {
			n++
			m.Go(func(context.Context) func() { return func() { n++ } })
		}
	})
	m.CompleteAll()
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, m.Pending())
}

func TestSerial_WorkOutlivesStop(t *testing.T) {
	s := NewSerial(nil)
	s.Start(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	var workErr atomic.Value
	var called atomic.Bool
	s.Go(func(ctx context.Context) func() {
		close(started)
		select {
		case <-ctx.Done():
			workErr.Store(ctx.Err())
		case <-release:
		}
		return func() { called.Store(true) }
	})

	<-started
	s.Stop()
	close(release)
	s.Wait()

	assert.Nil(t, workErr.Load())
	assert.False(t, called.Load(), "callback ran after stop")
}
