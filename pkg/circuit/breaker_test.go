package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	t.Run("closed breaker allows requests", func(t *testing.T) {
		b := NewBreaker(Config{Name: "compile:python", MaxFailures: 3, Timeout: time.Second})

		err := b.Execute(context.Background(), func() error { return nil })

		assert.NoError(t, err)
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("trips open on the nth consecutive failure", func(t *testing.T) {
		b := NewBreaker(Config{Name: "compile:python", MaxFailures: 3, Timeout: time.Minute})
		launchFailure := errors.New("exec: python3: no such file")

		for i := 0; i < 3; i++ {
			_ = b.Execute(context.Background(), func() error { return launchFailure })
		}

		assert.Equal(t, StateOpen, b.State())
		_, open := b.OpenSince()
		assert.True(t, open)
	})

	t.Run("rejects without calling fn while open", func(t *testing.T) {
		b := NewBreaker(Config{Name: "compile:python", MaxFailures: 1, Timeout: time.Minute})
		_ = b.Execute(context.Background(), func() error { return errors.New("boom") })

		calls := 0
		err := b.Execute(context.Background(), func() error { calls++; return nil })

		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.Equal(t, 0, calls)
	})

	t.Run("probes half-open after timeout elapses", func(t *testing.T) {
		b := NewBreaker(Config{Name: "run:java", MaxFailures: 1, Timeout: time.Millisecond, HalfOpenMax: 1})
		_ = b.Execute(context.Background(), func() error { return errors.New("boom") })
		time.Sleep(5 * time.Millisecond)

		err := b.Execute(context.Background(), func() error { return nil })

		assert.NoError(t, err)
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("reports a toolchain state transition through OnStateChange", func(t *testing.T) {
		var seen []string
		b := NewBreaker(Config{
			Name: "compile:rust", MaxFailures: 1, Timeout: time.Minute,
			OnStateChange: func(name string, from, to State) { seen = append(seen, name+":"+to.String()) },
		})

		_ = b.Execute(context.Background(), func() error { return errors.New("boom") })

		assert.Contains(t, seen, "compile:rust:open")
	})
}

func TestBreakerGroupIsolatesToolchainsByName(t *testing.T) {
	group := NewBreakerGroup(Config{MaxFailures: 1, Timeout: time.Minute})

	_ = group.Execute(context.Background(), "compile:python", func() error { return errors.New("missing interpreter") })
	_ = group.Execute(context.Background(), "compile:java", func() error { return nil })

	states := group.States()
	assert.Equal(t, StateOpen, states["compile:python"])
	assert.Equal(t, StateClosed, states["compile:java"])
	assert.Equal(t, []string{"compile:python"}, group.OpenNames())
}
