package cleanup

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ExecutesInDescendingPriority(t *testing.T) {
	r := NewRegistry(8, zerolog.Nop())

	var order []int
	for _, prio := range []int{10, 90, 50} {
		p := prio
		err := r.Register("entry", p, Proc(func() {
			order = append(order, p)
		}))
		require.NoError(t, err)
	}

	require.NoError(t, r.Execute())
	require.Equal(t, []int{90, 50, 10}, order)
}

func TestRegistry_TiesKeepRegistrationOrder(t *testing.T) {
	r := NewRegistry(8, zerolog.Nop())

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		n := name
		require.NoError(t, r.Register(n, 50, Proc(func() {
			order = append(order, n)
		})))
	}

	require.NoError(t, r.Execute())
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRegistry_MixedPrioritiesAndTies(t *testing.T) {
	r := NewRegistry(8, zerolog.Nop())

	var order []string
	add := func(name string, prio int) {
		require.NoError(t, r.Register(name, prio, Proc(func() {
			order = append(order, name)
		})))
	}
	add("store", 70)
	add("poller", 100)
	add("pool", 90)
	add("listener-a", 80)
	add("listener-b", 80)
	add("log", 10)

	require.NoError(t, r.Execute())
	require.Equal(t, []string{"poller", "pool", "listener-a", "listener-b", "store", "log"}, order)
}

func TestRegistry_RejectsWhenFull(t *testing.T) {
	r := NewRegistry(2, zerolog.Nop())

	require.NoError(t, r.Register("a", 1, Proc(func() {})))
	require.NoError(t, r.Register("b", 2, Proc(func() {})))

	err := r.Register("c", 3, Proc(func() {}))
	require.ErrorIs(t, err, ErrRegistryFull)
	require.Equal(t, 2, r.Len())
}

func TestRegistry_RegisterAfterExecuteRejected(t *testing.T) {
	r := NewRegistry(4, zerolog.Nop())
	require.NoError(t, r.Register("a", 1, Proc(func() {})))
	require.NoError(t, r.Execute())

	err := r.Register("late", 99, Proc(func() {}))
	require.ErrorIs(t, err, ErrExecuted)
}

func TestRegistry_FailuresDoNotStopExecution(t *testing.T) {
	r := NewRegistry(8, zerolog.Nop())

	opErr := errors.New("socket already closed")
	var ranLast bool
	require.NoError(t, r.Register("bad-op", 30, Op(func() error { return opErr })))
	require.NoError(t, r.Register("bad-check", 20, Check(func() bool { return false })))
	require.NoError(t, r.Register("final", 10, Proc(func() { ranLast = true })))

	err := r.Execute()
	require.Error(t, err)
	require.True(t, ranLast, "entries after a failure must still run")
	require.ErrorIs(t, err, opErr)
	require.ErrorContains(t, err, "bad-op")
	require.ErrorContains(t, err, "bad-check")
}

func TestRegistry_SecondExecuteIsNoop(t *testing.T) {
	r := NewRegistry(4, zerolog.Nop())

	runs := 0
	require.NoError(t, r.Register("once", 1, Proc(func() { runs++ })))

	require.NoError(t, r.Execute())
	require.NoError(t, r.Execute())
	require.Equal(t, 1, runs, "entries are consumed by the first Execute")
}

func TestRegistry_AllActionShapesRun(t *testing.T) {
	r := NewRegistry(4, zerolog.Nop())

	var ran []string
	require.NoError(t, r.Register("proc", 3, Proc(func() { ran = append(ran, "proc") })))
	require.NoError(t, r.Register("check", 2, Check(func() bool { ran = append(ran, "check"); return true })))
	require.NoError(t, r.Register("op", 1, Op(func() error { ran = append(ran, "op"); return nil })))

	require.NoError(t, r.Execute())
	require.Equal(t, []string{"proc", "check", "op"}, ran)
}

func TestRegistry_InvalidActionRejected(t *testing.T) {
	r := NewRegistry(4, zerolog.Nop())

	require.Error(t, r.Register("zero", 1, Action{}))
	require.Error(t, r.Register("nil-proc", 1, Proc(nil)))
	require.Error(t, r.Register("nil-check", 1, Check(nil)))
	require.Error(t, r.Register("nil-op", 1, Op(nil)))
	require.Equal(t, 0, r.Len())
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	r := NewRegistry(64, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(prio int) {
			defer wg.Done()
			_ = r.Register("concurrent", prio, Proc(func() {}))
		}(i)
	}
	wg.Wait()

	require.Equal(t, 32, r.Len())
	require.NoError(t, r.Execute())
}
