//go:build linux

package ferry

import (
	"testing"
	"time"
)

func newTestTimer(t *testing.T, ioc *IO) *PollTimer {
	t.Helper()

	timer, err := NewPollTimer(ioc)
	if err != nil {
		t.Fatal(err)
	}
	return timer
}

func TestPollTimerFiresOnce(t *testing.T) {
	ioc := MustIO()
	defer ioc.Close()

	timer := newTestTimer(t, ioc)
	defer timer.Close()

	fired := 0
	if err := timer.Start(time.Millisecond, func() { fired++ }); err != nil {
		t.Fatal(err)
	}

	pollUntil(t, ioc, func() bool { return fired == 1 })

	// Single-shot: no second firing.
	time.Sleep(5 * time.Millisecond)
	for i := 0; i < 3; i++ {
		ioc.PollOne()
	}
	if fired != 1 {
		t.Fatalf("timer fired %d times", fired)
	}
}

func TestPollTimerStop(t *testing.T) {
	ioc := MustIO()
	defer ioc.Close()

	timer := newTestTimer(t, ioc)
	defer timer.Close()

	fired := false
	timer.Start(time.Millisecond, func() { fired = true })
	if err := timer.Stop(); err != nil {
		t.Fatal(err)
	}

	time.Sleep(5 * time.Millisecond)
	for i := 0; i < 3; i++ {
		ioc.PollOne()
	}
	if fired {
		t.Fatal("stopped timer fired")
	}
}

func TestPollTimerRestartSupersedes(t *testing.T) {
	ioc := MustIO()
	defer ioc.Close()

	timer := newTestTimer(t, ioc)
	defer timer.Close()

	firstFired := false
	secondFired := false

	timer.Start(time.Millisecond, func() { firstFired = true })
	// Restarting without an explicit Stop must supersede the pending
	// alarm: only the most recent deadline can ever fire.
	timer.Start(2*time.Millisecond, func() { secondFired = true })

	pollUntil(t, ioc, func() bool { return secondFired })

	if firstFired {
		t.Fatal("superseded deadline fired")
	}
}

func TestPollTimerZeroDurationFiresAsync(t *testing.T) {
	ioc := MustIO()
	defer ioc.Close()

	timer := newTestTimer(t, ioc)
	defer timer.Close()

	fired := false
	if err := timer.Start(0, func() { fired = true }); err != nil {
		t.Fatal(err)
	}

	// Never synchronously inside Start: a zero deadline fires on the next
	// loop iteration.
	if fired {
		t.Fatal("zero-duration timer fired synchronously")
	}

	pollUntil(t, ioc, func() bool { return fired })
}

func TestPollTimerStopInsideOwnCallback(t *testing.T) {
	ioc := MustIO()
	defer ioc.Close()

	timer := newTestTimer(t, ioc)
	defer timer.Close()

	fired := 0
	timer.Start(time.Millisecond, func() {
		fired++
		timer.Stop()
	})

	pollUntil(t, ioc, func() bool { return fired == 1 })
}
