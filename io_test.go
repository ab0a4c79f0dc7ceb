//go:build linux

package ferry

import (
	"testing"
)

func TestIOPostDispatchesOnLoop(t *testing.T) {
	ioc := MustIO()
	defer ioc.Close()

	ran := 0
	if err := ioc.Post(func() { ran++ }); err != nil {
		t.Fatal(err)
	}
	if ran != 0 {
		t.Fatal("posted handler ran synchronously")
	}

	pollUntil(t, ioc, func() bool { return ran == 1 })
}

func TestIOPostFromAnotherGoroutine(t *testing.T) {
	ioc := MustIO()
	defer ioc.Close()

	done := make(chan struct{})
	go func() {
		ioc.Post(func() { close(done) })
	}()

	ok := false
	pollUntil(t, ioc, func() bool {
		select {
		case <-done:
			ok = true
		default:
		}
		return ok
	})
}

func TestIOCloseTwice(t *testing.T) {
	ioc := MustIO()

	if err := ioc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := ioc.Close(); err == nil {
		t.Fatal("second close should fail")
	}
}
