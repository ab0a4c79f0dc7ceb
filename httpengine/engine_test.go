//go:build linux

package httpengine

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ferryio/ferry"
	"github.com/ferryio/ferry/util"
	"github.com/stretchr/testify/require"
)

type stack struct {
	ioc     *ferry.IO
	engine  *Engine
	reactor *ferry.Reactor
}

func newStack(t *testing.T, opts ...EngineOption) *stack {
	t.Helper()

	ioc := ferry.MustIO()
	t.Cleanup(func() { ioc.Close() })

	timer, err := ferry.NewPollTimer(ioc)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { timer.Close() })

	engine := NewEngine(opts...)
	reactor := ferry.NewReactor(engine, ferry.NewPollWatcher(ioc), timer)

	return &stack{ioc: ioc, engine: engine, reactor: reactor}
}

// runUntil drives the loop until cond holds or the deadline passes.
func (s *stack) runUntil(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.NewTimer(5 * time.Second)
	defer deadline.Stop()

	for !cond() {
		select {
		case <-deadline.C:
			t.Fatal("condition not reached in time")
		default:
		}
		s.ioc.RunOneFor(50)
	}
}

// serve accepts n connections, reads each request's header section and
// answers with the given body, closing the connection to delimit it.
func serve(t *testing.T, ln net.Listener, n int, body string) {
	t.Helper()

	go func() {
		for i := 0; i < n; i++ {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			go func(conn net.Conn) {
				defer conn.Close()

				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if err != nil || line == "\r\n" {
						break
					}
				}

				conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\n" + body))
			}(conn)
		}
	}()
}

func listen(t *testing.T) net.Listener {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln
}

func TestEngineGet(t *testing.T) {
	s := newStack(t)

	ln := listen(t)
	serve(t, ln, 1, "hello")

	transfer := s.engine.NewTransfer()
	transfer.SetURL("http://" + ln.Addr().String() + "/greeting")

	done := false
	transfer.SetFinishedCallback(func(*Transfer) { done = true })

	s.reactor.Start(transfer)
	s.runUntil(t, func() bool { return done })

	require.Equal(t, ferry.ResultOK, transfer.Result())
	require.Equal(t, 200, transfer.StatusCode())
	require.Equal(t, "text/plain", transfer.ResponseHeader().Get("Content-Type"))
	require.Equal(t, "hello", string(transfer.ResponseBody()))
	require.Equal(t, 0, s.reactor.RunningCount())
}

func TestEngineConcurrentTransfers(t *testing.T) {
	s := newStack(t)

	ln := listen(t)
	serve(t, ln, 5, "payload")

	finished := 0
	for i := 0; i < 5; i++ {
		transfer := s.engine.NewTransfer()
		transfer.SetURL("http://" + ln.Addr().String() + "/")
		transfer.SetFinishedCallback(func(tr *Transfer) {
			if tr.Result() == ferry.ResultOK && string(tr.ResponseBody()) == "payload" {
				finished++
			}
		})
		s.reactor.Start(transfer)
	}

	s.runUntil(t, func() bool { return finished == 5 })
	require.Equal(t, 0, s.reactor.RunningCount())
}

func TestEngineRestartFinishedTransfer(t *testing.T) {
	s := newStack(t)

	ln := listen(t)
	serve(t, ln, 2, "again")

	transfer := s.engine.NewTransfer()
	transfer.SetURL("http://" + ln.Addr().String() + "/")

	finished := 0
	transfer.SetFinishedCallback(func(tr *Transfer) {
		finished++
		if finished == 1 {
			// Restart from inside the completion notification.
			s.reactor.Start(tr)
		}
	})

	s.reactor.Start(transfer)
	s.runUntil(t, func() bool { return finished == 2 })

	require.Equal(t, ferry.ResultOK, transfer.Result())
	require.Equal(t, "again", string(transfer.ResponseBody()))
}

func TestEngineConnectRefused(t *testing.T) {
	s := newStack(t)

	// Grab a port with nothing listening on it.
	ln := listen(t)
	addr := ln.Addr().String()
	ln.Close()

	transfer := s.engine.NewTransfer()
	transfer.SetURL("http://" + addr + "/")

	done := false
	transfer.SetFinishedCallback(func(*Transfer) { done = true })

	s.reactor.Start(transfer)
	s.runUntil(t, func() bool { return done })

	require.Equal(t, ferry.ResultCouldNotConnect, transfer.Result())
}

func TestEngineBadURL(t *testing.T) {
	s := newStack(t)

	transfer := s.engine.NewTransfer()
	transfer.SetURL("http://")

	done := false
	transfer.SetFinishedCallback(func(*Transfer) { done = true })

	s.reactor.Start(transfer)
	s.runUntil(t, func() bool { return done })

	require.Equal(t, ferry.ResultCouldNotResolve, transfer.Result())
}

func TestEngineTimeout(t *testing.T) {
	s := newStack(t)

	// Accept but never respond.
	ln := listen(t)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(3 * time.Second)
		}
	}()

	transfer := s.engine.NewTransfer()
	transfer.SetURL("http://" + ln.Addr().String() + "/")
	transfer.SetTimeout(50 * time.Millisecond)

	done := false
	transfer.SetFinishedCallback(func(*Transfer) { done = true })

	s.reactor.Start(transfer)
	s.runUntil(t, func() bool { return done })

	require.Equal(t, ferry.ResultTimedOut, transfer.Result())
	require.Equal(t, 0, s.reactor.RunningCount())
}

func TestEngineAbortIsSilent(t *testing.T) {
	s := newStack(t)

	ln := listen(t)
	serve(t, ln, 1, "never seen")

	transfer := s.engine.NewTransfer()
	transfer.SetURL("http://" + ln.Addr().String() + "/")

	finished := false
	transfer.SetFinishedCallback(func(*Transfer) { finished = true })

	s.reactor.Start(transfer)
	s.reactor.Abort(transfer)

	require.Equal(t, 0, s.reactor.RunningCount())

	// Give the loop time to surface any stray events.
	for i := 0; i < 10; i++ {
		s.ioc.RunOneFor(10)
	}
	require.False(t, finished, "aborted transfer must never finish")
}

func TestEngineRecordsLatencies(t *testing.T) {
	tracker := util.NewLatencyTracker(time.Microsecond, time.Minute, 3)
	s := newStack(t, WithLatencyTracker(tracker))

	ln := listen(t)
	serve(t, ln, 2, "ok")

	finished := 0
	for i := 0; i < 2; i++ {
		transfer := s.engine.NewTransfer()
		transfer.SetURL("http://" + ln.Addr().String() + "/")
		transfer.SetFinishedCallback(func(*Transfer) { finished++ })
		s.reactor.Start(transfer)
	}

	s.runUntil(t, func() bool { return finished == 2 })
	require.EqualValues(t, 2, tracker.Samples())
}

func TestEnginePost(t *testing.T) {
	s := newStack(t)

	ln := listen(t)

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		contentLength := 0
		for {
			line, err := r.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
			var n int
			if _, err := fmt.Sscanf(line, "Content-Length: %d", &n); err == nil {
				contentLength = n
			}
		}
		body := make([]byte, contentLength)
		io.ReadFull(r, body)
		received <- string(body)

		conn.Write([]byte("HTTP/1.1 204 No Content\r\n\r\n"))
	}()

	transfer := s.engine.NewTransfer()
	transfer.SetURL("http://" + ln.Addr().String() + "/submit")
	transfer.SetMethod("POST")
	transfer.SetHeader("Content-Type", "application/json")
	transfer.SetRequestBody([]byte(`{"a":1}`))

	done := false
	transfer.SetFinishedCallback(func(*Transfer) { done = true })

	s.reactor.Start(transfer)
	s.runUntil(t, func() bool { return done })

	require.Equal(t, ferry.ResultOK, transfer.Result())
	require.Equal(t, 204, transfer.StatusCode())
	require.Equal(t, `{"a":1}`, <-received)
}
