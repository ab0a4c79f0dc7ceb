// Benchmarks transfer throughput and latency against a local HTTP server:
// a fixed number of transfers is kept in flight by restarting each one from
// its own completion callback until the quota is reached.
//
// The process exposes /debug/fgprof for wall-clock profiling while the
// benchmark runs.
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/felixge/fgprof"
	"github.com/ferryio/ferry"
	"github.com/ferryio/ferry/httpengine"
	"github.com/ferryio/ferry/util"
)

var (
	total       = flag.Int("n", 10_000, "total number of transfers")
	inflight    = flag.Int("c", 64, "transfers kept in flight")
	payloadSize = flag.Int("payload", 1024, "response payload size in bytes")
	profileAddr = flag.String("profile", "localhost:6060", "fgprof listen address")
)

func main() {
	flag.Parse()

	http.DefaultServeMux.Handle("/debug/fgprof", fgprof.Handler())
	go http.ListenAndServe(*profileAddr, nil)

	payload := []byte(strings.Repeat("x", *payloadSize))
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	go http.Serve(ln, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(payload)
	}))

	ioc := ferry.MustIO()
	defer ioc.Close()

	timer, err := ferry.NewPollTimer(ioc)
	if err != nil {
		panic(err)
	}
	defer timer.Close()

	tracker := util.NewLatencyTracker(time.Microsecond, time.Minute, 3)
	engine := httpengine.NewEngine(httpengine.WithLatencyTracker(tracker))
	reactor := ferry.NewReactor(engine, ferry.NewPollWatcher(ioc), timer)

	url := "http://" + ln.Addr().String() + "/"
	started, completed, failed := 0, 0, 0

	onFinished := func(t *httpengine.Transfer) {
		completed++
		if t.Result() != ferry.ResultOK {
			failed++
		}
		if started < *total {
			started++
			reactor.Start(t)
		}
	}

	begin := time.Now()

	n := *inflight
	if n > *total {
		n = *total
	}
	for i := 0; i < n; i++ {
		transfer := engine.NewTransfer()
		transfer.SetURL(url)
		transfer.SetTimeout(10 * time.Second)
		transfer.SetFinishedCallback(onFinished)

		started++
		reactor.Start(transfer)
	}

	for completed < *total {
		ioc.RunOneFor(100)
	}

	elapsed := time.Since(begin)

	fmt.Printf(
		"%d transfers (%d failed) in %s: %.0f/s\n",
		completed, failed, elapsed.Round(time.Millisecond),
		float64(completed)/elapsed.Seconds(),
	)
	tracker.Report(os.Stdout)
}
