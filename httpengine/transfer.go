package httpengine

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ferryio/ferry"
	"github.com/valyala/bytebufferpool"
)

type transferState uint8

const (
	stateIdle transferState = iota
	stateConnecting
	stateSending
	stateReceiving
)

// Transfer is one HTTP/1.1 request/response exchange, created by
// Engine.NewTransfer and run through a ferry.Reactor.
//
// Configure it with the setters, register a finished callback, then hand
// it to Reactor.Start. While it runs, ownership is shared with the
// Reactor. After the finished callback, the getters hold the response.
// A finished transfer can be started again.
//
// Transfer is not thread safe.
type Transfer struct {
	id ferry.TransferID

	url         *url.URL
	urlErr      error
	method      string
	header      http.Header
	requestBody []byte
	timeout     time.Duration
	finished    func(*Transfer)

	// Engine-owned running state.
	state     transferState
	socket    ferry.Socket
	request   []byte
	written   int
	response  *bytebufferpool.ByteBuffer
	deadline  time.Time
	startedAt time.Time

	result         ferry.Result
	statusCode     int
	status         string
	responseHeader http.Header
	responseBody   []byte
}

var _ ferry.Transfer = &Transfer{}

// ID returns the engine-assigned identity.
func (t *Transfer) ID() ferry.TransferID {
	return t.id
}

// WillStart resets all transient state so the transfer can run (again).
// Invoked by the Reactor; not meant to be called directly.
func (t *Transfer) WillStart() {
	t.state = stateIdle
	t.socket = -1
	t.request = nil
	t.written = 0
	t.response = nil
	t.deadline = time.Time{}

	t.result = -1
	t.statusCode = 0
	t.status = ""
	t.responseHeader = nil
	t.responseBody = nil
}

// DidFinish stores the terminal result and invokes the finished callback.
// Invoked exactly once per run by the Reactor; not meant to be called
// directly.
func (t *Transfer) DidFinish(result ferry.Result) {
	t.result = result
	if t.finished != nil {
		t.finished(t)
	}
}

// SetURL sets the request URL. Only http URLs are supported; a URL that
// does not parse fails the transfer with ResultCouldNotResolve when it is
// started.
func (t *Transfer) SetURL(raw string) {
	t.url, t.urlErr = url.Parse(raw)
}

// SetMethod sets the request method. The default is GET.
func (t *Transfer) SetMethod(method string) {
	t.method = method
}

// SetHeader sets a request header, replacing any previous value.
func (t *Transfer) SetHeader(key, value string) {
	t.header.Set(key, value)
}

// SetRequestBody sets the request body. The byte slice is not copied and
// must not be mutated while the transfer runs.
func (t *Transfer) SetRequestBody(body []byte) {
	t.requestBody = body
}

// SetTimeout sets the deadline for the whole transfer, connect included.
// Zero means no timeout.
func (t *Transfer) SetTimeout(d time.Duration) {
	t.timeout = d
}

// SetFinishedCallback registers the completion notification. The callback
// runs on the event loop, synchronously with the Reactor's completion
// drain; it may call Reactor.Start or Reactor.Abort.
func (t *Transfer) SetFinishedCallback(cb func(*Transfer)) {
	t.finished = cb
}

// Result returns the terminal result. Valid only after the transfer has
// finished.
func (t *Transfer) Result() ferry.Result {
	return t.result
}

// StatusCode returns the response status code. Valid only after the
// transfer finished with ResultOK.
func (t *Transfer) StatusCode() int {
	return t.statusCode
}

// Status returns the response status line. Valid only after the transfer
// finished with ResultOK.
func (t *Transfer) Status() string {
	return t.status
}

// ResponseHeader returns the response headers. Valid only after the
// transfer finished with ResultOK.
func (t *Transfer) ResponseHeader() http.Header {
	return t.responseHeader
}

// ResponseBody returns the response body. Valid only after the transfer
// finished with ResultOK.
func (t *Transfer) ResponseBody() []byte {
	return t.responseBody
}

func (t *Transfer) hostPort() string {
	host := t.url.Hostname()
	port := t.url.Port()
	if port == "" {
		port = "80"
	}
	return host + ":" + port
}

func (t *Transfer) buildRequest() []byte {
	uri := t.url.RequestURI()
	if uri == "" {
		uri = "/"
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", t.method, uri)
	fmt.Fprintf(&b, "Host: %s\r\n", t.url.Host)

	for key, values := range t.header {
		for _, value := range values {
			fmt.Fprintf(&b, "%s: %s\r\n", key, value)
		}
	}

	if len(t.requestBody) > 0 {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(t.requestBody))
	}

	// The engine relies on EOF to delimit the response.
	b.WriteString("Connection: close\r\n\r\n")
	b.Write(t.requestBody)

	return b.Bytes()
}

// parseResponse decodes the accumulated raw response into the getter
// fields. Called by the engine once the peer closes the connection.
func (t *Transfer) parseResponse() ferry.Result {
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(t.response.B)), nil)
	if err != nil {
		return ferry.ResultBadResponse
	}

	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return ferry.ResultBadResponse
	}

	t.statusCode = res.StatusCode
	t.status = res.Status
	t.responseHeader = res.Header
	t.responseBody = body

	return ferry.ResultOK
}
