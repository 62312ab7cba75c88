package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/insites-io/module-ai/internal/logx"
	"github.com/insites-io/module-ai/internal/metrics"
)

// Handler resolves one method call. A non-nil *Error becomes the error
// response; otherwise the returned value becomes the result.
type Handler func(ctx context.Context, req *Request) (any, *Error)

// Dispatcher reads line-delimited JSON-RPC 2.0 messages from in and writes at
// most one response line per request to out. Requests are resolved one at a
// time; only end of input stops the loop.
type Dispatcher struct {
	in       io.Reader
	out      io.Writer
	handlers map[string]registration
}

type registration struct {
	fn Handler
	// suppress marks methods that never produce output, id or not.
	suppress bool
}

// NewDispatcher builds a dispatcher over the given streams.
func NewDispatcher(in io.Reader, out io.Writer) *Dispatcher {
	return &Dispatcher{in: in, out: out, handlers: map[string]registration{}}
}

// Handle registers h for method, replacing any previous registration.
func (d *Dispatcher) Handle(method string, h Handler) {
	d.handlers[method] = registration{fn: h}
}

// HandleNotification registers h for a method that is consumed without a
// response regardless of id.
func (d *Dispatcher) HandleNotification(method string, h Handler) {
	d.handlers[method] = registration{fn: h, suppress: true}
}

// Run processes messages until end of input or ctx cancellation.
func (d *Dispatcher) Run(ctx context.Context) error {
	sc := bufio.NewScanner(d.in)
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		d.dispatch(ctx, line)
	}
	return sc.Err()
}

func (d *Dispatcher) dispatch(ctx context.Context, line []byte) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		// The id may still be recoverable from a partially valid message.
		var partial struct {
			ID json.RawMessage `json:"id"`
		}
		if json.Unmarshal(line, &partial) == nil && len(partial.ID) > 0 && string(partial.ID) != "null" {
			d.write(NewError(partial.ID, Errorf(CodeParseError, fmt.Sprintf("Parse error: %v", err))))
			return
		}
		logx.Log.Error().Err(err).Msg("parse error, no recoverable id")
		return
	}

	if req.Method == "" {
		if !req.IsNotification() {
			d.write(NewError(req.ID, Errorf(CodeInvalidRequest, "Missing 'method' field")))
		}
		return
	}

	h, ok := d.handlers[req.Method]
	if !ok {
		if !req.IsNotification() {
			d.write(NewError(req.ID, Errorf(CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))))
		} else {
			logx.Log.Debug().Str("method", req.Method).Msg("dropping unknown notification")
		}
		return
	}

	result, herr := d.call(ctx, h.fn, &req)
	metrics.RecordRPCRequest(req.Method, herr == nil)
	if req.IsNotification() || h.suppress {
		if herr != nil {
			logx.Log.Warn().Str("method", req.Method).Int("code", herr.Code).Str("error", herr.Message).Msg("notification handler failed")
		}
		return
	}
	if herr != nil {
		d.write(NewError(req.ID, herr))
		return
	}
	d.write(NewResult(req.ID, result))
}

// call invokes h, converting panics into internal errors so one bad message
// never terminates the read loop.
func (d *Dispatcher) call(ctx context.Context, h Handler, req *Request) (result any, herr *Error) {
	defer func() {
		if r := recover(); r != nil {
			logx.Log.Error().Str("method", req.Method).Interface("panic", r).Msg("handler panicked")
			result = nil
			herr = Errorf(CodeInternalError, fmt.Sprintf("Internal error: %v", r))
		}
	}()
	return h(ctx, req)
}

func (d *Dispatcher) write(resp Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		logx.Log.Error().Err(err).Msg("marshal response")
		b, _ = json.Marshal(NewError(resp.ID, Errorf(CodeInternalError, "Internal error: unencodable result")))
	}
	if _, err := d.out.Write(append(b, '\n')); err != nil {
		logx.Log.Error().Err(err).Msg("write response")
	}
}
