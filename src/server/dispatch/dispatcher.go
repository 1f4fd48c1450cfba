// Package dispatch drains inbound server messages and routes each one either to
// the pending request it answers or to a registered handler.
package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"lspclient/src/internal/common"
	"lspclient/src/internal/errors"
	"lspclient/src/server/pending"
	"lspclient/src/server/protocol"
)

// Conn is the message stream the dispatcher reads from and replies on
type Conn interface {
	Read() (*protocol.Message, error)
	Write(msg *protocol.Message) error
}

// Dispatcher processes inbound messages strictly one at a time, in arrival order
type Dispatcher struct {
	conn     Conn
	table    *pending.Table
	registry *Registry
	notify   func(string)
	log      *common.SafeLogger
}

// New creates a dispatcher. notify receives user-visible error text and may be nil.
func New(conn Conn, table *pending.Table, registry *Registry, notify func(string), logger *common.SafeLogger) *Dispatcher {
	if logger == nil {
		logger = common.LSPLogger
	}
	if notify == nil {
		notify = func(string) {}
	}
	return &Dispatcher{
		conn:     conn,
		table:    table,
		registry: registry,
		notify:   notify,
		log:      logger,
	}
}

// Run reads and handles messages until the stream closes. It returns nil on a
// clean close and the TransportError when framing breaks. Undecodable payloads
// are logged and skipped.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		msg, err := d.conn.Read()
		if err != nil {
			switch {
			case stderrors.Is(err, io.EOF):
				d.log.Debug("Server output closed")
				return nil
			case errors.IsDecodeError(err):
				d.log.Error("Dropping undecodable message: %s", common.SanitizeErrorForLogging(err))
				continue
			default:
				d.log.Error("Read loop terminated: %v", err)
				return err
			}
		}
		d.Handle(ctx, msg)
	}
}

// Handle routes a single message. It never panics and never returns an error;
// every failure is logged.
func (d *Dispatcher) Handle(ctx context.Context, msg *protocol.Message) {
	switch msg.Kind() {
	case protocol.KindErrorResponse:
		d.handleError(msg)
	case protocol.KindResponse:
		d.handleResponse(msg)
	case protocol.KindRequest, protocol.KindNotification:
		d.handleServerMessage(ctx, msg)
	default:
		d.log.Warn("Received malformed message (no ID and no method): %s", common.SanitizeErrorForLogging([]byte(msg.Raw)))
	}
}

func (d *Dispatcher) handleError(msg *protocol.Message) {
	perr := msg.ToProtocolError()
	if id, ok := msg.IntID(); ok {
		d.table.Fail(id, perr)
	}
	d.notify("lspclient: " + msg.Error.Message)
	if errors.IsBenignCode(msg.Error.Code) {
		d.log.Debug("%v", perr)
		return
	}
	d.log.Error("%v (%s)", perr, common.SanitizeErrorForLogging([]byte(msg.Raw)))
}

func (d *Dispatcher) handleResponse(msg *protocol.Message) {
	id, ok := msg.IntID()
	if !ok {
		d.log.Warn("No matching request found for response: id=%s", msg.IDString())
		return
	}
	if _, err := d.table.Resolve(id, msg.Result); err != nil {
		d.log.Error("%v", err)
	}
}

func (d *Dispatcher) handleServerMessage(ctx context.Context, msg *protocol.Message) {
	isRequest := msg.Kind() == protocol.KindRequest
	handler, ok := d.registry.Lookup(msg.Method)
	if !ok {
		if isRequest {
			d.log.Warn("No handler implemented for %s (id=%s), replying MethodNotFound", msg.Method, msg.IDString())
			d.reply(protocol.NewErrorResponse(msg.ID, protocol.NewMethodNotFoundError(msg.Method)))
			return
		}
		d.log.Warn("No handler implemented for %s", msg.Method)
		return
	}

	if isRequest {
		d.log.Debug("Received server request: method=%s, id=%s", msg.Method, msg.IDString())
	} else {
		d.log.Debug("Received server notification: method=%s", msg.Method)
	}

	result, err := invoke(ctx, handler, msg)
	if err != nil {
		d.log.Error("%v", err)
	}
	if !isRequest {
		return
	}

	if err != nil {
		d.reply(protocol.NewErrorResponse(msg.ID, protocol.NewInternalError(err)))
		return
	}
	resp, merr := protocol.NewResponse(msg.ID, result)
	if merr != nil {
		d.log.Error("Failed to encode result for %s: %v", msg.Method, merr)
		d.reply(protocol.NewErrorResponse(msg.ID, protocol.NewInternalError(merr)))
		return
	}
	d.reply(resp)
}

func invoke(ctx context.Context, h Handler, msg *protocol.Message) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewHandlerPanic(msg.Method, msg.IDString(), r)
		}
	}()
	result, err = h(ctx, msg.Params)
	if err != nil {
		return nil, errors.NewHandlerError(msg.Method, msg.IDString(), err)
	}
	return result, nil
}

func (d *Dispatcher) reply(msg *protocol.Message) {
	if err := d.conn.Write(msg); err != nil {
		d.log.Error("Failed to reply to server request id=%s: %v", msg.IDString(), fmt.Errorf("write: %w", err))
	}
}
