package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"lspclient/src/internal/constants"
	"lspclient/src/internal/errors"
)

const contentLengthHeader = "content-length"

// Direction tells a Tap which way a payload travelled
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "out"
	}
	return "in"
}

// Tap observes every payload that passes through a Transport
type Tap interface {
	Record(dir Direction, payload []byte)
}

// TransportOption configures a Transport
type TransportOption func(*Transport)

// WithTap installs an observer for raw payloads
func WithTap(tap Tap) TransportOption {
	return func(t *Transport) {
		t.tap = tap
	}
}

// Transport frames and unframes JSON-RPC messages with LSP Content-Length headers
// over two independent byte streams. Read is meant for a single reader goroutine;
// Write may be called concurrently.
type Transport struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
	tap     Tap
}

// NewTransport binds a transport to the server's output (r) and input (w) streams
func NewTransport(r io.Reader, w io.Writer, opts ...TransportOption) *Transport {
	t := &Transport{
		// Use a larger buffer size (1MB) to handle large LSP responses, especially documentSymbol
		reader: bufio.NewReaderSize(r, constants.LSPResponseBufferSize),
		writer: w,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Write sends a JSON-RPC message with proper Content-Length header formatting
func (t *Transport) Write(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Method, err)
	}

	// Format with Content-Length header according to LSP protocol
	frame := make([]byte, 0, len(data)+32)
	frame = append(frame, "Content-Length: "...)
	frame = strconv.AppendInt(frame, int64(len(data)), 10)
	frame = append(frame, "\r\n\r\n"...)
	frame = append(frame, data...)

	t.writeMu.Lock()
	_, err = t.writer.Write(frame)
	t.writeMu.Unlock()
	if err != nil {
		return errors.NewTransportError("write", err)
	}
	if t.tap != nil {
		t.tap.Record(Outbound, data)
	}
	return nil
}

// Read blocks until one full message is available. It returns io.EOF when the
// stream closes cleanly between frames, a *errors.TransportError when framing is
// broken, and a *errors.DecodeError when the frame's payload is not a message.
// After a DecodeError the stream is positioned at the next frame.
func (t *Transport) Read() (*Message, error) {
	length, err := t.readHeader()
	if err != nil {
		return nil, err
	}

	// The declared length is untrusted; memory grows only with delivered bytes.
	var buf bytes.Buffer
	buf.Grow(min(length, constants.LSPResponseBufferSize))
	if _, err := io.CopyN(&buf, t.reader, int64(length)); err != nil {
		if stderrors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.NewTransportError(fmt.Sprintf("read body (%d bytes declared, %d delivered)", length, buf.Len()), err)
	}
	body := buf.Bytes()
	if t.tap != nil {
		t.tap.Record(Inbound, body)
	}
	return Decode(body)
}

func (t *Transport) readHeader() (int, error) {
	length := -1
	started := false
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			if isClosed(err) && !started && strings.TrimSpace(line) == "" {
				return 0, io.EOF
			}
			return 0, errors.NewTransportError("read header", io.ErrUnexpectedEOF)
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if !started {
				// Stray blank lines between frames
				continue
			}
			break
		}
		started = true

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return 0, errors.NewTransportError("read header", fmt.Errorf("malformed header line %q", line))
		}
		if strings.ToLower(strings.TrimSpace(name)) != contentLengthHeader {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0, errors.NewTransportError("read header", fmt.Errorf("invalid Content-Length %q", strings.TrimSpace(value)))
		}
		length = n
	}

	if length < 0 {
		return 0, errors.NewTransportError("read header", fmt.Errorf("missing Content-Length"))
	}
	return length, nil
}

func isClosed(err error) bool {
	return stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrClosedPipe) || stderrors.Is(err, os.ErrClosed)
}
