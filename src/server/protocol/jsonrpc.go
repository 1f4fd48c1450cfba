package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"lspclient/src/internal/errors"
)

// JSON-RPC protocol constants
const (
	JSONRPCVersion = "2.0"
)

// Kind classifies a decoded JSON-RPC message by the fields it carries
type Kind int

const (
	KindInvalid Kind = iota
	KindRequest
	KindNotification
	KindResponse
	KindErrorResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	case KindErrorResponse:
		return "error-response"
	default:
		return "invalid"
	}
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s (%d): %s", errors.CodeName(e.Code), e.Code, e.Message)
}

// Message represents any JSON-RPC 2.0 message. Which fields are set decides its Kind.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`

	// Raw is the payload the message was decoded from; nil for outbound messages
	Raw json.RawMessage `json:"-"`
}

// Kind reports the message variant. Inbound messages are classified from the raw
// payload so that "result": null still counts as a response.
func (m *Message) Kind() Kind {
	var hasError, hasResult, hasMethod, hasID bool
	if m.Raw != nil {
		fields := gjson.GetManyBytes(m.Raw, "error", "result", "method", "id")
		hasError = fields[0].Exists() && fields[0].Type != gjson.Null
		hasResult = fields[1].Exists()
		hasMethod = fields[2].Exists() && fields[2].String() != ""
		hasID = fields[3].Exists() && fields[3].Type != gjson.Null
	} else {
		hasError = m.Error != nil
		hasResult = m.Result != nil
		hasMethod = m.Method != ""
		hasID = m.HasID()
	}

	switch {
	case hasError:
		return KindErrorResponse
	case hasResult:
		return KindResponse
	case hasMethod && hasID:
		return KindRequest
	case hasMethod:
		return KindNotification
	default:
		return KindInvalid
	}
}

// HasID reports whether the message carries a non-null id
func (m *Message) HasID() bool {
	return len(m.ID) > 0 && string(m.ID) != "null"
}

// IntID returns the id as an integer. Numeric strings are accepted since some
// servers echo ids back as strings.
func (m *Message) IntID() (int64, bool) {
	if !m.HasID() {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(m.ID, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(m.ID, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IDString renders the id for logs and error messages
func (m *Message) IDString() string {
	if !m.HasID() {
		return ""
	}
	if n, ok := m.IntID(); ok {
		return strconv.FormatInt(n, 10)
	}
	return string(m.ID)
}

// IntID encodes an integer request id
func IntID(id int64) json.RawMessage {
	return json.RawMessage(strconv.FormatInt(id, 10))
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// NewRequest creates a JSON-RPC request
func NewRequest(id int64, method string, params interface{}) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	return &Message{JSONRPC: JSONRPCVersion, ID: IntID(id), Method: method, Params: raw}, nil
}

// NewNotification creates a JSON-RPC notification (no ID)
func NewNotification(method string, params interface{}) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	return &Message{JSONRPC: JSONRPCVersion, Method: method, Params: raw}, nil
}

// NewResponse creates a response echoing the request id. A nil result is sent as null.
func NewResponse(id json.RawMessage, result interface{}) (*Message, error) {
	raw, err := marshalParams(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	if raw == nil {
		raw = json.RawMessage("null")
	}
	return &Message{JSONRPC: JSONRPCVersion, ID: id, Result: raw}, nil
}

// NewErrorResponse creates an error response echoing the request id
func NewErrorResponse(id json.RawMessage, rpcErr *RPCError) *Message {
	return &Message{JSONRPC: JSONRPCVersion, ID: id, Error: rpcErr}
}

// NewRPCError creates a new RPCError with the specified code and message
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{Code: code, Message: message}
}

// NewMethodNotFoundError creates a method not found error (-32601)
func NewMethodNotFoundError(method string) *RPCError {
	return NewRPCError(errors.MethodNotFound, "Method not found: "+method)
}

// NewInternalError creates an internal error (-32603)
func NewInternalError(err error) *RPCError {
	return NewRPCError(errors.InternalError, err.Error())
}

// Decode parses one payload into a Message
func Decode(data []byte) (*Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.NewDecodeError(data, fmt.Errorf("invalid JSON"))
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.NewDecodeError(data, err)
	}
	msg.Raw = append(json.RawMessage(nil), data...)
	return &msg, nil
}

// ToProtocolError converts an error response into the unified error type
func (m *Message) ToProtocolError() *errors.ProtocolError {
	if m.Error == nil {
		return nil
	}
	var data interface{}
	if len(m.Error.Data) > 0 {
		data = json.RawMessage(m.Error.Data)
	}
	return errors.NewProtocolError(m.IDString(), m.Error.Code, m.Error.Message, data)
}
