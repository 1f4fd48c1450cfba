// Package pending tracks outstanding requests and the continuations waiting on them.
package pending

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"lspclient/src/internal/common"
	"lspclient/src/internal/constants"
	"lspclient/src/internal/errors"
)

// Continuation consumes a request's result. It runs on the dispatcher goroutine.
type Continuation func(result json.RawMessage) error

// Call is the future for one outstanding request
type Call struct {
	ID      int64
	Method  string
	Started time.Time

	cont Continuation
	done chan struct{}
	once sync.Once
	err  error
}

func (c *Call) complete(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done is closed once the call is resolved, failed, evicted or cleared
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Err returns the call's terminal error; valid after Done is closed
func (c *Call) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the call completes or ctx ends
func (c *Call) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Table correlates request ids with continuations. Allocate and Register run on
// issuing goroutines while Resolve and Fail run on the dispatcher; all methods
// are safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	next    int64
	calls   map[int64]*Call
	evicted map[int64]time.Time
	log     *common.SafeLogger
	now     func() time.Time
}

// NewTable creates an empty table. Ids start at 1.
func NewTable(logger *common.SafeLogger) *Table {
	if logger == nil {
		logger = common.ClientLogger
	}
	return &Table{
		calls:   make(map[int64]*Call),
		evicted: make(map[int64]time.Time),
		log:     logger,
		now:     time.Now,
	}
}

// Allocate returns the next id. Ids increase monotonically and are never reused.
func (t *Table) Allocate() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	return t.next
}

// Allocated returns the number of ids handed out so far
func (t *Table) Allocated() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

// Register stores a continuation for id. A second registration of a live id fails.
func (t *Table) Register(id int64, method string, cont Continuation) (*Call, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.calls[id]; exists {
		return nil, fmt.Errorf("request id %d already pending", id)
	}
	call := &Call{
		ID:      id,
		Method:  method,
		Started: t.now(),
		cont:    cont,
		done:    make(chan struct{}),
	}
	t.calls[id] = call
	return call, nil
}

func (t *Table) take(id int64) (*Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	call, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	return call, ok
}

func (t *Table) logUnknown(kind string, id int64) {
	t.mu.Lock()
	at, recent := t.evicted[id]
	t.mu.Unlock()
	if recent {
		t.log.Debug("Late %s for evicted request: id=%d (evicted %v ago)", kind, id, t.now().Sub(at).Round(time.Millisecond))
		return
	}
	t.log.Warn("No matching request found for %s: id=%d", kind, id)
}

// Resolve removes the entry for id and invokes its continuation with result.
// The entry is gone before the continuation runs, so a continuation may issue
// new requests and a duplicate response finds nothing. A continuation error or
// panic is returned as a *errors.HandlerError. The bool reports whether id was pending.
func (t *Table) Resolve(id int64, result json.RawMessage) (bool, error) {
	call, ok := t.take(id)
	if !ok {
		t.logUnknown("response", id)
		return false, nil
	}

	err := invoke(call, result)
	call.complete(err)
	return true, err
}

func invoke(call *Call, result json.RawMessage) (err error) {
	if call.cont == nil {
		return nil
	}
	idStr := strconv.FormatInt(call.ID, 10)
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewHandlerPanic(call.Method, idStr, r)
		}
	}()
	if cerr := call.cont(result); cerr != nil {
		return errors.NewHandlerError(call.Method, idStr, cerr)
	}
	return nil
}

// Fail removes the entry for id without invoking its continuation
func (t *Table) Fail(id int64, err error) bool {
	call, ok := t.take(id)
	if !ok {
		t.logUnknown("error response", id)
		return false
	}
	call.complete(err)
	return true
}

// Drop removes the entry for id silently, used when the request could not be sent
func (t *Table) Drop(id int64, err error) {
	if call, ok := t.take(id); ok {
		call.complete(err)
	}
}

// Clear fails every pending entry with err and returns how many there were
func (t *Table) Clear(err error) int {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[int64]*Call)
	t.mu.Unlock()

	for _, call := range calls {
		call.complete(err)
	}
	if len(calls) > 0 {
		t.log.Debug("Cleared %d pending requests: %v", len(calls), err)
	}
	return len(calls)
}

// Expire evicts every entry older than maxAge and returns them in id order.
// Evicted ids are remembered for a while so late responses are logged quietly.
func (t *Table) Expire(maxAge time.Duration) []*Call {
	now := t.now()
	t.mu.Lock()
	var expired []*Call
	for id, call := range t.calls {
		if now.Sub(call.Started) >= maxAge {
			expired = append(expired, call)
			delete(t.calls, id)
			t.evicted[id] = now
		}
	}
	for id, at := range t.evicted {
		if now.Sub(at) > constants.LateResponseWindow {
			delete(t.evicted, id)
		}
	}
	t.mu.Unlock()

	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	for _, call := range expired {
		call.complete(errors.NewTimeoutError(call.Method, maxAge, nil))
	}
	return expired
}

// Len returns the number of pending entries
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// Peek returns the pending call for id without removing it
func (t *Table) Peek(id int64) (*Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	call, ok := t.calls[id]
	return call, ok
}
