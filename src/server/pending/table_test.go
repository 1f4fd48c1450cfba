package pending

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"lspclient/src/internal/common"
	"lspclient/src/internal/errors"
)

func newObservedTable() (*Table, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewTable(common.NewSafeLoggerWithCore("pending", core)), logs
}

func TestAllocateConcurrentDistinctIncreasing(t *testing.T) {
	table, _ := newObservedTable()

	const workers, perWorker = 16, 200
	results := make([][]int64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				results[w] = append(results[w], table.Allocate())
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	var all []int64
	for _, ids := range results {
		for i := 1; i < len(ids); i++ {
			require.Greater(t, ids[i], ids[i-1], "ids seen by one goroutine must strictly increase")
		}
		for _, id := range ids {
			require.False(t, seen[id], "id %d allocated twice", id)
			seen[id] = true
			all = append(all, id)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	assert.Equal(t, int64(1), all[0])
	assert.Equal(t, int64(workers*perWorker), all[len(all)-1])
	assert.Equal(t, int64(workers*perWorker), table.Allocated())
}

func TestRegisterDuplicateID(t *testing.T) {
	table, _ := newObservedTable()
	id := table.Allocate()
	_, err := table.Register(id, "textDocument/hover", nil)
	require.NoError(t, err)
	_, err = table.Register(id, "textDocument/hover", nil)
	require.Error(t, err)
	assert.Equal(t, 1, table.Len())
}

func TestResolveUnknownIDLogsOnly(t *testing.T) {
	table, logs := newObservedTable()
	fired := false
	_, err := table.Register(table.Allocate(), "textDocument/hover", func(json.RawMessage) error {
		fired = true
		return nil
	})
	require.NoError(t, err)

	var ok bool
	assert.NotPanics(t, func() {
		ok, err = table.Resolve(42, json.RawMessage(`{}`))
	})
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.False(t, fired)
	assert.Equal(t, 1, table.Len())

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "id=42")
}

func TestContinuationFiresAtMostOnce(t *testing.T) {
	table, logs := newObservedTable()
	count := 0
	id := table.Allocate()
	call, err := table.Register(id, "textDocument/definition", func(result json.RawMessage) error {
		count++
		assert.JSONEq(t, `[1]`, string(result))
		return nil
	})
	require.NoError(t, err)

	ok, err := table.Resolve(id, json.RawMessage(`[1]`))
	require.True(t, ok)
	require.NoError(t, err)
	ok, err = table.Resolve(id, json.RawMessage(`[1]`))
	assert.False(t, ok)
	assert.NoError(t, err)

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, table.Len())
	assert.NoError(t, call.Wait(context.Background()))
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestResolveIsolatesContinuationFailures(t *testing.T) {
	table, _ := newObservedTable()

	id := table.Allocate()
	call, _ := table.Register(id, "textDocument/hover", func(json.RawMessage) error {
		return fmt.Errorf("bad shape")
	})
	ok, err := table.Resolve(id, nil)
	assert.True(t, ok)
	require.Error(t, err)
	assert.True(t, errors.IsHandlerError(err))
	assert.Equal(t, err, call.Err())

	id = table.Allocate()
	_, _ = table.Register(id, "textDocument/rename", func(json.RawMessage) error {
		var m map[string]int
		m["boom"] = 1
		return nil
	})
	assert.NotPanics(t, func() {
		ok, err = table.Resolve(id, nil)
	})
	assert.True(t, ok)
	var herr *errors.HandlerError
	require.ErrorAs(t, err, &herr)
	assert.NotNil(t, herr.Panic)
	assert.Equal(t, 0, table.Len())
}

func TestContinuationMayRegisterNewRequest(t *testing.T) {
	table, _ := newObservedTable()
	first := table.Allocate()
	var second int64
	_, _ = table.Register(first, "initialize", func(json.RawMessage) error {
		second = table.Allocate()
		_, err := table.Register(second, "textDocument/hover", nil)
		return err
	})

	ok, err := table.Resolve(first, nil)
	require.True(t, ok)
	require.NoError(t, err)
	_, pending := table.Peek(second)
	assert.True(t, pending)
}

func TestFailDoesNotInvoke(t *testing.T) {
	table, _ := newObservedTable()
	id := table.Allocate()
	fired := false
	call, _ := table.Register(id, "textDocument/rename", func(json.RawMessage) error {
		fired = true
		return nil
	})
	cause := errors.NewProtocolError("1", errors.InvalidParams, "bad", nil)

	assert.True(t, table.Fail(id, cause))
	assert.False(t, table.Fail(id, cause))
	assert.False(t, fired)
	assert.Equal(t, cause, call.Err())
	ok, _ := table.Resolve(id, nil)
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	table, _ := newObservedTable()
	var calls []*Call
	for i := 0; i < 3; i++ {
		call, _ := table.Register(table.Allocate(), "textDocument/hover", nil)
		calls = append(calls, call)
	}
	assert.Equal(t, 3, table.Clear(errors.ErrShutdown))
	assert.Equal(t, 0, table.Len())
	for _, call := range calls {
		select {
		case <-call.Done():
		default:
			t.Fatalf("call %d not completed", call.ID)
		}
		assert.ErrorIs(t, call.Err(), errors.ErrShutdown)
	}
	// ids keep increasing after a clear
	assert.Equal(t, int64(4), table.Allocate())
}

func TestExpire(t *testing.T) {
	table, logs := newObservedTable()
	now := time.Unix(1000, 0)
	table.now = func() time.Time { return now }

	old, _ := table.Register(table.Allocate(), "textDocument/references", nil)
	now = now.Add(5 * time.Second)
	fresh, _ := table.Register(table.Allocate(), "textDocument/hover", nil)
	now = now.Add(1 * time.Second)

	expired := table.Expire(3 * time.Second)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)
	assert.True(t, errors.IsTimeoutError(old.Err()))
	assert.Nil(t, fresh.Err())
	assert.Equal(t, 1, table.Len())

	ok, _ := table.Resolve(old.ID, nil)
	assert.False(t, ok)
	assert.Equal(t, 0, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("Late response").Len())
}

func TestCallWaitContext(t *testing.T) {
	table, _ := newObservedTable()
	call, _ := table.Register(table.Allocate(), "textDocument/hover", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, call.Wait(ctx), context.DeadlineExceeded)
	assert.Nil(t, call.Err())
}
