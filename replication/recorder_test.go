package replication_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polis-dev/polis/ledger"
	"github.com/polis-dev/polis/promise"
	"github.com/polis-dev/polis/replication"
	"github.com/polis-dev/polis/wire"
)

func TestRecorderWriteThenCommit(t *testing.T) {
	r := replication.NewRecorder(promise.New(1, 0), promise.New(1, 0))

	writeReq := wire.Request{Message: wire.Message{
		Method:  wire.MethodWrite,
		Promise: promise.New(1, 1),
		Version: promise.New(1, 0),
		Body:    []byte("cmd"),
		Kind:    ledger.EntryCommand,
	}}
	resp := r.HandleWrite(writeReq)
	assert.Nil(t, resp.RejectPromise)
	assert.Equal(t, promise.New(1, 1), resp.Promise)

	commitReq := wire.Request{Message: wire.Message{
		Method:  wire.MethodCommit,
		Promise: promise.New(1, 1),
		Version: promise.New(1, 0),
	}}
	entry, resp2, ok := r.HandleCommit(commitReq)
	assert.True(t, ok)
	assert.Nil(t, resp2.RejectPromise)
	assert.Equal(t, promise.New(1, 1), entry.Promise)
	assert.Equal(t, []byte("cmd"), entry.Body)
}

func TestRecorderRejectsStaleVersion(t *testing.T) {
	r := replication.NewRecorder(promise.New(2, 0), promise.New(2, 0))

	writeReq := wire.Request{Message: wire.Message{
		Method:  wire.MethodWrite,
		Promise: promise.New(2, 1),
		Version: promise.New(1, 0),
	}}
	resp := r.HandleWrite(writeReq)
	require := assert.New(t)
	require.NotNil(resp.RejectPromise)
	require.Equal(promise.New(2, 1), *resp.RejectPromise)
}

func TestRecorderRejectsCommitWithoutWrite(t *testing.T) {
	r := replication.NewRecorder(promise.New(1, 0), promise.New(1, 0))

	commitReq := wire.Request{Message: wire.Message{
		Method:  wire.MethodCommit,
		Promise: promise.New(1, 5),
		Version: promise.New(1, 0),
	}}
	_, resp, ok := r.HandleCommit(commitReq)
	assert.False(t, ok)
	assert.NotNil(t, resp.RejectPromise)
	assert.Equal(t, wire.MethodCommit, resp.Method)
}

func TestRecorderConvertsOnPrepareOrAheadOfExpected(t *testing.T) {
	r := replication.NewRecorder(promise.New(1, 0), promise.New(1, 0))

	assert.True(t, r.Convert(wire.Request{Message: wire.Message{Method: wire.MethodPrepare, Promise: promise.New(2, 0)}}))
	assert.True(t, r.Convert(wire.Request{Message: wire.Message{Method: wire.MethodWrite, Promise: promise.New(1, 5)}}))
	assert.False(t, r.Convert(wire.Request{Message: wire.Message{Method: wire.MethodWrite, Promise: promise.New(1, 0)}}))
}

func TestRecorderAdvanceExpected(t *testing.T) {
	r := replication.NewRecorder(promise.New(1, 0), promise.New(1, 0))
	r.AdvanceExpected(promise.New(1, 3))
	assert.False(t, r.Convert(wire.Request{Message: wire.Message{Method: wire.MethodWrite, Promise: promise.New(1, 3)}}))
	assert.True(t, r.Convert(wire.Request{Message: wire.Message{Method: wire.MethodWrite, Promise: promise.New(1, 4)}}))
}
