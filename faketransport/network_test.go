package faketransport_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polis-dev/polis/faketransport"
	"github.com/polis-dev/polis/government"
	"github.com/polis-dev/polis/wire"
)

type stubHandler struct {
	resp wire.Response
	got  wire.Request
}

func (s *stubHandler) Request(now int64, req wire.Request) wire.Response {
	s.got = req
	return s.resp
}

func TestSendDeliversToRegisteredHandler(t *testing.T) {
	n := faketransport.New(func() int64 { return 42 })
	h := &stubHandler{resp: wire.Response{Message: wire.Message{Method: wire.MethodPing}}}
	n.Register("1", h)

	resp, err := n.Send(context.Background(), "1", wire.Request{
		Message: wire.Message{Method: wire.MethodPing},
		Sync:    wire.Sync{From: "0"},
	})
	assert.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Equal(t, wire.MethodPing, resp.Message.Method)
	assert.Equal(t, government.CitizenID("0"), h.got.Sync.From)
}

func TestSendReportsUnreachableWhenUnregistered(t *testing.T) {
	n := faketransport.New(func() int64 { return 0 })
	resp, err := n.Send(context.Background(), "ghost", wire.Request{})
	assert.NoError(t, err)
	assert.Nil(t, resp)
}

func TestDropIsolatesDestination(t *testing.T) {
	n := faketransport.New(func() int64 { return 0 })
	h := &stubHandler{}
	n.Register("leader", h)
	n.Drop("leader", true)

	resp, err := n.Send(context.Background(), "leader", wire.Request{Sync: wire.Sync{From: "1"}})
	assert.NoError(t, err)
	assert.Nil(t, resp)

	n.Drop("leader", false)
	resp, err = n.Send(context.Background(), "leader", wire.Request{Sync: wire.Sync{From: "1"}})
	assert.NoError(t, err)
	assert.NotNil(t, resp)
}

func TestPartitionIsDirectional(t *testing.T) {
	n := faketransport.New(func() int64 { return 0 })
	h := &stubHandler{}
	n.Register("b", h)
	n.Partition("a", "b", true)

	resp, err := n.Send(context.Background(), "b", wire.Request{Sync: wire.Sync{From: "a"}})
	assert.NoError(t, err)
	assert.Nil(t, resp)

	resp, err = n.Send(context.Background(), "b", wire.Request{Sync: wire.Sync{From: "c"}})
	assert.NoError(t, err)
	assert.NotNil(t, resp)
}

func TestSendHonorsContextCancellation(t *testing.T) {
	n := faketransport.New(func() int64 { return 0 })
	n.Register("1", &stubHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := n.Send(ctx, "1", wire.Request{})
	assert.Error(t, err)
	assert.Nil(t, resp)
}
