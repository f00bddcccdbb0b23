package main

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/polis-dev/polis/citizen"
	"github.com/polis-dev/polis/faketransport"
	"github.com/polis-dev/polis/government"
	"github.com/polis-dev/polis/promise"
	"github.com/polis-dev/polis/wire"
)

// cluster wires citizen.Citizen instances together over a
// faketransport.Network and drives them to quiescence under an
// explicit logical clock, mirroring citizen/harness_test.go's approach
// (a plain call/response loop with no goroutines) but exported for use
// by this command rather than kept test-only.
type cluster struct {
	republic   government.Republic
	net        *faketransport.Network
	citizens   map[government.CitizenID]*citizen.Citizen
	nextCookie int64
	now        int64
}

func newDemoCluster() *cluster {
	c := &cluster{
		republic: government.Republic(uuid.NewString()),
		citizens: map[government.CitizenID]*citizen.Citizen{},
	}
	c.net = faketransport.New(func() int64 { return c.now })
	return c
}

func (c *cluster) add(id government.CitizenID) *citizen.Citizen {
	cz := citizen.New(citizen.Config{
		Self:           id,
		Republic:       c.republic,
		ParliamentSize: 5,
		PingInterval:   1,
		Timeout:        2,
	}, uint64(len(c.citizens))+1)
	c.citizens[id] = cz
	c.net.Register(id, cz)
	return cz
}

func (c *cluster) cookie() int64 {
	c.nextCookie++
	return c.nextCookie
}

func (c *cluster) deliver(outbox []wire.Envelope) []wire.Envelope {
	type groupKey struct {
		from   government.CitizenID
		method wire.Method
		p      promise.Promise
	}
	type group struct {
		from      government.CitizenID
		req       wire.Request
		responses map[government.CitizenID]wire.Response
	}

	groups := map[groupKey]*group{}
	var order []groupKey

	for _, env := range outbox {
		resp, err := c.net.Send(context.Background(), env.To, env.Request)
		var r wire.Response
		if err != nil || resp == nil {
			r = wire.NullResponse()
		} else {
			r = *resp
		}

		key := groupKey{from: env.From, method: env.Request.Message.Method, p: env.Request.Message.Promise}
		g, ok := groups[key]
		if !ok {
			g = &group{from: env.From, req: env.Request, responses: map[government.CitizenID]wire.Response{}}
			groups[key] = g
			order = append(order, key)
		}
		g.responses[env.To] = r

		slog.Debug("delivered", "from", env.From, "to", env.To, "method", env.Request.Message.Method)
	}

	var next []wire.Envelope
	for _, key := range order {
		g := groups[key]
		sender, ok := c.citizens[g.from]
		if !ok {
			continue
		}
		next = append(next, sender.Response(c.now, g.req, g.responses)...)
	}
	return next
}

func (c *cluster) drainQuiescent(outbox []wire.Envelope) {
	for len(outbox) > 0 {
		outbox = c.deliver(outbox)
	}
}

func (c *cluster) fireDue() bool {
	fired := false
	for _, cz := range c.citizens {
		for _, f := range cz.Due(c.now) {
			fired = true
			c.drainQuiescent(cz.Event(c.now, f))
		}
	}
	return fired
}

func (c *cluster) run(maxTicks int) {
	for i := 0; i < maxTicks; i++ {
		for c.fireDue() {
		}
		next, ok := c.earliestDeadline()
		if !ok {
			return
		}
		if next <= c.now {
			c.now++
		} else {
			c.now = next
		}
	}
}

func (c *cluster) earliestDeadline() (int64, bool) {
	have := false
	var min int64
	for _, cz := range c.citizens {
		if d, ok := cz.NextDeadline(); ok {
			if !have || d < min {
				min = d
				have = true
			}
		}
	}
	return min, have
}
