package citizen_test

import (
	"context"

	"github.com/polis-dev/polis/citizen"
	"github.com/polis-dev/polis/faketransport"
	"github.com/polis-dev/polis/government"
	"github.com/polis-dev/polis/promise"
	"github.com/polis-dev/polis/wire"
)

// cluster wires a handful of citizen.Citizen instances together over a
// faketransport.Network and drives them to quiescence, mirroring
// spec.md §8's "after draining" scenario language without any real
// goroutines or wall-clock sleeps — everything advances by an explicit
// injected `now`.
type cluster struct {
	net      *faketransport.Network
	citizens map[government.CitizenID]*citizen.Citizen
	now      int64
}

func newCluster() *cluster {
	c := &cluster{citizens: map[government.CitizenID]*citizen.Citizen{}}
	c.net = faketransport.New(func() int64 { return c.now })
	return c
}

func (c *cluster) add(id government.CitizenID, seed uint64, cfg citizen.Config) *citizen.Citizen {
	cfg.Self = id
	cz := citizen.New(cfg, seed)
	c.citizens[id] = cz
	c.net.Register(id, cz)
	return cz
}

// deliver sends every envelope in outbox, groups the responses gathered
// for each distinct broadcast (writer.buildEnvelopes/proposer.broadcast
// address the identical Request to every quorum peer), and feeds each
// group back into the originating citizen's Response, returning whatever
// new envelopes that produces.
func (c *cluster) deliver(outbox []wire.Envelope) []wire.Envelope {
	type group struct {
		from      government.CitizenID
		req       wire.Request
		responses map[government.CitizenID]wire.Response
	}
	type groupKey struct {
		from   government.CitizenID
		method wire.Method
		p      promise.Promise
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

// drainQuiescent repeatedly delivers outbox and whatever it produces
// until nothing more is in flight, all at the current `now`.
func (c *cluster) drainQuiescent(outbox []wire.Envelope) {
	for len(outbox) > 0 {
		outbox = c.deliver(outbox)
	}
}

// fireDue pops and dispatches every currently-due scheduler event on
// every citizen, draining whatever traffic each produces before moving
// on, and reports whether anything fired.
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

// run advances the cluster for up to maxTicks scheduler deadlines,
// firing and draining everything due at each one — the test-harness
// equivalent of "after draining" in spec.md §8's scenarios.
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
