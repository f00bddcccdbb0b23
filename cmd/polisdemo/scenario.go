package main

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/polis-dev/polis/government"
)

type scenarioFunc func(out io.Writer) error

var scenarios = map[string]scenarioFunc{
	"s1": scenarioBootstrap,
	"s2": scenarioNaturalize,
	"s3": scenarioThreeMemberParliament,
	"s4": scenarioCollapseAndRecover,
	"s5": scenarioLeaderIsolation,
	"s6": scenarioExile,
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func report(out io.Writer, label string, gov government.Government) {
	fmt.Fprintf(out, "%s: promise=%s majority=%v minority=%v constituents=%v exile=%v\n",
		label, gov.Promise, gov.Majority, gov.Minority, gov.Constituents, gov.Exile)
}

// scenarioBootstrap replays spec.md §8 S1.
func scenarioBootstrap(out io.Writer) error {
	cl := newDemoCluster()
	c0 := cl.add("0")
	c0.Bootstrap(0, government.Properties{"addr": "host-0"})
	cl.run(50)

	report(out, "s1 bootstrap", c0.Government())
	return nil
}

// scenarioNaturalize replays spec.md §8 S2.
func scenarioNaturalize(out io.Writer) error {
	cl := newDemoCluster()
	c0 := cl.add("0")
	cl.add("1")
	c0.Bootstrap(0, government.Properties{"addr": "host-0"})
	cl.run(10)

	res, err := c0.Immigrate(cl.now, cl.republic, "1", cl.cookie(), government.Properties{"addr": "host-1"})
	if err != nil {
		return err
	}
	slog.Info("immigrate", "enqueued", res.Enqueued)
	cl.drainQuiescent(res.Outbox)
	cl.run(50)

	report(out, "s2 naturalize", c0.Government())
	return nil
}

// scenarioThreeMemberParliament replays spec.md §8 S3.
func scenarioThreeMemberParliament(out io.Writer) error {
	cl := newDemoCluster()
	c0 := cl.add("0")
	cl.add("1")
	cl.add("2")
	c0.Bootstrap(0, government.Properties{"addr": "host-0"})
	cl.run(10)

	for _, id := range []government.CitizenID{"1", "2"} {
		res, err := c0.Immigrate(cl.now, cl.republic, id, cl.cookie(), government.Properties{"addr": "host-" + string(id)})
		if err != nil {
			return err
		}
		cl.drainQuiescent(res.Outbox)
		cl.run(50)
	}

	enq, err := c0.Enqueue(cl.now, cl.republic, []byte(`{"type":"enqueue","value":1}`))
	if err != nil {
		return err
	}
	slog.Info("enqueue", "enqueued", enq.Enqueued)
	cl.drainQuiescent(enq.Outbox)
	cl.run(50)

	report(out, "s3 three-member parliament", c0.Government())
	return nil
}

// scenarioCollapseAndRecover replays spec.md §8 S4.
func scenarioCollapseAndRecover(out io.Writer) error {
	cl := newDemoCluster()
	c0 := cl.add("0")
	c1 := cl.add("1")
	c0.Bootstrap(0, government.Properties{"addr": "host-0"})
	cl.run(10)

	res, err := c0.Immigrate(cl.now, cl.republic, "1", cl.cookie(), government.Properties{"addr": "host-1"})
	if err != nil {
		return err
	}
	cl.drainQuiescent(res.Outbox)
	cl.run(50)

	outbox0 := c0.ForceCollapse(cl.now)
	outbox1 := c1.ForceCollapse(cl.now)

	enq0, _ := c0.Enqueue(cl.now, cl.republic, []byte("cmd"))
	enq1, _ := c1.Enqueue(cl.now, cl.republic, []byte("cmd"))
	slog.Info("post-collapse enqueue", "at-0-enqueued", enq0.Enqueued, "at-1-enqueued", enq1.Enqueued)

	cl.drainQuiescent(outbox0)
	cl.drainQuiescent(outbox1)
	cl.run(50)

	report(out, "s4 collapse and recover", c0.Government())
	return nil
}

// scenarioLeaderIsolation replays spec.md §8 S5.
func scenarioLeaderIsolation(out io.Writer) error {
	cl := newDemoCluster()
	c0 := cl.add("0")
	c1 := cl.add("1")
	cl.add("2")
	c0.Bootstrap(0, government.Properties{"addr": "host-0"})
	cl.run(10)

	for i, id := range []government.CitizenID{"1", "2"} {
		res, err := c0.Immigrate(cl.now, cl.republic, id, cl.cookie(), government.Properties{"addr": "host-" + string(id)})
		if err != nil {
			return err
		}
		_ = i
		cl.drainQuiescent(res.Outbox)
		cl.run(50)
	}

	slog.Info("isolating leader", "leader", c0.Government().Majority[0])
	cl.net.Drop("0", true)

	cl.drainQuiescent(c1.ForceCollapse(cl.now))
	cl.run(50)

	report(out, "s5 leader isolation (recovered, isolated leader still cut off)", c1.Government())

	cl.net.Drop("0", false)
	cl.run(50)

	report(out, "s5 leader isolation (old leader reconnected)", c0.Government())
	return nil
}

// scenarioExile replays spec.md §8 S6.
func scenarioExile(out io.Writer) error {
	cl := newDemoCluster()
	c0 := cl.add("0")
	cl.add("1")
	c0.Bootstrap(0, government.Properties{"addr": "host-0"})
	cl.run(10)

	res, err := c0.Immigrate(cl.now, cl.republic, "1", cl.cookie(), government.Properties{"addr": "host-1"})
	if err != nil {
		return err
	}
	cl.drainQuiescent(res.Outbox)
	cl.run(50)

	slog.Info("dropping peer", "peer", "1")
	cl.net.Drop("1", true)
	cl.run(200)

	report(out, "s6 exile", c0.Government())
	return nil
}
