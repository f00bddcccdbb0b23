package government_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polis-dev/polis/government"
	"github.com/polis-dev/polis/promise"
)

func TestDictator(t *testing.T) {
	g := government.Dictator("0", government.Properties{"addr": "local"})
	assert.Equal(t, promise.New(1, 0), g.Promise)
	leader, ok := g.Leader()
	assert.True(t, ok)
	assert.Equal(t, government.CitizenID("0"), leader)
	assert.True(t, g.IsLeader("0"))
}

func TestConstituencyFanOut(t *testing.T) {
	g := government.Government{
		Majority:     []government.CitizenID{"a", "b", "c"},
		Minority:     []government.CitizenID{"d", "e"},
		Constituents: []government.CitizenID{"f"},
	}
	assert.ElementsMatch(t, []government.CitizenID{"b", "c"}, g.Constituency("a"))
	assert.ElementsMatch(t, []government.CitizenID{"d", "e"}, g.Constituency("b"))
	assert.ElementsMatch(t, []government.CitizenID{"f"}, g.Constituency("d"))
	assert.Nil(t, g.Constituency("f"))
}

func TestMajoritySize(t *testing.T) {
	assert.Equal(t, 1, government.MajoritySize(5, 1))
	assert.Equal(t, 1, government.MajoritySize(5, 2))
	assert.Equal(t, 2, government.MajoritySize(5, 3))
	assert.Equal(t, 2, government.MajoritySize(5, 4))
	assert.Equal(t, 3, government.MajoritySize(5, 5))
	assert.Equal(t, 3, government.MajoritySize(5, 7))
}

func TestCheckShape(t *testing.T) {
	g := government.Government{
		Majority: []government.CitizenID{"a", "b"},
		Minority: []government.CitizenID{"c"},
	}
	assert.True(t, g.CheckShape(5))

	bad := government.Government{
		Majority: []government.CitizenID{"a", "b"},
	}
	assert.False(t, bad.CheckShape(5))
}

func TestHasMajorityQuorum(t *testing.T) {
	members := []government.CitizenID{"a", "b", "c"}
	acks := map[government.CitizenID]bool{"a": true, "c": true}
	assert.True(t, government.HasMajorityQuorum(members, acks))

	acks2 := map[government.CitizenID]bool{"a": true}
	assert.False(t, government.HasMajorityQuorum(members, acks2))
}

func TestImmigratedRecordBijection(t *testing.T) {
	r := government.NewImmigratedRecord().With("a", promise.New(2, 0))
	at, ok := r.ByID["a"]
	assert.True(t, ok)
	assert.Equal(t, promise.New(2, 0), at)
	assert.Equal(t, government.CitizenID("a"), r.ByPromise[at])

	r2 := r.Without("a")
	assert.Empty(t, r2.ByID)
	assert.Empty(t, r2.ByPromise)
	// original untouched
	assert.NotEmpty(t, r.ByID)
}
