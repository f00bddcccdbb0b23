package shaper_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polis-dev/polis/government"
	"github.com/polis-dev/polis/shaper"
)

type fakeView struct {
	gov            government.Government
	parliamentSize int
	unreachable    map[government.CitizenID]bool
	disappeared    map[government.CitizenID]int64
}

func (v *fakeView) Current() government.Government { return v.gov }
func (v *fakeView) ParliamentSize() int             { return v.parliamentSize }
func (v *fakeView) Reachable(id government.CitizenID) bool {
	return !v.unreachable[id]
}
func (v *fakeView) DisappearedFor(id government.CitizenID, now int64) (int64, bool) {
	first, ok := v.disappeared[id]
	if !ok {
		return 0, false
	}
	return now - first, true
}

func TestRelayNeverProposes(t *testing.T) {
	var r shaper.Relay
	assert.Nil(t, r.Immigrate(0, shaper.ImmigrationRequest{ID: "1"}))
	assert.Nil(t, r.Unreachable(0, "1"))
	assert.Nil(t, r.Naturalized(0, "1"))
	assert.False(t, r.Decided())
}

func TestImmigrateAdmitsAsConstituentAndLatches(t *testing.T) {
	v := &fakeView{
		gov:            government.Government{Majority: []government.CitizenID{"0"}},
		parliamentSize: 5,
	}
	s := shaper.New(v, 2)

	gov := s.Immigrate(0, shaper.ImmigrationRequest{ID: "1", Cookie: 7})
	assert.NotNil(t, gov)
	assert.Equal(t, []government.CitizenID{"1"}, gov.Constituents)
	assert.Equal(t, []government.CitizenID{"0"}, gov.Majority)
	assert.True(t, s.Decided())

	assert.Nil(t, s.Immigrate(0, shaper.ImmigrationRequest{ID: "2"}), "latched until reset")
	s.Reset()
	assert.False(t, s.Decided())
}

func TestNaturalizedGrowsMajorityPerS3(t *testing.T) {
	v := &fakeView{
		gov: government.Government{
			Majority:     []government.CitizenID{"0"},
			Constituents: []government.CitizenID{"1", "2"},
		},
		parliamentSize: 5,
	}
	s := shaper.New(v, 2)

	gov := s.Naturalized(0, "1")
	assert.NotNil(t, gov)
	assert.ElementsMatch(t, []government.CitizenID{"0", "1"}, gov.Majority)
	assert.ElementsMatch(t, []government.CitizenID{"2"}, gov.Minority)
	assert.Empty(t, gov.Constituents)
	assert.True(t, gov.CheckShape(5))
}

func TestNaturalizedNoopWhenNoGrowthRoom(t *testing.T) {
	v := &fakeView{
		gov: government.Government{
			Majority: []government.CitizenID{"0"},
		},
		parliamentSize: 5,
	}
	s := shaper.New(v, 2)
	assert.Nil(t, s.Naturalized(0, "0"))
}

func TestUnreachableDemotesAndPromotesReplacement(t *testing.T) {
	v := &fakeView{
		gov: government.Government{
			Majority:     []government.CitizenID{"0", "1"},
			Minority:     []government.CitizenID{"2"},
			Constituents: []government.CitizenID{"3"},
		},
		parliamentSize: 5,
		unreachable:    map[government.CitizenID]bool{"1": true},
	}
	s := shaper.New(v, 2)

	gov := s.Unreachable(0, "1")
	assert.NotNil(t, gov)
	assert.NotContains(t, gov.Majority, government.CitizenID("1"))
	assert.Contains(t, gov.Majority, government.CitizenID("2"))
	assert.Contains(t, gov.Minority, government.CitizenID("1"))
}

func TestUnreachableQueuesExileAfterTimeout(t *testing.T) {
	v := &fakeView{
		gov: government.Government{
			Majority:     []government.CitizenID{"0"},
			Constituents: []government.CitizenID{"1"},
		},
		parliamentSize: 5,
		unreachable:    map[government.CitizenID]bool{"1": true},
		disappeared:    map[government.CitizenID]int64{"1": 0},
	}
	s := shaper.New(v, 2)

	assert.Nil(t, s.Unreachable(1, "1"), "not yet past timeout")

	gov := s.Unreachable(5, "1")
	assert.NotNil(t, gov)
	assert.Contains(t, gov.Exile, government.CitizenID("1"))
	assert.NotContains(t, gov.Constituents, government.CitizenID("1"))
}
