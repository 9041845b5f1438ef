package reservoir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ChuLiYu/run-loader/pkg/types"
)

type stubItem struct {
	step types.Step
	val  int
}

func (s stubItem) StepKey() types.Step { return s.step }

func TestOfferUnderCapacityRetainsEverything(t *testing.T) {
	r := New[stubItem](10)
	for i := 0; i < 5; i++ {
		r.Offer(stubItem{step: types.Step(i), val: i})
	}
	assert.Equal(t, 5, r.Len())
}

func TestOfferSameStepOverwritesInPlace(t *testing.T) {
	r := New[stubItem](10)
	r.Offer(stubItem{step: 1, val: 1})
	r.Offer(stubItem{step: 1, val: 2})
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 2, r.Items()[0].val)
}

func TestMostRecentOfferIsAlwaysRetained(t *testing.T) {
	r := New[stubItem](2)
	r.Offer(stubItem{step: 0, val: 0})
	r.Offer(stubItem{step: 1, val: 1})
	r.Offer(stubItem{step: 2, val: 2})
	r.Offer(stubItem{step: 3, val: 3})
	r.Offer(stubItem{step: 4, val: 4})

	found := false
	for _, it := range r.Items() {
		if it.step == 4 {
			found = true
		}
	}
	assert.True(t, found, "the most recently offered step must always be retained")
	assert.LessOrEqual(t, r.Len(), 2, "retained items must never exceed capacity")
}

func TestZeroCapacityStillRetainsAnchor(t *testing.T) {
	r := New[stubItem](0)
	r.Offer(stubItem{step: 0, val: 0})
	r.Offer(stubItem{step: 1, val: 1})
	items := r.Items()
	assert.Len(t, items, 1)
	assert.Equal(t, types.Step(1), items[0].step)
}

func TestCommitIntoIsIdempotentWithNoNewOffers(t *testing.T) {
	r := New[stubItem](3)
	r.Offer(stubItem{step: 0, val: 10})
	r.Offer(stubItem{step: 1, val: 20})

	var dst1, dst2 []int
	CommitInto(r, func(s stubItem) int { return s.val }, &dst1)
	CommitInto(r, func(s stubItem) int { return s.val }, &dst2)
	assert.Equal(t, dst1, dst2)
}

func TestPreemptionTieBreakLastOfferWinsAtEqualStep(t *testing.T) {
	r := New[stubItem](10)
	r.Offer(stubItem{step: 2, val: 100}) // file A
	r.Offer(stubItem{step: 2, val: 200}) // file B, lexicographically later, processed later
	assert.Equal(t, 200, r.Items()[0].val)
}

func TestRetentionNeverExceedsCapacityPlusAnchor(t *testing.T) {
	r := New[stubItem](5)
	for i := 0; i < 1000; i++ {
		r.Offer(stubItem{step: types.Step(i), val: i})
	}
	assert.LessOrEqual(t, r.Len(), 5)
}
