package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/adalundhe/steward/core/holdqueue"
)

func TestMergeNonZeroFieldsWin(t *testing.T) {
	dst := DefaultConfig()
	src := &Config{}
	src.Provider.Name = "openai"
	src.Ensemble.ConfidenceGapThreshold = 0.2

	Merge(dst, src)

	assert.Equal(t, "openai", dst.Provider.Name)
	assert.Equal(t, 0.2, dst.Ensemble.ConfidenceGapThreshold)
	// Zero fields in src leave dst untouched.
	assert.Equal(t, 1024, dst.Provider.MaxTokens)
	assert.Equal(t, Duration(30*time.Minute), dst.Sceptic.Cooldown)
}

func TestMergeEmptySliceKeepsExisting(t *testing.T) {
	dst := DefaultConfig()
	src := &Config{}

	Merge(dst, src)
	assert.Len(t, dst.HoldQueue.Tiers, 4)
}

func TestMergeSliceReplacesWholesale(t *testing.T) {
	dst := DefaultConfig()
	src := &Config{}
	src.HoldQueue.Tiers = []holdqueue.TierRule{{Approvals: 0, HoldMinutes: 5}}

	Merge(dst, src)
	assert.Equal(t, []holdqueue.TierRule{{Approvals: 0, HoldMinutes: 5}}, dst.HoldQueue.Tiers)
}
