package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageIndex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, StageIndex(StageRaw))
	assert.Equal(t, 4, StageIndex(StageSpots))
	assert.Equal(t, -1, StageIndex(Stage("bogus")))
}

func TestFailedStatusRoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range Stages {
		stage, ok := FailedStage(FailedStatus(s))
		assert.True(t, ok)
		assert.Equal(t, s, stage)
	}

	_, ok := FailedStage(RunStatusCompleted)
	assert.False(t, ok)
	_, ok = FailedStage(RunningStatus(StageExtract))
	assert.False(t, ok)
	_, ok = FailedStage(RunStatus("failed_at_bogus"))
	assert.False(t, ok)
}

func TestNewManifest(t *testing.T) {
	t.Parallel()

	m := NewManifest()
	assert.Len(t, m, len(Stages))
	for _, s := range Stages {
		assert.Equal(t, StagePending, m[s].Status)
	}
}

func TestSpotPreserved(t *testing.T) {
	t.Parallel()

	assert.True(t, Spot{Source: SpotSourceManual}.Preserved())
	assert.True(t, Spot{Source: SpotSourceAutomated, ManualOverride: true}.Preserved())
	assert.False(t, Spot{Source: SpotSourceAutomated}.Preserved())
}

func TestPromoEntryUsable(t *testing.T) {
	t.Parallel()

	assert.False(t, PromoEntry{Category: "happy_hour", Confidence: 90}.Usable())
	assert.True(t, PromoEntry{Days: []string{"monday"}}.Usable())
	assert.True(t, PromoEntry{StartTime: "17:00"}.Usable())
	assert.True(t, PromoEntry{Offers: []string{"$5 drafts"}}.Usable())
}
