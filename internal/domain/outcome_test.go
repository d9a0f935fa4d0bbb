package domain

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOutcomeRecordConcurrent(t *testing.T) {
	o := NewRunOutcome()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := 201
			if i%5 == 0 {
				status = 500
			}
			o.Record(StagePersistence, status)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 40, o.Count(StagePersistence, 201))
	assert.Equal(t, 10, o.Count(StagePersistence, 500))
	assert.Equal(t, 50, o.StageTotal(StagePersistence))
	assert.Zero(t, o.StageTotal(StageExtraction))
}

func TestRunOutcomeSnapshot(t *testing.T) {
	o := NewRunOutcome()
	o.Record(StageExtraction, 200)
	o.Record(StageExtraction, StatusNoResponse)
	o.Skip("ad_detected")
	o.Update(func(o *RunOutcome) { o.FeedsOK = 2 })

	snap := o.Snapshot()
	assert.Equal(t, 2, snap["feeds_ok"])

	responses, ok := snap["responses"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"200": 1, "no_response": 1}, responses["extraction"])
	assert.Equal(t, map[string]int{}, responses["summarization"])
	assert.Equal(t, map[string]int{"ad_detected": 1}, snap["items_skipped"])
}

func TestAmpBatchResultMerge(t *testing.T) {
	r := NewAmpBatchResult()
	r.Resolved["a"] = "amp-a"

	other := NewAmpBatchResult()
	other.Resolved["b"] = "amp-b"
	other.Failed["c"] = AmpURLError{Code: "NO_AMP_URL"}

	r.Merge(other)
	assert.Len(t, r.Resolved, 2)
	assert.Equal(t, "NO_AMP_URL", r.Failed["c"].Code)
}

func TestSkipClassification(t *testing.T) {
	tests := map[string]struct {
		err    error
		skip   bool
		reason string
	}{
		"ad":        {err: fmt.Errorf("host bbc: %w", ErrAdDetected), skip: true, reason: "ad_detected"},
		"title":     {err: ErrMissingTitle, skip: true, reason: "missing_title"},
		"ingested":  {err: ErrAlreadyIngested, skip: true, reason: "already_ingested"},
		"resolve":   {err: fmt.Errorf("get: %w", ErrResolutionFailed), skip: true, reason: "resolution_failed"},
		"transport": {err: ErrConnectionFailure, skip: false, reason: "other"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.skip, IsSkip(tc.err))
			assert.Equal(t, tc.reason, SkipReason(tc.err))
		})
	}
}
