package domain

import (
	"sort"
	"strconv"
	"sync"
)

// Stage names a downstream forwarding stage.
type Stage string

const (
	StageExtraction    Stage = "extraction"
	StageSummarization Stage = "summarization"
	StagePersistence   Stage = "persistence"
)

// Stages lists the forwarding stages in call order.
var Stages = []Stage{StageExtraction, StageSummarization, StagePersistence}

// StatusNoResponse is tallied when a stage call failed before any HTTP status was received.
const StatusNoResponse = 0

// RunOutcome accumulates the observable results of one run. It is safe for concurrent use.
type RunOutcome struct {
	mu sync.Mutex

	responses map[Stage]map[int]int
	skipped   map[string]int

	FeedsOK           int
	FeedsFailed       int
	ItemsKept         int
	DedupAnomalies    int
	AmpResolved       int
	AmpFailed         int
	AmpCooldowns      int
	AmpAbandoned      int
	ArticlesNoAmp     int
	ArticlesPersisted int
}

// NewRunOutcome returns an empty outcome.
func NewRunOutcome() *RunOutcome {
	return &RunOutcome{
		responses: make(map[Stage]map[int]int),
		skipped:   make(map[string]int),
	}
}

// Record tallies one response status for a stage.
func (o *RunOutcome) Record(stage Stage, status int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	codes, ok := o.responses[stage]
	if !ok {
		codes = make(map[int]int)
		o.responses[stage] = codes
	}
	codes[status]++
}

// Count returns how many times status was recorded for stage.
func (o *RunOutcome) Count(stage Stage, status int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.responses[stage][status]
}

// StageTotal returns the number of responses recorded for stage.
func (o *RunOutcome) StageTotal(stage Stage) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := 0
	for _, n := range o.responses[stage] {
		total += n
	}
	return total
}

// Skip tallies one skipped item by reason.
func (o *RunOutcome) Skip(reason string) {
	o.mu.Lock()
	o.skipped[reason]++
	o.mu.Unlock()
}

// Skipped returns the number of items skipped for reason.
func (o *RunOutcome) Skipped(reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.skipped[reason]
}

// Update applies fn to the outcome's counters under its lock.
func (o *RunOutcome) Update(fn func(o *RunOutcome)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(o)
}

// Snapshot renders the outcome as a plain map for logging.
func (o *RunOutcome) Snapshot() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()

	stages := make(map[string]any, len(o.responses))
	for _, stage := range Stages {
		codes := o.responses[stage]
		keys := make([]int, 0, len(codes))
		for code := range codes {
			keys = append(keys, code)
		}
		sort.Ints(keys)
		tally := make(map[string]int, len(keys))
		for _, code := range keys {
			tally[statusLabel(code)] = codes[code]
		}
		stages[string(stage)] = tally
	}

	skipped := make(map[string]int, len(o.skipped))
	for k, v := range o.skipped {
		skipped[k] = v
	}

	return map[string]any{
		"feeds_ok":           o.FeedsOK,
		"feeds_failed":       o.FeedsFailed,
		"items_kept":         o.ItemsKept,
		"items_skipped":      skipped,
		"dedup_anomalies":    o.DedupAnomalies,
		"amp_resolved":       o.AmpResolved,
		"amp_failed":         o.AmpFailed,
		"amp_cooldowns":      o.AmpCooldowns,
		"amp_abandoned":      o.AmpAbandoned,
		"articles_no_amp":    o.ArticlesNoAmp,
		"articles_persisted": o.ArticlesPersisted,
		"responses":          stages,
	}
}

func statusLabel(code int) string {
	if code == StatusNoResponse {
		return "no_response"
	}
	return strconv.Itoa(code)
}
