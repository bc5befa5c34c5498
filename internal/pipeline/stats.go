package pipeline

import (
	"math"
	"sync/atomic"
)

type stats struct {
	total    atomic.Uint64
	allowed  atomic.Uint64
	reviewed atomic.Uint64
	blocked  atomic.Uint64
	failsafe atomic.Uint64
	aborted  atomic.Uint64
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	TotalScored   uint64  `json:"totalScored"`
	Allowed       uint64  `json:"allowed"`
	Reviewed      uint64  `json:"reviewed"`
	Blocked       uint64  `json:"blocked"`
	Failsafe      uint64  `json:"failsafe"`
	Aborted       uint64  `json:"aborted"`
	FraudDetected uint64  `json:"fraudDetected"`
	FraudRate     float64 `json:"fraudRate"`
}

// Stats returns a snapshot of the pipeline counters. FraudDetected
// counts blocked transactions; FraudRate is blocked over total.
func (o *Orchestrator) Stats() Stats {
	s := Stats{
		TotalScored: o.stats.total.Load(),
		Allowed:     o.stats.allowed.Load(),
		Reviewed:    o.stats.reviewed.Load(),
		Blocked:     o.stats.blocked.Load(),
		Failsafe:    o.stats.failsafe.Load(),
		Aborted:     o.stats.aborted.Load(),
	}
	s.FraudDetected = s.Blocked
	if s.TotalScored > 0 {
		s.FraudRate = math.Round(float64(s.Blocked)/float64(s.TotalScored)*10000) / 10000
	}
	return s
}
