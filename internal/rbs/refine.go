package rbs

import (
	"context"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// RefinementDiagnostics reports the full-length re-evaluation:
// accepted + rejected always equals attempted, and attempted never
// exceeds requested or the screener's output
type RefinementDiagnostics struct {
	Requested     int `json:"requested"`
	RequestedTopN int `json:"requested_top_n"`
	Multiplier    int `json:"multiplier"`
	Attempted     int `json:"attempted"`
	Accepted      int `json:"accepted"`
	Rejected      int `json:"rejected"`
}

// refineParams is the full-length refinement input
type refineParams struct {
	// the complete, untruncated sequence context
	FullPre string
	FullCDS string

	Target  float64
	ASD     string
	Threads int

	TopN       int
	Multiplier int
}

// refine re-scores the top screener candidates against the full
// sequence context, bounding the work to topN times the multiplier.
// Candidates that fail full-length scoring are dropped and counted;
// the survivors are re-sorted by their updated scores.
//
// Each candidate's re-evaluation is independent, so they run under a
// worker pool sized by the request's thread count. Results land in a
// slice indexed by candidate so final order never depends on
// completion order.
func refine(ctx context.Context, pred Predictor, candidates []*Candidate, p refineParams, progress ProgressFunc) ([]*Candidate, *RefinementDiagnostics) {
	requested := p.TopN * p.Multiplier
	attempted := min(requested, len(candidates))

	diag := &RefinementDiagnostics{
		Requested:     requested,
		RequestedTopN: p.TopN,
		Multiplier:    p.Multiplier,
		Attempted:     attempted,
	}

	subset := candidates[:attempted]
	results := make([]*Candidate, attempted)
	targetLog := math.Log10(p.Target)

	workers := p.Threads
	if workers < 1 {
		workers = 1
	}

	var done int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, candidate := range subset {
		i, rbsSeq := i, candidate.RBSSequence
		g.Go(func() error {
			results[i] = evaluateCandidate(gctx, pred, p.FullPre, p.FullCDS, rbsSeq, p.ASD, p.Threads, targetLog, false)

			if progress != nil {
				completed := int(atomic.AddInt32(&done, 1))
				progress(Progress{
					Phase:        "refine",
					Progress:     float64(completed) / float64(attempted),
					Iteration:    completed,
					MaxIteration: attempted,
				})
			}
			return nil
		})
	}
	g.Wait() // nolint:errcheck

	var refined []*Candidate
	for _, result := range results {
		if result == nil || result.Rejected {
			diag.Rejected++
			continue
		}
		diag.Accepted++
		refined = append(refined, result)
	}

	sortCandidates(refined)
	return refined, diag
}

// skippedRefinement is the diagnostics record for requests whose input
// fit the screening windows. Nothing was attempted, so the
// accepted/rejected accounting stays balanced at zero
func skippedRefinement(topN, multiplier int) *RefinementDiagnostics {
	return &RefinementDiagnostics{
		Requested:     topN * multiplier,
		RequestedTopN: topN,
		Multiplier:    multiplier,
	}
}
