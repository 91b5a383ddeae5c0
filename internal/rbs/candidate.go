package rbs

import (
	"context"
	"math"
	"sort"
)

// candidate rejection reasons
const (
	rejectPredictorError   = "predictor_error"
	rejectNoValidRow       = "no_valid_ostir_row"
	rejectNonPositiveExpr  = "non_positive_expression"
	rejectCodonMismatch    = "start_codon_mismatch"
	rejectPositionMismatch = "start_position_mismatch"
)

// Candidate is one proposed RBS design. Score and provenance change
// only when the candidate is re-evaluated against the full-length
// context during refinement
type Candidate struct {
	// the designed RBS sequence itself
	RBSSequence string

	// pre + RBS + CDS as evaluated
	FullSequence string

	// 1-indexed position of the start codon in FullSequence
	StartPosition int

	StartCodon string

	PredictedExpression float64

	// distance from the target: |log10(expression) - log10(target)|.
	// +Inf for rejected candidates
	Error float64

	// whether the score came from a truncated-window evaluation
	Truncated bool

	Rejected     bool
	RejectReason string

	// the raw predictor row the score came from
	row Row
}

// evaluateCandidate scores one RBS against a pre/CDS context: runs the
// predictor pinned at the expected start position and rejects rows that
// are missing, non-positive, or disagree on the start codon/position
func evaluateCandidate(ctx context.Context, pred Predictor, pre, cds, rbsSeq, asd string, threads int, targetLog float64, truncated bool) *Candidate {
	fullSeq := pre + rbsSeq + cds
	expectedStart := len(pre) + len(rbsSeq) + 1
	expectedCodon := ""
	if len(cds) >= 3 {
		expectedCodon = cds[:3]
	}

	reject := func(reason string, row Row, position int, codon string) *Candidate {
		if codon == "" {
			codon = expectedCodon
		}
		return &Candidate{
			RBSSequence:   rbsSeq,
			FullSequence:  fullSeq,
			StartPosition: position,
			StartCodon:    codon,
			Error:         math.Inf(1),
			Truncated:     truncated,
			Rejected:      true,
			RejectReason:  reason,
			row:           row,
		}
	}

	rows, err := pred.Predict(ctx, PredictRequest{
		Input:     fullSeq,
		InputType: "string",
		ASD:       asd,
		Threads:   threads,
		Start:     expectedStart,
	})
	if err != nil {
		return reject(rejectPredictorError, nil, 0, "")
	}

	if len(rows) == 0 {
		return reject(rejectNoValidRow, nil, 0, "")
	}

	// keep only the row at the expected start
	var row Row
	for _, r := range rows {
		if position, ok := coerceFloat(r[colStartPosition]); ok && int(position) == expectedStart {
			row = r
			break
		}
	}
	if row == nil {
		position, _ := coerceFloat(rows[0][colStartPosition])
		return reject(rejectPositionMismatch, rows[0], int(position), rowString(rows[0], colStartCodon))
	}

	expr, ok := coerceFloat(row["expression"])
	if !ok || expr <= 0 {
		position, _ := coerceFloat(row[colStartPosition])
		return reject(rejectNonPositiveExpr, row, int(position), rowString(row, colStartCodon))
	}

	observedCodon := rowString(row, colStartCodon)
	if observedCodon != expectedCodon {
		position, _ := coerceFloat(row[colStartPosition])
		return reject(rejectCodonMismatch, row, int(position), observedCodon)
	}

	if expr < 1e-12 {
		expr = 1e-12
	}

	return &Candidate{
		RBSSequence:         rbsSeq,
		FullSequence:        fullSeq,
		StartPosition:       expectedStart,
		StartCodon:          expectedCodon,
		PredictedExpression: expr,
		Error:               math.Abs(math.Log10(expr) - targetLog),
		Truncated:           truncated,
		row:                 row,
	}
}

// sortCandidates orders by error ascending, then predicted expression
// descending, then RBS sequence ascending. The last key keeps output
// stable when refinement scores concurrently
func sortCandidates(candidates []*Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Error != b.Error {
			return a.Error < b.Error
		}
		if a.PredictedExpression != b.PredictedExpression {
			return a.PredictedExpression > b.PredictedExpression
		}
		return a.RBSSequence < b.RBSSequence
	})
}
