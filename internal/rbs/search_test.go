package rbs

import (
	"context"
	"testing"
)

func Test_screen_earlyExit(t *testing.T) {
	conf := testConfig()
	pred := &stubPredictor{}

	for _, p := range []searchParams{
		{Pre: "AAACCC", CDS: "ATGGGG", Target: 1000, Iterations: 0, Limit: 10, MinLength: 6, MaxLength: 12},
		{Pre: "AAACCC", CDS: "ATGGGG", Target: 1000, Iterations: 50, Limit: 0, MinLength: 6, MaxLength: 12},
	} {
		candidates, diag, err := screen(context.Background(), conf, pred, p, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !diag.EarlyExit {
			t.Error("diag.EarlyExit = false, want true")
		}
		if len(candidates) != 0 {
			t.Errorf("candidates = %d, want 0", len(candidates))
		}
		if pred.callCount() != 0 {
			t.Errorf("predictor calls = %d, want 0", pred.callCount())
		}
	}
}

func Test_screen_capsAtLimit(t *testing.T) {
	conf := testConfig()
	p := searchParams{
		Pre:        "AAACCCGGG",
		CDS:        "ATGGGGTTTCCC",
		Target:     1000,
		MinLength:  6,
		MaxLength:  12,
		Iterations: 120,
		Limit:      8,
		Seed:       "42",
	}

	candidates, diag, err := screen(context.Background(), conf, &stubPredictor{}, p, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(candidates) > p.Limit {
		t.Errorf("candidates = %d, want at most %d", len(candidates), p.Limit)
	}
	if diag.EarlyExit {
		t.Error("diag.EarlyExit = true on a full run")
	}
	if diag.IterationsRequested != p.Iterations {
		t.Errorf("iterations_requested = %d, want %d", diag.IterationsRequested, p.Iterations)
	}

	seen := map[string]bool{}
	for _, c := range candidates {
		if c.Rejected {
			t.Errorf("rejected candidate %s in screen output", c.RBSSequence)
		}
		if len(c.RBSSequence) < p.MinLength || len(c.RBSSequence) > p.MaxLength {
			t.Errorf("candidate %s length %d out of [%d,%d]",
				c.RBSSequence, len(c.RBSSequence), p.MinLength, p.MaxLength)
		}
		if seen[c.RBSSequence] {
			t.Errorf("duplicate candidate %s", c.RBSSequence)
		}
		seen[c.RBSSequence] = true
	}

	for i := 1; i < len(candidates); i++ {
		if candidates[i-1].Error > candidates[i].Error {
			t.Errorf("screen output not sorted at %d", i)
		}
	}
}

func Test_screen_deterministicWithSeed(t *testing.T) {
	conf := testConfig()
	p := searchParams{
		Pre:        "AAACCCGGG",
		CDS:        "ATGGGGTTTCCC",
		Target:     1000,
		MinLength:  6,
		MaxLength:  12,
		Iterations: 80,
		Limit:      10,
		Seed:       "7",
	}

	first, _, err := screen(context.Background(), conf, &stubPredictor{}, p, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := screen(context.Background(), conf, &stubPredictor{}, p, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Fatalf("runs differ in size: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].RBSSequence != second[i].RBSSequence {
			t.Fatalf("runs diverged at %d: %s vs %s", i, first[i].RBSSequence, second[i].RBSSequence)
		}
	}
}

func Test_screen_tracesAndMoves(t *testing.T) {
	conf := testConfig()
	p := searchParams{
		Pre:        "AAACCCGGG",
		CDS:        "ATGGGGTTTCCC",
		Target:     1000,
		MinLength:  6,
		MaxLength:  12,
		Iterations: 60,
		Limit:      10,
		Seed:       "11",
	}

	_, diag, err := screen(context.Background(), conf, &stubPredictor{}, p, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(diag.Trace) == 0 {
		t.Error("trace is empty")
	}
	for _, point := range diag.Trace {
		if point.Iteration < 1 || point.Iteration > p.Iterations {
			t.Errorf("trace iteration %d out of range", point.Iteration)
		}
	}

	attempts := 0
	for _, n := range diag.MoveTypeAttempts {
		attempts += n
	}
	if attempts != p.Iterations {
		t.Errorf("move attempts = %d, want %d", attempts, p.Iterations)
	}

	if diag.BestError < 0 {
		t.Error("best_error still at its sentinel after a scoring run")
	}
}

func Test_screen_canceledContext(t *testing.T) {
	conf := testConfig()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := screen(ctx, conf, &stubPredictor{}, searchParams{
		Pre:        "AAACCCGGG",
		CDS:        "ATGGGGTTTCCC",
		Target:     1000,
		MinLength:  6,
		MaxLength:  12,
		Iterations: 60,
		Limit:      10,
	}, nil)
	if err == nil {
		t.Error("err = nil for a canceled context")
	}
}

func Test_searchSeed(t *testing.T) {
	if got := searchSeed("42"); got != 42 {
		t.Errorf("searchSeed(42) = %d", got)
	}
	if got := searchSeed("-7"); got != -7 {
		t.Errorf("searchSeed(-7) = %d", got)
	}

	// non-numeric seeds fall back to a time-based seed
	a, b := searchSeed(""), searchSeed("")
	if a == 0 && b == 0 {
		t.Error("time-based seeds both zero")
	}
}
