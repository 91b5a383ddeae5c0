package rbs

import (
	"context"
	"net/url"
	"strings"
	"testing"
)

func designForm() url.Values {
	form := url.Values{}
	form.Set("preSequence", "AAACCCGGG")
	form.Set("postSequence", "ATGGGGTTTCCC")
	form.Set("targetExpression", "1000")
	form.Set("iterations", "60")
	form.Set("topCandidates", "4")
	form.Set("randomSeed", "42")
	return form
}

func Test_ParseDesignRequest(t *testing.T) {
	conf := testConfig()

	req, err := ParseDesignRequest(designForm(), conf)
	if err != nil {
		t.Fatal(err)
	}

	if req.Pre != "AAACCCGGG" || req.CDS != "ATGGGGTTTCCC" {
		t.Errorf("windowed sequences = %q/%q", req.Pre, req.CDS)
	}
	if req.FullPre != req.Pre || req.FullCDS != req.CDS {
		t.Errorf("short input should pass through unwindowed")
	}
	if req.TargetExpression != 1000 {
		t.Errorf("target = %v, want 1000", req.TargetExpression)
	}
	if req.TopN != 4 || req.Iterations != 60 {
		t.Errorf("topN/iterations = %d/%d, want 4/60", req.TopN, req.Iterations)
	}
	if req.ASD != "ACCTCCTTA" {
		t.Errorf("asd = %q, want the default anti-SD", req.ASD)
	}
	if req.MinLength != 6 || req.MaxLength != 12 {
		t.Errorf("length range = [%d,%d], want defaults [6,12]", req.MinLength, req.MaxLength)
	}
}

func Test_ParseDesignRequest_normalizesInput(t *testing.T) {
	conf := testConfig()

	form := designForm()
	form.Set("preSequence", "aaa ccc\nggg")
	form.Set("postSequence", "augGGGUUUccc")

	req, err := ParseDesignRequest(form, conf)
	if err != nil {
		t.Fatal(err)
	}
	if req.Pre != "AAACCCGGG" {
		t.Errorf("pre = %q, want normalized AAACCCGGG", req.Pre)
	}
	if req.CDS != "ATGGGGTTTCCC" {
		t.Errorf("cds = %q, want RNA converted to DNA", req.CDS)
	}
}

func Test_ParseDesignRequest_validation(t *testing.T) {
	conf := testConfig()

	tests := []struct {
		name    string
		mutate  func(url.Values)
		wantErr string
	}{
		{
			"missing pre",
			func(f url.Values) { f.Set("preSequence", "") },
			"Pre-sequence input is required",
		},
		{
			"cds too short",
			func(f url.Values) { f.Set("postSequence", "AT") },
			"postSequence must include a start codon",
		},
		{
			"bad start codon",
			func(f url.Values) { f.Set("postSequence", "CTGGGG") },
			"must start with ATG, GTG, or TTG",
		},
		{
			"missing target",
			func(f url.Values) { f.Set("targetExpression", "") },
			"targetExpression must be a number",
		},
		{
			"non-numeric target",
			func(f url.Values) { f.Set("targetExpression", "abc") },
			"targetExpression must be a number",
		},
		{
			"non-positive target",
			func(f url.Values) { f.Set("targetExpression", "0") },
			"targetExpression must be greater than 0",
		},
		{
			"bad length range",
			func(f url.Values) { f.Set("rbsMinLength", "10"); f.Set("rbsMaxLength", "6") },
			"Invalid RBS length range",
		},
		{
			"non-positive iterations",
			func(f url.Values) { f.Set("iterations", "0") },
			"iterations and topCandidates must be positive",
		},
		{
			"non-integer topCandidates",
			func(f url.Values) { f.Set("topCandidates", "many") },
			"topCandidates must be an integer",
		},
	}

	for _, tt := range tests {
		form := designForm()
		tt.mutate(form)

		_, err := ParseDesignRequest(form, conf)
		if err == nil {
			t.Errorf("%s: err = nil", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%s: err = %q, want %q", tt.name, err, tt.wantErr)
		}
	}
}

func Test_Design_noTruncation(t *testing.T) {
	conf := testConfig()
	pred := &stubPredictor{}

	req, err := ParseDesignRequest(designForm(), conf)
	if err != nil {
		t.Fatal(err)
	}

	result, err := Design(context.Background(), conf, pred, req, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !result.OK {
		t.Error("ok = false")
	}
	if result.Count != len(result.Candidates) {
		t.Errorf("count = %d, candidates = %d", result.Count, len(result.Candidates))
	}
	if result.Count > req.TopN {
		t.Errorf("count = %d, want at most topN %d", result.Count, req.TopN)
	}

	if result.FullRefinement.Enabled {
		t.Error("full refinement enabled for untruncated input")
	}
	if want := req.TopN * conf.Design.RefinementMultiplier; result.FullRefinement.RequestedCandidates != want {
		t.Errorf("requested_candidates = %d, want %d", result.FullRefinement.RequestedCandidates, want)
	}

	diag := result.Diagnostics.Refinement
	if diag == nil {
		t.Fatal("refinement diagnostics missing")
	}
	if diag.Requested != req.TopN*conf.Design.RefinementMultiplier {
		t.Errorf("requested = %d, want topN*multiplier", diag.Requested)
	}
	if diag.Attempted != 0 || diag.Accepted != 0 || diag.Rejected != 0 {
		t.Errorf("skipped refinement accounting = %d/%d/%d, want zeros",
			diag.Attempted, diag.Accepted, diag.Rejected)
	}

	if len(result.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", result.Warnings)
	}
	if result.Warnings == nil {
		t.Error("warnings = nil, want an empty list")
	}

	for i, c := range result.Candidates {
		if c.Rank != i+1 {
			t.Errorf("rank[%d] = %d", i, c.Rank)
		}
		if c.TargetExpression != 1000 {
			t.Errorf("target[%d] = %v", i, c.TargetExpression)
		}
		if want := c.PredictedExpression / 1000; c.FoldRatio != want {
			t.Errorf("fold_ratio[%d] = %v, want %v", i, c.FoldRatio, want)
		}
		if c.StartCodon != "ATG" {
			t.Errorf("start_codon[%d] = %q", i, c.StartCodon)
		}
		if !strings.HasPrefix(c.FullSequence, req.Pre) || !strings.HasSuffix(c.FullSequence, req.CDS) {
			t.Errorf("full_sequence[%d] = %q not pre+rbs+cds", i, c.FullSequence)
		}
	}
	if result.Best != nil && result.Count > 0 && result.Best.RBSSequence != result.Candidates[0].RBSSequence {
		t.Error("best is not the top ranked candidate")
	}
}

func Test_Design_withTruncation(t *testing.T) {
	conf := testConfig()
	conf.Window.PreSeqMaxBP = 8
	conf.Window.CDSMaxBP = 8
	pred := &stubPredictor{}

	form := designForm()
	form.Set("preSequence", strings.Repeat("AC", 10))
	form.Set("postSequence", "ATG"+strings.Repeat("GT", 10))

	req, err := ParseDesignRequest(form, conf)
	if err != nil {
		t.Fatal(err)
	}
	if !req.Truncation.Truncated() {
		t.Fatal("input not truncated")
	}

	result, err := Design(context.Background(), conf, pred, req, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !result.FullRefinement.Enabled {
		t.Error("full refinement disabled for truncated input")
	}
	if len(result.Warnings) != 2 {
		t.Errorf("warnings = %v, want one per side", result.Warnings)
	}

	diag := result.Diagnostics.Refinement
	if diag == nil {
		t.Fatal("refinement diagnostics missing")
	}
	if diag.Accepted+diag.Rejected != diag.Attempted {
		t.Errorf("accounting broken: %d + %d != %d", diag.Accepted, diag.Rejected, diag.Attempted)
	}
	if diag.Attempted > diag.Requested {
		t.Errorf("attempted %d exceeds requested %d", diag.Attempted, diag.Requested)
	}

	if result.PreLengthInput != 20 || result.PreLength != 8 {
		t.Errorf("pre lengths = %d/%d, want 20/8", result.PreLengthInput, result.PreLength)
	}
	if result.FullLengthPre != 20 || result.FullLengthCDS != 23 {
		t.Errorf("full lengths = %d/%d, want 20/23", result.FullLengthPre, result.FullLengthCDS)
	}

	// refined candidates carry full-length context
	for i, c := range result.Candidates {
		if len(c.FullSequence) != 20+len(c.RBSSequence)+23 {
			t.Errorf("full_sequence[%d] has windowed length %d", i, len(c.FullSequence))
		}
	}
}

func Test_Design_idempotentWithSeed(t *testing.T) {
	conf := testConfig()

	run := func() *DesignResult {
		req, err := ParseDesignRequest(designForm(), conf)
		if err != nil {
			t.Fatal(err)
		}
		result, err := Design(context.Background(), conf, &stubPredictor{}, req, nil)
		if err != nil {
			t.Fatal(err)
		}
		return result
	}

	first, second := run(), run()
	if len(first.Candidates) != len(second.Candidates) {
		t.Fatalf("runs differ in size: %d vs %d", len(first.Candidates), len(second.Candidates))
	}
	for i := range first.Candidates {
		if first.Candidates[i] != second.Candidates[i] {
			t.Fatalf("runs diverged at rank %d: %+v vs %+v",
				i+1, first.Candidates[i], second.Candidates[i])
		}
	}
}
