package rbs

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jeageon/RBS-cal/config"
)

// start codons accepted at the head of the CDS input
var startCodons = map[string]bool{"ATG": true, "GTG": true, "TTG": true}

// DesignRequest is a validated design request: the full and windowed
// sequence contexts plus the search parameters
type DesignRequest struct {
	// complete, untruncated inputs
	FullPre string
	FullCDS string

	// windowed inputs the screener operates on
	Pre string
	CDS string

	TruncationWarnings []string
	Truncation         TruncationReport

	TargetExpression float64
	ASD              string
	Threads          int
	MinLength        int
	MaxLength        int
	Iterations       int
	TopN             int
	RandomSeed       string
}

// RankedCandidate is one row of the final design response
type RankedCandidate struct {
	Rank                int     `json:"rank"`
	RBSSequence         string  `json:"rbs_sequence"`
	PredictedExpression float64 `json:"predicted_expression"`
	TargetExpression    float64 `json:"target_expression"`
	Error               float64 `json:"error"`
	FoldRatio           float64 `json:"fold_ratio"`
	StartPosition       int     `json:"start_position"`
	StartCodon          string  `json:"start_codon"`
	FullSequence        string  `json:"full_sequence"`
}

// FullRefinementReport is the response block describing whether and how
// the second phase ran
type FullRefinementReport struct {
	Enabled              bool `json:"enabled"`
	FullPreLen           int  `json:"full_pre_len"`
	FullCDSLen           int  `json:"full_cds_len"`
	AnalysisPreLen       int  `json:"analysis_pre_len"`
	AnalysisCDSLen       int  `json:"analysis_cds_len"`
	RequestedCandidates  int  `json:"requested_candidates"`
	RefinementMultiplier int  `json:"refinement_multiplier"`
}

// DesignResult is the full design response
type DesignResult struct {
	OK               bool                 `json:"ok"`
	Columns          []string             `json:"columns"`
	TargetExpression float64              `json:"target_expression"`
	Iterations       int                  `json:"iterations"`
	PreLengthInput   int                  `json:"pre_length_input"`
	CDSLengthInput   int                  `json:"cds_length_input"`
	PreLength        int                  `json:"pre_length"`
	CDSLength        int                  `json:"cds_length"`
	FullLengthPre    int                  `json:"full_length_pre"`
	FullLengthCDS    int                  `json:"full_length_cds"`
	Candidates       []RankedCandidate    `json:"candidates"`
	Count            int                  `json:"count"`
	Diagnostics      *SearchDiagnostics   `json:"diagnostics"`
	Truncation       TruncationReport     `json:"truncation"`
	Warnings         []string             `json:"warnings"`
	FullRefinement   FullRefinementReport `json:"full_refinement"`
	Best             *RankedCandidate     `json:"best"`
}

var designResultColumns = []string{
	"rank",
	"rbs_sequence",
	"predicted_expression",
	"error",
	"fold_ratio",
	"start_position",
	"start_codon",
	"full_sequence",
}

// ParseDesignRequest validates form input against the configured
// defaults and windows the sequences for screening
func ParseDesignRequest(form url.Values, conf *config.Config) (*DesignRequest, error) {
	fullPre := FormatDNA(form.Get("preSequence"))
	fullCDS := FormatDNA(form.Get("postSequence"))

	pre, cds, warnings, report := truncateDesignSequences(fullPre, fullCDS, conf.Window)

	if pre == "" {
		return nil, fmt.Errorf("Pre-sequence input is required")
	}
	if len(cds) < 3 {
		return nil, fmt.Errorf("postSequence must include a start codon and CDS")
	}
	if !startCodons[cds[:3]] {
		return nil, fmt.Errorf("postSequence must start with ATG, GTG, or TTG")
	}

	target := strings.TrimSpace(form.Get("targetExpression"))
	if target == "" {
		return nil, fmt.Errorf("targetExpression must be a number")
	}
	targetExpression, err := strconv.ParseFloat(target, 64)
	if err != nil {
		return nil, fmt.Errorf("targetExpression must be a number")
	}
	if targetExpression <= 0 {
		return nil, fmt.Errorf("targetExpression must be greater than 0")
	}

	minLength, err := formInt(form, "rbsMinLength", 6)
	if err != nil {
		return nil, fmt.Errorf("rbsMinLength must be an integer")
	}
	maxLength, err := formInt(form, "rbsMaxLength", 12)
	if err != nil {
		return nil, fmt.Errorf("rbsMaxLength must be an integer")
	}
	if minLength < 3 || maxLength < minLength {
		return nil, fmt.Errorf("Invalid RBS length range")
	}

	iterations, err := formInt(form, "iterations", conf.Design.Iterations)
	if err != nil {
		return nil, fmt.Errorf("iterations must be an integer")
	}
	topN, err := formInt(form, "topCandidates", conf.Design.TopCandidates)
	if err != nil {
		return nil, fmt.Errorf("topCandidates must be an integer")
	}
	if iterations <= 0 || topN <= 0 {
		return nil, fmt.Errorf("iterations and topCandidates must be positive")
	}

	threads, err := formInt(form, "threads", 1)
	if err != nil {
		return nil, fmt.Errorf("Threads must be an integer")
	}
	if threads <= 0 {
		threads = 1
	}

	asd := strings.TrimSpace(form.Get("antiSd"))
	if asd == "" {
		asd = config.DefaultASD
	}

	seed := strings.TrimSpace(form.Get("randomSeed"))
	if seed == "" {
		seed = conf.Design.RandomSeed
	}

	return &DesignRequest{
		FullPre:            fullPre,
		FullCDS:            fullCDS,
		Pre:                pre,
		CDS:                cds,
		TruncationWarnings: warnings,
		Truncation:         report,
		TargetExpression:   targetExpression,
		ASD:                asd,
		Threads:            threads,
		MinLength:          minLength,
		MaxLength:          maxLength,
		Iterations:         iterations,
		TopN:               topN,
		RandomSeed:         seed,
	}, nil
}

// formInt reads an optional integer form value
func formInt(form url.Values, key string, fallback int) (int, error) {
	value := strings.TrimSpace(form.Get(key))
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

// Design runs the two-phase pipeline: screen candidates cheaply over
// the truncated windows, then, when truncation occurred, re-score the
// top subset against the complete sequence. Both phases and the final
// ranking are deterministic for a fixed seed and predictor.
func Design(ctx context.Context, conf *config.Config, pred Predictor, req *DesignRequest, progress ProgressFunc) (*DesignResult, error) {
	multiplier := conf.Design.RefinementMultiplier
	limit := req.TopN * multiplier

	// search progress fills the first 65% of task progress, matching
	// the two-phase split the poller sees
	searchProgress := progress
	if progress != nil {
		searchProgress = func(p Progress) {
			p.Progress *= 0.65
			progress(p)
		}
	}

	candidates, diag, err := screen(ctx, conf, pred, searchParams{
		Pre:        req.Pre,
		CDS:        req.CDS,
		Target:     req.TargetExpression,
		ASD:        req.ASD,
		Threads:    req.Threads,
		MinLength:  req.MinLength,
		MaxLength:  req.MaxLength,
		Iterations: req.Iterations,
		Limit:      limit,
		Seed:       req.RandomSeed,
	}, searchProgress)
	if err != nil {
		return nil, err
	}

	enabled := req.Truncation.Truncated()
	if enabled {
		refineProgress := progress
		if progress != nil {
			refineProgress = func(p Progress) {
				p.Progress = 0.65 + 0.35*p.Progress
				progress(p)
			}
		}

		candidates, diag.Refinement = refine(ctx, pred, candidates, refineParams{
			FullPre:    req.FullPre,
			FullCDS:    req.FullCDS,
			Target:     req.TargetExpression,
			ASD:        req.ASD,
			Threads:    req.Threads,
			TopN:       req.TopN,
			Multiplier: multiplier,
		}, refineProgress)
	} else {
		diag.Refinement = skippedRefinement(req.TopN, multiplier)
	}

	if len(candidates) > req.TopN {
		candidates = candidates[:req.TopN]
	}

	ranked := make([]RankedCandidate, 0, len(candidates))
	for i, c := range candidates {
		ranked = append(ranked, RankedCandidate{
			Rank:                i + 1,
			RBSSequence:         c.RBSSequence,
			PredictedExpression: c.PredictedExpression,
			TargetExpression:    req.TargetExpression,
			Error:               c.Error,
			FoldRatio:           c.PredictedExpression / req.TargetExpression,
			StartPosition:       c.StartPosition,
			StartCodon:          c.StartCodon,
			FullSequence:        c.FullSequence,
		})
	}

	warnings := req.TruncationWarnings
	if warnings == nil {
		warnings = []string{}
	}

	result := &DesignResult{
		OK:               true,
		Columns:          designResultColumns,
		TargetExpression: req.TargetExpression,
		Iterations:       req.Iterations,
		PreLengthInput:   req.Truncation.Pre.InputLength,
		CDSLengthInput:   req.Truncation.CDS.InputLength,
		PreLength:        len(req.Pre),
		CDSLength:        len(req.CDS),
		FullLengthPre:    len(req.FullPre),
		FullLengthCDS:    len(req.FullCDS),
		Candidates:       ranked,
		Count:            len(ranked),
		Diagnostics:      diag,
		Truncation:       req.Truncation,
		Warnings:         warnings,
		FullRefinement: FullRefinementReport{
			Enabled:              enabled,
			FullPreLen:           len(req.FullPre),
			FullCDSLen:           len(req.FullCDS),
			AnalysisPreLen:       len(req.Pre),
			AnalysisCDSLen:       len(req.CDS),
			RequestedCandidates:  req.TopN * multiplier,
			RefinementMultiplier: multiplier,
		},
	}
	if len(ranked) > 0 {
		best := ranked[0]
		result.Best = &best
	}

	return result, nil
}
