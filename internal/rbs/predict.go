package rbs

import (
	"context"
	"sort"
)

// EstimateRequest is a validated expression-estimate request
type EstimateRequest struct {
	Predict PredictRequest

	// normalized sequence used to decorate result rows with flanking
	// context, when the input form allows extracting one
	SequenceForContext string
}

// EstimateResult is the /run response
type EstimateResult struct {
	OK      bool     `json:"ok"`
	Command string   `json:"command"`
	Count   int      `json:"count"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Estimate runs one expression prediction: invoke the predictor, parse
// its rows and attach sequence context around each predicted start
func Estimate(ctx context.Context, pred Predictor, req EstimateRequest, progress ProgressFunc) (*EstimateResult, error) {
	report := func(p float64, phase string) {
		if progress != nil {
			progress(Progress{Phase: phase, Progress: p})
		}
	}

	report(0.15, "predict")
	rows, err := pred.Predict(ctx, req.Predict)
	if err != nil {
		return nil, err
	}

	report(0.75, "parse")

	result := &EstimateResult{
		OK:      true,
		Command: pred.Command(req.Predict),
		Count:   len(rows),
		Columns: []string{},
		Rows:    []Row{},
	}
	if len(rows) == 0 {
		report(1, "done")
		return result, nil
	}

	if req.SequenceForContext != "" {
		for _, row := range rows {
			position, ok := coerceFloat(row[colStartPosition])
			if !ok {
				continue
			}
			for key, value := range SequenceContext(req.SequenceForContext, int(position), 20) {
				row[key] = value
			}
		}
	}

	result.Rows = rows
	result.Columns = rowColumns(rows)

	report(1, "done")
	return result, nil
}

// rowColumns is the ordered column list for a row set: the preferred
// prediction columns first, then everything else the predictor emitted
func rowColumns(rows []Row) []string {
	preferred := []string{
		colStartCodon,
		colStartPosition,
		"expression",
		"RBS_distance_bp",
		"dG_total",
		"dG_rRNA:mRNA",
		"dG_mRNA",
		"dG_spacing",
		"dG_standby",
		"dG_start_codon",
	}

	seen := map[string]bool{}
	var columns []string
	for _, name := range preferred {
		if _, ok := rows[0][name]; ok {
			columns = append(columns, name)
			seen[name] = true
		}
	}
	var extra []string
	for name := range rows[0] {
		if !seen[name] {
			extra = append(extra, name)
			seen[name] = true
		}
	}
	sort.Strings(extra)
	return append(columns, extra...)
}
