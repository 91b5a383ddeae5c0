package rbs

import (
	"context"
	"strings"
	"sync"

	"github.com/jeageon/RBS-cal/config"
)

// stubPredictor is a deterministic in-process Predictor. Expression is
// a pure function of the input sequence, so repeated runs with the same
// seed walk identical candidate paths
type stubPredictor struct {
	// expression overrides the default scoring when set
	expression func(req PredictRequest) float64

	// err fails every call when set
	err error

	// reject drops sequences containing any of these substrings by
	// returning a non-positive expression for them
	reject []string

	mu    sync.Mutex
	calls int
}

func (s *stubPredictor) score(req PredictRequest) float64 {
	if s.expression != nil {
		return s.expression(req)
	}
	for _, substr := range s.reject {
		if strings.Contains(req.Input, substr) {
			return -1
		}
	}

	// GC-weighted pseudo-expression, always positive
	expr := 50.0
	for i, base := range req.Input {
		switch base {
		case 'G', 'C':
			expr += float64(i%7) * 13
		case 'A':
			expr += 3
		}
	}
	return expr
}

func (s *stubPredictor) Predict(ctx context.Context, req PredictRequest) ([]Row, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}

	start := req.Start
	if start <= 0 || start+2 > len(req.Input) {
		return nil, nil
	}

	return []Row{{
		"start_position": start,
		"start_codon":    req.Input[start-1 : start+2],
		"expression":     s.score(req),
	}}, nil
}

func (s *stubPredictor) Command(req PredictRequest) string {
	return "stub -i " + req.Input
}

func (s *stubPredictor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// testConfig is the default settings used across pipeline tests,
// built directly so tests don't touch process-wide Viper state
func testConfig() *config.Config {
	return &config.Config{
		OSTIR: config.OSTIRConfig{
			Bin:            "ostir",
			TimeoutSeconds: 120,
		},
		Window: config.WindowConfig{
			PreSeqMaxBP: 50,
			CDSMaxBP:    50,
		},
		Design: config.DesignConfig{
			Iterations:           60,
			TopCandidates:        10,
			RefinementMultiplier: 2,
			SDCores:              "AGGAGG",
			SDSpacingMin:         5,
			SDSpacingMax:         9,
			RestartPatience:      100,
			AcceptWindow:         20,
			TemperatureInit:      1.0,
			TemperatureMin:       1e-4,
			TemperatureMax:       8.0,
		},
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           8000,
			TaskTTLSeconds: 3600,
		},
	}
}
