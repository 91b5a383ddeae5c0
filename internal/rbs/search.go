package rbs

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/jeageon/RBS-cal/config"
)

var rbsNucleotides = []string{"A", "C", "G", "T"}

// Progress is a point-in-time report from the design pipeline,
// forwarded to background tasks for polling
type Progress struct {
	Phase        string
	Progress     float64
	Iteration    int
	MaxIteration int
	Temperature  float64
	AcceptRatio  float64
	CurrentError float64
	BestError    float64
	Move         string
}

// ProgressFunc receives pipeline progress. May be nil
type ProgressFunc func(Progress)

// TracePoint is one sampled step of the annealing search
type TracePoint struct {
	Iteration        int     `json:"iteration"`
	Temperature      float64 `json:"temperature"`
	AcceptRatio      float64 `json:"accept_ratio"`
	CurrentError     float64 `json:"current_error"`
	BestError        float64 `json:"best_error"`
	CurrentRBSLength int     `json:"current_rbs_length"`
	Restarts         int     `json:"restarts"`
	LastMove         string  `json:"last_move"`
	Accepted         bool    `json:"accepted"`
}

// TemperatureReport echoes the annealing temperature schedule
type TemperatureReport struct {
	Init float64 `json:"init"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// SearchDiagnostics reports how the candidate search behaved. Errors
// are serialized as -1 while no finite score exists yet, since JSON has
// no encoding for +Inf
type SearchDiagnostics struct {
	Trace               []TracePoint           `json:"trace"`
	RestartLog          []string               `json:"restart_log"`
	MoveTypeAttempts    map[string]int         `json:"move_type_attempts"`
	MoveTypeAccepts     map[string]int         `json:"move_type_accepts"`
	RestartCount        int                    `json:"restart_count"`
	AcceptWindow        int                    `json:"accept_window"`
	IterationsRequested int                    `json:"iterations_requested"`
	Temperature         TemperatureReport      `json:"temperature"`
	SpacingWindow       [2]int                 `json:"spacing_window"`
	SDCores             []string               `json:"sd_cores"`
	EarlyExit           bool                   `json:"early_exit"`
	BestError           float64                `json:"best_error"`
	BestIteration       int                    `json:"best_iteration"`
	Refinement          *RefinementDiagnostics `json:"refinement,omitempty"`
}

// searchParams is the screener's input, already validated and windowed
type searchParams struct {
	Pre        string
	CDS        string
	Target     float64
	ASD        string
	Threads    int
	MinLength  int
	MaxLength  int
	Iterations int

	// Limit caps the unique candidate list handed to the refiner,
	// topN times the refinement multiplier
	Limit int

	// Seed makes a run reproducible when it parses as an integer
	Seed string
}

// screener is the state of one annealing run over the truncated
// sequence windows
type screener struct {
	conf *config.Config
	pred Predictor
	p    searchParams

	rnd       *rand.Rand
	targetLog float64

	// memoized evaluations, one predictor call per unique RBS
	evaluated map[string]*Candidate

	// accepted candidates in evaluation order
	accepted []*Candidate

	seedPool  []string
	poolIndex int

	current      string
	currentError float64
	temperature  float64
	stagnation   int

	acceptHistory []bool

	bestError     float64
	bestIteration int

	diag *SearchDiagnostics
}

// screen runs the screening phase: generate candidates by simulated
// annealing over the truncated windows, score each with the predictor,
// and return the unique accepted candidates ranked best-first
func screen(ctx context.Context, conf *config.Config, pred Predictor, p searchParams, progress ProgressFunc) ([]*Candidate, *SearchDiagnostics, error) {
	d := conf.Design
	acceptWindow := clampInt(d.AcceptWindow, 4, p.Iterations)

	diag := &SearchDiagnostics{
		Trace:               []TracePoint{},
		RestartLog:          []string{},
		MoveTypeAttempts:    map[string]int{"sub": 0, "ins": 0, "del": 0, "noop": 0, "random": 0},
		MoveTypeAccepts:     map[string]int{"sub": 0, "ins": 0, "del": 0, "noop": 0, "random": 0},
		AcceptWindow:        acceptWindow,
		IterationsRequested: p.Iterations,
		Temperature:         TemperatureReport{Init: d.TemperatureInit, Min: d.TemperatureMin, Max: d.TemperatureMax},
		SpacingWindow:       [2]int{d.SDSpacingMin, d.SDSpacingMax},
		SDCores:             conf.SDCoreList(),
		BestError:           -1,
		BestIteration:       -1,
	}

	if p.Iterations <= 0 || p.Limit <= 0 {
		diag.EarlyExit = true
		return nil, diag, nil
	}

	s := &screener{
		conf:      conf,
		pred:      pred,
		p:         p,
		rnd:       rand.New(rand.NewSource(searchSeed(p.Seed))),
		targetLog: math.Log10(p.Target),
		evaluated: map[string]*Candidate{},
		bestError: math.Inf(1),
		diag:      diag,
	}
	s.buildSeedPool()

	if err := s.run(ctx, progress); err != nil {
		return nil, diag, err
	}

	return s.ranked(), diag, nil
}

// searchSeed turns the optional request seed into an rng seed
func searchSeed(seed string) int64 {
	if parsed, err := strconv.ParseInt(seed, 10, 64); err == nil {
		return parsed
	}
	return time.Now().UnixNano()
}

// buildSeedPool pre-generates starting sequences for restarts
func (s *screener) buildSeedPool() {
	poolSize := clampInt(s.p.Iterations/5, 4, 12)
	for i := 0; i < poolSize*2 && len(s.seedPool) < poolSize; i++ {
		candidate := s.randomRBS()
		if !containsString(s.seedPool, candidate) {
			s.seedPool = append(s.seedPool, candidate)
		}
	}
	if len(s.seedPool) == 0 {
		s.seedPool = []string{s.randomRBS()}
	}
}

// run is the annealing loop: restart from the pool, mutate, evaluate,
// accept per the Metropolis rule, adapt temperature on the trailing
// accept ratio, restart again on stagnation
func (s *screener) run(ctx context.Context, progress ProgressFunc) error {
	d := s.conf.Design
	maxIter := s.p.Iterations
	patience := d.RestartPatience
	if patience < 1 {
		patience = 1
	}
	traceInterval := clampInt(maxIter/10, 10, 50)

	iteration := 0
	for iteration < maxIter {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.diag.RestartCount++
		s.restart(ctx, iteration)

		innerLimit := min(patience, maxIter-iteration)
		for inner := 0; inner < innerLimit; inner++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			iteration++

			candidate, move := s.nextMove(iteration, maxIter)
			s.diag.MoveTypeAttempts[move]++

			accepted := false
			if candidate != s.current {
				result := s.ensure(ctx, candidate)
				candidateError := math.Inf(1)
				if result != nil {
					candidateError = result.Error
				}
				rejected := result == nil || result.Rejected

				// every scored candidate counts toward the best, even
				// ones the walk doesn't move to
				improved := !rejected && candidateError < s.bestError
				if improved {
					s.bestError = candidateError
					s.bestIteration = iteration
				}

				if math.IsInf(s.currentError, 1) {
					accepted = !rejected && !math.IsInf(candidateError, 1)
				} else {
					delta := candidateError - s.currentError
					accepted = !rejected && acceptProbability(delta, s.temperature) >= s.rnd.Float64()
				}

				if accepted {
					s.current = candidate
					s.currentError = candidateError
					s.diag.MoveTypeAccepts[move]++
				}

				if improved {
					s.stagnation = 0
				} else {
					s.stagnation++
				}
			}

			s.adaptTemperature(accepted)

			if iteration%traceInterval == 0 || iteration == 1 || iteration == maxIter {
				s.trace(iteration, maxIter, move, accepted, progress)
			}

			if s.stagnation >= patience {
				break
			}
		}
	}

	if !math.IsInf(s.bestError, 1) {
		s.diag.BestError = s.bestError
		s.diag.BestIteration = s.bestIteration
	}
	return nil
}

// restart resets the walk from the next seed-pool entry
func (s *screener) restart(ctx context.Context, iteration int) {
	d := s.conf.Design

	if s.poolIndex < len(s.seedPool) {
		s.current = s.seedPool[s.poolIndex]
		s.poolIndex++
	} else {
		s.current = s.randomRBS()
	}

	result := s.ensure(ctx, s.current)
	if result != nil && !result.Rejected {
		s.currentError = result.Error
		if result.Error < s.bestError {
			s.bestError = result.Error
			s.bestIteration = iteration
		}
	} else {
		s.currentError = math.Inf(1)
	}

	s.stagnation = 0
	s.temperature = clampFloat(d.TemperatureInit, d.TemperatureMin, d.TemperatureMax)

	spacing := "N/A"
	if inferred, ok := s.inferSpacing(s.current); ok {
		spacing = strconv.Itoa(inferred)
	}
	s.diag.RestartLog = append(s.diag.RestartLog, fmt.Sprintf(
		"[Restart %d] Initial sequence: %s (len=%d, spacing=%s)",
		s.diag.RestartCount, s.current, len(s.current), spacing,
	))
}

// nextMove proposes the next candidate sequence
func (s *screener) nextMove(step, maxIter int) (string, string) {
	if s.current == "" {
		return s.randomRBS(), "random"
	}
	sub, ins, del := s.moveWeights(step, maxIter)
	return s.mutate(s.current, sub, ins, del)
}

// moveWeights shifts from exploration (indels while hot) toward
// exploitation (substitutions late in the run)
func (s *screener) moveWeights(step, total int) (sub, ins, del float64) {
	d := s.conf.Design

	ratio := 0.0
	if total > 1 {
		ratio = math.Min(1, float64(step-1)/float64(total-1))
	}
	sub = 1 + 7*ratio

	maxTemp := math.Max(d.TemperatureMax, d.TemperatureInit)
	tempFactor := (s.temperature - d.TemperatureMin) / math.Max(1e-12, maxTemp-d.TemperatureMin)
	tempFactor = clampFloat(tempFactor, 0, 1)

	explore := 1 + 2*tempFactor
	ins = math.Max(0.2, explore*(1-0.3*ratio))
	del = math.Max(0.2, explore*(1-0.3*ratio))
	return sub, ins, del
}

// adaptTemperature halves the temperature when accepting too often and
// doubles it when frozen, judged over a trailing window
func (s *screener) adaptTemperature(accepted bool) {
	d := s.conf.Design

	s.acceptHistory = append(s.acceptHistory, accepted)
	if len(s.acceptHistory) > s.diag.AcceptWindow {
		s.acceptHistory = s.acceptHistory[1:]
	}
	if len(s.acceptHistory) < s.diag.AcceptWindow {
		return
	}

	ratio := s.acceptRatio()
	if ratio > 0.5 {
		s.temperature = math.Max(d.TemperatureMin, s.temperature*0.5)
	} else if ratio < 0.05 {
		s.temperature = math.Min(d.TemperatureMax, s.temperature*2)
	}
}

func (s *screener) acceptRatio() float64 {
	if len(s.acceptHistory) == 0 {
		return 0
	}
	accepts := 0
	for _, a := range s.acceptHistory {
		if a {
			accepts++
		}
	}
	return float64(accepts) / float64(len(s.acceptHistory))
}

// ensure evaluates an RBS at most once, memoizing the result. A failed
// predictor call rejects the candidate rather than aborting the search
func (s *screener) ensure(ctx context.Context, rbsSeq string) *Candidate {
	if cached, ok := s.evaluated[rbsSeq]; ok {
		return cached
	}

	result := evaluateCandidate(ctx, s.pred, s.p.Pre, s.p.CDS, rbsSeq, s.p.ASD, s.p.Threads, s.targetLog, true)
	s.evaluated[rbsSeq] = result
	if !result.Rejected {
		s.accepted = append(s.accepted, result)
	}
	return result
}

// trace records a sampled step and forwards progress
func (s *screener) trace(iteration, maxIter int, move string, accepted bool, progress ProgressFunc) {
	point := TracePoint{
		Iteration:        iteration,
		Temperature:      s.temperature,
		AcceptRatio:      s.acceptRatio(),
		CurrentError:     finiteOr(s.currentError, -1),
		BestError:        finiteOr(s.bestError, -1),
		CurrentRBSLength: len(s.current),
		Restarts:         s.diag.RestartCount,
		LastMove:         move,
		Accepted:         accepted,
	}
	s.diag.Trace = append(s.diag.Trace, point)

	if progress != nil {
		progress(Progress{
			Phase:        "search",
			Progress:     float64(iteration) / float64(maxIter),
			Iteration:    iteration,
			MaxIteration: maxIter,
			Temperature:  s.temperature,
			AcceptRatio:  point.AcceptRatio,
			CurrentError: point.CurrentError,
			BestError:    point.BestError,
			Move:         move,
		})
	}
}

// ranked returns the unique accepted candidates sorted best-first,
// capped at the refinement oversampling limit
func (s *screener) ranked() []*Candidate {
	ordered := make([]*Candidate, len(s.accepted))
	copy(ordered, s.accepted)
	sortCandidates(ordered)

	var unique []*Candidate
	seen := map[string]bool{}
	for _, c := range ordered {
		if c.RBSSequence == "" || seen[c.RBSSequence] || c.PredictedExpression <= 0 {
			continue
		}
		seen[c.RBSSequence] = true
		unique = append(unique, c)
		if len(unique) >= s.p.Limit {
			break
		}
	}
	return unique
}

// randomRBS builds a random RBS that carries an SD core at a feasible
// spacing from the start codon. When no spacing fits, the first core is
// padded out to length instead
func (s *screener) randomRBS() string {
	d := s.conf.Design
	minLength := s.p.MinLength
	if minLength < 4 {
		minLength = 4
	}
	maxLength := s.p.MaxLength
	if maxLength < minLength {
		maxLength = minLength
	}
	length := minLength + s.rnd.Intn(maxLength-minLength+1)

	cores := s.diag.SDCores

	var feasible []int
	for spacing := d.SDSpacingMin; spacing <= d.SDSpacingMax; spacing++ {
		for _, core := range cores {
			if len(core)+spacing <= length {
				feasible = append(feasible, spacing)
				break
			}
		}
	}

	if len(feasible) > 0 {
		spacing := feasible[s.rnd.Intn(len(feasible))]
		var valid []string
		for _, core := range cores {
			if len(core)+spacing <= length {
				valid = append(valid, core)
			}
		}
		if len(valid) == 0 {
			valid = cores[:1]
		}
		core := valid[s.rnd.Intn(len(valid))]

		coreStart := length - len(core) - spacing
		left := s.randomBases(coreStart)
		right := s.randomBases(length - coreStart - len(core))
		return left + core + right
	}

	canonical := cores[0]
	for len(canonical) < length {
		canonical += "A"
	}
	return canonical[:length]
}

func (s *screener) randomBases(n int) string {
	bases := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		bases = append(bases, rbsNucleotides[s.rnd.Intn(len(rbsNucleotides))][0])
	}
	return string(bases)
}

// mutate applies one weighted substitution, insertion or deletion,
// respecting the length bounds
func (s *screener) mutate(sequence string, subWeight, insWeight, delWeight float64) (string, string) {
	if sequence == "" {
		return s.randomRBS(), "random"
	}

	minLength := s.p.MinLength
	maxLength := s.p.MaxLength

	moves := []string{"sub", "ins", "del"}
	weights := []float64{subWeight, insWeight, delWeight}
	if len(sequence) <= minLength {
		moves, weights = dropMove(moves, weights, "del")
	}
	if len(sequence) >= maxLength {
		moves, weights = dropMove(moves, weights, "ins")
	}
	if len(moves) == 0 {
		return sequence, "noop"
	}

	move := s.weightedChoice(moves, weights)
	seq := []byte(sequence)
	switch move {
	case "sub":
		idx := s.rnd.Intn(len(seq))
		var replacements []string
		for _, nt := range rbsNucleotides {
			if nt[0] != seq[idx] {
				replacements = append(replacements, nt)
			}
		}
		seq[idx] = replacements[s.rnd.Intn(len(replacements))][0]
		return string(seq), "sub"
	case "ins":
		idx := s.rnd.Intn(len(seq) + 1)
		nt := rbsNucleotides[s.rnd.Intn(len(rbsNucleotides))][0]
		seq = append(seq[:idx], append([]byte{nt}, seq[idx:]...)...)
		return string(seq), "ins"
	case "del":
		idx := s.rnd.Intn(len(seq))
		seq = append(seq[:idx], seq[idx+1:]...)
		return string(seq), "del"
	}
	return sequence, "noop"
}

func (s *screener) weightedChoice(moves []string, weights []float64) string {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return moves[0]
	}

	pick := s.rnd.Float64() * total
	for i, w := range weights {
		pick -= w
		if pick <= 0 {
			return moves[i]
		}
	}
	return moves[len(moves)-1]
}

// inferSpacing finds the rightmost SD core occurrence at a valid
// spacing from the 3' end of an RBS
func (s *screener) inferSpacing(sequence string) (int, bool) {
	d := s.conf.Design
	for _, core := range s.diag.SDCores {
		for idx := len(sequence) - len(core); idx >= 0; idx-- {
			if sequence[idx:idx+len(core)] == core {
				spacing := len(sequence) - (idx + len(core))
				if spacing >= d.SDSpacingMin && spacing <= d.SDSpacingMax {
					return spacing, true
				}
			}
		}
	}
	return 0, false
}

// acceptProbability is the Metropolis acceptance rule
func acceptProbability(delta, temperature float64) float64 {
	if temperature <= 0 || math.IsInf(delta, 0) || math.IsNaN(delta) || math.IsInf(temperature, 1) {
		return 0
	}
	if delta <= 0 {
		return 1
	}
	return math.Exp(-delta / temperature)
}

func dropMove(moves []string, weights []float64, name string) ([]string, []float64) {
	for i, move := range moves {
		if move == name {
			return append(moves[:i:i], moves[i+1:]...), append(weights[:i:i], weights[i+1:]...)
		}
	}
	return moves, weights
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func clampInt(value, low, high int) int {
	if high < low {
		high = low
	}
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func clampFloat(value, low, high float64) float64 {
	return math.Max(low, math.Min(high, value))
}

func finiteOr(value, fallback float64) float64 {
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return fallback
	}
	return value
}
