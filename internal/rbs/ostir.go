package rbs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jeageon/RBS-cal/config"
)

// hints in OSTIR stderr that point at a broken ViennaRNA install
const (
	hintMissingRNAModule = "No module named 'RNA'"
	hintViennaNotOnPath  = "ViennaRNA is not properly installed or in PATH"
	hintViennaMissing    = "RBS Calculator Vienna is missing dependency ViennaRNA"
)

const noBindingSites = "no binding sites were identified"

// PredictRequest is a single invocation of the external predictor
type PredictRequest struct {
	// Input is a raw sequence or a path to an input file
	Input string

	// InputType is string, fasta or csv (the ostir -t flag)
	InputType string

	// anti-Shine-Dalgarno sequence
	ASD string

	Threads int

	// 1-indexed start/end positions to restrict prediction to, 0 for unset
	Start int
	End   int

	PrintSequence bool
	PrintASD      bool
}

// Predictor computes expression predictions for a sequence. The
// production implementation shells out to the OSTIR binary; tests use a
// deterministic stub
type Predictor interface {
	Predict(ctx context.Context, req PredictRequest) ([]Row, error)
	Command(req PredictRequest) string
}

// ostirExec is a small utility struct for executing OSTIR on a sequence
type ostirExec struct {
	// path to the ostir executable
	bin string

	// per-invocation wall clock limit
	timeout time.Duration
}

// NewOSTIR returns a Predictor that runs the configured OSTIR binary
func NewOSTIR(conf *config.Config) Predictor {
	return &ostirExec{
		bin:     conf.OSTIR.Bin,
		timeout: time.Duration(conf.OSTIR.TimeoutSeconds) * time.Second,
	}
}

// args builds the ostir argument list for a request
func (o *ostirExec) args(req PredictRequest) []string {
	inputType := req.InputType
	if inputType == "" {
		inputType = "string"
	}

	args := []string{"-i", req.Input, "-t", inputType}
	if req.ASD != "" {
		args = append(args, "-a", req.ASD)
	}
	if req.Threads > 0 {
		args = append(args, "-j", strconv.Itoa(req.Threads))
	}
	if req.Start > 0 {
		args = append(args, "-s", strconv.Itoa(req.Start))
	}
	if req.End > 0 {
		args = append(args, "-e", strconv.Itoa(req.End))
	}
	if req.PrintSequence {
		args = append(args, "-p")
	}
	if req.PrintASD {
		args = append(args, "-q")
	}
	return args
}

// Command is the full command line for a request, echoed back in
// estimate responses
func (o *ostirExec) Command(req PredictRequest) string {
	return o.bin + " " + strings.Join(o.args(req), " ")
}

// Predict executes OSTIR and parses its output into rows. A run that
// identifies no binding sites returns zero rows and no error
func (o *ostirExec) Predict(ctx context.Context, req PredictRequest) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, o.bin, o.args(req)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("OSTIR execution timed out after %s", o.timeout)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("OSTIR executable not found: %s. Add to PATH or set OSTIR_BIN to a full executable path", o.bin)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, errors.New(humanizeOSTIRError(stderr.String(), stdout.String(), exitErr.ExitCode()))
		}
		return nil, fmt.Errorf("failed to execute OSTIR command: %w", err)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return nil, nil
	}

	columns, rows := ParseOutput(out)
	if len(columns) == 0 {
		if strings.Contains(strings.ToLower(out), noBindingSites) {
			return nil, nil
		}
		return nil, errors.New("failed to parse OSTIR output")
	}

	return rows, nil
}

// humanizeOSTIRError maps raw OSTIR failures onto actionable messages.
// Missing ViennaRNA shows up here rather than as an os/exec error
// because ostir itself starts fine and dies importing its bindings
func humanizeOSTIRError(stderr, stdout string, exitCode int) string {
	var parts []string
	for _, part := range []string{stderr, stdout} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	text := strings.Join(parts, "\n")
	if text == "" {
		return fmt.Sprintf("OSTIR execution failed (exit=%d).", exitCode)
	}

	if strings.Contains(text, hintMissingRNAModule) {
		return "OSTIR dependency missing: ViennaRNA Python module (RNA) not found. " +
			"Install in the same environment with: pip install ViennaRNA and then restart this app."
	}
	if strings.Contains(text, hintViennaNotOnPath) ||
		strings.Contains(text, hintViennaMissing) ||
		strings.Contains(strings.ToLower(text), "viennarn") {
		return "OSTIR runtime dependency issue: ViennaRNA command-line binaries are not ready in PATH. " +
			"Ensure RNAfold, RNAsubopt, RNAeval are installed and discoverable. " + viennaLocations()
	}

	return fmt.Sprintf("OSTIR failed (exit=%d): %s", exitCode, text)
}
