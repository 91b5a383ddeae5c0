package rbs

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func Test_ostirExec_args(t *testing.T) {
	o := &ostirExec{bin: "ostir", timeout: time.Minute}

	tests := []struct {
		name string
		req  PredictRequest
		want []string
	}{
		{
			"bare sequence",
			PredictRequest{Input: "ACGT"},
			[]string{"-i", "ACGT", "-t", "string"},
		},
		{
			"all options",
			PredictRequest{
				Input:         "input.fasta",
				InputType:     "fasta",
				ASD:           "ACCTCCTTA",
				Threads:       4,
				Start:         10,
				End:           90,
				PrintSequence: true,
				PrintASD:      true,
			},
			[]string{"-i", "input.fasta", "-t", "fasta", "-a", "ACCTCCTTA", "-j", "4", "-s", "10", "-e", "90", "-p", "-q"},
		},
		{
			"zero positions omitted",
			PredictRequest{Input: "ACGT", InputType: "string", Threads: 1},
			[]string{"-i", "ACGT", "-t", "string", "-j", "1"},
		},
	}

	for _, tt := range tests {
		if got := o.args(tt.req); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: args = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func Test_ostirExec_Command(t *testing.T) {
	o := &ostirExec{bin: "/opt/ostir/bin/ostir", timeout: time.Minute}

	command := o.Command(PredictRequest{Input: "ACGT", InputType: "string"})
	if command != "/opt/ostir/bin/ostir -i ACGT -t string" {
		t.Errorf("command = %q", command)
	}
}

func Test_humanizeOSTIRError(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		stdout string
		want   string
	}{
		{
			"missing python bindings",
			"ModuleNotFoundError: No module named 'RNA'",
			"",
			"pip install ViennaRNA",
		},
		{
			"vienna binaries not on path",
			"ViennaRNA is not properly installed or in PATH",
			"",
			"RNAfold, RNAsubopt, RNAeval",
		},
		{
			"vienna named anywhere",
			"",
			"error: viennarna backend unavailable",
			"RNAfold, RNAsubopt, RNAeval",
		},
		{
			"generic failure keeps output",
			"some traceback",
			"",
			"OSTIR failed (exit=2): some traceback",
		},
		{
			"silent failure",
			"",
			"",
			"OSTIR execution failed (exit=2).",
		},
	}

	for _, tt := range tests {
		got := humanizeOSTIRError(tt.stderr, tt.stdout, 2)
		if !strings.Contains(got, tt.want) {
			t.Errorf("%s: message = %q, want it to mention %q", tt.name, got, tt.want)
		}
	}
}
