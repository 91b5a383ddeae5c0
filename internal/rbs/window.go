package rbs

import (
	"fmt"

	"github.com/jeageon/RBS-cal/config"
)

// WindowReport describes how one side of the RBS insertion point was
// windowed for the screening pass
type WindowReport struct {
	InputLength int  `json:"input_length"`
	UsedLength  int  `json:"used_length"`
	MaxLength   int  `json:"max_length"`
	Truncated   bool `json:"truncated"`
}

// TruncationReport covers both sides of the insertion point
type TruncationReport struct {
	Pre TruncationReportSide `json:"pre"`
	CDS TruncationReportSide `json:"cds"`
}

// TruncationReportSide aliases WindowReport for response clarity
type TruncationReportSide = WindowReport

// Truncated is whether either side was windowed, which is what decides
// whether full-length refinement runs
func (t TruncationReport) Truncated() bool {
	return t.Pre.Truncated || t.CDS.Truncated
}

// truncateDesignSequences windows the screener's inputs: the
// pre-sequence keeps the nucleotides nearest the RBS insertion point
// and the CDS keeps the nucleotides from the start codon. Inputs at or
// under the cap pass through untouched with no warning
func truncateDesignSequences(preSeq, cdsSeq string, w config.WindowConfig) (pre, cds string, warnings []string, report TruncationReport) {
	preLen, cdsLen := len(preSeq), len(cdsSeq)

	report = TruncationReport{
		Pre: WindowReport{
			InputLength: preLen,
			UsedLength:  min(preLen, w.PreSeqMaxBP),
			MaxLength:   w.PreSeqMaxBP,
			Truncated:   preLen > w.PreSeqMaxBP,
		},
		CDS: WindowReport{
			InputLength: cdsLen,
			UsedLength:  min(cdsLen, w.CDSMaxBP),
			MaxLength:   w.CDSMaxBP,
			Truncated:   cdsLen > w.CDSMaxBP,
		},
	}

	pre, cds = preSeq, cdsSeq
	if report.Pre.Truncated {
		pre = preSeq[preLen-w.PreSeqMaxBP:]
		warnings = append(warnings, fmt.Sprintf(
			"Pre-sequence was longer than %d bp. Only the nearest %d bp to RBS was kept (%d -> %d).",
			w.PreSeqMaxBP, w.PreSeqMaxBP, preLen, len(pre),
		))
	}
	if report.CDS.Truncated {
		cds = cdsSeq[:w.CDSMaxBP]
		warnings = append(warnings, fmt.Sprintf(
			"CDS sequence was longer than %d bp. Only the first %d bp from the start codon was kept (%d -> %d).",
			w.CDSMaxBP, w.CDSMaxBP, cdsLen, len(cds),
		))
	}

	return pre, cds, warnings, report
}
