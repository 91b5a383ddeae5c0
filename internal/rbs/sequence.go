// Package rbs holds the RBS expression estimate and design pipeline:
// sequence handling, the OSTIR predictor wrapper, the two-phase
// screen/refine candidate search, background tasks and the HTTP server
package rbs

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// non IUPAC nucleotide characters, stripped during normalization
var nonNucleotide = regexp.MustCompile(`[^ACGTUNRYSWKMBDHV]`)

// runs of sequence-like characters, for salvaging sequences out of
// arbitrary text
var nucleotideRun = regexp.MustCompile(`[ACGTUNRYSWKMBDHVacgtunryswkmbdhv]{8,}`)

// tabular header tokens hinting that an uploaded file is CSV
var csvHeaderHint = regexp.MustCompile(`(?i)\b(id|name|seq|sequence)\b`)

// column headers checked first when pulling a sequence out of a CSV
var preferredSeqColumns = map[string]bool{
	"sequence":       true,
	"seq":            true,
	"dna":            true,
	"nucleotide":     true,
	"nt":             true,
	"cds":            true,
	"cdssequence":    true,
	"codingsequence": true,
}

// Normalize uppercases a sequence and strips everything that isn't an
// IUPAC nucleotide code
func Normalize(raw string) string {
	return nonNucleotide.ReplaceAllString(strings.ToUpper(raw), "")
}

// FormatDNA normalizes a sequence and converts RNA to DNA
func FormatDNA(raw string) string {
	return strings.ReplaceAll(Normalize(raw), "U", "T")
}

// looksLikeSequence is whether a value normalizes to a plausible
// nucleotide sequence of at least minLength
func looksLikeSequence(value string, minLength int) bool {
	return len(Normalize(value)) >= minLength
}

// scanSequenceRuns finds the first sequence-like run in arbitrary text
func scanSequenceRuns(text string, minLength int) string {
	for _, run := range nucleotideRun.FindAllString(text, -1) {
		if candidate := Normalize(run); len(candidate) >= minLength {
			return candidate
		}
	}
	return ""
}

// ExtractFirstFASTASequence reads the first record's sequence from a
// FASTA file. Lines before the first header are ignored
func ExtractFirstFASTASequence(path string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read FASTA file at %s: %w", path, err)
	}

	var parts []string
	inSequence := false
	for _, line := range strings.Split(string(contents), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			if inSequence {
				break
			}
			inSequence = true
			continue
		}
		if inSequence {
			parts = append(parts, line)
		}
	}

	return Normalize(strings.Join(parts, "")), nil
}

// ExtractFirstCSVSequence pulls the first plausible sequence out of a
// CSV file, preferring recognizable sequence columns and falling back
// to a raw scan of the file contents
func ExtractFirstCSVSequence(path string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read CSV file at %s: %w", path, err)
	}
	text := string(contents)
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return scanSequenceRuns(text, 8), nil
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return scanSequenceRuns(text, 8), nil
		}

		// preferred columns first
		for i, key := range header {
			if i >= len(record) {
				break
			}
			normKey := strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(key)))
			if preferredSeqColumns[normKey] && looksLikeSequence(record[i], 8) {
				return Normalize(record[i]), nil
			}
		}

		// otherwise the longest sequence-like cell in the row
		longest := ""
		for _, cell := range record {
			if value := Normalize(cell); len(value) >= 8 && len(value) > len(longest) {
				longest = value
			}
		}
		if longest != "" {
			return longest, nil
		}
	}

	return scanSequenceRuns(text, 8), nil
}

// DetectInputType guesses whether an uploaded file holds FASTA, CSV or a
// bare sequence, from its leading content first and extension second
func DetectInputType(path string) string {
	preview := make([]byte, 2048)
	if f, err := os.Open(path); err == nil {
		n, _ := f.Read(preview)
		preview = preview[:n]
		f.Close()
	}
	text := strings.TrimLeft(string(preview), " \t\r\n")

	if strings.HasPrefix(text, ">") {
		return "fasta"
	}

	firstLine := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		firstLine = text[:i]
	}
	if csvHeaderHint.MatchString(firstLine) {
		return "csv"
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".fasta", ".fa", ".fas", ".fna", ".ffn":
		return "fasta"
	case ".csv", ".tsv", ".txt":
		return "csv"
	}

	return "string"
}

// SequenceContext is flanking sequence around a predicted start codon,
// attached to prediction rows so the UI can show where a hit landed
func SequenceContext(sequence string, startPosition int, flankBP int) map[string]interface{} {
	if startPosition <= 0 || sequence == "" {
		return nil
	}

	startIdx := startPosition - flankBP
	if startIdx < 1 {
		startIdx = 1
	}
	// include the full codon after the start position
	endIdx := startPosition + flankBP + 2
	if endIdx > len(sequence) {
		endIdx = len(sequence)
	}
	if startIdx > len(sequence) || endIdx < startIdx {
		return nil
	}

	return map[string]interface{}{
		"context_start_position": startIdx,
		"context_end_position":   endIdx,
		"sequence_context":       sequence[startIdx-1 : endIdx],
	}
}
