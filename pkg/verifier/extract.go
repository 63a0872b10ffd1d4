// Package verifier validates that every numeric claim in an agent's
// narrative is either present in the prefetched QueryResults within
// tolerance, or a trivial arithmetic combination of two values that are
// (spec §4.5). Extraction is lexical, not semantic — determinism over
// coverage, by design (spec §9).
//
// Grounded on pkg/mcp/router.go's small-anchored-regex-plus-helper-
// functions idiom (SplitToolName): one compiled pattern, plain functions
// around it, rather than a hand-rolled scanning state machine.
package verifier

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/albarami/qnwis/pkg/models"
)

// numberRe matches a signed integer or decimal, optionally
// thousands-separated, optionally followed immediately (after whitespace)
// by a unit marker.
var numberRe = regexp.MustCompile(`(-?\d{1,3}(?:,\d{3})+(?:\.\d+)?|-?\d+(?:\.\d+)?)\s*(%|percent|pp|bps|QAR|USD)?`)

var citationRe = regexp.MustCompile(`(?i)(per|according to)\s+([A-Za-z0-9_-]+)\s*:`)

var qidRe = regexp.MustCompile(`QID:([A-Za-z0-9_-]+(?:\.[A-Za-z0-9_-]+)*)`)

// yearRange bounds what "looks like a year" when ignore_years is set.
const yearMin, yearMax = 1900, 2100

// ExtractOptions mirrors the verification.* tolerances/flags relevant to
// extraction (spec §6.4).
type ExtractOptions struct {
	IgnoreYears        bool
	IgnoreNumbersBelow float64
}

// Extract scans narrative for numeric tokens and returns one NumericClaim
// per match, annotated with its enclosing sentence, any citation prefix
// found earlier in that sentence, and any inline QID annotation.
func Extract(narrative string, opts ExtractOptions) []models.NumericClaim {
	sentences := splitSentences(narrative)

	var claims []models.NumericClaim
	for _, sent := range sentences {
		citation := firstCitation(sent.text)
		citeLoc := citationRe.FindStringIndex(sent.text)
		qid := firstQID(sent.text)

		for _, loc := range numberRe.FindAllStringSubmatchIndex(sent.text, -1) {
			numStr := sent.text[loc[2]:loc[3]]
			var unitStr string
			if loc[4] != -1 {
				unitStr = sent.text[loc[4]:loc[5]]
			}

			value, err := parseNumber(numStr)
			if err != nil {
				continue
			}

			if opts.IgnoreYears && looksLikeYear(numStr, unitStr) {
				continue
			}

			absVal, _ := value.Abs().Float64()
			if absVal < opts.IgnoreNumbersBelow {
				continue
			}

			prefix := ""
			if citeLoc != nil && citeLoc[1] <= loc[0] {
				prefix = citation
			}

			claims = append(claims, models.NumericClaim{
				Value:          value,
				Unit:           classifyUnit(unitStr),
				SpanStart:      sent.offset + loc[0],
				SpanEnd:        sent.offset + loc[1],
				Sentence:       sent.text,
				CitationPrefix: prefix,
				QueryID:        qid,
			})
		}
	}
	return claims
}

func parseNumber(s string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(s, ",", "")
	return decimal.NewFromString(cleaned)
}

func looksLikeYear(numStr, unitStr string) bool {
	if unitStr != "" {
		return false
	}
	if strings.Contains(numStr, ".") || strings.Contains(numStr, ",") {
		return false
	}
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return false
	}
	return n >= yearMin && n <= yearMax
}

// classifyUnit maps a unit marker to its ClaimUnit per spec §4.5.
func classifyUnit(marker string) models.ClaimUnit {
	switch strings.ToLower(strings.TrimSpace(marker)) {
	case "%", "percent", "pp", "bps":
		return models.UnitPercent
	case "qar", "usd":
		return models.ClaimUnit("currency")
	default:
		return models.UnitCount
	}
}

type sentence struct {
	text   string
	offset int
}

// splitSentences splits on '.', '!', '?' followed by whitespace, retaining
// each sentence's offset in the original narrative so spans remain
// addressable against the caller's text.
func splitSentences(narrative string) []sentence {
	var out []sentence
	start := 0
	for i, r := range narrative {
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(narrative) || narrative[i+1] == ' ' || narrative[i+1] == '\n' {
				out = append(out, sentence{text: narrative[start : i+1], offset: start})
				start = i + 1
			}
		}
	}
	if start < len(narrative) {
		out = append(out, sentence{text: narrative[start:], offset: start})
	}
	return out
}

func firstCitation(sent string) string {
	m := citationRe.FindStringSubmatch(sent)
	if m == nil {
		return ""
	}
	return m[2]
}

func firstQID(sent string) string {
	m := qidRe.FindStringSubmatch(sent)
	if m == nil {
		return ""
	}
	return m[1]
}
