package verifier

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/albarami/qnwis/pkg/models"
)

// Tolerances mirrors config.VerificationConfig's rounding/percent knobs.
type Tolerances struct {
	AbsEpsilon decimal.Decimal
	RelEpsilon decimal.Decimal
	EpsilonPct decimal.Decimal
	PreferQID  bool
}

// bind attempts to match claim against the candidate QueryResults,
// restricting candidates per spec §4.5 step 1, then searching row_count
// and row fields within tolerance, short-circuiting at the first match.
func bind(claim models.NumericClaim, results map[string]*models.QueryResult, tol Tolerances) models.ClaimBinding {
	candidates := candidateResults(claim, results, tol)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].QueryID < candidates[j].QueryID })

	for _, qr := range candidates {
		if claim.Unit == models.UnitCount {
			if withinAbs(claim.Value, decimal.NewFromInt(int64(qr.RowCount)), tol.AbsEpsilon) {
				return models.ClaimBinding{Claim: claim, Matched: true, MatchedQueryID: qr.QueryID, MatchedLocation: "row_count"}
			}
		}

		for i, row := range qr.Rows {
			fields := make([]string, 0, len(row))
			for field := range row {
				fields = append(fields, field)
			}
			sort.Strings(fields)
			for _, field := range fields {
				val, ok := asDecimal(row[field])
				if !ok {
					continue
				}
				if matchesValue(claim, val, tol) {
					return models.ClaimBinding{
						Claim:           claim,
						Matched:         true,
						MatchedQueryID:  qr.QueryID,
						MatchedLocation: fieldLocation(i, field),
					}
				}
			}
		}
	}

	return models.ClaimBinding{Claim: claim, Matched: false}
}

func fieldLocation(rowIndex int, field string) string {
	return "rows[" + strconv.Itoa(rowIndex) + "]." + field
}

// candidateResults restricts the search space per spec §4.5 step 1: a QID
// annotation (when prefer_query_id is on) narrows to that single result;
// otherwise a source_family narrows to matching-family results; otherwise
// every prefetched result is a candidate.
func candidateResults(claim models.NumericClaim, results map[string]*models.QueryResult, tol Tolerances) []*models.QueryResult {
	if claim.QueryID != "" && tol.PreferQID {
		if qr, ok := results[claim.QueryID]; ok {
			return []*models.QueryResult{qr}
		}
		return nil
	}

	if claim.SourceFamily != "" {
		var out []*models.QueryResult
		for _, qr := range results {
			if qr.Provenance.Dataset == claim.SourceFamily {
				out = append(out, qr)
			}
		}
		return out
	}

	out := make([]*models.QueryResult, 0, len(results))
	for _, qr := range results {
		out = append(out, qr)
	}
	return out
}

func matchesValue(claim models.NumericClaim, cellValue decimal.Decimal, tol Tolerances) bool {
	if claim.Unit == models.UnitPercent {
		return percentMatches(claim.Value, cellValue, tol.EpsilonPct)
	}
	return withinAbs(claim.Value, cellValue, tol.AbsEpsilon) || withinRel(claim.Value, cellValue, tol.RelEpsilon)
}

// percentMatches tries both representations per spec §4.5 step 4: claim in
// [0,1] vs data in [0,100], and vice versa.
func percentMatches(claimVal, cellVal decimal.Decimal, epsilonPct decimal.Decimal) bool {
	hundred := decimal.NewFromInt(100)
	direct := claimVal.Sub(cellVal).Abs().LessThanOrEqual(epsilonPct)
	claimScaled := claimVal.Mul(hundred)
	cellScaled := cellVal.Mul(hundred)
	scaledUp := claimScaled.Sub(cellVal).Abs().LessThanOrEqual(epsilonPct)
	scaledDown := claimVal.Sub(cellScaled).Abs().LessThanOrEqual(epsilonPct)
	return direct || scaledUp || scaledDown
}

func withinAbs(a, b, epsilon decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(epsilon)
}

func withinRel(a, b, relEpsilon decimal.Decimal) bool {
	if a.IsZero() {
		return b.IsZero()
	}
	diff := a.Sub(b).Abs()
	bound := a.Abs().Mul(relEpsilon)
	return diff.LessThanOrEqual(bound)
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, true
	case float64:
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}
