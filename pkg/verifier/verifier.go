package verifier

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/albarami/qnwis/pkg/metrics"
	"github.com/albarami/qnwis/pkg/models"
)

// Config mirrors config.VerificationConfig's knobs in decimal form, so the
// verifier's arithmetic (and hence its determinism guarantee, spec §8) is
// never subject to float64 rounding.
type Config struct {
	AbsEpsilon           decimal.Decimal
	RelEpsilon           decimal.Decimal
	EpsilonPct           decimal.Decimal
	SumTo100             bool
	RequireCitationFirst bool
	Strict               bool
	IgnoreNumbersBelow   float64
	IgnoreYears          bool
	PreferQueryID        bool
}

// DefaultConfig mirrors config.DefaultPipelineConfig's verification
// defaults (spec §6.4), expressed in decimal.
func DefaultConfig() Config {
	return Config{
		AbsEpsilon:           decimal.NewFromFloat(0.5),
		RelEpsilon:           decimal.NewFromFloat(0.01),
		EpsilonPct:           decimal.NewFromFloat(0.5),
		SumTo100:             true,
		RequireCitationFirst: true,
		Strict:               false,
		IgnoreNumbersBelow:   1.0,
		IgnoreYears:          true,
		PreferQueryID:        true,
	}
}

// Verifier validates agent narratives against prefetched QueryResults.
type Verifier struct {
	cfg     Config
	metrics *metrics.Metrics
}

// New builds a Verifier bound to one tolerance configuration. m may be
// nil, in which case issue counts are not recorded to prometheus.
func New(cfg Config, m *metrics.Metrics) *Verifier {
	return &Verifier{cfg: cfg, metrics: m}
}

// Verify extracts every numeric claim from narrative, binds each against
// results, checks citation-first and percent-sum-to-100 rules, and
// returns the assembled report. Same narrative + same results + same
// tolerances always yields the same report (spec §8 determinism).
func (v *Verifier) Verify(narrative string, results map[string]*models.QueryResult) models.VerificationReport {
	claims := Extract(narrative, ExtractOptions{
		IgnoreYears:        v.cfg.IgnoreYears,
		IgnoreNumbersBelow: v.cfg.IgnoreNumbersBelow,
	})

	tol := Tolerances{
		AbsEpsilon: v.cfg.AbsEpsilon,
		RelEpsilon: v.cfg.RelEpsilon,
		EpsilonPct: v.cfg.EpsilonPct,
		PreferQID:  v.cfg.PreferQueryID,
	}

	report := models.VerificationReport{ClaimsTotal: len(claims)}
	matched := 0

	for _, claim := range claims {
		if v.cfg.RequireCitationFirst && claim.CitationPrefix == "" && claim.QueryID == "" {
			report.Issues = append(report.Issues, models.VerificationIssue{
				Code:     models.IssueClaimUncited,
				Severity: severityFor(models.IssueClaimUncited, v.cfg.Strict),
				Claim:    claim,
				Detail:   "claim has no citation prefix or QID annotation",
			})
			report.Bindings = append(report.Bindings, models.ClaimBinding{Claim: claim, Matched: false})
			continue
		}

		binding := bind(claim, results, tol)
		report.Bindings = append(report.Bindings, binding)
		if binding.Matched {
			matched++
			continue
		}

		report.Issues = append(report.Issues, models.VerificationIssue{
			Code:     models.IssueClaimNotFound,
			Severity: severityFor(models.IssueClaimNotFound, v.cfg.Strict),
			Claim:    claim,
			Detail:   "no prefetched value matched within tolerance",
		})
	}
	report.ClaimsMatched = matched

	if v.cfg.SumTo100 {
		groupsChecked, allSum := checkPercentGroups(claims, v.cfg.EpsilonPct)
		report.MathChecks = models.MathChecks{PercentGroupsChecked: groupsChecked, AllSumTo100: allSum}
		if groupsChecked > 0 && !allSum {
			report.Issues = append(report.Issues, models.VerificationIssue{
				Code:     models.IssueMathInconsistent,
				Severity: severityFor(models.IssueMathInconsistent, v.cfg.Strict),
				Detail:   "a bullet group of percent claims does not sum to 100 within tolerance",
			})
		}
	} else {
		report.MathChecks = models.MathChecks{AllSumTo100: true}
	}

	report.OK = !hasErrorSeverity(report.Issues)
	v.recordIssues(report.Issues)
	return report
}

// recordIssues increments the per-code issue counter for every issue this
// Verify call produced. m may be nil (no-op).
func (v *Verifier) recordIssues(issues []models.VerificationIssue) {
	if v.metrics == nil {
		return
	}
	for _, issue := range issues {
		v.metrics.VerificationIssues.WithLabelValues(string(issue.Code)).Inc()
	}
}

// severityFor classifies how serious an issue code is. Under strict
// verification every issue is an Error (any issue is fatal to the run,
// spec §7). Under non-strict verification, a missing citation prefix
// alone is a soft, recoverable problem (Warning — it does not by itself
// mean a number is wrong), but every other issue code represents an
// actual unverified or inconsistent claim and must be able to flip
// VerificationReport.OK to false even when the run isn't strict, so the
// verify stage attaches its "verification_failed" warning (spec
// §4.1, §8 scenario 4) instead of silently reporting success.
func severityFor(code models.IssueCode, strict bool) models.Severity {
	if strict {
		return models.SeverityError
	}
	if code == models.IssueClaimUncited {
		return models.SeverityWarning
	}
	return models.SeverityError
}

func hasErrorSeverity(issues []models.VerificationIssue) bool {
	for _, issue := range issues {
		if issue.Severity == models.SeverityError {
			return true
		}
	}
	return false
}

// checkPercentGroups detects bullet groups of percent claims appearing on
// consecutive lines and sums each group, reporting whether every group
// sums to 100 within epsilonPct (spec §4.5 math-consistency check).
func checkPercentGroups(claims []models.NumericClaim, epsilonPct decimal.Decimal) (groupsChecked int, allSumTo100 bool) {
	groups := groupBySentencePrefix(claims)
	allSumTo100 = true
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sum := decimal.Zero
		for _, c := range group {
			sum = sum.Add(c.Value)
		}
		groupsChecked++
		if sum.Sub(decimal.NewFromInt(100)).Abs().GreaterThan(epsilonPct) {
			allSumTo100 = false
		}
	}
	return groupsChecked, allSumTo100
}

// groupBySentencePrefix approximates "bullet groups" without a markdown
// parser: consecutive percent claims whose sentences' first lines both
// look like bullet items are treated as one group; any other percent
// claim starts a new group.
func groupBySentencePrefix(claims []models.NumericClaim) [][]models.NumericClaim {
	var groups [][]models.NumericClaim
	var current []models.NumericClaim
	var lastLine string

	for _, c := range claims {
		if c.Unit != models.UnitPercent {
			continue
		}
		line := firstLine(c.Sentence)
		if len(current) > 0 && !sameBulletGroup(lastLine, line) {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, c)
		lastLine = line
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// sameBulletGroup treats two lines as the same group when both look like
// bullet items ("- " or "* " prefixed) — a coarse but deterministic
// heuristic consistent with the spec's "bullet groups" wording.
func sameBulletGroup(a, b string) bool {
	return isBullet(a) && isBullet(b)
}

func isBullet(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") || startsWithDigitDot(trimmed)
}

func startsWithDigitDot(s string) bool {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i > 0 && i < len(s) && s[i] == '.'
}
