package models

import "github.com/shopspring/decimal"

// ClaimUnit is the classified unit of a numeric claim.
type ClaimUnit string

const (
	UnitCount    ClaimUnit = "count"
	UnitPercent  ClaimUnit = "percent"
	UnitCurrency ClaimUnit = "currency"
)

// NumericClaim is one numeric token extracted from an agent narrative.
type NumericClaim struct {
	Value           decimal.Decimal `json:"value"`
	Unit            ClaimUnit       `json:"unit"`
	SpanStart       int             `json:"span_start"`
	SpanEnd         int             `json:"span_end"`
	Sentence        string          `json:"sentence"`
	CitationPrefix  string          `json:"citation_prefix,omitempty"`
	QueryID         string          `json:"query_id,omitempty"`
	SourceFamily    string          `json:"source_family,omitempty"`
}

// IssueCode enumerates the verifier's output issue codes.
type IssueCode string

const (
	IssueClaimUncited      IssueCode = "ClaimUncited"
	IssueClaimNotFound     IssueCode = "ClaimNotFound"
	IssueUnitMismatch      IssueCode = "UnitMismatch"
	IssueMathInconsistent  IssueCode = "MathInconsistent"
	IssueRoundingMismatch  IssueCode = "RoundingMismatch"
	IssueAmbiguousSource   IssueCode = "AmbiguousSource"
)

// Severity is the severity level of a verification issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// VerificationIssue is one problem the verifier found with a claim.
type VerificationIssue struct {
	Code     IssueCode    `json:"code"`
	Severity Severity     `json:"severity"`
	Claim    NumericClaim `json:"claim"`
	Detail   string       `json:"detail,omitempty"`
}

// ClaimBinding records whether a claim was matched to a prefetched result.
type ClaimBinding struct {
	Claim           NumericClaim `json:"claim"`
	Matched         bool         `json:"matched"`
	MatchedQueryID  string       `json:"matched_query_id,omitempty"`
	MatchedLocation string       `json:"matched_location,omitempty"`
}

// MathChecks records the outcome of the narrative's percent-sum check.
type MathChecks struct {
	PercentGroupsChecked int  `json:"percent_groups_checked"`
	AllSumTo100          bool `json:"all_sum_to_100"`
}

// VerificationReport is the verifier's output for one agent narrative.
type VerificationReport struct {
	OK            bool                 `json:"ok"`
	ClaimsTotal   int                  `json:"claims_total"`
	ClaimsMatched int                  `json:"claims_matched"`
	Issues        []VerificationIssue  `json:"issues,omitempty"`
	MathChecks    MathChecks           `json:"math_checks"`
	Bindings      []ClaimBinding       `json:"bindings,omitempty"`
}
