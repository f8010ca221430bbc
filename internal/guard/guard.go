// Package guard validates the currency/country/amount triple of a quote
// snapshot before it enters the cart. It reasons about currency identity
// only and never converts amounts; a stated currency that contradicts the
// origin country's canonical currency can inflate a total by orders of
// magnitude once a downstream display conversion is applied.
package guard

import (
	"fmt"

	"github.com/and161185/cartsync/internal/model"
)

// IssueCode identifies a single validation finding.
type IssueCode string

const (
	CodeCurrencyCountryMismatch IssueCode = "CURRENCY_COUNTRY_MISMATCH"
	CodeMissingCurrency         IssueCode = "MISSING_CURRENCY"
	CodeMissingCountry          IssueCode = "MISSING_COUNTRY"
	CodeUnknownCurrency         IssueCode = "UNKNOWN_CURRENCY"
	CodeNonPositiveAmount       IssueCode = "NON_POSITIVE_AMOUNT"
)

// Issue is one validation finding with a human-readable detail.
type Issue struct {
	Code   IssueCode
	Detail string
}

// Result reports the outcome of a validation pass. SuggestedCurrency is a
// suggestion only; the guard never rewrites a snapshot, because correcting
// a financial amount without an audit trail is unsafe.
type Result struct {
	Valid             bool
	Issues            []Issue
	SuggestedCurrency string
}

// Corrupted reports whether the result contains a currency/country mismatch.
func (r Result) Corrupted() bool {
	for _, is := range r.Issues {
		if is.Code == CodeCurrencyCountryMismatch {
			return true
		}
	}
	return false
}

// Validate checks a quote snapshot. Pure function over its input; the
// caller decides how to log and surface the result.
func Validate(q model.QuoteSnapshot) Result {
	var res Result

	if q.Currency == "" {
		res.Issues = append(res.Issues, Issue{CodeMissingCurrency, "quote has no currency"})
	}
	if q.OriginCountry == "" {
		res.Issues = append(res.Issues, Issue{CodeMissingCountry, "quote has no origin country"})
	}
	if !q.Price.IsPositive() {
		res.Issues = append(res.Issues, Issue{
			CodeNonPositiveAmount,
			fmt.Sprintf("price %s is not positive", q.Price.String()),
		})
	}

	if q.Currency != "" {
		if _, known := knownCurrencies[q.Currency]; !known {
			res.Issues = append(res.Issues, Issue{
				CodeUnknownCurrency,
				fmt.Sprintf("currency %s is not a known ISO 4217 code", q.Currency),
			})
		}
	}

	if q.Currency != "" && q.OriginCountry != "" {
		if canonical, ok := countryCurrency[q.OriginCountry]; ok && canonical != q.Currency {
			res.Issues = append(res.Issues, Issue{
				CodeCurrencyCountryMismatch,
				fmt.Sprintf("currency %s does not match origin country %s (expected %s)",
					q.Currency, q.OriginCountry, canonical),
			})
			res.SuggestedCurrency = canonical
		}
	}

	res.Valid = len(res.Issues) == 0
	return res
}
