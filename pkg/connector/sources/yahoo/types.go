package yahoo

import (
	"strings"
	"unicode"

	json "github.com/goccy/go-json"

	"github.com/tickflow/tickflow/pkg/errors"
)

// Statement identifies a quarterly financial statement family.
type Statement string

const (
	StatementIncome       Statement = "income_statement"
	StatementBalanceSheet Statement = "balance_sheet"
	StatementCashFlow     Statement = "cash_flow"
)

// FundamentalRow is a single reported value from a quarterly statement.
// Period is the as-of date in YYYY-MM-DD form and Field is the metric
// name in snake_case (total_revenue, net_income, ...).
type FundamentalRow struct {
	Symbol    string
	Statement Statement
	Period    string
	Field     string
	Value     float64
}

// statementTypes maps each statement to the timeseries type keys
// requested from the fundamentals endpoint.
var statementTypes = map[Statement][]string{
	StatementIncome: {
		"quarterlyTotalRevenue",
		"quarterlyGrossProfit",
		"quarterlyOperatingIncome",
		"quarterlyNetIncome",
	},
	StatementBalanceSheet: {
		"quarterlyTotalAssets",
		"quarterlyTotalLiabilitiesNetMinorityInterest",
		"quarterlyStockholdersEquity",
		"quarterlyCashAndCashEquivalents",
		"quarterlyLongTermDebt",
		"quarterlyShareIssued",
	},
	StatementCashFlow: {
		"quarterlyOperatingCashFlow",
		"quarterlyCapitalExpenditure",
		"quarterlyFreeCashFlow",
		"quarterlyNetIncome",
	},
}

type reportedValue struct {
	Raw float64 `json:"raw"`
}

type timeseriesEntry struct {
	AsOfDate      string         `json:"asOfDate"`
	PeriodType    string         `json:"periodType"`
	ReportedValue *reportedValue `json:"reportedValue"`
}

type timeseriesResponse struct {
	Timeseries struct {
		Result []map[string]json.RawMessage `json:"result"`
		Error  json.RawMessage              `json:"error"`
	} `json:"timeseries"`
}

// parseTimeseries flattens a fundamentals-timeseries response into rows.
// Each result block carries one metric series keyed by its type name;
// entries may be null for quarters Yahoo has no value for.
func parseTimeseries(body []byte, symbol string, statement Statement) ([]FundamentalRow, error) {
	var resp timeseriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to parse timeseries response")
	}

	var rows []FundamentalRow
	for _, result := range resp.Timeseries.Result {
		for _, typ := range statementTypes[statement] {
			raw, ok := result[typ]
			if !ok {
				continue
			}
			var entries []*timeseriesEntry
			if err := json.Unmarshal(raw, &entries); err != nil {
				continue
			}
			field := fieldName(typ)
			for _, entry := range entries {
				if entry == nil || entry.ReportedValue == nil || entry.AsOfDate == "" {
					continue
				}
				rows = append(rows, FundamentalRow{
					Symbol:    symbol,
					Statement: statement,
					Period:    entry.AsOfDate,
					Field:     field,
					Value:     entry.ReportedValue.Raw,
				})
			}
		}
	}
	return rows, nil
}

// fieldName converts a timeseries type key to a snake_case metric name,
// dropping the quarterly prefix: quarterlyTotalRevenue -> total_revenue.
func fieldName(typ string) string {
	name := strings.TrimPrefix(typ, "quarterly")
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
