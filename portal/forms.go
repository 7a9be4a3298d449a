package portal

import (
	"strings"
	"time"

	"github.com/use-agent/fonfetch/models"
	"github.com/use-agent/fonfetch/parser"
	"github.com/use-agent/fonfetch/scraper"
)

// ComparisonForm builds the body of the comparison returns endpoint. The
// portal expects every key present, blank when unused, in this order. A
// zero Query is the broad pull over every fund.
func ComparisonForm(q models.Query) *scraper.Form {
	codes := q.FundTypeCode
	if codes == "" {
		codes = strings.ToUpper(strings.TrimSpace(q.FundCode))
	}
	return scraper.NewForm().
		Set("calismatipi", q.WorkingType).
		Set("fontip", q.FundType).
		Set("sfontur", q.SubFundType).
		Set("kurucukod", q.FounderCode).
		Set("fongrup", q.FundGroup).
		Set("bastarih", portalDate(q.Start)).
		Set("bittarih", portalDate(q.End)).
		Set("fonturkod", codes).
		Set("fonunvantip", q.TitleType).
		Set("strperiod", q.Period).
		Set("islemdurum", q.TradingStatus)
}

// HistoryForm builds the body of the historical NAV endpoint.
func HistoryForm(code string, start, end time.Time) *scraper.Form {
	return scraper.NewForm().
		Set("fonturkod", strings.ToUpper(strings.TrimSpace(code))).
		Set("bastarih", portalDate(start)).
		Set("bittarih", portalDate(end))
}

func portalDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return parser.FormatPortalDate(t)
}
