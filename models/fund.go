package models

import (
	"fmt"
	"strings"
	"time"
)

// Date is a civil date in the portal's reference time zone. It marshals as
// "2006-01-02".
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate truncates t to its calendar day in t's location.
func NewDate(year int, month time.Month, day int, loc *time.Location) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, loc)}
}

func (d Date) String() string { return d.Format(dateLayout) }

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

// FundRecord is one fund's identity and fixed-horizon returns. Any field the
// upstream omits or sends unparsable is nil.
type FundRecord struct {
	FundCode      string   `json:"fundCode"`
	FundName      *string  `json:"fundName"`
	UmbrellaType  *string  `json:"umbrellaType"`
	Issuer        *string  `json:"issuer"`
	InceptionDate *Date    `json:"inceptionDate"`
	ExpenseRatio  *float64 `json:"expenseRatio"`
	Getiri1A      *float64 `json:"getiri1A"`
	Getiri3A      *float64 `json:"getiri3A"`
	Getiri6A      *float64 `json:"getiri6A"`
	Getiri1Y      *float64 `json:"getiri1Y"`
	GetiriYB      *float64 `json:"getiriYB"`
	Getiri3Y      *float64 `json:"getiri3Y"`
	Getiri5Y      *float64 `json:"getiri5Y"`
}

// PriceRecord is one day of a fund's published NAV data.
type PriceRecord struct {
	Date              Date     `json:"date"`
	FundCode          string   `json:"fundCode"`
	FundName          *string  `json:"fundName"`
	Price             *float64 `json:"price"`
	OutstandingShares *int64   `json:"outstandingShares"`
	HolderCount       *int64   `json:"holderCount"`
	TotalValue        *float64 `json:"totalValue"`
}

// PerformanceRecord is a fund's return over a caller-chosen date range.
type PerformanceRecord struct {
	FundCode     string   `json:"fundCode"`
	FundName     *string  `json:"fundName"`
	UmbrellaType *string  `json:"umbrellaType"`
	Getiri       *float64 `json:"getiri"`
}

// Query holds the filter parameters of one acquisition. The extra comparison
// filters are sent verbatim and left blank by the broad pull.
type Query struct {
	FundCode string
	Start    time.Time
	End      time.Time

	WorkingType   string // calismatipi
	FundType      string // fontip
	SubFundType   string // sfontur
	FounderCode   string // kurucukod
	FundGroup     string // fongrup
	FundTypeCode  string // fonturkod
	TitleType     string // fonunvantip
	Period        string // strperiod
	TradingStatus string // islemdurum
}

// PayloadSource names the path that produced a payload.
type PayloadSource string

// Payload sources.
const (
	SourceNetwork PayloadSource = "network"
	SourceReplay  PayloadSource = "replay"
	SourceTable   PayloadSource = "table"
)

// Payload is the raw output of one acquisition flow: either a JSON body or
// rows of cell text keyed by logical column name.
type Payload struct {
	Source     PayloadSource
	Endpoint   string
	Body       string
	Table      []map[string]string
	CapturedAt time.Time
}
