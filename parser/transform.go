package parser

import (
	"strings"

	"github.com/use-agent/fonfetch/models"
)

// Upstream key spellings seen over time, in lookup order. The lowercase
// Turkish names are the logical column names the table extractor emits.
var (
	aliasCode         = []string{"FONKODU", "FundCode", "fundCode", "Code", "fonKodu"}
	aliasName         = []string{"FONUNVAN", "FONADI", "FonAdi", "FundName", "fundName", "Name", "fonAdi", "fonUnvan"}
	aliasUmbrella     = []string{"FONTURACIKLAMA", "SEMSIYEFONTURU", "UmbrellaType", "umbrellaType", "Type", "SemsiyeFonTuru", "semsiyeFonTuru"}
	aliasIssuer       = []string{"Issuer", "issuer"}
	aliasInception    = []string{"InceptionDate", "inceptionDate"}
	aliasExpenseRatio = []string{"ExpenseRatio", "expenseRatio"}

	aliasGetiri1A = []string{"GETIRI1A", "getiri1A", "Getiri1A"}
	aliasGetiri3A = []string{"GETIRI3A", "getiri3A", "Getiri3A"}
	aliasGetiri6A = []string{"GETIRI6A", "getiri6A", "Getiri6A"}
	aliasGetiri1Y = []string{"GETIRI1Y", "getiri1Y", "Getiri1Y"}
	aliasGetiriYB = []string{"GETIRIYB", "getiriYB", "GetiriYB"}
	aliasGetiri3Y = []string{"GETIRI3Y", "getiri3Y", "Getiri3Y"}
	aliasGetiri5Y = []string{"GETIRI5Y", "getiri5Y", "Getiri5Y"}

	aliasDate       = []string{"TARIH", "tarih", "Date", "date"}
	aliasPrice      = []string{"FIYAT", "fiyat", "Price", "price"}
	aliasShares     = []string{"TEDPAYSAYISI", "paySayisi", "OutstandingShares", "outstandingShares"}
	aliasHolders    = []string{"KISISAYISI", "kisiSayisi", "HolderCount", "holderCount"}
	aliasTotalValue = []string{"PORTFOYBUYUKLUK", "toplamDeger", "TotalValue", "totalValue"}

	aliasGetiri = []string{"GETIRI", "getiri", "Getiri"}
)

// Funds maps rows to fund records. Rows without a usable fund code are
// dropped; order is preserved.
func Funds(rows []Row) []models.FundRecord {
	out := make([]models.FundRecord, 0, len(rows))
	for _, r := range rows {
		code := textOf(r.first(aliasCode))
		if code == nil || IsSentinel(*code) {
			continue
		}
		out = append(out, models.FundRecord{
			FundCode:      *code,
			FundName:      textOf(r.first(aliasName)),
			UmbrellaType:  textOf(r.first(aliasUmbrella)),
			Issuer:        textOf(r.first(aliasIssuer)),
			InceptionDate: dateOf(r.first(aliasInception)),
			ExpenseRatio:  numberOf(r.first(aliasExpenseRatio)),
			Getiri1A:      numberOf(r.first(aliasGetiri1A)),
			Getiri3A:      numberOf(r.first(aliasGetiri3A)),
			Getiri6A:      numberOf(r.first(aliasGetiri6A)),
			Getiri1Y:      numberOf(r.first(aliasGetiri1Y)),
			GetiriYB:      numberOf(r.first(aliasGetiriYB)),
			Getiri3Y:      numberOf(r.first(aliasGetiri3Y)),
			Getiri5Y:      numberOf(r.first(aliasGetiri5Y)),
		})
	}
	return out
}

// Prices maps rows to daily price records. Date and code identify a row, so
// a row missing either, or carrying a header or placeholder in their place,
// is dropped. A non-empty code keeps only that fund's rows.
func Prices(rows []Row, code string) []models.PriceRecord {
	out := make([]models.PriceRecord, 0, len(rows))
	for _, r := range rows {
		if raw := textOf(r.first(aliasDate)); raw == nil || IsSentinel(*raw) {
			continue
		}
		date := dateOf(r.first(aliasDate))
		if date == nil {
			continue
		}
		c := textOf(r.first(aliasCode))
		if c == nil || IsSentinel(*c) || !matchesCode(*c, code) {
			continue
		}
		fundCode := *c
		out = append(out, models.PriceRecord{
			Date:              *date,
			FundCode:          fundCode,
			FundName:          textOf(r.first(aliasName)),
			Price:             numberOf(r.first(aliasPrice)),
			OutstandingShares: intOf(r.first(aliasShares)),
			HolderCount:       intOf(r.first(aliasHolders)),
			TotalValue:        numberOf(r.first(aliasTotalValue)),
		})
	}
	return out
}

// Performance maps comparison rows to range-return records, keeping only
// the requested fund when code is non-empty.
func Performance(rows []Row, code string) []models.PerformanceRecord {
	out := make([]models.PerformanceRecord, 0, len(rows))
	for _, r := range rows {
		c := textOf(r.first(aliasCode))
		if c == nil || IsSentinel(*c) || !matchesCode(*c, code) {
			continue
		}
		out = append(out, models.PerformanceRecord{
			FundCode:     *c,
			FundName:     textOf(r.first(aliasName)),
			UmbrellaType: textOf(r.first(aliasUmbrella)),
			Getiri:       numberOf(r.first(aliasGetiri)),
		})
	}
	return out
}

// FilterFunds keeps the records whose code equals code, ignoring case.
func FilterFunds(funds []models.FundRecord, code string) []models.FundRecord {
	out := make([]models.FundRecord, 0, 1)
	for _, f := range funds {
		if matchesCode(f.FundCode, code) {
			out = append(out, f)
		}
	}
	return out
}

// matchesCode reports whether got satisfies the requested code. An empty
// request matches everything.
func matchesCode(got, want string) bool {
	if want == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want))
}

// IsSentinel reports header, filter and empty-placeholder cell text that
// grids render in place of data.
func IsSentinel(s string) bool {
	s = strings.TrimSpace(s)
	switch s {
	case "", "Fon", "Fon Türü", "Tarih", "Fon Kodu", "Fon Adı", "Fon Unvanı":
		return true
	}
	lower := strings.ToLower(s)
	for _, marker := range []string{
		"seçiniz",
		"tabloda herhangi bir veri mevcut değil",
		"kayıt bulunamadı",
		"no data available",
		"no matching records",
		"yükleniyor",
		"loading",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
