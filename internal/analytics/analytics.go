// Package analytics reduces a user's deals into revenue figures. All amounts
// are reported in KRW; USD deals are converted at a fixed rate.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"sponsortracker/internal/models"
)

const (
	NoBrandID    = "no-brand"
	NoBrandLabel = "No brand"

	monthsShown = 12
	topBrands   = 10
)

type MonthlyRevenue struct {
	Month   string          `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
	Count   int             `json:"count"`
}

type BrandRevenue struct {
	BrandID   string          `json:"brand_id"`
	BrandName string          `json:"brand_name"`
	Revenue   decimal.Decimal `json:"revenue"`
	Count     int             `json:"count"`
}

type StatusSummary struct {
	Status      models.DealStatus `json:"status"`
	Label       string            `json:"label"`
	Count       int               `json:"count"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
}

type Summary struct {
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	TotalDeals     int             `json:"total_deals"`
	PaidRevenue    decimal.Decimal `json:"paid_revenue"`
	PendingRevenue decimal.Decimal `json:"pending_revenue"`
	AvgDealSize    decimal.Decimal `json:"avg_deal_size"`
}

type Column struct {
	Status models.DealStatus `json:"status"`
	Label  string            `json:"label"`
	Count  int               `json:"count"`
	Total  decimal.Decimal   `json:"total"`
	Deals  []models.Deal     `json:"deals"`
}

type Analyzer struct {
	usdToKRW decimal.Decimal
}

func New(usdToKRW decimal.Decimal) Analyzer {
	return Analyzer{usdToKRW: usdToKRW}
}

// KRW converts a deal amount into won.
func (a Analyzer) KRW(d models.Deal) decimal.Decimal {
	if d.Currency == models.CurrencyUSD {
		return d.Amount.Mul(a.usdToKRW)
	}
	return d.Amount
}

// Monthly buckets deals by creation month for the twelve months ending with
// the month of now, oldest first. Deals outside the range are ignored.
func (a Analyzer) Monthly(deals []models.Deal, now time.Time) []MonthlyRevenue {
	now = now.UTC()
	out := make([]MonthlyRevenue, monthsShown)
	index := make(map[string]int, monthsShown)
	for i := 0; i < monthsShown; i++ {
		m := time.Date(now.Year(), now.Month()-time.Month(monthsShown-1-i), 1, 0, 0, 0, 0, time.UTC)
		key := m.Format("2006-01")
		out[i] = MonthlyRevenue{Month: key, Revenue: decimal.Zero}
		index[key] = i
	}
	for _, d := range deals {
		i, ok := index[d.CreatedAt.UTC().Format("2006-01")]
		if !ok {
			continue
		}
		out[i].Revenue = out[i].Revenue.Add(a.KRW(d))
		out[i].Count++
	}
	return out
}

// ByBrand returns the ten brands with the most revenue. Deals without a
// brand are grouped under NoBrandID.
func (a Analyzer) ByBrand(deals []models.Deal) []BrandRevenue {
	var out []BrandRevenue
	index := map[string]int{}
	for _, d := range deals {
		id, name := NoBrandID, NoBrandLabel
		if d.Brand != nil && d.Brand.ID != "" {
			id, name = d.Brand.ID, d.Brand.Name
		}
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, BrandRevenue{BrandID: id, BrandName: name, Revenue: decimal.Zero})
		}
		out[i].Revenue = out[i].Revenue.Add(a.KRW(d))
		out[i].Count++
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Revenue.GreaterThan(out[j].Revenue) })
	if len(out) > topBrands {
		out = out[:topBrands]
	}
	if out == nil {
		out = []BrandRevenue{}
	}
	return out
}

// ByStatus reports count and total per status in pipeline order. Statuses
// with no deals are omitted.
func (a Analyzer) ByStatus(deals []models.Deal) []StatusSummary {
	sums := map[models.DealStatus]*StatusSummary{}
	for _, d := range deals {
		s, ok := sums[d.Status]
		if !ok {
			s = &StatusSummary{Status: d.Status, Label: d.Status.Label(), TotalAmount: decimal.Zero}
			sums[d.Status] = s
		}
		s.Count++
		s.TotalAmount = s.TotalAmount.Add(a.KRW(d))
	}
	out := []StatusSummary{}
	for _, st := range models.Pipeline {
		if s, ok := sums[st]; ok {
			out = append(out, *s)
		}
	}
	return out
}

func (a Analyzer) Summarize(deals []models.Deal) Summary {
	s := Summary{
		TotalRevenue:   decimal.Zero,
		PaidRevenue:    decimal.Zero,
		PendingRevenue: decimal.Zero,
		AvgDealSize:    decimal.Zero,
		TotalDeals:     len(deals),
	}
	for _, d := range deals {
		amt := a.KRW(d)
		s.TotalRevenue = s.TotalRevenue.Add(amt)
		if d.Status == models.StatusPaid {
			s.PaidRevenue = s.PaidRevenue.Add(amt)
		} else {
			s.PendingRevenue = s.PendingRevenue.Add(amt)
		}
	}
	if len(deals) > 0 {
		s.AvgDealSize = s.TotalRevenue.Div(decimal.NewFromInt(int64(len(deals)))).Round(2)
	}
	return s
}

// Board groups deals into one kanban column per status. Every column is
// present; deal order within a column follows the input.
func (a Analyzer) Board(deals []models.Deal) []Column {
	cols := make([]Column, len(models.Pipeline))
	index := make(map[models.DealStatus]int, len(models.Pipeline))
	for i, st := range models.Pipeline {
		cols[i] = Column{Status: st, Label: st.Label(), Total: decimal.Zero, Deals: []models.Deal{}}
		index[st] = i
	}
	for _, d := range deals {
		i, ok := index[d.Status]
		if !ok {
			continue
		}
		cols[i].Deals = append(cols[i].Deals, d)
		cols[i].Count++
		cols[i].Total = cols[i].Total.Add(a.KRW(d))
	}
	return cols
}
