package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProductFilter — выборка товаров для складского списка.
type ProductFilter struct {
	// LowStockOnly оставляет товары, у которых корень или вариант не выше Threshold.
	LowStockOnly bool
	Threshold    int
	Limit        int
}

// Match проверяет товар на соответствие фильтру.
func (f ProductFilter) Match(p *Product) bool {
	return !f.LowStockOnly || p.IsLowStock(f.Threshold)
}

// DashboardStats — сводка для панели администратора.
type DashboardStats struct {
	TotalRevenue  decimal.Decimal
	TotalOrders   int
	PendingOrders int
}

// RevenueGranularity — шаг группировки выручки.
type RevenueGranularity string

const (
	GranularityDay   RevenueGranularity = "day"
	GranularityWeek  RevenueGranularity = "week"
	GranularityMonth RevenueGranularity = "month"
	GranularityYear  RevenueGranularity = "year"
)

// ParseGranularity разбирает гранулярность; пустая строка означает day.
func ParseGranularity(raw string) (RevenueGranularity, error) {
	switch g := RevenueGranularity(strings.ToLower(strings.TrimSpace(raw))); g {
	case "":
		return GranularityDay, nil
	case GranularityDay, GranularityWeek, GranularityMonth, GranularityYear:
		return g, nil
	default:
		return "", fmt.Errorf("%w: unknown granularity %q", ErrInvalidRevenueRange, raw)
	}
}

// PeriodKey возвращает ключ периода в UTC: 2006-01-02, 2006-WW, 2006-01 или 2006.
// Неделя считается от воскресенья, дни до первого воскресенья года попадают в неделю 00.
func (g RevenueGranularity) PeriodKey(t time.Time) string {
	t = t.UTC()
	switch g {
	case GranularityWeek:
		week := (t.YearDay() - 1 + 7 - int(t.Weekday())) / 7
		return fmt.Sprintf("%04d-%02d", t.Year(), week)
	case GranularityMonth:
		return t.Format("2006-01")
	case GranularityYear:
		return t.Format("2006")
	default:
		return t.Format("2006-01-02")
	}
}

// RevenueQuery — интервал [From, To) и шаг группировки. Нулевая граница не ограничивает.
type RevenueQuery struct {
	Granularity RevenueGranularity
	From        time.Time
	To          time.Time
}

// Contains проверяет, что момент попадает в интервал запроса.
func (q RevenueQuery) Contains(t time.Time) bool {
	if !q.From.IsZero() && t.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !t.Before(q.To) {
		return false
	}
	return true
}

// RevenuePoint — выручка и число заказов за один период.
type RevenuePoint struct {
	Period  string
	Revenue decimal.Decimal
	Orders  int
}

// RevenueSeriesBuilder складывает выручку в периоды одной гранулярности.
type RevenueSeriesBuilder struct {
	granularity RevenueGranularity
	points      map[string]*RevenuePoint
}

func NewRevenueSeriesBuilder(g RevenueGranularity) *RevenueSeriesBuilder {
	return &RevenueSeriesBuilder{granularity: g, points: make(map[string]*RevenuePoint)}
}

// Add относит выручку и число заказов к периоду момента at.
func (b *RevenueSeriesBuilder) Add(at time.Time, revenue decimal.Decimal, orders int) {
	key := b.granularity.PeriodKey(at)
	point, ok := b.points[key]
	if !ok {
		point = &RevenuePoint{Period: key, Revenue: decimal.Zero}
		b.points[key] = point
	}
	point.Revenue = point.Revenue.Add(revenue)
	point.Orders += orders
}

// Points возвращает периоды по возрастанию.
func (b *RevenueSeriesBuilder) Points() []RevenuePoint {
	result := make([]RevenuePoint, 0, len(b.points))
	for _, point := range b.points {
		result = append(result, *point)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Period < result[j].Period })
	return result
}
