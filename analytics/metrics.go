package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/futures-journal/journal"
	"github.com/rustyeddy/futures-journal/pnl"
)

// Metric computes one named snapshot value from a user's trades. Trades are
// passed in canonical order: trade_date, entry_time, id. A nil value is
// stored as JSON null and means the metric is undefined for these trades.
type Metric struct {
	Name    string
	Compute func(trades []journal.Trade) (any, error)
}

const (
	MetricTotalTrades   = "total_trades"
	MetricWinningTrades = "winning_trades"
	MetricLosingTrades  = "losing_trades"
	MetricWinRate       = "win_rate"
	MetricTotalPnL      = "total_pnl"
	MetricAveragePnL    = "average_pnl"
	MetricAverageWin    = "average_win"
	MetricAverageLoss   = "average_loss"
	MetricGrossProfit   = "gross_profit"
	MetricGrossLoss     = "gross_loss"
	MetricTotalFees     = "total_fees"
	MetricLargestWin    = "largest_win"
	MetricLargestLoss   = "largest_loss"
	MetricMaxWinStreak  = "max_win_streak"
	MetricMaxLossStreak = "max_loss_streak"
	MetricCurrentStreak = "current_streak"
	MetricProfitFactor  = "profit_factor"
	MetricExpectancy    = "expectancy"
	MetricDailyPnL      = "daily_pnl"
	MetricWeeklyPnL     = "weekly_pnl"
	MetricMonthlyPnL    = "monthly_pnl"
)

// DefaultMetrics is the metric set stored for every user.
func DefaultMetrics() []Metric {
	return []Metric{
		{MetricTotalTrades, func(t []journal.Trade) (any, error) { return len(t), nil }},
		{MetricWinningTrades, func(t []journal.Trade) (any, error) { return len(wins(t)), nil }},
		{MetricLosingTrades, func(t []journal.Trade) (any, error) { return len(losses(t)), nil }},
		{MetricWinRate, winRate},
		{MetricTotalPnL, func(t []journal.Trade) (any, error) { return money(sumNet(t)), nil }},
		{MetricAveragePnL, func(t []journal.Trade) (any, error) { return average(sumNet(t), len(t)), nil }},
		{MetricAverageWin, func(t []journal.Trade) (any, error) { w := wins(t); return average(sumNet(w), len(w)), nil }},
		{MetricAverageLoss, func(t []journal.Trade) (any, error) { l := losses(t); return average(sumNet(l), len(l)), nil }},
		{MetricGrossProfit, func(t []journal.Trade) (any, error) { return money(sumNet(wins(t))), nil }},
		{MetricGrossLoss, func(t []journal.Trade) (any, error) { return money(sumNet(losses(t)).Abs()), nil }},
		{MetricTotalFees, totalFees},
		{MetricLargestWin, largestWin},
		{MetricLargestLoss, largestLoss},
		{MetricMaxWinStreak, func(t []journal.Trade) (any, error) { s := streaks(t); return s.maxWin, nil }},
		{MetricMaxLossStreak, func(t []journal.Trade) (any, error) { s := streaks(t); return s.maxLoss, nil }},
		{MetricCurrentStreak, func(t []journal.Trade) (any, error) { s := streaks(t); return s.current, nil }},
		{MetricProfitFactor, profitFactor},
		{MetricExpectancy, expectancy},
		{MetricDailyPnL, func(t []journal.Trade) (any, error) { return bucket(t, dailyKey) }},
		{MetricWeeklyPnL, func(t []journal.Trade) (any, error) { return bucket(t, weeklyKey) }},
		{MetricMonthlyPnL, func(t []journal.Trade) (any, error) { return bucket(t, monthlyKey) }},
	}
}

func wins(trades []journal.Trade) []journal.Trade {
	var out []journal.Trade
	for _, t := range trades {
		if t.NetPnL > 0 {
			out = append(out, t)
		}
	}
	return out
}

func losses(trades []journal.Trade) []journal.Trade {
	var out []journal.Trade
	for _, t := range trades {
		if t.NetPnL < 0 {
			out = append(out, t)
		}
	}
	return out
}

func sumNet(trades []journal.Trade) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		total = total.Add(decimal.NewFromFloat(t.NetPnL))
	}
	return total
}

// money rounds to cents for storage.
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func average(total decimal.Decimal, n int) any {
	if n == 0 {
		return nil
	}
	return money(total.Div(decimal.NewFromInt(int64(n))))
}

// winRate is the percentage of trades with positive net pnl.
func winRate(trades []journal.Trade) (any, error) {
	if len(trades) == 0 {
		return nil, nil
	}
	rate := decimal.NewFromInt(int64(len(wins(trades)))).
		Div(decimal.NewFromInt(int64(len(trades)))).
		Mul(decimal.NewFromInt(100))
	return money(rate), nil
}

func totalFees(trades []journal.Trade) (any, error) {
	fees := make([]float64, len(trades))
	for i, t := range trades {
		fees[i] = t.Fees
	}
	return pnl.Sum(fees...), nil
}

func largestWin(trades []journal.Trade) (any, error) {
	best := 0.0
	for _, t := range trades {
		if t.NetPnL > best {
			best = t.NetPnL
		}
	}
	return best, nil
}

func largestLoss(trades []journal.Trade) (any, error) {
	worst := 0.0
	for _, t := range trades {
		if t.NetPnL < worst {
			worst = t.NetPnL
		}
	}
	return worst, nil
}

// profitFactor is gross profit over gross loss, undefined without losses.
func profitFactor(trades []journal.Trade) (any, error) {
	loss := sumNet(losses(trades)).Abs()
	if loss.IsZero() {
		return nil, nil
	}
	return money(sumNet(wins(trades)).Div(loss)), nil
}

// expectancy is win rate times average win less loss rate times average loss.
func expectancy(trades []journal.Trade) (any, error) {
	if len(trades) == 0 {
		return nil, nil
	}
	n := decimal.NewFromInt(int64(len(trades)))
	w, l := wins(trades), losses(trades)

	e := decimal.Zero
	if len(w) > 0 {
		avgWin := sumNet(w).Div(decimal.NewFromInt(int64(len(w))))
		e = e.Add(decimal.NewFromInt(int64(len(w))).Div(n).Mul(avgWin))
	}
	if len(l) > 0 {
		avgLoss := sumNet(l).Abs().Div(decimal.NewFromInt(int64(len(l))))
		e = e.Sub(decimal.NewFromInt(int64(len(l))).Div(n).Mul(avgLoss))
	}
	return money(e), nil
}

type streakStats struct {
	maxWin  int
	maxLoss int
	current int // positive for wins, negative for losses
}

// streaks walks trades in order. A break-even trade ends both streaks.
func streaks(trades []journal.Trade) streakStats {
	var s streakStats
	for _, t := range trades {
		switch {
		case t.NetPnL > 0:
			if s.current < 0 {
				s.current = 0
			}
			s.current++
			if s.current > s.maxWin {
				s.maxWin = s.current
			}
		case t.NetPnL < 0:
			if s.current > 0 {
				s.current = 0
			}
			s.current--
			if -s.current > s.maxLoss {
				s.maxLoss = -s.current
			}
		default:
			s.current = 0
		}
	}
	return s
}

func dailyKey(d time.Time) string { return d.Format(journal.DateLayout) }

// weeklyKey is the Monday starting the trade's week.
func weeklyKey(d time.Time) string {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset).Format(journal.DateLayout)
}

func monthlyKey(d time.Time) string { return d.Format("2006-01") }

// bucket sums net pnl per calendar key derived from trade_date only.
func bucket(trades []journal.Trade, key func(time.Time) string) (map[string]float64, error) {
	sums := make(map[string]decimal.Decimal)
	for _, t := range trades {
		d, err := time.Parse(journal.DateLayout, t.TradeDate)
		if err != nil {
			return nil, err
		}
		k := key(d)
		sums[k] = sums[k].Add(decimal.NewFromFloat(t.NetPnL))
	}
	out := make(map[string]float64, len(sums))
	for k, v := range sums {
		out[k] = money(v)
	}
	return out, nil
}

// canonicalOrder sorts a copy of trades by trade_date, entry_time, id.
func canonicalOrder(trades []journal.Trade) []journal.Trade {
	out := make([]journal.Trade, len(trades))
	copy(out, trades)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TradeDate != b.TradeDate {
			return a.TradeDate < b.TradeDate
		}
		if !a.EntryTime.Equal(b.EntryTime) {
			return a.EntryTime.Before(b.EntryTime)
		}
		return a.ID < b.ID
	})
	return out
}
