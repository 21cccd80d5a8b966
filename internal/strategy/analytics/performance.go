package analytics

import (
	"math"
	"sort"
	"time"

	"confluenceBot/internal/domain"
)

// PerformanceMetrics summarizes a group of closed legs. PnL is the price move
// times quantity; there are no fees or balances.
type PerformanceMetrics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	NetPnL        float64
	GrossProfit   float64
	GrossLoss     float64 // negative or zero
	ProfitFactor  float64
	AverageWin    float64
	AverageLoss   float64
	Expectancy    float64 // average PnL per trade
	TotalR        float64
	AverageR      float64
	MaxDrawdown   float64 // deepest peak-to-trough fall of cumulative PnL

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration

	consecutiveWins   int
	consecutiveLosses int
	peak              float64
	totalDuration     time.Duration
	rTrades           int
}

// EquityPoint represents a point on the cumulative PnL curve.
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// Report is the output of AnalyzePerformance.
type Report struct {
	Overall        *PerformanceMetrics
	ByLabel        map[string]*PerformanceMetrics
	BySignalType   map[domain.SignalType]*PerformanceMetrics
	ByCloseReason  map[domain.CloseReason]int
	MonthlyReturns map[string]float64
	EquityCurve    []EquityPoint
}

// TradePnL returns the PnL of a closed leg.
func TradePnL(t domain.Trade) float64 {
	return t.PriceMove * t.Quantity
}

// AnalyzePerformance groups trades by leg label and by signal type and
// computes metrics for each group in exit-time order.
func AnalyzePerformance(trades []domain.Trade) *Report {
	report := &Report{
		Overall:        &PerformanceMetrics{},
		ByLabel:        make(map[string]*PerformanceMetrics),
		BySignalType:   make(map[domain.SignalType]*PerformanceMetrics),
		ByCloseReason:  make(map[domain.CloseReason]int),
		MonthlyReturns: make(map[string]float64),
		EquityCurve:    make([]EquityPoint, 0, len(trades)),
	}
	if len(trades) == 0 {
		return report
	}

	sorted := make([]domain.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExitTime.Before(sorted[j].ExitTime)
	})

	for _, trade := range sorted {
		pnl := TradePnL(trade)
		report.Overall.add(trade, pnl)
		group(report.ByLabel, trade.Label).add(trade, pnl)
		group(report.BySignalType, trade.SignalType).add(trade, pnl)
		report.ByCloseReason[trade.CloseReason]++
		report.MonthlyReturns[trade.ExitTime.Format("2006-01")] += pnl
		report.EquityCurve = append(report.EquityCurve, EquityPoint{
			Time:     trade.ExitTime,
			Value:    report.Overall.NetPnL,
			Drawdown: report.Overall.peak - report.Overall.NetPnL,
		})
	}

	report.Overall.finish()
	for _, m := range report.ByLabel {
		m.finish()
	}
	for _, m := range report.BySignalType {
		m.finish()
	}
	return report
}

func group[K comparable](groups map[K]*PerformanceMetrics, key K) *PerformanceMetrics {
	m, ok := groups[key]
	if !ok {
		m = &PerformanceMetrics{}
		groups[key] = m
	}
	return m
}

func (m *PerformanceMetrics) add(trade domain.Trade, pnl float64) {
	m.TotalTrades++
	if pnl > 0 {
		m.WinningTrades++
		m.GrossProfit += pnl
		m.consecutiveWins++
		m.consecutiveLosses = 0
	} else {
		m.LosingTrades++
		m.GrossLoss += pnl
		m.consecutiveLosses++
		m.consecutiveWins = 0
	}
	m.MaxConsecutiveWins = max(m.MaxConsecutiveWins, m.consecutiveWins)
	m.MaxConsecutiveLosses = max(m.MaxConsecutiveLosses, m.consecutiveLosses)

	m.NetPnL += pnl
	m.peak = math.Max(m.peak, m.NetPnL)
	m.MaxDrawdown = math.Max(m.MaxDrawdown, m.peak-m.NetPnL)

	if trade.StopLoss > 0 {
		m.TotalR += trade.RMultiple
		m.rTrades++
	}
	m.totalDuration += trade.ExitTime.Sub(trade.EntryTime)
}

func (m *PerformanceMetrics) finish() {
	if m.TotalTrades == 0 {
		return
	}
	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AverageWin = m.GrossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = m.GrossLoss / float64(m.LosingTrades)
	}
	if m.GrossLoss != 0 {
		m.ProfitFactor = m.GrossProfit / -m.GrossLoss
	}
	m.Expectancy = m.NetPnL / float64(m.TotalTrades)
	if m.rTrades > 0 {
		m.AverageR = m.TotalR / float64(m.rTrades)
	}
	m.AverageTradeDuration = m.totalDuration / time.Duration(m.TotalTrades)
}

// Labels returns the leg labels in sorted order.
func (r *Report) Labels() []string {
	labels := make([]string, 0, len(r.ByLabel))
	for l := range r.ByLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// SignalTypes returns the signal types in sorted order.
func (r *Report) SignalTypes() []domain.SignalType {
	types := make([]domain.SignalType, 0, len(r.BySignalType))
	for st := range r.BySignalType {
		types = append(types, st)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (r *Report) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(r.MonthlyReturns))
	for month, profit := range r.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{
			Month:  date,
			Return: profit,
		})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}
