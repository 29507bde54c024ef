package engine

import (
	"fmt"
	"math"

	"github.com/xela07ax/nexusflow/internal/domain"
)

// Proposal — котировка кандидата. Живет только внутри одной транзакции.
type Proposal struct {
	NodeID       string  `json:"node_id"`
	Price        float64 `json:"price"`
	LeadTimeDays int     `json:"lead_time_days"`
}

// SelectWinner выбирает минимальную цену. При равенстве побеждает тот,
// кто раньше в исходном порядке кандидатов (строгое сравнение).
func SelectWinner(proposals []Proposal) (Proposal, bool) {
	if len(proposals) == 0 {
		return Proposal{}, false
	}
	best := proposals[0]
	for _, p := range proposals[1:] {
		if p.Price < best.Price {
			best = p
		}
	}
	return best, true
}

// quotePrice = база + надбавка кандидата + ограниченный шум, округлено до центов.
func (e *Engine) quotePrice(nodeID string) float64 {
	price := e.cfg.BasePrice + e.cfg.PriceModifiers[nodeID]
	if e.cfg.JitterMax > 0 {
		price += e.rng.Float64() * e.cfg.JitterMax
	}
	return math.Round(price*100) / 100
}

func (e *Engine) leadTime(nodeID string) int {
	if d, ok := e.cfg.LeadTimes[nodeID]; ok && d > 0 {
		return d
	}
	return e.cfg.DefaultLeadTime
}

// quoteFails — имитация отказа поставщика. Без режима Resilience генератор не трогаем,
// чтобы цены не зависели от включения режима.
func (e *Engine) quoteFails() bool {
	if e.cfg.QuoteFailureRate <= 0 {
		return false
	}
	return e.rng.Float64() < e.cfg.QuoteFailureRate
}

func (e *Engine) quoteCurrency(buyer domain.AgentNode) string {
	if buyer.Record.Context.Currency != "" {
		return buyer.Record.Context.Currency
	}
	return e.cfg.Currency
}

func formatPrice(p float64) string {
	return fmt.Sprintf("$%.2f", p)
}
