package engine

import "time"

// Config — параметры транзакции и темпа. Заполняется из infra.EngineConfig.
type Config struct {
	Item       string
	Quantity   int
	Deadline   string
	Capability string // по ней ищем поставщиков на Discovery
	Currency   string

	// Цена = BasePrice + PriceModifiers[nodeID] + jitter в [0, JitterMax)
	BasePrice       float64
	JitterMax       float64
	PriceModifiers  map[string]float64
	LeadTimes       map[string]int // дней, по ID узла
	DefaultLeadTime int

	DestinationCode string // UN/LOCODE порта назначения
	CargoWeightKg   float64

	// Доля поставщиков, не приславших котировку (режим Resilience Test)
	QuoteFailureRate float64

	SettleDelay    time.Duration // после Intent, Discovery и Negotiation
	CandidateDelay time.Duration // между кандидатами
	ShipmentDelay  time.Duration // от бронирования до подтверждения

	Seed uint64
}

func DefaultConfig() Config {
	return Config{
		Item:       "automotive_chips",
		Quantity:   5000,
		Deadline:   "2026-12-31",
		Capability: "automotive_chips",
		Currency:   "USD",
		BasePrice:  450,
		JitterMax:  25,
		PriceModifiers: map[string]float64{
			"supplier-a": 40,
			"supplier-b": 15,
			"supplier-c": 0,
		},
		LeadTimes: map[string]int{
			"supplier-a": 14,
			"supplier-b": 21,
			"supplier-c": 28,
		},
		DefaultLeadTime: 21,
		DestinationCode: "NL RTM",
		CargoWeightKg:   1200,
		SettleDelay:     800 * time.Millisecond,
		CandidateDelay:  600 * time.Millisecond,
		ShipmentDelay:   1500 * time.Millisecond,
		Seed:            42,
	}
}

// withDefaults подставляет значения по умолчанию в незаполненные поля.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Item == "" {
		c.Item = def.Item
	}
	if c.Quantity <= 0 {
		c.Quantity = def.Quantity
	}
	if c.Deadline == "" {
		c.Deadline = def.Deadline
	}
	if c.Capability == "" {
		c.Capability = def.Capability
	}
	if c.Currency == "" {
		c.Currency = def.Currency
	}
	if c.DefaultLeadTime <= 0 {
		c.DefaultLeadTime = def.DefaultLeadTime
	}
	if c.DestinationCode == "" {
		c.DestinationCode = def.DestinationCode
	}
	if c.CargoWeightKg <= 0 {
		c.CargoWeightKg = def.CargoWeightKg
	}
	if c.JitterMax < 0 {
		c.JitterMax = 0
	}
	return c
}
