// Package protocol описывает конверты сообщений между агентами.
// Формат повторяет JSON-RPC 2.0: {jsonrpc, id, method?, params?, result?, error?}.
package protocol

const Version = "2.0"

// Методы, которые понимают агенты сети.
const (
	MethodProcure = "supply.procure"
	MethodBook    = "logistics.book"
)

// Коды ошибок JSON-RPC для прикладных отказов.
const (
	CodeInternal         = -32603
	CodeQuoteUnavailable = -32001
)

// Request — запрос агента (intent, booking).
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Response — ответ агента. Заполнено либо Result, либо Error.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type ProcureParams struct {
	Item      string   `json:"item"`
	Qty       int      `json:"qty"`
	Deadline  string   `json:"deadline"`
	Standards []string `json:"standards"`
}

type BookingParams struct {
	OriginLocode string  `json:"origin_locode"`
	DestLocode   string  `json:"dest_locode"`
	CargoWeight  float64 `json:"cargo_weight"`
	ServiceLevel string  `json:"service_level"`
}

type Quote struct {
	PricePerUnit float64 `json:"price_per_unit"`
	Currency     string  `json:"currency"`
	Incoterms    string  `json:"incoterms"`
	LeadTimeDays int     `json:"lead_time_days"`
}

type OfferResult struct {
	Status string `json:"status"`
	Quote  Quote  `json:"quote"`
}

// BookingResult — синтетическое подтверждение перевозчика (накладная и судно).
type BookingResult struct {
	Status  string `json:"status"`
	Waybill string `json:"waybill"`
	Vessel  string `json:"vessel"`
}
