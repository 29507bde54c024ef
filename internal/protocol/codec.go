package protocol

import (
	"fmt"
	"math/rand"
	"time"
)

// ComplianceStandards — фиксированный список стандартов в каждом intent.
var ComplianceStandards = []string{"ISO-26262", "AEC-Q100"}

// IDFunc генерирует идентификатор запроса.
type IDFunc func() string

// TimeRandomID — время в миллисекундах плюс случайная часть 0..999.
// Уникальность не гарантируется: два вызова в одну миллисекунду могут совпасть.
func TimeRandomID() string {
	return fmt.Sprintf("req_%d_%d", time.Now().UnixMilli(), rand.Intn(1000))
}

// Codec — чистая фабрика конвертов. Состояния не хранит.
type Codec struct {
	newID IDFunc
}

func NewCodec() *Codec {
	return &Codec{newID: TimeRandomID}
}

// NewCodecWithIDs позволяет подменить генератор идентификаторов (детерминированные тесты).
func NewCodecWithIDs(fn IDFunc) *Codec {
	if fn == nil {
		fn = TimeRandomID
	}
	return &Codec{newID: fn}
}

// CreateIntent — намерение закупки (Buyer -> Network).
func (c *Codec) CreateIntent(item string, qty int, deadline string) Request {
	return Request{
		JSONRPC: Version,
		ID:      c.newID(),
		Method:  MethodProcure,
		Params: ProcureParams{
			Item:      item,
			Qty:       qty,
			Deadline:  deadline,
			Standards: append([]string(nil), ComplianceStandards...),
		},
	}
}

// CreateOffer — коммерческое предложение (Supplier -> Buyer).
func (c *Codec) CreateOffer(requestID string, price float64, currency string, leadTimeDays int) Response {
	return Response{
		JSONRPC: Version,
		ID:      requestID,
		Result: OfferResult{
			Status: "accepted",
			Quote: Quote{
				PricePerUnit: price,
				Currency:     currency,
				Incoterms:    "FOB",
				LeadTimeDays: leadTimeDays,
			},
		},
	}
}

// CreateBooking — бронирование перевозки (Supplier -> Logistics).
func (c *Codec) CreateBooking(originCode, destCode string, weightKg float64) Request {
	return Request{
		JSONRPC: Version,
		ID:      c.newID(),
		Method:  MethodBook,
		Params: BookingParams{
			OriginLocode: originCode,
			DestLocode:   destCode,
			CargoWeight:  weightKg,
			ServiceLevel: "express",
		},
	}
}

// CreateConfirmation — ответ перевозчика на бронирование.
func (c *Codec) CreateConfirmation(requestID, waybill, vessel string) Response {
	return Response{
		JSONRPC: Version,
		ID:      requestID,
		Result: BookingResult{
			Status:  "booked",
			Waybill: waybill,
			Vessel:  vessel,
		},
	}
}

func (c *Codec) CreateError(requestID string, code int, message string) Response {
	return Response{
		JSONRPC: Version,
		ID:      requestID,
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
	}
}
