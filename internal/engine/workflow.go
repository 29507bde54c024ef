package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xela07ax/nexusflow/internal/directory"
	"github.com/xela07ax/nexusflow/internal/domain"
	"github.com/xela07ax/nexusflow/internal/protocol"
)

// run — состояние одной транзакции. Живет от Intent до возврата в Idle.
type run struct {
	id         string
	buyer      domain.AgentNode
	intent     protocol.Request
	candidates []candidate
	proposals  []Proposal
	winner     candidate
	outcome    Outcome
}

// candidate — поставщик из Discovery, связанный с узлом графа.
type candidate struct {
	nodeID string
	edgeID string
	record domain.AgentRecord
}

func edgeID(from, to string) string {
	return from + "->" + to
}

// intent — сброс графа и широковещательное намерение покупателя.
func (e *Engine) intent(ctx context.Context, r *run) Phase {
	// 1. Новый запуск всегда начинается с чистого графа, чем бы ни кончился прошлый
	e.mutate(func() {
		e.edges = nil
		for i := range e.nodes {
			e.nodes[i].Status = domain.StatusIdle
		}
	})

	buyer, ok := e.firstBuyer()
	if !ok {
		e.log(domain.SourceSystem, "No buyer agent present; workflow aborted", domain.SeverityError, nil)
		r.outcome = OutcomeNoBuyer
		return PhaseIdle
	}
	r.buyer = buyer

	// 2. Конверт намерения
	r.intent = e.codec.CreateIntent(e.cfg.Item, e.cfg.Quantity, e.cfg.Deadline)
	e.setStatus(buyer.ID, domain.StatusWorking)
	e.log(buyer.ID,
		fmt.Sprintf("Broadcasting intent: %d x %s (deadline %s)", e.cfg.Quantity, e.cfg.Item, e.cfg.Deadline),
		domain.SeverityAction, r.intent)

	e.pause(ctx, e.cfg.SettleDelay)
	return PhaseDiscovery
}

// discovery — поиск поставщиков по capability и построение query-ребер.
func (e *Engine) discovery(ctx context.Context, r *run) Phase {
	e.log(domain.SourceNetwork,
		fmt.Sprintf("Querying directory: role=%s capability=%s", domain.RoleSupplier, e.cfg.Capability),
		domain.SeverityQuery, nil)

	records := e.dir.Find(directory.Query{Role: domain.RoleSupplier, Capability: e.cfg.Capability})

	for _, rec := range records {
		node, ok := e.nodeForDID(rec.Identity.DID)
		if !ok {
			// Запись в каталоге есть, а узла на графе нет: ребро не на что повесить
			e.logger.Warn("directory record has no node", zap.String("did", rec.Identity.DID))
			continue
		}
		c := candidate{nodeID: node.ID, edgeID: edgeID(r.buyer.ID, node.ID), record: rec}
		added := false
		e.mutate(func() {
			added = e.addEdgeLocked(domain.RelationEdge{
				ID:   c.edgeID,
				From: r.buyer.ID,
				To:   c.nodeID,
				Type: domain.EdgeQuery,
			})
			if added {
				e.setStatusLocked(c.nodeID, domain.StatusNegotiating)
			}
		})
		if added {
			r.candidates = append(r.candidates, c)
		}
	}

	if len(r.candidates) == 0 {
		e.setStatus(r.buyer.ID, domain.StatusError)
		e.log(domain.SourceSystem,
			fmt.Sprintf("No suppliers found with capability %q; workflow aborted", e.cfg.Capability),
			domain.SeverityError, nil)
		r.outcome = OutcomeNoCandidates
		return PhaseIdle
	}

	names := make([]string, 0, len(r.candidates))
	for _, c := range r.candidates {
		names = append(names, e.label(c.nodeID))
	}
	e.log(domain.SourceNetwork,
		fmt.Sprintf("Found %d matching suppliers: %s", len(r.candidates), strings.Join(names, ", ")),
		domain.SeverityInfo, nil)

	e.pause(ctx, e.cfg.SettleDelay)
	return PhaseNegotiation
}

// negotiation — последовательный опрос кандидатов в порядке выдачи каталога.
func (e *Engine) negotiation(ctx context.Context, r *run) Phase {
	currency := e.quoteCurrency(r.buyer)

	for i, c := range r.candidates {
		if i > 0 {
			e.pause(ctx, e.cfg.CandidateDelay)
		}

		if e.quoteFails() {
			resp := e.codec.CreateError(r.intent.ID, protocol.CodeQuoteUnavailable, "quote unavailable")
			e.mutate(func() {
				e.retypeEdgeLocked(c.edgeID, domain.EdgeReject, "no quote")
				e.setStatusLocked(c.nodeID, domain.StatusError)
			})
			e.metrics.Quotes.WithLabelValues("failed").Inc()
			e.log(c.nodeID, fmt.Sprintf("%s failed to quote", e.label(c.nodeID)), domain.SeverityError, resp)
			continue
		}

		price := e.quotePrice(c.nodeID)
		lead := e.leadTime(c.nodeID)
		offer := e.codec.CreateOffer(r.intent.ID, price, currency, lead)

		e.mutate(func() {
			e.retypeEdgeLocked(c.edgeID, domain.EdgeNegotiate, formatPrice(price))
		})
		r.proposals = append(r.proposals, Proposal{NodeID: c.nodeID, Price: price, LeadTimeDays: lead})

		e.metrics.Quotes.WithLabelValues("offered").Inc()
		e.metrics.LastQuotePrice.WithLabelValues(c.nodeID).Set(price)
		e.log(c.nodeID,
			fmt.Sprintf("Offer: %s %s/unit, lead time %d days", formatPrice(price), currency, lead),
			domain.SeverityInfo, offer)
	}

	best, ok := SelectWinner(r.proposals)
	if !ok {
		e.setStatus(r.buyer.ID, domain.StatusError)
		e.log(domain.SourceSystem, "No proposals received; workflow aborted", domain.SeverityError, nil)
		r.outcome = OutcomeNoProposals
		return PhaseIdle
	}

	proposed := make(map[string]bool, len(r.proposals))
	for _, p := range r.proposals {
		proposed[p.NodeID] = true
	}
	for _, c := range r.candidates {
		if c.nodeID == best.NodeID {
			r.winner = c
		}
	}

	// Победитель и покупатель — success, проигравшие возвращаются в idle.
	// Кандидат без котировки остается в error, но его ребро тоже убираем.
	e.mutate(func() {
		e.setStatusLocked(r.buyer.ID, domain.StatusSuccess)
		e.setStatusLocked(r.winner.nodeID, domain.StatusSuccess)
		e.retypeEdgeLocked(r.winner.edgeID, domain.EdgeContract, "signed")
		for _, c := range r.candidates {
			if c.nodeID == r.winner.nodeID {
				continue
			}
			e.removeEdgeLocked(c.edgeID)
			if proposed[c.nodeID] {
				e.setStatusLocked(c.nodeID, domain.StatusIdle)
			}
		}
	})

	e.log(r.buyer.ID,
		fmt.Sprintf("Accepted offer from %s at %s/unit", e.label(best.NodeID), formatPrice(best.Price)),
		domain.SeveritySuccess, nil)
	for _, p := range r.proposals {
		if p.NodeID == best.NodeID {
			continue
		}
		e.log(r.buyer.ID,
			fmt.Sprintf("Declined offer from %s at %s/unit", e.label(p.NodeID), formatPrice(p.Price)),
			domain.SeverityWarning, nil)
	}

	e.pause(ctx, e.cfg.SettleDelay)
	return PhaseSettlement
}

// settlement — бронирование у первого найденного перевозчика.
func (e *Engine) settlement(ctx context.Context, r *run) Phase {
	e.log(domain.SourceNetwork,
		fmt.Sprintf("Querying directory: role=%s", domain.RoleLogistics),
		domain.SeverityQuery, nil)

	var (
		carrier domain.AgentNode
		found   bool
	)
	// Берем только первого: без ранжирования и конкурса ставок
	if carriers := e.dir.Find(directory.Query{Role: domain.RoleLogistics}); len(carriers) > 0 {
		carrier, found = e.nodeForDID(carriers[0].Identity.DID)
	}
	if !found {
		e.log(domain.SourceSystem,
			"CRITICAL: no logistics provider available; contract signed but shipment unbooked",
			domain.SeverityError, nil)
		r.outcome = OutcomeNoLogistics
		return PhaseIdle
	}

	booking := e.codec.CreateBooking(originCode(r.winner.record), e.cfg.DestinationCode, e.cfg.CargoWeightKg)
	e.mutate(func() {
		e.addEdgeLocked(domain.RelationEdge{
			ID:    edgeID(r.winner.nodeID, carrier.ID),
			From:  r.winner.nodeID,
			To:    carrier.ID,
			Type:  domain.EdgeLogistics,
			Label: "booking",
		})
		e.setStatusLocked(carrier.ID, domain.StatusWorking)
	})
	e.log(r.winner.nodeID,
		fmt.Sprintf("Booking freight with %s: %s -> %s", e.label(carrier.ID), originCode(r.winner.record), e.cfg.DestinationCode),
		domain.SeverityAction, booking)

	e.pause(ctx, e.cfg.ShipmentDelay)

	vessel := carrier.Record.Context.Fleet
	if vessel == "" {
		vessel = "Express Feeder"
	}
	waybill := fmt.Sprintf("WB-%06d", e.rng.IntN(1_000_000))
	confirmation := e.codec.CreateConfirmation(booking.ID, waybill, vessel)

	e.log(carrier.ID,
		fmt.Sprintf("Shipment confirmed: waybill %s, vessel %s", waybill, vessel),
		domain.SeveritySuccess, confirmation)
	e.setStatus(carrier.ID, domain.StatusSuccess)

	e.log(domain.SourceSystem,
		fmt.Sprintf("Settlement complete: %s supplies %d x %s, shipped by %s",
			e.label(r.winner.nodeID), e.cfg.Quantity, e.cfg.Item, e.label(carrier.ID)),
		domain.SeveritySuccess, nil)

	r.outcome = OutcomeCompleted
	return PhaseIdle
}

// originCode — UN/LOCODE поставщика, при его отсутствии код юрисдикции.
func originCode(rec domain.AgentRecord) string {
	if rec.Context.Location != nil && rec.Context.Location.Code != "" {
		return rec.Context.Location.Code
	}
	return rec.Context.Jurisdiction
}
