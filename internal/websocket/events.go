package websocket

import (
	"p2pdesk/internal/matching"
	"p2pdesk/internal/models"
	"p2pdesk/internal/trader"
)

// EventPublisher транслирует события движка и сопоставителя в
// websocket-ленту. Реализует trader.EventSink и matching.EventSink,
// позволяя движку публиковать события, не зная о транспорте.
type EventPublisher struct {
	hub *Hub
}

// NewEventPublisher создает новый EventPublisher
func NewEventPublisher(hub *Hub) *EventPublisher {
	return &EventPublisher{hub: hub}
}

func (p *EventPublisher) TransactionCreated(tx *models.Transaction) {
	p.hub.Broadcast(NewTransactionMessage(tx))
}

func (p *EventPublisher) TransactionStatus(tx *models.Transaction, previous string) {
	p.hub.Broadcast(NewTransactionStatusMessage(tx, previous))
}

func (p *EventPublisher) AdvertisementCreated(ad *models.Advertisement) {
	p.hub.Broadcast(NewAdvertisementMessage(MessageTypeAdCreated, ad))
}

func (p *EventPublisher) AdvertisementToggled(ad *models.Advertisement) {
	p.hub.Broadcast(NewAdvertisementMessage(MessageTypeAdToggled, ad))
}

func (p *EventPublisher) AdvertisementDeleted(ad *models.Advertisement) {
	p.hub.Broadcast(NewAdvertisementMessage(MessageTypeAdDeleted, ad))
}

func (p *EventPublisher) ChatMessage(msg *models.ChatMessage) {
	p.hub.Broadcast(NewChatMessageEvent(msg))
}

func (p *EventPublisher) EvidenceMatched(evidence *models.PaymentEvidence, payoutID string, transactionID int64) {
	p.hub.Broadcast(NewEvidenceMatchedMessage(evidence, payoutID, transactionID))
}

var (
	_ trader.EventSink   = (*EventPublisher)(nil)
	_ matching.EventSink = (*EventPublisher)(nil)
)
