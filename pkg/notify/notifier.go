package notify

import (
	"encoding/json"
	"time"

	"github.com/klokku/fintrack/internal/event_bus"
	"github.com/klokku/fintrack/internal/utils"
	"github.com/klokku/fintrack/pkg/ledger"
	log "github.com/sirupsen/logrus"
)

// Message announces a committed mutation to downstream consumers.
type Message struct {
	User      string    `json:"user"`
	RequestId string    `json:"request_id"`
	Kind      string    `json:"kind"`
	Target    string    `json:"target"`
	Epoch     uint64    `json:"epoch"`
	Timestamp time.Time `json:"timestamp"`
}

// RoutingKey is "mutation.<kind>", e.g. "mutation.budget-set".
func (m Message) RoutingKey() string {
	return "mutation." + m.Kind
}

type Notifier struct {
	publisher Publisher
	clock     utils.Clock
}

func NewNotifier(publisher Publisher, clock utils.Clock) *Notifier {
	return &Notifier{publisher: publisher, clock: clock}
}

// Attach subscribes the notifier to the session's mutation status changes.
func (n *Notifier) Attach(session *ledger.Session) (unsubscribe func()) {
	userUid := session.User().Uid
	return event_bus.SubscribeTyped(session.Bus(), event_bus.MutationStatusChanged,
		func(e event_bus.EventT[event_bus.MutationStatus]) error {
			msg, ok := n.message(userUid, e.Data)
			if !ok {
				return nil
			}
			body, err := json.Marshal(msg)
			if err != nil {
				log.Errorf("failed to encode notification for %s: %v", msg.RequestId, err)
				return nil
			}
			// Notification failures never fail the mutation that triggered them.
			if err := n.publisher.Publish(e.Context(), msg.RoutingKey(), body); err != nil {
				log.Errorf("failed to publish notification for %s: %v", msg.RequestId, err)
			}
			return nil
		})
}

func (n *Notifier) message(userUid string, status event_bus.MutationStatus) (Message, bool) {
	if status.Status != string(ledger.StatusCommitted) {
		return Message{}, false
	}
	return Message{
		User:      userUid,
		RequestId: status.RequestId,
		Kind:      status.Kind,
		Target:    status.Target,
		Epoch:     status.Epoch,
		Timestamp: n.clock.Now().UTC(),
	}, true
}
