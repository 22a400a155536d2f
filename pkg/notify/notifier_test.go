package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/klokku/fintrack/internal/test_utils"
	"github.com/klokku/fintrack/internal/utils"
	"github.com/klokku/fintrack/pkg/budget"
	"github.com/klokku/fintrack/pkg/gateway"
	"github.com/klokku/fintrack/pkg/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedMessage struct {
	routingKey string
	body       []byte
}

type publisherStub struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (p *publisherStub) Publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, publishedMessage{routingKey: routingKey, body: body})
	return nil
}

var now = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func setup(t *testing.T) (*ledger.Session, *publisherStub) {
	clock := utils.NewMockClock(now)
	gw := gateway.NewMemoryGateway(clock)
	session := ledger.NewSession(test_utils.NewTestUser(), gw, ledger.Config{PageSize: 100}, clock)
	require.NoError(t, session.Bootstrap(context.Background()))
	publisher := &publisherStub{}
	unsubscribe := NewNotifier(publisher, clock).Attach(session)
	t.Cleanup(func() {
		unsubscribe()
		session.Close()
	})
	return session, publisher
}

func TestNotifier_PublishesCommittedMutation(t *testing.T) {
	// given
	session, publisher := setup(t)

	// when
	result, err := session.Submit(context.Background(), ledger.Mutation{
		Kind:   ledger.KindBudgetSet,
		Budget: budget.Budget{LimitAmount: decimal.NewFromInt(500), Period: budget.Monthly},
	})

	// then
	require.NoError(t, err)
	require.Len(t, publisher.messages, 1)
	published := publisher.messages[0]
	assert.Equal(t, "mutation.budget-set", published.routingKey)

	var msg Message
	require.NoError(t, json.Unmarshal(published.body, &msg))
	assert.Equal(t, session.User().Uid, msg.User)
	assert.Equal(t, result.RequestID, msg.RequestId)
	assert.Equal(t, "budget", msg.Target)
	assert.Equal(t, uint64(1), msg.Epoch)
	assert.True(t, now.Equal(msg.Timestamp))
}

func TestNotifier_IgnoresFailedMutation(t *testing.T) {
	// given
	session, publisher := setup(t)

	// when
	_, err := session.Submit(context.Background(), ledger.Mutation{
		Kind:      ledger.KindDelete,
		ExpenseID: 404,
	})

	// then
	assert.ErrorIs(t, err, ledger.ErrMutationRejected)
	assert.Empty(t, publisher.messages)
}

func TestNotifier_PublishFailureDoesNotFailMutation(t *testing.T) {
	// given
	session, publisher := setup(t)
	publisher.err = errors.New("broker unavailable")

	// when
	result, err := session.Submit(context.Background(), ledger.Mutation{
		Kind:   ledger.KindBudgetSet,
		Budget: budget.Budget{LimitAmount: decimal.NewFromInt(100), Period: budget.Monthly},
	})

	// then
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCommitted, result.Status)
	assert.NoError(t, result.RefreshErr)
}
