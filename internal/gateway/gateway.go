package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MinChargeAmount is the smallest amount, in minor units, the gateway
// accepts for a single attempt.
const MinChargeAmount int64 = 50

// PaymentRequest carries one line item's attempt to the gateway.
type PaymentRequest struct {
	Amount         int64
	Currency       string
	RecipientEmail string
	RecipientName  string
	Description    string
}

// PaymentAttempt is the gateway's acknowledgement that an attempt was
// created. Attempt creation, not settlement, is the success condition;
// settlement arrives later via webhooks owned by the API layer.
type PaymentAttempt struct {
	Reference string
	CreatedAt time.Time
}

// Gateway is the external payment capability. Implementations own their
// own deadlines and retries; the core imposes none.
type Gateway interface {
	CreatePaymentAttempt(ctx context.Context, req PaymentRequest) (*PaymentAttempt, error)
}

// Transaction mirrors a created attempt into the external ledger.
type Transaction struct {
	Reference  string
	CampaignID string
	ItemID     string
	Amount     int64
	Currency   string
	CreatedAt  time.Time
}

// Ledger records attempts for audit. Failures here fail the item the same
// way a gateway error does.
type Ledger interface {
	RecordTransaction(ctx context.Context, tx Transaction) error
}

// MockGateway simulates attempt creation with a configurable failure rate.
// When FailFunc is set it decides the outcome instead, keyed by recipient
// email, which lets tests script exact per-item results.
type MockGateway struct {
	FailureRate float64
	FailFunc    func(req PaymentRequest) error
}

func (g *MockGateway) CreatePaymentAttempt(_ context.Context, req PaymentRequest) (*PaymentAttempt, error) {
	if req.Amount < MinChargeAmount {
		return nil, fmt.Errorf("amount %d below gateway minimum %d", req.Amount, MinChargeAmount)
	}
	if g.FailFunc != nil {
		if err := g.FailFunc(req); err != nil {
			return nil, err
		}
	} else if rand.Float64() < g.FailureRate {
		return nil, fmt.Errorf("gateway declined attempt for %s", req.RecipientEmail)
	}
	return &PaymentAttempt{
		Reference: "pi_" + uuid.NewString(),
		CreatedAt: time.Now(),
	}, nil
}

// MemoryLedger keeps recorded transactions in memory. Used by tests and
// the seeder; production wires the real ledger client at the boundary.
type MemoryLedger struct {
	mu  sync.Mutex
	txs []Transaction
}

func (l *MemoryLedger) RecordTransaction(_ context.Context, tx Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txs = append(l.txs, tx)
	return nil
}

func (l *MemoryLedger) Transactions() []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transaction, len(l.txs))
	copy(out, l.txs)
	return out
}

var _ Gateway = (*MockGateway)(nil)
var _ Ledger = (*MemoryLedger)(nil)
