package autobuy

import (
	"context"

	"tms-autobuy/internal/quote"
	"tms-autobuy/internal/tms"
)

// Broker is what the market gate and the per-symbol loops need from the
// transport. *tms.Client satisfies it.
type Broker interface {
	PollQuote(ctx context.Context, s *tms.Session, symbol string) (quote.Snapshot, error)
	SubmitOrder(ctx context.Context, s *tms.Session, acct tms.Account, o tms.OrderRequest) (tms.OrderAck, error)
	MarketStatus(ctx context.Context, s *tms.Session) (tms.MarketStatus, error)
}

// Client adds the run-scoped session calls used once by the orchestrator.
type Client interface {
	Broker
	Authenticate(ctx context.Context, username, password string) (*tms.Session, error)
	FetchAccount(ctx context.Context, s *tms.Session) (tms.Account, error)
	Close()
}

var _ Client = (*tms.Client)(nil)
