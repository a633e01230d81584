package payouts

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/transfer"

	pkgstripe "github.com/creatorpay/creatorpay-backend/pkg/stripe"
)

// TransferClient is the subset of payment-rail operations settlement needs.
type TransferClient interface {
	// CreateTransfer issues a transfer to the connected account and returns
	// the rail's transfer reference. The payout id doubles as the
	// idempotency key so retries of the same payout cannot double-pay.
	CreateTransfer(ctx context.Context, input TransferInput) (string, error)
	// AccountPayable reports whether the connected account can currently
	// receive transfers.
	AccountPayable(ctx context.Context, accountRef string) (bool, error)
}

// TransferInput carries everything needed to issue one settlement transfer.
type TransferInput struct {
	PayoutID    string
	AccountRef  string
	AmountMinor int64
	Currency    string
}

type stripeTransferClient struct{}

// NewTransferClient wraps the Stripe transfer API so settlement can be tested
// against a fake rail.
func NewTransferClient(api *pkgstripe.Client) TransferClient {
	if api == nil {
		return nil
	}
	return &stripeTransferClient{}
}

func (c *stripeTransferClient) CreateTransfer(ctx context.Context, input TransferInput) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(input.AmountMinor),
		Currency:    stripe.String(input.Currency),
		Destination: stripe.String(input.AccountRef),
	}
	params.Context = ctx
	params.SetIdempotencyKey("payout:" + input.PayoutID)
	params.AddMetadata("payout_id", input.PayoutID)
	created, err := transfer.New(params)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *stripeTransferClient) AccountPayable(ctx context.Context, accountRef string) (bool, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := account.GetByID(accountRef, params)
	if err != nil {
		return false, err
	}
	return acct.PayoutsEnabled, nil
}
