package payouts

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/creatorpay/creatorpay-backend/pkg/db/models"
	"github.com/creatorpay/creatorpay-backend/pkg/logger"
)

const reportContentType = "text/csv"

var reportHeader = []string{"earning_id", "item_id", "purchase_id", "amount_minor", "currency", "earned_at"}

type objectStore interface {
	WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error
	SignedReadURL(bucket, object string, expires time.Duration) (string, error)
	DefaultBucket() string
}

// Reporter writes per-payout remittance reports to object storage and hands
// back a signed download link.
type Reporter struct {
	store     objectStore
	prefix    string
	urlExpiry time.Duration
	logg      *logger.Logger
}

// NewReporter wires a payout report emitter.
func NewReporter(store objectStore, prefix string, urlExpiry time.Duration, logg *logger.Logger) *Reporter {
	return &Reporter{store: store, prefix: prefix, urlExpiry: urlExpiry, logg: logg}
}

// Emit renders the earnings behind a paid payout as CSV, uploads it, and
// returns a signed read URL. Report emission is best effort: callers treat a
// failure here as non-fatal for the payout itself.
func (r *Reporter) Emit(ctx context.Context, payoutID uuid.UUID, earnings []models.CreatorEarning) (string, error) {
	if r == nil || r.store == nil {
		return "", nil
	}

	body, err := renderReport(earnings)
	if err != nil {
		return "", err
	}

	bucket := r.store.DefaultBucket()
	object := fmt.Sprintf("%s/%s.csv", r.prefix, payoutID)
	if err := r.store.WriteObject(ctx, bucket, object, reportContentType, body); err != nil {
		return "", fmt.Errorf("upload payout report: %w", err)
	}

	url, err := r.store.SignedReadURL(bucket, object, r.urlExpiry)
	if err != nil {
		return "", fmt.Errorf("sign payout report url: %w", err)
	}
	return url, nil
}

func renderReport(earnings []models.CreatorEarning) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(reportHeader); err != nil {
		return nil, err
	}
	for _, earning := range earnings {
		row := []string{
			earning.ID.String(),
			earning.ItemID.String(),
			earning.PurchaseID.String(),
			strconv.FormatInt(earning.NetMinor, 10),
			earning.Currency.String(),
			earning.EarnedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
