package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"

	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/monitoring"
)

// Purchases live one row per reserved token, keyed by (purchaser, seq) so a
// ledger entry keeps its purchase order.

func (r *CrowdfundRepository) GetPurchases(ctx context.Context, purchaser string) ([]crowdfund.Purchase, error) {
	query := `
		SELECT purchaser, token_id, tax_amount, msgs
		FROM purchases
		WHERE purchaser = $1
		ORDER BY seq
	`

	rows, err := monitoring.InstrumentQuery(ctx, r.q(), "SELECT", "purchases", query, purchaser)
	if err != nil {
		return nil, translate(err)
	}
	return scanPurchases(rows)
}

func (r *CrowdfundRepository) SavePurchases(ctx context.Context, purchaser string, purchases []crowdfund.Purchase) error {
	if err := r.RemovePurchases(ctx, purchaser); err != nil {
		return err
	}

	query := `
		INSERT INTO purchases (purchaser, seq, token_id, tax_amount, msgs)
		VALUES ($1, $2, $3, $4, $5)
	`
	for i, p := range purchases {
		msgs, err := json.Marshal(p.Msgs)
		if err != nil {
			return err
		}
		_, err = r.exec(ctx, "INSERT", "purchases", query,
			purchaser, i, p.TokenID, strconv.FormatUint(p.TaxAmount, 10), string(msgs),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *CrowdfundRepository) RemovePurchases(ctx context.Context, purchaser string) error {
	_, err := r.exec(ctx, "DELETE", "purchases", `DELETE FROM purchases WHERE purchaser = $1`, purchaser)
	return err
}

func (r *CrowdfundRepository) GetLedgerEntries(ctx context.Context, limit int) ([]crowdfund.LedgerEntry, error) {
	query := `
		SELECT DISTINCT purchaser FROM purchases
		ORDER BY purchaser
		LIMIT $1
	`

	rows, err := monitoring.InstrumentQuery(ctx, r.q(), "SELECT", "purchases", query, limit)
	if err != nil {
		return nil, translate(err)
	}

	var purchasers []string
	for rows.Next() {
		var purchaser string
		if err := rows.Scan(&purchaser); err != nil {
			rows.Close()
			return nil, err
		}
		purchasers = append(purchasers, purchaser)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}

	entries := make([]crowdfund.LedgerEntry, 0, len(purchasers))
	for _, purchaser := range purchasers {
		purchases, err := r.GetPurchases(ctx, purchaser)
		if err != nil {
			return nil, err
		}
		entries = append(entries, crowdfund.LedgerEntry{Purchaser: purchaser, Purchases: purchases})
	}
	return entries, nil
}

func (r *CrowdfundRepository) TakePurchases(ctx context.Context, limit int) ([]crowdfund.Purchase, error) {
	query := `
		SELECT purchaser, token_id, tax_amount, msgs
		FROM purchases
		ORDER BY purchaser, seq
		LIMIT $1
	`

	rows, err := monitoring.InstrumentQuery(ctx, r.q(), "SELECT", "purchases", query, limit)
	if err != nil {
		return nil, translate(err)
	}
	return scanPurchases(rows)
}

func scanPurchases(rows *sql.Rows) ([]crowdfund.Purchase, error) {
	defer rows.Close()

	var purchases []crowdfund.Purchase
	for rows.Next() {
		var (
			p        crowdfund.Purchase
			tax      string
			msgsJSON string
		)
		if err := rows.Scan(&p.Purchaser, &p.TokenID, &tax, &msgsJSON); err != nil {
			return nil, err
		}

		amount, err := strconv.ParseUint(tax, 10, 64)
		if err != nil {
			return nil, err
		}
		p.TaxAmount = amount

		if err := json.Unmarshal([]byte(msgsJSON), &p.Msgs); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, translate(rows.Err())
}
