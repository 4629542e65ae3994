package social

import (
	"context"
	"fmt"

	models "github.com/worth-network/worthx/pkg/db/models/social"
)

// InsertPayment appends a payment record and returns its id.
func (db *DB) InsertPayment(ctx context.Context, p *models.Payment) (int64, error) {
	var id int64
	err := db.QueryRow(ctx, `
		INSERT INTO worth_payments (block_num, tx_idx, post_id, from_account, to_account, amount, token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, p.BlockNum, p.TxIdx, p.PostID, p.FromAccount, p.ToAccount, p.Amount, p.Token).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert payment block=%d tx=%d: %w", p.BlockNum, p.TxIdx, err)
	}
	return id, nil
}

// PaymentsForBlock lists the payments recorded for a block.
func (db *DB) PaymentsForBlock(ctx context.Context, num uint64) ([]*models.Payment, error) {
	rows, err := db.Query(ctx, `
		SELECT id, block_num, tx_idx, post_id, from_account, to_account, amount, token
		FROM worth_payments WHERE block_num = $1 ORDER BY id
	`, num)
	if err != nil {
		return nil, fmt.Errorf("payments for block %d: %w", num, err)
	}
	defer rows.Close()

	var out []*models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.BlockNum, &p.TxIdx, &p.PostID, &p.FromAccount, &p.ToAccount, &p.Amount, &p.Token); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
