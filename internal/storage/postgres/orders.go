package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"orderScope/internal/model"
	"orderScope/internal/storage"
)

const uniqueViolation = "23505"

// UpsertOrder inserts an order or refreshes it when its content changed.
// Identical content leaves the row untouched.
func (s *Store) UpsertOrder(ctx context.Context, order model.Order) (storage.UpsertResult, error) {
	var inserted bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO orders (
			chain_id, order_id, request_id, user_address, token_address, amount,
			tx_hash, block_number, block_time, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, now(), now())
		ON CONFLICT (chain_id, order_id)
		DO UPDATE SET
			request_id = EXCLUDED.request_id,
			user_address = EXCLUDED.user_address,
			token_address = EXCLUDED.token_address,
			amount = EXCLUDED.amount,
			tx_hash = EXCLUDED.tx_hash,
			block_number = EXCLUDED.block_number,
			block_time = EXCLUDED.block_time,
			updated_at = now()
		WHERE (orders.request_id, orders.user_address, orders.token_address, orders.amount,
			orders.tx_hash, orders.block_number, orders.block_time)
			IS DISTINCT FROM
			(EXCLUDED.request_id, EXCLUDED.user_address, EXCLUDED.token_address, EXCLUDED.amount,
			EXCLUDED.tx_hash, EXCLUDED.block_number, EXCLUDED.block_time)
		RETURNING (xmax = 0)
	`,
		int64(order.ChainID),
		order.OrderID,
		order.RequestID,
		order.User,
		order.Token,
		order.Amount,
		order.TxHash,
		int64(order.BlockNumber),
		order.Timestamp,
	).Scan(&inserted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.UpsertUnchanged, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.UpsertDuplicate, nil
		}
		return 0, err
	}
	if inserted {
		return storage.UpsertInserted, nil
	}
	return storage.UpsertUpdated, nil
}

// InsertContractMetrics appends one counter snapshot.
func (s *Store) InsertContractMetrics(ctx context.Context, m model.ContractMetrics) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contract_metrics (
			chain_id, order_count, total_volume, successful_orders, failed_orders, snapshot_at
		) VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6)
	`,
		int64(m.ChainID),
		m.OrderCount,
		m.TotalVolume,
		m.SuccessfulOrders,
		m.FailedOrders,
		m.Timestamp,
	)
	return err
}
