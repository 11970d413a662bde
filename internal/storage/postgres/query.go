package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"orderScope/internal/model"
	"orderScope/internal/storage"
)

const orderColumns = `chain_id, order_id, request_id, user_address, token_address, amount::text, tx_hash, block_number, block_time`

// orderWhere renders the filter as a WHERE clause with positional args.
func orderWhere(filter storage.OrderFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(expr string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(expr, len(args)))
	}
	if filter.ChainID != nil {
		add("chain_id = $%d", int64(*filter.ChainID))
	}
	if filter.Token != "" {
		add("token_address = $%d", filter.Token)
	}
	if filter.User != "" {
		add("user_address = $%d", filter.User)
	}
	if !filter.Since.IsZero() {
		add("block_time >= $%d", filter.Since)
	}
	if !filter.Until.IsZero() {
		add("block_time < $%d", filter.Until)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListOrders returns a page of orders newest first plus the total match count.
func (s *Store) ListOrders(ctx context.Context, filter storage.OrderFilter, page storage.Page) ([]model.Order, int64, error) {
	if err := page.Validate(); err != nil {
		return nil, 0, err
	}
	where, args := orderWhere(filter)

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limitArg(page.Limit), page.Offset)
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY block_time DESC, chain_id, order_id LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := make([]model.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

// OrderTimeline buckets order count and volume by hour, day or month (UTC).
func (s *Store) OrderTimeline(ctx context.Context, filter storage.OrderFilter, interval storage.Interval) ([]storage.TimelinePoint, error) {
	where, args := orderWhere(filter)
	args = append(args, string(interval))
	query := fmt.Sprintf(`
		SELECT date_trunc($%d, block_time AT TIME ZONE 'UTC') AS bucket,
			count(*), COALESCE(sum(amount), 0)::text
		FROM orders%s
		GROUP BY bucket
		ORDER BY bucket`, len(args), where)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]storage.TimelinePoint, 0)
	for rows.Next() {
		var point storage.TimelinePoint
		if err := rows.Scan(&point.Bucket, &point.Orders, &point.Volume); err != nil {
			return nil, err
		}
		point.Bucket = point.Bucket.UTC()
		points = append(points, point)
	}
	return points, rows.Err()
}

// OrderSummary groups orders per chain and token.
func (s *Store) OrderSummary(ctx context.Context, filter storage.OrderFilter) ([]storage.OrderSummary, error) {
	where, args := orderWhere(filter)
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, token_address, count(*), count(DISTINCT user_address), COALESCE(sum(amount), 0)::text
		FROM orders`+where+`
		GROUP BY chain_id, token_address
		ORDER BY chain_id, token_address`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]storage.OrderSummary, 0)
	for rows.Next() {
		var (
			summary storage.OrderSummary
			chainID int64
		)
		if err := rows.Scan(&chainID, &summary.Token, &summary.Orders, &summary.Users, &summary.Volume); err != nil {
			return nil, err
		}
		summary.ChainID = uint64(chainID)
		out = append(out, summary)
	}
	return out, rows.Err()
}

const metricsColumns = `chain_id, order_count::text, total_volume::text, successful_orders::text, failed_orders::text, snapshot_at`

// LatestContractMetrics returns the newest counter snapshot per chain.
func (s *Store) LatestContractMetrics(ctx context.Context) ([]model.ContractMetrics, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (chain_id) `+metricsColumns+`
		FROM contract_metrics
		ORDER BY chain_id, snapshot_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return collectMetrics(rows)
}

// ContractMetricsHistory returns counter snapshots newest first.
func (s *Store) ContractMetricsHistory(ctx context.Context, chainID *uint64, since time.Time, limit int) ([]model.ContractMetrics, error) {
	var chainArg, sinceArg any
	if chainID != nil {
		chainArg = int64(*chainID)
	}
	if !since.IsZero() {
		sinceArg = since
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+metricsColumns+`
		FROM contract_metrics
		WHERE ($1::bigint IS NULL OR chain_id = $1)
			AND ($2::timestamptz IS NULL OR snapshot_at >= $2)
		ORDER BY snapshot_at DESC, id DESC
		LIMIT $3`, chainArg, sinceArg, limitArg(limit))
	if err != nil {
		return nil, err
	}
	return collectMetrics(rows)
}

func collectMetrics(rows pgx.Rows) ([]model.ContractMetrics, error) {
	defer rows.Close()
	out := make([]model.ContractMetrics, 0)
	for rows.Next() {
		var (
			m       model.ContractMetrics
			chainID int64
		)
		if err := rows.Scan(&chainID, &m.OrderCount, &m.TotalVolume, &m.SuccessfulOrders, &m.FailedOrders, &m.Timestamp); err != nil {
			return nil, err
		}
		m.ChainID = uint64(chainID)
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		order       model.Order
		chainID     int64
		blockNumber int64
	)
	if err := row.Scan(
		&chainID,
		&order.OrderID,
		&order.RequestID,
		&order.User,
		&order.Token,
		&order.Amount,
		&order.TxHash,
		&blockNumber,
		&order.Timestamp,
	); err != nil {
		return model.Order{}, err
	}
	order.ChainID = uint64(chainID)
	order.BlockNumber = uint64(blockNumber)
	order.Timestamp = order.Timestamp.UTC()
	return order, nil
}
