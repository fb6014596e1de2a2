package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"leeai-backend/internal/models"
)

type ExchangeRepo struct {
	pool *pgxpool.Pool
}

func NewExchangeRepo(pool *pgxpool.Pool) *ExchangeRepo {
	return &ExchangeRepo{pool: pool}
}

func (r *ExchangeRepo) Create(ctx context.Context, ex *models.Exchange) error {
	query := `INSERT INTO chat_exchanges (id, request_id, route, message, reply, status, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		ex.ID, ex.RequestID, ex.Route, ex.Message, ex.Reply, ex.Status, ex.DurationMS, ex.CreatedAt,
	)
	return err
}
