package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

type movementRepository struct {
	db *sql.DB
}

// NewMovementRepository создаёт PostgreSQL-журнал движений стока.
func NewMovementRepository(store *Store) domain.MovementRepository {
	return &movementRepository{db: store.DB()}
}

func (r *movementRepository) Append(ctx context.Context, movement domain.StockMovement) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}
	if movement.Occurred.IsZero() {
		movement.Occurred = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, order_id, delta, reason, stock_after, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		movement.ID, movement.ProductID, movement.OrderID, movement.Delta,
		string(movement.Reason), movement.StockAfter, movement.Occurred,
	)
	if err != nil {
		return fmt.Errorf("insert stock movement: %w", err)
	}
	return nil
}

func (r *movementRepository) List(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT id, product_id, order_id, delta, reason, stock_after, occurred_at
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY seq DESC
	`
	args := []any{productID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	defer rows.Close()

	result := make([]domain.StockMovement, 0)
	for rows.Next() {
		var (
			movement domain.StockMovement
			reason   string
		)
		if err := rows.Scan(
			&movement.ID, &movement.ProductID, &movement.OrderID, &movement.Delta,
			&reason, &movement.StockAfter, &movement.Occurred,
		); err != nil {
			return nil, fmt.Errorf("scan stock movement: %w", err)
		}
		movement.Reason = domain.MovementReason(reason)
		movement.Occurred = movement.Occurred.UTC()
		result = append(result, movement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock movements: %w", err)
	}
	return result, nil
}

var _ domain.MovementRepository = (*movementRepository)(nil)
