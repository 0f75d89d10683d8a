package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sundayhq/boardsync/internal/domain"
)

// BoardStateRepo loads persisted board item state. The engine treats this as
// read-only; a separate persistence pipeline owns writes to item_fields.
type BoardStateRepo struct {
	pool *pgxpool.Pool
}

func NewBoardStateRepo(pool *pgxpool.Pool) *BoardStateRepo {
	return &BoardStateRepo{pool: pool}
}

func (r *BoardStateRepo) LoadCurrentState(ctx context.Context, boardID uuid.UUID) ([]*domain.Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT i.id, f.field, f.value, f.seq, f.clock
		 FROM items i
		 JOIN item_fields f ON f.item_id = i.id
		 WHERE i.board_id = $1
		 ORDER BY i.id`,
		boardID,
	)
	if err != nil {
		return nil, fmt.Errorf("boardStateRepo.LoadCurrentState: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*domain.Item)
	var items []*domain.Item
	for rows.Next() {
		var (
			itemID uuid.UUID
			field  string
			fv     domain.FieldValue
		)

		err = rows.Scan(&itemID, &field, &fv.Value, &fv.Seq, &fv.Clock)
		if err != nil {
			return nil, fmt.Errorf("boardStateRepo.LoadCurrentState: scan: %w", err)
		}

		item, ok := byID[itemID]
		if !ok {
			item = &domain.Item{ID: itemID, BoardID: boardID, Fields: make(map[domain.Field]domain.FieldValue)}
			byID[itemID] = item
			items = append(items, item)
		}
		item.Fields[domain.Field(field)] = fv
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("boardStateRepo.LoadCurrentState: %w", err)
	}

	return items, nil
}
