package db

import (
	"context"
	"fmt"
)

// ListOrdersWithDueDate returns orders that have a due date, earliest first
func (r *Repository) ListOrdersWithDueDate(ctx context.Context) ([]*Order, error) {
	query := `
		SELECT id, product_type, code, remaining, due_date
		FROM orders
		WHERE due_date IS NOT NULL
		ORDER BY due_date ASC
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.ProductType, &o.Code, &o.Remaining, &o.DueDate); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return orders, nil
}

// ListStockItems returns stock balances ordered by remaining quantity
func (r *Repository) ListStockItems(ctx context.Context) ([]*StockItem, error) {
	query := `
		SELECT id, name, code, remaining
		FROM inventory
		ORDER BY remaining ASC
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	var items []*StockItem
	for rows.Next() {
		var it StockItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Code, &it.Remaining); err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		items = append(items, &it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return items, nil
}
