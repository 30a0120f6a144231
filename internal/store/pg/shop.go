package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storegate.org/internal/ids"
	"storegate.org/internal/shop"
)

var _ shop.Store = (*Store)(nil)

func (s *Store) CreateProduct(ctx context.Context, p shop.Product) (shop.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into products (id, sku, name, description, price, inventory, status)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id, sku, name, coalesce(description, ''), price, inventory, status, created_at, updated_at
	`, ids.New(), p.SKU, p.Name, nullIfEmpty(p.Description), p.Price, p.Inventory, p.Status)
	out, err := scanProduct(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return shop.Product{}, shop.ErrConflict
		}
		return shop.Product{}, err
	}
	return out, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (shop.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, sku, name, coalesce(description, ''), price, inventory, status, created_at, updated_at
		from products where id = $1
	`, id)
	out, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return shop.Product{}, shop.ErrNotFound
	}
	if err != nil {
		return shop.Product{}, err
	}
	return out, nil
}

func (s *Store) ListProducts(ctx context.Context, limit int) ([]shop.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, sku, name, coalesce(description, ''), price, inventory, status, created_at, updated_at
		from products
		order by name
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []shop.Product
	for rows.Next() {
		var p shop.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Price, &p.Inventory, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, id string, upd shop.ProductUpdate) (shop.Product, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Description))
		idx++
	}
	if upd.Price != nil {
		sets = append(sets, fmt.Sprintf("price = $%d", idx))
		args = append(args, *upd.Price)
		idx++
	}
	if upd.Inventory != nil {
		sets = append(sets, fmt.Sprintf("inventory = $%d", idx))
		args = append(args, *upd.Inventory)
		idx++
	}
	if upd.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", idx))
		args = append(args, *upd.Status)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update products set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return shop.Product{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return shop.Product{}, err
		}
		if aff == 0 {
			return shop.Product{}, shop.ErrNotFound
		}
	}
	return s.GetProduct(ctx, id)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from products where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return shop.ErrNotFound
	}
	return nil
}

func (s *Store) CreateCategory(ctx context.Context, c shop.Category) (shop.Category, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into categories (id, name, description)
		values ($1, $2, $3)
		returning id, name, coalesce(description, ''), created_at, updated_at
	`, ids.New(), c.Name, nullIfEmpty(c.Description))
	var out shop.Category
	if err := row.Scan(&out.ID, &out.Name, &out.Description, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return shop.Category{}, shop.ErrConflict
		}
		return shop.Category{}, err
	}
	return out, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]shop.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, coalesce(description, ''), created_at, updated_at
		from categories
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []shop.Category
	for rows.Next() {
		var c shop.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) CreateOrder(ctx context.Context, o shop.Order) (shop.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return shop.Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	id := ids.New()
	row := tx.QueryRowContext(ctx, `
		insert into orders (id, user_id, status, total_amount)
		values ($1, $2, $3, $4)
		returning id, user_id, status, total_amount, created_at, updated_at
	`, id, o.UserID, o.Status, o.TotalAmount)
	var created shop.Order
	if err := row.Scan(&created.ID, &created.UserID, &created.Status, &created.TotalAmount, &created.CreatedAt, &created.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return shop.Order{}, shop.ErrNotFound
		}
		return shop.Order{}, err
	}

	for _, item := range o.Items {
		if _, err := tx.ExecContext(ctx, `
			insert into order_items (order_id, product_id, quantity, unit_price)
			values ($1, $2, $3, $4)
		`, id, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return shop.Order{}, shop.ErrNotFound
			}
			return shop.Order{}, err
		}
		item.OrderID = id
		created.Items = append(created.Items, item)
	}

	if err := tx.Commit(); err != nil {
		return shop.Order{}, err
	}
	return created, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (shop.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, user_id, status, total_amount, created_at, updated_at
		from orders where id = $1
	`, id)
	var o shop.Order
	if err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shop.Order{}, shop.ErrNotFound
		}
		return shop.Order{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select order_id, product_id, quantity, unit_price
		from order_items where order_id = $1
	`, id)
	if err != nil {
		return shop.Order{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var item shop.OrderItem
		if err := rows.Scan(&item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return shop.Order{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

func (s *Store) ListOrdersForUser(ctx context.Context, userID string, limit int) ([]shop.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, status, total_amount, created_at, updated_at
		from orders
		where user_id = $1
		order by created_at desc
		limit $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []shop.Order
	for rows.Next() {
		var o shop.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id, status string) (shop.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		update orders set status = $2, updated_at = now() where id = $1
	`, id, status)
	if err != nil {
		return shop.Order{}, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return shop.Order{}, err
	}
	if aff == 0 {
		return shop.Order{}, shop.ErrNotFound
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) CreatePayment(ctx context.Context, p shop.Payment) (shop.Payment, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into payments (id, order_id, amount, method, status)
		values ($1, $2, $3, $4, $5)
		returning id, order_id, amount, method, status, created_at, updated_at
	`, ids.New(), p.OrderID, p.Amount, p.Method, p.Status)
	var out shop.Payment
	if err := row.Scan(&out.ID, &out.OrderID, &out.Amount, &out.Method, &out.Status, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return shop.Payment{}, shop.ErrNotFound
		}
		return shop.Payment{}, err
	}
	return out, nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (shop.Payment, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, order_id, amount, method, status, created_at, updated_at
		from payments where id = $1
	`, id)
	var p shop.Payment
	if err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shop.Payment{}, shop.ErrNotFound
		}
		return shop.Payment{}, err
	}
	return p, nil
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, id, status string) (shop.Payment, error) {
	res, err := s.db.ExecContext(ctx, `
		update payments set status = $2, updated_at = now() where id = $1
	`, id, status)
	if err != nil {
		return shop.Payment{}, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return shop.Payment{}, err
	}
	if aff == 0 {
		return shop.Payment{}, shop.ErrNotFound
	}
	return s.GetPayment(ctx, id)
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func scanProduct(row *sql.Row) (shop.Product, error) {
	var p shop.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Price, &p.Inventory, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return shop.Product{}, err
	}
	return p, nil
}
