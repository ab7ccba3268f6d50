package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gymstock/backend/internal/bom"
	"gymstock/backend/internal/domain"
	"gymstock/backend/internal/store"
	"gymstock/backend/internal/xid"
)

// Store is the PostgreSQL Repository. Each Record* operation runs in a
// SERIALIZABLE transaction with row locks on the touched product and user
// rows, so the multi-step atomic units never interleave.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'SIMPLE',
			unit TEXT NOT NULL DEFAULT 'unid',
			price_cents BIGINT NOT NULL,
			stock BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS recipes (
			product_id BIGINT NOT NULL,
			component_id BIGINT NOT NULL,
			qty DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS recipes_product_idx ON recipes (product_id)`,
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			balance_cents BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id BIGSERIAL PRIMARY KEY,
			product_id BIGINT NOT NULL,
			user_id BIGINT,
			quantity BIGINT NOT NULL,
			total_cents BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			amount_cents BIGINT NOT NULL,
			method TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS purchases (
			id BIGSERIAL PRIMARY KEY,
			product_id BIGINT NOT NULL,
			quantity BIGINT NOT NULL,
			cost_cents BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			actor_username TEXT NOT NULL DEFAULT '',
			actor_role TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS staff_accounts (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, kind, unit, price_cents, stock
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Kind, &p.Unit, &p.PriceCents, &p.Stock); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 0 || !isValidKind(product.Kind) {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, category, kind, unit, price_cents, stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		RETURNING id
	`, product.Name, product.Category, product.Kind, product.Unit, product.PriceCents, product.Stock).Scan(&product.ID)
	if err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, kind, unit, price_cents, stock
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Category, &product.Kind, &product.Unit, &product.PriceCents, &product.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 0 || !isValidKind(product.Kind) {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, kind = $4, unit = $5, price_cents = $6, stock = $7, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.Kind, product.Unit, product.PriceCents, product.Stock)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	// Recipe edges and ledger rows referencing the product are left behind
	// on purpose, matching the reference system's dangling-reference latitude.
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, id int64, delta float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1
	`, id, bom.RoundDelta(delta))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SetRecipe replaces the full edge set in one transaction: old edges are
// deleted and new ones inserted atomically, after validating the resulting
// graph stays acyclic.
func (s *Store) SetRecipe(ctx context.Context, productID int64, components []domain.RecipeComponent) error {
	if len(components) == 0 {
		return store.ErrInvalidInput
	}
	for _, c := range components {
		if c.ComponentID < 1 || c.Qty <= 0 {
			return store.ErrInvalidInput
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}

	graph, err := loadRecipeGraph(ctx, tx)
	if err != nil {
		return err
	}
	graph[productID] = components
	if err := bom.Validate(graph, productID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM recipes WHERE product_id = $1`, productID); err != nil {
		return err
	}
	for _, c := range components {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recipes (product_id, component_id, qty) VALUES ($1,$2,$3)
		`, productID, c.ComponentID, c.Qty); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GetRecipe(ctx context.Context, productID int64) ([]domain.RecipeComponent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.component_id, COALESCE(p.name, ''), r.qty
		FROM recipes r
		LEFT JOIN products p ON p.id = r.component_id
		WHERE r.product_id = $1
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	components := make([]domain.RecipeComponent, 0, 8)
	for rows.Next() {
		var c domain.RecipeComponent
		if err := rows.Scan(&c.ComponentID, &c.ComponentName, &c.Qty); err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return components, nil
}

func (s *Store) ClearRecipe(ctx context.Context, productID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM recipes WHERE product_id = $1`, productID)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.Name == "" {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, phone, balance_cents, created_at)
		VALUES ($1,$2,$3,now())
		RETURNING id
	`, user.Name, user.Phone, user.BalanceCents).Scan(&user.ID)
	if err != nil {
		return nil, err
	}

	created := user
	return &created, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, balance_cents
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 32)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Phone, &u.BalanceCents); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, balance_cents FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.Phone, &user.BalanceCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RecordSale applies the full atomic unit of a sale inside one serializable
// transaction: top-level stock check against the requested product's own row,
// recursive leaf deductions, sale insert and wallet debit. Leaf feasibility
// is deliberately not verified, so composite sales may drive leaves negative.
func (s *Store) RecordSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ProductID < 1 || sale.Quantity < 1 || sale.TotalCents < 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var stock int64
	err = tx.QueryRowContext(ctx, `
		SELECT stock FROM products WHERE id = $1 FOR UPDATE
	`, sale.ProductID).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, sale.ProductID)
		}
		return nil, err
	}
	if stock < sale.Quantity {
		return nil, fmt.Errorf("%w: product %d has %d in stock", store.ErrInsufficientStock, sale.ProductID, stock)
	}

	if sale.UserID != nil {
		var userID int64
		err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, *sale.UserID).Scan(&userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: user %d", store.ErrNotFound, *sale.UserID)
			}
			return nil, err
		}
	}

	graph, err := loadRecipeGraph(ctx, tx)
	if err != nil {
		return nil, err
	}
	leaves, err := bom.Explode(graph, sale.ProductID, float64(sale.Quantity))
	if err != nil {
		return nil, err
	}

	for id, qty := range leaves {
		// A dangling edge to a deleted product matches zero rows and
		// silently deducts nothing, as in the reference system.
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1
		`, id, bom.RoundDelta(qty)); err != nil {
			return nil, err
		}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (product_id, user_id, quantity, total_cents, created_at)
		VALUES ($1,$2,$3,$4,now())
		RETURNING id, created_at
	`, sale.ProductID, sale.UserID, sale.Quantity, sale.TotalCents).Scan(&sale.ID, &sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	if sale.UserID != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET balance_cents = balance_cents - $2 WHERE id = $1
		`, *sale.UserID, sale.TotalCents); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	sale.CreatedAt = sale.CreatedAt.UTC()
	created := sale
	return &created, nil
}

func (s *Store) RecordPayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	if payment.UserID < 1 || payment.AmountCents < 1 || payment.Method == "" {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE users SET balance_cents = balance_cents + $2 WHERE id = $1
	`, payment.UserID, payment.AmountCents)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: user %d", store.ErrNotFound, payment.UserID)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO payments (user_id, amount_cents, method, created_at)
		VALUES ($1,$2,$3,now())
		RETURNING id, created_at
	`, payment.UserID, payment.AmountCents, payment.Method).Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	payment.CreatedAt = payment.CreatedAt.UTC()
	created := payment
	return &created, nil
}

func (s *Store) RecordPurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.ProductID < 1 || purchase.Quantity < 1 || purchase.CostCents < 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Restocking lands on the leaf the purchase names; the recipe graph is
	// never traversed on the way in.
	res, err := tx.ExecContext(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1
	`, purchase.ProductID, purchase.Quantity)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, purchase.ProductID)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO purchases (product_id, quantity, cost_cents, created_at)
		VALUES ($1,$2,$3,now())
		RETURNING id, created_at
	`, purchase.ProductID, purchase.Quantity, purchase.CostCents).Scan(&purchase.ID, &purchase.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	purchase.CreatedAt = purchase.CreatedAt.UTC()
	created := purchase
	return &created, nil
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.SaleRecord, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.product_id, COALESCE(p.name, ''), COALESCE(u.name, ''), s.quantity, s.total_cents, s.created_at
		FROM sales s
		LEFT JOIN products p ON p.id = s.product_id
		LEFT JOIN users u ON u.id = s.user_id
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.SaleRecord, 0, limit)
	for rows.Next() {
		var r domain.SaleRecord
		if err := rows.Scan(&r.ID, &r.ProductID, &r.ProductName, &r.UserName, &r.Quantity, &r.TotalCents, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) ListPurchases(ctx context.Context, limit int) ([]domain.PurchaseRecord, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.product_id, COALESCE(p.name, ''), c.quantity, c.cost_cents, c.created_at
		FROM purchases c
		LEFT JOIN products p ON p.id = c.product_id
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.PurchaseRecord, 0, limit)
	for rows.Next() {
		var r domain.PurchaseRecord
		if err := rows.Scan(&r.ID, &r.ProductID, &r.ProductName, &r.Quantity, &r.CostCents, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) GetFinancialSummary(ctx context.Context) (domain.FinancialSummary, error) {
	var summary domain.FinancialSummary

	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(total_cents), 0) FROM sales`).Scan(&summary.TotalSalesCents)
	if err != nil {
		return domain.FinancialSummary{}, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(cost_cents), 0) FROM purchases`).Scan(&summary.TotalPurchasesCents)
	if err != nil {
		return domain.FinancialSummary{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, SUM(s.total_cents), u.balance_cents
		FROM sales s
		JOIN users u ON u.id = s.user_id
		GROUP BY u.id, u.name, u.balance_cents
		ORDER BY u.id
	`)
	if err != nil {
		return domain.FinancialSummary{}, err
	}
	defer rows.Close()

	summary.ByUser = make([]domain.UserSalesSummary, 0, 32)
	for rows.Next() {
		var entry domain.UserSalesSummary
		if err := rows.Scan(&entry.UserID, &entry.Name, &entry.SalesCents, &entry.BalanceCents); err != nil {
			return domain.FinancialSummary{}, err
		}
		summary.ByUser = append(summary.ByUser, entry)
	}
	if err := rows.Err(); err != nil {
		return domain.FinancialSummary{}, err
	}

	return summary, nil
}

func (s *Store) GetCombinedHistory(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, 'sale' AS kind, COALESCE(p.name, '') AS detail, CAST(s.quantity AS TEXT) AS info, s.total_cents AS amount, s.created_at
		FROM sales s
		LEFT JOIN products p ON p.id = s.product_id
		UNION ALL
		SELECT pay.id, 'payment' AS kind, COALESCE(u.name, '') AS detail, pay.method AS info, pay.amount_cents AS amount, pay.created_at
		FROM payments pay
		LEFT JOIN users u ON u.id = pay.user_id
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.HistoryEntry, 0, limit)
	for rows.Next() {
		var entry domain.HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.Kind, &entry.Detail, &entry.Info, &entry.AmountCents, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) GetUserStatement(ctx context.Context, userID int64) (domain.UserStatement, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return domain.UserStatement{}, err
	}

	statement := domain.UserStatement{
		UserID:       user.ID,
		UserName:     user.Name,
		BalanceCents: user.BalanceCents,
		Entries:      make([]domain.HistoryEntry, 0, 32),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, 'sale' AS kind, COALESCE(p.name, '') AS detail, CAST(s.quantity AS TEXT) AS info, s.total_cents AS amount, s.created_at
		FROM sales s
		LEFT JOIN products p ON p.id = s.product_id
		WHERE s.user_id = $1
		UNION ALL
		SELECT pay.id, 'payment' AS kind, pay.method AS detail, '-' AS info, pay.amount_cents AS amount, pay.created_at
		FROM payments pay
		WHERE pay.user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return domain.UserStatement{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry domain.HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.Kind, &entry.Detail, &entry.Info, &entry.AmountCents, &entry.CreatedAt); err != nil {
			return domain.UserStatement{}, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		if entry.Kind == domain.HistoryKindSale {
			statement.TotalSalesCents += entry.AmountCents
		} else {
			statement.TotalPaymentsCents += entry.AmountCents
		}
		statement.Entries = append(statement.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return domain.UserStatement{}, err
	}

	return statement, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateAccount(ctx context.Context, account domain.StaffAccount) error {
	if account.Username == "" || account.Password == "" {
		return store.ErrInvalidInput
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff_accounts (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, account.Username, account.Password, account.Role, account.Active, account.CreatedAt)
	return err
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.StaffAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM staff_accounts
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.StaffAccount, 0, 8)
	for rows.Next() {
		var account domain.StaffAccount
		if err := rows.Scan(&account.Username, &account.Password, &account.Role, &account.Active, &account.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Store) UpdateAccountPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE staff_accounts SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// loadRecipeGraph snapshots the whole recipes table. The catalog is small by
// design (a single shop), so one scan per sale beats per-node queries.
func loadRecipeGraph(ctx context.Context, tx *sql.Tx) (bom.Graph, error) {
	rows, err := tx.QueryContext(ctx, `SELECT product_id, component_id, qty FROM recipes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	graph := make(bom.Graph, 16)
	for rows.Next() {
		var productID int64
		var c domain.RecipeComponent
		if err := rows.Scan(&productID, &c.ComponentID, &c.Qty); err != nil {
			return nil, err
		}
		graph[productID] = append(graph[productID], c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return graph, nil
}

func isValidKind(kind string) bool {
	switch kind {
	case domain.KindSimple, domain.KindIngredient, domain.KindComposite:
		return true
	}
	return false
}
