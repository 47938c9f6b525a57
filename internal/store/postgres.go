package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"slotbook/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	db *sql.DB
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: verify connection: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded migrations not yet recorded in schema_migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("migrate: list: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		version := strings.TrimSuffix(strings.TrimPrefix(name, "migrations/"), ".sql")
		var exists bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists); err != nil {
			return fmt.Errorf("migrate %s: check: %w", version, err)
		}
		if exists {
			continue
		}
		body, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("migrate %s: read: %w", version, err)
		}
		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migrate %s: begin: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate %s: apply: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate %s: record: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate %s: commit: %w", version, err)
		}
	}
	return nil
}

// InDayTx runs fn in a READ COMMITTED transaction. Serialization failures,
// deadlocks and unique violations surface as ErrConflict.
func (p *Postgres) InDayTx(ctx context.Context, day string, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("day tx: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{tx: tx, day: day}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("day tx: commit: %w", err))
	}
	return nil
}

// classify maps retryable SQLSTATEs onto ErrConflict.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %s (%s)", ErrConflict, pgErr.Message, pgErr.Code)
		}
	}
	return err
}

const stopColumns = `id::text, delivery_day::text, zone, start_minutes, capacity_used, capacity_max, created_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanStop(r rowScanner) (model.Stop, error) {
	var s model.Stop
	err := r.Scan(&s.ID, &s.Day, &s.Zone, &s.StartMinutes, &s.CapacityUsed, &s.CapacityMax, &s.CreatedAt)
	return s, err
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listStops(ctx context.Context, q queryer, day string) ([]model.Stop, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+stopColumns+` FROM delivery_stops WHERE delivery_day=$1::date ORDER BY start_minutes`, day)
	if err != nil {
		return nil, fmt.Errorf("list stops: %w", err)
	}
	defer rows.Close()
	out := []model.Stop{}
	for rows.Next() {
		s, err := scanStop(rows)
		if err != nil {
			return nil, fmt.Errorf("list stops: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListStops(ctx context.Context, day string) ([]model.Stop, error) {
	return listStops(ctx, p.db, day)
}

func (p *Postgres) LoadTravelTimes(ctx context.Context) ([]model.TravelTime, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT from_zone, to_zone, minutes FROM travel_times ORDER BY from_zone, to_zone`)
	if err != nil {
		return nil, fmt.Errorf("load travel times: %w", err)
	}
	defer rows.Close()
	out := []model.TravelTime{}
	for rows.Next() {
		var r model.TravelTime
		if err := rows.Scan(&r.FromZone, &r.ToZone, &r.Minutes); err != nil {
			return nil, fmt.Errorf("load travel times: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceTravelTimes swaps the whole reference table in one transaction.
func (p *Postgres) ReplaceTravelTimes(ctx context.Context, rows []model.TravelTime) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("replace travel times: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM travel_times`); err != nil {
		return 0, fmt.Errorf("replace travel times: clear: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO travel_times (from_zone, to_zone, minutes) VALUES ($1, $2, $3)
		ON CONFLICT (from_zone, to_zone) DO UPDATE SET minutes = EXCLUDED.minutes`)
	if err != nil {
		return 0, fmt.Errorf("replace travel times: prepare: %w", err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.FromZone, r.ToZone, r.Minutes); err != nil {
			return 0, fmt.Errorf("replace travel times %s->%s: %w", r.FromZone, r.ToZone, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("replace travel times: commit: %w", err)
	}
	return len(rows), nil
}

func (p *Postgres) ListProducts(ctx context.Context, activeOnly bool) ([]model.Product, error) {
	q := `SELECT id, name, price_cents, stock_qty, is_active FROM products`
	if activeOnly {
		q += ` WHERE is_active`
	}
	rows, err := p.db.QueryContext(ctx, q+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	out := []model.Product{}
	for rows.Next() {
		var pr model.Product
		if err := rows.Scan(&pr.ID, &pr.Name, &pr.PriceCents, &pr.StockQty, &pr.Active); err != nil {
			return nil, fmt.Errorf("list products: scan: %w", err)
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertProduct(ctx context.Context, pr model.Product) (model.Product, error) {
	if pr.ID == "" {
		pr.ID = uuid.New().String()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO products (id, name, price_cents, stock_qty, is_active) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, price_cents=EXCLUDED.price_cents,
			stock_qty=EXCLUDED.stock_qty, is_active=EXCLUDED.is_active, updated_at=now()`,
		pr.ID, pr.Name, pr.PriceCents, pr.StockQty, pr.Active)
	if err != nil {
		return model.Product{}, fmt.Errorf("upsert product %s: %w", pr.ID, err)
	}
	return pr, nil
}

const orderSelect = `SELECT o.id::text, o.stop_id::text, s.delivery_day::text, s.zone, s.start_minutes,
	o.customer_id, o.note, o.items, o.total_cents, o.is_completed, o.created_at
	FROM orders o JOIN delivery_stops s ON s.id = o.stop_id`

func scanOrder(r rowScanner) (model.Order, error) {
	var o model.Order
	var customer, note sql.NullString
	var items []byte
	if err := r.Scan(&o.ID, &o.StopID, &o.Day, &o.Zone, &o.StartMinutes, &customer, &note, &items, &o.TotalCents, &o.Completed, &o.CreatedAt); err != nil {
		return o, err
	}
	if customer.Valid {
		o.CustomerID = &customer.String
	}
	if note.Valid {
		o.Note = &note.String
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("decode items of order %s: %w", o.ID, err)
	}
	return o, nil
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (model.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Order{}, ErrNotFound
	}
	o, err := scanOrder(p.db.QueryRowContext(ctx, orderSelect+` WHERE o.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

func (p *Postgres) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	var where []string
	var args []any
	if f.Day != "" {
		args = append(args, f.Day)
		where = append(where, fmt.Sprintf("s.delivery_day=$%d::date", len(args)))
	}
	if f.CustomerID != "" {
		args = append(args, f.CustomerID)
		where = append(where, fmt.Sprintf("o.customer_id=$%d", len(args)))
	}
	q := orderSelect
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY o.created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("list orders: scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) SetOrderCompleted(ctx context.Context, id string, completed bool) (model.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Order{}, ErrNotFound
	}
	res, err := p.db.ExecContext(ctx, `UPDATE orders SET is_completed=$2 WHERE id=$1`, id, completed)
	if err != nil {
		return model.Order{}, fmt.Errorf("complete order %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Order{}, ErrNotFound
	}
	return p.GetOrder(ctx, id)
}

// pgTx implements Tx over one database transaction.
type pgTx struct {
	tx  *sql.Tx
	day string
}

func (t *pgTx) Stops(ctx context.Context) ([]model.Stop, error) {
	return listStops(ctx, t.tx, t.day)
}

// LockDay takes a transaction-scoped advisory lock keyed by the day.
func (t *pgTx) LockDay(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "delivery_day:"+t.day); err != nil {
		return fmt.Errorf("lock day %s: %w", t.day, err)
	}
	return nil
}

func (t *pgTx) Products(ctx context.Context, ids []string) (map[string]model.Product, error) {
	out := make(map[string]model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := t.tx.QueryContext(ctx, `SELECT id, name, price_cents, stock_qty, is_active FROM products WHERE id = ANY($1::text[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pr model.Product
		if err := rows.Scan(&pr.ID, &pr.Name, &pr.PriceCents, &pr.StockQty, &pr.Active); err != nil {
			return nil, fmt.Errorf("load products: scan: %w", err)
		}
		out[pr.ID] = pr
	}
	return out, rows.Err()
}

func (t *pgTx) IncrementStop(ctx context.Context, key model.StopKey) (model.Stop, error) {
	s, err := scanStop(t.tx.QueryRowContext(ctx, `UPDATE delivery_stops SET capacity_used = capacity_used + 1
		WHERE delivery_day=$1::date AND zone=$2 AND start_minutes=$3 AND capacity_used < capacity_max
		RETURNING `+stopColumns, key.Day, key.Zone, key.StartMinutes))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Stop{}, fmt.Errorf("increment stop: %w", err)
	}
	var exists bool
	if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM delivery_stops WHERE delivery_day=$1::date AND zone=$2 AND start_minutes=$3)`,
		key.Day, key.Zone, key.StartMinutes).Scan(&exists); err != nil {
		return model.Stop{}, fmt.Errorf("increment stop: check: %w", err)
	}
	if exists {
		return model.Stop{}, ErrStopFull
	}
	return model.Stop{}, ErrNotFound
}

// CreateStop relies on the unique key; a lost insert race returns ErrConflict
// without aborting the transaction.
func (t *pgTx) CreateStop(ctx context.Context, key model.StopKey, capacityMax int) (model.Stop, error) {
	s, err := scanStop(t.tx.QueryRowContext(ctx, `INSERT INTO delivery_stops (id, delivery_day, zone, start_minutes, capacity_used, capacity_max)
		VALUES ($1, $2::date, $3, $4, 1, $5)
		ON CONFLICT ON CONSTRAINT delivery_stops_key DO NOTHING
		RETURNING `+stopColumns, uuid.New(), key.Day, key.Zone, key.StartMinutes, capacityMax))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Stop{}, ErrConflict
	}
	if err != nil {
		return model.Stop{}, fmt.Errorf("create stop: %w", err)
	}
	return s, nil
}

func (t *pgTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE products SET stock_qty = stock_qty - $2, updated_at = now() WHERE id=$1 AND stock_qty >= $2`, productID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock %s: %w", productID, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var exists bool
	if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id=$1)`, productID).Scan(&exists); err != nil {
		return fmt.Errorf("decrement stock %s: check: %w", productID, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInsufficientStock
}

func (t *pgTx) InsertOrder(ctx context.Context, o model.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("insert order: encode items: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO orders (id, stop_id, customer_id, note, items, total_cents, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`,
		o.ID, o.StopID, nullIfNil(o.CustomerID), nullIfNil(o.Note), string(items), o.TotalCents, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func nullIfNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
