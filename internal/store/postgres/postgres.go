// Package postgres persists orders in PostgreSQL through database/sql and
// the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/zoravur/orderfeed/internal/order"
)

const (
	orderCols = `id, menu_url, state, created_at, revision`
	entryCols = `id, order_id, buyer, food, price_millicents, paid`

	pgCheckViolation = "23514"
)

type Store struct {
	db *sql.DB
}

// Open connects to url and verifies the connection.
func Open(ctx context.Context, url string) (*Store, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// New wraps an existing handle. The store takes ownership of db.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Migrate(ctx context.Context) error { return Migrate(ctx, s.db) }

func (s *Store) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (order.Order, error) {
	var o order.Order
	var state int32
	if err := row.Scan(&o.ID, &o.MenuURL, &state, &o.CreatedAt, &o.Revision); err != nil {
		return order.Order{}, err
	}
	o.State = order.State(state)
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}

func scanEntry(row scanner) (order.Entry, error) {
	var e order.Entry
	var price int64
	if err := row.Scan(&e.ID, &e.OrderID, &e.Buyer, &e.Food, &price, &e.Paid); err != nil {
		return order.Entry{}, err
	}
	e.Price = order.Millicents(price)
	return e, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func entriesOf(ctx context.Context, q querier, orderID order.ID) ([]order.Entry, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+entryCols+` FROM order_entries WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []order.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func aggregateOf(ctx context.Context, q querier, id order.ID) (order.Aggregate, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return order.Aggregate{}, &order.NotFoundError{Kind: "order", ID: id}
	}
	if err != nil {
		return order.Aggregate{}, err
	}
	entries, err := entriesOf(ctx, q, id)
	if err != nil {
		return order.Aggregate{}, err
	}
	return order.Aggregate{Order: o, Entries: entries}, nil
}

// readTx runs fn in a read-only snapshot so an order and its entries are
// read from the same point in time.
func (s *Store) readTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) FindOrderWithEntries(ctx context.Context, id order.ID) (order.Aggregate, error) {
	var agg order.Aggregate
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		var err error
		agg, err = aggregateOf(ctx, tx, id)
		return err
	})
	return agg, wrap("find order", err)
}

// ListOrders returns every order with its entries, newest first.
func (s *Store) ListOrders(ctx context.Context) ([]order.Aggregate, error) {
	var out []order.Aggregate
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+orderCols+` FROM orders ORDER BY id DESC`)
		if err != nil {
			return err
		}
		index := map[order.ID]int{}
		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				rows.Close()
				return err
			}
			index[o.ID] = len(out)
			out = append(out, order.Aggregate{Order: o, Entries: []order.Entry{}})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		erows, err := tx.QueryContext(ctx, `SELECT `+entryCols+` FROM order_entries ORDER BY order_id, id`)
		if err != nil {
			return err
		}
		defer erows.Close()
		for erows.Next() {
			e, err := scanEntry(erows)
			if err != nil {
				return err
			}
			if i, ok := index[e.OrderID]; ok {
				out[i].Entries = append(out[i].Entries, e)
			}
		}
		return erows.Err()
	})
	if err != nil {
		return nil, wrap("list orders", err)
	}
	if out == nil {
		out = []order.Aggregate{}
	}
	return out, nil
}

func (s *Store) CreateOrder(ctx context.Context, menuURL string) (order.Aggregate, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx,
		`INSERT INTO orders (menu_url, state) VALUES ($1, $2) RETURNING `+orderCols,
		menuURL, int32(order.StateOpen)))
	if err != nil {
		return order.Aggregate{}, wrap("create order", err)
	}
	return order.Aggregate{Order: o, Entries: []order.Entry{}}, nil
}

// mutate locks the order row, runs fn, bumps the revision and returns the
// aggregate as committed. Nothing is written when fn fails.
func (s *Store) mutate(ctx context.Context, op string, id order.ID, fn func(tx *sql.Tx, o order.Order) error) (order.Aggregate, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return order.Aggregate{}, wrap(op, err)
	}
	defer tx.Rollback()

	o, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return order.Aggregate{}, &order.NotFoundError{Kind: "order", ID: id}
	}
	if err != nil {
		return order.Aggregate{}, wrap(op, err)
	}
	if err := fn(tx, o); err != nil {
		return order.Aggregate{}, wrap(op, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE orders SET revision = revision + 1 WHERE id = $1`, id); err != nil {
		return order.Aggregate{}, wrap(op, err)
	}
	agg, err := aggregateOf(ctx, tx, id)
	if err != nil {
		return order.Aggregate{}, wrap(op, err)
	}
	if err := tx.Commit(); err != nil {
		return order.Aggregate{}, wrap(op, err)
	}
	return agg, nil
}

func (s *Store) InsertEntry(ctx context.Context, orderID order.ID, e order.NewEntry) (order.Aggregate, error) {
	return s.mutate(ctx, "insert entry", orderID, func(tx *sql.Tx, o order.Order) error {
		if err := o.CheckEditable(); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_entries (order_id, buyer, food, price_millicents) VALUES ($1, $2, $3, $4)`,
			orderID, e.Buyer, e.Food, e.Price.Raw())
		return err
	})
}

func (s *Store) DeleteEntry(ctx context.Context, orderID, entryID order.ID) (order.Aggregate, error) {
	return s.mutate(ctx, "delete entry", orderID, func(tx *sql.Tx, o order.Order) error {
		if err := o.CheckEditable(); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM order_entries WHERE id = $1 AND order_id = $2`, entryID, orderID)
		if err != nil {
			return err
		}
		return expectOne(res, entryID)
	})
}

func (s *Store) SetEntryPaid(ctx context.Context, orderID, entryID order.ID, paid bool) (order.Aggregate, error) {
	return s.mutate(ctx, "set entry paid", orderID, func(tx *sql.Tx, _ order.Order) error {
		res, err := tx.ExecContext(ctx, `UPDATE order_entries SET paid = $1 WHERE id = $2 AND order_id = $3`, paid, entryID, orderID)
		if err != nil {
			return err
		}
		return expectOne(res, entryID)
	})
}

func (s *Store) SetOrderState(ctx context.Context, orderID order.ID, next order.State) (order.Aggregate, error) {
	return s.mutate(ctx, "set order state", orderID, func(tx *sql.Tx, o order.Order) error {
		if err := o.CheckTransition(next); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE orders SET state = $1 WHERE id = $2`, int32(next), orderID)
		return err
	})
}

func expectOne(res sql.Result, entryID order.ID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &order.NotFoundError{Kind: "entry", ID: entryID}
	}
	return nil
}

// wrap adds op context to storage errors. Domain errors pass through
// untouched and check-constraint violations become validation errors.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, order.ErrNotFound) || errors.Is(err, order.ErrInvalidArgument) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
		return &order.ValidationError{Field: pgErr.ConstraintName, Reason: "violates " + pgErr.ConstraintName}
	}
	return fmt.Errorf("%s: %w", op, err)
}
