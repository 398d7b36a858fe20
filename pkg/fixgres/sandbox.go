package fixgres

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/binary"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
)

// Sandbox is a schema private to one test. Every pooled connection of DB
// has its search_path pointed at it.
type Sandbox struct {
	DB     *sql.DB
	Schema string
	Seed   int64
	Close  func()
}

var (
	bootOnce sync.Once
	bootErr  error
	counter  atomic.Int64
	gooseMu  sync.Mutex
)

// BootOnce starts the shared container on first use. Tests are skipped in
// -short mode or when no container runtime is reachable.
func BootOnce(t *testing.T, opts ...Option) {
	t.Helper()
	if testing.Short() {
		t.Skip("fixgres: skipping container tests in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	bootOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		cfg := &config{}
		for _, o := range opts {
			o(cfg)
		}
		cfg.defaults()
		bootErr = boot(ctx, cfg)
	})
	if bootErr != nil {
		t.Fatalf("fixgres boot failed: %v", bootErr)
	}
}

func NewSandbox(t *testing.T) *Sandbox {
	t.Helper()
	mu.Lock()
	base, cfg := connString, active
	mu.Unlock()
	if cfg == nil {
		t.Fatalf("fixgres not booted. Call fixgres.BootOnce(t, ...) first.")
	}

	admin, err := sql.Open("pgx", base) // admin connection (no search_path)
	if err != nil {
		t.Fatalf("open admin: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n := counter.Add(1)
	schema := fmt.Sprintf("t_%x_%d", time.Now().UnixNano(), n)
	if _, err := admin.ExecContext(ctx, `CREATE SCHEMA "`+schema+`"`); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	db, err := sql.Open("pgx", withSearchPath(base, schema))
	if err != nil {
		t.Fatalf("open sandbox: %v", err)
	}

	sbx := &Sandbox{
		DB:     db,
		Schema: schema,
		Seed:   cfg.seed + n,
	}
	var once sync.Once
	sbx.Close = func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = db.Close()
			_, _ = admin.ExecContext(ctx, `DROP SCHEMA IF EXISTS "`+schema+`" CASCADE`)
			_ = admin.Close()
		})
	}
	t.Cleanup(sbx.Close)

	if cfg.migFS != nil {
		if err := migrate(ctx, db, cfg); err != nil {
			t.Fatalf("migrate sandbox %s: %v", schema, err)
		}
	}
	t.Logf("fixgres: schema %s seed %d", schema, sbx.Seed)
	return sbx
}

// goose keeps its settings in package globals.
func migrate(ctx context.Context, db *sql.DB, cfg *config) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(cfg.migFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func withSearchPath(base, schema string) string {
	u, _ := url.Parse(base)
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String()
}

func randomSeed() int64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return int64(binary.LittleEndian.Uint64(b[:]) >> 1)
}
