// Package fixgres boots one throwaway Postgres container per test binary
// and hands each test its own schema inside it.
package fixgres

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type config struct {
	image    string
	dbName   string
	user     string
	password string
	migFS    fs.FS
	seed     int64
}

type Option func(*config)

func WithImage(i string) Option    { return func(c *config) { c.image = i } }
func WithDBName(n string) Option   { return func(c *config) { c.dbName = n } }
func WithUser(u string) Option     { return func(c *config) { c.user = u } }
func WithPassword(p string) Option { return func(c *config) { c.password = p } }

// WithGooseUp runs the goose migrations in migFS inside every sandbox.
func WithGooseUp(migFS fs.FS) Option {
	return func(c *config) { c.migFS = migFS }
}

// WithSeed fixes the base seed handed to sandboxes. FIXGRES_SEED overrides
// it so a failing run can be replayed.
func WithSeed(seed int64) Option { return func(c *config) { c.seed = seed } }

func (c *config) defaults() {
	if c.image == "" {
		c.image = "docker.io/postgres:16-alpine"
	}
	if c.dbName == "" {
		c.dbName = "app"
	}
	if c.user == "" {
		c.user = "postgres"
	}
	if c.password == "" {
		c.password = "pass"
	}
	if v := os.Getenv("FIXGRES_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.seed = n
		}
	}
	if c.seed == 0 {
		c.seed = randomSeed()
	}
}

var (
	mu         sync.Mutex
	pg         *postgres.PostgresContainer
	connString string
	active     *config
)

func boot(ctx context.Context, c *config) error {
	container, err := postgres.Run(ctx,
		c.image,
		postgres.WithDatabase(c.dbName),
		postgres.WithUsername(c.user),
		postgres.WithPassword(c.password),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return err
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	pg = container
	active = c
	connString = fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.user, c.password, host, port.Port(), c.dbName,
	)
	return nil
}

// ShutdownNow terminates the container, if one was started.
func ShutdownNow() error {
	mu.Lock()
	defer mu.Unlock()
	if pg == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := pg.Terminate(ctx)
	pg = nil
	return err
}
