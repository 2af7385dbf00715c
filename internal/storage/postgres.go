// Package storage provides the credential store adapters: PostgreSQL for
// the primary deployment, MongoDB for installations that keep users there,
// and an in-memory store for tests. All three enforce email uniqueness
// atomically at insert.
package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmitrymomot/authd/internal/auth"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresConfig is read from the environment at startup.
type PostgresConfig struct {
	URL           string        `env:"DATABASE_URL"`
	MaxConns      int32         `env:"PG_MAX_CONNS" envDefault:"10"`
	RetryAttempts int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"5s"`
}

// Postgres is the pgx-backed UserStore.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database with bounded retries and verifies
// the connection with a ping.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("storage: parse postgres config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns

	var pool *pgxpool.Pool
	for i := range cfg.RetryAttempts {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return &Postgres{pool: pool}, nil
			}
			pool.Close()
		}
		time.Sleep(time.Duration(i+1) * cfg.RetryInterval)
	}
	return nil, fmt.Errorf("storage: connect postgres: %w", err)
}

// Migrate applies the embedded goose migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("storage: set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("storage: apply migrations: %w", err)
	}
	return nil
}

const userColumns = "id, email, name, password_hash, provider_subject, created_at"

func (p *Postgres) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := p.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1", email)
	return scanUser(row)
}

func (p *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	row := p.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

func (p *Postgres) Insert(ctx context.Context, user *auth.User) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, provider_subject, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`,
		user.ID, user.Email, user.Name, user.PasswordHash, user.ProviderSubject, user.CreatedAt)
	if isDuplicateKey(err) {
		return auth.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("storage: insert user: %w", err)
	}
	return nil
}

func (p *Postgres) Update(ctx context.Context, user *auth.User) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE users
		 SET email = $2, name = $3, password_hash = $4, provider_subject = NULLIF($5, '')
		 WHERE id = $1`,
		user.ID, user.Email, user.Name, user.PasswordHash, user.ProviderSubject)
	if isDuplicateKey(err) {
		return auth.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("storage: update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// Healthcheck reports whether the database is reachable.
func (p *Postgres) Healthcheck(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		user            auth.User
		providerSubject *string
	)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &providerSubject, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: scan user: %w", err)
	}
	if providerSubject != nil {
		user.ProviderSubject = *providerSubject
	}
	return &user, nil
}

// isDuplicateKey detects PostgreSQL unique constraint violations (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ auth.UserStore = (*Postgres)(nil)
