package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/slashbinslashnoname/telegram-stock-bot/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS offers (
	id                  BIGSERIAL PRIMARY KEY,
	name                TEXT NOT NULL,
	quantity            INTEGER NOT NULL CHECK (quantity >= 0),
	price               TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'sold_out')),
	announce_chat_id    BIGINT,
	announce_message_id BIGINT,
	version             BIGINT NOT NULL DEFAULT 1,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_offers_status ON offers(status);
`

// PostgresDatabase is the PostgreSQL-backed offer store
type PostgresDatabase struct {
	pool *pgxpool.Pool
}

// NewPostgresDatabase connects to databaseURL and ensures the schema exists
func NewPostgresDatabase(ctx context.Context, databaseURL string) (*PostgresDatabase, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to create schema")
	}

	return &PostgresDatabase{pool: pool}, nil
}

// Create inserts a new active offer
func (d *PostgresDatabase) Create(ctx context.Context, name string, quantity int, price decimal.Decimal) (*models.Offer, error) {
	if err := models.ValidateOffer(name, quantity, price); err != nil {
		return nil, err
	}

	row := d.pool.QueryRow(ctx,
		`INSERT INTO offers (name, quantity, price, status) VALUES ($1, $2, $3, $4)
		 RETURNING `+offerColumns,
		name, quantity, price.String(), string(models.StatusActive),
	)
	offer, err := scanPostgresOffer(row)
	if err != nil {
		return nil, models.Unavailable(errors.Wrap(err, "failed to create offer"))
	}
	return offer, nil
}

// Get retrieves an offer by ID
func (d *PostgresDatabase) Get(ctx context.Context, id int64) (*models.Offer, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id)
	offer, err := scanPostgresOffer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.Errorf(models.ErrNotFound, "Offer not found.")
	}
	if err != nil {
		return nil, models.Unavailable(errors.Wrap(err, "failed to get offer"))
	}
	return offer, nil
}

// ListActive retrieves all active offers ordered by ID
func (d *PostgresDatabase) ListActive(ctx context.Context) ([]models.Offer, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE status = $1 ORDER BY id`, string(models.StatusActive),
	)
	if err != nil {
		return nil, models.Unavailable(errors.Wrap(err, "failed to fetch offers"))
	}
	defer rows.Close()

	var offers []models.Offer
	for rows.Next() {
		o, err := scanPostgresOffer(rows)
		if err != nil {
			return nil, models.Unavailable(errors.Wrap(err, "failed to scan offer"))
		}
		offers = append(offers, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Unavailable(errors.Wrap(err, "failed to fetch offers"))
	}
	return offers, nil
}

// Update applies mutate to the current offer and writes the result if the
// row has not changed since it was read. A lost race returns ErrConflict.
func (d *PostgresDatabase) Update(ctx context.Context, id int64, mutate func(models.Offer) (models.Offer, error)) (*models.Offer, error) {
	current, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := applyMutation(*current, mutate)
	if err != nil {
		return nil, err
	}

	chatID, messageID := refColumns(next.Announcement)
	tag, err := d.pool.Exec(ctx,
		`UPDATE offers
		 SET name = $1, quantity = $2, price = $3, status = $4, announce_chat_id = $5, announce_message_id = $6,
		     version = $7, updated_at = $8
		 WHERE id = $9 AND version = $10`,
		next.Name, next.Quantity, next.Price.String(), string(next.Status), chatID, messageID,
		next.Version, next.UpdatedAt, id, current.Version,
	)
	if err != nil {
		return nil, models.Unavailable(errors.Wrap(err, "failed to update offer"))
	}
	if tag.RowsAffected() == 0 {
		return nil, models.Errorf(models.ErrConflict, "Offer #%d changed while updating, try again.", id)
	}

	return &next, nil
}

// Close closes the connection pool
func (d *PostgresDatabase) Close() error {
	d.pool.Close()
	return nil
}

func scanPostgresOffer(row pgx.Row) (*models.Offer, error) {
	var (
		o                 models.Offer
		status, price     string
		chatID, messageID *int64
		createdAt, update time.Time
	)
	if err := row.Scan(&o.ID, &o.Name, &o.Quantity, &price, &status, &chatID, &messageID, &o.Version, &createdAt, &update); err != nil {
		return nil, err
	}

	var err error
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return nil, errors.Wrapf(err, "invalid price %q", price)
	}
	o.Status = models.OfferStatus(status)
	o.CreatedAt = createdAt.UTC()
	o.UpdatedAt = update.UTC()
	o.Announcement = refFromColumns(chatID, messageID)
	return &o, nil
}
