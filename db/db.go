package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/slashbinslashnoname/telegram-stock-bot/models"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported SQLite drivers.
const (
	DriverCgo    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

const schema = `
CREATE TABLE IF NOT EXISTS offers (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	name                TEXT NOT NULL,
	quantity            INTEGER NOT NULL CHECK (quantity >= 0),
	price               TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'sold_out')),
	announce_chat_id    INTEGER,
	announce_message_id INTEGER,
	version             INTEGER NOT NULL DEFAULT 1,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_offers_status ON offers(status);
`

const offerColumns = `id, name, quantity, price, status, announce_chat_id, announce_message_id, version, created_at, updated_at`

// Database is the SQLite-backed offer store
type Database struct {
	db *sql.DB
}

// NewDatabase opens the SQLite database at dbPath with the given driver and
// ensures the schema exists
func NewDatabase(driver, dbPath string) (*Database, error) {
	dsn, err := sqliteDSN(driver, dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create schema")
	}

	return &Database{db: db}, nil
}

// sqliteDSN builds a DSN that applies the pragmas on every pooled connection.
func sqliteDSN(driver, dbPath string) (string, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	switch driver {
	case DriverCgo:
		return "file:" + dbPath + sep + "_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", nil
	case DriverPureGo:
		return "file:" + dbPath + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", nil
	default:
		return "", errors.Errorf("unsupported sqlite driver %q", driver)
	}
}

// Create inserts a new active offer
func (d *Database) Create(ctx context.Context, name string, quantity int, price decimal.Decimal) (*models.Offer, error) {
	if err := models.ValidateOffer(name, quantity, price); err != nil {
		return nil, err
	}

	now := formatTime(time.Now())
	result, err := d.db.ExecContext(ctx,
		`INSERT INTO offers (name, quantity, price, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		name, quantity, price.String(), string(models.StatusActive), now, now,
	)
	if err != nil {
		return nil, models.Unavailable(errors.Wrap(err, "failed to create offer"))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, models.Unavailable(errors.Wrap(err, "failed to get offer id"))
	}

	return d.Get(ctx, id)
}

// Get retrieves an offer by ID
func (d *Database) Get(ctx context.Context, id int64) (*models.Offer, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = ?`, id)
	offer, err := scanOffer(row)
	if err == sql.ErrNoRows {
		return nil, models.Errorf(models.ErrNotFound, "Offer not found.")
	}
	if err != nil {
		return nil, models.Unavailable(errors.Wrap(err, "failed to get offer"))
	}
	return offer, nil
}

// ListActive retrieves all active offers ordered by ID
func (d *Database) ListActive(ctx context.Context) ([]models.Offer, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE status = ? ORDER BY id`, string(models.StatusActive),
	)
	if err != nil {
		return nil, models.Unavailable(errors.Wrap(err, "failed to fetch offers"))
	}
	defer rows.Close()

	var offers []models.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
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
func (d *Database) Update(ctx context.Context, id int64, mutate func(models.Offer) (models.Offer, error)) (*models.Offer, error) {
	current, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := applyMutation(*current, mutate)
	if err != nil {
		return nil, err
	}

	chatID, messageID := refColumns(next.Announcement)
	result, err := d.db.ExecContext(ctx,
		`UPDATE offers
		 SET name = ?, quantity = ?, price = ?, status = ?, announce_chat_id = ?, announce_message_id = ?,
		     version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		next.Name, next.Quantity, next.Price.String(), string(next.Status), chatID, messageID,
		next.Version, formatTime(next.UpdatedAt), id, current.Version,
	)
	if err != nil {
		return nil, models.Unavailable(errors.Wrap(err, "failed to update offer"))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, models.Unavailable(errors.Wrap(err, "failed to update offer"))
	}
	if n == 0 {
		return nil, models.Errorf(models.ErrConflict, "Offer #%d changed while updating, try again.", id)
	}

	return &next, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOffer(row rowScanner) (*models.Offer, error) {
	var (
		o                  models.Offer
		price              string
		chatID, messageID  *int64
		createdAt, updated string
	)
	if err := row.Scan(&o.ID, &o.Name, &o.Quantity, &price, &o.Status, &chatID, &messageID, &o.Version, &createdAt, &updated); err != nil {
		return nil, err
	}

	var err error
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return nil, errors.Wrapf(err, "invalid price %q", price)
	}
	if o.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, errors.Wrap(err, "invalid created_at")
	}
	if o.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, errors.Wrap(err, "invalid updated_at")
	}
	o.Announcement = refFromColumns(chatID, messageID)
	return &o, nil
}

// applyMutation runs mutate on a copy of current and validates the outcome.
// Identity, version and timestamps are owned by the store.
func applyMutation(current models.Offer, mutate func(models.Offer) (models.Offer, error)) (models.Offer, error) {
	in := current
	if current.Announcement != nil {
		ref := *current.Announcement
		in.Announcement = &ref
	}

	next, err := mutate(in)
	if err != nil {
		return models.Offer{}, err
	}
	if err := models.ValidateOffer(next.Name, next.Quantity, next.Price); err != nil {
		return models.Offer{}, err
	}
	if !next.Status.Valid() {
		return models.Offer{}, models.Errorf(models.ErrValidation, "Unknown status %q", next.Status)
	}

	next.ID = current.ID
	next.Version = current.Version + 1
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	return next, nil
}

func refColumns(ref *models.AnnouncementRef) (chatID, messageID *int64) {
	if ref == nil {
		return nil, nil
	}
	c, m := ref.ChatID, int64(ref.MessageID)
	return &c, &m
}

func refFromColumns(chatID, messageID *int64) *models.AnnouncementRef {
	if chatID == nil || messageID == nil {
		return nil
	}
	return &models.AnnouncementRef{ChatID: *chatID, MessageID: int(*messageID)}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
