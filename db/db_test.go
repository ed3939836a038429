package db

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/slashbinslashnoname/telegram-stock-bot/models"
)

func TestCreateAndGetOffer(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	offer, err := database.Create(ctx, "  Blue Dream ", 5, decimal.RequireFromString("25.50"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if offer.ID != 1 {
		t.Errorf("expected id 1, got %d", offer.ID)
	}

	got, err := database.Get(ctx, offer.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "  Blue Dream " {
		t.Errorf("expected name as given, got %q", got.Name)
	}
	if got.Quantity != 5 {
		t.Errorf("expected quantity 5, got %d", got.Quantity)
	}
	if !got.Price.Equal(decimal.RequireFromString("25.5")) {
		t.Errorf("expected price 25.5, got %s", got.Price)
	}
	if got.Status != models.StatusActive {
		t.Errorf("expected active status, got %s", got.Status)
	}
	if got.Announcement != nil {
		t.Errorf("expected no announcement, got %+v", got.Announcement)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestCreateOfferValidation(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		quantity int
		price    string
	}{
		{"", 1, "1"},
		{"Widget", -1, "1"},
		{"Widget", 1, "-1"},
		{"Widget", 1, "0.004"},
	}
	for _, c := range cases {
		_, err := database.Create(ctx, c.name, c.quantity, decimal.RequireFromString(c.price))
		if !errors.Is(err, models.ErrValidation) {
			t.Errorf("Create(%q, %d, %s): expected ErrValidation, got %v", c.name, c.quantity, c.price, err)
		}
	}

	active, _ := database.ListActive(ctx)
	if len(active) != 0 {
		t.Errorf("expected no offers after failed creates, got %d", len(active))
	}
}

func TestGetMissingOffer(t *testing.T) {
	database := newTestDatabase(t)

	_, err := database.Get(context.Background(), 42)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListActiveOrdersByIDAndSkipsSoldOut(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	first, _ := database.Create(ctx, "Zkittlez", 1, decimal.NewFromInt(10))
	second, _ := database.Create(ctx, "Apple Fritter", 2, decimal.NewFromInt(20))
	third, _ := database.Create(ctx, "Gelato", 3, decimal.NewFromInt(30))

	_, err := database.Update(ctx, second.ID, func(o models.Offer) (models.Offer, error) {
		o.Status = models.StatusSoldOut
		return o, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	active, err := database.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active offers, got %d", len(active))
	}
	if active[0].ID != first.ID || active[1].ID != third.ID {
		t.Errorf("expected ids [%d %d], got [%d %d]", first.ID, third.ID, active[0].ID, active[1].ID)
	}
}

func TestUpdatePersistsAnnouncementRef(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	offer, _ := database.Create(ctx, "Widget", 3, decimal.NewFromInt(5))

	updated, err := database.Update(ctx, offer.ID, func(o models.Offer) (models.Offer, error) {
		o.Announcement = &models.AnnouncementRef{ChatID: -1001, MessageID: 77}
		return o, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != offer.Version+1 {
		t.Errorf("expected version %d, got %d", offer.Version+1, updated.Version)
	}

	got, _ := database.Get(ctx, offer.ID)
	if got.Announcement == nil || *got.Announcement != (models.AnnouncementRef{ChatID: -1001, MessageID: 77}) {
		t.Fatalf("expected stored ref, got %+v", got.Announcement)
	}

	_, err = database.Update(ctx, offer.ID, func(o models.Offer) (models.Offer, error) {
		o.Announcement = nil
		return o, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = database.Get(ctx, offer.ID)
	if got.Announcement != nil {
		t.Errorf("expected ref cleared, got %+v", got.Announcement)
	}
}

func TestUpdateRejectsInvalidMutation(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	offer, _ := database.Create(ctx, "Widget", 3, decimal.NewFromInt(5))

	_, err := database.Update(ctx, offer.ID, func(o models.Offer) (models.Offer, error) {
		o.Quantity = -2
		return o, nil
	})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	got, _ := database.Get(ctx, offer.ID)
	if got.Quantity != 3 || got.Version != offer.Version {
		t.Errorf("expected offer unchanged, got quantity %d version %d", got.Quantity, got.Version)
	}
}

func TestUpdateMutatorErrorAborts(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	offer, _ := database.Create(ctx, "Widget", 3, decimal.NewFromInt(5))
	abort := errors.New("abort")

	_, err := database.Update(ctx, offer.ID, func(o models.Offer) (models.Offer, error) {
		return o, abort
	})
	if err != abort {
		t.Fatalf("expected mutator error to pass through, got %v", err)
	}
}

func TestUpdateMissingOffer(t *testing.T) {
	database := newTestDatabase(t)

	_, err := database.Update(context.Background(), 9, func(o models.Offer) (models.Offer, error) {
		return o, nil
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateDetectsConcurrentWrite(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	offer, _ := database.Create(ctx, "Widget", 3, decimal.NewFromInt(5))

	_, err := database.Update(ctx, offer.ID, func(o models.Offer) (models.Offer, error) {
		// Another writer commits between our read and our write.
		if _, err := database.Update(ctx, offer.ID, func(inner models.Offer) (models.Offer, error) {
			inner.Quantity = 9
			return inner, nil
		}); err != nil {
			t.Fatalf("inner Update: %v", err)
		}
		o.Quantity = 1
		return o, nil
	})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, _ := database.Get(ctx, offer.ID)
	if got.Quantity != 9 {
		t.Errorf("expected the committed write to survive, got quantity %d", got.Quantity)
	}
}

func TestConcurrentUpdatesNeverLoseWrites(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	offer, _ := database.Create(ctx, "Widget", 0, decimal.NewFromInt(5))

	const workers = 8
	const perWorker = 10

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				for {
					_, err := database.Update(ctx, offer.ID, func(o models.Offer) (models.Offer, error) {
						o.Quantity++
						return o, nil
					})
					if err == nil {
						break
					}
					if !errors.Is(err, models.ErrConflict) {
						t.Errorf("Update: %v", err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	got, _ := database.Get(ctx, offer.ID)
	if got.Quantity != workers*perWorker {
		t.Errorf("expected quantity %d, got %d", workers*perWorker, got.Quantity)
	}
	if got.Version != offer.Version+workers*perWorker {
		t.Errorf("expected version %d, got %d", offer.Version+workers*perWorker, got.Version)
	}
}

func TestPureGoDriver(t *testing.T) {
	database, err := NewDatabase(DriverPureGo, filepath.Join(t.TempDir(), "offers.db"))
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	offer, err := database.Create(ctx, "Widget", 2, decimal.RequireFromString("3.10"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := database.Get(ctx, offer.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Widget" || !got.Price.Equal(decimal.RequireFromString("3.1")) {
		t.Errorf("unexpected offer %+v", got)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := NewDatabase("postgres", "offers.db"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
