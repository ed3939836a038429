package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/slashbinslashnoname/telegram-stock-bot/models"
	"github.com/slashbinslashnoname/telegram-stock-bot/offers"
)

// StockReader is the read side of the offer lifecycle manager.
type StockReader interface {
	Get(ctx context.Context, id int64) (*models.Offer, error)
	ListActive(ctx context.Context) ([]models.Offer, error)
}

// Server exposes the current stock over HTTP.
type Server struct {
	Router *mux.Router
	stock  StockReader
	logger *zap.Logger
}

type offerView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Price     string    `json:"price"`
	Status    string    `json:"status"`
	Announced bool      `json:"announced"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewServer creates a Server with its routes registered.
func NewServer(stock StockReader, logger *zap.Logger) *Server {
	s := &Server{Router: mux.NewRouter(), stock: stock, logger: logger}
	s.Router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.Router.HandleFunc("/api/stock", s.handleStock).Methods(http.MethodGet)
	s.Router.HandleFunc("/api/offers", s.handleList).Methods(http.MethodGet)
	s.Router.HandleFunc("/api/offers/{id}", s.handleGet).Methods(http.MethodGet)
	return s
}

// ServeHTTP dispatches to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	active, err := s.stock.ListActive(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(offers.FormatStock(active)))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	active, err := s.stock.ListActive(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	views := make([]offerView, 0, len(active))
	for _, o := range active {
		views = append(views, newOfferView(o))
	}
	writeJSON(w, views)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "offer id must be a number", http.StatusBadRequest)
		return
	}
	offer, err := s.stock.Get(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, newOfferView(*offer))
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.logger.Error("Stock request failed", zap.Error(err))
	http.Error(w, "stock unavailable", http.StatusServiceUnavailable)
}

func newOfferView(o models.Offer) offerView {
	return offerView{
		ID:        o.ID,
		Name:      o.Name,
		Quantity:  o.Quantity,
		Price:     o.Price.String(),
		Status:    string(o.Status),
		Announced: o.Announcement != nil,
		UpdatedAt: o.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
