package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"exchange_core/internal/domain"
	"exchange_core/internal/infra/storage"
	"exchange_core/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type placeOrderRequest struct {
	Symbol string      `json:"symbol" validate:"required,max=16"`
	Side   string      `json:"side" validate:"required,oneof=buy sell"`
	Price  json.Number `json:"price" validate:"required,numeric"`
	Amount json.Number `json:"amount" validate:"required,numeric"`
}

func formatValidationError(err error) map[string]string {
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["request"] = err.Error()
		return fields
	}
	for _, e := range verrs {
		fields[strings.ToLower(e.Field())] = "failed on tag '" + e.Tag() + "'"
	}
	return fields
}

// POST /api/orders
func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondJSON(w, http.StatusUnprocessableEntity, response{
			Status: "error",
			Errors: formatValidationError(err),
		})
		return
	}
	if !s.market.IsTradable(req.Symbol) {
		respondJSON(w, http.StatusUnprocessableEntity, response{
			Status: "error",
			Errors: map[string]string{"symbol": "not tradable"},
		})
		return
	}

	price, err := domain.ParseMoney(req.Price.String())
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "Invalid price")
		return
	}
	amount, err := domain.ParseMoney(req.Amount.String())
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "Invalid amount")
		return
	}

	order, err := s.exchange.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		UserID: userID(r),
		Symbol: req.Symbol,
		Side:   domain.Side(req.Side),
		Price:  price,
		Amount: amount,
	})
	if err != nil {
		s.respondFailure(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, response{
		Status:  "success",
		Message: "Order placed successfully",
		Data:    order,
	})
}

// POST /api/orders/{id}/cancel
func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusNotFound, "Order not found")
		return
	}

	if err := s.exchange.CancelOrder(r.Context(), userID(r), orderID); err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, response{Status: "success", Message: "Order cancelled successfully"})
}

// GET /api/orders?symbol=BTC&status=OPEN&side=buy
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.OrderFilter{
		Symbol: q.Get("symbol"),
		Status: domain.OrderStatus(strings.ToUpper(q.Get("status"))),
		Side:   domain.Side(strings.ToLower(q.Get("side"))),
	}
	if filter.Side != "" && !filter.Side.Valid() {
		respondError(w, http.StatusUnprocessableEntity, "Invalid side")
		return
	}

	orders, err := s.exchange.ListOrders(r.Context(), filter)
	if err != nil {
		s.logger.Error("List orders failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "Unable to list orders")
		return
	}
	respondJSON(w, http.StatusOK, response{Status: "success", Data: orders})
}

// GET /api/profile
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.exchange.Profile(r.Context(), userID(r))
	if errors.Is(err, domain.ErrUserNotFound) {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		s.logger.Error("Profile failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "Unable to load profile")
		return
	}
	respondJSON(w, http.StatusOK, response{Status: "success", Data: profile})
}

// respondFailure maps a *domain.Failure to a status code. Only the
// user-facing reason leaves the process.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	var f *domain.Failure
	if !errors.As(err, &f) {
		s.logger.Error("Unclassified failure", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if f.Kind == domain.KindValidation {
		respondError(w, http.StatusUnprocessableEntity, f.Reason)
		return
	}
	respondError(w, http.StatusInternalServerError, f.Reason)
}
