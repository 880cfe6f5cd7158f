package transport

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"checkout/pkg/checkout/domain/model"
	"checkout/pkg/checkout/domain/service"
)

type Deps struct {
	Orders     service.OrderService
	Checkout   service.CheckoutService
	Gateway    model.PaymentGateway
	AdminToken string
}

type handlers struct {
	deps Deps
}

func Router(deps Deps) http.Handler {
	h := &handlers{deps: deps}

	r := mux.NewRouter()
	s := r.PathPrefix("/api").Subrouter()

	s.HandleFunc("/orders", h.createOrder).Methods(http.MethodPost)
	s.HandleFunc("/orders", h.listOrders).Methods(http.MethodGet)
	s.HandleFunc("/orders/{id:[0-9]+}", h.getOrder).Methods(http.MethodGet)
	s.HandleFunc("/orders/{id:[0-9]+}/status", h.updateOrderStatus).Methods(http.MethodPatch)

	s.HandleFunc("/checkout", h.beginCheckout).Methods(http.MethodPost)
	s.HandleFunc("/checkout/{sessionID}", h.getSession).Methods(http.MethodGet)
	s.HandleFunc("/checkout/{sessionID}/confirm", h.confirmPayment).Methods(http.MethodPost)
	s.HandleFunc("/checkout/{sessionID}/cancel", h.cancelCheckout).Methods(http.MethodPost)
	s.HandleFunc("/checkout/{sessionID}/retry", h.retryCheckout).Methods(http.MethodPost)

	s.HandleFunc("/payments/status/{transactionID}", h.paymentStatus).Methods(http.MethodGet)

	return logMiddleware(r)
}

type orderItemPayload struct {
	MenuItemID int64   `json:"menu_item_id"`
	Name       string  `json:"name,omitempty"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
}

type orderRequest struct {
	CustomerName string             `json:"customer_name"`
	Phone        string             `json:"phone"`
	Email        string             `json:"email"`
	Address      string             `json:"address"`
	City         string             `json:"city"`
	Items        []orderItemPayload `json:"items"`
}

func (req orderRequest) cart() model.Cart {
	cart := model.Cart{}
	for _, item := range req.Items {
		cart.Items = append(cart.Items, model.CartItem{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			PriceCents: toCents(item.Price),
			Quantity:   item.Quantity,
		})
	}
	return cart
}

func (req orderRequest) contact() model.ContactInfo {
	return model.ContactInfo{
		FullName: req.CustomerName,
		Phone:    req.Phone,
		Email:    req.Email,
		Address:  req.Address,
		City:     req.City,
	}
}

type orderResponse struct {
	OrderID     int64              `json:"order_id"`
	Customer    string             `json:"customer_name"`
	Phone       string             `json:"phone"`
	Email       string             `json:"email"`
	Address     string             `json:"address"`
	City        string             `json:"city"`
	Items       []orderItemPayload `json:"items"`
	DeliveryFee float64            `json:"delivery_fee"`
	Total       float64            `json:"total"`
	Status      string             `json:"status"`
}

func toOrderResponse(order *model.Order) orderResponse {
	resp := orderResponse{
		OrderID:     order.ID,
		Customer:    order.CustomerName,
		Phone:       order.Phone,
		Email:       order.Email,
		Address:     order.Address,
		City:        order.City,
		DeliveryFee: fromCents(order.DeliveryFeeCents),
		Total:       fromCents(order.TotalCents),
		Status:      order.Status.String(),
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemPayload{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			Price:      fromCents(item.PriceCents),
		})
	}
	return resp
}

func (h *handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	order, err := h.deps.Orders.Submit(r.Context(), req.cart(), req.contact())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	order, err := h.deps.Orders.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		writeError(w, http.StatusBadRequest, errors.New("phone query parameter is required"))
		return
	}

	orders, err := h.deps.Orders.ListByPhone(r.Context(), phone)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, toOrderResponse(order))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	if h.deps.AdminToken == "" || r.Header.Get("X-Admin-Token") != h.deps.AdminToken {
		writeError(w, http.StatusUnauthorized, errors.New("admin token required"))
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	status, err := model.ParseOrderStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.deps.Orders.UpdateStatus(r.Context(), id, status); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status.String()})
}

type sessionResponse struct {
	SessionID     string `json:"session_id"`
	State         string `json:"state"`
	OrderID       int64  `json:"order_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Attempt       int    `json:"attempt"`
	CartItems     int    `json:"cart_items"`
	FailureReason string `json:"failure_reason,omitempty"`
	CanRetry      bool   `json:"can_retry"`
}

func toSessionResponse(snap service.Snapshot) sessionResponse {
	return sessionResponse{
		SessionID:     snap.ID.String(),
		State:         snap.State.String(),
		OrderID:       snap.OrderID,
		TransactionID: snap.TransactionID,
		Attempt:       snap.Attempt,
		CartItems:     snap.CartItems,
		FailureReason: snap.FailureReason,
		CanRetry:      snap.State == service.StateFailed,
	}
}

func (h *handlers) beginCheckout(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, err := h.deps.Checkout.Begin(req.cart(), req.contact(), nil)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toSessionResponse(snap))
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	snap, err := h.deps.Checkout.Session(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(snap))
}

func (h *handlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.deps.Checkout.Confirm(id, req.Phone); err != nil {
		writeServiceError(w, err)
		return
	}

	snap, err := h.deps.Checkout.Session(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(snap))
}

func (h *handlers) cancelCheckout(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.deps.Checkout.Cancel(id); err != nil {
		writeServiceError(w, err)
		return
	}

	snap, err := h.deps.Checkout.Session(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(snap))
}

func (h *handlers) retryCheckout(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	snap, err := h.deps.Checkout.Retry(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toSessionResponse(snap))
}

func (h *handlers) paymentStatus(w http.ResponseWriter, r *http.Request) {
	transactionID := mux.Vars(r)["transactionID"]

	payload, err := h.deps.Gateway.QueryStatus(r.Context(), transactionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status, _ := service.ClassifyStatus(payload)
	writeJSON(w, http.StatusOK, map[string]string{"status": status.String()})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, errors.New("invalid order id"))
		return 0, false
	}
	return id, true
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["sessionID"])
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid session id"))
		return uuid.Nil, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation), errors.Is(err, model.ErrEmptyCart), errors.Is(err, model.ErrUnknownStatus):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, model.ErrOrderNotFound), errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, model.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err)
	case errors.Is(err, model.ErrGatewayConfiguration):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithField("err", err).Error("write response")
	}
}

func logMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(log.Fields{
			"method":     r.Method,
			"url":        r.URL,
			"remoteAddr": r.RemoteAddr,
		}).Info("got a new request")
		h.ServeHTTP(w, r)
	})
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}
