package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"slotbook/internal/booking"
	"slotbook/internal/model"
)

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	for name, p := range s.Ready {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", name+": "+err.Error(), r.URL.Path)
			return
		}
	}
	if s.Booking.TravelTimes.Current().Len() == 0 {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", "no travel times loaded", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// badBody reports a request body that could not be decoded.
func badBody(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, http.StatusBadRequest, Problem{
		Type:     "urn:slotbook:problem:invalid-body",
		Title:    "Invalid request",
		Status:   http.StatusBadRequest,
		Detail:   err.Error(),
		Instance: r.URL.Path,
		Code:     "INVALID_BODY",
		Class:    string(booking.ClassValidation),
	})
}

func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.Booking.ListSlots(r.Context(), q.Get("day"), q.Get("zone"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type placeOrderBody struct {
	Day          string         `json:"day"`
	Zone         string         `json:"zone"`
	StartMinutes *int           `json:"startMinutes"`
	Items        []model.ItemIn `json:"items"`
	Note         *string        `json:"note"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := s.caller(w, r, false)
	if !ok {
		return
	}
	var body placeOrderBody
	if err := decodeStrict(w, r, &body); err != nil {
		badBody(w, r, err)
		return
	}
	// an absent start is outside every window
	start := -1
	if body.StartMinutes != nil {
		start = *body.StartMinutes
	}
	req := booking.PlaceOrderRequest{
		Day:          body.Day,
		Zone:         body.Zone,
		StartMinutes: start,
		Items:        body.Items,
		Note:         body.Note,
	}
	if p != nil {
		sub := p.Subject
		req.Customer = &sub
	}
	order, err := s.Booking.PlaceOrder(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/my-orders")
	writeJSON(w, http.StatusCreated, map[string]any{"orderId": order.ID, "order": order})
}

func (s *Server) handleDays(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.Booking.Days()})
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.Booking.Zones()})
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	items, err := s.Booking.Products(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := s.caller(w, r, true)
	if !ok {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid request", "limit must be between 1 and 200", r.URL.Path)
			return
		}
		limit = n
	}
	items, err := s.Booking.ListCustomerOrders(r.Context(), p.Subject, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type productBody struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"priceCents"`
	StockQty   int    `json:"stockQty"`
	Active     bool   `json:"active"`
}

func (s *Server) handleUpsertProduct(w http.ResponseWriter, r *http.Request) {
	var body productBody
	if err := decodeStrict(w, r, &body); err != nil {
		badBody(w, r, err)
		return
	}
	p, err := s.Booking.UpsertProduct(r.Context(), model.Product{
		ID:         r.PathValue("id"),
		Name:       body.Name,
		PriceCents: body.PriceCents,
		StockQty:   body.StockQty,
		Active:     body.Active,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAdminOrders(w http.ResponseWriter, r *http.Request) {
	items, err := s.Booking.ListOrders(r.Context(), r.URL.Query().Get("day"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleSetCompleted(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Completed *bool `json:"completed"`
	}
	if err := decodeStrict(w, r, &body); err != nil {
		badBody(w, r, err)
		return
	}
	if body.Completed == nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", "completed is required", r.URL.Path)
		return
	}
	o, err := s.Booking.SetCompleted(r.Context(), r.PathValue("id"), *body.Completed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleAdminStops(w http.ResponseWriter, r *http.Request) {
	items, err := s.Booking.ListStops(r.Context(), r.URL.Query().Get("day"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleReloadTravelTimes(w http.ResponseWriter, r *http.Request) {
	t, err := s.Booking.ReloadTravelTimes(r.Context())
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Reload failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": t.Len(), "zones": t.Zones()})
}
