package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/savoria-app/order-api/pkg/breaker"
	"github.com/savoria-app/order-api/pkg/cache"
	"github.com/savoria-app/order-api/pkg/logging"
	"github.com/savoria-app/order-api/pkg/store"
)

// Collection names in the document store.
const (
	colProducts     = "products"
	colOrders       = "orders"
	colReservations = "reservations"
	colStats        = "stats"

	statsOrderStatusID = "order_status"
)

var orderStatuses = map[string]bool{
	"pending":   true,
	"confirmed": true,
	"preparing": true,
	"ready":     true,
	"delivered": true,
	"cancelled": true,
}

// Handlers implements the restaurant API routes. Reads go through the
// tiered cache; writes go to the store and invalidate the affected
// cache namespace by pattern.
type Handlers struct {
	store  store.DocumentStore
	cache  *cache.TieredCache
	ttl    TTLConfig
	logger zerolog.Logger
}

// TTLConfig holds per-namespace cache lifetimes.
type TTLConfig struct {
	Products     time.Duration
	Orders       time.Duration
	Reservations time.Duration
}

// DefaultTTLConfig returns the standard cache lifetimes. Menu data
// changes rarely; orders and reservations are short-lived.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Products:     5 * time.Minute,
		Orders:       1 * time.Minute,
		Reservations: 1 * time.Minute,
	}
}

// NewHandlers creates the route handlers.
func NewHandlers(s store.DocumentStore, c *cache.TieredCache, ttl TTLConfig) *Handlers {
	if ttl == (TTLConfig{}) {
		ttl = DefaultTTLConfig()
	}
	return &Handlers{
		store:  s,
		cache:  c,
		ttl:    ttl,
		logger: logging.NewLogger("api"),
	}
}

// listResponse is the shape of every paginated listing.
type listResponse struct {
	Items []json.RawMessage `json:"items"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

// --- products ---

func (h *Handlers) listProducts(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	category := r.URL.Query().Get("category")

	key := cache.PageKey(colProducts, "all", page, limit)
	if category != "" {
		key = cache.Key(colProducts, "category", category, fmt.Sprint(page), fmt.Sprint(limit))
	}

	if resp, ok := cache.Get[listResponse](r.Context(), h.cache, key); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	q := store.Query{
		OrderBy: "name",
		Limit:   limit,
		Offset:  (page - 1) * limit,
	}
	if category != "" {
		q.Filters = []store.Filter{{Field: "category", Op: "==", Value: category}}
	}

	items, err := h.store.Query(r.Context(), colProducts, q)
	if err != nil {
		h.storeError(w, err)
		return
	}

	resp := listResponse{Items: nonNil(items), Page: page, Limit: limit}
	h.cache.Set(r.Context(), key, resp, h.ttl.Products)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) popularProducts(w http.ResponseWriter, r *http.Request) {
	key := cache.Key(colProducts, "popular")

	if resp, ok := cache.Get[listResponse](r.Context(), h.cache, key); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	items, err := h.store.Query(r.Context(), colProducts, store.Query{
		Filters: []store.Filter{{Field: "popular", Op: "==", Value: true}},
		OrderBy: "name",
	})
	if err != nil {
		h.storeError(w, err)
		return
	}

	resp := listResponse{Items: nonNil(items), Page: 1, Limit: len(items)}
	h.cache.Set(r.Context(), key, resp, h.ttl.Products)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) getProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	key := cache.Key(colProducts, "id", id)

	if doc, ok := h.cache.GetRaw(r.Context(), key); ok {
		writeRaw(w, http.StatusOK, doc)
		return
	}

	doc, err := h.store.Get(r.Context(), colProducts, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.storeError(w, err)
		return
	}

	h.cache.Set(r.Context(), key, json.RawMessage(doc), h.ttl.Products)
	writeRaw(w, http.StatusOK, doc)
}

func (h *Handlers) createProduct(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeBody(r, "name", "price")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, _ := json.Marshal(doc)
	id, err := h.store.Add(r.Context(), colProducts, raw)
	if err != nil {
		h.storeError(w, err)
		return
	}

	h.invalidate(r, colProducts)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	doc, err := decodeBody(r, "name", "price")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, _ := json.Marshal(doc)
	err = h.store.Update(r.Context(), colProducts, id, raw)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.storeError(w, err)
		return
	}

	h.invalidate(r, colProducts)
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (h *Handlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.store.Delete(r.Context(), colProducts, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.storeError(w, err)
		return
	}

	h.invalidate(r, colProducts)
	w.WriteHeader(http.StatusNoContent)
}

// --- orders ---

func (h *Handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get("X-User-ID")
	if user == "" {
		writeError(w, http.StatusBadRequest, "missing X-User-ID header")
		return
	}

	page, limit := pagination(r)
	key := cache.Key(colOrders, "user", user, fmt.Sprint(page), fmt.Sprint(limit))

	if resp, ok := cache.Get[listResponse](r.Context(), h.cache, key); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	items, err := h.store.Query(r.Context(), colOrders, store.Query{
		Filters:    []store.Filter{{Field: "userId", Op: "==", Value: user}},
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      limit,
		Offset:     (page - 1) * limit,
	})
	if err != nil {
		h.storeError(w, err)
		return
	}

	resp := listResponse{Items: nonNil(items), Page: page, Limit: limit}
	h.cache.Set(r.Context(), key, resp, h.ttl.Orders)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	key := cache.Key(colOrders, "id", id)

	if doc, ok := h.cache.GetRaw(r.Context(), key); ok {
		writeRaw(w, http.StatusOK, doc)
		return
	}

	doc, err := h.store.Get(r.Context(), colOrders, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		h.storeError(w, err)
		return
	}

	h.cache.Set(r.Context(), key, json.RawMessage(doc), h.ttl.Orders)
	writeRaw(w, http.StatusOK, doc)
}

func (h *Handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get("X-User-ID")
	if user == "" {
		writeError(w, http.StatusBadRequest, "missing X-User-ID header")
		return
	}

	doc, err := decodeBody(r, "items")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc["userId"] = user
	doc["status"] = "pending"
	doc["createdAt"] = time.Now().UTC().Format(time.RFC3339)

	raw, _ := json.Marshal(doc)
	id, err := h.store.Add(r.Context(), colOrders, raw)
	if err != nil {
		h.storeError(w, err)
		return
	}

	h.invalidate(r, colOrders)
	h.logger.Info().Str("order_id", id).Str("user_id", user).Msg("Order created")
	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "status": "pending"})
}

// updateOrderStatus moves an order to a new status and bumps the
// aggregate status counter. Counters only ever increase; the previous
// status count is left as a running total of how many orders passed
// through it.
func (h *Handlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !orderStatuses[body.Status] {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	raw, err := h.store.Get(r.Context(), colOrders, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		h.storeError(w, err)
		return
	}

	var order map[string]any
	if err := json.Unmarshal(raw, &order); err != nil {
		h.storeError(w, err)
		return
	}
	order["status"] = body.Status
	order["updatedAt"] = time.Now().UTC().Format(time.RFC3339)
	updated, _ := json.Marshal(order)

	ops := []store.BatchOp{
		{Kind: "update", Collection: colOrders, ID: id, Doc: updated},
		statusCounterOp(body.Status),
	}
	if err := h.store.Batch(r.Context(), ops); err != nil {
		h.storeError(w, err)
		return
	}

	h.invalidate(r, colOrders)
	h.logger.Info().Str("order_id", id).Str("status", body.Status).Msg("Order status updated")
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": body.Status})
}

// statusCounterOp builds the batch op bumping the counter for status.
// The increment is applied inside the store's atomic scope, so
// concurrent status updates never lose counts. The stats document is
// created on first use.
func statusCounterOp(status string) store.BatchOp {
	doc, _ := json.Marshal(map[string]int{status: 1})
	return store.BatchOp{Kind: "increment", Collection: colStats, ID: statsOrderStatusID, Doc: doc}
}

// --- reservations ---

func (h *Handlers) listReservations(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "missing date parameter")
		return
	}

	key := cache.Key(colReservations, "date", date)
	if resp, ok := cache.Get[listResponse](r.Context(), h.cache, key); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	items, err := h.store.Query(r.Context(), colReservations, store.Query{
		Filters: []store.Filter{{Field: "date", Op: "==", Value: date}},
		OrderBy: "time",
	})
	if err != nil {
		h.storeError(w, err)
		return
	}

	resp := listResponse{Items: nonNil(items), Page: 1, Limit: len(items)}
	h.cache.Set(r.Context(), key, resp, h.ttl.Reservations)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) createReservation(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeBody(r, "date", "time", "partySize", "name")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, _ := json.Marshal(doc)
	id, err := h.store.Add(r.Context(), colReservations, raw)
	if err != nil {
		h.storeError(w, err)
		return
	}

	h.invalidate(r, colReservations)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handlers) cancelReservation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.store.Delete(r.Context(), colReservations, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "reservation not found")
		return
	}
	if err != nil {
		h.storeError(w, err)
		return
	}

	h.invalidate(r, colReservations)
	w.WriteHeader(http.StatusNoContent)
}

// --- shared helpers ---

// invalidate drops every cached entry in the collection's namespace
// after a successful write.
func (h *Handlers) invalidate(r *http.Request, namespace string) {
	n := h.cache.InvalidatePattern(r.Context(), namespace+":*")
	h.logger.Debug().Str("namespace", namespace).Int("keys", n).Msg("Cache invalidated after write")
}

// storeError maps a store failure to an HTTP response. Breaker-open is
// a transient downstream outage and surfaces as a generic 500.
func (h *Handlers) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, breaker.ErrOpen) {
		h.logger.Warn().Msg("Request rejected, document store circuit open")
		writeError(w, http.StatusInternalServerError, "service temporarily unavailable")
		return
	}
	h.logger.Error().Err(err).Msg("Document store request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

// decodeBody decodes a JSON object body and checks required fields are
// present and non-null.
func decodeBody(r *http.Request, required ...string) (map[string]any, error) {
	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	for _, f := range required {
		if doc[f] == nil {
			return nil, fmt.Errorf("missing required field %q", f)
		}
	}
	return doc, nil
}

func pagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func nonNil(items []json.RawMessage) []json.RawMessage {
	if items == nil {
		return []json.RawMessage{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, doc json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(doc)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
