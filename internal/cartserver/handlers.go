package cartserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/c0deZ3R0/go-cart-sync/cart"
	"github.com/c0deZ3R0/go-cart-sync/logging"
	"github.com/c0deZ3R0/go-cart-sync/signal"
	"github.com/c0deZ3R0/go-cart-sync/transport/httptransport"
	"github.com/c0deZ3R0/go-cart-sync/transport/sse"
)

// ErrorResponse is the body of every 4xx/5xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// MergeResponse is the body of a successful merge.
type MergeResponse struct {
	MergedLines int `json:"merged_lines"`
}

// ResetFanout delivers a user's cart-reset to every event stream of that
// user, wherever it is served.
type ResetFanout interface {
	PublishReset(ctx context.Context, user string) error
}

// LocalFanout publishes resets on a single Broadcaster.
type LocalFanout struct {
	Events *sse.Broadcaster
}

func (f LocalFanout) PublishReset(_ context.Context, user string) error {
	f.Events.Publish(user, signal.CartReset)
	return nil
}

// Handlers serves the cart API on top of a Store.
type Handlers struct {
	store  *Store
	events *sse.Broadcaster
	resets ResetFanout
	logger *logging.Logger
}

// NewHandlers creates the cart API handlers. events may be nil, in which
// case the event stream is not served. A nil resets publishes on events.
func NewHandlers(store *Store, events *sse.Broadcaster, resets ResetFanout, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.Default()
	}
	if resets == nil && events != nil {
		resets = LocalFanout{Events: events}
	}
	return &Handlers{
		store:  store,
		events: events,
		resets: resets,
		logger: logger.WithComponent(logging.Component("cartserver")),
	}
}

func abortWithError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

func (h *Handlers) respondCart(c *gin.Context, status int) {
	items := h.store.Cart(ownerOf(c))
	body := httptransport.JSONCart{Items: make([]httptransport.JSONCartItem, 0, len(items))}
	for _, it := range items {
		body.Items = append(body.Items, httptransport.FromItem(it))
	}
	total := cart.NewState(items).Total
	body.Total = &total
	c.JSON(status, body)
}

func (h *Handlers) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnknownBundle), errors.Is(err, ErrLineNotFound):
		abortWithError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, ErrInvalidQuantity):
		abortWithError(c, http.StatusBadRequest, "INVALID_QUANTITY", err.Error())
	default:
		h.logger.LogError(c.Request.Context(), err, "Cart store failed")
		abortWithError(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func lineID(c *gin.Context) (cart.ServerItemID, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, http.StatusBadRequest, "INVALID_LINE_ID", "line id must be a positive integer")
		return 0, false
	}
	return cart.ServerItemID(id), true
}

func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		abortWithError(c, bodyErrorStatus(err), "INVALID_REQUEST", "invalid request body: "+err.Error())
		return false
	}
	return true
}

// HandleGetCart handles GET /cart/.
func (h *Handlers) HandleGetCart(c *gin.Context) {
	h.respondCart(c, http.StatusOK)
}

// HandleAddItem handles POST /cart/items/.
func (h *Handlers) HandleAddItem(c *gin.Context) {
	var req httptransport.JSONLineRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.BundleID == 0 {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "bundle_id is required")
		return
	}
	err := h.store.AddLine(ownerOf(c), LineInput{
		BundleID:       req.BundleID,
		Quantity:       req.Quantity,
		AvoidedWasteKg: req.AvoidedWasteKg,
		AvoidedCO2Kg:   req.AvoidedCO2Kg,
		ProducerName:   req.ProducerName,
	})
	if err != nil {
		h.storeError(c, err)
		return
	}
	h.respondCart(c, http.StatusCreated)
}

// HandleUpdateItem handles PATCH /cart/items/:id/.
func (h *Handlers) HandleUpdateItem(c *gin.Context) {
	id, ok := lineID(c)
	if !ok {
		return
	}
	var req httptransport.JSONLineRequest
	if !bindJSON(c, &req) {
		return
	}
	err := h.store.UpdateLine(ownerOf(c), id, LineInput{
		Quantity:       req.Quantity,
		AvoidedWasteKg: req.AvoidedWasteKg,
		AvoidedCO2Kg:   req.AvoidedCO2Kg,
	})
	if err != nil {
		h.storeError(c, err)
		return
	}
	h.respondCart(c, http.StatusOK)
}

// HandleDeleteItem handles DELETE /cart/items/:id/.
func (h *Handlers) HandleDeleteItem(c *gin.Context) {
	id, ok := lineID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteLine(ownerOf(c), id); err != nil {
		h.storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleClear handles DELETE /cart/clear/.
func (h *Handlers) HandleClear(c *gin.Context) {
	h.store.Clear(ownerOf(c))
	c.Status(http.StatusNoContent)
}

// HandleMerge handles POST /cart/merge/. Only authenticated callers may
// merge; the guest token comes from the body.
func (h *Handlers) HandleMerge(c *gin.Context) {
	owner := ownerOf(c)
	if !owner.Authenticated() {
		abortWithError(c, http.StatusUnauthorized, "AUTH_REQUIRED", "merge requires an authenticated user")
		return
	}
	var req httptransport.JSONMergeRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.GuestToken == "" {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "guest_token is required")
		return
	}

	n := h.store.Merge(owner, req.GuestToken)
	h.logger.InfoContext(c.Request.Context(), "Guest cart merged",
		slog.String("user", owner.User),
		slog.Int("merged_lines", n))
	c.JSON(http.StatusOK, MergeResponse{MergedLines: n})
}

// HandleLogout handles POST /auth/logout/: every event stream of the user
// receives a cart-reset.
func (h *Handlers) HandleLogout(c *gin.Context) {
	owner := ownerOf(c)
	if !owner.Authenticated() {
		abortWithError(c, http.StatusUnauthorized, "AUTH_REQUIRED", "logout requires an authenticated user")
		return
	}
	if h.resets != nil {
		if err := h.resets.PublishReset(c.Request.Context(), owner.User); err != nil {
			h.logger.LogError(c.Request.Context(), err, "Publishing cart reset failed",
				slog.String("user", owner.User))
			abortWithError(c, http.StatusBadGateway, "RESET_FAILED", "could not publish cart reset")
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// HandleEvents handles GET /events/, a text/event-stream of cart signals
// for the caller.
func (h *Handlers) HandleEvents(c *gin.Context) {
	if h.events == nil {
		abortWithError(c, http.StatusNotFound, "NOT_FOUND", "event stream disabled")
		return
	}
	owner := ownerOf(c)
	scope := owner.User
	if scope == "" {
		scope = "guest:" + owner.Guest
	}
	h.events.ServeScoped(c.Writer, c.Request, scope)
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
