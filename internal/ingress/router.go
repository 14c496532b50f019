package ingress

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/coreerrors"
	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/internal/matching"
	websocket "github.com/latticefi/dexcore/internal/websocket/transport"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// RouterParams are the fx-injected dependencies for Router.
type RouterParams struct {
	fx.In

	Server  *Server
	Manager *matching.Manager
	Hub     *websocket.Hub
	Logger  *zap.Logger
}

// Router registers the REST/websocket surface onto Server's gin engine.
type Router struct {
	logger  *zap.Logger
	manager *matching.Manager
}

// NewRouter builds a Router and registers every route with p.Server's
// gin engine (spec.md §6: placeOrder, cancelOrder, getOrderBook).
func NewRouter(p RouterParams) *Router {
	r := &Router{logger: p.Logger, manager: p.Manager}

	engine := p.Server.Engine()
	engine.GET("/health", r.health)
	engine.POST("/orders", r.placeOrder)
	engine.DELETE("/pairs/:pair/orders/:orderID", r.cancelOrder)
	engine.GET("/pairs/:pair/book", r.getOrderBook)
	engine.GET("/ws", gin.WrapF(websocket.UpgradeHandler(p.Hub, p.Logger)))

	return r
}

func (r *Router) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "pairs": r.manager.Pairs()})
}

// placeOrderRequest is the wire shape for POST /orders: quantity and
// price travel as decimal strings (spec.md §4.1 to_base), never as JSON
// numbers, since fixedpoint.UInt has no numeric JSON encoding of its own.
type placeOrderRequest struct {
	UserID      string  `json:"userId" binding:"required"`
	Pair        string  `json:"pair" binding:"required"`
	Type        string  `json:"type" binding:"required"`
	Side        string  `json:"side" binding:"required"`
	Quantity    string  `json:"quantity" binding:"required"`
	Price       *string `json:"price,omitempty"`
	StopPrice   *string `json:"stopPrice,omitempty"`
	TimeInForce string  `json:"timeInForce"`
	PostOnly    bool    `json:"postOnly"`
	ReduceOnly  bool    `json:"reduceOnly"`
}

func (r *Router) placeOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	qty, err := fixedpoint.ToBase(req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order := &domain.Order{
		UserID:      req.UserID,
		Pair:        req.Pair,
		Type:        domain.OrderType(req.Type),
		Side:        domain.Side(req.Side),
		Quantity:    qty,
		TimeInForce: domain.TimeInForce(req.TimeInForce),
		PostOnly:    req.PostOnly,
		ReduceOnly:  req.ReduceOnly,
	}

	if req.Price != nil {
		price, err := fixedpoint.ToBase(*req.Price)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		order.Price = &price
	}
	if req.StopPrice != nil {
		stop, err := fixedpoint.ToBase(*req.StopPrice)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		order.StopPrice = &stop
	}

	result, err := r.manager.PlaceOrder(c.Request.Context(), order)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error(), "code": coreerrors.GetCode(err)})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (r *Router) cancelOrder(c *gin.Context) {
	pair := c.Param("pair")
	orderID := c.Param("orderID")
	userID := c.Query("userId")

	order, err := r.manager.CancelOrder(c.Request.Context(), pair, orderID, userID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error(), "code": coreerrors.GetCode(err)})
		return
	}
	c.JSON(http.StatusOK, order)
}

func (r *Router) getOrderBook(c *gin.Context) {
	pair := c.Param("pair")
	depth := 50

	snapshot, err := r.manager.GetOrderBook(c.Request.Context(), pair, depth)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error(), "code": coreerrors.GetCode(err)})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// statusForError maps a coreerrors.Code's class onto the nearest HTTP
// status (spec.md §7 propagation policy: validation/authorization/
// conflict errors are caller mistakes, transient/fatal are server-side).
func statusForError(err error) int {
	switch coreerrors.GetCode(err) {
	case coreerrors.ErrMissingField, coreerrors.ErrInvalidAmount, coreerrors.ErrInvalidPrice,
		coreerrors.ErrUnknownPair, coreerrors.ErrLeverageOutOfBounds, coreerrors.ErrPostOnlyWouldCross,
		coreerrors.ErrFeeAssetMismatch, coreerrors.ErrInsufficientMargin, coreerrors.ErrPriceBandBreach,
		coreerrors.ErrFOKUnfillable, coreerrors.ErrEmptyOpposingSide:
		return http.StatusBadRequest
	case coreerrors.ErrNotOrderOwner, coreerrors.ErrWithdrawExceedsBalance:
		return http.StatusForbidden
	case coreerrors.ErrOrderNotFound:
		return http.StatusNotFound
	case coreerrors.ErrOrderNotOpen, coreerrors.ErrDuplicateIdempotencyKey:
		return http.StatusConflict
	case coreerrors.ErrCircuitBreakerActive, coreerrors.ErrPairHalted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
