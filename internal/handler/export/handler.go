package export

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/merchantry/fulfillment-api/internal/carrier/codec"
	"github.com/merchantry/fulfillment-api/internal/handler"
	"github.com/merchantry/fulfillment-api/internal/middleware"
	"github.com/merchantry/fulfillment-api/internal/repository"
	"github.com/merchantry/fulfillment-api/pkg/logger"
)

const defaultPageSize = 100

// Handler serves the order-export feed the carrier platform polls. The
// response is the paginated XML document; the carrier walks pages until
// page == pages.
type Handler struct {
	orders repository.OrderRepository
	auth   *middleware.CarrierAuth
	logger *logger.Logger
}

func NewHandler(orders repository.OrderRepository, auth *middleware.CarrierAuth, log *logger.Logger) *Handler {
	return &Handler{
		orders: orders,
		auth:   auth,
		logger: log,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	export := r.Group("/export")
	export.Use(h.auth.Authenticate())
	{
		export.GET("/orders", h.Orders)
	}
}

func (h *Handler) Orders(c *gin.Context) {
	storeID := c.MustGet(middleware.ContextStoreID).(uuid.UUID)

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	orders, pages, err := h.orders.ListForExport(c.Request.Context(), storeID, page, defaultPageSize)
	if err != nil {
		h.logger.Error(err, "order export query failed",
			"store_id", storeID.String(), "page", page)
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("export failed"))
		return
	}

	exports := make([]codec.ExportOrder, 0, len(orders))
	for _, o := range orders {
		items, err := h.orders.ListItems(c.Request.Context(), o.ID)
		if err != nil {
			h.logger.Error(err, "order export items query failed",
				"store_id", storeID.String(), "order_id", o.ID.String())
			c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("export failed"))
			return
		}
		exports = append(exports, codec.ExportOrder{Order: o, Items: items})
	}

	doc := codec.BuildOrdersDocument(exports, page, pages)
	c.Data(http.StatusOK, "application/xml; charset=utf-8", doc)
}
