package controllers

import (
	"net/http"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/app/repositories"
	"github.com/darcho/darcho/app/services"
	"github.com/darcho/darcho/pkg/ctx"
)

// IdempotencyHeader lets a client retry checkout safely.
const IdempotencyHeader = "Idempotency-Key"

type OrderController struct {
	service *services.OrderService
}

func NewOrderController() *OrderController {
	return &OrderController{service: services.NewOrderService()}
}

type checkoutResult struct {
	CheckoutRef string         `json:"checkout_ref"`
	Replayed    bool           `json:"replayed"`
	Orders      []models.Order `json:"orders"`
}

// Checkout answers 201 for new orders and 200 for a replayed key.
func (oc *OrderController) Checkout(c *ctx.Context) {
	var in services.CheckoutInput
	if !c.BindJSON(&in) {
		return
	}
	orders, replayed, err := oc.service.Checkout(c.Context(), c.UserID(), in, c.Header(IdempotencyHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	res := checkoutResult{CheckoutRef: orders[0].CheckoutRef, Replayed: replayed, Orders: orders}
	if replayed {
		c.JSON(http.StatusOK, res)
		return
	}
	c.Created(res)
}

func (oc *OrderController) BuyerIndex(c *ctx.Context) {
	page, limit := c.Page()
	orders, p, err := oc.service.ListForBuyer(c.Context(), c.UserID(), c.Query("status"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Paginated(orders, p)
}

func (oc *OrderController) BuyerShow(c *ctx.Context) {
	oid, ok := id(c, "id")
	if !ok {
		return
	}
	order, err := oc.service.GetForBuyer(c.Context(), c.UserID(), oid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(order)
}

func (oc *OrderController) Cancel(c *ctx.Context) {
	oid, ok := id(c, "id")
	if !ok {
		return
	}
	var in services.CancelInput
	if !c.BindOptionalJSON(&in) {
		return
	}
	order, err := oc.service.CancelByBuyer(c.Context(), c.UserID(), oid, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(order)
}

func (oc *OrderController) FarmerIndex(c *ctx.Context) {
	page, limit := c.Page()
	orders, p, err := oc.service.ListForFarmer(c.Context(), c.UserID(), c.Query("status"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Paginated(orders, p)
}

func (oc *OrderController) FarmerShow(c *ctx.Context) {
	oid, ok := id(c, "id")
	if !ok {
		return
	}
	order, err := oc.service.GetForFarmer(c.Context(), c.UserID(), oid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(order)
}

func (oc *OrderController) UpdateStatus(c *ctx.Context) {
	oid, ok := id(c, "id")
	if !ok {
		return
	}
	var in services.StatusInput
	if !c.BindJSON(&in) {
		return
	}
	order, err := oc.service.UpdateStatus(c.Context(), c.UserID(), oid, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(order)
}

// AdminIndex lists every order, filterable by status, buyer_id and farmer_id.
func (oc *OrderController) AdminIndex(c *ctx.Context) {
	page, limit := c.Page()
	f := repositories.OrderFilter{
		BuyerID:  uint(max(c.QueryInt("buyer_id", 0), 0)),
		FarmerID: uint(max(c.QueryInt("farmer_id", 0), 0)),
		Status:   c.Query("status"),
	}
	orders, p, err := oc.service.ListAll(c.Context(), f, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Paginated(orders, p)
}
