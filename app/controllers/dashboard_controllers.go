package controllers

import (
	"github.com/darcho/darcho/app/services"
	"github.com/darcho/darcho/pkg/ctx"
)

type DashboardController struct {
	service *services.DashboardService
}

func NewDashboardController() *DashboardController {
	return &DashboardController{service: services.NewDashboardService()}
}

func (dc *DashboardController) Farmer(c *ctx.Context) {
	d, err := dc.service.Farmer(c.Context(), c.UserID())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(d)
}

func (dc *DashboardController) Buyer(c *ctx.Context) {
	d, err := dc.service.Buyer(c.Context(), c.UserID())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(d)
}

func (dc *DashboardController) Admin(c *ctx.Context) {
	d, err := dc.service.Admin(c.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(d)
}
