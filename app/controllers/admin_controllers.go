package controllers

import (
	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/app/repositories"
	"github.com/darcho/darcho/app/services"
	"github.com/darcho/darcho/pkg/ctx"
)

type AdminController struct {
	service *services.AdminService
}

func NewAdminController() *AdminController {
	return &AdminController{service: services.NewAdminService()}
}

func (ac *AdminController) Users(c *ctx.Context) {
	page, limit := c.Page()
	f := repositories.UserFilter{Role: c.Query("role"), Status: c.Query("status"), Q: c.Query("q")}
	users, p, err := ac.service.ListUsers(c.Context(), f, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Paginated(users, p)
}

func (ac *AdminController) moderate(c *ctx.Context, fn func(uid uint) (models.User, error)) {
	uid, ok := id(c, "id")
	if !ok {
		return
	}
	user, err := fn(uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(user)
}

func (ac *AdminController) Approve(c *ctx.Context) {
	ac.moderate(c, func(uid uint) (models.User, error) { return ac.service.ApproveFarmer(c.Context(), uid) })
}

func (ac *AdminController) Suspend(c *ctx.Context) {
	ac.moderate(c, func(uid uint) (models.User, error) { return ac.service.Suspend(c.Context(), c.UserID(), uid) })
}

func (ac *AdminController) Activate(c *ctx.Context) {
	ac.moderate(c, func(uid uint) (models.User, error) { return ac.service.Activate(c.Context(), uid) })
}
