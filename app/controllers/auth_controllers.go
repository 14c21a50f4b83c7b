package controllers

import (
	"github.com/darcho/darcho/app/services"
	"github.com/darcho/darcho/config"
	"github.com/darcho/darcho/pkg/ctx"
	"github.com/darcho/darcho/pkg/middleware"
	"github.com/darcho/darcho/pkg/session"
)

type AuthController struct {
	service *services.AuthService
}

func NewAuthController() *AuthController {
	return &AuthController{service: services.NewAuthService()}
}

type loginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshInput struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func meta(c *ctx.Context) session.Meta {
	return session.Meta{IP: c.ClientIP(), UserAgent: c.Header("User-Agent")}
}

func setTokenCookie(c *ctx.Context, res *services.AuthResult) {
	c.SetCookie(middleware.TokenCookie, res.Tokens.AccessToken,
		int(config.AccessTokenTTL().Seconds()), config.IsProduction())
}

func clearTokenCookie(c *ctx.Context) {
	c.SetCookie(middleware.TokenCookie, "", -1, config.IsProduction())
}

func (ac *AuthController) Register(c *ctx.Context) {
	var in services.RegisterInput
	if !c.BindJSON(&in) {
		return
	}
	user, err := ac.service.Register(c.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Created(user)
}

func (ac *AuthController) Login(c *ctx.Context) {
	var in loginInput
	if !c.BindJSON(&in) {
		return
	}
	res, err := ac.service.Login(c.Context(), in.Email, in.Password, meta(c))
	if err != nil {
		respondError(c, err)
		return
	}
	setTokenCookie(c, res)
	c.Success(res)
}

func (ac *AuthController) Refresh(c *ctx.Context) {
	var in refreshInput
	if !c.BindJSON(&in) {
		return
	}
	res, err := ac.service.Refresh(c.Context(), in.RefreshToken, meta(c))
	if err != nil {
		respondError(c, err)
		return
	}
	setTokenCookie(c, res)
	c.Success(res)
}

func (ac *AuthController) Logout(c *ctx.Context) {
	if err := ac.service.Logout(c.Context(), c.SessionID()); err != nil {
		respondError(c, err)
		return
	}
	clearTokenCookie(c)
	c.Message("Logged out")
}

func (ac *AuthController) Me(c *ctx.Context) {
	user, err := ac.service.Me(c.Context(), c.UserID())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(user)
}

func (ac *AuthController) UpdateProfile(c *ctx.Context) {
	var in services.ProfileInput
	if !c.BindJSON(&in) {
		return
	}
	user, err := ac.service.UpdateProfile(c.Context(), c.UserID(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(user)
}

// ChangePassword signs the user out everywhere, this browser included.
func (ac *AuthController) ChangePassword(c *ctx.Context) {
	var in services.PasswordInput
	if !c.BindJSON(&in) {
		return
	}
	if err := ac.service.ChangePassword(c.Context(), c.UserID(), in); err != nil {
		respondError(c, err)
		return
	}
	clearTokenCookie(c)
	c.Message("Password changed. Please sign in again.")
}
