// Package routes is the Darcho HTTP surface.
package routes

import (
	"net/http"
	"time"

	"github.com/darcho/darcho/app/controllers"
	appgraphql "github.com/darcho/darcho/app/graphql"
	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/app/services"
	"github.com/darcho/darcho/config"
	"github.com/darcho/darcho/pkg/ctx"
	gql "github.com/darcho/darcho/pkg/graphql"
	"github.com/darcho/darcho/pkg/metrics"
	"github.com/darcho/darcho/pkg/middleware"
	"github.com/darcho/darcho/pkg/rbac"
	"github.com/darcho/darcho/pkg/reqid"
	"github.com/darcho/darcho/pkg/response"
	"github.com/darcho/darcho/pkg/router"
	"github.com/darcho/darcho/pkg/storage"
	"github.com/darcho/darcho/pkg/ws"
)

// RegisterAPI installs the global middleware stack and every route on r.
// Chat frames arriving on hub are handled by the chat controller.
func RegisterAPI(r *router.Router, hub *ws.Hub) error {
	// Outermost first: metrics see total latency, recovery wraps everything
	// that can panic, the request id exists before anything logs.
	r.Use(
		metrics.Middleware(),
		middleware.Recovery,
		reqid.Middleware(),
		middleware.Logger,
		middleware.CORS(middleware.CORSFromConfig()),
		middleware.RateLimit(config.RateLimit(), time.Minute),
	)

	schema, err := appgraphql.Schema(services.NewProductService())
	if err != nil {
		return err
	}

	auth := controllers.NewAuthController()
	products := controllers.NewProductController()
	cart := controllers.NewCartController()
	orders := controllers.NewOrderController()
	chat := controllers.NewChatController(hub)
	notifications := controllers.NewNotificationController()
	admin := controllers.NewAdminController()
	dashboards := controllers.NewDashboardController()

	r.Get("/healthz", "healthz", health)
	r.Get("/metrics", "metrics", metrics.Handler())
	r.Post("/graphql", "graphql", gql.Handler(schema), middleware.OptionalAuth)
	r.Get("/ws/chat", "chat.socket", chat.Socket, middleware.AuthenticateWS)

	if local, ok := storage.Local(); ok {
		r.Mount("/storage", "storage", local.Handler("/storage"))
	}

	api := r.Group("/api")

	// ── Auth ────────────────────────────────────────────────────────────────
	api.Post("/auth/register", "auth.register", ctx.Wrap(auth.Register))
	api.Post("/auth/login", "auth.login", ctx.Wrap(auth.Login))
	api.Post("/auth/refresh", "auth.refresh", ctx.Wrap(auth.Refresh))

	account := api.Group("", middleware.Authenticate)
	account.Post("/auth/logout", "auth.logout", ctx.Wrap(auth.Logout))
	account.Get("/auth/me", "auth.me", ctx.Wrap(auth.Me))
	account.Put("/auth/profile", "auth.profile", ctx.Wrap(auth.UpdateProfile))
	account.Put("/auth/password", "auth.password", ctx.Wrap(auth.ChangePassword))

	// ── Catalog (public) ───────────────────────────────────────────────────
	catalog := api.Group("/products", middleware.OptionalAuth)
	catalog.Get("/", "products.index", ctx.Wrap(products.Index))
	catalog.Get("/{id}", "products.show", ctx.Wrap(products.Show))

	// ── Chat, notifications, live events (any signed-in role) ──────────────
	account.Get("/events", "events", chat.Events)
	account.Get("/chat/threads", "chat.threads", ctx.Wrap(chat.Threads))
	account.Get("/chat/{userID}", "chat.conversation", ctx.Wrap(chat.Conversation))
	account.Post("/chat/{userID}", "chat.send", ctx.Wrap(chat.Send))
	account.Post("/chat/{userID}/read", "chat.read", ctx.Wrap(chat.MarkRead))

	account.Get("/notifications", "notifications.index", ctx.Wrap(notifications.Index))
	account.Post("/notifications/read-all", "notifications.read_all", ctx.Wrap(notifications.MarkAllRead))
	account.Post("/notifications/{id}/read", "notifications.read", ctx.Wrap(notifications.MarkRead))

	// ── Farmer ──────────────────────────────────────────────────────────────
	farmer := api.Group("/farmer", middleware.Authenticate, rbac.HasRole(models.RoleFarmer))
	farmer.Get("/products", "farmer.products.index", ctx.Wrap(products.Mine))
	farmer.Post("/products", "farmer.products.store", ctx.Wrap(products.Store))
	farmer.Get("/products/export", "farmer.products.export", ctx.Wrap(products.Export))
	farmer.Put("/products/{id}", "farmer.products.update", ctx.Wrap(products.Update))
	farmer.Delete("/products/{id}", "farmer.products.destroy", ctx.Wrap(products.Destroy))
	farmer.Post("/products/{id}/image", "farmer.products.image", ctx.Wrap(products.UploadImage))
	farmer.Get("/orders", "farmer.orders.index", ctx.Wrap(orders.FarmerIndex))
	farmer.Get("/orders/{id}", "farmer.orders.show", ctx.Wrap(orders.FarmerShow))
	farmer.Patch("/orders/{id}/status", "farmer.orders.status", ctx.Wrap(orders.UpdateStatus))
	farmer.Get("/dashboard", "farmer.dashboard", ctx.Wrap(dashboards.Farmer))

	// ── Buyer ───────────────────────────────────────────────────────────────
	buyer := api.Group("/buyer", middleware.Authenticate, rbac.HasRole(models.RoleBuyer))
	buyer.Get("/cart", "buyer.cart.show", ctx.Wrap(cart.Show))
	buyer.Post("/cart", "buyer.cart.add", ctx.Wrap(cart.Add))
	buyer.Delete("/cart", "buyer.cart.clear", ctx.Wrap(cart.Clear))
	buyer.Put("/cart/{productID}", "buyer.cart.update", ctx.Wrap(cart.Update))
	buyer.Delete("/cart/{productID}", "buyer.cart.remove", ctx.Wrap(cart.Remove))
	buyer.Get("/favorites", "buyer.favorites.index", ctx.Wrap(cart.Favorites))
	buyer.Post("/favorites/{productID}", "buyer.favorites.add", ctx.Wrap(cart.AddFavorite))
	buyer.Delete("/favorites/{productID}", "buyer.favorites.remove", ctx.Wrap(cart.RemoveFavorite))
	buyer.Post("/checkout", "buyer.checkout", ctx.Wrap(orders.Checkout))
	buyer.Get("/orders", "buyer.orders.index", ctx.Wrap(orders.BuyerIndex))
	buyer.Get("/orders/{id}", "buyer.orders.show", ctx.Wrap(orders.BuyerShow))
	buyer.Post("/orders/{id}/cancel", "buyer.orders.cancel", ctx.Wrap(orders.Cancel))
	buyer.Get("/dashboard", "buyer.dashboard", ctx.Wrap(dashboards.Buyer))

	// ── Admin ───────────────────────────────────────────────────────────────
	adm := api.Group("/admin", middleware.Authenticate, rbac.HasRole(models.RoleAdmin))
	adm.Get("/users", "admin.users.index", ctx.Wrap(admin.Users))
	adm.Post("/users/{id}/approve", "admin.users.approve", ctx.Wrap(admin.Approve))
	adm.Post("/users/{id}/suspend", "admin.users.suspend", ctx.Wrap(admin.Suspend))
	adm.Post("/users/{id}/activate", "admin.users.activate", ctx.Wrap(admin.Activate))
	adm.Get("/orders", "admin.orders.index", ctx.Wrap(orders.AdminIndex))
	adm.Delete("/products/{id}", "admin.products.remove", ctx.Wrap(products.Remove))
	adm.Get("/dashboard", "admin.dashboard", ctx.Wrap(dashboards.Admin))

	return nil
}

func health(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, map[string]string{"status": "ok"})
}
