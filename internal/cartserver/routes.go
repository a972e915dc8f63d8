package cartserver

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the cart API on rg. Every route except the
// health check requires an identity.
//
//	GET    /cart/            current cart
//	POST   /cart/items/      add a bundle
//	PATCH  /cart/items/:id/  set a line's quantity
//	DELETE /cart/items/:id/  remove a line
//	DELETE /cart/clear/      empty the cart
//	POST   /cart/merge/      fold a guest cart into the user's
//	POST   /auth/logout/     broadcast cart-reset to the user's streams
//	GET    /events/          cart signal stream
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers, auth Authenticator, guestHeader string) {
	rg.GET("/healthz", h.HandleHealth)

	api := rg.Group("/", resolveOwner(auth, guestHeader))
	api.GET("/cart/", h.HandleGetCart)
	api.POST("/cart/items/", h.HandleAddItem)
	api.PATCH("/cart/items/:id/", h.HandleUpdateItem)
	api.DELETE("/cart/items/:id/", h.HandleDeleteItem)
	api.DELETE("/cart/clear/", h.HandleClear)
	api.POST("/cart/merge/", h.HandleMerge)
	api.POST("/auth/logout/", h.HandleLogout)
	api.GET("/events/", h.HandleEvents)
}
