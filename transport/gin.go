package transport

import (
	"github.com/gin-gonic/gin"
)

// GinHandler is NewHTTPHandler for gin routers. Register it on a POST route.
func GinHandler(dispatcher Dispatcher, opts ...HandlerOption) gin.HandlerFunc {
	cfg := newHandlerConfig(opts)
	return func(c *gin.Context) {
		outcome := cfg.serve(c.Request, dispatcher)
		c.String(outcome.Status, outcome.Message)
	}
}
