package http

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"pointview/web"
)

type ServerConfig struct {
	CORS string
	// BodyLimit caps request bodies, e.g. "256M". Empty means no limit.
	BodyLimit string
}

// NewServer returns an echo instance serving the API, the SSE stream of
// the API's hub and the embedded viewer.
func NewServer(config ServerConfig, api *API, log logrus.FieldLogger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.JSONSerializer = jsonSerializer{}

	e.Use(middleware.RequestID())
	e.Use(RequestLogger(log))
	e.Use(middleware.Recover())
	if config.CORS != "" {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: []string{config.CORS},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		}))
	}
	if config.BodyLimit != "" {
		e.Use(middleware.BodyLimit(config.BodyLimit))
	}

	api.Register(e)
	RegisterSSEHandler(e, SSEConfig{CORS: config.CORS}, api.Hub(), log)
	RegisterStatic(e, web.StaticFiles)
	return e
}
