package router

import (
	"github.com/labstack/echo/v4"

	"petadopt/internal/adapter/api/handler"
	"petadopt/pkg/config"
)

func SetupDevRouter(e *echo.Echo, environment string) {
	if environment != config.EnvironmentDevelopment {
		return
	}
	devTokenHandler := handler.GetDevTokenHandler()

	e.GET("/_dev/token", devTokenHandler.GenerateToken)
}
