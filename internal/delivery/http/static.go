package http

import (
	"io/fs"

	"github.com/labstack/echo/v4"
)

// RegisterStatic serves the dist directory of files at the root path.
func RegisterStatic(e *echo.Echo, files fs.FS) {
	e.StaticFS("/", echo.MustSubFS(files, "dist"))
}
