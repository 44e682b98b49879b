package app

import (
	"errors"
	"net/http"
	"strconv"

	"quickjack/pkg/bridge"
	"quickjack/pkg/manchester"
	"quickjack/pkg/quickjack"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// runWebServer starts the applications web server and listens for web requests.
//  It's designed to run in a separate go function to not block the main go function.
//  e.g.: go runWebServer()
//  See app.Run()
func (app *App) runWebServer() {
	err := app.web.Listen(app.urlParsed.Host)
	debug.ErrorLog.Print(err)
}

// HandleData returns the state and counters of the link.
// output example:
//  {"link":{"rxState":"startbit","txState":"idle","received":170,"rxFrames":4,...},"bridge":{"rxBytes":4,"txBytes":0}}
func (app *App) HandleData() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request data")

		data := struct {
			Link   quickjack.Stats `json:"link"`
			Bridge *bridge.Stats   `json:"bridge,omitempty"`
		}{
			Link: app.link.Stats(),
		}

		if app.bridge != nil {
			s := app.bridge.Stats()
			data.Bridge = &s
		}

		return ctx.JSON(data)
	}
}

// HandleSend queues one byte for transmission, e.g. POST /send/0xaa or /send/170.
func (app *App) HandleSend() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Printf("web request send %v", ctx.Params("value"))

		v, err := strconv.ParseUint(ctx.Params("value"), 0, 8)
		if err != nil {
			ctx.Status(http.StatusBadRequest)
			return ctx.JSON(fiber.Map{"error": err.Error()})
		}

		prev, err := app.link.Send(byte(v))
		switch {
		case errors.Is(err, manchester.ErrBusy):
			ctx.Status(http.StatusConflict)
			return ctx.JSON(fiber.Map{"error": err.Error(), "pending": prev})
		case err != nil:
			ctx.Status(http.StatusInternalServerError)
			return ctx.JSON(fiber.Map{"error": err.Error()})
		}

		ctx.Status(http.StatusAccepted)
		return ctx.JSON(fiber.Map{"value": byte(v), "previous": prev})
	}
}
