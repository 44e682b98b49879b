package app

import (
	"net/http"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// HandleHealth returns data about the health of myself and the link.
// The link is healthy as long as the encode timer is running.
// output example:
//  {"Healthy":true,"Ticks":27561,"TxState":"idle","RxState":"startbit","NumGoroutines":11,
//   "HeapAllocatedMB":3,"SysMemoryMB":12,"Version":"1.6.10+20261001","ProgLang":"go1.20.5"}
func (app *App) HandleHealth() fiber.Handler {
	bToMb := func(b uint64) uint64 {
		return b / 1024 / 1024
	}

	host, _ := os.Hostname()
	var lastTicks atomic.Uint64

	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request health")

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		s := app.link.Stats()
		healthy := lastTicks.Swap(s.Ticks) != s.Ticks

		healthData := struct {
			Healthy         bool
			Ticks           uint64
			TxState         string
			RxState         string
			NumGoroutines   int
			HeapAllocatedMB uint64
			SysMemoryMB     uint64
			Version         string
			ProgLang        string
			HostName        string
			Time            string
		}{
			Healthy:         healthy,
			Ticks:           s.Ticks,
			TxState:         s.TxState,
			RxState:         s.RxState,
			NumGoroutines:   runtime.NumGoroutine(),
			HeapAllocatedMB: bToMb(m.Alloc),
			SysMemoryMB:     bToMb(m.Sys),
			ProgLang:        runtime.Version(),
			Version:         VERSION,
			HostName:        host,
			Time:            time.Now().Format(time.RFC3339),
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		ctx.Status(status)
		return ctx.JSON(healthData)
	}
}
