package app

import (
	"context"
	"io"
	"net/url"
	"sync"

	"quickjack/pkg/app/config"
	"quickjack/pkg/bridge"
	"quickjack/pkg/mqtt"
	"quickjack/pkg/port"
	"quickjack/pkg/quickjack"
	"quickjack/pkg/raspberry"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// App is the main application struct.
// App is where the application is wired up.
type App struct {
	// web is the fiber web framework instance
	web *fiber.App

	// config is the application configuration
	config *config.Config

	// urlParsed contains the parsed Config.Url parameter
	// and makes it easier to get params out of e.g.
	// url: https://0.0.0.0:7844/?minTls=1.2&bodyLimit=50MB
	urlParsed *url.URL

	// mqtt is the handler to the mqtt broker
	mqtt *mqtt.Handler

	// chip is the gpio character device (nil for the emu driver)
	chip *raspberry.Chip

	// events are the edges of the receive line
	events <-chan port.Event

	// link is the handler of the audio jack link
	link *quickjack.Link

	// bridge relays the link to the host serial port (nil without serial device)
	bridge *bridge.Bridge

	// closers are the lines and ports to release on Close, in order
	closers []io.Closer

	// ctx is canceled by Close and stops all services
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New checks the Web server URL and initialize the main app structure
func New(config *config.Config) (*App, error) {
	u, err := url.Parse(config.Webserver.URL)
	if err != nil {
		debug.ErrorLog.Printf("Error parsing url %q: %s", config.Webserver.URL, err.Error())
		return &App{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		config:    config,
		urlParsed: u,

		web:  fiber.New(),
		mqtt: mqtt.New(),

		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Run starts the application.
func (app *App) Run() error {
	if err := app.init(); err != nil {
		return err
	}

	go app.mqtt.Service()
	go app.runWebServer()

	app.goService("link", func(ctx context.Context) error {
		return app.link.Run(ctx, app.events)
	})

	if app.config.Link.Handshake {
		app.goService("handshake", app.link.Handshake)
	}

	if app.bridge != nil {
		app.goService("bridge", app.bridge.Run)
	} else {
		app.goService("receiver", app.receive)
	}

	return nil
}

// init initializes the application.
func (app *App) init() error {
	out, err := app.openLines()
	if err != nil {
		return err
	}

	app.link = quickjack.New(out, quickjack.Config{
		IdleLevel:  app.config.Link.IdleLevel == "high",
		RxTimeout:  app.config.Link.RxTimeout,
		HalfDuplex: app.config.Link.HalfDuplex,
	})

	if app.config.Serial.Device != "" {
		p, err := bridge.OpenSerial(app.config.Serial.Device, app.config.Serial.BaudRate)
		if err != nil {
			debug.ErrorLog.Printf("can't open serial port: %v", err)
			return err
		}
		app.closers = append(app.closers, p)

		app.bridge = bridge.New(app.link, p)
		app.bridge.OnReceive = app.publish
	}

	if err = app.mqtt.Connect(app.config.MQTT.Connection, app.config.MQTT.ClientID); err != nil {
		debug.ErrorLog.Printf("can't open mqtt broker %v", err)
		return err
	}

	// initDefaultRoutes should be always called last because it may access things like app.link
	// which must be initialized before
	app.initDefaultRoutes()

	return nil
}

// openLines requests the receive and transmit line of the configured gpio driver.
func (app *App) openLines() (port.Output, error) {
	c := app.config.Gpio
	idle := port.Level(app.config.Link.IdleLevel == "high")

	if c.Driver == "emu" {
		line := raspberry.NewEmuLine(idle, nil)
		app.closers = append(app.closers, line)
		app.events = line.Events()
		debug.InfoLog.Print("gpio emulation: the tx line is looped back to the rx line")
		return line, nil
	}

	chip, err := raspberry.Open(c.Chip)
	if err != nil {
		debug.ErrorLog.Printf("can't open gpio chip %v: %v", c.Chip, err)
		return nil, err
	}
	app.chip = chip

	rx, err := chip.NewInputLine(c.RxLine, c.Terminator, c.BounceTime)
	if err != nil {
		debug.ErrorLog.Printf("can't open rx line %v: %v", c.RxLine, err)
		return nil, err
	}
	app.closers = append(app.closers, rx)
	app.events = rx.Events()

	if c.Driver == "gpiomem" {
		tx, err := raspberry.OpenMemPin(c.TxLine, idle)
		if err != nil {
			debug.ErrorLog.Printf("can't open tx pin %v: %v", c.TxLine, err)
			return nil, err
		}
		app.closers = append(app.closers, tx)
		return tx, nil
	}

	tx, err := chip.NewOutputLine(c.TxLine, idle)
	if err != nil {
		debug.ErrorLog.Printf("can't open tx line %v: %v", c.TxLine, err)
		return nil, err
	}
	app.closers = append(app.closers, tx)
	return tx, nil
}

// goService runs f in a separate go function until the application is closed.
func (app *App) goService(name string, f func(ctx context.Context) error) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()

		if err := f(app.ctx); err != nil && app.ctx.Err() == nil {
			debug.ErrorLog.Printf("%v stopped: %v", name, err)
			return
		}
		debug.DebugLog.Printf("%v stopped", name)
	}()
}

// Close stops all services and releases the lines.
func (app *App) Close() error {
	if app.cancel != nil {
		app.cancel()
	}
	app.wg.Wait()

	if app.web != nil {
		_ = app.web.Shutdown()
	}

	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			debug.ErrorLog.Printf("close: %v", err)
		}
	}
	app.closers = nil

	if app.chip != nil {
		_ = app.chip.Close()
	}

	if app.mqtt != nil {
		_ = app.mqtt.Close()
	}
	return nil
}
