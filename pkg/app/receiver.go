package app

import (
	"context"
	"time"

	"github.com/womat/debug"
)

// rxMessage is the mqtt message of a received byte.
type rxMessage struct {
	TimeStamp time.Time `json:"timestamp"`
	Value     byte      `json:"value"`
}

// receive waits in an endless loop for bytes of the link and sends them to the mqtt broker.
// It is used if no serial bridge is configured.
func (app *App) receive(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-app.link.Ready():
		}

		if b, ok := app.link.TryReceive(); ok {
			debug.DebugLog.Printf("received 0x%02x", b)
			app.publish(b)
		}
	}
}

// publish sends a received byte to the mqtt broker.
func (app *App) publish(b byte) {
	if app.config.MQTT.Connection == "" {
		return
	}

	if err := app.mqtt.Publish(app.config.MQTT.Topic, false, rxMessage{TimeStamp: time.Now(), Value: b}); err != nil {
		debug.ErrorLog.Printf("publish: %v", err)
	}
}
