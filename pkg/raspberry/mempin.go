//go:build linux
// +build linux

package raspberry

import (
	"github.com/warthog618/gpio"
	"quickjack/pkg/port"
)

// MemPin is an output pin driven through the mapped /dev/gpiomem registers.
// Writing a register is faster than the ioctl of the character device.
type MemPin struct {
	gpioPin *gpio.Pin
}

// OpenMemPin maps the GPIO memory and sets the pin (BCM number) as output at level.
func OpenMemPin(pin int, level port.Level) (*MemPin, error) {
	if err := gpio.Open(); err != nil {
		return nil, err
	}

	p := &MemPin{gpioPin: gpio.NewPin(pin)}
	p.gpioPin.Write(gpio.Level(level))
	p.gpioPin.Output()
	return p, nil
}

// Set drives the pin to level.
func (p *MemPin) Set(level port.Level) error {
	p.gpioPin.Write(gpio.Level(level))
	return nil
}

// Pin returns the pin number that this Pin represents.
func (p *MemPin) Pin() int {
	return p.gpioPin.Pin()
}

// Close sets the pin back to input and unmaps GPIO memory.
func (p *MemPin) Close() error {
	p.gpioPin.Input()
	return gpio.Close()
}
