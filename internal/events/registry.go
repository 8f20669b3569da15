package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// process
	"process.attached": {},
	"process.exited":   {},

	// detector
	"detector.snapshot":     {},
	"detector.lock_pending": {},
	"detector.bag_boundary": {},

	// bag
	"bag.predicted": {},
	"bag.reset":     {},

	// solver
	"solver.unsolvable": {},
	"solver.error":      {},

	// overlay
	"overlay.broadcast": {},
	"overlay.cleared":   {},

	// mqtt
	"mqtt.connected":    {},
	"mqtt.disconnected": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
