package netmon

import "github.com/nutriai/mealsync/internal/ports"

// Manual is a monitor whose state is set by the caller. The daemon uses it
// for the "always" network mode and the control API can flip it.
type Manual struct {
	notifier
}

func NewManual(online bool, logger ports.Logger) *Manual {
	return &Manual{notifier: newNotifier(online, "manual", logger)}
}

// Set changes the connectivity state. It reports whether the state changed.
func (m *Manual) Set(online bool) bool {
	return m.set(online)
}
