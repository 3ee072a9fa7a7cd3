package autobuy

import (
	"time"

	"github.com/sirupsen/logrus"
)

type statusSlot struct {
	msg    string
	lastAt time.Time
}

// statusTracker logs a slot only when its message changes, or when the same
// message repeats after minInterval. The gate loop spins without sleeping, so
// logging every iteration would flood the file.
type statusTracker struct {
	log         logrus.FieldLogger
	minInterval time.Duration
	now         func() time.Time
	slots       map[string]statusSlot
}

func newStatusTracker(log logrus.FieldLogger, minInterval time.Duration, now func() time.Time) *statusTracker {
	if minInterval < 0 {
		minInterval = 0
	}
	if now == nil {
		now = time.Now
	}
	return &statusTracker{
		log:         log,
		minInterval: minInterval,
		now:         now,
		slots:       make(map[string]statusSlot),
	}
}

// Set returns true if the message was logged.
func (s *statusTracker) Set(slot, msg string) bool {
	if s == nil || slot == "" || msg == "" {
		return false
	}
	now := s.now()
	prev := s.slots[slot]
	if prev.msg == msg && !prev.lastAt.IsZero() && now.Sub(prev.lastAt) < s.minInterval {
		return false
	}
	s.slots[slot] = statusSlot{msg: msg, lastAt: now}
	s.log.WithField("slot", slot).Infof("status %s=%s", slot, msg)
	return true
}
