package autobuy

import (
	"context"
	"fmt"
	"time"

	"tms-autobuy/internal/tms"
)

// DefaultOpenHour is the exchange-local hour before which no loop starts.
const DefaultOpenHour = 11

// MarketGate holds the run until the exchange is trading.
type MarketGate struct {
	env      *runEnv
	sentinel string
	openHour int
	status   *statusTracker
}

func newMarketGate(env *runEnv, sentinel string, openHour int) *MarketGate {
	return &MarketGate{
		env:      env,
		sentinel: sentinel,
		openHour: openHour,
		status:   newStatusTracker(env.log.WithField("component", "gate"), 30*time.Second, env.now),
	}
}

// Wait spins without sleeping until the market status is not closed and the
// exchange-local hour has reached openHour. An unknown status does not hold
// the gate. While held, the sentinel symbol is polled to keep the pooled
// connections warm; those errors are ignored.
func (g *MarketGate) Wait(ctx context.Context) (tms.MarketStatus, error) {
	log := g.env.log.WithField("component", "gate")
	for {
		if err := ctx.Err(); err != nil {
			return tms.MarketUnknown, err
		}

		st, err := g.env.broker.MarketStatus(ctx, g.env.session)
		g.env.metrics.GateCheck()
		if err != nil {
			if ctx.Err() != nil {
				return tms.MarketUnknown, ctx.Err()
			}
			log.WithError(err).Debug("market status check failed")
		}

		now := g.env.now().In(g.env.loc)
		if g.open(st, now) {
			log.Infof("market gate released at %s (status %s)", now.Format("15:04:05"), st)
			return st, nil
		}
		g.status.Set("market", fmt.Sprintf("%s, local %s, waiting for %02d:00", st, now.Format("15:04"), g.openHour))

		if _, err := g.env.broker.PollQuote(ctx, g.env.session, g.sentinel); err != nil {
			log.WithError(err).Debugf("keep-warm poll of %s failed", g.sentinel)
		}
	}
}

func (g *MarketGate) open(st tms.MarketStatus, localNow time.Time) bool {
	return st != tms.MarketClosed && localNow.Hour() >= g.openHour
}
