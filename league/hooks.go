package league

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/warp/league-engine/model"
	"github.com/warp/league-engine/storage"
)

// =============================================================================
// POST-TRANSITION HOOKS
// =============================================================================

// Hook runs after a transition commits. It cannot fail the transition:
// hooks run in their own goroutine and panics are recovered and logged.
type Hook func(ctx context.Context, st State, t Transition)

// OnTransition registers a hook for every future transition.
func (o *Orchestrator) OnTransition(h Hook) {
	o.hooksMu.Lock()
	defer o.hooksMu.Unlock()
	o.hooks = append(o.hooks, h)
}

// WaitHooks blocks until every dispatched hook has returned.
func (o *Orchestrator) WaitHooks() {
	o.hookWG.Wait()
}

func (o *Orchestrator) fireHooks(ctx context.Context, st State, t Transition) {
	o.hooksMu.RLock()
	hooks := append([]Hook(nil), o.hooks...)
	o.hooksMu.RUnlock()

	ctx = context.WithoutCancel(ctx)
	for i, h := range hooks {
		o.hookWG.Add(1)
		go func(i int, h Hook) {
			defer o.hookWG.Done()
			defer func() {
				if r := recover(); r != nil {
					o.log.WithFields(logrus.Fields{"hook": i, "to": t.To, "panic": fmt.Sprint(r)}).Error("transition hook panicked")
				}
			}()
			h(ctx, st, t)
		}(i, h)
	}
}

// =============================================================================
// NUDGES
// =============================================================================

// Nudge is a notification shown to the commissioner once the league has
// run for a while. Its counter lives in the meta collection under
// Attribute.
type Nudge struct {
	Attribute string

	// AfterSeasons is how many seasons past the starting one the nudge
	// fires, when that season's regular season begins.
	AfterSeasons int

	// RepeatProbability is the chance of showing it again in that same
	// season while fewer than MaxCount were shown.
	RepeatProbability float64
	MaxCount          int

	// FollowUpProbability is the chance, at any later regular season, of a
	// follow-up once the nudge was shown exactly once.
	// FollowUpRepeatProbability applies once a follow-up was shown.
	// Follow-ups store count 2.
	FollowUpProbability       float64
	FollowUpRepeatProbability float64
}

// next returns the counter value to store, or 0 when the nudge stays quiet.
func (n Nudge) next(st State, shown int, roll func() float64) int {
	first := st.StartingSeason + n.AfterSeasons
	if st.Season < first {
		return 0
	}
	if st.Season == first {
		if shown == 0 {
			return 1
		}
		if shown < n.MaxCount && roll() < n.RepeatProbability {
			return shown + 1
		}
	}
	switch {
	case shown == 1 && n.FollowUpProbability > 0 && roll() < n.FollowUpProbability:
		return 2
	case shown >= 2 && n.FollowUpRepeatProbability > 0 && roll() < n.FollowUpRepeatProbability:
		return 2
	}
	return 0
}

// NudgeHook returns a hook that, when a regular season begins, shows at
// most one of nudges: the first whose counter advances. Counters are
// persisted before notify is called with the new count.
func NudgeHook(c *storage.Coordinator, log *logrus.Entry, rng *rand.Rand, notify func(ctx context.Context, n Nudge, count int), nudges ...Nudge) Hook {
	log = log.WithField("component", "nudges")
	var mu sync.Mutex
	roll := func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return rng.Float64()
	}

	return func(ctx context.Context, st State, t Transition) {
		if t.To != model.PhaseRegularSeason {
			return
		}

		var (
			shownNudge Nudge
			count      int
		)
		err := c.RunTransaction(ctx, []storage.Collection{storage.Meta}, storage.ReadWrite, storage.FlushSync, func(tx *storage.Tx) error {
			for _, n := range nudges {
				shown, _, err := storage.GetJSON[int](tx, storage.Meta, n.Attribute)
				if err != nil {
					return err
				}
				if next := n.next(st, shown, roll); next > 0 {
					shownNudge, count = n, next
					return storage.PutJSON(tx, storage.Meta, n.Attribute, 0, count)
				}
			}
			return nil
		})
		if err != nil {
			log.WithError(err).WithField("season", st.Season).Warn("nudge counters not updated")
			return
		}
		if count == 0 {
			return
		}
		notify(ctx, shownNudge, count)
	}
}
