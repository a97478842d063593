// Package orchestrator owns the long-running single-thread loop that
// reads decoded packets off the capture source, drives the dispatcher,
// and throttles the UI-facing snapshot/party-composition ticks. It is
// the only place trackers and encounter state are mutated from, per the
// single-owner concurrency model the whole aggregator is built on.
package orchestrator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/skirmishmeter/meter/internal/aggregator/dispatch"
	"github.com/skirmishmeter/meter/internal/aggregator/encounter"
	"github.com/skirmishmeter/meter/internal/capture"
	"github.com/skirmishmeter/meter/internal/metrics"
)

// Options are the runtime-tunable ticking intervals.
type Options struct {
	// UITick is the snapshot-emission period in normal operation.
	UITick time.Duration
	// UITickLowPerformance replaces UITick when LowPerformance is set.
	UITickLowPerformance time.Duration
	// PartyTick is how often the party-composition cache is refreshed.
	PartyTick time.Duration
	// LowPerformance selects UITickLowPerformance over UITick.
	LowPerformance bool
	// SaveTimeout bounds a manually-triggered, backgrounded persist.
	SaveTimeout time.Duration
}

// DefaultOptions matches the UI's documented tick cadence.
func DefaultOptions() Options {
	return Options{
		UITick:               500 * time.Millisecond,
		UITickLowPerformance: 1500 * time.Millisecond,
		PartyTick:            2 * time.Second,
		SaveTimeout:          30 * time.Second,
	}
}

func (o Options) uiTick() time.Duration {
	if o.LowPerformance {
		return o.UITickLowPerformance
	}
	return o.UITick
}

// Flags are the UI-thread-writable control flags the loop consumes on
// every iteration. All access is atomic; no other synchronization
// protects them, matching the concurrency model's single shared-state
// primitive list.
type Flags struct {
	reset          atomic.Bool
	pause          atomic.Bool
	save           atomic.Bool
	bossOnlyDamage atomic.Bool
	emitDetails    atomic.Bool
}

// RequestReset asks the loop to soft-reset (keeping bosses) on its next
// iteration.
func (f *Flags) RequestReset() { f.reset.Store(true) }

// RequestSave asks the loop to force-persist the current encounter on
// its next iteration, regardless of the normal save-eligibility check.
func (f *Flags) RequestSave() { f.save.Store(true) }

// SetPaused toggles whether incoming packets are dispatched at all.
func (f *Flags) SetPaused(v bool) { f.pause.Store(v) }

// Paused reports the current pause state.
func (f *Flags) Paused() bool { return f.pause.Load() }

// SetBossOnlyDamage toggles the damage filter that drops hits unless the
// target is a boss, or the target is a player and the source is a boss.
func (f *Flags) SetBossOnlyDamage(v bool) { f.bossOnlyDamage.Store(v) }

// SetEmitDetails toggles whether per-hit detail events accompany the
// coarser snapshot/phase events. Read by callers that build those
// payloads; the orchestrator itself only threads the value through.
func (f *Flags) SetEmitDetails(v bool) { f.emitDetails.Store(v) }

// EmitDetails reports the current detail-emission setting.
func (f *Flags) EmitDetails() bool { return f.emitDetails.Load() }

// Orchestrator drives trackers, encounter state, and the dispatcher from
// a single goroutine. Construct one per live capture session.
type Orchestrator struct {
	trackers   dispatch.Trackers
	state      *encounter.State
	dispatcher *dispatch.Dispatcher
	source     capture.Source
	emitter    encounter.Emitter
	flags      *Flags
	opts       Options
	log        *slog.Logger

	lastPartyComposition [][]string
}

// New builds an Orchestrator. flags may be shared with the UI thread
// that toggles them; a nil flags gets a private, always-default set.
func New(trackers dispatch.Trackers, state *encounter.State, dispatcher *dispatch.Dispatcher, source capture.Source, emitter encounter.Emitter, flags *Flags, opts Options) *Orchestrator {
	if flags == nil {
		flags = &Flags{}
	}
	return &Orchestrator{
		trackers:   trackers,
		state:      state,
		dispatcher: dispatcher,
		source:     source,
		emitter:    emitter,
		flags:      flags,
		opts:       opts,
		log:        slog.Default(),
	}
}

// Flags returns the control-flag block this orchestrator reads from, so
// a UI layer can be handed the same pointer passed to New (or the one
// New allocated when none was supplied).
func (o *Orchestrator) Flags() *Flags { return o.flags }

// Run blocks until ctx is canceled or the capture source closes its
// channel, honoring control flags, dispatching packets, and throttling
// UI/party ticks. Returns ctx.Err() on cancellation, nil on a clean
// channel close.
func (o *Orchestrator) Run(ctx context.Context) error {
	packets := o.source.Packets()

	uiTicker := time.NewTicker(o.opts.uiTick())
	defer uiTicker.Stop()
	partyTicker := time.NewTicker(o.opts.PartyTick)
	defer partyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case pkt, ok := <-packets:
			if !ok {
				o.log.Info("capture source closed, orchestrator loop ending")
				return nil
			}
			o.handlePacket(ctx, pkt, time.Now())

		case <-uiTicker.C:
			o.emitSnapshot()

		case <-partyTicker.C:
			o.refreshPartyComposition()
		}
	}
}

// handlePacket applies pending control flags in their documented order,
// then dispatches the packet unless paused, then reacts to whatever
// state change the dispatch produced.
func (o *Orchestrator) handlePacket(ctx context.Context, pkt capture.Packet, now time.Time) {
	o.applyControlFlags(ctx)

	if o.flags.Paused() {
		return
	}

	o.state.BossOnlyDamage = o.flags.bossOnlyDamage.Load()
	o.dispatcher.Dispatch(ctx, pkt, now)

	if dispatch.OpCode(pkt.OpCode) == dispatch.OpInitEnv {
		// Zone transition: entitytracker.InitEnv has already cleared the
		// id and party maps during Dispatch; they are cleared again here,
		// so both maps start the new zone empty.
		o.trackers.IDs.Reset()
		o.trackers.Parties.ResetPartyMappings()
	}

	if o.state.Resetting {
		o.onResetting()
	}
	if o.state.BossDeadUpdate || o.state.Resetting {
		o.emitSnapshot()
	}
}

// applyControlFlags consumes the reset and save flags in order; pause
// and boss-only-damage are level-triggered and read directly where they
// apply instead of being consumed here.
func (o *Orchestrator) applyControlFlags(ctx context.Context) {
	if o.flags.reset.CompareAndSwap(true, false) {
		o.state.SoftReset(true)
		if err := o.emitter.Emit("reset-encounter", nil); err != nil {
			o.log.Warn("emitting reset-encounter", "err", err)
		}
	}

	if o.flags.save.CompareAndSwap(true, false) {
		o.forceSave(ctx)
		if err := o.emitter.Emit("save-encounter", nil); err != nil {
			o.log.Warn("emitting save-encounter", "err", err)
		}
	}
}

// forceSave prepares a save regardless of the normal eligibility check,
// marks the encounter resetting, and ships the prepared row to a
// detached goroutine — persistence never blocks the loop thread.
func (o *Orchestrator) forceSave(ctx context.Context) {
	row, ok := o.state.PrepareSave(true)
	if !ok {
		o.log.Debug("manual save requested but nothing to persist")
		return
	}
	o.state.Saved = true
	o.state.Resetting = true

	go o.persistAsync(row)
}

// persistAsync runs the blocking DB write off the loop thread over an
// owned snapshot. No reference back into the loop's live state exists
// once the goroutine starts.
func (o *Orchestrator) persistAsync(row *encounter.PersistedEncounter) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), o.saveTimeout())
	defer cancel()

	_, err := o.state.CommitSave(ctx, row)
	metrics.SaveLatencySeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EncountersSaved.WithLabelValues("error").Inc()
		o.log.Error("persisting encounter", "err", err)
		return
	}
	metrics.EncountersSaved.WithLabelValues("ok").Inc()
}

func (o *Orchestrator) saveTimeout() time.Duration {
	if o.opts.SaveTimeout > 0 {
		return o.opts.SaveTimeout
	}
	return 30 * time.Second
}

// onResetting soft-resets keeping bosses, clears the saved flag and the
// party-composition cache, and clears the resetting flag itself so the
// next tick doesn't immediately re-fire.
func (o *Orchestrator) onResetting() {
	o.state.SoftReset(true)
	o.state.Saved = false
	o.state.Resetting = false
	o.lastPartyComposition = nil
}

// emitSnapshot clones the encounter, filters out entities that never
// dealt or took damage, and pushes it to the UI emitter.
func (o *Orchestrator) emitSnapshot() {
	snap := o.state.Snapshot()
	for name, e := range snap.Encounter.Entities {
		if !e.IsCombatParticipant() {
			delete(snap.Encounter.Entities, name)
		}
	}

	metrics.ActiveEntities.Set(float64(len(snap.Encounter.Entities)))
	metrics.SnapshotsPushed.Inc()

	if err := o.emitter.Emit("encounter-update", snap); err != nil {
		o.log.Warn("emitting encounter-update", "err", err)
	}
}

// refreshPartyComposition pulls the current composition from the party
// tracker and, if it changed since the last tick, caches it, mirrors it
// onto the encounter state (so persisted rows carry it too), and emits
// a party-update event.
func (o *Orchestrator) refreshPartyComposition() {
	composition := o.trackers.Parties.GetPartyComposition()
	if compositionEqual(composition, o.lastPartyComposition) {
		return
	}
	o.lastPartyComposition = composition
	o.state.PartyInfo = composition

	if err := o.emitter.Emit("party-update", composition); err != nil {
		o.log.Warn("emitting party-update", "err", err)
	}
}

func compositionEqual(a, b [][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}
