package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/skirmishmeter/meter/internal/aggregator/encounter"
	"github.com/skirmishmeter/meter/internal/aggregator/entitytracker"
	"github.com/skirmishmeter/meter/internal/aggregator/idtracker"
	"github.com/skirmishmeter/meter/internal/aggregator/partytracker"
	"github.com/skirmishmeter/meter/internal/aggregator/statustracker"
	"github.com/skirmishmeter/meter/internal/capture"
	"github.com/skirmishmeter/meter/internal/decrypt"
	"github.com/skirmishmeter/meter/internal/metrics"
	"github.com/skirmishmeter/meter/internal/packet"
)

// Trackers bundles the tracker handles a Dispatcher drives. Every
// tracker is owned by the orchestrator's event loop and shared by
// reference here and with entitytracker, which wraps id/party/status
// for the operations that bridge them — matching the "no tracker owns
// another" rule.
type Trackers struct {
	Entities *entitytracker.Tracker
	Statuses *statustracker.Tracker
	IDs      *idtracker.Tracker
	Parties  *partytracker.Tracker
}

// ParserOptions are the runtime-tunable knobs the dispatcher consults
// while decoding and routing packets.
type ParserOptions struct {
	MinBossHP                  int64
	CaptureDamagePacketTimeout time.Duration

	// LocalPlayers is the character_id -> name/count cache loaded from
	// local_players.json; PartyInfo consults it to recognize the local
	// player across a reconnect. Nil is a valid, empty cache.
	LocalPlayers entitytracker.LocalPlayers
}

// trial and challenge raid ids are specific RaidBegin payload values
// mapped to a difficulty string/id pair; anything else clears both.
var trialRaidIDs = map[uint32]bool{
	308226: true,
	308227: true,
	308239: true,
	308339: true,
}

var challengeRaidIDs = map[uint32]bool{
	309402: true,
	309403: true,
	309404: true,
	309405: true,
	309406: true,
	309418: true,
	309419: true,
}

// Dispatcher decodes a capture.Packet's payload by op-code and routes
// it to trackers, then the encounter state mutator, then whatever
// UI-emission side effect that mutator triggers. Single-owner: driven
// only by the orchestrator's event loop, no internal locking.
type Dispatcher struct {
	trackers  Trackers
	state     *encounter.State
	decryptor decrypt.Decryptor
	opts      ParserOptions
	log       *slog.Logger

	raidEndAt time.Time
}

// New builds a Dispatcher wired to its trackers, the encounter state it
// mutates, and the decryption handler damage events are routed through.
func New(trackers Trackers, state *encounter.State, decryptor decrypt.Decryptor, opts ParserOptions) *Dispatcher {
	return &Dispatcher{
		trackers:  trackers,
		state:     state,
		decryptor: decryptor,
		opts:      opts,
		log:       slog.Default(),
	}
}

// Dispatch decodes and routes one capture packet. now is the wall
// clock supplied by the caller so timestamps stay deterministic in
// tests and consistent under replay. An unknown op-code is silently
// ignored; a malformed payload is logged and dropped — the loop never
// panics on either.
func (d *Dispatcher) Dispatch(ctx context.Context, pkt capture.Packet, now time.Time) {
	metrics.PacketsProcessed.Inc()
	ts := now.UnixMilli()
	r := packet.NewReader(pkt.Payload)

	switch OpCode(pkt.OpCode) {
	case OpInitEnv:
		p, err := decodeInitEnv(r)
		if d.dropOnDecodeError(err, "InitEnv") {
			return
		}
		d.trackers.Entities.InitEnv(idtracker.EntityID(p.LocalPlayerID))
		local := d.trackers.Entities.GetOrCreateEntity(idtracker.EntityID(p.LocalPlayerID))
		d.state.OnInitEnv(ctx, local)

	case OpInitPC:
		p, err := decodePC(r)
		if d.dropOnDecodeError(err, "InitPC") {
			return
		}
		e := d.trackers.Entities.InitPC(idtracker.EntityID(p.ID), p.Name, idtracker.CharacterID(p.CharacterID), p.ClassID, float64(p.GearLevel), p.CurrentHP, p.MaxHP)
		d.state.OnInitPC(e)

	case OpNewPC:
		p, err := decodePC(r)
		if d.dropOnDecodeError(err, "NewPC") {
			return
		}
		e := d.trackers.Entities.NewPC(idtracker.EntityID(p.ID), p.Name, idtracker.CharacterID(p.CharacterID), p.ClassID, float64(p.GearLevel), p.CurrentHP, p.MaxHP)
		d.state.OnNewPC(e)

	case OpNewNpc:
		p, err := decodeNPC(r)
		if d.dropOnDecodeError(err, "NewNpc") {
			return
		}
		e := d.trackers.Entities.NewNPC(idtracker.EntityID(p.ObjectID), p.NpcID, p.MaxHP, p.CurrentHP, d.opts.MinBossHP, p.Level)
		d.state.OnNewNPC(e)

	case OpNewNpcSummon:
		p, err := decodeNPCSummon(r)
		if d.dropOnDecodeError(err, "NewNpcSummon") {
			return
		}
		e := d.trackers.Entities.NewNPCSummon(idtracker.EntityID(p.ObjectID), p.NpcID, idtracker.EntityID(p.OwnerID), p.MaxHP, p.CurrentHP, d.opts.MinBossHP)
		d.state.OnNewNPC(e)

	case OpNewProjectile:
		p, err := decodeSpawn(r)
		if d.dropOnDecodeError(err, "NewProjectile") {
			return
		}
		id, owner := idtracker.EntityID(p.ObjectID), idtracker.EntityID(p.OwnerID)
		d.trackers.Entities.NewProjectile(id, owner, p.SkillID, p.SkillEffectID)
		if p.SkillID > 0 && d.trackers.Entities.IDIsPlayer(owner) {
			d.state.Skills.CorrelateProjectile(id, owner, p.SkillID)
		}

	case OpNewTrap:
		p, err := decodeSpawn(r)
		if d.dropOnDecodeError(err, "NewTrap") {
			return
		}
		id, owner := idtracker.EntityID(p.ObjectID), idtracker.EntityID(p.OwnerID)
		d.trackers.Entities.NewTrap(id, owner, p.SkillID, p.SkillEffectID)
		if p.SkillID > 0 && d.trackers.Entities.IDIsPlayer(owner) {
			d.state.Skills.CorrelateProjectile(id, owner, p.SkillID)
		}

	case OpRemoveObject:
		p, err := decodeRemoveObject(r)
		if d.dropOnDecodeError(err, "RemoveObject") {
			return
		}
		for _, id := range p.ObjectIDs {
			d.trackers.Entities.Remove(idtracker.EntityID(id))
		}

	case OpZoneObjectUnpublishNotify:
		p, err := decodeZoneUnpublish(r)
		if d.dropOnDecodeError(err, "ZoneObjectUnpublishNotify") {
			return
		}
		d.trackers.Entities.Remove(idtracker.EntityID(p.ObjectID))

	case OpSkillCastNotify:
		p, err := decodeSkillCast(r)
		if d.dropOnDecodeError(err, "SkillCastNotify") {
			return
		}
		sourceID := idtracker.EntityID(p.SourceID)
		if entity, ok := d.trackers.Entities.GetSourceEntity(sourceID); ok && entity.ClassID == 202 {
			d.state.OnSkillStart(sourceID, p.SkillID, [3]uint8{}, [3]uint8{}, ts)
		}

	case OpSkillStartNotify:
		p, err := decodeSkillStart(r)
		if d.dropOnDecodeError(err, "SkillStartNotify") {
			return
		}
		d.state.OnSkillStart(idtracker.EntityID(p.SourceID), p.SkillID, p.TripodIndex, p.TripodLevel, ts)

	case OpSkillDamageNotify, OpSkillDamageAbnormalMoveNotify:
		if d.cooldownActive(now) {
			metrics.PacketsDropped.WithLabelValues("raid_end_cooldown").Inc()
			return
		}
		p, err := decodeSkillDamage(r)
		if d.dropOnDecodeError(err, "SkillDamageNotify") {
			return
		}
		d.handleSkillDamage(p, ts)

	case OpPartyInfo:
		p, err := decodePartyInfo(r)
		if d.dropOnDecodeError(err, "PartyInfo") {
			return
		}
		members := make([]entitytracker.PartyMember, len(p.Members))
		for i, m := range p.Members {
			members[i] = entitytracker.PartyMember{CharacterID: idtracker.CharacterID(m.CharacterID), Name: m.Name}
		}
		d.trackers.Entities.PartyInfo(partytracker.RaidInstanceID(p.RaidInstanceID), partytracker.PartyInstanceID(p.PartyInstanceID), members, d.opts.LocalPlayers)
		if local, ok := d.trackers.Entities.GetSourceEntity(d.trackers.Entities.LocalEntityID()); ok {
			d.state.UpdateLocalPlayer(local)
		}
		d.state.PartyInfo = nil

	case OpPartyStatusEffectAddNotify:
		p, err := decodeStatusEffectAdd(r)
		if d.dropOnDecodeError(err, "PartyStatusEffectAddNotify") {
			return
		}
		d.handlePartyStatusEffectAdd(p)

	case OpPartyStatusEffectRemoveNotify:
		p, err := decodeStatusEffectRemove(r)
		if d.dropOnDecodeError(err, "PartyStatusEffectRemoveNotify") {
			return
		}
		d.trackers.Entities.PartyStatusEffectRemove(idtracker.EntityID(p.TargetID), p.InstanceIDs)

	case OpStatusEffectAddNotify:
		p, err := decodeStatusEffectAdd(r)
		if d.dropOnDecodeError(err, "StatusEffectAddNotify") {
			return
		}
		effect := statustracker.Effect{
			StatusEffectID: p.StatusEffectID,
			InstanceID:     p.InstanceID,
			CustomID:       p.CustomID,
			SourceID:       idtracker.EntityID(p.SourceID),
			TargetID:       idtracker.EntityID(p.TargetID),
			TargetScope:    statustracker.ScopeLocal,
			Value:          p.Value,
			ExpirationTime: p.ExpirationTime,
		}
		if p.CustomID != 0 {
			d.state.RegisterCustomID(p.CustomID, p.StatusEffectID)
		}
		d.trackers.Statuses.RegisterStatusEffect(statustracker.ScopeLocal, effect)

	case OpStatusEffectRemoveNotify:
		p, err := decodeStatusEffectRemove(r)
		if d.dropOnDecodeError(err, "StatusEffectRemoveNotify") {
			return
		}
		d.trackers.Statuses.RemoveStatusEffects(statustracker.ScopeLocal, idtracker.EntityID(p.TargetID), p.InstanceIDs, "local")

	case OpStatusEffectSyncDataNotify:
		p, err := decodeStatusEffectSync(r)
		if d.dropOnDecodeError(err, "StatusEffectSyncDataNotify") {
			return
		}
		d.syncShield(statustracker.ScopeLocal, idtracker.EntityID(p.TargetID), p.InstanceID, p.Value)

	case OpTroopMemberUpdateMinNotify:
		p, err := decodeTroopMemberUpdateMin(r)
		if d.dropOnDecodeError(err, "TroopMemberUpdateMinNotify") {
			return
		}
		entityID, ok := d.trackers.IDs.GetEntityID(idtracker.CharacterID(p.CharacterID))
		if !ok {
			return
		}
		d.syncShield(statustracker.ScopeParty, entityID, p.InstanceID, p.Value)

	case OpCounterAttackNotify:
		p, err := decodeID(r)
		if d.dropOnDecodeError(err, "CounterAttackNotify") {
			return
		}
		d.state.OnCounterattack(idtracker.EntityID(p.ID))

	case OpDeathNotify:
		p, err := decodeID(r)
		if d.dropOnDecodeError(err, "DeathNotify") {
			return
		}
		id := idtracker.EntityID(p.ID)
		entity, ok := d.trackers.Entities.GetSourceEntity(id)
		if !ok {
			return
		}
		d.state.OnDeath(id, entity.EntityType, entity.NpcID, ts)

	case OpTriggerBossBattleStatus:
		if d.state.Encounter.CurrentBossName == "" || d.state.Encounter.FightStart == 0 {
			d.state.OnPhaseTransition(ctx, 3)
		}

	case OpTriggerStartNotify:
		p, err := decodeTriggerStart(r)
		if d.dropOnDecodeError(err, "TriggerStartNotify") {
			return
		}
		d.handleTriggerStart(ctx, p.Signal, now)

	case OpRaidBegin:
		p, err := decodeRaidBegin(r)
		if d.dropOnDecodeError(err, "RaidBegin") {
			return
		}
		switch {
		case trialRaidIDs[p.RaidID]:
			d.state.RaidDifficulty, d.state.RaidDifficultyID = "Trial", 7
		case challengeRaidIDs[p.RaidID]:
			d.state.RaidDifficulty, d.state.RaidDifficultyID = "Challenge", 8
		default:
			d.state.RaidDifficulty, d.state.RaidDifficultyID = "", 0
		}

	case OpRaidBossKillNotify:
		d.state.RaidClear = true
		d.state.OnPhaseTransition(ctx, 1)
		// A boss kill ends the encounter as a clear: persist it here
		// rather than waiting for a later terminal phase code.
		if d.state.Encounter.CurrentBossName != "" && !d.state.Saved {
			if row, ok := d.state.PrepareSave(false); ok {
				if _, err := d.state.CommitSave(ctx, row); err == nil {
					d.state.Saved = true
				}
			}
			d.state.Resetting = true
		}

	case OpRaidResult:
		d.state.OnPhaseTransition(ctx, 0)
		d.raidEndAt = now

	case OpIdentityGaugeChangeNotify:
		p, err := decodeIdentityGauge(r)
		if d.dropOnDecodeError(err, "IdentityGaugeChangeNotify") {
			return
		}
		d.state.OnIdentityGain(idtracker.EntityID(p.PlayerID), now.UnixMilli(), p.Gauge1, p.Gauge2, p.Gauge3)

	case OpNewTransit:
		p, err := decodeNewTransit(r)
		if d.dropOnDecodeError(err, "NewTransit") {
			return
		}
		if rotator, ok := d.decryptor.(decrypt.ZoneRotator); ok {
			rotator.UpdateZoneInstanceID(p.ChannelID)
		}

	case OpZoneMemberLoadStatusNotify:
		p, err := decodeZoneMemberLoadStatus(r)
		if d.dropOnDecodeError(err, "ZoneMemberLoadStatusNotify") {
			return
		}
		if d.state.RaidDifficultyID >= p.ZoneID && d.state.RaidDifficulty != "" {
			return
		}
		d.state.SetRaidDifficulty(p.ZoneLevel)

	default:
		metrics.PacketsDropped.WithLabelValues("unknown_opcode").Inc()
	}
}

func (d *Dispatcher) dropOnDecodeError(err error, opName string) bool {
	if err == nil {
		return false
	}
	d.log.Debug("dispatch: dropping malformed packet", "op", opName, "error", err)
	metrics.PacketsDropped.WithLabelValues("decode_failure").Inc()
	return true
}

func (d *Dispatcher) cooldownActive(now time.Time) bool {
	return !d.raidEndAt.IsZero() && now.Sub(d.raidEndAt) < d.opts.CaptureDamagePacketTimeout
}

func (d *Dispatcher) handleTriggerStart(ctx context.Context, signal int32, now time.Time) {
	switch signal {
	case 57, 59, 61, 63, 74, 76:
		d.state.PartyInfo = d.trackers.Parties.GetPartyComposition()
		d.state.RaidClear = true
		d.state.OnPhaseTransition(ctx, 2)
		d.raidEndAt = now
	case 58, 60, 62, 64, 75, 77:
		d.state.PartyInfo = d.trackers.Parties.GetPartyComposition()
		d.state.RaidClear = false
		d.state.OnPhaseTransition(ctx, 4)
		d.raidEndAt = now
	case 27, 10, 11:
		// observed as pure heartbeat/no-op signals; nothing to update.
	default:
		// unrecognized signal: ignored, matching the unknown-opcode policy.
	}
}

func (d *Dispatcher) handlePartyStatusEffectAdd(p statusEffectAddPacket) {
	resolvedID := p.StatusEffectID
	if p.CustomID != 0 {
		d.state.RegisterCustomID(p.CustomID, p.StatusEffectID)
	}

	effect := statustracker.Effect{
		StatusEffectID: p.StatusEffectID,
		InstanceID:     p.InstanceID,
		CustomID:       p.CustomID,
		SourceID:       idtracker.EntityID(p.SourceID),
		TargetID:       idtracker.EntityID(p.TargetID),
		TargetScope:    statustracker.ScopeParty,
		Value:          p.Value,
		ExpirationTime: p.ExpirationTime,
	}
	d.trackers.Entities.PartyStatusEffectAdd(effect)

	targetName := d.nameOf(idtracker.EntityID(p.TargetID))
	sourceName := d.nameOf(idtracker.EntityID(p.SourceID))

	if targetName != "" && targetName == d.state.Encounter.CurrentBossName {
		d.state.OnBossShield(targetName, p.Value)
	}
	if sourceName != "" && targetName != "" {
		d.state.OnShieldApplied(sourceName, targetName, resolvedID, p.Value)
	}
}

// syncShield updates a tracked effect's value and, when it is a shield
// that lost value (absorbed damage rather than expiring unconsumed),
// credits the consumed amount through OnShieldUsed.
func (d *Dispatcher) syncShield(scope statustracker.Scope, targetID idtracker.EntityID, instanceID uint32, newValue int64) {
	eff, oldValue, ok := d.trackers.Statuses.SyncStatusEffect(scope, instanceID, targetID, newValue)
	if !ok || eff.Type != statustracker.EffectShield {
		return
	}
	change := oldValue - newValue
	if change <= 0 {
		return
	}
	srcName, tgtName := d.nameOf(eff.SourceID), d.nameOf(targetID)
	if srcName == "" || tgtName == "" {
		return
	}
	d.state.OnShieldUsed(srcName, tgtName, eff.StatusEffectID, change)
}

func (d *Dispatcher) handleSkillDamage(p skillDamagePacket, ts int64) {
	sourceID := idtracker.EntityID(p.SourceID)
	raw := d.trackers.Entities.GetOrCreateEntity(sourceID)
	d.trackers.Entities.GuessIsPlayer(raw, p.SkillID)

	owner := raw
	if owner.EntityType == entitytracker.Projectile || owner.EntityType == entitytracker.Summon {
		if resolved, ok := d.trackers.Entities.GetSourceEntity(owner.OwnerID); ok {
			owner = resolved
		}
	}

	skillID := p.SkillID
	var skillEffectID *uint32
	if p.SkillEffectID != 0 {
		id := p.SkillEffectID
		skillEffectID = &id
	}

	for _, evt := range p.Events {
		de := decrypt.DamageEvent{
			SourceID:  uint64(sourceID),
			TargetID:  evt.TargetID,
			SkillID:   skillID,
			Damage:    evt.Damage,
			Modifier:  evt.Modifier,
			CurrentHP: evt.CurrentHP,
			MaxHP:     evt.MaxHP,
		}
		if !d.decryptor.Decrypt(&de) {
			d.state.DamageIsValid = false
			metrics.PacketsDropped.WithLabelValues("decryption_failure").Inc()
			continue
		}

		targetID := idtracker.EntityID(de.TargetID)
		target := d.trackers.Entities.GetOrCreateEntity(targetID)

		seOnSource, seOnTarget := d.trackers.Statuses.GetStatusEffects(owner.ID, target.ID)

		var skillIDPtr *uint32
		if skillID != 0 {
			skillIDPtr = &skillID
		}

		d.state.OnDamage(owner, target, raw, skillIDPtr, skillEffectID, de.Damage, de.Modifier, de.CurrentHP, de.MaxHP, seOnSource, seOnTarget, ts)
	}
}

func (d *Dispatcher) nameOf(id idtracker.EntityID) string {
	return d.state.NameOf(id)
}
