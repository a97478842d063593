package encounter

import (
	"context"
	"fmt"

	"github.com/skirmishmeter/meter/internal/aggregator/entitytracker"
	"github.com/skirmishmeter/meter/internal/aggregator/idtracker"
	"github.com/skirmishmeter/meter/internal/aggregator/skilltracker"
	"github.com/skirmishmeter/meter/internal/aggregator/statictable"
)

// Emitter pushes a named, JSON-serializable event out to the local UI.
// Matches internal/events.Emitter's method set; defined locally so this
// package never imports the events package's transports.
type Emitter interface {
	Emit(event string, payload any) error
}

// Persister writes a completed encounter to the embedded database.
// Matches internal/persistence.Persister's method set; defined locally
// to avoid importing that package (which itself imports this one for
// PersistedEncounter).
type Persister interface {
	Save(ctx context.Context, row PersistedEncounter) (int64, error)
}

// StatsClient is the out-of-scope remote inspect/raid-telemetry
// collaborator, referenced only at this interface. Matches
// internal/statsapi.Client's method set.
type StatsClient interface {
	SendRaidInfo(ctx context.Context, snapshot Snapshot) error
	GetCharacterInfo(ctx context.Context, boss string, players []string, region string) (map[string]any, bool)
}

// TimeSync is the best-effort NTP-style clock used to correct
// fight_start at first damage. A fake clock satisfies this in tests;
// no real network call is required by the core.
type TimeSync interface {
	SyncMs() (int64, bool)
}

var raidDifficulties = map[uint32]string{
	0: "Normal",
	1: "Hard",
	2: "Inferno",
	3: "Challenge",
	4: "Solo",
	5: "The First",
}

// State is the aggregate EncounterState: the single mutable model the
// dispatcher drives and the orchestrator snapshots/persists.
// Single-owner; no internal locking — the event loop is its only mutator.
type State struct {
	Encounter        Encounter
	Resetting        bool
	BossDeadUpdate   bool
	Saved            bool
	RaidClear        bool
	PartyInfo        [][]string
	RaidDifficulty   string
	RaidDifficultyID uint32
	BossOnlyDamage   bool
	Region           string
	RDPSValid        bool
	DamageIsValid    bool

	Skills *skilltracker.Tracker

	statics   *statictable.Tables
	persister Persister
	emitter   Emitter
	stats     StatsClient
	timeSync  TimeSync
	version   string

	idToName      map[idtracker.EntityID]string
	damageLog     map[string][][2]int64
	identityLog   map[string][]IdentityLogEntry
	castLog       map[string]map[uint32][]int64
	bossHPLog     map[string][]BossHPLogEntry
	customIDMap   map[uint32]uint32
	ntpFightStart int64
}

// New creates an empty encounter state wired to its out-of-scope
// collaborators through their narrow interfaces.
func New(statics *statictable.Tables, persister Persister, emitter Emitter, stats StatsClient, timeSync TimeSync, version string) *State {
	s := &State{
		Encounter: newEncounter(),
		RDPSValid: false, // always false: no rDPS accounting exists yet.
		Skills:    skilltracker.New(),
		statics:   statics,
		persister: persister,
		emitter:   emitter,
		stats:     stats,
		timeSync:  timeSync,
		version:   version,
	}
	s.resetAuxState()
	return s
}

func (s *State) resetAuxState() {
	s.idToName = map[idtracker.EntityID]string{}
	s.damageLog = map[string][][2]int64{}
	s.identityLog = map[string][]IdentityLogEntry{}
	s.castLog = map[string]map[uint32][]int64{}
	s.bossHPLog = map[string][]BossHPLogEntry{}
	s.customIDMap = map[uint32]uint32{}
}

// NameOf resolves the display name currently bound to an entity id, the
// same lookup UpdateLocalPlayer/onUpsertPlayer/applyIdentitySnapshot
// keep in sync; used by the dispatcher to turn wire-level ids back into
// the names shield/damage accounting is keyed by.
func (s *State) NameOf(id idtracker.EntityID) string {
	return s.idToName[id]
}

// RegisterCustomID records the custom_id -> status_effect_id remap so
// buff accounting can recover the original template id while still
// distinguishing distinct applications of the same buff for attribution.
func (s *State) RegisterCustomID(customID, statusEffectID uint32) {
	if customID == 0 {
		return
	}
	s.customIDMap[customID] = statusEffectID
}

// resolveBuffID follows the custom_id remap, if any, to the original
// status_effect_id used to look up the static buff template.
func (s *State) resolveBuffID(id uint32) uint32 {
	if remapped, ok := s.customIDMap[id]; ok {
		return remapped
	}
	return id
}

// SoftReset preserves EncounterEntity records whose type is Player (and
// Boss if keepBosses), clears all stats, logs, and fight_start. Used on
// zone change and after a save.
func (s *State) SoftReset(keepBosses bool) {
	kept := map[string]*EncounterEntity{}
	for name, e := range s.Encounter.Entities {
		if e.EntityType == entitytracker.Player || (keepBosses && e.EntityType == entitytracker.Boss) {
			fresh := newEncounterEntity(name)
			fresh.ID = e.ID
			fresh.CharacterID = e.CharacterID
			fresh.EntityType = e.EntityType
			fresh.ClassID = e.ClassID
			fresh.NpcID = e.NpcID
			fresh.GearLevel = e.GearLevel
			fresh.CurrentHP = e.CurrentHP
			fresh.MaxHP = e.MaxHP
			kept[name] = fresh
		}
	}

	bossOnly := s.Encounter.BossOnlyDamage
	s.Encounter = newEncounter()
	s.Encounter.Entities = kept
	s.Encounter.BossOnlyDamage = bossOnly

	s.Skills = skilltracker.New()
	s.resetAuxState()
	s.BossDeadUpdate = false
}

// SetRaidDifficulty maps the zone-level enumeration to a difficulty
// string; values outside {0..5} are ignored.
func (s *State) SetRaidDifficulty(zoneLevel uint32) {
	name, ok := raidDifficulties[zoneLevel]
	if !ok {
		return
	}
	s.RaidDifficulty = name
	s.RaidDifficultyID = zoneLevel
}

func (s *State) applyIdentitySnapshot(ee *EncounterEntity, e *entitytracker.Entity) {
	ee.ID = e.ID
	ee.CharacterID = e.CharacterID
	ee.EntityType = e.EntityType
	ee.ClassID = e.ClassID
	ee.NpcID = e.NpcID
	ee.GearLevel = e.GearLevel
	ee.CurrentHP = e.CurrentHP
	ee.MaxHP = e.MaxHP
	s.idToName[e.ID] = ee.Name
}

// UpdateLocalPlayer replaces the local player entry keyed by name; if no
// entry with that name exists, locates it by id and renames in place.
func (s *State) UpdateLocalPlayer(e *entitytracker.Entity) {
	if existing, ok := s.Encounter.Entities[e.Name]; ok {
		s.applyIdentitySnapshot(existing, e)
		return
	}

	for oldName, existing := range s.Encounter.Entities {
		if existing.ID == e.ID {
			delete(s.Encounter.Entities, oldName)
			existing.Name = e.Name
			s.applyIdentitySnapshot(existing, e)
			s.Encounter.Entities[e.Name] = existing
			return
		}
	}

	fresh := newEncounterEntity(e.Name)
	s.applyIdentitySnapshot(fresh, e)
	s.Encounter.Entities[e.Name] = fresh
}

// OnInitEnv handles zone (re)entry: persists a prior unsaved boss
// encounter, replaces/inserts the local player, retains only the local
// player and entities that dealt damage, emits zone-change, and
// soft-resets.
func (s *State) OnInitEnv(ctx context.Context, local *entitytracker.Entity) {
	if s.Encounter.FightStart != 0 && !s.Saved && s.Encounter.CurrentBossName != "" {
		if row, ok := s.PrepareSave(false); ok {
			if _, err := s.CommitSave(ctx, row); err != nil {
				// logged by the caller's orchestrator; the encounter stays
				// in memory and is retried on the next terminal transition.
				_ = err
			}
		}
	}

	s.UpdateLocalPlayer(local)

	for name, e := range s.Encounter.Entities {
		if name == local.Name {
			continue
		}
		if e.DamageStats.DamageDealt == 0 {
			delete(s.Encounter.Entities, name)
		}
	}

	_ = s.emitter.Emit("zone-change", struct{}{})

	s.SoftReset(true)
}

// OnPhaseTransition handles a phase-transition signal. For codes
// {0,2,3,4}, if a boss is current it is persisted and marked saved, and
// the encounter is flagged resetting. A phase-transition event is always
// emitted with the numeric code.
func (s *State) OnPhaseTransition(ctx context.Context, code int) {
	defer func() { _ = s.emitter.Emit("phase-transition", code) }()

	switch code {
	case 0, 2, 3, 4:
		if s.Encounter.CurrentBossName == "" {
			return
		}
		if s.stats != nil {
			_ = s.stats.SendRaidInfo(ctx, s.snapshotLocked())
		}
		if row, ok := s.PrepareSave(false); ok {
			if _, err := s.CommitSave(ctx, row); err == nil {
				s.Saved = true
			}
		}
		s.Resetting = true
	}
}

// OnInitPC upserts the local player with current hp, gear level, and
// character id; an existing entry retains per-fight stats and only
// merges identifying fields.
func (s *State) OnInitPC(e *entitytracker.Entity) {
	s.onUpsertPlayer(e)
}

// OnNewPC upserts a remote player; identical merge rules to OnInitPC.
func (s *State) OnNewPC(e *entitytracker.Entity) {
	s.onUpsertPlayer(e)
}

func (s *State) onUpsertPlayer(e *entitytracker.Entity) {
	existing, ok := s.Encounter.Entities[e.Name]
	if !ok {
		for oldName, ee := range s.Encounter.Entities {
			if ee.ID == e.ID && ee.EntityType == entitytracker.Player {
				delete(s.Encounter.Entities, oldName)
				ee.Name = e.Name
				existing = ee
				ok = true
				break
			}
		}
	}

	if !ok {
		fresh := newEncounterEntity(e.Name)
		fresh.EntityType = entitytracker.Player
		s.applyIdentitySnapshot(fresh, e)
		s.Encounter.Entities[e.Name] = fresh
		return
	}

	existing.ID = e.ID
	existing.EntityType = entitytracker.Player
	existing.ClassID = e.ClassID
	if e.GearLevel > 0 {
		existing.GearLevel = e.GearLevel
	}
	if e.CharacterID != 0 {
		existing.CharacterID = e.CharacterID // never overwrite with zero
	}
	existing.CurrentHP = e.CurrentHP
	existing.MaxHP = e.MaxHP
	s.idToName[e.ID] = e.Name
}

// OnNewNPC inserts or promotes an NPC; when it is a boss, current_boss_name
// is set iff there is no current boss, the candidate's max hp is at
// least the current boss's, or the current boss is dead.
func (s *State) OnNewNPC(e *entitytracker.Entity) {
	existing, ok := s.Encounter.Entities[e.Name]
	if !ok {
		fresh := newEncounterEntity(e.Name)
		s.applyIdentitySnapshot(fresh, e)
		s.Encounter.Entities[e.Name] = fresh
		existing = fresh
	} else {
		s.applyIdentitySnapshot(existing, e)
	}

	if e.EntityType != entitytracker.Boss {
		return
	}

	current, hasCurrent := s.Encounter.Entities[s.Encounter.CurrentBossName]
	if s.Encounter.CurrentBossName == "" || !hasCurrent ||
		existing.MaxHP >= current.MaxHP || current.IsDead {
		s.Encounter.CurrentBossName = e.Name
	}
}

// OnDeath requires the dead entity to be a Player or Boss matching the
// stored id (bosses additionally matching npc_id). On boss death it sets
// BossDeadUpdate. Increments deaths, sets is_dead, zeroes current hp, and
// timestamps the death. A mismatched (zombie) id mutates nothing.
func (s *State) OnDeath(id idtracker.EntityID, entityType entitytracker.EntityType, npcID uint32, ts int64) {
	name, ok := s.idToName[id]
	if !ok {
		return
	}
	entity, ok := s.Encounter.Entities[name]
	if !ok || entity.ID != id {
		return
	}
	if entityType != entitytracker.Player && entityType != entitytracker.Boss {
		return
	}
	if entityType == entitytracker.Boss && entity.NpcID != npcID {
		return
	}

	if entityType == entitytracker.Boss && name == s.Encounter.CurrentBossName && !entity.IsDead {
		s.BossDeadUpdate = true
	}

	entity.DamageStats.Deaths++
	entity.IsDead = true
	entity.CurrentHP = 0
	entity.DamageStats.DeathTime = ts
}

// OnSkillStart requires fight_start != 0 (returns (0, nil) otherwise).
// Resolves the skill name via static data, groups ids sharing a name
// under the first-seen id, records tripod changes, and appends a
// relative timestamp to the cast log.
func (s *State) OnSkillStart(sourceID idtracker.EntityID, skillID uint32, tripodIndex, tripodLevel [3]uint8, ts int64) (uint32, []idtracker.EntityID) {
	if s.Encounter.FightStart == 0 {
		return 0, nil
	}

	name, ok := s.idToName[sourceID]
	if !ok {
		return 0, nil
	}
	entity, ok := s.Encounter.Entities[name]
	if !ok {
		return 0, nil
	}

	skillName := s.statics.SkillName(skillID)

	var target *Skill
	if sk, ok := entity.Skills[skillID]; ok {
		target = sk
	} else {
		for _, sk := range entity.Skills {
			if sk.Name == skillName {
				target = sk
				break
			}
		}
	}
	if target == nil {
		target = newSkill(skillID, skillName)
		entity.Skills[skillID] = target
	}

	if target.TripodIndex != tripodIndex || target.TripodLevel != tripodLevel {
		target.TripodIndex = tripodIndex
		target.TripodLevel = tripodLevel
	}

	target.Casts++
	entity.SkillStats.Casts++

	relative := ts - s.Encounter.FightStart
	if s.castLog[name] == nil {
		s.castLog[name] = map[uint32][]int64{}
	}
	s.castLog[name][target.ID] = append(s.castLog[name][target.ID], relative)

	s.Skills.NewCast(sourceID, target.ID, nil, ts)

	return target.ID, nil
}

// OnCounterattack increments the counter-attack count on source.
func (s *State) OnCounterattack(sourceID idtracker.EntityID) {
	name, ok := s.idToName[sourceID]
	if !ok {
		return
	}
	if entity, ok := s.Encounter.Entities[name]; ok {
		entity.SkillStats.Counters++
	}
}

// OnIdentityGain is a no-op before the fight has started; otherwise it
// appends a (wall_clock, gauges) sample to the local player's identity log.
func (s *State) OnIdentityGain(localID idtracker.EntityID, wallClockMs int64, g1, g2, g3 uint32) {
	if s.Encounter.FightStart == 0 {
		return
	}
	name, ok := s.idToName[localID]
	if !ok {
		return
	}
	s.identityLog[name] = append(s.identityLog[name], IdentityLogEntry{
		WallClockMs: wallClockMs,
		Gauge1:      g1,
		Gauge2:      g2,
		Gauge3:      g3,
	})
}

// OnBossShield sets current_shield on the named entity; a no-op if the
// entity is absent (entry.and_modify-only semantics).
func (s *State) OnBossShield(name string, shield int64) {
	if entity, ok := s.Encounter.Entities[name]; ok {
		entity.CurrentShield = shield
	}
}

// OnShieldApplied increments shields_given/received bilaterally
// (self-shield counts both sides once), records the buff template, and
// adds to total_shielding.
func (s *State) OnShieldApplied(srcName, tgtName string, buffID uint32, amount int64) {
	src, srcOK := s.Encounter.Entities[srcName]
	tgt, tgtOK := s.Encounter.Entities[tgtName]
	if !srcOK || !tgtOK {
		return
	}

	src.DamageStats.ShieldsGiven += amount
	tgt.DamageStats.ShieldsReceived += amount

	id := s.resolveBuffID(buffID)
	if _, ok := s.Encounter.EncounterDamageStats.AppliedShieldBuffs[id]; !ok {
		info := StatusEffectInfo{ID: id}
		if b, ok := s.statics.SkillBuffs[id]; ok {
			info.Name = b.Name
			info.Icon = b.Icon
		}
		s.Encounter.EncounterDamageStats.AppliedShieldBuffs[id] = info
	}
	s.Encounter.EncounterDamageStats.TotalShielding += amount
}

// OnShieldUsed mirrors OnShieldApplied for consumption: the target's
// damage_absorbed and the source's contribution both increase, and
// total_effective_shielding tracks the fight-wide sum.
func (s *State) OnShieldUsed(srcName, tgtName string, buffID uint32, removed int64) {
	src, srcOK := s.Encounter.Entities[srcName]
	tgt, tgtOK := s.Encounter.Entities[tgtName]
	if !srcOK || !tgtOK {
		return
	}

	tgt.DamageStats.DamageAbsorbed += removed
	src.DamageStats.AbsorbedByOthers += removed
	s.Encounter.EncounterDamageStats.TotalEffectiveShielding += removed
}

// snapshotLocked builds the Snapshot handed to the UI/stats-api
// collaborators. Named "Locked" to flag that it must only be called from
// the single owning loop thread, matching the concurrency model.
func (s *State) snapshotLocked() Snapshot {
	snap := Snapshot{
		Encounter:     cloneEncounter(s.Encounter),
		DamageIsValid: s.DamageIsValid,
		PartyInfo:     s.PartyInfo,
	}
	if s.Encounter.CurrentBossName != "" {
		if boss, ok := snap.Encounter.Entities[s.Encounter.CurrentBossName]; ok {
			snap.CurrentBoss = boss
		}
	}
	return snap
}

// Snapshot returns a UI-ready clone of the current encounter, attaching
// current_boss and marking it dead if a boss death was observed since
// the last soft reset. Matches the orchestrator's per-tick UI send path.
func (s *State) Snapshot() Snapshot {
	snap := s.snapshotLocked()
	if s.BossDeadUpdate && snap.CurrentBoss != nil {
		snap.CurrentBoss.IsDead = true
		snap.CurrentBoss.CurrentHP = 0
	}
	return snap
}

func cloneEncounter(e Encounter) Encounter {
	out := e
	out.Entities = make(map[string]*EncounterEntity, len(e.Entities))
	for name, entity := range e.Entities {
		clone := *entity
		clone.DamageStats.BuffedBy = cloneInt64Map(entity.DamageStats.BuffedBy)
		clone.DamageStats.DebuffedBy = cloneInt64Map(entity.DamageStats.DebuffedBy)
		clone.Skills = make(map[uint32]*Skill, len(entity.Skills))
		for id, sk := range entity.Skills {
			skClone := *sk
			skClone.BuffedBy = cloneInt64Map(sk.BuffedBy)
			skClone.DebuffedBy = cloneInt64Map(sk.DebuffedBy)
			skClone.HitLog = append([]skilltracker.SkillHit(nil), sk.HitLog...)
			clone.Skills[id] = &skClone
		}
		out.Entities[name] = &clone
	}
	return out
}

func cloneInt64Map(m map[uint32]int64) map[uint32]int64 {
	out := make(map[uint32]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PrepareSave performs the cheap, synchronous clone-and-precondition-check
// step that must run on the loop thread. The non-manual precondition is:
// fight_start != 0, a boss exists in entities, at least one player has
// non-zero stats, and the boss's current hp is below its max hp.
func (s *State) PrepareSave(manual bool) (*PersistedEncounter, bool) {
	if !manual && !s.saveEligible() {
		return nil, false
	}

	row := &PersistedEncounter{
		Encounter:        cloneEncounter(s.Encounter),
		DamageLog:        s.cloneDamageLog(),
		IdentityLog:      s.cloneIdentityLog(),
		CastLog:          s.cloneCastLog(),
		BossHPLog:        s.cloneBossHPLog(),
		PartyInfo:        s.PartyInfo,
		RaidDifficulty:   s.RaidDifficulty,
		RaidDifficultyID: s.RaidDifficultyID,
		Region:           s.Region,
		Version:          s.version,
		NTPFightStart:    s.ntpFightStart,
		RDPSValid:        false,
		RaidClear:        s.RaidClear,
		DamageIsValid:    s.DamageIsValid,
		Manual:           manual,
	}
	return row, true
}

func (s *State) saveEligible() bool {
	if s.Encounter.FightStart == 0 {
		return false
	}
	boss, ok := s.Encounter.Entities[s.Encounter.CurrentBossName]
	if !ok || s.Encounter.CurrentBossName == "" {
		return false
	}
	anyPlayerDealt := false
	for _, e := range s.Encounter.Entities {
		if e.EntityType == entitytracker.Player && (e.DamageStats.DamageDealt > 0 || e.SkillStats.Hits > 0) {
			anyPlayerDealt = true
			break
		}
	}
	if !anyPlayerDealt {
		return false
	}
	return boss.CurrentHP != boss.MaxHP
}

// CommitSave hands a prepared row to the persister and, on success,
// emits clear-encounter when the fight ended in a clear. The orchestrator's
// manual save calls it from a background goroutine; OnInitEnv,
// OnPhaseTransition and the dispatcher's boss-kill handling call it
// synchronously on the loop thread.
func (s *State) CommitSave(ctx context.Context, row *PersistedEncounter) (int64, error) {
	if row == nil {
		return 0, fmt.Errorf("encounter: CommitSave: nil row")
	}

	if s.stats != nil && row.RaidClear && !row.Manual && isInspectEligible(row.RaidDifficulty) {
		if infos, ok := s.stats.GetCharacterInfo(ctx, s.Encounter.CurrentBossName, playerNames(row.Encounter), row.Region); ok {
			row.PlayerInfos = infos
		}
	}

	id, err := s.persister.Save(ctx, *row)
	if err != nil {
		return 0, fmt.Errorf("encounter: save encounter: %w", err)
	}

	if row.RaidClear {
		_ = s.emitter.Emit("clear-encounter", id)
	}
	return id, nil
}

func isInspectEligible(difficulty string) bool {
	switch difficulty {
	case "Normal", "Hard", "The First", "Trial":
		return true
	default:
		return false
	}
}

func playerNames(e Encounter) []string {
	var names []string
	for name, entity := range e.Entities {
		if entity.EntityType == entitytracker.Player {
			names = append(names, name)
		}
	}
	return names
}

func (s *State) cloneDamageLog() map[string][][2]int64 {
	out := make(map[string][][2]int64, len(s.damageLog))
	for k, v := range s.damageLog {
		out[k] = append([][2]int64(nil), v...)
	}
	return out
}

func (s *State) cloneIdentityLog() map[string][]IdentityLogEntry {
	out := make(map[string][]IdentityLogEntry, len(s.identityLog))
	for k, v := range s.identityLog {
		out[k] = append([]IdentityLogEntry(nil), v...)
	}
	return out
}

func (s *State) cloneCastLog() map[string]map[uint32][]*skilltracker.SkillCast {
	out := make(map[string]map[uint32][]*skilltracker.SkillCast, len(s.castLog))
	for name, bySkill := range s.castLog {
		out[name] = make(map[uint32][]*skilltracker.SkillCast, len(bySkill))
		for skillID := range bySkill {
			entityID := s.Encounter.Entities[name].ID
			out[name][skillID] = s.Skills.CastLog(entityID, skillID)
		}
	}
	return out
}

func (s *State) cloneBossHPLog() map[string][]BossHPLogEntry {
	out := make(map[string][]BossHPLogEntry, len(s.bossHPLog))
	for k, v := range s.bossHPLog {
		out[k] = append([]BossHPLogEntry(nil), v...)
	}
	return out
}
