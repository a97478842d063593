// Package entitytracker owns the canonical registry of entities observed
// on the wire — players, NPCs, projectiles, traps, summons — with type
// inference (boss promotion, guessed-player) and projectile/trap
// ownership resolution.
package entitytracker

import (
	"github.com/skirmishmeter/meter/internal/aggregator/idtracker"
	"github.com/skirmishmeter/meter/internal/aggregator/partytracker"
	"github.com/skirmishmeter/meter/internal/aggregator/statictable"
	"github.com/skirmishmeter/meter/internal/aggregator/statustracker"
)

// EntityType classifies what kind of game object an Entity represents.
type EntityType int

const (
	Unknown EntityType = iota
	Monster
	Boss
	Guardian
	Player
	Npc
	Esther
	Projectile
	Summon
)

func (e EntityType) String() string {
	switch e {
	case Monster:
		return "MONSTER"
	case Boss:
		return "BOSS"
	case Guardian:
		return "GUARDIAN"
	case Player:
		return "PLAYER"
	case Npc:
		return "NPC"
	case Esther:
		return "ESTHER"
	case Projectile:
		return "PROJECTILE"
	case Summon:
		return "SUMMON"
	default:
		return "UNKNOWN"
	}
}

// Entity is the wire-level view of a game object: created on first
// sighting, updated in place on re-identification, evicted on explicit
// unpublish or zone re-init.
type Entity struct {
	ID            idtracker.EntityID
	CharacterID   idtracker.CharacterID
	EntityType    EntityType
	Name          string
	NpcID         uint32
	ClassID       int32
	OwnerID       idtracker.EntityID
	SkillID       uint32
	SkillEffectID uint32
	GearLevel     float64
	CurrentHP     int64
	MaxHP         int64
	CurrentShield int64
	Level         uint16
	Grade         string
	PushImmune    bool
}

// Tracker owns entity_id -> Entity plus the local player's ids.
// Single-owner (the orchestrator's loop thread); no internal locking.
type Tracker struct {
	statics  *statictable.Tables
	ids      *idtracker.Tracker
	parties  *partytracker.Tracker
	statuses *statustracker.Tracker

	entities map[idtracker.EntityID]*Entity

	localEntityID    idtracker.EntityID
	localCharacterID idtracker.CharacterID
}

// New creates a tracker wired to the shared id/party/status trackers.
func New(statics *statictable.Tables, ids *idtracker.Tracker, parties *partytracker.Tracker, statuses *statustracker.Tracker) *Tracker {
	return &Tracker{
		statics:  statics,
		ids:      ids,
		parties:  parties,
		statuses: statuses,
		entities: make(map[idtracker.EntityID]*Entity),
	}
}

// InitEnv resets per-zone tracker state and records the new local player id.
func (t *Tracker) InitEnv(localPlayerID idtracker.EntityID) {
	t.entities = make(map[idtracker.EntityID]*Entity)
	t.ids.Reset()
	t.parties.ResetPartyMappings()
	t.localEntityID = localPlayerID
}

// InitPC bootstraps the local player's entity record.
func (t *Tracker) InitPC(id idtracker.EntityID, name string, characterID idtracker.CharacterID, classID int32, gearLevel float64, currentHP, maxHP int64) *Entity {
	t.localEntityID = id
	t.localCharacterID = characterID
	t.ids.Set(id, characterID)

	e := &Entity{
		ID:          id,
		CharacterID: characterID,
		EntityType:  Player,
		Name:        name,
		ClassID:     classID,
		GearLevel:   gearLevel,
		CurrentHP:   currentHP,
		MaxHP:       maxHP,
	}
	t.entities[id] = e
	return e
}

// NewPC creates or updates a remote player.
func (t *Tracker) NewPC(id idtracker.EntityID, name string, characterID idtracker.CharacterID, classID int32, gearLevel float64, currentHP, maxHP int64) *Entity {
	if characterID != 0 {
		t.ids.Set(id, characterID)
	}

	if existing, ok := t.entities[id]; ok && existing.EntityType == Player {
		existing.Name = name
		if gearLevel > 0 {
			existing.GearLevel = gearLevel
		}
		if characterID != 0 {
			existing.CharacterID = characterID
		}
		existing.CurrentHP = currentHP
		existing.MaxHP = maxHP
		return existing
	}

	e := &Entity{
		ID:          id,
		CharacterID: characterID,
		EntityType:  Player,
		Name:        name,
		ClassID:     classID,
		GearLevel:   gearLevel,
		CurrentHP:   currentHP,
		MaxHP:       maxHP,
	}
	t.entities[id] = e
	return e
}

// classifyNpc resolves the EntityType for an npc template given the
// boss-eligibility gate (min_boss_hp from ParserOptions).
func (t *Tracker) classifyNpc(npcID uint32, maxHP int64, minBossHP int64) (EntityType, string) {
	tmpl, ok := t.statics.Npcs[npcID]
	if !ok {
		return Npc, ""
	}
	if tmpl.IsRaidGrade() && maxHP >= minBossHP {
		return Boss, tmpl.Name
	}
	if tmpl.NpcType == "guardian" {
		return Guardian, tmpl.Name
	}
	return Monster, tmpl.Name
}

// NewNPC creates or updates an NPC, promoting it to Boss when its
// template's grade is raid-eligible and its max hp clears minBossHP.
func (t *Tracker) NewNPC(id idtracker.EntityID, npcID uint32, maxHP, currentHP int64, minBossHP int64, level uint16) *Entity {
	entityType, name := t.classifyNpc(npcID, maxHP, minBossHP)
	if name == "" {
		name = fallbackNpcName(npcID)
	}

	if existing, ok := t.entities[id]; ok {
		existing.NpcID = npcID
		existing.EntityType = entityType
		existing.Name = name
		existing.MaxHP = maxHP
		existing.CurrentHP = currentHP
		existing.Level = level
		return existing
	}

	e := &Entity{
		ID:         id,
		EntityType: entityType,
		Name:       name,
		NpcID:      npcID,
		MaxHP:      maxHP,
		CurrentHP:  currentHP,
		Level:      level,
	}
	t.entities[id] = e
	return e
}

// NewNPCSummon is NewNPC plus owner attribution, used so summon damage
// can be credited to the summoner's skills.
func (t *Tracker) NewNPCSummon(id idtracker.EntityID, npcID uint32, ownerID idtracker.EntityID, maxHP, currentHP int64, minBossHP int64) *Entity {
	e := t.NewNPC(id, npcID, maxHP, currentHP, minBossHP, 0)
	e.OwnerID = ownerID
	if e.EntityType == Npc || e.EntityType == Monster {
		e.EntityType = Summon
	}
	return e
}

// NewProjectile registers a projectile spawned by a skill cast.
func (t *Tracker) NewProjectile(id, ownerID idtracker.EntityID, skillID, skillEffectID uint32) *Entity {
	e := &Entity{
		ID:            id,
		EntityType:    Projectile,
		OwnerID:       ownerID,
		SkillID:       skillID,
		SkillEffectID: skillEffectID,
	}
	t.entities[id] = e
	return e
}

// NewTrap registers a trap spawned by a skill cast; traps share the
// projectile/trap correlation rules with projectiles.
func (t *Tracker) NewTrap(id, ownerID idtracker.EntityID, skillID, skillEffectID uint32) *Entity {
	return t.NewProjectile(id, ownerID, skillID, skillEffectID)
}

func fallbackNpcName(npcID uint32) string {
	return "Npc_" + itoa(npcID)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// GetSourceEntity resolves an entity by id without creating one.
func (t *Tracker) GetSourceEntity(id idtracker.EntityID) (*Entity, bool) {
	e, ok := t.entities[id]
	return e, ok
}

// GetOrCreateEntity resolves an entity or synthesises an Unknown one so
// damage events never get dropped for a referenced-but-unseen id.
func (t *Tracker) GetOrCreateEntity(id idtracker.EntityID) *Entity {
	if e, ok := t.entities[id]; ok {
		return e
	}
	e := &Entity{ID: id, EntityType: Unknown}
	t.entities[id] = e
	return e
}

// GuessIsPlayer promotes an Unknown entity to Player when skillID matches
// a known player skill template, setting class_id from that template.
func (t *Tracker) GuessIsPlayer(e *Entity, skillID uint32) {
	if e.EntityType != Unknown {
		return
	}
	skill, ok := t.statics.Skills[skillID]
	if !ok || skill.ClassID == 0 {
		return
	}
	e.EntityType = Player
	e.ClassID = skill.ClassID
}

// IDIsPlayer reports whether id resolves to a tracked Player entity.
func (t *Tracker) IDIsPlayer(id idtracker.EntityID) bool {
	e, ok := t.entities[id]
	return ok && e.EntityType == Player
}

// Remove evicts an entity, used by RemoveObject / ZoneObjectUnpublishNotify.
func (t *Tracker) Remove(id idtracker.EntityID) {
	delete(t.entities, id)
	t.statuses.RemoveLocalObject(id)
}

// LocalEntityID returns the current local player's entity id.
func (t *Tracker) LocalEntityID() idtracker.EntityID { return t.localEntityID }

// LocalCharacterID returns the current local player's character id.
func (t *Tracker) LocalCharacterID() idtracker.CharacterID { return t.localCharacterID }

// All returns every currently tracked entity. Callers must not retain
// the slice across a mutating call.
func (t *Tracker) All() []*Entity {
	out := make([]*Entity, 0, len(t.entities))
	for _, e := range t.entities {
		out = append(out, e)
	}
	return out
}

// LocalPlayerInfo is one cached observation of a character this process
// has previously identified as the local player: the in-memory shape of
// one local_players.json entry.
type LocalPlayerInfo struct {
	Name  string
	Count int
}

// LocalPlayers is the character_id -> LocalPlayerInfo cache PartyInfo
// consults to recognize the local player across a reconnect, before
// InitPC has re-announced it for the new session.
type LocalPlayers map[idtracker.CharacterID]LocalPlayerInfo

// PartyInfo ingests a party roster notification: each (characterID, name)
// pair is registered with the party tracker; if a member's characterID
// matches a cached entry in localInfo, that member becomes the tracked
// local player.
func (t *Tracker) PartyInfo(raid partytracker.RaidInstanceID, party partytracker.PartyInstanceID, members []PartyMember, localInfo LocalPlayers) {
	for _, m := range members {
		entityID, _ := t.ids.GetEntityID(m.CharacterID)
		t.parties.Add(raid, party, m.CharacterID, entityID, m.Name, nil)

		if _, cached := localInfo[m.CharacterID]; cached && entityID != 0 {
			t.localCharacterID = m.CharacterID
			t.localEntityID = entityID
		}
	}
}

// PartyMember is one entry of a PartyInfo roster notification.
type PartyMember struct {
	CharacterID idtracker.CharacterID
	Name        string
}

// PartyStatusEffectAdd bridges a party-scoped status effect through the
// status tracker. The effect's source/target ids are registered as given;
// no id-tracker lookup is made.
func (t *Tracker) PartyStatusEffectAdd(effect statustracker.Effect) {
	t.statuses.RegisterStatusEffect(statustracker.ScopeParty, effect)
}

// PartyStatusEffectRemove bridges party-scoped effect removal.
func (t *Tracker) PartyStatusEffectRemove(targetID idtracker.EntityID, instanceIDs []uint32) (bool, []statustracker.Effect) {
	return t.statuses.RemoveStatusEffects(statustracker.ScopeParty, targetID, instanceIDs, "party")
}
