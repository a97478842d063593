// Package skilltracker keeps the per-cast timeline needed to correlate
// projectiles/traps back to the cast that spawned them and to build the
// per-cast hit log persisted alongside a completed encounter.
package skilltracker

import (
	"github.com/skirmishmeter/meter/internal/aggregator/idtracker"
)

// SkillHit is one recorded damage instance against a skill's cast.
type SkillHit struct {
	Damage            int64
	TimestampRelative int64
	Crit              bool
	BackAttack        bool
	FrontAttack       bool
	BuffedBy          []uint32
	DebuffedBy        []uint32
}

// SkillCast is one opened cast of a skill, with every hit attributed to it.
type SkillCast struct {
	Start         int64
	Hits          []SkillHit
	SummonSources []idtracker.EntityID
}

type ownerSkill struct {
	owner idtracker.EntityID
	skill uint32
}

// Tracker correlates casts, projectiles, and hits.
// Single-owner; no internal locking.
type Tracker struct {
	skillTimestamp      map[ownerSkill]int64
	projectileTimestamp map[idtracker.EntityID]int64
	castLog             map[idtracker.EntityID]map[uint32][]*SkillCast
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		skillTimestamp:      make(map[ownerSkill]int64),
		projectileTimestamp: make(map[idtracker.EntityID]int64),
		castLog:             make(map[idtracker.EntityID]map[uint32][]*SkillCast),
	}
}

// NewCast opens a new cast entry for (owner, skill) at timestamp,
// returning it so the caller can attach summon sources discovered later.
func (t *Tracker) NewCast(owner idtracker.EntityID, skill uint32, summonSources []idtracker.EntityID, timestamp int64) *SkillCast {
	cast := &SkillCast{Start: timestamp, SummonSources: summonSources}

	if t.castLog[owner] == nil {
		t.castLog[owner] = make(map[uint32][]*SkillCast)
	}
	t.castLog[owner][skill] = append(t.castLog[owner][skill], cast)
	t.skillTimestamp[ownerSkill{owner: owner, skill: skill}] = timestamp

	return cast
}

// CorrelateProjectile records that a projectile/trap with id projectileID
// was spawned by the most recent cast of (owner, skill), so a later hit
// carrying only the projectile id can still be attributed to that cast.
func (t *Tracker) CorrelateProjectile(projectileID, owner idtracker.EntityID, skill uint32) (int64, bool) {
	ts, ok := t.skillTimestamp[ownerSkill{owner: owner, skill: skill}]
	if !ok {
		return 0, false
	}
	t.projectileTimestamp[projectileID] = ts
	return ts, true
}

// OnHit appends hit to the matching cast. If projectileID is known, the
// cast opened at the timestamp correlated to that projectile is used;
// otherwise the latest open cast for (sourceID, skillID) is used; if
// none exists, one is opened implicitly at hit.TimestampRelative.
func (t *Tracker) OnHit(sourceID idtracker.EntityID, projectileID *idtracker.EntityID, skillID uint32, hit SkillHit, summonSources []idtracker.EntityID) {
	if projectileID != nil {
		if ts, ok := t.projectileTimestamp[*projectileID]; ok {
			if cast := t.findCastAt(sourceID, skillID, ts); cast != nil {
				cast.Hits = append(cast.Hits, hit)
				return
			}
		}
	}

	casts := t.castLog[sourceID][skillID]
	if len(casts) > 0 {
		cast := casts[len(casts)-1]
		cast.Hits = append(cast.Hits, hit)
		return
	}

	cast := t.NewCast(sourceID, skillID, summonSources, hit.TimestampRelative)
	cast.Hits = append(cast.Hits, hit)
}

func (t *Tracker) findCastAt(owner idtracker.EntityID, skill uint32, start int64) *SkillCast {
	for _, cast := range t.castLog[owner][skill] {
		if cast.Start == start {
			return cast
		}
	}
	return nil
}

// CastLog returns the full per-cast timeline for an owner's skill,
// used at persistence time.
func (t *Tracker) CastLog(owner idtracker.EntityID, skill uint32) []*SkillCast {
	return t.castLog[owner][skill]
}
