// Package statustracker tracks active buffs/debuffs (including shields)
// on the local player and on party members, and produces the effect
// lists the encounter's damage accounting attributes hits against.
package statustracker

import (
	"github.com/skirmishmeter/meter/internal/aggregator/idtracker"
	"github.com/skirmishmeter/meter/internal/aggregator/statictable"
)

// Scope distinguishes effects observed directly on the local player from
// effects delivered through party-scoped notifications.
type Scope int

const (
	// ScopeLocal holds effects observed directly on the local player.
	ScopeLocal Scope = iota
	// ScopeParty holds effects delivered via party-scoped notifications.
	ScopeParty
)

// EffectType classifies what kind of mechanic a status effect represents.
type EffectType int

const (
	EffectOther EffectType = iota
	EffectShield
	EffectDmgAmp
)

// EffectCategory is buff or debuff.
type EffectCategory int

const (
	CategoryBuff EffectCategory = iota
	CategoryDebuff
)

// Effect is one tracked status-effect instance.
type Effect struct {
	StatusEffectID uint32
	InstanceID     uint32
	CustomID       uint32
	SourceID       idtracker.EntityID
	TargetID       idtracker.EntityID
	TargetScope    Scope
	Value          int64
	ExpirationTime int64
	Category       EffectCategory
	Type           EffectType
	Source         *statictable.SkillBuffData
}

type key struct {
	target   idtracker.EntityID
	instance uint32
}

// Tracker holds the Local and Party scoped effect registries.
type Tracker struct {
	registries [2]map[key]Effect
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		registries: [2]map[key]Effect{
			make(map[key]Effect),
			make(map[key]Effect),
		},
	}
}

// RegisterStatusEffect adds or replaces an effect instance in its scope.
func (t *Tracker) RegisterStatusEffect(scope Scope, effect Effect) {
	t.registries[scope][key{target: effect.TargetID, instance: effect.InstanceID}] = effect
}

// RemoveStatusEffects removes the named instances from a target in the
// given scope. isShield reports whether any removed effect was a shield;
// shieldsBroken lists the shields that still held a non-zero value when
// removed (i.e. were cleared rather than consumed to zero by damage).
func (t *Tracker) RemoveStatusEffects(scope Scope, targetID idtracker.EntityID, instanceIDs []uint32, reason string) (isShield bool, shieldsBroken []Effect) {
	reg := t.registries[scope]
	for _, instanceID := range instanceIDs {
		k := key{target: targetID, instance: instanceID}
		eff, ok := reg[k]
		if !ok {
			continue
		}
		delete(reg, k)

		if eff.Type == EffectShield {
			isShield = true
			if eff.Value != 0 {
				shieldsBroken = append(shieldsBroken, eff)
			}
		}
	}
	return isShield, shieldsBroken
}

// SyncStatusEffect updates an effect's value in place and returns the
// effect as it now stands plus the value it held before the update, so
// the caller can compute shield deltas.
func (t *Tracker) SyncStatusEffect(scope Scope, instanceID uint32, targetID idtracker.EntityID, newValue int64) (*Effect, int64, bool) {
	reg := t.registries[scope]
	k := key{target: targetID, instance: instanceID}
	eff, ok := reg[k]
	if !ok {
		return nil, 0, false
	}

	oldValue := eff.Value
	eff.Value = newValue
	reg[k] = eff
	return &eff, oldValue, true
}

// GetStatusEffects returns the effects currently targeting source
// (candidates for buff attribution) and the effects currently targeting
// target (candidates for debuff attribution). This tracker does not
// filter by support class or category; that classification happens in
// the encounter's attribution logic.
func (t *Tracker) GetStatusEffects(sourceID, targetID idtracker.EntityID) (onSource, onTarget []Effect) {
	for _, reg := range t.registries {
		for _, eff := range reg {
			if eff.TargetID == sourceID {
				onSource = append(onSource, eff)
			}
			if eff.TargetID == targetID {
				onTarget = append(onTarget, eff)
			}
		}
	}
	return onSource, onTarget
}

// RemoveLocalObject drops every Local-scoped effect on entityID, used
// when the entity despawns.
func (t *Tracker) RemoveLocalObject(entityID idtracker.EntityID) {
	reg := t.registries[ScopeLocal]
	for k := range reg {
		if k.target == entityID {
			delete(reg, k)
		}
	}
}
