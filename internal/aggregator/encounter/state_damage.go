package encounter

import (
	"github.com/skirmishmeter/meter/internal/aggregator/entitytracker"
	"github.com/skirmishmeter/meter/internal/aggregator/idtracker"
	"github.com/skirmishmeter/meter/internal/aggregator/skilltracker"
	"github.com/skirmishmeter/meter/internal/aggregator/statictable"
	"github.com/skirmishmeter/meter/internal/aggregator/statustracker"
)

// HitFlag is the low nibble of a SkillDamageEvent's modifier.
type HitFlag int32

const (
	HitNormal HitFlag = iota
	HitCritical
	HitMiss
	HitInvincible
	HitDot
	HitImmune
	HitImmuneSilenced
	HitFontSilenced
	HitDotCritical
	HitDodge
	HitReflect
	HitDamageShare
	HitDodgeHit
)

// HitOption is bits 4-6 of a SkillDamageEvent's modifier.
type HitOption int32

const (
	HitOptionNone HitOption = iota
	HitOptionBackAttack
	HitOptionFrontalAttack
	HitOptionFlankAttack
)

// DecodeModifier splits a SkillDamageEvent's packed modifier into its
// hit flag and hit option, per hit_flag = modifier & 0xF,
// hit_option = (modifier >> 4) & 0x7.
func DecodeModifier(modifier int32) (HitFlag, HitOption) {
	return HitFlag(modifier & 0xf), HitOption((modifier >> 4) & 0x7)
}

// effectKey is the attribution key for a status effect: its custom_id
// when one was assigned, otherwise its own status_effect_id. Recording
// the custom_id lets repeated applications of the same buff template be
// attributed separately while still resolving back to the template via
// RegisterCustomID/resolveBuffID.
func effectKey(e statustracker.Effect) uint32 {
	if e.CustomID != 0 {
		return e.CustomID
	}
	return e.StatusEffectID
}

// recordStatusEffectTemplate caches the buff/debuff template the first
// time an id is seen, or records it as unknown when no static template
// exists, so the UI never has to resolve an id twice.
func recordStatusEffectTemplate(dst map[uint32]StatusEffectInfo, unknown map[uint32]struct{}, id uint32, src *statictable.SkillBuffData) {
	if _, known := dst[id]; known {
		return
	}
	if _, marked := unknown[id]; marked {
		return
	}
	if src == nil {
		unknown[id] = struct{}{}
		return
	}
	dst[id] = StatusEffectInfo{ID: id, Name: src.Name, Icon: src.Icon}
}

// OnDamage is the central damage-accounting operation. owner is the
// already-attribution-resolved source (a player, or a summon's owner);
// proj is the raw entity behind the wire source id, used to recover a
// battle item's skill_effect_id and to correlate the hit back to its
// projectile's cast. Returns false when the hit was dropped (invincible,
// a damage-share marker with no skill, or filtered by boss-only-damage).
func (s *State) OnDamage(
	owner, target, proj *entitytracker.Entity,
	skillID, skillEffectID *uint32,
	damage int64,
	modifier int32,
	targetCurrentHP, targetMaxHP int64,
	seOnSource, seOnTarget []statustracker.Effect,
	ts int64,
) bool {
	hitFlag, hitOption := DecodeModifier(modifier)

	if hitFlag == HitInvincible {
		return false
	}
	if hitFlag == HitDamageShare && skillID == nil && skillEffectID == nil {
		return false
	}

	if proj != nil && proj.EntityType == entitytracker.Projectile {
		if effect, ok := s.statics.SkillEffects[proj.SkillEffectID]; ok && effect.IsBattleItem("attack") {
			id := proj.SkillEffectID
			skillEffectID = &id
		}
	}

	sourceEntity := s.getOrCreateEncounterEntity(owner)
	targetEntity := s.getOrCreateEncounterEntity(target)

	if s.BossOnlyDamage &&
		((targetEntity.EntityType != entitytracker.Boss && targetEntity.EntityType != entitytracker.Player) ||
			(targetEntity.EntityType == entitytracker.Player && sourceEntity.EntityType != entitytracker.Boss)) {
		return false
	}

	if s.Encounter.FightStart == 0 {
		s.Encounter.FightStart = ts
		if skillID != nil {
			s.Skills.NewCast(owner.ID, *skillID, nil, ts)
		}
		if synced, ok := s.timeSyncMs(); ok {
			s.ntpFightStart = synced
		}
		s.Encounter.BossOnlyDamage = s.BossOnlyDamage
		_ = s.emitter.Emit("raid-start", ts)
	}
	s.Encounter.LastCombatPacket = ts

	sourceEntity.ID = owner.ID
	if targetEntity.ID == target.ID {
		targetEntity.CurrentHP = targetCurrentHP
		targetEntity.MaxHP = targetMaxHP
	}

	if targetEntity.EntityType != entitytracker.Player && targetCurrentHP < 0 {
		damage += targetCurrentHP
	}

	skillName := s.statics.SkillName(valueOr(skillID, valueOr(skillEffectID, 0)))
	defaultSkillID := valueOr(skillID, valueOr(skillEffectID, 0))

	skill, ok := sourceEntity.Skills[defaultSkillID]
	if !ok {
		for _, sk := range sourceEntity.Skills {
			if sk.Name == skillName {
				skill = sk
				ok = true
				break
			}
		}
	}
	if !ok {
		skill = newSkill(defaultSkillID, skillName)
		skill.Casts = 1
		sourceEntity.Skills[defaultSkillID] = skill
	}

	relative := ts - s.Encounter.FightStart

	hit := skilltracker.SkillHit{Damage: damage, TimestampRelative: relative}

	skill.TotalDamage += damage
	if damage > skill.MaxDamage {
		skill.MaxDamage = damage
	}
	sourceEntity.DamageStats.DamageDealt += damage

	isHyperAwakening := false
	if sd, ok := s.statics.Skills[skill.ID]; ok {
		isHyperAwakening = sd.IsHyperAwakening()
	}
	if isHyperAwakening {
		sourceEntity.DamageStats.HyperAwakeningDamage += damage
	}

	targetEntity.DamageStats.DamageTaken += damage

	sourceEntity.SkillStats.Hits++
	sourceEntity.DamageStats.Hits++
	skill.Hits++

	if hitFlag == HitCritical || hitFlag == HitDotCritical {
		sourceEntity.SkillStats.Crits++
		sourceEntity.DamageStats.CritDamage += damage
		skill.Crits++
		skill.CritDamage += damage
		hit.Crit = true
	}
	if hitOption == HitOptionBackAttack {
		sourceEntity.SkillStats.BackAttacks++
		sourceEntity.DamageStats.BackAttackDamage += damage
		hit.BackAttack = true
	}
	if hitOption == HitOptionFrontalAttack {
		sourceEntity.SkillStats.FrontAttacks++
		sourceEntity.DamageStats.FrontAttackDamage += damage
		hit.FrontAttack = true
	}

	dmgStats := &s.Encounter.EncounterDamageStats

	if sourceEntity.EntityType == entitytracker.Player {
		dmgStats.TotalDamageDealt += damage
		if sourceEntity.DamageStats.DamageDealt > dmgStats.TopDealtDmg {
			dmgStats.TopDealtDmg = sourceEntity.DamageStats.DamageDealt
			dmgStats.TopDealtName = sourceEntity.Name
		}
		s.damageLog[sourceEntity.Name] = append(s.damageLog[sourceEntity.Name], [2]int64{ts, damage})

		s.attributeBuffsAndDebuffs(sourceEntity, skill, &hit, isHyperAwakening, seOnSource, seOnTarget, dmgStats)
	}

	if targetEntity.EntityType == entitytracker.Player {
		dmgStats.TotalDamageTaken += damage
		if targetEntity.DamageStats.DamageTaken > dmgStats.TopTakenDmg {
			dmgStats.TopTakenDmg = targetEntity.DamageStats.DamageTaken
			dmgStats.TopTakenName = targetEntity.Name
		}
	} else if targetEntity.EntityType == entitytracker.Boss {
		s.Encounter.CurrentBossName = targetEntity.Name
		targetEntity.ID = target.ID
		targetEntity.NpcID = target.NpcID
		s.appendBossHPLog(targetEntity, relative)
	}

	if skillID != nil {
		var projID *idtracker.EntityID
		if proj != nil {
			id := proj.ID
			projID = &id
		}
		s.Skills.OnHit(owner.ID, projID, *skillID, hit, skill.SummonSources)
	}

	skill.HitLog = append(skill.HitLog, hit)

	return true
}

func (s *State) timeSyncMs() (int64, bool) {
	if s.timeSync == nil {
		return 0, false
	}
	return s.timeSync.SyncMs()
}

func (s *State) getOrCreateEncounterEntity(e *entitytracker.Entity) *EncounterEntity {
	if existing, ok := s.Encounter.Entities[e.Name]; ok {
		return existing
	}
	fresh := newEncounterEntity(e.Name)
	s.applyIdentitySnapshot(fresh, e)
	s.Encounter.Entities[e.Name] = fresh
	return fresh
}

func (s *State) appendBossHPLog(boss *EncounterEntity, relativeMs int64) {
	currentHP := int64(0)
	if boss.CurrentHP >= 0 {
		currentHP = boss.CurrentHP + boss.CurrentShield
	}
	timeSec := relativeMs / 1000

	log := s.bossHPLog[boss.Name]
	if n := len(log); n > 0 && log[n-1].TimeSec == timeSec {
		log[n-1].HP = currentHP
		s.bossHPLog[boss.Name] = log
		return
	}
	s.bossHPLog[boss.Name] = append(log, BossHPLogEntry{TimeSec: timeSec, HP: currentHP})
}

// attributeBuffsAndDebuffs resolves the effects active on source/target
// into the skill- and entity-level buffed_by/debuffed_by maps. Every
// known and unknown buff/debuff id is cached on the encounter the first
// time it is seen. Two filters gate what actually lands in the per-id
// maps: a hyper-awakening hit only accumulates HAT-technique buffs and
// drops debuff attribution entirely; the "Stabilized Status" buff is
// dropped from buffed_by unless the source's hp fraction exceeds 0.65.
func (s *State) attributeBuffsAndDebuffs(source *EncounterEntity, skill *Skill, hit *skilltracker.SkillHit, isHyperAwakening bool, seOnSource, seOnTarget []statustracker.Effect, dmgStats *EncounterDamageStats) {
	damage := hit.Damage

	for _, eff := range seOnSource {
		recordStatusEffectTemplate(dmgStats.Buffs, dmgStats.UnknownBuffs, effectKey(eff), eff.Source)
	}
	for _, eff := range seOnTarget {
		recordStatusEffectTemplate(dmgStats.Debuffs, dmgStats.UnknownBuffs, effectKey(eff), eff.Source)
	}

	stabilizedActive := source.MaxHP != 0 && float64(source.CurrentHP)/float64(source.MaxHP) > 0.65

	var filteredBuffIDs []uint32
	for _, eff := range seOnSource {
		if isHyperAwakening && !(eff.Source != nil && eff.Source.HyperAwakeningTechnique) {
			continue
		}
		if eff.Source != nil && !stabilizedActive && eff.Source.Name == statictable.StabilizedStatus {
			continue
		}

		id := effectKey(eff)
		filteredBuffIDs = append(filteredBuffIDs, id)
		skill.BuffedBy[id] += damage
		source.DamageStats.BuffedBy[id] += damage

		if eff.Source != nil {
			isDamageAmpSupport := s.statics.IsSupportClass(eff.Source.SourceClassID) && eff.Source.IsDamageAmp() && eff.Source.IsPartyTargeted()
			switch {
			case eff.Source.HyperAwakeningTechnique:
				skill.BuffedByHAT += damage
				source.DamageStats.BuffedByHAT += damage
			case isDamageAmpSupport && eff.Source.IsClassOrArkPassiveCategory():
				skill.BuffedBySupport += damage
				source.DamageStats.BuffedBySupport += damage
			case isDamageAmpSupport && eff.Source.IsIdentityCategory():
				skill.BuffedByIdentity += damage
				source.DamageStats.BuffedByIdentity += damage
			}
		}
	}

	var debuffIDs []uint32
	if !isHyperAwakening {
		for _, eff := range seOnTarget {
			id := effectKey(eff)
			debuffIDs = append(debuffIDs, id)
			skill.DebuffedBy[id] += damage
			source.DamageStats.DebuffedBy[id] += damage

			if eff.Source != nil && s.statics.IsSupportClass(eff.Source.SourceClassID) && eff.Source.IsDamageAmp() &&
				eff.Source.IsPartyTargeted() && eff.Source.IsClassOrArkPassiveCategory() {
				skill.DebuffedBySupport += damage
				source.DamageStats.DebuffedBySupport += damage
			}
		}
	}

	hit.BuffedBy = filteredBuffIDs
	hit.DebuffedBy = debuffIDs
}

func valueOr(p *uint32, fallback uint32) uint32 {
	if p == nil {
		return fallback
	}
	return *p
}
