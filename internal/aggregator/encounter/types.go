// Package encounter is the aggregate model: entities with damage/skill
// stats, boss identity, fight timing, and the raid lifecycle state
// machine. Everything the UI and persistence layer read flows through
// the State type defined here.
package encounter

import (
	"github.com/skirmishmeter/meter/internal/aggregator/entitytracker"
	"github.com/skirmishmeter/meter/internal/aggregator/idtracker"
	"github.com/skirmishmeter/meter/internal/aggregator/skilltracker"
)

// DamageStats is the per-entity damage/shield/death accounting described
// in the data model's EncounterEntity.damage_stats.
type DamageStats struct {
	DamageDealt          int64
	DamageTaken          int64
	CritDamage           int64
	BackAttackDamage     int64
	FrontAttackDamage    int64
	HyperAwakeningDamage int64
	Hits                 int64

	BuffedBy   map[uint32]int64
	DebuffedBy map[uint32]int64

	// Classification counters (spec.md §4.6 point 8): damage credited to
	// a buff/debuff matching one of the named attribution classes.
	BuffedBySupport   int64
	BuffedByIdentity  int64
	BuffedByHAT       int64
	DebuffedBySupport int64

	ShieldsGiven     int64
	ShieldsReceived  int64
	DamageAbsorbed   int64 // absorbed on this entity's behalf (as target)
	AbsorbedByOthers int64 // shields this entity's casts absorbed for others

	Deaths    int
	DeathTime int64
}

func newDamageStats() DamageStats {
	return DamageStats{
		BuffedBy:   map[uint32]int64{},
		DebuffedBy: map[uint32]int64{},
	}
}

// SkillStats is the per-entity cast/hit counters.
type SkillStats struct {
	Casts        int64
	Hits         int64
	Crits        int64
	BackAttacks  int64
	FrontAttacks int64
	Counters     int64
}

// Skill is the per-entity, per-skill-id aggregate.
type Skill struct {
	ID          uint32
	Name        string
	TotalDamage int64
	MaxDamage   int64
	Hits        int64
	Crits       int64
	CritDamage  int64
	Casts       int64

	TripodIndex [3]uint8
	TripodLevel [3]uint8

	SummonSources []idtracker.EntityID

	BuffedBy   map[uint32]int64
	DebuffedBy map[uint32]int64

	// Classification counters (spec.md §4.6 point 8): damage credited to
	// a buff/debuff matching one of the named attribution classes.
	BuffedBySupport   int64
	BuffedByIdentity  int64
	BuffedByHAT       int64
	DebuffedBySupport int64

	HitLog []skilltracker.SkillHit
}

func newSkill(id uint32, name string) *Skill {
	return &Skill{
		ID:         id,
		Name:       name,
		BuffedBy:   map[uint32]int64{},
		DebuffedBy: map[uint32]int64{},
	}
}

// EncounterEntity is the aggregate-side (reporting) view of an entity,
// keyed by name in the Encounter.
type EncounterEntity struct {
	Name          string
	ID            idtracker.EntityID
	CharacterID   idtracker.CharacterID
	EntityType    entitytracker.EntityType
	ClassID       int32
	NpcID         uint32
	GearLevel     float64
	CurrentHP     int64
	MaxHP         int64
	CurrentShield int64
	IsDead        bool

	DamageStats DamageStats
	SkillStats  SkillStats
	Skills      map[uint32]*Skill
}

func newEncounterEntity(name string) *EncounterEntity {
	return &EncounterEntity{
		Name:        name,
		DamageStats: newDamageStats(),
		Skills:      map[uint32]*Skill{},
	}
}

// IsCombatParticipant reports whether the entity dealt or received any
// damage, the filter applied before a UI snapshot is emitted.
func (e *EncounterEntity) IsCombatParticipant() bool {
	return e.DamageStats.DamageDealt > 0 || e.DamageStats.DamageTaken > 0
}

// StatusEffectInfo is the template snapshot recorded for a buff/debuff
// once its id has been seen on a hit, kept on the aggregate so the UI
// doesn't need a second static-table round trip.
type StatusEffectInfo struct {
	ID   uint32
	Name string
	Icon string
}

// EncounterDamageStats is the fight-wide rollup.
type EncounterDamageStats struct {
	TotalDamageDealt int64
	TotalDamageTaken int64

	TopDealtName  string
	TopDealtDmg   int64
	TopTakenName  string
	TopTakenDmg   int64

	Buffs              map[uint32]StatusEffectInfo
	Debuffs            map[uint32]StatusEffectInfo
	UnknownBuffs       map[uint32]struct{}
	AppliedShieldBuffs map[uint32]StatusEffectInfo

	TotalShielding          int64
	TotalEffectiveShielding int64
}

func newEncounterDamageStats() EncounterDamageStats {
	return EncounterDamageStats{
		Buffs:              map[uint32]StatusEffectInfo{},
		Debuffs:            map[uint32]StatusEffectInfo{},
		UnknownBuffs:       map[uint32]struct{}{},
		AppliedShieldBuffs: map[uint32]StatusEffectInfo{},
	}
}

// Encounter is the aggregate model cloned for UI snapshots and persistence.
type Encounter struct {
	FightStart       int64
	LastCombatPacket int64
	Entities         map[string]*EncounterEntity
	CurrentBossName  string

	EncounterDamageStats EncounterDamageStats
	BossOnlyDamage       bool
}

func newEncounter() Encounter {
	return Encounter{
		Entities:             map[string]*EncounterEntity{},
		EncounterDamageStats: newEncounterDamageStats(),
	}
}

// Snapshot is the clone handed to the UI emitter and the stats API on
// each tick / terminal transition.
type Snapshot struct {
	Encounter     Encounter
	DamageIsValid bool
	PartyInfo     [][]string
	CurrentBoss   *EncounterEntity
}

// BossHPLogEntry is one coalesced-per-second boss hp sample.
type BossHPLogEntry struct {
	TimeSec int64
	HP      int64
}

// IdentityLogEntry is one identity-gauge sample.
type IdentityLogEntry struct {
	WallClockMs int64
	Gauge1      uint32
	Gauge2      uint32
	Gauge3      uint32
}

// PersistedEncounter is the row shape handed to internal/persistence at
// encounter end.
type PersistedEncounter struct {
	Encounter        Encounter
	DamageLog        map[string][][2]int64
	IdentityLog      map[string][]IdentityLogEntry
	CastLog          map[string]map[uint32][]*skilltracker.SkillCast
	BossHPLog        map[string][]BossHPLogEntry
	PartyInfo        [][]string
	RaidDifficulty   string
	RaidDifficultyID uint32
	Region           string
	Version          string
	NTPFightStart    int64
	RDPSValid        bool
	RaidClear        bool
	DamageIsValid    bool
	Manual           bool
	PlayerInfos      map[string]any
}
