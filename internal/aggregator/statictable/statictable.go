// Package statictable holds the immutable game-data lookup tables the
// aggregation engine consults while attributing damage and buffs: NPC
// templates, skill/skill-effect/skill-buff definitions, esthers, valid
// zone ids, the stat-type map and class names.
//
// Tables are loaded once from JSON embedded at build time and are safe
// for concurrent read-only use thereafter; nothing in this package
// supports reloading during a run, matching the "load-once, read-many"
// contract the rest of the engine assumes.
package statictable

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"
)

//go:embed data/*.json
var dataFS embed.FS

// NpcTemplate describes a monster/boss/guardian template keyed by npc id.
type NpcTemplate struct {
	ID      uint32 `json:"id"`
	Name    string `json:"name"`
	Grade   string `json:"grade"`
	NpcType string `json:"npc_type"`
	HPBars  int32  `json:"hp_bars"`
}

// raidGrades are the template grades that make an NPC boss-eligible,
// subject to the max-hp gate applied by the caller (ParserOptions.MinBossHP).
var raidGrades = map[string]bool{
	"boss":      true,
	"raid":      true,
	"epic_raid": true,
	"commander": true,
}

// IsRaidGrade reports whether a template's grade qualifies for boss promotion.
func (t NpcTemplate) IsRaidGrade() bool {
	return raidGrades[t.Grade]
}

// SkillData describes a cast-able skill template.
type SkillData struct {
	ID       uint32 `json:"id"`
	Name     string `json:"name"`
	Icon     string `json:"icon"`
	ClassID  int32  `json:"class_id"`
	Category string `json:"category"`
}

// IsHyperAwakening reports whether this skill belongs to the
// hyper-awakening-technique family. Derived from the skill template's
// category rather than a hardcoded id list, per the open question in
// the design notes: the predicate must come from the skill's own data.
func (s SkillData) IsHyperAwakening() bool {
	return s.Category == "hyperawakening"
}

// SkillEffectData describes a skill-effect template, used to resolve
// battle-item projectile damage and stagger contribution.
type SkillEffectData struct {
	ID       uint32 `json:"id"`
	Comment  string `json:"comment"`
	ItemName string `json:"item_name"`
	ItemType string `json:"item_type"`
	Stagger  int32  `json:"stagger"`
}

// IsBattleItem reports whether this effect represents a battle item of
// the given kind (e.g. "attack").
func (e SkillEffectData) IsBattleItem(kind string) bool {
	return e.ItemName != "" && e.ItemType == kind
}

// SkillBuffData describes a buff/debuff template.
type SkillBuffData struct {
	ID                      uint32 `json:"id"`
	Name                    string `json:"name"`
	Desc                    string `json:"desc"`
	Icon                    string `json:"icon"`
	Duration                int64  `json:"duration"`
	Category                string `json:"category"` // "buff" | "debuff"
	BuffType                uint32 `json:"buff_type"` // bit 0 = damage-amplifying
	BuffCategory            string `json:"buff_category"` // classskill | identity | arkpassive | ...
	Target                  string `json:"target"`         // PARTY | SELF
	UniqueGroup             uint32 `json:"unique_group"`
	SourceClassID           int32  `json:"source_class_id"`
	HyperAwakeningTechnique bool   `json:"hyper_awakening_technique"`
	IsShield                bool   `json:"is_shield"`
}

const buffTypeDamage = 1 << 0

// IsDamageAmp reports whether this buff's buff_type carries the
// damage-amplification bit required for support/identity attribution.
func (b SkillBuffData) IsDamageAmp() bool {
	return b.BuffType&buffTypeDamage != 0
}

// IsPartyTargeted reports whether the buff is broadcast to the whole party.
func (b SkillBuffData) IsPartyTargeted() bool {
	return b.Target == "PARTY"
}

// IsClassOrArkPassiveCategory reports whether the buff_category belongs
// to the set eligible for "support" attribution (classskill or arkpassive).
func (b SkillBuffData) IsClassOrArkPassiveCategory() bool {
	return b.BuffCategory == "classskill" || b.BuffCategory == "arkpassive"
}

// IsIdentityCategory reports whether the buff is an identity-gauge buff.
func (b SkillBuffData) IsIdentityCategory() bool {
	return b.BuffCategory == "identity"
}

// StabilizedStatus is the one buff name subject to the hp-fraction > 0.65
// gate described in the encounter's on_damage attribution rules.
const StabilizedStatus = "Stabilized Status"

// Esther describes an esther summon template.
type Esther struct {
	Name   string   `json:"name"`
	Icon   string   `json:"icon"`
	Skills []uint32 `json:"skills"`
	NpcIDs []uint32 `json:"npc_ids"`
}

type classesFile struct {
	Classes         map[string]string `json:"classes"`
	SupportClassIDs []int32           `json:"support_class_ids"`
}

// Tables is the process-wide static-data registry.
type Tables struct {
	Npcs          map[uint32]NpcTemplate
	Skills        map[uint32]SkillData
	SkillEffects  map[uint32]SkillEffectData
	SkillBuffs    map[uint32]SkillBuffData
	Esthers       []Esther
	ValidZones    map[uint32]bool
	StatTypes     map[uint8]string
	ClassNames    map[int32]string
	SupportClass  map[int32]bool
}

var (
	once    sync.Once
	tables  *Tables
	loadErr error
)

// Load returns the process-wide static tables, parsing the embedded JSON
// exactly once. Subsequent calls are free.
func Load() (*Tables, error) {
	once.Do(func() {
		tables, loadErr = load()
	})
	return tables, loadErr
}

// MustLoad panics if the embedded data fails to parse. The data is
// compiled into the binary, so a failure here means the build itself is
// broken, not a runtime condition callers should handle.
func MustLoad() *Tables {
	t, err := Load()
	if err != nil {
		panic(fmt.Sprintf("statictable: embedded data is invalid: %v", err))
	}
	return t
}

func load() (*Tables, error) {
	t := &Tables{
		Npcs:         map[uint32]NpcTemplate{},
		Skills:       map[uint32]SkillData{},
		SkillEffects: map[uint32]SkillEffectData{},
		SkillBuffs:   map[uint32]SkillBuffData{},
		ValidZones:   map[uint32]bool{},
		StatTypes:    map[uint8]string{},
		ClassNames:   map[int32]string{},
		SupportClass: map[int32]bool{},
	}

	var npcs []NpcTemplate
	if err := readJSON("data/npcs.json", &npcs); err != nil {
		return nil, err
	}
	for _, n := range npcs {
		t.Npcs[n.ID] = n
	}

	var skills []SkillData
	if err := readJSON("data/skills.json", &skills); err != nil {
		return nil, err
	}
	for _, s := range skills {
		t.Skills[s.ID] = s
	}

	var effects []SkillEffectData
	if err := readJSON("data/skill_effects.json", &effects); err != nil {
		return nil, err
	}
	for _, e := range effects {
		t.SkillEffects[e.ID] = e
	}

	var buffs []SkillBuffData
	if err := readJSON("data/skill_buffs.json", &buffs); err != nil {
		return nil, err
	}
	for _, b := range buffs {
		t.SkillBuffs[b.ID] = b
	}

	if err := readJSON("data/esthers.json", &t.Esthers); err != nil {
		return nil, err
	}

	var zones []uint32
	if err := readJSON("data/valid_zones.json", &zones); err != nil {
		return nil, err
	}
	for _, z := range zones {
		t.ValidZones[z] = true
	}

	var statTypes map[string]string
	if err := readJSON("data/stat_types.json", &statTypes); err != nil {
		return nil, err
	}
	for k, v := range statTypes {
		var id uint8
		if _, err := fmt.Sscanf(k, "%d", &id); err != nil {
			return nil, fmt.Errorf("statictable: bad stat type key %q: %w", k, err)
		}
		t.StatTypes[id] = v
	}

	var classes classesFile
	if err := readJSON("data/classes.json", &classes); err != nil {
		return nil, err
	}
	for k, v := range classes.Classes {
		var id int32
		if _, err := fmt.Sscanf(k, "%d", &id); err != nil {
			return nil, fmt.Errorf("statictable: bad class id key %q: %w", k, err)
		}
		t.ClassNames[id] = v
	}
	for _, id := range classes.SupportClassIDs {
		t.SupportClass[id] = true
	}

	return t, nil
}

func readJSON(path string, v any) error {
	data, err := dataFS.ReadFile(path)
	if err != nil {
		return fmt.Errorf("statictable: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("statictable: parsing %s: %w", path, err)
	}
	return nil
}

// SkillName resolves a skill id to its display name, falling back to the
// numeric id as a string when the template is unknown.
func (t *Tables) SkillName(skillID uint32) string {
	if s, ok := t.Skills[skillID]; ok && s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("%d", skillID)
}

// IsSupportClass reports whether classID belongs to the support set used
// by the buffed_by_support / debuffed_by_support predicates.
func (t *Tables) IsSupportClass(classID int32) bool {
	return t.SupportClass[classID]
}
