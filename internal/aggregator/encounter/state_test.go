package encounter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skirmishmeter/meter/internal/aggregator/entitytracker"
	"github.com/skirmishmeter/meter/internal/aggregator/idtracker"
	"github.com/skirmishmeter/meter/internal/aggregator/statictable"
	"github.com/skirmishmeter/meter/internal/aggregator/statustracker"
)

type fakePersister struct {
	rows []PersistedEncounter
	id   int64
}

func (f *fakePersister) Save(ctx context.Context, row PersistedEncounter) (int64, error) {
	f.id++
	f.rows = append(f.rows, row)
	return f.id, nil
}

type fakeEmitter struct {
	events []string
}

func (f *fakeEmitter) Emit(event string, payload any) error {
	f.events = append(f.events, event)
	return nil
}

type fakeStats struct{}

func (fakeStats) SendRaidInfo(ctx context.Context, snapshot Snapshot) error { return nil }
func (fakeStats) GetCharacterInfo(ctx context.Context, boss string, players []string, region string) (map[string]any, bool) {
	return nil, false
}

type fakeTimeSync struct {
	ms int64
	ok bool
}

func (f fakeTimeSync) SyncMs() (int64, bool) { return f.ms, f.ok }

func newTestState(t *testing.T) (*State, *fakePersister, *fakeEmitter) {
	t.Helper()
	statics := statictable.MustLoad()
	persister := &fakePersister{}
	emitter := &fakeEmitter{}
	st := New(statics, persister, emitter, fakeStats{}, fakeTimeSync{}, "test")
	return st, persister, emitter
}

func player(id idtracker.EntityID, name string, classID int32, maxHP int64) *entitytracker.Entity {
	return &entitytracker.Entity{
		ID:         id,
		EntityType: entitytracker.Player,
		Name:       name,
		ClassID:    classID,
		MaxHP:      maxHP,
		CurrentHP:  maxHP,
	}
}

func boss(id idtracker.EntityID, name string, npcID uint32, maxHP int64) *entitytracker.Entity {
	return &entitytracker.Entity{
		ID:         id,
		EntityType: entitytracker.Boss,
		Name:       name,
		NpcID:      npcID,
		MaxHP:      maxHP,
		CurrentHP:  maxHP,
	}
}

func TestState_OnDamage_S1_CleanKill(t *testing.T) {
	st, persister, _ := newTestState(t)

	p := player(1, "Striker", 102, 100_000)
	b := boss(2, "Veskal", 900, 1_000_000)

	skillID := uint32(16120)
	ok := st.OnDamage(p, b, nil, &skillID, nil, 50_000, 0, 950_000, 1_000_000, nil, nil, 1000)
	require.True(t, ok)
	require.Equal(t, int64(1000), st.Encounter.FightStart)
	require.Equal(t, "Veskal", st.Encounter.CurrentBossName)

	ok = st.OnDamage(p, b, nil, &skillID, nil, 950_000, 0, 0, 1_000_000, nil, nil, 5000)
	require.True(t, ok)

	require.Equal(t, int64(1_000_000), st.Encounter.EncounterDamageStats.TotalDamageDealt)
	require.Equal(t, int64(1_000_000), st.Encounter.Entities["Striker"].DamageStats.DamageDealt)

	st.OnDeath(b.ID, entitytracker.Boss, 900, 5100)
	require.True(t, st.Encounter.Entities["Veskal"].IsDead)
	require.True(t, st.BossDeadUpdate)

	st.RaidClear = true
	row, ok := st.PrepareSave(false)
	require.True(t, ok, "a damaged-down boss with player hits should be auto-save eligible")

	_, err := st.CommitSave(context.Background(), row)
	require.NoError(t, err)
	require.Len(t, persister.rows, 1)
	require.True(t, persister.rows[0].RaidClear)
}

func TestState_OnDamage_InvincibleHitCountsNothing(t *testing.T) {
	st, _, _ := newTestState(t)
	p := player(1, "Striker", 102, 100_000)
	b := boss(2, "Veskal", 900, 1_000_000)

	ok := st.OnDamage(p, b, nil, nil, nil, 10_000, int32(HitInvincible), 990_000, 1_000_000, nil, nil, 1000)
	require.False(t, ok)
	require.Equal(t, int64(0), st.Encounter.FightStart)
}

func TestState_OnDamage_NegativeOvershootClampedOnNonPlayerTarget(t *testing.T) {
	st, _, _ := newTestState(t)
	p := player(1, "Striker", 102, 100_000)
	b := boss(2, "Veskal", 900, 1_000_000)

	skillID := uint32(16120)
	// boss at 500 hp takes a 2000 hit: event reports cur_hp=-1500 (overshoot).
	st.OnDamage(p, b, nil, &skillID, nil, 2000, 0, -1500, 1_000_000, nil, nil, 1000)

	require.Equal(t, int64(500), st.Encounter.Entities["Striker"].DamageStats.DamageDealt)
}

func TestState_OnDamage_BossOnlyDamageFiltersNonBossTargets(t *testing.T) {
	st, _, _ := newTestState(t)
	st.BossOnlyDamage = true

	p := player(1, "Striker", 102, 100_000)
	trash := &entitytracker.Entity{ID: 3, EntityType: entitytracker.Monster, Name: "Trash", MaxHP: 1000, CurrentHP: 1000}

	skillID := uint32(16120)
	ok := st.OnDamage(p, trash, nil, &skillID, nil, 500, 0, 500, 1000, nil, nil, 1000)
	require.False(t, ok)
	require.Equal(t, int64(0), st.Encounter.FightStart)
}

func TestState_OnDamage_HyperAwakeningExcludesNonHATBuffs(t *testing.T) {
	st, _, _ := newTestState(t)
	p := player(1, "Striker", 102, 100_000)
	b := boss(2, "Veskal", 900, 1_000_000)

	hatSkill := uint32(19990) // Surge Cannon, category hyperawakening
	supportBuff := statustracker.Effect{
		StatusEffectID: 211400,
		InstanceID:     1,
		TargetID:       p.ID,
		Source:         ptrBuff(st, 211400),
	}

	st.OnDamage(p, b, nil, &hatSkill, nil, 10_000, 0, 990_000, 1_000_000, []statustracker.Effect{supportBuff}, nil, 1000)

	skill := st.Encounter.Entities["Striker"].Skills[hatSkill]
	require.NotNil(t, skill)
	require.Empty(t, skill.BuffedBy, "non-HAT buff must not be attributed to a hyper-awakening hit")
}

func TestState_OnDamage_StabilizedStatusGatedByHPFraction(t *testing.T) {
	st, _, _ := newTestState(t)
	p := player(1, "Striker", 102, 100_000)
	p.CurrentHP = 50_000 // 50%, below the 0.65 gate
	b := boss(2, "Veskal", 900, 1_000_000)

	skillID := uint32(16120)
	stabilized := statustracker.Effect{
		StatusEffectID: 211420,
		InstanceID:     1,
		TargetID:       p.ID,
		Source:         ptrBuff(st, 211420),
	}

	st.OnDamage(p, b, nil, &skillID, nil, 10_000, 0, 990_000, 1_000_000, []statustracker.Effect{stabilized}, nil, 1000)

	skill := st.Encounter.Entities["Striker"].Skills[skillID]
	require.Empty(t, skill.BuffedBy, "Stabilized Status must not apply below the 0.65 hp-fraction gate")
}

func TestState_OnDamage_ClassifiesSupportIdentityAndHATBuffs(t *testing.T) {
	statics := &statictable.Tables{
		Npcs:         map[uint32]statictable.NpcTemplate{900: {ID: 900, Name: "Veskal", Grade: "raid", NpcType: "boss"}},
		Skills:       map[uint32]statictable.SkillData{16120: {ID: 16120, Name: "Focused Thrust", ClassID: 102}},
		SkillEffects: map[uint32]statictable.SkillEffectData{},
		SkillBuffs: map[uint32]statictable.SkillBuffData{
			500: {ID: 500, Name: "Heavenly Blessings", Category: "buff", BuffType: 1, BuffCategory: "classskill", Target: "PARTY", SourceClassID: 105},
			501: {ID: 501, Name: "Ark of Retribution", Category: "buff", BuffType: 1, BuffCategory: "identity", Target: "PARTY", SourceClassID: 105},
			502: {ID: 502, Name: "Surge Overdrive", Category: "buff", HyperAwakeningTechnique: true},
		},
		ValidZones:   map[uint32]bool{},
		StatTypes:    map[uint8]string{},
		ClassNames:   map[int32]string{},
		SupportClass: map[int32]bool{105: true},
	}
	persister := &fakePersister{}
	emitter := &fakeEmitter{}
	st := New(statics, persister, emitter, fakeStats{}, fakeTimeSync{}, "test")

	p := player(1, "Striker", 102, 100_000)
	b := boss(2, "Veskal", 900, 1_000_000)
	skillID := uint32(16120)

	buffs := []statustracker.Effect{
		{StatusEffectID: 500, InstanceID: 1, TargetID: p.ID, Source: ptrBuff(st, 500)},
		{StatusEffectID: 501, InstanceID: 2, TargetID: p.ID, Source: ptrBuff(st, 501)},
		{StatusEffectID: 502, InstanceID: 3, TargetID: p.ID, Source: ptrBuff(st, 502)},
	}

	st.OnDamage(p, b, nil, &skillID, nil, 10_000, 0, 990_000, 1_000_000, buffs, nil, 1000)

	stats := st.Encounter.Entities["Striker"].DamageStats
	require.Equal(t, int64(10_000), stats.BuffedBySupport, "classskill buff with damage-amp + party target from a support class")
	require.Equal(t, int64(10_000), stats.BuffedByIdentity, "identity buff from a support class")
	require.Equal(t, int64(10_000), stats.BuffedByHAT, "HAT-technique-tagged buff")

	skill := st.Encounter.Entities["Striker"].Skills[skillID]
	require.Equal(t, int64(10_000), skill.BuffedBySupport)
	require.Equal(t, int64(10_000), skill.BuffedByIdentity)
	require.Equal(t, int64(10_000), skill.BuffedByHAT)
}

func ptrBuff(st *State, id uint32) *statictable.SkillBuffData {
	b := st.statics.SkillBuffs[id]
	return &b
}

func TestState_OnInitEnv_RetainsOnlyLocalAndDamagingEntities(t *testing.T) {
	st, _, _ := newTestState(t)
	p := player(1, "Striker", 102, 100_000)
	b := boss(2, "Veskal", 900, 1_000_000)
	skillID := uint32(16120)
	st.OnDamage(p, b, nil, &skillID, nil, 10_000, 0, 990_000, 1_000_000, nil, nil, 1000)

	newLocal := player(1, "Striker", 102, 100_000)
	st.OnInitEnv(context.Background(), newLocal)

	require.Equal(t, int64(0), st.Encounter.FightStart)
	for name, e := range st.Encounter.Entities {
		if name == "Striker" {
			continue
		}
		require.Fail(t, "unexpected retained entity", name)
		_ = e
	}
}

func TestState_OnNewPC_IdempotentAndNeverOverwritesCharacterID(t *testing.T) {
	st, _, _ := newTestState(t)
	e := &entitytracker.Entity{ID: 5, Name: "Bard", EntityType: entitytracker.Player, CharacterID: 99, MaxHP: 100, CurrentHP: 90}
	st.OnNewPC(e)

	e2 := &entitytracker.Entity{ID: 5, Name: "Bard", EntityType: entitytracker.Player, CharacterID: 0, MaxHP: 100, CurrentHP: 80}
	st.OnNewPC(e2)

	require.EqualValues(t, 99, st.Encounter.Entities["Bard"].CharacterID)
}

func TestState_OnDeath_ZombieMismatchedIDIsNoOp(t *testing.T) {
	st, _, _ := newTestState(t)
	p := player(1, "Striker", 102, 100_000)
	st.OnNewPC(p)

	st.OnDeath(999, entitytracker.Player, 0, 5000)

	require.False(t, st.Encounter.Entities["Striker"].IsDead)
}

func TestState_SoftReset_KeepsOnlyPlayersAndZeroesStats(t *testing.T) {
	st, _, _ := newTestState(t)
	p := player(1, "Striker", 102, 100_000)
	b := boss(2, "Veskal", 900, 1_000_000)
	skillID := uint32(16120)
	st.OnDamage(p, b, nil, &skillID, nil, 10_000, 0, 990_000, 1_000_000, nil, nil, 1000)

	st.SoftReset(false)

	require.Contains(t, st.Encounter.Entities, "Striker")
	require.NotContains(t, st.Encounter.Entities, "Veskal")
	require.Equal(t, int64(0), st.Encounter.Entities["Striker"].DamageStats.DamageDealt)
	require.Equal(t, int64(0), st.Encounter.FightStart)
}

func TestState_SetRaidDifficulty(t *testing.T) {
	st, _, _ := newTestState(t)
	st.SetRaidDifficulty(2)
	require.Equal(t, "Inferno", st.RaidDifficulty)

	st.SetRaidDifficulty(99)
	require.Equal(t, "Inferno", st.RaidDifficulty, "unknown zone level must not clear the difficulty")
}

func TestState_OnShieldAppliedAndUsed_Bilateral(t *testing.T) {
	st, _, _ := newTestState(t)
	src := player(1, "Bard", 105, 100_000)
	tgt := player(2, "Striker", 102, 100_000)
	st.OnNewPC(src)
	st.OnNewPC(tgt)

	st.OnShieldApplied("Bard", "Striker", 900000, 5000)
	require.EqualValues(t, 5000, st.Encounter.Entities["Bard"].DamageStats.ShieldsGiven)
	require.EqualValues(t, 5000, st.Encounter.Entities["Striker"].DamageStats.ShieldsReceived)
	require.EqualValues(t, 5000, st.Encounter.EncounterDamageStats.TotalShielding)

	st.OnShieldUsed("Bard", "Striker", 900000, 3000)
	require.EqualValues(t, 3000, st.Encounter.Entities["Striker"].DamageStats.DamageAbsorbed)
	require.EqualValues(t, 3000, st.Encounter.Entities["Bard"].DamageStats.AbsorbedByOthers)
	require.EqualValues(t, 3000, st.Encounter.EncounterDamageStats.TotalEffectiveShielding)
}

func TestState_OnNewNPC_PromotesHigherMaxHPCandidateOverExistingBoss(t *testing.T) {
	st, _, _ := newTestState(t)
	st.OnNewNPC(boss(1, "Veskal", 900, 500_000))
	require.Equal(t, "Veskal", st.Encounter.CurrentBossName)

	st.OnNewNPC(boss(2, "Alaric", 920, 2_000_000))
	require.Equal(t, "Alaric", st.Encounter.CurrentBossName)
}

func TestState_OnPhaseTransition_ClearSavesAndMarksResetting(t *testing.T) {
	st, persister, emitter := newTestState(t)
	p := player(1, "Striker", 102, 100_000)
	b := boss(2, "Veskal", 900, 1_000_000)
	skillID := uint32(16120)
	st.OnDamage(p, b, nil, &skillID, nil, 500_000, 0, 500_000, 1_000_000, nil, nil, 1000)

	st.OnPhaseTransition(context.Background(), 0)

	require.True(t, st.Resetting)
	require.Len(t, persister.rows, 1)
	require.Contains(t, emitter.events, "phase-transition")
}

func TestState_OnPhaseTransition_NoopSignalsDoNotSave(t *testing.T) {
	st, persister, _ := newTestState(t)
	st.OnPhaseTransition(context.Background(), 27)
	require.Empty(t, persister.rows)
	require.False(t, st.Resetting)
}
