package dispatch

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/stretchr/testify/require"

	"github.com/skirmishmeter/meter/internal/aggregator/encounter"
	"github.com/skirmishmeter/meter/internal/aggregator/entitytracker"
	"github.com/skirmishmeter/meter/internal/aggregator/idtracker"
	"github.com/skirmishmeter/meter/internal/aggregator/partytracker"
	"github.com/skirmishmeter/meter/internal/aggregator/statictable"
	"github.com/skirmishmeter/meter/internal/aggregator/statustracker"
	"github.com/skirmishmeter/meter/internal/capture"
	"github.com/skirmishmeter/meter/internal/decrypt"
	"github.com/skirmishmeter/meter/internal/events"
	"github.com/skirmishmeter/meter/internal/persistence/persistencetest"
)

// --- tiny little-endian payload builder, the encode-side mirror of
// internal/packet.Reader, kept local to this test file. ---

type writer struct{ buf []byte }

func (w *writer) u16(v uint16) { var b [2]byte; binary.LittleEndian.PutUint16(b[:], v); w.buf = append(w.buf, b[:]...) }
func (w *writer) u32(v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); w.buf = append(w.buf, b[:]...) }
func (w *writer) u64(v uint64) { var b [8]byte; binary.LittleEndian.PutUint64(b[:], v); w.buf = append(w.buf, b[:]...) }
func (w *writer) i32(v int32)  { w.u32(uint32(v)) }
func (w *writer) i64(v int64)  { w.u64(uint64(v)) }
func (w *writer) f32(v float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	w.buf = append(w.buf, b[:]...)
}
func (w *writer) byteVal(v byte) { w.buf = append(w.buf, v) }
func (w *writer) str(s string) {
	for _, r := range utf16.Encode([]rune(s)) {
		w.u16(r)
	}
	w.u16(0)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *encounter.State, *persistencetest.Fake) {
	t.Helper()
	statics := &statictable.Tables{
		Npcs:         map[uint32]statictable.NpcTemplate{900: {ID: 900, Name: "Veskal", Grade: "raid", NpcType: "boss"}},
		Skills:       map[uint32]statictable.SkillData{16120: {ID: 16120, Name: "Focused Thrust", ClassID: 102}},
		SkillEffects: map[uint32]statictable.SkillEffectData{},
		SkillBuffs:   map[uint32]statictable.SkillBuffData{},
		ValidZones:   map[uint32]bool{},
		StatTypes:    map[uint8]string{},
		ClassNames:   map[int32]string{},
		SupportClass: map[int32]bool{},
	}

	persister := persistencetest.New()
	emitter := events.NewLocal(16)

	state := encounter.New(statics, persister, emitter, nil, nil, "test")

	ids := idtracker.New()
	parties := partytracker.New(ids)
	statuses := statustracker.New()
	entities := entitytracker.New(statics, ids, parties, statuses)

	d := New(Trackers{Entities: entities, Statuses: statuses, IDs: ids, Parties: parties}, state, decrypt.NoopDecryptor{}, ParserOptions{
		MinBossHP:                  500_000,
		CaptureDamagePacketTimeout: 10 * time.Second,
	})
	return d, state, persister
}

func TestDispatch_CleanKillPersistsWithRaidClear(t *testing.T) {
	d, state, persister := newTestDispatcher(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	initEnv := &writer{}
	initEnv.u64(100)
	d.Dispatch(ctx, capture.Packet{OpCode: uint16(OpInitEnv), Payload: initEnv.buf}, base)

	newPC := &writer{}
	newPC.u64(100)
	newPC.str("A")
	newPC.u64(1100)
	newPC.i32(102)
	newPC.f32(1700)
	newPC.i64(100_000)
	newPC.i64(100_000)
	d.Dispatch(ctx, capture.Packet{OpCode: uint16(OpNewPC), Payload: newPC.buf}, base)

	newNpc := &writer{}
	newNpc.u64(900)
	newNpc.u32(900)
	newNpc.u16(1)
	newNpc.i64(1_000_000)
	newNpc.i64(1_000_000)
	d.Dispatch(ctx, capture.Packet{OpCode: uint16(OpNewNpc), Payload: newNpc.buf}, base)
	require.Equal(t, "Veskal", state.Encounter.CurrentBossName)

	skillStart := &writer{}
	skillStart.u64(100)
	skillStart.u32(16120)
	skillStart.byteVal(0)
	skillStart.byteVal(0)
	skillStart.byteVal(0)
	skillStart.byteVal(0)
	skillStart.byteVal(0)
	skillStart.byteVal(0)
	d.Dispatch(ctx, capture.Packet{OpCode: uint16(OpSkillStartNotify), Payload: skillStart.buf}, base.Add(10*time.Millisecond))

	dmg := &writer{}
	dmg.u64(100)
	dmg.u32(16120)
	dmg.u32(0)
	dmg.u16(1)
	dmg.u64(900)
	dmg.i64(400_000)
	dmg.i32(0x01) // hit_flag = critical
	dmg.i64(600_000)
	dmg.i64(1_000_000)
	d.Dispatch(ctx, capture.Packet{OpCode: uint16(OpSkillDamageNotify), Payload: dmg.buf}, base.Add(20*time.Millisecond))

	require.Equal(t, int64(400_000), state.Encounter.EncounterDamageStats.TotalDamageDealt)
	require.Equal(t, int64(400_000), state.Encounter.Entities["A"].DamageStats.CritDamage)

	deathPkt := &writer{}
	deathPkt.u64(900)
	d.Dispatch(ctx, capture.Packet{OpCode: uint16(OpDeathNotify), Payload: deathPkt.buf}, base.Add(30*time.Millisecond))
	require.True(t, state.Encounter.Entities["Veskal"].IsDead)

	d.Dispatch(ctx, capture.Packet{OpCode: uint16(OpRaidBossKillNotify)}, base.Add(40*time.Millisecond))

	require.Equal(t, 1, persister.Len())
	require.True(t, persister.Rows[0].RaidClear)
}

func TestDispatch_SkillDamageGatedByRaidEndCooldown(t *testing.T) {
	d, state, _ := newTestDispatcher(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	d.Dispatch(ctx, capture.Packet{OpCode: uint16(OpRaidResult)}, base)
	require.False(t, d.raidEndAt.IsZero())

	dmg := &writer{}
	dmg.u64(1)
	dmg.u32(1)
	dmg.u32(0)
	dmg.u16(1)
	dmg.u64(2)
	dmg.i64(100)
	dmg.i32(0)
	dmg.i64(900)
	dmg.i64(1000)
	d.Dispatch(ctx, capture.Packet{OpCode: uint16(OpSkillDamageNotify), Payload: dmg.buf}, base.Add(2*time.Second))

	require.Equal(t, int64(0), state.Encounter.EncounterDamageStats.TotalDamageDealt)

	d.Dispatch(ctx, capture.Packet{OpCode: uint16(OpSkillDamageNotify), Payload: dmg.buf}, base.Add(11*time.Second))
	require.NotZero(t, state.Encounter.FightStart, "cooldown has elapsed: the packet is now processed")
	require.Equal(t, int64(0), state.Encounter.EncounterDamageStats.TotalDamageDealt, "neither side is a tracked Player, so no player-facing totals move")
}

func TestDispatch_TriggerStartNoopSignalsDoNotEndEncounter(t *testing.T) {
	d, state, persister := newTestDispatcher(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	for _, signal := range []int32{27, 10, 11} {
		p := &writer{}
		p.i32(signal)
		d.Dispatch(ctx, capture.Packet{OpCode: uint16(OpTriggerStartNotify), Payload: p.buf}, base)
	}

	require.False(t, state.Resetting)
	require.Equal(t, 0, persister.Len())
}

func TestDispatch_PartyInfoRecognizesLocalPlayerFromCache(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	d.opts.LocalPlayers = entitytracker.LocalPlayers{
		idtracker.CharacterID(1100): {Name: "A", Count: 3},
	}
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	initEnv := &writer{}
	initEnv.u64(100)
	d.Dispatch(ctx, capture.Packet{OpCode: uint16(OpInitEnv), Payload: initEnv.buf}, base)

	newPC := &writer{}
	newPC.u64(200)
	newPC.str("Stranger")
	newPC.u64(1100)
	newPC.i32(102)
	newPC.f32(1500)
	newPC.i64(1_000_000)
	newPC.i64(1_000_000)
	d.Dispatch(ctx, capture.Packet{OpCode: uint16(OpNewPC), Payload: newPC.buf}, base)

	party := &writer{}
	party.i32(1)
	party.i32(1)
	party.u16(1)
	party.u64(1100)
	party.str("Stranger")
	d.Dispatch(ctx, capture.Packet{OpCode: uint16(OpPartyInfo), Payload: party.buf}, base)

	require.Equal(t, idtracker.CharacterID(1100), d.trackers.Entities.LocalCharacterID(),
		"the cached character id from local_players.json promotes that roster member to local player")
	require.Equal(t, idtracker.EntityID(200), d.trackers.Entities.LocalEntityID())
}

func TestDispatch_UnknownOpCodeIsIgnored(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	require.NotPanics(t, func() {
		d.Dispatch(context.Background(), capture.Packet{OpCode: 65000, Payload: []byte{1, 2, 3}}, time.Now())
	})
}
