package dispatch

import (
	"github.com/skirmishmeter/meter/internal/packet"
)

// Typed packets the dispatcher decodes a payload into before routing.
// Field names are semantic (per spec.md's external interface table),
// not wire-level: the real framing is owned by whatever decoded the
// capture source's raw bytes into these op-codes in the first place.

type initEnvPacket struct {
	LocalPlayerID uint64
}

func decodeInitEnv(r *packet.Reader) (initEnvPacket, error) {
	id, err := r.ReadUint64()
	return initEnvPacket{LocalPlayerID: id}, err
}

type pcPacket struct {
	ID          uint64
	Name        string
	CharacterID uint64
	ClassID     int32
	GearLevel   float32
	CurrentHP   int64
	MaxHP       int64
}

func decodePC(r *packet.Reader) (pcPacket, error) {
	var p pcPacket
	var err error
	if p.ID, err = r.ReadUint64(); err != nil {
		return p, err
	}
	if p.Name, err = r.ReadString(); err != nil {
		return p, err
	}
	if p.CharacterID, err = r.ReadUint64(); err != nil {
		return p, err
	}
	if p.ClassID, err = r.ReadInt(); err != nil {
		return p, err
	}
	if p.GearLevel, err = r.ReadFloat(); err != nil {
		return p, err
	}
	if p.CurrentHP, err = r.ReadLong(); err != nil {
		return p, err
	}
	p.MaxHP, err = r.ReadLong()
	return p, err
}

type npcPacket struct {
	ObjectID  uint64
	NpcID     uint32
	Level     uint16
	MaxHP     int64
	CurrentHP int64
}

func decodeNPC(r *packet.Reader) (npcPacket, error) {
	var p npcPacket
	var err error
	if p.ObjectID, err = r.ReadUint64(); err != nil {
		return p, err
	}
	if p.NpcID, err = r.ReadUint32(); err != nil {
		return p, err
	}
	if p.Level, err = r.ReadUint16(); err != nil {
		return p, err
	}
	if p.MaxHP, err = r.ReadLong(); err != nil {
		return p, err
	}
	p.CurrentHP, err = r.ReadLong()
	return p, err
}

type npcSummonPacket struct {
	ObjectID  uint64
	NpcID     uint32
	OwnerID   uint64
	MaxHP     int64
	CurrentHP int64
}

func decodeNPCSummon(r *packet.Reader) (npcSummonPacket, error) {
	var p npcSummonPacket
	var err error
	if p.ObjectID, err = r.ReadUint64(); err != nil {
		return p, err
	}
	if p.NpcID, err = r.ReadUint32(); err != nil {
		return p, err
	}
	if p.OwnerID, err = r.ReadUint64(); err != nil {
		return p, err
	}
	if p.MaxHP, err = r.ReadLong(); err != nil {
		return p, err
	}
	p.CurrentHP, err = r.ReadLong()
	return p, err
}

type spawnPacket struct {
	ObjectID      uint64
	OwnerID       uint64
	SkillID       uint32
	SkillEffectID uint32
}

func decodeSpawn(r *packet.Reader) (spawnPacket, error) {
	var p spawnPacket
	var err error
	if p.ObjectID, err = r.ReadUint64(); err != nil {
		return p, err
	}
	if p.OwnerID, err = r.ReadUint64(); err != nil {
		return p, err
	}
	if p.SkillID, err = r.ReadUint32(); err != nil {
		return p, err
	}
	p.SkillEffectID, err = r.ReadUint32()
	return p, err
}

type removeObjectPacket struct {
	ObjectIDs []uint64
}

func decodeRemoveObject(r *packet.Reader) (removeObjectPacket, error) {
	count, err := r.ReadUint16()
	if err != nil {
		return removeObjectPacket{}, err
	}
	ids := make([]uint64, 0, count)
	for i := 0; i < int(count); i++ {
		id, err := r.ReadUint64()
		if err != nil {
			return removeObjectPacket{}, err
		}
		ids = append(ids, id)
	}
	return removeObjectPacket{ObjectIDs: ids}, nil
}

type zoneUnpublishPacket struct {
	ObjectID uint64
}

func decodeZoneUnpublish(r *packet.Reader) (zoneUnpublishPacket, error) {
	id, err := r.ReadUint64()
	return zoneUnpublishPacket{ObjectID: id}, err
}

type skillCastPacket struct {
	SourceID uint64
	SkillID  uint32
}

func decodeSkillCast(r *packet.Reader) (skillCastPacket, error) {
	var p skillCastPacket
	var err error
	if p.SourceID, err = r.ReadUint64(); err != nil {
		return p, err
	}
	p.SkillID, err = r.ReadUint32()
	return p, err
}

type skillStartPacket struct {
	SourceID    uint64
	SkillID     uint32
	TripodIndex [3]uint8
	TripodLevel [3]uint8
}

func decodeSkillStart(r *packet.Reader) (skillStartPacket, error) {
	var p skillStartPacket
	var err error
	if p.SourceID, err = r.ReadUint64(); err != nil {
		return p, err
	}
	if p.SkillID, err = r.ReadUint32(); err != nil {
		return p, err
	}
	for i := range p.TripodIndex {
		b, err := r.ReadByte()
		if err != nil {
			return p, err
		}
		p.TripodIndex[i] = b
	}
	for i := range p.TripodLevel {
		b, err := r.ReadByte()
		if err != nil {
			return p, err
		}
		p.TripodLevel[i] = b
	}
	return p, nil
}

type skillDamageEventWire struct {
	TargetID  uint64
	Damage    int64
	Modifier  int32
	CurrentHP int64
	MaxHP     int64
}

type skillDamagePacket struct {
	SourceID      uint64
	SkillID       uint32
	SkillEffectID uint32
	Events        []skillDamageEventWire
}

func decodeSkillDamage(r *packet.Reader) (skillDamagePacket, error) {
	var p skillDamagePacket
	var err error
	if p.SourceID, err = r.ReadUint64(); err != nil {
		return p, err
	}
	if p.SkillID, err = r.ReadUint32(); err != nil {
		return p, err
	}
	if p.SkillEffectID, err = r.ReadUint32(); err != nil {
		return p, err
	}
	count, err := r.ReadUint16()
	if err != nil {
		return p, err
	}
	p.Events = make([]skillDamageEventWire, 0, count)
	for i := 0; i < int(count); i++ {
		var e skillDamageEventWire
		if e.TargetID, err = r.ReadUint64(); err != nil {
			return p, err
		}
		if e.Damage, err = r.ReadLong(); err != nil {
			return p, err
		}
		if e.Modifier, err = r.ReadInt(); err != nil {
			return p, err
		}
		if e.CurrentHP, err = r.ReadLong(); err != nil {
			return p, err
		}
		if e.MaxHP, err = r.ReadLong(); err != nil {
			return p, err
		}
		p.Events = append(p.Events, e)
	}
	return p, nil
}

type partyMemberWire struct {
	CharacterID uint64
	Name        string
}

type partyInfoPacket struct {
	RaidInstanceID int32
	PartyInstanceID int32
	Members        []partyMemberWire
}

func decodePartyInfo(r *packet.Reader) (partyInfoPacket, error) {
	var p partyInfoPacket
	var err error
	if p.RaidInstanceID, err = r.ReadInt(); err != nil {
		return p, err
	}
	if p.PartyInstanceID, err = r.ReadInt(); err != nil {
		return p, err
	}
	count, err := r.ReadUint16()
	if err != nil {
		return p, err
	}
	p.Members = make([]partyMemberWire, 0, count)
	for i := 0; i < int(count); i++ {
		var m partyMemberWire
		if m.CharacterID, err = r.ReadUint64(); err != nil {
			return p, err
		}
		if m.Name, err = r.ReadString(); err != nil {
			return p, err
		}
		p.Members = append(p.Members, m)
	}
	return p, nil
}

type statusEffectAddPacket struct {
	TargetID       uint64
	SourceID       uint64
	StatusEffectID uint32
	InstanceID     uint32
	CustomID       uint32
	Value          int64
	ExpirationTime int64
}

func decodeStatusEffectAdd(r *packet.Reader) (statusEffectAddPacket, error) {
	var p statusEffectAddPacket
	var err error
	if p.TargetID, err = r.ReadUint64(); err != nil {
		return p, err
	}
	if p.SourceID, err = r.ReadUint64(); err != nil {
		return p, err
	}
	if p.StatusEffectID, err = r.ReadUint32(); err != nil {
		return p, err
	}
	if p.InstanceID, err = r.ReadUint32(); err != nil {
		return p, err
	}
	if p.CustomID, err = r.ReadUint32(); err != nil {
		return p, err
	}
	if p.Value, err = r.ReadLong(); err != nil {
		return p, err
	}
	p.ExpirationTime, err = r.ReadLong()
	return p, err
}

type statusEffectRemovePacket struct {
	TargetID    uint64
	InstanceIDs []uint32
}

func decodeStatusEffectRemove(r *packet.Reader) (statusEffectRemovePacket, error) {
	var p statusEffectRemovePacket
	var err error
	if p.TargetID, err = r.ReadUint64(); err != nil {
		return p, err
	}
	count, err := r.ReadUint16()
	if err != nil {
		return p, err
	}
	p.InstanceIDs = make([]uint32, 0, count)
	for i := 0; i < int(count); i++ {
		id, err := r.ReadUint32()
		if err != nil {
			return p, err
		}
		p.InstanceIDs = append(p.InstanceIDs, id)
	}
	return p, nil
}

type statusEffectSyncPacket struct {
	TargetID   uint64
	InstanceID uint32
	Value      int64
}

func decodeStatusEffectSync(r *packet.Reader) (statusEffectSyncPacket, error) {
	var p statusEffectSyncPacket
	var err error
	if p.TargetID, err = r.ReadUint64(); err != nil {
		return p, err
	}
	if p.InstanceID, err = r.ReadUint32(); err != nil {
		return p, err
	}
	p.Value, err = r.ReadLong()
	return p, err
}

type troopMemberUpdateMinPacket struct {
	CharacterID uint64
	InstanceID  uint32
	Value       int64
}

func decodeTroopMemberUpdateMin(r *packet.Reader) (troopMemberUpdateMinPacket, error) {
	var p troopMemberUpdateMinPacket
	var err error
	if p.CharacterID, err = r.ReadUint64(); err != nil {
		return p, err
	}
	if p.InstanceID, err = r.ReadUint32(); err != nil {
		return p, err
	}
	p.Value, err = r.ReadLong()
	return p, err
}

type idPacket struct {
	ID uint64
}

func decodeID(r *packet.Reader) (idPacket, error) {
	id, err := r.ReadUint64()
	return idPacket{ID: id}, err
}

type triggerStartPacket struct {
	Signal int32
}

func decodeTriggerStart(r *packet.Reader) (triggerStartPacket, error) {
	signal, err := r.ReadInt()
	return triggerStartPacket{Signal: signal}, err
}

type raidBeginPacket struct {
	RaidID uint32
}

func decodeRaidBegin(r *packet.Reader) (raidBeginPacket, error) {
	id, err := r.ReadUint32()
	return raidBeginPacket{RaidID: id}, err
}

type identityGaugePacket struct {
	PlayerID uint64
	Gauge1   uint32
	Gauge2   uint32
	Gauge3   uint32
}

func decodeIdentityGauge(r *packet.Reader) (identityGaugePacket, error) {
	var p identityGaugePacket
	var err error
	if p.PlayerID, err = r.ReadUint64(); err != nil {
		return p, err
	}
	if p.Gauge1, err = r.ReadUint32(); err != nil {
		return p, err
	}
	if p.Gauge2, err = r.ReadUint32(); err != nil {
		return p, err
	}
	p.Gauge3, err = r.ReadUint32()
	return p, err
}

type newTransitPacket struct {
	ChannelID uint32
}

func decodeNewTransit(r *packet.Reader) (newTransitPacket, error) {
	id, err := r.ReadUint32()
	return newTransitPacket{ChannelID: id}, err
}

type zoneMemberLoadStatusPacket struct {
	ZoneID    uint32
	ZoneLevel uint32
}

func decodeZoneMemberLoadStatus(r *packet.Reader) (zoneMemberLoadStatusPacket, error) {
	var p zoneMemberLoadStatusPacket
	var err error
	if p.ZoneID, err = r.ReadUint32(); err != nil {
		return p, err
	}
	p.ZoneLevel, err = r.ReadUint32()
	return p, err
}
