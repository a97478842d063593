// Package partytracker resolves which raid/party instance a character or
// entity currently belongs to, and produces the ordered party-composition
// snapshot consumed by UI ticks.
package partytracker

import (
	"sort"

	"github.com/skirmishmeter/meter/internal/aggregator/idtracker"
)

// RaidInstanceID and PartyInstanceID are the two nested scoping ids a
// party-scoped packet is keyed by.
type RaidInstanceID int32
type PartyInstanceID int32

type assignment struct {
	raid  RaidInstanceID
	party PartyInstanceID
}

type member struct {
	characterID idtracker.CharacterID
	name        string
	order       int
}

// Tracker maps characters (and, transitively, entities) to their current
// party instance, and keeps a stable, insertion-ordered member list per
// party for UI snapshots.
type Tracker struct {
	ids *idtracker.Tracker

	charParty   map[idtracker.CharacterID]assignment
	entityParty map[idtracker.EntityID]PartyInstanceID
	members     map[PartyInstanceID][]member
	names       map[idtracker.CharacterID]string
	nextOrder   int
}

// New creates a tracker bound to the shared id tracker used to resolve
// entity ids to character ids when only an entity id is known.
func New(ids *idtracker.Tracker) *Tracker {
	return &Tracker{
		ids:         ids,
		charParty:   make(map[idtracker.CharacterID]assignment),
		entityParty: make(map[idtracker.EntityID]PartyInstanceID),
		members:     make(map[PartyInstanceID][]member),
		names:       make(map[idtracker.CharacterID]string),
	}
}

// Add upserts a character's party assignment. class is accepted for
// parity with the richer packet-handler variant (it is not required for
// composition output, which is name-only) and is otherwise unused here.
func (t *Tracker) Add(raid RaidInstanceID, party PartyInstanceID, characterID idtracker.CharacterID, entityID idtracker.EntityID, name string, class *int32) {
	t.charParty[characterID] = assignment{raid: raid, party: party}
	if entityID != 0 {
		t.entityParty[entityID] = party
	}
	t.names[characterID] = name

	list := t.members[party]
	for i, m := range list {
		if m.characterID == characterID {
			list[i].name = name
			t.members[party] = list
			return
		}
	}

	t.members[party] = append(list, member{characterID: characterID, name: name, order: t.nextOrder})
	t.nextOrder++
}

// Remove drops the character associated with name from the given party.
func (t *Tracker) Remove(party PartyInstanceID, name string) {
	list := t.members[party]
	for i, m := range list {
		if m.name == name {
			t.members[party] = append(list[:i], list[i+1:]...)
			delete(t.charParty, m.characterID)
			for entityID, p := range t.entityParty {
				if p == party {
					if charID, ok := t.ids.GetLocalCharacterID(entityID); ok && charID == m.characterID {
						delete(t.entityParty, entityID)
					}
				}
			}
			return
		}
	}
}

// ResetPartyMappings clears all party state, used on zone transition.
func (t *Tracker) ResetPartyMappings() {
	t.charParty = make(map[idtracker.CharacterID]assignment)
	t.entityParty = make(map[idtracker.EntityID]PartyInstanceID)
	t.members = make(map[PartyInstanceID][]member)
	t.names = make(map[idtracker.CharacterID]string)
	t.nextOrder = 0
}

// PartyOf resolves the party instance id for an entity, falling back to
// resolving its character id through the id tracker.
func (t *Tracker) PartyOf(entityID idtracker.EntityID) (PartyInstanceID, bool) {
	if p, ok := t.entityParty[entityID]; ok {
		return p, true
	}
	if charID, ok := t.ids.GetLocalCharacterID(entityID); ok {
		if a, ok := t.charParty[charID]; ok {
			return a.party, true
		}
	}
	return 0, false
}

// GetPartyComposition returns parties ordered by PartyInstanceID, each a
// list of member names in stable insertion order.
func (t *Tracker) GetPartyComposition() [][]string {
	partyIDs := make([]PartyInstanceID, 0, len(t.members))
	for id := range t.members {
		partyIDs = append(partyIDs, id)
	}
	sort.Slice(partyIDs, func(i, j int) bool { return partyIDs[i] < partyIDs[j] })

	out := make([][]string, 0, len(partyIDs))
	for _, id := range partyIDs {
		list := append([]member(nil), t.members[id]...)
		sort.SliceStable(list, func(i, j int) bool { return list[i].order < list[j].order })

		names := make([]string, 0, len(list))
		for _, m := range list {
			names = append(names, m.name)
		}
		out = append(out, names)
	}
	return out
}
