package statustracker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracker_RegisterAndGetStatusEffects(t *testing.T) {
	tr := New()
	tr.RegisterStatusEffect(ScopeLocal, Effect{
		StatusEffectID: 211400,
		InstanceID:     1,
		SourceID:       10,
		TargetID:       20,
		Category:       CategoryBuff,
	})

	onSource, onTarget := tr.GetStatusEffects(20, 999)
	require.Len(t, onSource, 1)
	require.Empty(t, onTarget)
	require.Equal(t, uint32(211400), onSource[0].StatusEffectID)
}

func TestTracker_RegisterStatusEffect_SameInstanceTwiceIsNoOp(t *testing.T) {
	tr := New()
	eff := Effect{StatusEffectID: 1, InstanceID: 5, TargetID: 20}
	tr.RegisterStatusEffect(ScopeLocal, eff)
	tr.RegisterStatusEffect(ScopeLocal, eff)

	require.Len(t, tr.registries[ScopeLocal], 1)
}

func TestTracker_RemoveStatusEffects_ShieldBroken(t *testing.T) {
	tr := New()
	tr.RegisterStatusEffect(ScopeParty, Effect{
		InstanceID: 7,
		TargetID:   20,
		Type:       EffectShield,
		Value:      500,
	})

	isShield, broken := tr.RemoveStatusEffects(ScopeParty, 20, []uint32{7}, "explicit")
	require.True(t, isShield)
	require.Len(t, broken, 1)
	require.Equal(t, int64(500), broken[0].Value)
}

func TestTracker_RemoveStatusEffects_ShieldFullyConsumedIsNotBroken(t *testing.T) {
	tr := New()
	tr.RegisterStatusEffect(ScopeParty, Effect{
		InstanceID: 7,
		TargetID:   20,
		Type:       EffectShield,
		Value:      0,
	})

	isShield, broken := tr.RemoveStatusEffects(ScopeParty, 20, []uint32{7}, "consumed")
	require.True(t, isShield)
	require.Empty(t, broken)
}

func TestTracker_SyncStatusEffect(t *testing.T) {
	tr := New()
	tr.RegisterStatusEffect(ScopeParty, Effect{InstanceID: 7, TargetID: 20, Value: 1000, Type: EffectShield})

	eff, oldValue, ok := tr.SyncStatusEffect(ScopeParty, 7, 20, 400)
	require.True(t, ok)
	require.Equal(t, int64(1000), oldValue)
	require.Equal(t, int64(400), eff.Value)
}

func TestTracker_RemoveLocalObject(t *testing.T) {
	tr := New()
	tr.RegisterStatusEffect(ScopeLocal, Effect{InstanceID: 1, TargetID: 20})
	tr.RegisterStatusEffect(ScopeParty, Effect{InstanceID: 2, TargetID: 20})

	tr.RemoveLocalObject(20)

	require.Empty(t, tr.registries[ScopeLocal])
	require.Len(t, tr.registries[ScopeParty], 1)
}
