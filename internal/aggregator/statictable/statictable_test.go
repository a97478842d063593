package statictable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tables, err := Load()
	require.NoError(t, err)
	require.NotNil(t, tables)

	boss, ok := tables.Npcs[900]
	require.True(t, ok)
	require.True(t, boss.IsRaidGrade())

	monster, ok := tables.Npcs[500]
	require.True(t, ok)
	require.False(t, monster.IsRaidGrade())
}

func TestLoad_IsIdempotent(t *testing.T) {
	a, err := Load()
	require.NoError(t, err)
	b, err := Load()
	require.NoError(t, err)
	require.Same(t, a, b)
}

func TestSkillName(t *testing.T) {
	tables := MustLoad()

	require.Equal(t, "Focused Thrust", tables.SkillName(16120))
	require.Equal(t, "424242", tables.SkillName(424242))
}

func TestSkillData_IsHyperAwakening(t *testing.T) {
	tables := MustLoad()

	require.True(t, tables.Skills[19990].IsHyperAwakening())
	require.False(t, tables.Skills[16120].IsHyperAwakening())
}

func TestSkillBuffData_Predicates(t *testing.T) {
	tables := MustLoad()

	support := tables.SkillBuffs[211400]
	require.True(t, support.IsDamageAmp())
	require.True(t, support.IsPartyTargeted())
	require.True(t, support.IsClassOrArkPassiveCategory())
	require.False(t, support.IsIdentityCategory())

	identity := tables.SkillBuffs[211410]
	require.True(t, identity.IsIdentityCategory())

	hat := tables.SkillBuffs[211430]
	require.True(t, hat.HyperAwakeningTechnique)
}

func TestIsSupportClass(t *testing.T) {
	tables := MustLoad()

	require.True(t, tables.IsSupportClass(105))
	require.False(t, tables.IsSupportClass(102))
}

func TestValidZones(t *testing.T) {
	tables := MustLoad()
	require.True(t, tables.ValidZones[30801])
	require.False(t, tables.ValidZones[99999])
}
