// Package persistence is the encounter store: a pgx-backed implementation
// of encounter.Persister, plus the goose migrations that create its schema.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skirmishmeter/meter/internal/aggregator/encounter"
)

// PgPersister wraps a pgx connection pool and persists completed
// encounters to the encounters table.
type PgPersister struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and returns a PgPersister handle.
func New(ctx context.Context, dsn string) (*PgPersister, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &PgPersister{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (p *PgPersister) Close() {
	p.pool.Close()
}

// Pool returns the underlying pgx pool.
func (p *PgPersister) Pool() *pgxpool.Pool {
	return p.pool
}

// Save inserts a completed encounter and returns its row id.
func (p *PgPersister) Save(ctx context.Context, row encounter.PersistedEncounter) (int64, error) {
	encounterJSON, err := json.Marshal(row.Encounter)
	if err != nil {
		return 0, fmt.Errorf("marshaling encounter: %w", err)
	}
	damageLogJSON, err := json.Marshal(row.DamageLog)
	if err != nil {
		return 0, fmt.Errorf("marshaling damage log: %w", err)
	}
	identityLogJSON, err := json.Marshal(row.IdentityLog)
	if err != nil {
		return 0, fmt.Errorf("marshaling identity log: %w", err)
	}
	castLogJSON, err := json.Marshal(row.CastLog)
	if err != nil {
		return 0, fmt.Errorf("marshaling cast log: %w", err)
	}
	bossHPLogJSON, err := json.Marshal(row.BossHPLog)
	if err != nil {
		return 0, fmt.Errorf("marshaling boss hp log: %w", err)
	}
	partyInfoJSON, err := json.Marshal(row.PartyInfo)
	if err != nil {
		return 0, fmt.Errorf("marshaling party info: %w", err)
	}
	var playerInfosJSON []byte
	if row.PlayerInfos != nil {
		playerInfosJSON, err = json.Marshal(row.PlayerInfos)
		if err != nil {
			return 0, fmt.Errorf("marshaling player infos: %w", err)
		}
	}

	var id int64
	err = p.pool.QueryRow(ctx,
		`INSERT INTO encounters (
			fight_start, last_combat_packet, ntp_fight_start, current_boss_name,
			raid_difficulty, raid_difficulty_id, region, version,
			rdps_valid, raid_clear, damage_is_valid, manual,
			encounter, damage_log, identity_log, cast_log, boss_hp_log,
			party_info, player_infos
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		) RETURNING id`,
		row.Encounter.FightStart, row.Encounter.LastCombatPacket, row.NTPFightStart, row.Encounter.CurrentBossName,
		row.RaidDifficulty, row.RaidDifficultyID, row.Region, row.Version,
		row.RDPSValid, row.RaidClear, row.DamageIsValid, row.Manual,
		encounterJSON, damageLogJSON, identityLogJSON, castLogJSON, bossHPLogJSON,
		partyInfoJSON, playerInfosJSON,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting encounter for boss %q: %w", row.Encounter.CurrentBossName, err)
	}
	return id, nil
}
