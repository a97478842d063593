package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// LocalPlayerRecord mirrors one local_players.json entry: a character id
// this process has previously identified as "self", by name, with how
// many runs it has been seen under.
type LocalPlayerRecord struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// LoadLocalPlayers reads the character_id -> {name, count} cache from
// path. A missing file yields an empty cache rather than an error, same
// as Load does for the main config file.
func LoadLocalPlayers(path string) (map[uint64]LocalPlayerRecord, error) {
	players := make(map[uint64]LocalPlayerRecord)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return players, nil
		}
		return nil, fmt.Errorf("reading local players %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &players); err != nil {
		return nil, fmt.Errorf("parsing local players %s: %w", path, err)
	}
	return players, nil
}

// SaveLocalPlayers persists the cache back to path.
func SaveLocalPlayers(path string, players map[uint64]LocalPlayerRecord) error {
	data, err := json.MarshalIndent(players, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling local players: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing local players %s: %w", path, err)
	}
	return nil
}
