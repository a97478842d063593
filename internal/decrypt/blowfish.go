package decrypt

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blowfish"
)

// BlowfishKeyedDecryptor recovers Damage/Modifier from a per-session XOR
// keystream seeded by a Blowfish-derived key, the same ECB ciphering
// style the game's own client/server handshake uses for its packet
// stream. It is a stand-in for the real key-exchange-driven damage
// decryption, which depends on vendor-proprietary session state this
// repo never sees.
type BlowfishKeyedDecryptor struct {
	cipher         *blowfish.Cipher
	zoneInstanceID uint32
}

// NewBlowfishKeyedDecryptor derives a keystream cipher from key.
func NewBlowfishKeyedDecryptor(key []byte) (*BlowfishKeyedDecryptor, error) {
	c, err := blowfish.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating damage-field blowfish cipher: %w", err)
	}
	return &BlowfishKeyedDecryptor{cipher: c}, nil
}

// Decrypt XORs the event's Damage and Modifier against an 8-byte
// keystream block produced by encrypting the event's SkillID together
// with the current zone instance id, so the same skill recovers with the
// same block until the zone id rotates. Always succeeds: a
// keyed stub has no "wrong key" failure mode to simulate.
func (d *BlowfishKeyedDecryptor) Decrypt(event *DamageEvent) bool {
	var seed [8]byte
	binary.LittleEndian.PutUint32(seed[:4], event.SkillID)
	binary.LittleEndian.PutUint32(seed[4:], d.zoneInstanceID)
	var block [8]byte
	d.cipher.Encrypt(block[:], seed[:])

	keystream := binary.LittleEndian.Uint64(block[:])
	event.Damage ^= int64(keystream)
	event.Modifier ^= int32(keystream)
	return true
}

// UpdateZoneInstanceID implements ZoneRotator: a NewTransit packet
// rotates the channel id mixed into the keystream seed, the same way a
// real session key rotates on zone transfer.
func (d *BlowfishKeyedDecryptor) UpdateZoneInstanceID(id uint32) {
	d.zoneInstanceID = id
}
