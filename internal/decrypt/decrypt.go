// Package decrypt defines the seam through which the core reads
// decrypted damage fields. The real key exchange and per-event XOR
// recovery live in a vendor-proprietary component outside this repo;
// this package only declares the contract and a key-rotation stub.
package decrypt

// DamageEvent mirrors the wire fields of a skill damage event the core
// reads after decryption: the two fields the vendor protocol encrypts
// are Damage and Modifier (the hit-flag/hit-option nibbles).
type DamageEvent struct {
	SourceID  uint64
	TargetID  uint64
	SkillID   uint32
	Damage    int64
	Modifier  int32
	CurrentHP int64
	MaxHP     int64
}

// Decryptor decrypts a DamageEvent's Damage/Modifier fields in place.
// It reports false when the event could not be decrypted (stale key,
// unrecognized packet shape) — callers must drop the hit rather than
// account it with undecrypted numbers.
type Decryptor interface {
	Decrypt(event *DamageEvent) bool
}

// ZoneRotator is implemented by decryptors whose keystream depends on
// the current zone instance. NewTransit packets carry a fresh channel
// id the dispatcher forwards here; decryptors that don't key off the
// zone (NoopDecryptor) simply don't implement it. Kept separate from
// Decryptor so the hot path interface stays single-method.
type ZoneRotator interface {
	UpdateZoneInstanceID(id uint32)
}

// NoopDecryptor satisfies Decryptor for wire formats that ship damage
// fields in the clear. Decrypt is a pass-through that always succeeds.
type NoopDecryptor struct{}

// Decrypt implements Decryptor.
func (NoopDecryptor) Decrypt(*DamageEvent) bool { return true }
