package packet

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"
)

// BenchmarkReader_ReadByte exercises the single-byte hot path.
func BenchmarkReader_ReadByte(b *testing.B) {
	b.ReportAllocs()

	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i % 256)
	}

	b.ResetTimer()
	for range b.N {
		r := NewReader(data)
		for range 100 {
			if _, err := r.ReadByte(); err != nil {
				b.Fatal(err)
			}
		}
	}
}

// BenchmarkReader_ReadInt exercises int32 decode, the most common field
// width on SkillDamageNotify/SkillStartNotify payloads.
func BenchmarkReader_ReadInt(b *testing.B) {
	b.ReportAllocs()

	data := make([]byte, 1024)
	for i := 0; i < len(data)/4; i++ {
		binary.LittleEndian.PutUint32(data[i*4:], uint32(i))
	}

	b.ResetTimer()
	for range b.N {
		r := NewReader(data)
		for range 50 {
			if _, err := r.ReadInt(); err != nil {
				b.Fatal(err)
			}
		}
	}
}

// BenchmarkReader_ReadString_Short times a typical short player name.
func BenchmarkReader_ReadString_Short(b *testing.B) {
	b.ReportAllocs()

	data := encodeUTF16LEString("Striker")

	b.ResetTimer()
	for range b.N {
		r := NewReader(data)
		if _, err := r.ReadString(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkReader_ReadString_Long times a long string to catch any
// quadratic behavior in the append loop.
func BenchmarkReader_ReadString_Long(b *testing.B) {
	b.ReportAllocs()

	data := encodeUTF16LEString("ThisIsAnUnusuallyLongEntityOrSkillNameUsedToStressTheStringDecodePath")

	b.ResetTimer()
	for range b.N {
		r := NewReader(data)
		if _, err := r.ReadString(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkReader_ReadBytes times the zero-copy byte-slice path at a few sizes.
func BenchmarkReader_ReadBytes(b *testing.B) {
	sizes := []int{16, 64, 256, 1024}

	for _, size := range sizes {
		b.Run("size="+string(rune(size)), func(b *testing.B) {
			b.ReportAllocs()

			data := make([]byte, size*2)
			for i := range data {
				data[i] = byte(i % 256)
			}

			b.ResetTimer()
			for range b.N {
				r := NewReader(data)
				if _, err := r.ReadBytes(size); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkReader_MixedPacket mimics a SkillDamageNotify entry: a source
// name followed by a run of eight int32 fields.
func BenchmarkReader_MixedPacket(b *testing.B) {
	b.ReportAllocs()

	data := encodeUTF16LEString("Bard")

	intBuf := make([]byte, 4)
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint32(intBuf, uint32(i+1))
		data = append(data, intBuf...)
	}

	b.ResetTimer()
	for range b.N {
		r := NewReader(data)

		if _, err := r.ReadString(); err != nil {
			b.Fatal(err)
		}

		for range 8 {
			if _, err := r.ReadInt(); err != nil {
				b.Fatal(err)
			}
		}
	}
}

func encodeUTF16LEString(s string) []byte {
	encoded := utf16.Encode([]rune(s))
	data := make([]byte, 0, len(encoded)*2+2)
	buf := make([]byte, 2)
	for _, r := range encoded {
		binary.LittleEndian.PutUint16(buf, r)
		data = append(data, buf...)
	}
	return append(data, 0, 0)
}
