// Package bits provides typed views of sub-fields inside 32-bit register
// words. Register layouts declare each field once, with its offset and
// width, instead of scattering shift/mask arithmetic at call sites.
package bits

// Field is a contiguous run of bits inside a 32-bit word. Off is the bit
// position of the least significant bit, Width the number of bits.
type Field struct {
	Off   uint8
	Width uint8
}

// Mask returns the field's bit mask in word position.
func (f Field) Mask() uint32 {
	return ((uint32(1) << f.Width) - 1) << f.Off
}

// Get extracts the field's value from word.
func (f Field) Get(word uint32) uint32 {
	return (word & f.Mask()) >> f.Off
}

// Insert returns word with the field replaced by val. Bits of val outside
// the field width are discarded.
func (f Field) Insert(word, val uint32) uint32 {
	return (word &^ f.Mask()) | ((val << f.Off) & f.Mask())
}

// Max returns the largest value the field can hold.
func (f Field) Max() uint32 {
	return (uint32(1) << f.Width) - 1
}

// Flag is a single-bit field identified by its bit position.
type Flag uint8

// Mask returns the flag's bit mask.
func (b Flag) Mask() uint32 { return uint32(1) << b }

// Get reports whether the flag is set in word.
func (b Flag) Get(word uint32) bool { return word&b.Mask() != 0 }

// Set returns word with the flag set.
func (b Flag) Set(word uint32) uint32 { return word | b.Mask() }

// Clear returns word with the flag cleared.
func (b Flag) Clear(word uint32) uint32 { return word &^ b.Mask() }

// Insert returns word with the flag set or cleared according to on.
func (b Flag) Insert(word uint32, on bool) uint32 {
	if on {
		return b.Set(word)
	}
	return b.Clear(word)
}
