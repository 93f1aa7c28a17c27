// Package checksum implements the CRC-32/ISO-HDLC integrity code attached to
// every chat message: reflected polynomial 0xEDB88320, initial register
// 0xFFFFFFFF, final XOR 0xFFFFFFFF. Server and client both import this
// package, so the table generation and update logic cannot diverge between
// the two ends of the wire.
package checksum

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrMalformedCode is returned when a wire string is neither a 32-character
// binary code nor an 8-digit hexadecimal code.
var ErrMalformedCode = errors.New("malformed checksum code")

const poly uint32 = 0xEDB88320

var (
	tableOnce sync.Once
	table     [256]uint32
)

// crcTable builds the 256-entry lookup table on first use and reuses it for
// every subsequent call.
func crcTable() *[256]uint32 {
	tableOnce.Do(func() {
		for n := 0; n < 256; n++ {
			c := uint32(n)
			for k := 0; k < 8; k++ {
				if c&1 == 1 {
					c = poly ^ (c >> 1)
				} else {
					c >>= 1
				}
			}
			table[n] = c
		}
	})
	return &table
}

// Compute returns the CRC-32 code of text as an unsigned 32-bit value.
func Compute(text string) uint32 {
	t := crcTable()
	reg := ^uint32(0)
	for i := 0; i < len(text); i++ {
		reg = (reg >> 8) ^ t[(reg^uint32(text[i]))&0xFF]
	}
	return ^reg
}

// FormatBinary renders a code in the canonical wire form: a zero-padded
// 32-character binary string.
func FormatBinary(code uint32) string {
	return fmt.Sprintf("%032b", code)
}

// FormatHex renders a code as 8 uppercase hexadecimal digits. This form is
// diagnostic only; frames always carry the binary form.
func FormatHex(code uint32) string {
	return fmt.Sprintf("%08X", code)
}

// ParseCode decodes a wire string into a code. The canonical 32-character
// binary form and the 8-digit hexadecimal form (case-insensitive) are both
// accepted.
func ParseCode(wire string) (uint32, error) {
	switch len(wire) {
	case 32:
		v, err := strconv.ParseUint(wire, 2, 32)
		if err != nil {
			return 0, errors.Wrap(ErrMalformedCode, wire)
		}
		return uint32(v), nil
	case 8:
		v, err := strconv.ParseUint(strings.ToLower(wire), 16, 32)
		if err != nil {
			return 0, errors.Wrap(ErrMalformedCode, wire)
		}
		return uint32(v), nil
	default:
		return 0, errors.Wrapf(ErrMalformedCode, "length %d", len(wire))
	}
}

// Verify recomputes the code for text and compares it to the transmitted
// wire string. A malformed wire string is a mismatch, not an error.
func Verify(text, wire string) bool {
	code, err := ParseCode(wire)
	if err != nil {
		return false
	}
	return code == Compute(text)
}

// Info describes a computed code in every representation, for diagnostics.
type Info struct {
	Input       string `json:"input"`
	InputLength int    `json:"inputLength"`
	Signed      int32  `json:"crcSigned"`
	Unsigned    uint32 `json:"crcUnsigned"`
	Hex         string `json:"hex"`
	Binary      string `json:"binary"`
}

// Describe computes the code for text and reports all of its forms.
func Describe(text string) Info {
	code := Compute(text)
	return Info{
		Input:       text,
		InputLength: len(text),
		Signed:      int32(code),
		Unsigned:    code,
		Hex:         FormatHex(code),
		Binary:      FormatBinary(code),
	}
}
