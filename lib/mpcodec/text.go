package mpcodec

import (
	"strings"
	"unicode/utf8"

	ej "golang.org/x/text/encoding/japanese"
	tr "golang.org/x/text/transform"
)

type TextEncoding int

const (
	TextUTF8 TextEncoding = iota
	TextShiftJIS
	TextLossy // Shift_JIS with replacement characters
)

func validUTF8(s string) bool {
	return utf8.ValidString(s)
}

// RecoverText turns string bytes of unknown encoding into text.
// Never fails; see RecoverTextDetail for order.
func RecoverText(b []byte) string {
	s, _ := RecoverTextDetail(b)
	return s
}

// RecoverTextDetail tries UTF-8, then clean Shift_JIS, and settles
// for Shift_JIS with U+FFFD substitutions.
// Cards saved by older japanese builds are Shift_JIS (CP932 really;
// x/text's ShiftJIS decoder covers the CP932 extensions).
func RecoverTextDetail(b []byte) (string, TextEncoding) {
	if utf8.Valid(b) {
		return string(b), TextUTF8
	}
	s, clean := decodeSJIS(b)
	if clean {
		return s, TextShiftJIS
	}
	return s, TextLossy
}

// x/text substitutes U+FFFD for anything it can't map instead of
// erroring. U+FFFD has no Shift_JIS encoding, so its presence
// means lossy decode.
func decodeSJIS(b []byte) (s string, clean bool) {
	out, _, err := tr.Bytes(ej.ShiftJIS.NewDecoder(), b)
	if err != nil {
		return strings.ToValidUTF8(string(b), string(utf8.RuneError)), false
	}
	s = string(out)
	return s, !strings.ContainsRune(s, utf8.RuneError)
}
