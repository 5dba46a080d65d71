package transformer

import (
	"strings"

	"graphetl/internal/record"

	"golang.org/x/text/unicode/norm"
)

const nbsp = "\u00a0"

// mojibake NBSP: UTF-8 bytes of U+00A0 decoded as Latin-1 and re-encoded.
const mojibakeNBSP = "\u00c2\u00a0"

var nbspReplacer = strings.NewReplacer(mojibakeNBSP, " ", nbsp, " ")

// Normalize rewrites string cells: NBSP (including its common mojibake
// form) becomes a plain space, the text is put in Unicode NFC, and with Trim
// set leading and trailing whitespace is removed. Other kinds are untouched.
//
// NFC matters for vertex ids: "é" precomposed and "e"+U+0301 would otherwise
// produce two different vertices.
type Normalize struct {
	Trim bool
}

func (n Normalize) Apply(r record.Row) record.Row {
	for i, c := range r.Cells {
		if c.Kind != record.KindString {
			continue
		}
		s := nbspReplacer.Replace(c.Str)
		if !norm.NFC.IsNormalString(s) {
			s = norm.NFC.String(s)
		}
		if n.Trim {
			s = strings.TrimSpace(s)
		}
		r.Cells[i].Str = s
	}
	return r
}
