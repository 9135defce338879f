package service

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Capa L1: normalizacion. Funcion pura; ninguna decision de etiqueta.

var leetFold = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
	"8", "b",
	"@", "a",
	"$", "s",
)

var interiorBangRe = regexp.MustCompile(`([a-z])!([a-z])`)

// NormalizeText baja a minusculas, aplica NFKC, pliega leetspeak, quita
// emoji y variation selectors y colapsa espacios.
func NormalizeText(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case r >= 0x1F000 && r <= 0x1FAFF: // bloques de emoji
		case r >= 0xFE00 && r <= 0xFE0F: // variation selectors (skins)
		case r >= 0x2600 && r <= 0x27BF: // simbolos misc
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	text = interiorBangRe.ReplaceAllString(b.String(), "${1}i${2}")
	return foldLeetTokens(text)
}

// foldLeetTokens pliega leetspeak solo en tokens que mezclan letras con
// sustitutos ("s3x", "b@d"). Los numeros sueltos ("15") se conservan para
// las reglas de edad de la capa L2.
func foldLeetTokens(text string) string {
	fields := strings.Fields(text)
	for i, token := range fields {
		if tokenMixesLeet(token) {
			fields[i] = leetFold.Replace(token)
		}
	}
	return strings.Join(fields, " ")
}

func tokenMixesLeet(token string) bool {
	hasLetter, hasLeet := false, false
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z':
			hasLetter = true
		case (r >= '0' && r <= '9') || r == '@' || r == '$':
			hasLeet = true
		}
	}
	return hasLetter && hasLeet
}
