package models

import (
	"strings"
	"unicode"
)

// roleStopWords are replies that can never be a professional role: greetings,
// confirmations, and conversational filler in Spanish and English.
var roleStopWords = map[string]bool{
	"hola": true, "buenas": true, "buenos dias": true, "buenas tardes": true,
	"buenas noches": true, "hey": true, "hello": true, "hi": true,
	"si": true, "sí": true, "no": true, "ok": true, "okay": true, "vale": true,
	"claro": true, "gracias": true, "bien": true, "dale": true, "listo": true,
	"que": true, "qué": true, "porque": true, "por que": true, "aja": true,
	"yes": true, "yeah": true, "nope": true, "thanks": true,
}

// roleTokens are words that mark a reply as a recognizable professional role.
var roleTokens = []string{
	"director", "directora", "gerente", "jefe", "jefa", "coordinador",
	"coordinadora", "encargado", "encargada", "responsable", "analista",
	"consultor", "consultora", "asesor", "asesora", "vendedor", "vendedora",
	"ejecutivo", "ejecutiva", "fundador", "fundadora", "dueño", "dueña",
	"propietario", "propietaria", "emprendedor", "emprendedora", "ceo", "cto",
	"cmo", "coo", "marketing", "ventas", "comercial", "ingeniero", "ingeniera",
	"abogado", "abogada", "contador", "contadora", "medico", "médico", "doctora",
	"doctor", "estudiante", "freelance", "freelancer", "independiente",
	"manager", "founder", "owner", "developer", "designer", "diseñador",
	"diseñadora", "administrador", "administradora", "supervisor", "supervisora",
}

// roleSynonyms maps common role phrasings to a canonical label.
var roleSynonyms = map[string]string{
	"ceo":                    "CEO",
	"dueño":                  "Propietario de Negocio",
	"dueña":                  "Propietaria de Negocio",
	"dueño de negocio":       "Propietario de Negocio",
	"propietario":            "Propietario de Negocio",
	"propietaria":            "Propietaria de Negocio",
	"emprendedor":            "Emprendedor",
	"emprendedora":           "Emprendedora",
	"freelance":              "Freelancer",
	"freelancer":             "Freelancer",
	"independiente":          "Freelancer",
	"vendedor":               "Ejecutivo de Ventas",
	"vendedora":              "Ejecutiva de Ventas",
	"gerente de ventas":      "Gerente de Ventas",
	"gerente de marketing":   "Gerente de Marketing",
	"director de marketing":  "Director de Marketing",
	"directora de marketing": "Directora de Marketing",
	"estudiante":             "Estudiante",
}

// IsValidRole reports whether candidate looks like a professional role rather
// than a greeting, filler word, or noise. Numeric-only strings and single
// generic words are rejected so the consent flow can re-prompt instead of
// storing junk.
func IsValidRole(candidate string) bool {
	normalized := normalizeRoleText(candidate)
	if normalized == "" {
		return false
	}
	if roleStopWords[normalized] {
		return false
	}
	if isNumericOnly(normalized) {
		return false
	}
	words := strings.Fields(normalized)
	for _, w := range words {
		for _, token := range roleTokens {
			if w == token {
				return true
			}
		}
	}
	// No recognized role token: accept only multi-word answers that are not
	// stop-word sequences, e.g. "encargada de compras" already matched above,
	// but "gestora de proyectos" lands here.
	if len(words) >= 2 && len(normalized) >= 8 {
		for _, w := range words {
			if isNumericOnly(w) {
				return false
			}
		}
		return true
	}
	return false
}

// CanonicalRole normalizes an accepted role reply. Known synonyms map to their
// canonical label; anything else is title-cased as given.
func CanonicalRole(candidate string) string {
	normalized := normalizeRoleText(candidate)
	if canonical, ok := roleSynonyms[normalized]; ok {
		return canonical
	}
	return titleCase(strings.TrimSpace(candidate))
}

func normalizeRoleText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".,;:!¡¿?\"'")
	return strings.Join(strings.Fields(s), " ")
}

func isNumericOnly(s string) bool {
	seen := false
	for _, r := range s {
		if unicode.IsDigit(r) {
			seen = true
			continue
		}
		if unicode.IsSpace(r) || r == '.' || r == ',' || r == '-' {
			continue
		}
		return false
	}
	return seen
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		if len(runes) > 0 {
			runes[0] = unicode.ToUpper(runes[0])
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
