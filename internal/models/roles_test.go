package models

import "testing"

func TestIsValidRoleRejectsNoise(t *testing.T) {
	invalid := []string{
		"", "hola", "Hola!", "si", "sí", "no", "ok", "gracias",
		"123", "55 123", "hey", "buenas tardes",
	}
	for _, candidate := range invalid {
		if IsValidRole(candidate) {
			t.Errorf("expected %q to be rejected as role", candidate)
		}
	}
}

func TestIsValidRoleAcceptsProfessionalRoles(t *testing.T) {
	valid := []string{
		"Director de Marketing",
		"Directora de Marketing",
		"gerente",
		"Dueña de una papelería",
		"CEO",
		"gestora de proyectos",
		"freelancer",
	}
	for _, candidate := range valid {
		if !IsValidRole(candidate) {
			t.Errorf("expected %q to be accepted as role", candidate)
		}
	}
}

func TestIsValidRoleRejectsRolesWithTrailingNumbers(t *testing.T) {
	if IsValidRole("piso 3") {
		t.Error("multi-word answer containing a bare number should be rejected")
	}
}

func TestCanonicalRoleSynonyms(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"dueño de negocio", "Propietario de Negocio"},
		{"CEO", "CEO"},
		{"freelance", "Freelancer"},
		{"vendedora", "Ejecutiva de Ventas"},
	}
	for _, c := range cases {
		if got := CanonicalRole(c.in); got != c.want {
			t.Errorf("CanonicalRole(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCanonicalRoleTitleCasesUnknown(t *testing.T) {
	if got := CanonicalRole("directora de operaciones"); got != "Directora De Operaciones" {
		t.Errorf("unexpected canonicalization: %q", got)
	}
}
