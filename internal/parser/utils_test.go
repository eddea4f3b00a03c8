package parser

import "testing"

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	if got := NormalizeKey("  A   Building \t"); got != "a building" {
		t.Fatalf("NormalizeKey want=%q got=%q", "a building", got)
	}
	if got := NormalizeKey("A\u00a0building\u2003"); got != "a building" {
		t.Fatalf("NormalizeKey should fold unicode spaces, got=%q", got)
	}
	if got := NormalizeKey("101"); got != "101" {
		t.Fatalf("NormalizeKey want=%q got=%q", "101", got)
	}
}

func TestNormalizeTerm_StripsPunctuation(t *testing.T) {
	t.Parallel()

	if got := NormalizeTerm("Granite-Kitchen  OTTA!"); got != "granite kitchen otta" {
		t.Fatalf("NormalizeTerm got=%q", got)
	}
	if got := NormalizeTerm("  --  "); got != "" {
		t.Fatalf("NormalizeTerm of punctuation should be empty, got=%q", got)
	}
}

func TestContainsEither(t *testing.T) {
	t.Parallel()

	if !ContainsEither("brickwork", "brick") {
		t.Fatalf("label containing term should match")
	}
	if !ContainsEither("brick", "brickwork") {
		t.Fatalf("term containing label should match")
	}
	if ContainsEither("", "brickwork") || ContainsEither("brickwork", "") {
		t.Fatalf("empty side must never match")
	}
	if ContainsEither("tiles", "brickwork") {
		t.Fatalf("unrelated strings must not match")
	}
}

func TestColumnName(t *testing.T) {
	t.Parallel()

	cases := map[int]string{0: "A", 5: "F", 25: "Z", 26: "AA", 27: "AB", 55: "BD"}
	for idx, want := range cases {
		if got := ColumnName(idx); got != want {
			t.Fatalf("ColumnName(%d) want=%s got=%s", idx, want, got)
		}
	}

	cell, err := CellName("AB", 7)
	if err != nil {
		t.Fatalf("CellName: %v", err)
	}
	if cell != "AB7" {
		t.Fatalf("CellName want=AB7 got=%s", cell)
	}
}
