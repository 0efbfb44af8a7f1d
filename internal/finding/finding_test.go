package finding

import "testing"

func TestDedupe(t *testing.T) {
	in := []Finding{
		{ID: "REENTRANCY", Line: 10},
		{ID: "REENTRANCY", Line: 10, Title: "duplicate"},
		{ID: "REENTRANCY", Line: 20},
		{ID: "TX_ORIGIN", Line: 10},
		{ID: "TX_ORIGIN"},
		{ID: "TX_ORIGIN"},
	}
	out := Dedupe(in)
	if len(out) != 4 {
		t.Fatalf("expected 4 unique findings, got %d", len(out))
	}
	// First occurrence wins.
	if out[0].Title != "" {
		t.Fatalf("expected first occurrence kept, got %+v", out[0])
	}
	// Order preserved.
	if out[1].Line != 20 || out[2].ID != "TX_ORIGIN" {
		t.Fatalf("order not preserved: %+v", out)
	}
}

func TestValidSeverity(t *testing.T) {
	if got := ValidSeverity("critical"); got != SeverityCritical {
		t.Fatalf("expected critical, got %s", got)
	}
	if got := ValidSeverity("catastrophic"); got != SeverityInfo {
		t.Fatalf("unknown severity should default to info, got %s", got)
	}
}

func TestValidConfidence(t *testing.T) {
	if got := ValidConfidence("low"); got != ConfidenceLow {
		t.Fatalf("expected low, got %s", got)
	}
	if got := ValidConfidence(""); got != ConfidenceMedium {
		t.Fatalf("empty confidence should default to medium, got %s", got)
	}
}
