package weight

import (
	"errors"
	"testing"
)

func TestFromTitle(t *testing.T) {
	tests := []struct {
		title string
		want  float64
	}{
		{"Cuarto de helado", 250},
		{"1/4 kg", 250},
		{"Medio KG de helado", 500},
		{"1/2 kilo", 500},
		{"Tres cuartos", 750},
		{"Pote 3/4", 750},
		{"KG de helado", 1000},
		{"Kilo", 1000},
		{"Helado 1kg", 1000},
		{"helado 1 KG", 1000},
		{"  MÉDIO   kg ", 500},
	}
	for _, tt := range tests {
		got, err := FromTitle(tt.title)
		if err != nil {
			t.Errorf("FromTitle(%q) unexpected error: %v", tt.title, err)
			continue
		}
		if got != tt.want {
			t.Errorf("FromTitle(%q) = %v, want %v", tt.title, got, tt.want)
		}
	}
}

func TestFromTitle_Unknown(t *testing.T) {
	for _, title := range []string{"helado sorpresa", "", "palito bombon"} {
		_, err := FromTitle(title)
		var uw *UnknownWeightError
		if !errors.As(err, &uw) {
			t.Fatalf("FromTitle(%q) error = %v, want UnknownWeightError", title, err)
		}
		if uw.Title != title {
			t.Errorf("error title = %q, want %q", uw.Title, title)
		}
	}
}

func TestFromTitle_Deterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		got, err := FromTitle("Medio KG de helado")
		if err != nil || got != 500 {
			t.Fatalf("run %d: got %v, %v", i, got, err)
		}
	}
}

func TestResolve_ExplicitGramsWin(t *testing.T) {
	got, err := Resolve("helado sorpresa", 330)
	if err != nil {
		t.Fatal(err)
	}
	if got != 330 {
		t.Errorf("got %v, want 330", got)
	}

	got, err = Resolve("Cuarto de helado", 0)
	if err != nil || got != 250 {
		t.Errorf("got %v, %v; want 250", got, err)
	}
}

func TestMaxFlavors(t *testing.T) {
	if MaxFlavors(Quarter) != 3 {
		t.Errorf("quarter should allow 3 flavors")
	}
	if MaxFlavors(Half) != 4 || MaxFlavors(Kilo) != 4 {
		t.Errorf("half and kilo should allow 4 flavors")
	}
}

func TestRound(t *testing.T) {
	if got := Round(1000.0 / 3); got != 333.33 {
		t.Errorf("Round(1000/3) = %v", got)
	}
	if got := Round(2000 - 166.67*3); got != 1499.99 {
		t.Errorf("Round = %v", got)
	}
}
