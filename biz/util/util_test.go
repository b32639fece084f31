package util

import (
	"testing"

	"l2book/biz/model"
)

func TestParseSide(t *testing.T) {
	for in, want := range map[string]model.Side{
		"bid": model.Bid, "Bid": model.Bid, "buy": model.Bid,
		"ask": model.Ask, " ASK ": model.Ask, "sell": model.Ask,
	} {
		got, err := ParseSide(in)
		if err != nil {
			t.Errorf("ParseSide(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseSide(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseSide("mid"); err == nil {
		t.Error("ParseSide(\"mid\") succeeded")
	}
}

func TestParsePrice(t *testing.T) {
	p, err := ParsePrice(" 10.25 ")
	if err != nil {
		t.Fatalf("ParsePrice: %v", err)
	}
	if p.String() != "10.25" {
		t.Errorf("price = %s", p)
	}
	if _, err := ParsePrice("ten"); err == nil {
		t.Error("ParsePrice(\"ten\") succeeded")
	}
}

func TestParseQuantity(t *testing.T) {
	q, err := ParseQuantity("42")
	if err != nil {
		t.Fatalf("ParseQuantity: %v", err)
	}
	if q != 42 {
		t.Errorf("quantity = %d", q)
	}
	for _, bad := range []string{"-1", "1.5", ""} {
		if _, err := ParseQuantity(bad); err == nil {
			t.Errorf("ParseQuantity(%q) succeeded", bad)
		}
	}
}
