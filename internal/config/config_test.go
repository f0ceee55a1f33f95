package config

import "testing"

func TestDefaultParsesEmbeddedConfig(t *testing.T) {
	c := Default()
	if len(c.RecognizerOrder) == 0 {
		t.Fatal("expected a non-empty default recognizer order")
	}
	if c.RecognizerOrder[0] != "ibm" {
		t.Errorf("expected ibm to be tried first by default, got %q", c.RecognizerOrder[0])
	}
}

func TestGeometryForKnownFormat(t *testing.T) {
	c := Default()
	g, ok := c.GeometryFor("zilogmcz")
	if !ok {
		t.Fatal("expected zilogmcz to have a default geometry")
	}
	if g.LastCylinder != 77 || g.LastSector != 31 || g.SectorLength != 136 {
		t.Errorf("unexpected zilogmcz geometry: %+v", g)
	}
}

func TestGeometryForDynamicFormatIsAbsent(t *testing.T) {
	c := Default()
	if _, ok := c.GeometryFor("q1microlitefm"); ok {
		t.Error("expected q1microlitefm to have no fixed default geometry")
	}
	if _, ok := c.GeometryFor("ibm"); ok {
		t.Error("expected ibm to have no fixed default geometry")
	}
}
