package sp3product

import (
	"strings"
	"testing"
)

func TestParseFilename(t *testing.T) {
	f, ok := ParseFilename("COD0OPSULT_20250680000_02D_05M_ORB.SP3.gz")
	if !ok {
		t.Fatal("expected filename to match grammar")
	}
	if f.AnalysisCenter != "COD" || f.Project != "OPS" || f.ProductType != "ULT" {
		t.Errorf("got %+v", f)
	}
	if f.ProductRunID != 20250680000 {
		t.Errorf("ProductRunID = %d, want 20250680000", f.ProductRunID)
	}
	if !f.IsOrbitProduct() {
		t.Error("expected IsOrbitProduct() == true")
	}
}

func TestParseFilenameRejectsNonOrbit(t *testing.T) {
	f, ok := ParseFilename("COD0OPSFIN_20250680000_02D_05M_CLK.CLK.gz")
	if !ok {
		t.Fatal("expected filename to still match grammar")
	}
	if f.IsOrbitProduct() {
		t.Error("expected IsOrbitProduct() == false for a CLK/FIN file")
	}
}

func TestParsePath(t *testing.T) {
	week, filename, ok := ParsePath("/cddis/2357/COD0OPSULT_20250680000_02D_05M_ORB.SP3.gz")
	if !ok {
		t.Fatal("expected path to match grammar")
	}
	if week != "2357" {
		t.Errorf("week = %s, want 2357", week)
	}
	if filename != "COD0OPSULT_20250680000_02D_05M_ORB.SP3.gz" {
		t.Errorf("filename = %s", filename)
	}
}

func TestSamplingSeconds(t *testing.T) {
	cases := map[string]int64{
		"05M": 300,
		"30S": 30,
		"01H": 3600,
		"01D": 86400,
	}
	for smp, want := range cases {
		got, err := SamplingSeconds(strings.ToLower(smp))
		if err != nil {
			t.Fatalf("SamplingSeconds(%s) error = %v", smp, err)
		}
		if got != want {
			t.Errorf("SamplingSeconds(%s) = %d, want %d", smp, got, want)
		}
	}
}

const sampleSP3 = `#dP2025  3  9  0  0  0.00000000     289 ORBIT IGb14 HLM  IGS
## 2357 259200.00000000   300.00000000 60742 0.0000000000000
*  2025  3  9  0  0  0.00000000
PG13  -1234.567890  2345.678901 -3456.789012 123.456789
PE34   4321.098765 -5432.109876  6543.210987 234.567890
*  2025  3  9  0  5  0.00000000
PG13  -1235.567890  2346.678901 -3457.789012 123.456789
PE34   4322.098765 -5433.109876  6544.210987 234.567890
EOF
`

func TestParseSP3Body(t *testing.T) {
	records, order, err := Parse(strings.NewReader(sampleSP3))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
	if len(order) != 2 || order[0] != "G13" || order[1] != "E34" {
		t.Errorf("order = %v, want [G13 E34]", order)
	}
	if records[0].Satellite != "G13" || records[0].ConstellationPrefix != 'G' {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].GPSTSeconds != records[0].GPSTSeconds {
		t.Errorf("expected same-epoch records to share GPSTSeconds")
	}
	if records[2].GPSTSeconds <= records[0].GPSTSeconds {
		t.Errorf("expected second epoch to be later")
	}
}
