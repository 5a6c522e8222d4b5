package workbook

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeFormula(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"=SUM(A1:A3)", "SUM(A1:A3)"},
		{"_xlfn.STDEV.S(B1:B10)", "STDEV.S(B1:B10)"},
		{"_xlws.FILTER(A1:A9,B1:B9>0)", "FILTER(A1:A9,B1:B9>0)"},
		{"_xlfn.CONCAT(_xlfn.TEXTJOIN(\",\",TRUE,A1:A3))", "CONCAT(TEXTJOIN(\",\",TRUE,A1:A3))"},
	}
	for _, tt := range tests {
		if got := NormalizeFormula(tt.input); got != tt.want {
			t.Errorf("NormalizeFormula(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFunctionNames(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		want    []string
	}{
		{"single", "SUM(B1:B10)", []string{"SUM"}},
		{"two", "SUM(B1:B10)+AVERAGE(C1:C10)", []string{"SUM", "AVERAGE"}},
		{"dotted with prefix", "_xlfn.STDEV.S(B1:B10)", []string{"STDEV.S"}},
		{"nested", "ROUND(AVERAGE(A1:A4),2)", []string{"ROUND", "AVERAGE"}},
		{"digits in name", "LOG10(A1)*ATAN2(B1,C1)", []string{"LOG10", "ATAN2"}},
		{"inside string literal", `IF(A1>0,"SUM(x)","")`, []string{"IF"}},
		{"none", "A1+B1", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FunctionNames(tt.formula)); diff != "" {
				t.Errorf("FunctionNames(%q) mismatch (-want +got):\n%s", tt.formula, diff)
			}
		})
	}
}

func TestReferences(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		want    []Reference
	}{
		{"single cell", "A1*2", []Reference{{Target: "A1"}}},
		{"bounded range", "SUM(A2:B3)", []Reference{{Target: "A2:B3"}}},
		{"absolute markers", "SUM($A$2:$B3)+$C$1", []Reference{{Target: "A2:B3"}, {Target: "C1"}}},
		{"column range", "SUM(A:B)", []Reference{{Target: "A:B"}}},
		{"row range", "SUM(2:3)", []Reference{{Target: "2:3"}}},
		{"bare sheet", "Data!C4+1", []Reference{{Sheet: "Data", Target: "C4"}}},
		{"quoted sheet", "SUM('My Data'!A1:A5)", []Reference{{Sheet: "My Data", Target: "A1:A5"}}},
		{"bare cyrillic sheet", "Лист2!A1*2", []Reference{{Sheet: "Лист2", Target: "A1"}}},
		{"bare sheet with dot", "SUM(Q1.data!B1:B3)", []Reference{{Sheet: "Q1.data", Target: "B1:B3"}}},
		{"match inside a word", "ÄA1+B2", []Reference{{Target: "B2"}}},
		{"escaped quote", "'Bob''s'!B2", []Reference{{Sheet: "Bob's", Target: "B2"}}},
		{
			"two quoted sheets",
			"'Sheet 1'!A1+'Sheet 2'!B1",
			[]Reference{{Sheet: "Sheet 1", Target: "A1"}, {Sheet: "Sheet 2", Target: "B1"}},
		},
		{"function names are not cells", "LOG10(A1)", []Reference{{Target: "A1"}}},
		{"string literal ignored", `IF(A1="B2","x",C3)`, []Reference{{Target: "A1"}, {Target: "C3"}}},
		{"no references", "PI()*2", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, References(tt.formula)); diff != "" {
				t.Errorf("References(%q) mismatch (-want +got):\n%s", tt.formula, diff)
			}
		})
	}
}

func TestQuoteSheetName(t *testing.T) {
	tests := map[string]string{
		"Sheet1":   "Sheet1",
		"my_data":  "my_data",
		"My Sheet": "'My Sheet'",
		"Bob's":    "'Bob''s'",
		"Лист2":    "Лист2",
		"2019":     "'2019'",
		"a-b":      "'a-b'",
	}
	for in, want := range tests {
		if got := QuoteSheetName(in); got != want {
			t.Errorf("QuoteSheetName(%q) = %q, want %q", in, got, want)
		}
	}
}
