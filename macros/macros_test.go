package macros

import (
	"strings"
	"testing"
	"time"
)

var logicalDate = time.Date(2017, time.June, 2, 0, 0, 0, 0, time.UTC)

func TestNewParams(t *testing.T) {
	p := NewParams(logicalDate)
	expected := Params{
		Ds:                "2017-06-02",
		DsNoDash:          "20170602",
		YesterdayDs:       "2017-06-01",
		YesterdayDsNoDash: "20170601",
		TomorrowDs:        "2017-06-03",
		TomorrowDsNoDash:  "20170603",
	}
	if p != expected {
		t.Errorf("Expected %+v, got: %+v", expected, p)
	}
}

func TestRenderFunctions(t *testing.T) {
	inputs := []struct {
		tmpl     string
		expected string
	}{
		{"{{ ds }}", "2017-06-02"},
		{"{{ ds_nodash }}", "20170602"},
		{"{{ yesterday_ds }}", "2017-06-01"},
		{"t${{ yesterday_ds_nodash }}", "t$20170601"},
		{"{{ tomorrow_ds_nodash }}", "20170603"},
		{"{{ ds_add ds -6 }}", "2017-05-27"},
		{"{{ ds_add ds -27 }}", "2017-05-06"},
		{`{{ ds_format ds "2006-01-02" "02/01/2006" }}`, "02/06/2017"},
		{"{{ .YesterdayDs }}", "2017-06-01"},
	}
	for _, input := range inputs {
		got, err := Render("test", input.tmpl, logicalDate)
		if err != nil {
			t.Errorf("Unexpected error for [%s]: %s", input.tmpl, err.Error())
			continue
		}
		if got != input.expected {
			t.Errorf("Expected [%s] for [%s], got: [%s]", input.expected,
				input.tmpl, got)
		}
	}
}

func TestRenderUnknownFunction(t *testing.T) {
	_, err := Render("bad", "{{ macros.ds_add(ds, -6) }}", logicalDate)
	if err == nil {
		t.Error("Expected error for method-style macro call, got nil")
	}
	if Parse("bad", "{{ unknown_func }}") == nil {
		t.Error("Expected parse error for unknown function")
	}
}

func TestRenderMissingField(t *testing.T) {
	_, err := Render("bad", "{{ .Nope }}", logicalDate)
	if err == nil {
		t.Fatal("Expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("Expected template name in error, got: %s", err.Error())
	}
}

func TestDsAddInvalid(t *testing.T) {
	if _, err := DsAdd("20170602", 1); err == nil {
		t.Error("Expected error for ds without dashes")
	}
}
