// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

/*
Package macros renders SQL and table templates for a logical date.

Templates use standard text/template syntax. Every template has access to the
following functions, all derived from the logical date the template is
rendered for:

	ds                    2017-06-02
	ds_nodash             20170602
	yesterday_ds          2017-06-01
	yesterday_ds_nodash   20170601
	tomorrow_ds           2017-06-03
	tomorrow_ds_nodash    20170603
	ds_add DS N           DS shifted by N days, e.g. {{ ds_add ds -6 }}
	ds_format DS IN OUT   DS reformatted from layout IN to layout OUT

The same values are available as fields of Params (e.g. {{ .YesterdayDs }}).
*/
package macros

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/ppacer/trends/timeutils"
)

// Params are the values derived from a single logical date.
type Params struct {
	Ds                string
	DsNoDash          string
	YesterdayDs       string
	YesterdayDsNoDash string
	TomorrowDs        string
	TomorrowDsNoDash  string
}

// NewParams computes template parameters for given logical date.
func NewParams(date time.Time) Params {
	d := timeutils.Date(date)
	yesterday := timeutils.AddDays(d, -1)
	tomorrow := timeutils.AddDays(d, 1)
	return Params{
		Ds:                timeutils.ToDateString(d),
		DsNoDash:          timeutils.ToDateNoDashString(d),
		YesterdayDs:       timeutils.ToDateString(yesterday),
		YesterdayDsNoDash: timeutils.ToDateNoDashString(yesterday),
		TomorrowDs:        timeutils.ToDateString(tomorrow),
		TomorrowDsNoDash:  timeutils.ToDateNoDashString(tomorrow),
	}
}

// FuncMap returns template functions bound to given logical date.
func FuncMap(date time.Time) template.FuncMap {
	p := NewParams(date)
	return template.FuncMap{
		"ds":                  func() string { return p.Ds },
		"ds_nodash":           func() string { return p.DsNoDash },
		"yesterday_ds":        func() string { return p.YesterdayDs },
		"yesterday_ds_nodash": func() string { return p.YesterdayDsNoDash },
		"tomorrow_ds":         func() string { return p.TomorrowDs },
		"tomorrow_ds_nodash":  func() string { return p.TomorrowDsNoDash },
		"ds_add":              DsAdd,
		"ds_format":           DsFormat,
	}
}

// DsAdd shifts date string ds (YYYY-MM-DD) by given number of days.
func DsAdd(ds string, days int) (string, error) {
	d, err := time.Parse(timeutils.DateFormat, ds)
	if err != nil {
		return "", fmt.Errorf("ds_add: %w", err)
	}
	return timeutils.ToDateString(timeutils.AddDays(d, days)), nil
}

// DsFormat parses ds according to inputFormat and formats it using
// outputFormat. Both formats are Go time layouts.
func DsFormat(ds, inputFormat, outputFormat string) (string, error) {
	d, err := time.Parse(inputFormat, ds)
	if err != nil {
		return "", fmt.Errorf("ds_format: %w", err)
	}
	return d.Format(outputFormat), nil
}

// Parse checks that given template is syntactically valid and refers only to
// known functions. It does not need a logical date.
func Parse(name, text string) error {
	_, err := newTemplate(name, text, time.Time{})
	return err
}

// Render renders given template text for given logical date.
func Render(name, text string, date time.Time) (string, error) {
	tmpl, err := newTemplate(name, text, date)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if execErr := tmpl.Execute(&buf, NewParams(date)); execErr != nil {
		return "", fmt.Errorf("cannot render template %s: %w", name, execErr)
	}
	return buf.String(), nil
}

func newTemplate(name, text string, date time.Time) (*template.Template, error) {
	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(FuncMap(date)).
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("cannot parse template %s: %w", name, err)
	}
	return tmpl, nil
}
