package notify

import (
	"context"
	"errors"
	"text/template"
)

// Multi fans out a notification to many senders. All senders are tried, even
// if some of them fail, and errors are joined.
type Multi struct {
	senders []Sender
}

// NewMulti creates Multi sender. Nil senders are skipped.
func NewMulti(senders ...Sender) *Multi {
	nonNil := make([]Sender, 0, len(senders))
	for _, s := range senders {
		if s != nil {
			nonNil = append(nonNil, s)
		}
	}
	return &Multi{senders: nonNil}
}

// Send sends notification using every sender.
func (m *Multi) Send(ctx context.Context, tmpl Template, data MsgData) error {
	var errs []error
	for _, s := range m.senders {
		if err := s.Send(ctx, tmpl, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func parseText(name, text string) (*template.Template, error) {
	return template.New(name).Parse(text)
}
