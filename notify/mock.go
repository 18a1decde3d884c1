package notify

import (
	"bytes"
	"context"
	"sync"
	"text/template"
)

// Mock sends message into a string slice in memory. It implements Sender
// interface. Useful mostly for testing. It's safe for concurrent use.
type Mock struct {
	sync.Mutex
	buf *[]string
}

// NewMock initialized Mock for given string slice buffor.
func NewMock(buffor *[]string) *Mock {
	return &Mock{buf: buffor}
}

// Send executes the template and appends the message onto internal Mock
// buffor.
func (m *Mock) Send(_ context.Context, tmpl Template, data MsgData) error {
	var msgBuff bytes.Buffer
	if err := tmpl.Execute(&msgBuff, data); err != nil {
		return err
	}
	m.Lock()
	*m.buf = append(*m.buf, msgBuff.String())
	m.Unlock()
	return nil
}

// Messages returns a copy of messages sent so far.
func (m *Mock) Messages() []string {
	m.Lock()
	defer m.Unlock()
	out := make([]string, len(*m.buf))
	copy(out, *m.buf)
	return out
}

// MockTemplate returns short text template for tests. It renders DAG,
// logical date, task and retry on the first line and the error, if any, on
// the second one.
func MockTemplate(name string) *template.Template {
	body := `[{{.DagId}}] [{{.ExecTs}}] [{{if .TaskId}}{{.TaskId}}{{end}}] [{{.Retry}}]
{{- if .TaskRunError}}
{{.TaskRunError.Error}}
{{- end}}`
	return template.Must(template.New(name).Parse(body))
}
