// Package render turns payout summaries into invoice documents and email
// text using the templates in assets.
package render

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clubhouse/prizepayout/assets"
	"github.com/clubhouse/prizepayout/model"
	"github.com/clubhouse/prizepayout/money"
	"github.com/clubhouse/prizepayout/textutil"
	"github.com/clubhouse/prizepayout/ts"
)

// Templates renders invoices and the emails that go with them.  Invoices
// come out as plain text; a PDF service can stand in its place behind the
// same GenerateInvoice method.
type Templates struct {
	tmpl  *template.Template
	clock *ts.Clock
}

var funcs = template.FuncMap{
	"place": textutil.FormatPlace,
	"pad":   textutil.PadRight,
	"lpad":  textutil.PadLeft,
	"money": money.Format,
	"date": func(t time.Time) string {
		return t.Format("Monday 2 January 2006")
	},
}

func New(clock *ts.Clock) (*Templates, error) {
	tmpl, err := template.New("render").Funcs(funcs).ParseFS(assets.Templates, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &Templates{tmpl: tmpl, clock: clock}, nil
}

type InvoiceData struct {
	InvoiceID string
	Summary   *model.CompetitionWinningsSummary
	IssuedOn  time.Time
}

// ProShopMessage asks the pro shop to pay the winners.
type ProShopMessage struct {
	InvoiceID   string
	TicketID    string
	DocumentURL string
	Summary     *model.CompetitionWinningsSummary
	Placings    []model.DivisionPlacing
}

// WinnerMessage congratulates one competitor on every place they were paid
// for.
type WinnerMessage struct {
	InvoiceID string
	Player    *model.Player
	Summary   *model.CompetitionWinningsSummary
	Placings  []model.DivisionPlacing
	Total     decimal.Decimal
}

func (t *Templates) execute(name string, data any) (string, error) {
	buf := bytes.Buffer{}
	if err := t.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

// GenerateInvoice renders the invoice document for a summary.
func (t *Templates) GenerateInvoice(_ context.Context, s *model.CompetitionWinningsSummary, invoiceID string) ([]byte, error) {
	out, err := t.execute("invoice", InvoiceData{InvoiceID: invoiceID, Summary: s, IssuedOn: t.clock.Today()})
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func (t *Templates) ContentType() string {
	return "text/plain; charset=utf-8"
}

func (t *Templates) Extension() string {
	return ".txt"
}

func (t *Templates) email(prefix string, data any) (string, string, error) {
	subject, err := t.execute(prefix+"_subject", data)
	if err != nil {
		return "", "", err
	}
	body, err := t.execute(prefix+"_body", data)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(subject), body, nil
}

// ProShopEmail returns the subject and body of the pro shop notification.
func (t *Templates) ProShopEmail(m ProShopMessage) (string, string, error) {
	return t.email("proshop", m)
}

// WinnerEmail returns the subject and body of a winner's notification.
func (t *Templates) WinnerEmail(m WinnerMessage) (string, string, error) {
	return t.email("winner", m)
}
