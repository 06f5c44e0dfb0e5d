// Package invoice runs the prize invoice saga for a paid-out competition:
// render the invoice, store it, raise a finance task, tell the pro shop and
// tell each winner.
//
// The saga keeps no state of its own.  The invoice id is derived from the
// competition, and the collaborators dedupe on it (the document store by
// blob name, the ticket board by task name), so running the saga again after
// a crash repeats only the steps that didn't stick.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clubhouse/prizepayout/config"
	"github.com/clubhouse/prizepayout/dep"
	"github.com/clubhouse/prizepayout/logging"
	"github.com/clubhouse/prizepayout/model"
	"github.com/clubhouse/prizepayout/render"
	"github.com/clubhouse/prizepayout/ts"
	"github.com/clubhouse/prizepayout/varz"
)

var (
	ErrInvalidCompetitionID = errors.New("invalid competition id")
	ErrSummaryNotFound      = errors.New("payout summary not found")
	ErrEmptyInvoice         = errors.New("invoice document is empty")
)

var (
	invoiceRuns       = varz.NewInt("runs")
	invoiceSkipped    = varz.NewInt("skipped")
	invoiceFailed     = varz.NewInt("failed")
	invoiceWinnerMail = varz.NewMap("winnerEmails")
)

var competitionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ID is the invoice id for a competition played on date.
func ID(competitionID string, date time.Time) string {
	return fmt.Sprintf("INV-%s-%s", competitionID, date.UTC().Format("20060102"))
}

type SummaryLoader interface {
	GetCompetitionPayoutDetails(ctx context.Context, competitionID string) (*model.CompetitionWinningsSummary, error)
}

type Renderer interface {
	GenerateInvoice(ctx context.Context, s *model.CompetitionWinningsSummary, invoiceID string) ([]byte, error)
}

// DocumentFormat is implemented by renderers whose output isn't PDF.
type DocumentFormat interface {
	ContentType() string
	Extension() string
}

type DocumentStore interface {
	Upload(ctx context.Context, container, name string, data []byte, contentType string) error
	Exists(ctx context.Context, container, name string) (bool, error)
	SASURL(ctx context.Context, container, name, permissions string, expiry time.Duration) (string, error)
	BlobURL(container, name string) string
}

type TicketBoard interface {
	CreateFinanceTask(ctx context.Context, task model.FinanceTask) (string, error)
	AttachFinanceInvoiceFile(ctx context.Context, itemID string, data []byte, fileName string) error
}

type Mailer interface {
	Send(ctx context.Context, e model.Email) error
}

// PlayerDirectory returns nil, nil for players it doesn't know.
type PlayerDirectory interface {
	FindPlayer(ctx context.Context, competitorID string) (*model.Player, error)
}

type Options struct {
	Container       string
	SASExpiry       time.Duration
	FinanceGroup    string
	FinanceAssignee string
	FinanceStatus   string
	DeadlineDays    int
	ProShopEmail    string
	FromAddress     string
}

func OptionsFromConfig(cfg config.InvoiceConfig) (Options, error) {
	expiry, err := cfg.SASExpiryDuration()
	if err != nil {
		return Options{}, fmt.Errorf("sas expiry: %w", err)
	}
	return Options{
		Container:       cfg.Container,
		SASExpiry:       expiry,
		FinanceGroup:    cfg.FinanceGroup,
		FinanceAssignee: cfg.FinanceAssignee,
		FinanceStatus:   cfg.FinanceStatus,
		DeadlineDays:    cfg.DeadlineDays,
		ProShopEmail:    cfg.ProShopEmail,
		FromAddress:     cfg.FromAddress,
	}, nil
}

// Outcome reports what a saga run did.
type Outcome struct {
	CompetitionID string `json:"competitionId"`
	InvoiceID     string `json:"invoiceId"`
	// Skipped is set when nothing was paid, so there was nothing to invoice.
	Skipped             bool   `json:"skipped"`
	DocumentURL         string `json:"documentUrl,omitempty"`
	TicketID            string `json:"ticketId,omitempty"`
	WinnerEmailsSent    int    `json:"winnerEmailsSent"`
	WinnerEmailsSkipped int    `json:"winnerEmailsSkipped"`
}

type Saga struct {
	summaries SummaryLoader
	renderer  Renderer
	documents DocumentStore
	tickets   TicketBoard
	mailer    Mailer
	players   PlayerDirectory
	emails    *render.Templates
	clock     *ts.Clock
	opts      Options
	log       *zap.Logger
}

type Collaborators struct {
	Summaries SummaryLoader
	Renderer  Renderer
	Documents DocumentStore
	Tickets   TicketBoard
	Mailer    Mailer
	Players   PlayerDirectory
}

func New(c Collaborators, emails *render.Templates, clock *ts.Clock, opts Options, log *zap.Logger) *Saga {
	return &Saga{
		summaries: dep.Required(c.Summaries),
		renderer:  dep.Required(c.Renderer),
		documents: dep.Required(c.Documents),
		tickets:   dep.Required(c.Tickets),
		mailer:    dep.Required(c.Mailer),
		players:   dep.Required(c.Players),
		emails:    dep.Required(emails),
		clock:     dep.Required(clock),
		opts:      opts,
		log:       dep.Required(log),
	}
}

// Run invoices one competition.  An error means the saga stopped part way;
// running it again is safe.
func (s *Saga) Run(ctx context.Context, competitionID string) (*Outcome, error) {
	invoiceRuns.Add(1)
	out, err := s.run(ctx, strings.TrimSpace(competitionID))
	if err != nil {
		invoiceFailed.Add(1)
	}
	return out, err
}

func (s *Saga) run(ctx context.Context, competitionID string) (*Outcome, error) {
	if !competitionIDPattern.MatchString(competitionID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCompetitionID, competitionID)
	}
	log := s.log.With(logging.Competition(competitionID))

	summary, err := s.summaries.GetCompetitionPayoutDetails(ctx, competitionID)
	if err != nil {
		return nil, fmt.Errorf("competition %s: loading summary: %w", competitionID, err)
	}
	if summary == nil {
		return nil, fmt.Errorf("competition %s: %w", competitionID, ErrSummaryNotFound)
	}

	invoiceID := ID(competitionID, summary.CompetitionDate)
	log = log.With(logging.Invoice(invoiceID))
	out := &Outcome{CompetitionID: competitionID, InvoiceID: invoiceID}
	fail := func(step string, err error) (*Outcome, error) {
		log.Error("invoice saga failed", zap.String("step", step), zap.Error(err))
		return out, fmt.Errorf("competition %s invoice %s: %s: %w", competitionID, invoiceID, step, err)
	}

	placings := summary.PaidPlacings()
	if len(placings) == 0 {
		log.Info("nothing paid, no invoice needed")
		invoiceSkipped.Add(1)
		out.Skipped = true
		return out, nil
	}

	doc, err := s.renderer.GenerateInvoice(ctx, summary, invoiceID)
	if err != nil {
		return fail("rendering invoice", err)
	}
	if len(doc) == 0 {
		return fail("rendering invoice", ErrEmptyInvoice)
	}

	contentType, ext := "application/pdf", ".pdf"
	if f, ok := s.renderer.(DocumentFormat); ok {
		contentType, ext = f.ContentType(), f.Extension()
	}
	blobName := invoiceID + ext

	if err := s.upload(ctx, blobName, doc, contentType, log); err != nil {
		return fail("uploading invoice", err)
	}
	out.DocumentURL = s.documentURL(ctx, blobName, log)

	ticketID, err := s.tickets.CreateFinanceTask(ctx, model.FinanceTask{
		Group:         s.opts.FinanceGroup,
		Name:          fmt.Sprintf("%s %s prize money", invoiceID, summary.CompetitionName),
		AssigneeEmail: s.opts.FinanceAssignee,
		Status:        s.opts.FinanceStatus,
		Deadline:      s.clock.Today().AddDate(0, 0, s.opts.DeadlineDays),
	})
	if err != nil {
		return fail("creating finance task", err)
	}
	out.TicketID = ticketID

	if err := s.tickets.AttachFinanceInvoiceFile(ctx, ticketID, doc, blobName); err != nil {
		log.Warn("can't attach invoice to finance task", zap.String("ticket_id", ticketID), zap.Error(err))
	}

	if err := s.notifyProShop(ctx, summary, placings, out); err != nil {
		return fail("emailing pro shop", err)
	}

	s.notifyWinners(ctx, summary, placings, out, log)

	log.Info("invoice saga complete",
		zap.String("ticket_id", ticketID),
		zap.Int("winner_emails_sent", out.WinnerEmailsSent),
		zap.Int("winner_emails_skipped", out.WinnerEmailsSkipped))
	return out, nil
}

func (s *Saga) upload(ctx context.Context, name string, doc []byte, contentType string, log *zap.Logger) error {
	exists, err := s.documents.Exists(ctx, s.opts.Container, name)
	if err != nil {
		return err
	}
	if exists {
		log.Info("invoice already stored", zap.String("blob", name))
		return nil
	}
	return s.documents.Upload(ctx, s.opts.Container, name, doc, contentType)
}

// documentURL prefers a read-only signed link and falls back to the plain
// blob URL.
func (s *Saga) documentURL(ctx context.Context, name string, log *zap.Logger) string {
	u, err := s.documents.SASURL(ctx, s.opts.Container, name, "r", s.opts.SASExpiry)
	if err != nil || u == "" {
		log.Warn("can't sign invoice URL, using blob URL", zap.Error(err))
		return s.documents.BlobURL(s.opts.Container, name)
	}
	return u
}

func (s *Saga) notifyProShop(ctx context.Context, summary *model.CompetitionWinningsSummary, placings []model.DivisionPlacing, out *Outcome) error {
	if s.opts.ProShopEmail == "" {
		return errors.New("no pro shop address configured")
	}
	subject, body, err := s.emails.ProShopEmail(render.ProShopMessage{
		InvoiceID:   out.InvoiceID,
		TicketID:    out.TicketID,
		DocumentURL: out.DocumentURL,
		Summary:     summary,
		Placings:    placings,
	})
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, model.Email{
		From:    s.opts.FromAddress,
		To:      s.opts.ProShopEmail,
		Subject: subject,
		Body:    body,
	})
}

type winnings struct {
	competitorID string
	placings     []model.DivisionPlacing
	total        decimal.Decimal
}

// byCompetitor groups placings by competitor, in order of first appearance.
func byCompetitor(placings []model.DivisionPlacing) []*winnings {
	var out []*winnings
	index := map[string]*winnings{}
	for _, p := range placings {
		w, ok := index[p.CompetitorID]
		if !ok {
			w = &winnings{competitorID: p.CompetitorID}
			index[p.CompetitorID] = w
			out = append(out, w)
		}
		w.placings = append(w.placings, p)
		w.total = w.total.Add(p.Amount)
	}
	return out
}

// notifyWinners emails each winner once.  Failures here don't stop the saga.
func (s *Saga) notifyWinners(ctx context.Context, summary *model.CompetitionWinningsSummary, placings []model.DivisionPlacing, out *Outcome, log *zap.Logger) {
	skip := func(w *winnings, reason string, err error) {
		out.WinnerEmailsSkipped++
		invoiceWinnerMail.Add("skipped", 1)
		log.Warn("winner not emailed",
			zap.String("competitor_id", w.competitorID),
			zap.String("reason", reason),
			zap.Error(err))
	}

	for _, w := range byCompetitor(placings) {
		if model.IsPlaceholderID(w.competitorID) {
			skip(w, "unidentified competitor", nil)
			continue
		}
		player, err := s.players.FindPlayer(ctx, w.competitorID)
		if err != nil {
			skip(w, "player lookup failed", err)
			continue
		}
		if player == nil {
			skip(w, "player not found", nil)
			continue
		}
		if strings.TrimSpace(player.Email) == "" {
			skip(w, "no email address", nil)
			continue
		}
		subject, body, err := s.emails.WinnerEmail(render.WinnerMessage{
			InvoiceID: out.InvoiceID,
			Player:    player,
			Summary:   summary,
			Placings:  w.placings,
			Total:     w.total,
		})
		if err != nil {
			skip(w, "rendering email", err)
			continue
		}
		err = s.mailer.Send(ctx, model.Email{
			From:    s.opts.FromAddress,
			To:      player.Email,
			Subject: subject,
			Body:    body,
		})
		if err != nil {
			skip(w, "send failed", err)
			continue
		}
		out.WinnerEmailsSent++
		invoiceWinnerMail.Add("sent", 1)
	}
}
