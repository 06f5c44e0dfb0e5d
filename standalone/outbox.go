package standalone

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clubhouse/prizepayout/model"
)

// ticketNamespace seeds task ids, so the same task name always gets the same
// id.
var ticketNamespace = uuid.MustParse("5b0c6a8e-2f0e-4c56-9d52-3f1f0d8c7a21")

// LogTicketBoard writes finance tasks to the log instead of a ticket board.
type LogTicketBoard struct {
	log *zap.Logger
}

func NewLogTicketBoard(log *zap.Logger) *LogTicketBoard {
	return &LogTicketBoard{log: log}
}

func (b *LogTicketBoard) CreateFinanceTask(_ context.Context, task model.FinanceTask) (string, error) {
	id := uuid.NewSHA1(ticketNamespace, []byte(task.Name)).String()
	b.log.Info("finance task",
		zap.String("ticket_id", id),
		zap.String("group", task.Group),
		zap.String("name", task.Name),
		zap.String("assignee", task.AssigneeEmail),
		zap.String("status", task.Status),
		zap.Time("deadline", task.Deadline))
	return id, nil
}

func (b *LogTicketBoard) AttachFinanceInvoiceFile(_ context.Context, itemID string, data []byte, fileName string) error {
	b.log.Info("finance task attachment",
		zap.String("ticket_id", itemID),
		zap.String("file", fileName),
		zap.Int("bytes", len(data)))
	return nil
}

// LogMailer writes email to the log instead of sending it.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, e model.Email) error {
	m.log.Info("email",
		zap.String("from", e.From),
		zap.String("to", e.To),
		zap.String("subject", e.Subject),
		zap.String("body", e.Body))
	return nil
}
