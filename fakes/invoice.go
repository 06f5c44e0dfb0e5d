package fakes

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clubhouse/prizepayout/model"
)

// DocumentStore keeps blobs in memory.
type DocumentStore struct {
	lock    sync.Mutex
	BaseURL string
	blobs   map[string][]byte

	Uploads   int
	UploadErr error
	SASErr    error
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		BaseURL: "https://documents.example.test",
		blobs:   map[string][]byte{},
	}
}

func blobKey(container, name string) string {
	return container + "/" + name
}

func (d *DocumentStore) Upload(_ context.Context, container, name string, data []byte, contentType string) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.UploadErr != nil {
		return d.UploadErr
	}
	d.Uploads++
	d.blobs[blobKey(container, name)] = slices.Clone(data)
	return nil
}

func (d *DocumentStore) Exists(_ context.Context, container, name string) (bool, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	_, ok := d.blobs[blobKey(container, name)]
	return ok, nil
}

func (d *DocumentStore) BlobURL(container, name string) string {
	return d.BaseURL + "/" + url.PathEscape(container) + "/" + url.PathEscape(name)
}

func (d *DocumentStore) SASURL(_ context.Context, container, name, permissions string, expiry time.Duration) (string, error) {
	d.lock.Lock()
	sasErr := d.SASErr
	d.lock.Unlock()
	if sasErr != nil {
		return "", sasErr
	}
	q := url.Values{}
	q.Set("sp", permissions)
	q.Set("se", fmt.Sprintf("%ds", int64(expiry.Seconds())))
	return d.BlobURL(container, name) + "?" + q.Encode(), nil
}

// Blob returns a stored blob, or nil.
func (d *DocumentStore) Blob(container, name string) []byte {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.blobs[blobKey(container, name)]
}

// TicketBoard keys finance tasks by name, so creating the same task twice
// returns the first one's id.
type TicketBoard struct {
	lock   sync.Mutex
	byName map[string]string

	Tasks       []model.FinanceTask
	Attachments map[string][]string
	CreateErr   error
	AttachErr   error
}

func NewTicketBoard() *TicketBoard {
	return &TicketBoard{
		byName:      map[string]string{},
		Attachments: map[string][]string{},
	}
}

func (b *TicketBoard) CreateFinanceTask(_ context.Context, task model.FinanceTask) (string, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.CreateErr != nil {
		return "", b.CreateErr
	}
	if id, ok := b.byName[task.Name]; ok {
		return id, nil
	}
	id := uuid.NewString()
	b.byName[task.Name] = id
	b.Tasks = append(b.Tasks, task)
	return id, nil
}

func (b *TicketBoard) AttachFinanceInvoiceFile(_ context.Context, itemID string, data []byte, fileName string) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.AttachErr != nil {
		return b.AttachErr
	}
	if len(data) == 0 {
		return errors.New("empty attachment")
	}
	b.Attachments[itemID] = append(b.Attachments[itemID], fileName)
	return nil
}

// Mailer records what it sends.
type Mailer struct {
	lock sync.Mutex
	Sent []model.Email
	// FailTo makes sends to these addresses fail.
	FailTo map[string]error
}

func NewMailer() *Mailer {
	return &Mailer{FailTo: map[string]error{}}
}

func (m *Mailer) Send(_ context.Context, e model.Email) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if err := m.FailTo[e.To]; err != nil {
		return err
	}
	m.Sent = append(m.Sent, e)
	return nil
}

// SentTo lists the messages sent to address.
func (m *Mailer) SentTo(address string) []model.Email {
	m.lock.Lock()
	defer m.lock.Unlock()
	var out []model.Email
	for _, e := range m.Sent {
		if e.To == address {
			out = append(out, e)
		}
	}
	return out
}

// PlayerDirectory looks players up in a map.  Unknown ids are (nil, nil).
type PlayerDirectory struct {
	Players map[string]*model.Player
	Err     error
}

func NewPlayerDirectory(players ...*model.Player) *PlayerDirectory {
	d := &PlayerDirectory{Players: map[string]*model.Player{}}
	for _, p := range players {
		d.Players[p.ID] = p
	}
	return d
}

func (d *PlayerDirectory) FindPlayer(_ context.Context, competitorID string) (*model.Player, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Players[competitorID], nil
}

// Renderer produces a fixed document.
type Renderer struct {
	lock   sync.Mutex
	Output []byte
	Err    error
	Calls  int
}

func NewRenderer() *Renderer {
	return &Renderer{Output: []byte("%PDF-1.4 fake invoice\n")}
}

func (r *Renderer) GenerateInvoice(_ context.Context, s *model.CompetitionWinningsSummary, invoiceID string) ([]byte, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Calls++
	if r.Err != nil {
		return nil, r.Err
	}
	return slices.Clone(r.Output), nil
}
