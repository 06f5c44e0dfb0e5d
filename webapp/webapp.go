// Package webapp serves the payout engine over HTTP: summaries for the
// front end, and triggers for the batch and the invoice saga.
package webapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/clubhouse/prizepayout/app/handlers"
	"github.com/clubhouse/prizepayout/batch"
	"github.com/clubhouse/prizepayout/dep"
	"github.com/clubhouse/prizepayout/he"
	"github.com/clubhouse/prizepayout/invoice"
	"github.com/clubhouse/prizepayout/middleware"
	"github.com/clubhouse/prizepayout/model"
	"github.com/clubhouse/prizepayout/urlpath"
	"github.com/clubhouse/prizepayout/varz"
)

var (
	processRequests = varz.NewInt("processRequests")
	invoiceRequests = varz.NewInt("invoiceRequests")
)

type nower interface {
	Now() time.Time
}

type Summaries interface {
	GetCompetitionPayoutDetails(ctx context.Context, competitionID string) (*model.CompetitionWinningsSummary, error)
	GetYearlyWinningsSummary(ctx context.Context, year int) (*model.YearlyWinningsSummary, error)
}

type Payouts interface {
	Run(ctx context.Context) (int, error)
	ProcessOne(ctx context.Context, competitionID string) (bool, error)
}

type Invoicer interface {
	Run(ctx context.Context, competitionID string) (*invoice.Outcome, error)
}

// Config holds the configuration for creating a new App.
type Config struct {
	Summaries      Summaries
	Payouts        Payouts
	Invoicer       Invoicer
	Clock          nower
	Log            *zap.Logger
	AllowedOrigins []string
	CacheMaxAge    time.Duration
}

// App is the main web application.
type App struct {
	// dependencies
	summaries Summaries
	payouts   Payouts
	invoicer  Invoicer
	clock     nower
	log       *zap.Logger

	// internals
	router  chi.Router
	handler http.Handler
	maxAge  time.Duration
}

// New creates a new App with the given configuration.
func New(config *Config) *App {
	app := &App{
		summaries: dep.Required(config.Summaries),
		payouts:   dep.Required(config.Payouts),
		invoicer:  dep.Required(config.Invoicer),
		clock:     dep.Required(config.Clock),
		log:       dep.Required(config.Log),
		router:    chi.NewRouter(),
		maxAge:    config.CacheMaxAge,
	}

	app.router.Use(chimw.RequestID)
	app.router.Use(chimw.RealIP)
	app.router.Use(middleware.Logging(app.clock, app.log))
	app.router.Use(chimw.Recoverer)

	for _, origin := range config.AllowedOrigins {
		app.log.Info("CORS allowing origin", zap.String("origin", origin))
	}
	corsMW := cors.New(cors.Options{
		AllowedOrigins: config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	app.handler = corsMW.Handler(app.router)

	app.InstallHandlers()

	return app
}

// Handler returns the configured HTTP handler.
func (app *App) Handler() http.Handler {
	return app.handler
}

func (app *App) sendError(w http.ResponseWriter, r *http.Request, while string, err error) {
	log := app.log.With(zap.String("request_id", chimw.GetReqID(r.Context())))
	he.SendErrorToHTTPClient(w, log, while, err)
}

func (app *App) sendJSON(w http.ResponseWriter, r *http.Request, v any) {
	bytes, err := json.Marshal(v)
	if err != nil {
		app.sendError(w, r, "marshal response", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(bytes)
}

// statusFor attaches an HTTP status to the errors callers can do something
// about.
func statusFor(err error) error {
	switch {
	case errors.Is(err, invoice.ErrInvalidCompetitionID):
		return he.New(http.StatusBadRequest, err)
	case errors.Is(err, invoice.ErrSummaryNotFound), errors.Is(err, batch.ErrUnknownCompetition):
		return he.New(http.StatusNotFound, err)
	case errors.Is(err, context.Canceled):
		return he.New(499, err)
	}
	return err
}

func (app *App) handleCompetitionPayouts(w http.ResponseWriter, r *http.Request) {
	id := urlpath.CompetitionID(r)
	s, err := app.summaries.GetCompetitionPayoutDetails(r.Context(), id)
	if err != nil {
		app.sendError(w, r, "fetch payout summary", err)
		return
	}
	if s == nil {
		app.sendError(w, r, "fetch payout summary",
			he.HTTPCodedErrorf(http.StatusNotFound, "no payout for competition %q", id))
		return
	}
	app.sendJSON(w, r, s)
}

func (app *App) handleYearlyPayouts(w http.ResponseWriter, r *http.Request) {
	year, err := urlpath.Year(r)
	if err != nil {
		app.sendError(w, r, "parse url", err)
		return
	}
	s, err := app.summaries.GetYearlyWinningsSummary(r.Context(), year)
	if err != nil {
		app.sendError(w, r, "fetch yearly summary", err)
		return
	}
	app.sendJSON(w, r, s)
}

type processResponse struct {
	Processed int `json:"processed"`
}

func (app *App) handleProcessAll(w http.ResponseWriter, r *http.Request) {
	processRequests.Add(1)
	n, err := app.payouts.Run(r.Context())
	if err != nil {
		app.sendError(w, r, "process payouts", statusFor(err))
		return
	}
	app.sendJSON(w, r, processResponse{Processed: n})
}

func (app *App) handleProcessOne(w http.ResponseWriter, r *http.Request) {
	processRequests.Add(1)
	ok, err := app.payouts.ProcessOne(r.Context(), urlpath.CompetitionID(r))
	if err != nil {
		app.sendError(w, r, "process payout", statusFor(err))
		return
	}
	resp := processResponse{}
	if ok {
		resp.Processed = 1
	}
	app.sendJSON(w, r, resp)
}

func (app *App) handleInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceRequests.Add(1)
	out, err := app.invoicer.Run(r.Context(), urlpath.CompetitionID(r))
	if err != nil {
		app.sendError(w, r, "invoice competition", statusFor(err))
		return
	}
	app.sendJSON(w, r, out)
}

func (app *App) InstallHandlers() {
	app.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		app.sendJSON(w, r, map[string]string{"status": "ok", "time": app.clock.Now().UTC().Format(time.RFC3339)})
	})

	app.router.Get("/robots.txt", handlers.HandleRobotsTXT)

	app.router.Handle("/debug/vars", varz.Handler())

	app.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.CacheControl(app.maxAge, false))
			r.Get("/competitions/{id}/payouts", app.handleCompetitionPayouts)
			r.Get("/years/{year}/payouts", app.handleYearlyPayouts)
		})

		r.Post("/payouts/process", app.handleProcessAll)
		r.Post("/competitions/{id}/payouts/process", app.handleProcessOne)
		r.Post("/competitions/{id}/invoice", app.handleInvoice)
	})
}

// Wrapper to just return the input context.
func contextualizer(ctx context.Context) func(net.Listener) context.Context {
	return func(_ net.Listener) context.Context {
		return ctx
	}
}

// Serve runs the HTTP server until ctx is done or the listener fails.
func (app *App) Serve(ctx context.Context, listenAddress string) error {
	server := &http.Server{
		Addr:         listenAddress,
		Handler:      app.handler,
		BaseContext:  contextualizer(ctx),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			app.log.Warn("http shutdown", zap.Error(err))
		}
	}()

	app.log.Info("serving http", zap.String("address", listenAddress))
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		wg.Wait()
		return nil
	}
	return fmt.Errorf("http server exited: %w", err)
}
