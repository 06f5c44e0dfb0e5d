package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/clubhouse/prizepayout/batch"
	"github.com/clubhouse/prizepayout/invoice"
	"github.com/clubhouse/prizepayout/model"
	"github.com/clubhouse/prizepayout/money"
	"github.com/clubhouse/prizepayout/textutil"
)

// output writes tables for people and JSON for pipes.
type output struct {
	w      io.Writer
	asJSON bool
}

func newOutput(f *os.File, forceJSON bool) *output {
	return &output{w: f, asJSON: forceJSON || !term.IsTerminal(int(f.Fd()))}
}

func (o *output) json(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *output) table(write func(w io.Writer)) error {
	w := tabwriter.NewWriter(o.w, 0, 8, 2, ' ', 0)
	write(w)
	return w.Flush()
}

func (o *output) stats(s batch.RunStats) error {
	if o.asJSON {
		return o.json(s)
	}
	return o.table(func(w io.Writer) {
		fmt.Fprintf(w, "discovered\t%d\n", s.Discovered)
		fmt.Fprintf(w, "processed\t%d\n", s.Processed)
		fmt.Fprintf(w, "already paid\t%d\n", s.AlreadyPaid)
		fmt.Fprintf(w, "ineligible\t%d\n", s.Ineligible)
		fmt.Fprintf(w, "undated\t%d\n", s.Undated)
		fmt.Fprintf(w, "failed\t%d\n", s.Failed)
	})
}

func (o *output) outcomes(outs []*invoice.Outcome) error {
	if o.asJSON {
		if outs == nil {
			outs = []*invoice.Outcome{}
		}
		return o.json(outs)
	}
	return o.table(func(w io.Writer) {
		fmt.Fprintf(w, "competition\tinvoice\tticket\temails sent\tskipped\n")
		for _, out := range outs {
			ticket := out.TicketID
			if out.Skipped {
				ticket = "(nothing paid)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
				out.CompetitionID, out.InvoiceID, ticket, out.WinnerEmailsSent, out.WinnerEmailsSkipped)
		}
	})
}

func (o *output) competition(s *model.CompetitionWinningsSummary) error {
	if o.asJSON {
		return o.json(s)
	}
	return o.table(func(w io.Writer) {
		fmt.Fprintf(w, "%s (%s) on %s\n", s.CompetitionName, s.CompetitionID, s.CompetitionDate.Format("2006-01-02"))
		fmt.Fprintf(w, "entrants %d, revenue %s, prize fund %s, charity %s\n\n",
			s.Entrants,
			money.Format(s.Revenue, s.Currency),
			money.Format(s.PrizePot, s.Currency),
			money.Format(s.CharityAmount, s.Currency))
		fmt.Fprintf(w, "division\tplace\tcompetitor\tamount\n")
		for _, d := range s.Divisions {
			for _, p := range d.Placings {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					d.Name, textutil.FormatPlace(p.Position), p.CompetitorName, money.Format(p.Amount, s.Currency))
			}
		}
		fmt.Fprintf(w, "\t\ttotal\t%s\n", money.Format(s.TotalPaid, s.Currency))
		if s.TopEarner != nil {
			fmt.Fprintf(w, "\ntop earner: %s (%s)\n", s.TopEarner.CompetitorName, money.Format(s.TopEarner.Total, s.Currency))
		}
	})
}

func (o *output) yearly(s *model.YearlyWinningsSummary) error {
	if o.asJSON {
		return o.json(s)
	}
	currency := ""
	if len(s.Competitions) > 0 {
		currency = s.Competitions[0].Currency
	}
	return o.table(func(w io.Writer) {
		fmt.Fprintf(w, "date\tcompetition\tpaid\n")
		for _, c := range s.Competitions {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				c.CompetitionDate.Format("2006-01-02"), c.CompetitionName, money.Format(c.TotalPaid, c.Currency))
		}
		fmt.Fprintf(w, "\ttotal\t%s\n\n", money.Format(s.TotalPaid, currency))
		fmt.Fprintf(w, "rank\tcompetitor\twins\twon\n")
		for i, e := range s.TopEarners {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", i+1, e.CompetitorName, e.Wins, money.Format(e.Total, currency))
		}
	})
}
