package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JakeFAU/bidharvest/internal/contacts"
	"github.com/JakeFAU/bidharvest/internal/crawl"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

// Render writes the dashboard to w.
func Render(w io.Writer, s Stats) {
	bids := newTable(w, "Bid acquisition")
	bids.AppendHeader(table.Row{"Window", "Bids", "Relevant"})
	bids.AppendRow(table.Row{"Today", s.Bids.Today, s.Bids.TodayRelevant})
	bids.AppendRow(table.Row{"This week", s.Bids.Week, ""})
	bids.AppendRow(table.Row{"This month", s.Bids.Month, ""})
	bids.AppendFooter(table.Row{"Total", s.Bids.Total, fmt.Sprintf("%d (%.1f%%)", s.Bids.Relevant, s.Bids.UsefulRate())})
	bids.Render()

	c := s.Contacts
	growth := newTable(w, "Contacts")
	growth.AppendHeader(table.Row{"Window", "Added", "Sent"})
	growth.AppendRow(table.Row{"Today", c.AddedToday, c.SentToday})
	growth.AppendRow(table.Row{"This week", c.AddedWeek, c.SentWeek})
	growth.AppendRow(table.Row{"This month", c.AddedMonth, c.SentMonth})
	growth.AppendSeparator()
	growth.AppendRow(table.Row{"Follow-ups (>1 send)", "", c.FollowUps})
	growth.AppendRow(table.Row{"Active (contacted)", "", c.Active})
	growth.AppendFooter(table.Row{"Total", c.Total, ""})
	growth.Render()

	RenderDomains(w, "Top domains", s.TopDomains)
}

// RenderDomains writes a domain count table.
func RenderDomains(w io.Writer, title string, domains []contacts.DomainCount) {
	t := newTable(w, title)
	t.AppendHeader(table.Row{"#", "Domain", "Addresses"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
	})
	for i, d := range domains {
		t.AppendRow(table.Row{i + 1, d.Domain, d.Count})
	}
	if len(domains) == 0 {
		t.AppendRow(table.Row{"", "(none)", ""})
	}
	t.Render()
}

// CrawlRow is one listing query's crawl outcome.
type CrawlRow struct {
	Query   string
	Summary crawl.Summary
	Err     error
}

// RenderCrawl writes one row per query plus totals.
func RenderCrawl(w io.Writer, rows []CrawlRow) {
	t := newTable(w, "Crawl summary")
	t.AppendHeader(table.Row{"Query", "Pages", "Items", "Processed", "Skipped", "Failed", "Relevant", "Stop", "Duration"})
	var total crawl.Summary
	for _, r := range rows {
		s := r.Summary
		stop := string(s.StopReason)
		if r.Err != nil {
			stop = "error: " + r.Err.Error()
		}
		t.AppendRow(table.Row{r.Query, s.Pages, s.Items, s.Processed, s.Skipped, s.Failed, s.Relevant, stop, s.Duration.Round(time.Second)})
		total.Pages += s.Pages
		total.Items += s.Items
		total.Processed += s.Processed
		total.Skipped += s.Skipped
		total.Failed += s.Failed
		total.Relevant += s.Relevant
		total.Duration += s.Duration
	}
	t.AppendFooter(table.Row{"Total", total.Pages, total.Items, total.Processed, total.Skipped, total.Failed, total.Relevant, "", total.Duration.Round(time.Second)})
	t.Render()
}
