// Package report computes and renders the harvest dashboard.
package report

import (
	"time"

	"github.com/JakeFAU/bidharvest/internal/contacts"
	"github.com/JakeFAU/bidharvest/internal/harvest"
)

// TopDomainCount is how many domains the dashboard lists.
const TopDomainCount = 5

// Windows are the calendar boundaries the dashboard counts against.
type Windows struct {
	Day   time.Time
	Week  time.Time
	Month time.Time
}

// WindowsAt returns the start of today, of the week (Monday) and of the month
// in the location of now.
func WindowsAt(now time.Time) Windows {
	y, m, d := now.Date()
	loc := now.Location()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	offset := (int(now.Weekday()) + 6) % 7
	return Windows{
		Day:   day,
		Week:  day.AddDate(0, 0, -offset),
		Month: time.Date(y, m, 1, 0, 0, 0, 0, loc),
	}
}

// BidStats summarises the ledger.
type BidStats struct {
	Total         int
	Relevant      int
	Today         int
	TodayRelevant int
	Week          int
	Month         int
}

// UsefulRate is the share of relevant bids in percent.
func (b BidStats) UsefulRate() float64 {
	if b.Total == 0 {
		return 0
	}
	return float64(b.Relevant) / float64(b.Total) * 100
}

// ContactStats summarises the contact store.
type ContactStats struct {
	Total      int
	AddedToday int
	AddedWeek  int
	AddedMonth int
	SentToday  int
	SentWeek   int
	SentMonth  int
	FollowUps  int
	Active     int
}

// Stats is the whole dashboard.
type Stats struct {
	Windows    Windows
	Bids       BidStats
	Contacts   ContactStats
	TopDomains []contacts.DomainCount
}

// Compute builds the dashboard from ledger entries and contact records.
func Compute(entries map[string]harvest.LedgerEntry, records []harvest.ContactRecord, domains []contacts.DomainCount, now time.Time) Stats {
	w := WindowsAt(now)
	s := Stats{Windows: w}

	for _, e := range entries {
		s.Bids.Total++
		relevant := e.Relevance.IsMatch
		if relevant {
			s.Bids.Relevant++
		}
		if !e.Timestamp.Before(w.Day) {
			s.Bids.Today++
			if relevant {
				s.Bids.TodayRelevant++
			}
		}
		if !e.Timestamp.Before(w.Week) {
			s.Bids.Week++
		}
		if !e.Timestamp.Before(w.Month) {
			s.Bids.Month++
		}
	}

	for _, r := range records {
		c := &s.Contacts
		c.Total++
		c.AddedToday += countSince(r.DateAdded, w.Day)
		c.AddedWeek += countSince(r.DateAdded, w.Week)
		c.AddedMonth += countSince(r.DateAdded, w.Month)
		if r.SendCount > 0 {
			c.Active++
		}
		if r.SendCount > 1 {
			c.FollowUps++
		}
		if r.LastSentAt != nil {
			c.SentToday += countSince(*r.LastSentAt, w.Day)
			c.SentWeek += countSince(*r.LastSentAt, w.Week)
			c.SentMonth += countSince(*r.LastSentAt, w.Month)
		}
	}

	if len(domains) > TopDomainCount {
		domains = domains[:TopDomainCount]
	}
	s.TopDomains = domains
	return s
}

func countSince(t, start time.Time) int {
	if t.Before(start) {
		return 0
	}
	return 1
}
