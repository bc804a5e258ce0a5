// Package history serves historical bar queries through the data service's
// download-then-read-local model, normalizing broker timestamp and auction
// session artifacts, with a SQLite cache as offline fallback.
package history

import (
	"time"

	"xtgate/internal/domain"
)

// window is a half-open [from, to) range in minutes since midnight.
type window struct {
	from, to int
}

// venueSession describes one venue's trading day: when the day's bars are
// final and which windows hold pre-open auction micro-bars.
type venueSession struct {
	closeMinute int
	auction     []window
}

// Venue session table. The stock venues and CFFEX report auction trades under
// timestamps before the 09:30 open; the commodity venues report them in the
// ten minutes before the day and night sessions.
var venueSessions = map[domain.Exchange]venueSession{
	domain.ExchangeSSE:  {closeMinute: 15 * 60, auction: []window{{0, 9*60 + 30}}},
	domain.ExchangeSZSE: {closeMinute: 15 * 60, auction: []window{{0, 9*60 + 30}}},
	domain.ExchangeBSE:  {closeMinute: 15 * 60, auction: []window{{0, 9*60 + 30}}},

	domain.ExchangeCFFEX: {closeMinute: 15*60 + 15, auction: []window{{0, 9*60 + 30}}},

	domain.ExchangeSHFE: {closeMinute: 15 * 60, auction: []window{{8*60 + 50, 9 * 60}, {20*60 + 50, 21 * 60}}},
	domain.ExchangeINE:  {closeMinute: 15 * 60, auction: []window{{8*60 + 50, 9 * 60}, {20*60 + 50, 21 * 60}}},
	domain.ExchangeDCE:  {closeMinute: 15 * 60, auction: []window{{8*60 + 50, 9 * 60}, {20*60 + 50, 21 * 60}}},
	domain.ExchangeCZCE: {closeMinute: 15 * 60, auction: []window{{8*60 + 50, 9 * 60}, {20*60 + 50, 21 * 60}}},
	domain.ExchangeGFEX: {closeMinute: 15 * 60, auction: []window{{8*60 + 50, 9 * 60}, {20*60 + 50, 21 * 60}}},
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// inAuctionWindow reports whether a bar starting at t falls in the venue's
// pre-open auction window.
func inAuctionWindow(ex domain.Exchange, t time.Time) bool {
	session, ok := venueSessions[ex]
	if !ok {
		return false
	}
	m := minuteOfDay(t)
	for _, w := range session.auction {
		if m >= w.from && m < w.to {
			return true
		}
	}
	return false
}

// sessionClosed reports whether the venue's daily close has passed at t, so
// that today's daily bar is final.
func sessionClosed(ex domain.Exchange, t time.Time) bool {
	session, ok := venueSessions[ex]
	if !ok {
		return true
	}
	return minuteOfDay(t) >= session.closeMinute
}
