// Package calendar renders iCalendar feeds for festivals and a member's Aufguss claims.
package calendar

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"saunafreunde/internal/models"
)

const (
	productID = "-//Saunafreunde//Aufgussplan//DE"
	uidDomain = "saunafreunde"
)

func newCalendar(name string) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(name)
	return cal
}

// Festivals renders all festivals as one feed.
func Festivals(festivals []models.Festival, now time.Time) string {
	cal := newCalendar("Saunafreunde Festivals")
	for _, f := range festivals {
		ev := cal.AddEvent(fmt.Sprintf("festival-%d@%s", f.ID, uidDomain))
		ev.SetDtStampTime(now)
		ev.SetStartAt(f.StartDate)
		ev.SetEndAt(f.EndDate)
		ev.SetSummary(f.Name)
		if f.Description != "" {
			ev.SetDescription(f.Description)
		}
		if f.Location != "" {
			ev.SetLocation(f.Location)
		}
	}
	return cal.Serialize()
}

// Claims renders a member's claims, one event per Aufguss.
func Claims(owner string, claims []models.AufgussClaim, now time.Time) string {
	cal := newCalendar("Aufgüsse " + owner)
	for _, c := range claims {
		ev := cal.AddEvent(fmt.Sprintf("aufguss-%d@%s", c.ID, uidDomain))
		ev.SetDtStampTime(now)
		ev.SetStartAt(c.StartTime)
		ev.SetEndAt(c.EndTime)
		ev.SetSummary(fmt.Sprintf("%s-Aufguss", c.AufgussType))
		ev.SetLocation(c.SaunaName)
		ev.SetDescription(fmt.Sprintf("Aufguss in der %s", c.SaunaName))
	}
	return cal.Serialize()
}
