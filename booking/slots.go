package booking

import "time"

// DefaultSlotTimes is the fixed daily slot grid, in catalog order.
var DefaultSlotTimes = []string{
	"09:00 AM",
	"10:00 AM",
	"11:00 AM",
	"01:00 PM",
	"02:00 PM",
	"03:00 PM",
	"04:00 PM",
}

// Slot is one bookable (date, time) pair from the catalog.
type Slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// SlotKey is the composite key used in booked-slot sets.
func SlotKey(date, slotTime string) string {
	return date + "-" + slotTime
}

// Catalog is a fixed, ordered list of bookable slots, defined once and never
// mutated at runtime.
type Catalog struct {
	slots []Slot
	index map[string]struct{}
}

// NewCatalog builds a catalog as the cross product of the given dates and
// DefaultSlotTimes, preserving order.
func NewCatalog(dates []string) *Catalog {
	c := &Catalog{
		slots: make([]Slot, 0, len(dates)*len(DefaultSlotTimes)),
		index: make(map[string]struct{}, len(dates)*len(DefaultSlotTimes)),
	}
	for _, d := range dates {
		for _, t := range DefaultSlotTimes {
			c.slots = append(c.slots, Slot{Date: d, Time: t})
			c.index[SlotKey(d, t)] = struct{}{}
		}
	}
	return c
}

// UpcomingCatalog covers the next days calendar days starting tomorrow,
// weekends excluded.
func UpcomingCatalog(now time.Time, days int) *Catalog {
	dates := make([]string, 0, days)
	d := now
	for len(dates) < days {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		dates = append(dates, d.Format("2006-01-02"))
	}
	return NewCatalog(dates)
}

// Contains reports whether (date, time) is a catalog slot at all.
func (c *Catalog) Contains(date, slotTime string) bool {
	_, ok := c.index[SlotKey(date, slotTime)]
	return ok
}

// Available filters the catalog by the booked-slot set and, when dateFilter is
// non-empty, by exact date match. Pure function over its inputs; ordering is
// catalog order.
func (c *Catalog) Available(booked map[string]struct{}, dateFilter string) []Slot {
	out := make([]Slot, 0, len(c.slots))
	for _, s := range c.slots {
		if dateFilter != "" && s.Date != dateFilter {
			continue
		}
		if _, taken := booked[SlotKey(s.Date, s.Time)]; taken {
			continue
		}
		out = append(out, s)
	}
	return out
}
