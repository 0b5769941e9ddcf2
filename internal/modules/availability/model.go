// README: Availability rows and the per-session lookup index built from them.
package availability

import (
	"time"

	"lastmile/internal/types"
)

type Row struct {
	DriverID  types.ID    `json:"driver_id"`
	Date      time.Time   `json:"date"`
	Cycle     types.Cycle `json:"cycle"`
	Available bool        `json:"available"`
}

type slotKey struct {
	driverID types.ID
	date     string
	cycle    types.Cycle
}

// Index answers availability questions for one allocation session.
// A missing row means the driver is not available.
type Index struct {
	slots map[slotKey]bool
}

func Build(rows []Row) *Index {
	idx := &Index{
		slots: make(map[slotKey]bool, len(rows)),
	}
	for _, r := range rows {
		date := types.FormatDate(r.Date)
		idx.slots[slotKey{r.DriverID, date, r.Cycle}] = r.Available
	}
	return idx
}

// Available reports whether driverID can work on date in cycle. NoCycle (rescue
// routes) matches when any cycle row for the date is available.
func (i *Index) Available(driverID types.ID, date time.Time, cycle types.Cycle) bool {
	if i == nil {
		return false
	}
	d := types.FormatDate(date)
	if cycle == types.NoCycle {
		for _, c := range types.ShiftCycles {
			if i.slots[slotKey{driverID, d, c}] {
				return true
			}
		}
		return false
	}
	return i.slots[slotKey{driverID, d, cycle}]
}
