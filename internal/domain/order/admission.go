package order

import "time"

// AdmissionWindow is the clock-time range during which checkout is accepted.
// Both ends are inclusive to the minute. Delivery orders may close earlier
// than pickup orders.
type AdmissionWindow struct {
	OpenHour            int
	OpenMinute          int
	CloseHour           int
	CloseMinute         int
	DeliveryCloseHour   int
	DeliveryCloseMinute int
}

// DefaultAdmissionWindow opens at 07:00, stops delivery at 21:00 and pickup
// at 21:30.
var DefaultAdmissionWindow = AdmissionWindow{
	OpenHour:            7,
	CloseHour:           21,
	CloseMinute:         30,
	DeliveryCloseHour:   21,
	DeliveryCloseMinute: 0,
}

// Allows reports whether checkout is open at t. t must already be in the
// operating timezone.
func (w AdmissionWindow) Allows(t time.Time, delivery bool) bool {
	at := t.Hour()*60 + t.Minute()
	open := w.OpenHour*60 + w.OpenMinute
	closing := w.CloseHour*60 + w.CloseMinute
	if delivery {
		closing = w.DeliveryCloseHour*60 + w.DeliveryCloseMinute
	}
	return at >= open && at <= closing
}
