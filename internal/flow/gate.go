package flow

import "github.com/antoniostano/phonedesk/internal/callstate"

// GroupGate reports whether the scheduling executor may run for a group
// booking. It depends only on collected data, so once participants and a
// time preference are known it stays true until the booking completes.
func GroupGate(st callstate.CallState) bool {
	return st.GroupBooking &&
		len(st.Participants) >= 2 &&
		st.TimePreference != nil &&
		st.GroupBookingComplete == nil &&
		!st.AppointmentCreated
}
