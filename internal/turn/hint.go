package turn

import "github.com/antoniostano/phonedesk/internal/callstate"

// contextHint tells the classifier what the caller was last asked.
func contextHint(st callstate.CallState) string {
	switch st.Stage {
	case callstate.StageGreeting:
		return "the caller has just been greeted and asked how we can help"
	case callstate.StageIdentifyCaller:
		return "the caller was asked for their name or whether they are a new patient"
	case callstate.StageAwaitIntent:
		return "the caller was asked what they would like to do"
	case callstate.StageAnythingElse, callstate.StageConfirmed:
		return "the caller was asked if there is anything else we can help with"
	case callstate.StageOfferBookNew, callstate.StageOfferRebook:
		return "the caller was asked whether they want to book a new appointment"
	case callstate.StageBookingSlotNegotiation, callstate.StageGroupBookingSlotNegotiation:
		return "the caller was offered an appointment time"
	case callstate.StageRescheduleConfirm, callstate.StageCancelConfirm:
		return "the caller was asked to confirm which appointment to change"
	case callstate.StageGroupBookingCollect:
		return "the caller was asked who the appointments are for"
	default:
		return ""
	}
}
