package approval

import (
	"deferral-backend/internal/domain/deferral"
	"deferral-backend/internal/notify"
)

// Publisher takes notices for out-of-band delivery. It must not block.
type Publisher interface {
	Publish(n notify.Notice)
}

// Notices maps a transition event to the notifications it owes.
// completionRecipient receives the chain-completed email.
func Notices(d *deferral.Deferral, ev deferral.Event, completionRecipient string) []notify.Notice {
	base := notify.Notice{Deferral: noticeDeferral(d), Reason: ev.Reason}
	requestor := notify.Recipient{UserID: d.RequestorID}

	switch ev.Kind {
	case deferral.EventSubmitted, deferral.EventMoved, deferral.EventReminder:
		if ev.Recipient == nil {
			return nil
		}
		base.To = recipientFor(*ev.Recipient)
		base.Kind = map[deferral.EventKind]notify.Kind{
			deferral.EventSubmitted: notify.KindSubmitted,
			deferral.EventMoved:     notify.KindMoved,
			deferral.EventReminder:  notify.KindReminder,
		}[ev.Kind]
	case deferral.EventChainCompleted:
		if completionRecipient == "" {
			return nil
		}
		base.Kind = notify.KindFinalApproved
		base.To = notify.Recipient{Email: completionRecipient}
	case deferral.EventApproved:
		base.Kind = notify.KindFinalApproved
		base.To = requestor
		base.InApp = true
	case deferral.EventRejected:
		base.Kind = notify.KindRejected
		base.To = requestor
		base.InApp = true
	case deferral.EventReturned:
		base.Kind = notify.KindReturned
		base.To = requestor
		base.InApp = true
	default:
		return nil
	}
	return []notify.Notice{base}
}

func recipientFor(ref deferral.ApproverRef) notify.Recipient {
	if ref.Kind == deferral.RefContact {
		return notify.Recipient{Email: ref.Email, Name: ref.Name}
	}
	return notify.Recipient{UserID: ref.UserID}
}

func noticeDeferral(d *deferral.Deferral) notify.Deferral {
	name := d.Customer.CustomerName
	if name == "" {
		name = d.Customer.BusinessName
	}
	return notify.Deferral{
		ID:           d.DeferralID,
		Number:       d.DeferralNumber,
		CustomerName: name,
		DCLNumber:    d.DCLNumber,
		DaysSought:   d.DaysSought,
		Status:       string(d.Status),
		ApprovedAt:   d.ApprovedAt,
	}
}
