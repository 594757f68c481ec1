package deferral

import (
	"fmt"
	"strings"
	"time"

	"deferral-backend/internal/domain/document"
	"deferral-backend/pkg/id"
)

const (
	DefaultRejectionReason = "Rejected by approver"
	DefaultReworkComment   = "Please review and resubmit"
)

type EventKind string

const (
	EventNone      EventKind = ""
	EventSubmitted EventKind = "submitted"
	EventMoved     EventKind = "moved"
	// EventChainCompleted fires when the last approver slot signs off.
	EventChainCompleted EventKind = "chain_completed"
	// EventApproved fires when the checker makes the deferral terminally approved.
	EventApproved EventKind = "approved"
	EventRejected EventKind = "rejected"
	EventReturned EventKind = "returned_for_rework"
	EventReminder EventKind = "reminder"
)

// Event tells the caller which notification a transition calls for.
// Recipient is set when the target is an approver slot.
type Event struct {
	Kind      EventKind
	Recipient *ApproverRef
	Reason    string
}

// New builds a freshly submitted deferral. Number, content and customer
// fields are filled by the caller.
func New(requestor Actor, approvers []ApproverSlot, now time.Time) *Deferral {
	d := &Deferral{
		DeferralID:            id.NewID32(),
		Status:                StatusPendingApproval,
		Approvers:             resetSlots(approvers),
		CurrentApproverIndex:  0,
		CreatorApprovalStatus: StagePending,
		CheckerApprovalStatus: StagePending,
		RequestorID:           requestor.ID,
		Facilities:            []Facility{},
		Documents:             []document.Document{},
		SelectedDocuments:     []document.Selected{},
		History:               []HistoryEntry{},
		Comments:              []Comment{},
		Version:               1,
	}
	d.appendHistory(HistoryEntry{
		Action:   ActionSubmitted,
		UserID:   requestor.ID,
		UserName: requestor.Name,
		Notes:    "Deferral submitted",
		Date:     now,
	})
	d.syncDerived()
	return d
}

// FirstApproverEvent is the notification owed after submission, if any slot exists.
func (d *Deferral) FirstApproverEvent() Event {
	if len(d.Approvers) == 0 {
		return Event{}
	}
	ref := d.Approvers[0].Ref
	return Event{Kind: EventSubmitted, Recipient: &ref}
}

// ApproveStep signs off the current approver slot.
func (d *Deferral) ApproveStep(actor Actor, comment string, now time.Time) (Event, error) {
	i, err := d.currentSlotFor(actor)
	if err != nil {
		return Event{}, err
	}
	comment = strings.TrimSpace(comment)
	at := now
	d.Approvers[i].Approved = true
	d.Approvers[i].ApprovedAt = &at
	d.appendHistory(HistoryEntry{
		Action:   ActionApproved,
		UserID:   actor.ID,
		UserName: actor.Name,
		Notes:    "Approved by " + actor.Name,
		Comment:  comment,
		Date:     now,
	})

	var ev Event
	if i+1 < len(d.Approvers) {
		d.CurrentApproverIndex = i + 1
		d.Status = StatusInReview
		d.appendHistory(HistoryEntry{
			Action:   ActionMoved,
			UserID:   actor.ID,
			UserName: actor.Name,
			Notes:    "Moved to next approver",
			Date:     now,
		})
		next := d.Approvers[d.CurrentApproverIndex].Ref
		ev = Event{Kind: EventMoved, Recipient: &next}
	} else {
		d.CurrentApproverIndex = len(d.Approvers)
		d.AllApproversApproved = true
		// stays in_review until creator and checker sign off
		d.Status = StatusInReview
		d.ApprovedBy = actor.Name
		d.ApprovedByID = actor.ID
		d.ApprovedAt = &at
		d.appendHistory(HistoryEntry{
			Action:   ActionCompleted,
			UserID:   actor.ID,
			UserName: actor.Name,
			Notes:    "Final approver approved - awaiting creator and checker approval",
			Date:     now,
		})
		ev = Event{Kind: EventChainCompleted}
	}
	if comment != "" {
		d.addComment(actor.ID, comment, now)
	}
	d.syncDerived()
	return ev, nil
}

// ApproveByCreator is the second gate. An unset creator is adopted from actor.
func (d *Deferral) ApproveByCreator(actor Actor, comment string, now time.Time) error {
	if d.Status != StatusInReview && d.Status != StatusPendingApproval {
		return fmt.Errorf("%w: deferral is %s", ErrPrecondition, d.Status)
	}
	if !d.AllApproversApproved {
		return fmt.Errorf("%w: all approvers must approve before creator approval", ErrPrecondition)
	}
	if d.CreatorApprovalStatus == StageApproved {
		return fmt.Errorf("%w: creator has already approved", ErrPrecondition)
	}
	if d.CreatorID != "" && d.CreatorID != actor.ID {
		return fmt.Errorf("%w: only the creator can approve", ErrUnauthorized)
	}
	comment = strings.TrimSpace(comment)
	at := now
	d.CreatorID = actor.ID
	d.CreatorApprovalStatus = StageApproved
	d.CreatorApprovedAt = &at
	d.appendHistory(HistoryEntry{
		Action:   ActionApproved,
		UserID:   actor.ID,
		UserName: actor.Name,
		Notes:    "Approved by Creator: " + actor.Name + suffix(comment),
		Comment:  comment,
		Date:     now,
	})
	if comment != "" {
		d.addComment(actor.ID, comment, now)
	}
	d.syncDerived()
	return nil
}

// ApproveByChecker is the last gate; it makes the deferral terminally approved.
func (d *Deferral) ApproveByChecker(actor Actor, comment string, now time.Time) (Event, error) {
	if d.Status != StatusInReview && d.Status != StatusPendingApproval {
		return Event{}, fmt.Errorf("%w: deferral is %s", ErrPrecondition, d.Status)
	}
	if !d.AllApproversApproved {
		return Event{}, fmt.Errorf("%w: all approvers must approve before checker approval", ErrPrecondition)
	}
	if d.CreatorApprovalStatus != StageApproved {
		return Event{}, fmt.Errorf("%w: creator must approve before checker approval", ErrPrecondition)
	}
	if d.CheckerID != "" && d.CheckerID != actor.ID {
		return Event{}, fmt.Errorf("%w: only the checker can approve", ErrUnauthorized)
	}
	comment = strings.TrimSpace(comment)
	at := now
	d.CheckerID = actor.ID
	d.CheckerApprovalStatus = StageApproved
	d.CheckerApprovedAt = &at
	d.Status = StatusApproved
	d.appendHistory(HistoryEntry{
		Action:   ActionApproved,
		UserID:   actor.ID,
		UserName: actor.Name,
		Notes:    "Approved by Checker: " + actor.Name + suffix(comment) + " - Deferral fully approved",
		Comment:  comment,
		Date:     now,
	})
	if comment != "" {
		d.addComment(actor.ID, comment, now)
	}
	d.syncDerived()
	return Event{Kind: EventApproved}, nil
}

// Reject ends the workflow. Only the current approver may reject.
func (d *Deferral) Reject(actor Actor, reason string, now time.Time) (Event, error) {
	if _, err := d.currentSlotFor(actor); err != nil {
		return Event{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultRejectionReason
	}
	at := now
	d.Status = StatusRejected
	d.RejectionReason = reason
	d.RejectedBy = actor.Name
	d.RejectedByID = actor.ID
	d.RejectedAt = &at
	d.appendHistory(HistoryEntry{
		Action:   ActionRejected,
		UserID:   actor.ID,
		UserName: actor.Name,
		Notes:    reason,
		Date:     now,
	})
	d.syncDerived()
	return Event{Kind: EventRejected, Reason: reason}, nil
}

// ReturnForRework sends the deferral back to the requestor.
func (d *Deferral) ReturnForRework(actor Actor, comment string, now time.Time) (Event, error) {
	if _, err := d.currentSlotFor(actor); err != nil {
		return Event{}, err
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		comment = DefaultReworkComment
	}
	at := now
	d.Status = StatusReturnedForRework
	d.ReworkRequestedBy = actor.Name
	d.ReworkRequestedByID = actor.ID
	d.ReworkRequestedAt = &at
	d.ReworkComment = comment
	d.appendHistory(HistoryEntry{
		Action:   ActionReturnedForRework,
		UserID:   actor.ID,
		UserName: actor.Name,
		Notes:    comment,
		Date:     now,
	})
	d.syncDerived()
	return Event{Kind: EventReturned, Reason: comment}, nil
}

// SetApprovers replaces the chain. Allowed only before anyone has approved.
func (d *Deferral) SetApprovers(actor Actor, slots []ApproverSlot, now time.Time) (Event, error) {
	if d.Status != StatusPendingApproval {
		return Event{}, fmt.Errorf("%w: approvers can only be set while pending approval (status %s)", ErrPrecondition, d.Status)
	}
	if d.anyApproved() {
		return Event{}, fmt.Errorf("%w: approvers cannot be replaced after an approval", ErrPrecondition)
	}
	d.Approvers = resetSlots(slots)
	d.CurrentApproverIndex = 0
	d.AllApproversApproved = false
	d.appendHistory(HistoryEntry{
		Action:   ActionApproversUpdated,
		UserID:   actor.ID,
		UserName: actor.Name,
		Notes:    fmt.Sprintf("Approver chain set (%d approvers)", len(d.Approvers)),
		Date:     now,
	})
	d.syncDerived()
	return d.FirstApproverEvent(), nil
}

// RemoveApprover drops a slot that has not approved yet. It refuses a
// removal that would complete the chain without the removed approver acting.
func (d *Deferral) RemoveApprover(actor Actor, index int, now time.Time) (Event, error) {
	if !d.Status.Actionable() {
		return Event{}, fmt.Errorf("%w: deferral is %s", ErrPrecondition, d.Status)
	}
	if index < 0 || index >= len(d.Approvers) {
		return Event{}, fmt.Errorf("%w: approver index %d out of range", ErrValidation, index)
	}
	if d.Approvers[index].Approved {
		return Event{}, fmt.Errorf("%w: approver %d has already approved", ErrPrecondition, index)
	}
	if d.anyApproved() && d.pendingSlots() == 1 {
		return Event{}, fmt.Errorf("%w: cannot remove the last pending approver", ErrPrecondition)
	}
	wasCurrent := index == d.CurrentApproverIndex
	d.Approvers = append(d.Approvers[:index:index], d.Approvers[index+1:]...)
	d.appendHistory(HistoryEntry{
		Action:   ActionApproverRemoved,
		UserID:   actor.ID,
		UserName: actor.Name,
		Notes:    fmt.Sprintf("Approver at position %d removed", index+1),
		Date:     now,
	})
	d.syncDerived()
	if wasCurrent && d.CurrentApproverIndex < len(d.Approvers) {
		next := d.Approvers[d.CurrentApproverIndex].Ref
		return Event{Kind: EventMoved, Recipient: &next}, nil
	}
	return Event{}, nil
}

// Remind records a reminder to the current approver. target is the address used.
func (d *Deferral) Remind(actor Actor, target string, now time.Time) (Event, error) {
	if !d.Status.Actionable() {
		return Event{}, fmt.Errorf("%w: deferral is %s", ErrPrecondition, d.Status)
	}
	slot, ok := d.CurrentApprover()
	if !ok {
		return Event{}, fmt.Errorf("%w: no approver is waiting to act", ErrPrecondition)
	}
	d.appendHistory(HistoryEntry{
		Action:   ActionReminder,
		UserID:   actor.ID,
		UserName: actor.Name,
		Notes:    "Reminder sent to " + target,
		Date:     now,
	})
	ref := slot.Ref
	return Event{Kind: EventReminder, Recipient: &ref}, nil
}

// AddComment appends to the discussion; allowed in any status.
func (d *Deferral) AddComment(author Actor, text string, now time.Time) (Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Comment{}, fmt.Errorf("%w: comment text is required", ErrValidation)
	}
	return d.addComment(author.ID, text, now), nil
}

// AddDocument appends an attachment; allowed in any status.
func (d *Deferral) AddDocument(doc document.Document) {
	d.Documents = append(d.Documents, doc)
}

// RemoveDocument filters the document out of the list.
func (d *Deferral) RemoveDocument(docID string) error {
	docs, ok := document.Remove(d.Documents, docID)
	if !ok {
		return fmt.Errorf("%w: document %s", ErrNotFound, docID)
	}
	d.Documents = docs
	return nil
}

func (d *Deferral) UpdateFacilities(f []Facility) error {
	if d.Status.Terminal() {
		return fmt.Errorf("%w: deferral is %s", ErrPrecondition, d.Status)
	}
	if f == nil {
		f = []Facility{}
	}
	d.Facilities = f
	return nil
}

// CurrentApprover returns the slot whose turn it is.
func (d *Deferral) CurrentApprover() (ApproverSlot, bool) {
	if d.CurrentApproverIndex < 0 || d.CurrentApproverIndex >= len(d.Approvers) {
		return ApproverSlot{}, false
	}
	return d.Approvers[d.CurrentApproverIndex], true
}

// AllApproved is true for a non-empty chain whose every slot has approved.
func AllApproved(slots []ApproverSlot) bool {
	if len(slots) == 0 {
		return false
	}
	for _, s := range slots {
		if !s.Approved {
			return false
		}
	}
	return true
}

// CheckInvariants reports the first structural rule the record breaks.
func (d *Deferral) CheckInvariants() error {
	if d.AllApproversApproved != AllApproved(d.Approvers) {
		return fmt.Errorf("allApproversApproved=%v disagrees with approver slots", d.AllApproversApproved)
	}
	if d.Status.Actionable() {
		if d.CurrentApproverIndex < 0 || d.CurrentApproverIndex > len(d.Approvers) {
			return fmt.Errorf("currentApproverIndex %d outside chain of %d", d.CurrentApproverIndex, len(d.Approvers))
		}
		if d.CurrentApproverIndex == len(d.Approvers) && len(d.Approvers) > 0 && !d.AllApproversApproved {
			return fmt.Errorf("currentApproverIndex past chain before all approved")
		}
	}
	for i := 0; i < d.CurrentApproverIndex && i < len(d.Approvers); i++ {
		if !d.Approvers[i].Approved {
			return fmt.Errorf("approver %d behind the pointer has not approved", i)
		}
	}
	if d.CreatorApprovalStatus == StageApproved && !d.AllApproversApproved {
		return fmt.Errorf("creator approved before approver chain completed")
	}
	if d.CheckerApprovalStatus == StageApproved && d.CreatorApprovalStatus != StageApproved {
		return fmt.Errorf("checker approved before creator")
	}
	if d.Status == StatusApproved && d.CheckerApprovalStatus != StageApproved {
		return fmt.Errorf("approved without checker sign-off")
	}
	return nil
}

// BackfillDefaults fills approval fields missing on legacy records.
func (d *Deferral) BackfillDefaults() {
	if d.CreatorApprovalStatus == "" {
		d.CreatorApprovalStatus = StagePending
	}
	if d.CheckerApprovalStatus == "" {
		d.CheckerApprovalStatus = StagePending
	}
	if !d.AllApproversApproved && AllApproved(d.Approvers) {
		d.AllApproversApproved = true
	}
}

// currentSlotFor returns the current index if actor may act on it.
func (d *Deferral) currentSlotFor(actor Actor) (int, error) {
	if !d.Status.Actionable() {
		return 0, fmt.Errorf("%w: deferral is %s", ErrPrecondition, d.Status)
	}
	slot, ok := d.CurrentApprover()
	if !ok || !slot.Ref.Is(actor.ID) {
		return 0, fmt.Errorf("%w: only the current approver can take this action", ErrUnauthorized)
	}
	return d.CurrentApproverIndex, nil
}

func (d *Deferral) appendHistory(h HistoryEntry) {
	d.History = append(d.History, h)
}

func (d *Deferral) addComment(authorID, text string, now time.Time) Comment {
	c := Comment{ID: id.NewID32(), AuthorID: authorID, Text: text, CreatedAt: now}
	d.Comments = append(d.Comments, c)
	return c
}

func (d *Deferral) anyApproved() bool {
	for _, s := range d.Approvers {
		if s.Approved {
			return true
		}
	}
	return false
}

func (d *Deferral) pendingSlots() int {
	n := 0
	for _, s := range d.Approvers {
		if !s.Approved {
			n++
		}
	}
	return n
}

// syncDerived recomputes the cached fields from the approver slots.
func (d *Deferral) syncDerived() {
	d.AllApproversApproved = AllApproved(d.Approvers)
	d.CurrentApproverID = ""
	if slot, ok := d.CurrentApprover(); ok && slot.Ref.Kind == RefUser && d.Status.Actionable() {
		d.CurrentApproverID = slot.Ref.UserID
	}
}

func resetSlots(in []ApproverSlot) []ApproverSlot {
	out := make([]ApproverSlot, len(in))
	for i, s := range in {
		out[i] = ApproverSlot{Role: s.Role, Ref: s.Ref}
	}
	return out
}

func suffix(comment string) string {
	if comment == "" {
		return ""
	}
	return " - " + comment
}
