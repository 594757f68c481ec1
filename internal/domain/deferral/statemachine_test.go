package deferral

import (
	"errors"
	"testing"
	"time"
)

var (
	alice = Actor{ID: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Name: "Alice"}
	bob   = Actor{ID: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Name: "Bob"}
	carol = Actor{ID: "cccccccccccccccccccccccccccccccc", Name: "Carol"}
	rm    = Actor{ID: "rrrrrrrrrrrrrrrrrrrrrrrrrrrrrrrr", Name: "Rita RM"}
	dave  = Actor{ID: "dddddddddddddddddddddddddddddddd", Name: "Dave"}
)

func threeApprovers() *Deferral {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return New(rm, []ApproverSlot{
		{Role: "Head of Credit", Ref: UserRef(alice.ID)},
		{Role: "Risk", Ref: UserRef(bob.ID)},
		{Role: "CFO", Ref: UserRef(carol.ID)},
	}, now)
}

func mustInvariants(t *testing.T, d *Deferral) {
	t.Helper()
	if err := d.CheckInvariants(); err != nil {
		t.Fatalf("invariant broken: %v", err)
	}
}

func TestNew(t *testing.T) {
	d := threeApprovers()
	if d.Status != StatusPendingApproval || d.CurrentApproverIndex != 0 || d.Version != 1 {
		t.Fatalf("unexpected initial state: %+v", d)
	}
	if d.CurrentApproverID != alice.ID {
		t.Fatalf("current approver id = %q", d.CurrentApproverID)
	}
	if len(d.History) != 1 || d.History[0].Action != ActionSubmitted {
		t.Fatalf("expected submitted history entry, got %+v", d.History)
	}
	ev := d.FirstApproverEvent()
	if ev.Kind != EventSubmitted || ev.Recipient == nil || ev.Recipient.UserID != alice.ID {
		t.Fatalf("unexpected first approver event: %+v", ev)
	}
	mustInvariants(t, d)
}

func TestNew_EmptyChain(t *testing.T) {
	d := New(rm, nil, time.Now())
	if d.AllApproversApproved {
		t.Fatalf("empty chain must not count as all approved")
	}
	if ev := d.FirstApproverEvent(); ev.Kind != EventNone {
		t.Fatalf("expected no event, got %+v", ev)
	}
	mustInvariants(t, d)
}

func TestScenario_FullApproval(t *testing.T) {
	d := threeApprovers()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	ev, err := d.ApproveStep(alice, "looks fine", now)
	if err != nil {
		t.Fatalf("alice approve: %v", err)
	}
	if d.Status != StatusInReview || d.CurrentApproverIndex != 1 {
		t.Fatalf("after A: status=%s idx=%d", d.Status, d.CurrentApproverIndex)
	}
	if ev.Kind != EventMoved || ev.Recipient.UserID != bob.ID {
		t.Fatalf("after A: event %+v", ev)
	}
	if len(d.Comments) != 1 || d.Comments[0].Text != "looks fine" {
		t.Fatalf("comment not mirrored: %+v", d.Comments)
	}
	mustInvariants(t, d)

	if _, err := d.ApproveStep(bob, "", now); err != nil {
		t.Fatalf("bob approve: %v", err)
	}
	if d.CurrentApproverIndex != 2 {
		t.Fatalf("after B: idx=%d", d.CurrentApproverIndex)
	}
	mustInvariants(t, d)

	ev, err = d.ApproveStep(carol, "", now)
	if err != nil {
		t.Fatalf("carol approve: %v", err)
	}
	if !d.AllApproversApproved || d.Status != StatusInReview {
		t.Fatalf("after C: all=%v status=%s", d.AllApproversApproved, d.Status)
	}
	if ev.Kind != EventChainCompleted {
		t.Fatalf("after C: event %+v", ev)
	}
	if d.ApprovedByID != carol.ID || d.ApprovedAt == nil {
		t.Fatalf("approvedBy not recorded")
	}
	if d.CurrentApproverID != "" {
		t.Fatalf("no approver should be current, got %q", d.CurrentApproverID)
	}
	mustInvariants(t, d)

	if err := d.ApproveByCreator(dave, "ok", now); err != nil {
		t.Fatalf("creator approve: %v", err)
	}
	if d.CreatorApprovalStatus != StageApproved || d.CreatorID != dave.ID {
		t.Fatalf("creator not recorded: %+v", d)
	}
	mustInvariants(t, d)

	ev, err = d.ApproveByChecker(rm, "", now)
	if err != nil {
		t.Fatalf("checker approve: %v", err)
	}
	if d.Status != StatusApproved || ev.Kind != EventApproved {
		t.Fatalf("expected approved, got %s / %+v", d.Status, ev)
	}
	mustInvariants(t, d)

	last := d.History[len(d.History)-1]
	if last.Notes != "Approved by Checker: Rita RM - Deferral fully approved" {
		t.Fatalf("unexpected checker note %q", last.Notes)
	}
}

func TestApproveStep_OutOfTurn(t *testing.T) {
	d := threeApprovers()
	before := len(d.History)
	_, err := d.ApproveStep(bob, "", time.Now())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if d.CurrentApproverIndex != 0 || d.Approvers[1].Approved || len(d.History) != before {
		t.Fatalf("state changed on unauthorized attempt")
	}
}

func TestApproveStep_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Deferral)
		actor   Actor
		wantErr error
	}{
		{
			name:    "rejected deferral",
			mutate:  func(d *Deferral) { d.Status = StatusRejected },
			actor:   alice,
			wantErr: ErrPrecondition,
		},
		{
			name:    "returned for rework",
			mutate:  func(d *Deferral) { d.Status = StatusReturnedForRework },
			actor:   alice,
			wantErr: ErrPrecondition,
		},
		{
			name: "inline contact slot cannot be acted on",
			mutate: func(d *Deferral) {
				d.Approvers[0].Ref = ContactRef("Ext", "ext@example.com")
			},
			actor:   alice,
			wantErr: ErrUnauthorized,
		},
		{
			name: "chain finished",
			mutate: func(d *Deferral) {
				d.Approvers = nil
				d.CurrentApproverIndex = 0
			},
			actor:   alice,
			wantErr: ErrUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := threeApprovers()
			tt.mutate(d)
			_, err := d.ApproveStep(tt.actor, "", time.Now())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreatorAndCheckerGates(t *testing.T) {
	d := threeApprovers()
	now := time.Now()

	if err := d.ApproveByCreator(dave, "", now); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("creator before chain: want ErrPrecondition, got %v", err)
	}
	for _, a := range []Actor{alice, bob, carol} {
		if _, err := d.ApproveStep(a, "", now); err != nil {
			t.Fatalf("approve %s: %v", a.Name, err)
		}
	}
	if _, err := d.ApproveByChecker(rm, "", now); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("checker before creator: want ErrPrecondition, got %v", err)
	}

	d.CreatorID = dave.ID
	if err := d.ApproveByCreator(bob, "", now); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong creator: want ErrUnauthorized, got %v", err)
	}
	if err := d.ApproveByCreator(dave, "", now); err != nil {
		t.Fatalf("creator: %v", err)
	}
	if err := d.ApproveByCreator(dave, "", now); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("double creator: want ErrPrecondition, got %v", err)
	}

	d.CheckerID = rm.ID
	if _, err := d.ApproveByChecker(carol, "", now); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong checker: want ErrUnauthorized, got %v", err)
	}
	if _, err := d.ApproveByChecker(rm, "", now); err != nil {
		t.Fatalf("checker: %v", err)
	}
	if _, err := d.ApproveByChecker(rm, "", now); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("checker on approved: want ErrPrecondition, got %v", err)
	}
}

func TestReject(t *testing.T) {
	d := threeApprovers()
	now := time.Now()
	if _, err := d.ApproveStep(alice, "", now); err != nil {
		t.Fatal(err)
	}

	ev, err := d.Reject(bob, "insufficient collateral", now)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if d.Status != StatusRejected || d.RejectionReason != "insufficient collateral" {
		t.Fatalf("unexpected state: %s %q", d.Status, d.RejectionReason)
	}
	if ev.Kind != EventRejected || ev.Reason != "insufficient collateral" {
		t.Fatalf("unexpected event %+v", ev)
	}
	n := 0
	for _, h := range d.History {
		if h.Action == ActionRejected {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("expected one rejected entry, got %d", n)
	}
	if d.CurrentApproverID != "" {
		t.Fatalf("terminal deferral should have no current approver")
	}
	if _, err := d.ApproveStep(bob, "", now); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("approve after reject: want ErrPrecondition, got %v", err)
	}
}

func TestReject_DefaultReason(t *testing.T) {
	d := threeApprovers()
	if _, err := d.Reject(alice, "   ", time.Now()); err != nil {
		t.Fatal(err)
	}
	if d.RejectionReason != DefaultRejectionReason {
		t.Fatalf("got %q", d.RejectionReason)
	}
}

func TestReturnForRework(t *testing.T) {
	d := threeApprovers()
	if _, err := d.ReturnForRework(bob, "", time.Now()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	ev, err := d.ReturnForRework(alice, "", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != StatusReturnedForRework || d.ReworkComment != DefaultReworkComment || d.ReworkRequestedByID != alice.ID {
		t.Fatalf("unexpected state %+v", d)
	}
	if ev.Kind != EventReturned {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestSetApprovers(t *testing.T) {
	d := threeApprovers()
	now := time.Now()

	ev, err := d.SetApprovers(rm, []ApproverSlot{
		{Role: "Risk", Ref: UserRef(bob.ID), Approved: true},
		{Role: "Ext", Ref: ContactRef("Ext", "ext@example.com")},
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Approvers) != 2 || d.Approvers[0].Approved {
		t.Fatalf("slots must be reset: %+v", d.Approvers)
	}
	if ev.Recipient == nil || ev.Recipient.UserID != bob.ID {
		t.Fatalf("expected first approver notification, got %+v", ev)
	}

	if _, err := d.ApproveStep(bob, "", now); err != nil {
		t.Fatal(err)
	}
	if _, err := d.SetApprovers(rm, nil, now); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("set after approval: want ErrPrecondition, got %v", err)
	}
}

func TestRemoveApprover(t *testing.T) {
	now := time.Now()

	t.Run("removes pending slot", func(t *testing.T) {
		d := threeApprovers()
		if _, err := d.RemoveApprover(rm, 2, now); err != nil {
			t.Fatal(err)
		}
		if len(d.Approvers) != 2 || d.CurrentApproverIndex != 0 {
			t.Fatalf("unexpected chain: %+v", d.Approvers)
		}
		mustInvariants(t, d)
	})

	t.Run("removing current notifies the next", func(t *testing.T) {
		d := threeApprovers()
		ev, err := d.RemoveApprover(rm, 0, now)
		if err != nil {
			t.Fatal(err)
		}
		if ev.Kind != EventMoved || ev.Recipient.UserID != bob.ID || d.CurrentApproverID != bob.ID {
			t.Fatalf("unexpected event %+v", ev)
		}
	})

	t.Run("approved slot is kept", func(t *testing.T) {
		d := threeApprovers()
		if _, err := d.ApproveStep(alice, "", now); err != nil {
			t.Fatal(err)
		}
		if _, err := d.RemoveApprover(rm, 0, now); !errors.Is(err, ErrPrecondition) {
			t.Fatalf("want ErrPrecondition, got %v", err)
		}
	})

	t.Run("last pending after approvals", func(t *testing.T) {
		d := threeApprovers()
		for _, a := range []Actor{alice, bob} {
			if _, err := d.ApproveStep(a, "", now); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := d.RemoveApprover(rm, 2, now); !errors.Is(err, ErrPrecondition) {
			t.Fatalf("want ErrPrecondition, got %v", err)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		d := threeApprovers()
		if _, err := d.RemoveApprover(rm, 5, now); !errors.Is(err, ErrValidation) {
			t.Fatalf("want ErrValidation, got %v", err)
		}
	})
}

func TestRemind(t *testing.T) {
	d := threeApprovers()
	ev, err := d.Remind(rm, "alice@example.com", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != EventReminder || ev.Recipient.UserID != alice.ID {
		t.Fatalf("unexpected event %+v", ev)
	}
	if d.History[len(d.History)-1].Action != ActionReminder {
		t.Fatalf("reminder not recorded")
	}

	d.Status = StatusApproved
	if _, err := d.Remind(rm, "x", time.Now()); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("want ErrPrecondition, got %v", err)
	}
}

func TestCommentsDocumentsFacilities(t *testing.T) {
	d := threeApprovers()
	d.Status = StatusRejected

	if _, err := d.AddComment(rm, "  ", time.Now()); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty comment: want ErrValidation, got %v", err)
	}
	c, err := d.AddComment(rm, " follow up ", time.Now())
	if err != nil || c.Text != "follow up" {
		t.Fatalf("comment on terminal deferral: %v %+v", err, c)
	}
	if err := d.RemoveDocument("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := d.UpdateFacilities([]Facility{{Type: "TL"}}); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("facilities on terminal: want ErrPrecondition, got %v", err)
	}
}

func TestHistoryOnlyGrows(t *testing.T) {
	d := threeApprovers()
	now := time.Now()
	prev := append([]HistoryEntry(nil), d.History...)

	steps := []func() error{
		func() error { _, err := d.ApproveStep(bob, "", now); return err },
		func() error { _, err := d.ApproveStep(alice, "a", now); return err },
		func() error { _, err := d.Remind(rm, "bob@example.com", now); return err },
		func() error { return d.ApproveByCreator(dave, "", now) },
		func() error { _, err := d.ApproveStep(bob, "", now); return err },
		func() error { _, err := d.ReturnForRework(carol, "", now); return err },
	}
	for i, step := range steps {
		_ = step()
		if len(d.History) < len(prev) {
			t.Fatalf("step %d shrank history", i)
		}
		for j := range prev {
			if d.History[j] != prev[j] {
				t.Fatalf("step %d rewrote entry %d", i, j)
			}
		}
		if d.AllApproversApproved != AllApproved(d.Approvers) {
			t.Fatalf("step %d: allApproversApproved out of sync", i)
		}
		prev = append([]HistoryEntry(nil), d.History...)
	}
}

func TestBackfillDefaults(t *testing.T) {
	d := &Deferral{Approvers: []ApproverSlot{{Approved: true}}}
	d.BackfillDefaults()
	if d.CreatorApprovalStatus != StagePending || d.CheckerApprovalStatus != StagePending || !d.AllApproversApproved {
		t.Fatalf("defaults not backfilled: %+v", d)
	}
}
