// Package view builds the client-facing deferral representation, with user
// references resolved to display summaries.
package view

import (
	"context"

	"deferral-backend/internal/domain/deferral"
	"deferral-backend/internal/domain/user"
)

type Approver struct {
	deferral.ApproverSlot
	User *user.Summary `json:"user,omitempty"`
}

type Comment struct {
	deferral.Comment
	Author *user.Summary `json:"author,omitempty"`
}

type HistoryEntry struct {
	deferral.HistoryEntry
	User *user.Summary `json:"user,omitempty"`
}

type Deferral struct {
	deferral.Deferral
	Requestor       *user.Summary  `json:"requestor,omitempty"`
	Creator         *user.Summary  `json:"creator,omitempty"`
	Checker         *user.Summary  `json:"checker,omitempty"`
	CurrentApprover *Approver      `json:"current_approver,omitempty"`
	Approvers       []Approver     `json:"approvers"`
	History         []HistoryEntry `json:"history"`
	Comments        []Comment      `json:"comments"`
}

type Builder struct{ directory user.Directory }

func NewBuilder(dir user.Directory) *Builder { return &Builder{directory: dir} }

func (b *Builder) One(ctx context.Context, d *deferral.Deferral) (*Deferral, error) {
	users, err := b.lookup(ctx, []deferral.Deferral{*d})
	if err != nil {
		return nil, err
	}
	v := build(*d, users)
	return &v, nil
}

// Unresolved renders d without directory lookups; user references carry
// their ids only. Used when the directory is unavailable.
func Unresolved(d *deferral.Deferral) *Deferral {
	v := build(*d, nil)
	return &v
}

func (b *Builder) Many(ctx context.Context, ds []deferral.Deferral) ([]Deferral, error) {
	users, err := b.lookup(ctx, ds)
	if err != nil {
		return nil, err
	}
	out := make([]Deferral, 0, len(ds))
	for _, d := range ds {
		out = append(out, build(d, users))
	}
	return out, nil
}

func (b *Builder) Comments(ctx context.Context, d *deferral.Deferral) ([]Comment, error) {
	users, err := b.lookup(ctx, []deferral.Deferral{*d})
	if err != nil {
		return nil, err
	}
	return comments(d.Comments, users), nil
}

func (b *Builder) lookup(ctx context.Context, ds []deferral.Deferral) (map[string]user.User, error) {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, d := range ds {
		add(d.RequestorID)
		add(d.CreatorID)
		add(d.CheckerID)
		for _, s := range d.Approvers {
			if s.Ref.Kind == deferral.RefUser {
				add(s.Ref.UserID)
			}
		}
		for _, h := range d.History {
			add(h.UserID)
		}
		for _, c := range d.Comments {
			add(c.AuthorID)
		}
	}
	if len(ids) == 0 {
		return map[string]user.User{}, nil
	}
	return b.directory.FindByIDs(ctx, ids)
}

func build(d deferral.Deferral, users map[string]user.User) Deferral {
	d.BackfillDefaults()
	v := Deferral{
		Deferral:  d,
		Requestor: summary(users, d.RequestorID),
		Creator:   summary(users, d.CreatorID),
		Checker:   summary(users, d.CheckerID),
		Approvers: make([]Approver, 0, len(d.Approvers)),
		History:   make([]HistoryEntry, 0, len(d.History)),
		Comments:  comments(d.Comments, users),
	}
	for _, s := range d.Approvers {
		a := Approver{ApproverSlot: s}
		if s.Ref.Kind == deferral.RefUser {
			a.User = summary(users, s.Ref.UserID)
		}
		v.Approvers = append(v.Approvers, a)
	}
	if d.Status.Actionable() && d.CurrentApproverIndex >= 0 && d.CurrentApproverIndex < len(v.Approvers) {
		cur := v.Approvers[d.CurrentApproverIndex]
		v.CurrentApprover = &cur
	}
	for _, h := range d.History {
		v.History = append(v.History, HistoryEntry{HistoryEntry: h, User: summary(users, h.UserID)})
	}
	if d.Facilities == nil {
		v.Facilities = []deferral.Facility{}
	}
	return v
}

func comments(cs []deferral.Comment, users map[string]user.User) []Comment {
	out := make([]Comment, 0, len(cs))
	for _, c := range cs {
		out = append(out, Comment{Comment: c, Author: summary(users, c.AuthorID)})
	}
	return out
}

func summary(users map[string]user.User, id string) *user.Summary {
	if id == "" {
		return nil
	}
	if u, ok := users[id]; ok {
		s := u.Summary()
		return &s
	}
	return &user.Summary{ID: id}
}
