package approval

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"deferral-backend/internal/domain/deferral"
	"deferral-backend/internal/domain/user"
)

// ResolveApprovers turns client input into approver slots, fixing each
// reference to a directory user or an inline contact once.
func ResolveApprovers(ctx context.Context, dir user.Directory, in []ApproverInput) ([]deferral.ApproverSlot, error) {
	out := make([]deferral.ApproverSlot, 0, len(in))
	for i, a := range in {
		ref, err := resolveRef(ctx, dir, a)
		if err != nil {
			return nil, fmt.Errorf("approver %d: %w", i+1, err)
		}
		out = append(out, deferral.ApproverSlot{Role: strings.TrimSpace(a.Role), Ref: ref})
	}
	return out, nil
}

func resolveRef(ctx context.Context, dir user.Directory, a ApproverInput) (deferral.ApproverRef, error) {
	if id := strings.TrimSpace(a.UserID); id != "" {
		u, err := dir.FindByID(ctx, id)
		if errors.Is(err, user.ErrNotFound) {
			return deferral.ApproverRef{}, fmt.Errorf("%w: unknown user %s", deferral.ErrValidation, id)
		}
		if err != nil {
			return deferral.ApproverRef{}, err
		}
		return deferral.UserRef(u.UserID), nil
	}

	email := strings.TrimSpace(a.Email)
	if email == "" {
		return deferral.ApproverRef{}, fmt.Errorf("%w: user id or email is required", deferral.ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return deferral.ApproverRef{}, fmt.Errorf("%w: invalid email %q", deferral.ErrValidation, email)
	}
	u, err := dir.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return deferral.UserRef(u.UserID), nil
	case errors.Is(err, user.ErrNotFound):
		return deferral.ContactRef(strings.TrimSpace(a.Name), email), nil
	default:
		return deferral.ApproverRef{}, err
	}
}
