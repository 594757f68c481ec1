package http

import (
	"net/http"
	"strconv"

	ucApproval "deferral-backend/internal/usecase/approval"

	"github.com/labstack/echo/v4"
)

type ApprovalHandler struct{ uc *ucApproval.Usecase }

func NewApprovalHandler(uc *ucApproval.Usecase) *ApprovalHandler { return &ApprovalHandler{uc: uc} }

type commentReq struct {
	Comment string `json:"comment" validate:"max=2000"`
}

type rejectReq struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type setApproversReq struct {
	Approvers []ucApproval.ApproverInput `json:"approvers" validate:"required,min=1,dive"`
}

// PUT /deferrals/:id/approve
func (h *ApprovalHandler) Approve(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthenticated(c)
	}
	var req commentReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	v, err := h.uc.Approve(c.Request().Context(), c.Param("id"), actor, req.Comment)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// PUT /deferrals/:id/approve-creator
func (h *ApprovalHandler) ApproveByCreator(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthenticated(c)
	}
	var req commentReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	v, err := h.uc.ApproveByCreator(c.Request().Context(), c.Param("id"), actor, req.Comment)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// PUT /deferrals/:id/approve-checker
func (h *ApprovalHandler) ApproveByChecker(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthenticated(c)
	}
	var req commentReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	v, err := h.uc.ApproveByChecker(c.Request().Context(), c.Param("id"), actor, req.Comment)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// PUT /deferrals/:id/reject
func (h *ApprovalHandler) Reject(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthenticated(c)
	}
	var req rejectReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	v, err := h.uc.Reject(c.Request().Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// PUT /deferrals/:id/return-for-rework
func (h *ApprovalHandler) ReturnForRework(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthenticated(c)
	}
	var req commentReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	v, err := h.uc.ReturnForRework(c.Request().Context(), c.Param("id"), actor, req.Comment)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// PUT /deferrals/:id/approvers
func (h *ApprovalHandler) SetApprovers(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthenticated(c)
	}
	var req setApproversReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	v, err := h.uc.SetApprovers(c.Request().Context(), c.Param("id"), actor, req.Approvers)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// DELETE /deferrals/:id/approvers/:index
func (h *ApprovalHandler) RemoveApprover(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthenticated(c)
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "approver index must be an integer"})
	}
	v, err := h.uc.RemoveApprover(c.Request().Context(), c.Param("id"), actor, index)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// POST /deferrals/:id/remind
func (h *ApprovalHandler) SendReminder(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthenticated(c)
	}
	v, err := h.uc.SendReminder(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}
