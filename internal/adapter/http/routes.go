package http

import "github.com/labstack/echo/v4"

type Routes struct {
	Health    *Handler
	Deferrals *DeferralHandler
	Approvals *ApprovalHandler
}

// Register mounts the API. actor authenticates every route except /health;
// idempotency guards the mutating ones and may be nil.
func (r Routes) Register(e *echo.Echo, actor, idempotency echo.MiddlewareFunc) {
	e.GET("/health", r.Health.Health)

	mw := []echo.MiddlewareFunc{actor}
	if idempotency != nil {
		mw = append(mw, idempotency)
	}

	g := e.Group("/deferrals", mw...)
	d, a := r.Deferrals, r.Approvals

	g.POST("", d.Create)
	g.GET("/pending", d.Pending)
	g.GET("/approver/queue", d.ApproverQueue)
	g.GET("/approver/actioned", d.Actioned)
	g.GET("/my", d.Mine)
	g.GET("/approved", d.Approved)
	g.GET("/preview-number", d.PreviewNumber)
	g.GET("/by-number/:number", d.GetByNumber)
	g.GET("/:id", d.Get)

	g.POST("/:id/comments", d.AddComment)
	g.GET("/:id/comments", d.ListComments)
	g.PUT("/:id/facilities", d.UpdateFacilities)
	g.POST("/:id/documents", d.AddDocument)
	g.POST("/:id/documents/upload", d.UploadDocument)
	g.DELETE("/:id/documents/:docId", d.RemoveDocument)

	g.PUT("/:id/approvers", a.SetApprovers)
	g.DELETE("/:id/approvers/:index", a.RemoveApprover)
	g.PUT("/:id/approve", a.Approve)
	g.PUT("/:id/approve-creator", a.ApproveByCreator)
	g.PUT("/:id/approve-checker", a.ApproveByChecker)
	g.PUT("/:id/reject", a.Reject)
	g.PUT("/:id/return-for-rework", a.ReturnForRework)
	g.POST("/:id/remind", a.SendReminder)

	e.GET("/notifications", d.Notifications, actor)
}
