package http

import (
	"net/http"
	"strconv"

	"deferral-backend/internal/domain/deferral"
	"deferral-backend/internal/domain/document"
	ucDeferral "deferral-backend/internal/usecase/deferral"
	"deferral-backend/internal/usecase/view"

	"github.com/labstack/echo/v4"
)

// maxUploadBytes caps a single multipart document upload.
const maxUploadBytes = 25 << 20

type DeferralHandler struct{ uc *ucDeferral.Usecase }

func NewDeferralHandler(uc *ucDeferral.Usecase) *DeferralHandler { return &DeferralHandler{uc: uc} }

type addCommentReq struct {
	Text string `json:"text" validate:"required,notblank,max=5000"`
}

type addDocumentReq struct {
	Name         string `json:"name" validate:"required,max=255"`
	URL          string `json:"url" validate:"required,url"`
	Type         string `json:"type" validate:"max=32"`
	Size         *int64 `json:"size" validate:"omitempty,gte=0"`
	IsDCL        bool   `json:"is_dcl"`
	IsAdditional bool   `json:"is_additional"`
}

type facilitiesReq struct {
	Facilities []deferral.Facility `json:"facilities" validate:"required"`
}

// POST /deferrals
func (h *DeferralHandler) Create(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthenticated(c)
	}
	var req ucDeferral.CreateInput
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	v, err := h.uc.Create(c.Request().Context(), actor, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, v)
}

// GET /deferrals/:id
func (h *DeferralHandler) Get(c echo.Context) error {
	v, err := h.uc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// GET /deferrals/by-number/:number
func (h *DeferralHandler) GetByNumber(c echo.Context) error {
	v, err := h.uc.GetByNumber(c.Request().Context(), c.Param("number"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// GET /deferrals/pending
func (h *DeferralHandler) Pending(c echo.Context) error {
	return h.list(c, func(deferral.Actor) ([]view.Deferral, error) { return h.uc.Pending(c.Request().Context()) })
}

// GET /deferrals/approver/queue
func (h *DeferralHandler) ApproverQueue(c echo.Context) error {
	return h.list(c, func(a deferral.Actor) ([]view.Deferral, error) { return h.uc.ApproverQueue(c.Request().Context(), a) })
}

// GET /deferrals/approver/actioned
func (h *DeferralHandler) Actioned(c echo.Context) error {
	return h.list(c, func(a deferral.Actor) ([]view.Deferral, error) { return h.uc.Actioned(c.Request().Context(), a) })
}

// GET /deferrals/my
func (h *DeferralHandler) Mine(c echo.Context) error {
	return h.list(c, func(a deferral.Actor) ([]view.Deferral, error) { return h.uc.Mine(c.Request().Context(), a) })
}

// GET /deferrals/approved
func (h *DeferralHandler) Approved(c echo.Context) error {
	return h.list(c, func(deferral.Actor) ([]view.Deferral, error) { return h.uc.Approved(c.Request().Context()) })
}

func (h *DeferralHandler) list(c echo.Context, fn func(deferral.Actor) ([]view.Deferral, error)) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthenticated(c)
	}
	out, err := fn(actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// GET /deferrals/preview-number
func (h *DeferralHandler) PreviewNumber(c echo.Context) error {
	p, err := h.uc.PreviewNumber(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// POST /deferrals/:id/comments
func (h *DeferralHandler) AddComment(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthenticated(c)
	}
	var req addCommentReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	cm, err := h.uc.AddComment(c.Request().Context(), c.Param("id"), actor, req.Text)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, cm)
}

// GET /deferrals/:id/comments
func (h *DeferralHandler) ListComments(c echo.Context) error {
	cs, err := h.uc.ListComments(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cs)
}

// PUT /deferrals/:id/facilities
func (h *DeferralHandler) UpdateFacilities(c echo.Context) error {
	var req facilitiesReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	v, err := h.uc.UpdateFacilities(c.Request().Context(), c.Param("id"), req.Facilities)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// POST /deferrals/:id/documents
func (h *DeferralHandler) AddDocument(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthenticated(c)
	}
	var req addDocumentReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	doc, err := h.uc.AddDocument(c.Request().Context(), c.Param("id"), actor, document.Raw{
		Name:         req.Name,
		URL:          req.URL,
		Type:         req.Type,
		Size:         req.Size,
		IsDCL:        req.IsDCL,
		IsAdditional: req.IsAdditional,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, doc)
}

// POST /deferrals/:id/documents/upload (multipart field "file")
func (h *DeferralHandler) UploadDocument(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthenticated(c)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing file"})
	}
	if fh.Size > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "file too large"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable file"})
	}
	defer f.Close()

	isDCL, _ := strconv.ParseBool(c.FormValue("is_dcl"))
	isAdditional, _ := strconv.ParseBool(c.FormValue("is_additional"))
	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	doc, err := h.uc.UploadDocument(c.Request().Context(), c.Param("id"), actor, ucDeferral.Upload{
		Filename:     fh.Filename,
		ContentType:  contentType,
		Size:         fh.Size,
		Body:         f,
		IsDCL:        isDCL,
		IsAdditional: isAdditional,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, doc)
}

// DELETE /deferrals/:id/documents/:docId
func (h *DeferralHandler) RemoveDocument(c echo.Context) error {
	v, err := h.uc.RemoveDocument(c.Request().Context(), c.Param("id"), c.Param("docId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// GET /notifications?limit=N
func (h *DeferralHandler) Notifications(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthenticated(c)
	}
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and 200"})
		}
		limit = n
	}
	ns, err := h.uc.Notifications(c.Request().Context(), actor, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ns)
}
