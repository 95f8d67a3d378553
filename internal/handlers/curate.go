package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/dimitrije/communities/internal/middleware"
	"github.com/dimitrije/communities/internal/services"
	"github.com/dimitrije/communities/pkg/dto"
	"github.com/m1z23r/drift/pkg/drift"
)

type CurateHandler struct {
	curation CurationServiceInterface
	log      *slog.Logger
}

func NewCurateHandler(curation CurationServiceInterface, logger *slog.Logger) *CurateHandler {
	return &CurateHandler{
		curation: curation,
		log:      logger.With("component", "curate"),
	}
}

// Curate accepts, rejects or removes a record from a community. Parameters
// come from the query string, a form body or a JSON body.
func (h *CurateHandler) Curate(c *drift.Context) {
	req, err := readCurateRequest(c.Request)
	if err != nil {
		c.BadRequest("invalid request body")
		return
	}

	res, err := h.curation.Curate(c.Request.Context(), services.CurateRequest{
		Action:      req.Action,
		CommunityID: req.Collection,
		RecID:       req.RecID,
		UserID:      middleware.GetUserID(c),
		Email:       middleware.GetUserEmail(c),
	})
	switch {
	case errors.Is(err, services.ErrInvalidAction):
		c.BadRequest("unknown action")
		return
	case errors.Is(err, services.ErrInvalidRecord):
		c.BadRequest("missing record id")
		return
	case errors.Is(err, services.ErrCommunityNotFound):
		c.BadRequest("unknown community")
		return
	case errors.Is(err, services.ErrForbidden):
		c.Forbidden("not allowed to curate this record")
		return
	case err != nil:
		h.log.Error("curation failed", "community", req.Collection, "recid", req.RecID, "error", err)
		c.InternalServerError("curation failed")
		return
	}

	resp := dto.CurateResponse{Status: dto.StatusFailure}
	if res.Success {
		resp.Status = dto.StatusSuccess
	}
	if res.Cached {
		resp.Cache = 1
	}
	_ = c.JSON(http.StatusOK, resp)
}

// readCurateRequest merges query parameters with the body. Body values win.
// A record id that does not parse counts as missing; a JSON null leaves the
// query value in place.
func readCurateRequest(r *http.Request) (dto.CurateRequest, error) {
	q := r.URL.Query()
	req := dto.CurateRequest{
		Action:     q.Get("action"),
		Collection: q.Get("collection"),
		RecID:      atoiOrZero(q.Get("recid")),
	}

	if r.Method != http.MethodPost || r.Body == nil {
		return req, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var body struct {
			Action     string          `json:"action"`
			Collection string          `json:"collection"`
			RecID      json.RawMessage `json:"recid"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return req, err
		}
		if body.Action != "" {
			req.Action = body.Action
		}
		if body.Collection != "" {
			req.Collection = body.Collection
		}
		if len(body.RecID) > 0 && string(body.RecID) != "null" {
			req.RecID = atoiOrZero(strings.Trim(string(body.RecID), `"`))
		}
	case "application/x-www-form-urlencoded", "multipart/form-data":
		parse := r.ParseForm
		if mediaType == "multipart/form-data" {
			parse = func() error { return r.ParseMultipartForm(1 << 20) }
		}
		if err := parse(); err != nil {
			return req, err
		}
		if v := r.PostForm.Get("action"); v != "" {
			req.Action = v
		}
		if v := r.PostForm.Get("collection"); v != "" {
			req.Collection = v
		}
		if v := r.PostForm.Get("recid"); v != "" {
			req.RecID = atoiOrZero(v)
		}
	}
	return req, nil
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
