package handlers

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/dimitrije/communities/internal/middleware"
	"github.com/dimitrije/communities/internal/models"
	"github.com/dimitrije/communities/internal/services"
	"github.com/dimitrije/communities/pkg/dto"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"golang.org/x/sync/errgroup"
)

var communityIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// NewFormValidator returns a validator that reports fields by their form
// names and knows the community identifier rule.
func NewFormValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("community_id", func(fl validator.FieldLevel) bool {
		return communityIDPattern.MatchString(fl.Field().String())
	})
	return v
}

type indexPage struct {
	page
	Communities []models.Community
}

type detailPage struct {
	page
	Community   *models.Community
	IsOwner     bool
	Description template.HTML
	Policy      template.HTML
	PageHTML    template.HTML
	Accepted    []models.RecordSummary
	Pending     []models.RecordSummary
}

type formPage struct {
	page
	Form   dto.CommunityForm
	Errors map[string]string
	IsNew  bool
}

type errorPage struct {
	page
	Message string
}

type CommunityHandler struct {
	communities CommunityServiceInterface
	render      *Renderer
	validate    *validator.Validate
	providers   []string
	log         *slog.Logger
}

func NewCommunityHandler(communities CommunityServiceInterface, render *Renderer, providers []string, logger *slog.Logger) *CommunityHandler {
	return &CommunityHandler{
		communities: communities,
		render:      render,
		validate:    NewFormValidator(),
		providers:   providers,
		log:         logger.With("component", "communities-web"),
	}
}

// basePage fills the layout data: sign-in state, flash and the sidebar.
func (h *CommunityHandler) basePage(c *drift.Context, title string) page {
	p := page{
		Title:     title,
		Providers: h.providers,
		Flash:     popFlash(c),
	}

	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return p
	}
	p.LoggedIn = true

	mine, err := h.communities.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		h.log.Warn("failed to load own communities", "user", userID, "error", err)
	}
	p.MyCommunities = mine
	return p
}

func (h *CommunityHandler) notFound(c *drift.Context) {
	h.render.HTML(c, http.StatusNotFound, "error.html", errorPage{
		page:    h.basePage(c, "Not found"),
		Message: "The community you are looking for does not exist.",
	})
}

func (h *CommunityHandler) serverError(c *drift.Context, msg string, err error) {
	h.log.Error(msg, "path", c.Request.URL.Path, "error", err)
	h.render.HTML(c, http.StatusInternalServerError, "error.html", errorPage{
		page:    page{Title: "Something went wrong", Providers: h.providers},
		Message: "Please try again later.",
	})
}

// loadOwned fetches the community in the path. Unknown communities and
// communities owned by someone else both come back as not found.
func (h *CommunityHandler) loadOwned(c *drift.Context) (*models.Community, bool) {
	community, err := h.communities.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, services.ErrCommunityNotFound) {
		h.notFound(c)
		return nil, false
	}
	if err != nil {
		h.serverError(c, "failed to load community", err)
		return nil, false
	}
	if !community.IsOwner(middleware.GetUserID(c)) {
		h.notFound(c)
		return nil, false
	}
	return community, true
}

func (h *CommunityHandler) Index(c *drift.Context) {
	all, err := h.communities.List(c.Request.Context())
	if err != nil {
		h.serverError(c, "failed to list communities", err)
		return
	}

	h.render.HTML(c, http.StatusOK, "index.html", indexPage{
		page:        h.basePage(c, "Community Collections"),
		Communities: all,
	})
}

func (h *CommunityHandler) Detail(c *drift.Context) {
	ctx := c.Request.Context()

	community, err := h.communities.GetByID(ctx, c.Param("id"))
	if errors.Is(err, services.ErrCommunityNotFound) {
		h.notFound(c)
		return
	}
	if err != nil {
		h.serverError(c, "failed to load community", err)
		return
	}

	data := detailPage{
		page:        h.basePage(c, community.Title),
		Community:   community,
		IsOwner:     community.IsOwner(middleware.GetUserID(c)),
		Description: h.render.Markdown(community.Description),
		Policy:      h.render.Markdown(community.CurationPolicy),
		PageHTML:    h.render.Markdown(community.Page),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data.Accepted, err = h.communities.Records(gctx, community, false)
		return err
	})
	if data.IsOwner {
		g.Go(func() error {
			var err error
			data.Pending, err = h.communities.Records(gctx, community, true)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		h.serverError(c, "failed to load community records", err)
		return
	}

	h.render.HTML(c, http.StatusOK, "detail.html", data)
}

// renderForm fills the layout only when the form is shown, so a redirect
// after a successful POST leaves the pending flash untouched.
func (h *CommunityHandler) renderForm(c *drift.Context, status int, title string, data formPage) {
	data.page = h.basePage(c, title)
	h.render.HTML(c, status, "form.html", data)
}

func (h *CommunityHandler) New(c *drift.Context) {
	const title = "Create new community"
	data := formPage{IsNew: true}

	if c.Request.Method != http.MethodPost {
		h.renderForm(c, http.StatusOK, title, data)
		return
	}

	data.Form = readCommunityForm(c.Request)
	if data.Errors = h.validateForm(data.Form); data.Errors != nil {
		h.renderForm(c, http.StatusBadRequest, title, data)
		return
	}

	_, err := h.communities.Create(c.Request.Context(), &models.Community{
		ID:             data.Form.ID,
		OwnerID:        middleware.GetUserID(c),
		Title:          data.Form.Title,
		Description:    data.Form.Description,
		CurationPolicy: data.Form.CurationPolicy,
		Page:           data.Form.Page,
	})
	if errors.Is(err, services.ErrCommunityExists) {
		data.Errors = map[string]string{"identifier": "This identifier is already taken."}
		h.renderForm(c, http.StatusConflict, title, data)
		return
	}
	if err != nil {
		h.serverError(c, "failed to create community", err)
		return
	}

	setFlash(c, FlashSuccess, "Community collection was successfully created.")
	redirect(c, "/communities/")
}

func (h *CommunityHandler) Edit(c *drift.Context) {
	community, ok := h.loadOwned(c)
	if !ok {
		return
	}

	title := "Edit " + community.Title
	data := formPage{Form: dto.CommunityFormFrom(community)}

	if c.Request.Method != http.MethodPost {
		h.renderForm(c, http.StatusOK, title, data)
		return
	}

	data.Form = readCommunityForm(c.Request)
	data.Form.ID = community.ID
	if data.Errors = h.validateForm(data.Form); data.Errors != nil {
		h.renderForm(c, http.StatusBadRequest, title, data)
		return
	}

	community.Title = data.Form.Title
	community.Description = data.Form.Description
	community.CurationPolicy = data.Form.CurationPolicy
	community.Page = data.Form.Page

	if _, err := h.communities.Update(c.Request.Context(), community); err != nil {
		h.serverError(c, "failed to update community", err)
		return
	}

	setFlash(c, FlashSuccess, "Community collection successfully edited.")
	redirect(c, "/communities/edit/"+community.ID+"/")
}

func (h *CommunityHandler) Delete(c *drift.Context) {
	community, ok := h.loadOwned(c)
	if !ok {
		return
	}

	if c.Request.PostFormValue("delete") != "yes" {
		setFlash(c, FlashWarning, "Community collection could not be deleted.")
		redirect(c, "/communities/edit/"+community.ID+"/")
		return
	}

	if err := h.communities.Delete(c.Request.Context(), community.ID); err != nil {
		h.log.Error("failed to delete community", "community", community.ID, "error", err)
		setFlash(c, FlashWarning, "Community collection could not be deleted.")
		redirect(c, "/communities/edit/"+community.ID+"/")
		return
	}

	setFlash(c, FlashSuccess, "Community collection was successfully deleted.")
	redirect(c, "/communities/")
}

func readCommunityForm(r *http.Request) dto.CommunityForm {
	return dto.CommunityForm{
		ID:             strings.TrimSpace(r.PostFormValue("identifier")),
		Title:          strings.TrimSpace(r.PostFormValue("title")),
		Description:    r.PostFormValue("description"),
		CurationPolicy: r.PostFormValue("curation_policy"),
		Page:           r.PostFormValue("page"),
	}
}

// validateForm returns nil when the form is valid, otherwise one message
// per offending field.
func (h *CommunityHandler) validateForm(form dto.CommunityForm) map[string]string {
	err := h.validate.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"title": err.Error()}
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "min":
		return "Must be at least " + fe.Param() + " characters."
	case "max":
		return "Must be at most " + fe.Param() + " characters."
	case "community_id":
		return "Use lowercase letters, digits, dashes and underscores only."
	}
	return "Invalid value."
}
