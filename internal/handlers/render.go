package handlers

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/dimitrije/communities/internal/models"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/*.html
var templateFS embed.FS

const flashCookie = "flash"

const (
	FlashSuccess = "success"
	FlashWarning = "warning"
	FlashError   = "error"
)

type Flash struct {
	Category string
	Message  string
}

// page holds what the layout needs on every screen.
type page struct {
	Title         string
	LoggedIn      bool
	Providers     []string
	Flash         *Flash
	MyCommunities []models.Community
}

type Renderer struct {
	pages    map[string]*template.Template
	markdown goldmark.Markdown
}

var pageFiles = []string{"index.html", "detail.html", "form.html", "signed_in.html", "error.html"}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		pages: make(map[string]*template.Template, len(pageFiles)),
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
	}

	for _, name := range pageFiles {
		t, err := template.New("layout.html").ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

func MustRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// Markdown renders user-supplied text. Raw HTML in the source is escaped.
func (r *Renderer) Markdown(src string) template.HTML {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

func (r *Renderer) HTML(c *drift.Context, status int, name string, data interface{}) {
	t, ok := r.pages[name]
	if !ok {
		c.InternalServerError("unknown page " + name)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		c.InternalServerError("failed to render page")
		return
	}
	_ = c.HTML(status, buf.String())
}

func setCookie(c *drift.Context, cookie *http.Cookie) {
	c.Response.Header().Add("Set-Cookie", cookie.String())
}

func setFlash(c *drift.Context, category, message string) {
	value := base64.RawURLEncoding.EncodeToString([]byte(category + "|" + message))
	setCookie(c, &http.Cookie{
		Name:     flashCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash reads the pending flash message and clears it.
func popFlash(c *drift.Context) *Flash {
	cookie, err := c.Request.Cookie(flashCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}
	setCookie(c, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})

	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	category, message, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil
	}
	return &Flash{Category: category, Message: message}
}

func redirect(c *drift.Context, location string) {
	c.Response.Header().Set("Location", location)
	c.Response.WriteHeader(http.StatusSeeOther)
	c.Abort()
}
