package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/dtroode/membership-server/internal/model"
	"github.com/dtroode/membership-server/internal/report"
	"github.com/dtroode/membership-server/internal/session"
)

//go:embed views/*.html
var viewFS embed.FS

const (
	pageForm      = "form"
	pageLogin     = "login"
	pageDashboard = "dashboard"
	pageDenied    = "denied"
	pageError     = "error"
)

// page is the data every view is executed with.
type page struct {
	Organization string
	State        session.State
	Regions      []string

	// Dashboard only.
	Report  report.Report
	Ready   bool
	Export  string
	Message string
}

type views struct {
	pages map[string]*template.Template
}

var viewFuncs = template.FuncMap{
	// barWidth scales v against the largest bucket, in percent.
	"barWidth": func(v int, buckets []report.Bucket) int {
		top := 0
		for _, b := range buckets {
			top = max(top, b.Value)
		}
		if top == 0 {
			return 0
		}
		return v * 100 / top
	},
	"uid": func(st session.State) string {
		if st.Identity == nil {
			return ""
		}
		return st.Identity.ID
	},
	"email": func(st session.State) string {
		if st.Identity == nil {
			return ""
		}
		return st.Identity.Email
	},
}

func parseViews() (*views, error) {
	layout, err := template.New("layout.html").Funcs(viewFuncs).ParseFS(viewFS, "views/layout.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	v := &views{pages: make(map[string]*template.Template)}
	for _, name := range []string{pageForm, pageLogin, pageDashboard, pageDenied, pageError} {
		t, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(viewFS, "views/"+name+".html"); err != nil {
			return nil, fmt.Errorf("failed to parse view %s: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

// pageFor picks the view a session state is rendered with.
func pageFor(st session.State) string {
	switch st.View {
	case session.ViewLogin:
		return pageLogin
	case session.ViewDashboard:
		if st.AccessDenied {
			return pageDenied
		}
		return pageDashboard
	default:
		return pageForm
	}
}

func (h *Handler) newPage(st session.State) page {
	return page{
		Organization: h.organization,
		State:        st,
		Regions:      model.Regions,
	}
}

// render executes the view into a buffer first so a template error still
// yields a clean error page.
func (h *Handler) render(w http.ResponseWriter, status int, name string, p page) {
	var buf bytes.Buffer
	if err := h.views.pages[name].ExecuteTemplate(&buf, "layout.html", p); err != nil {
		h.logger.Error("Page handler: failed to render view",
			"view", name,
			"error", err.Error())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
