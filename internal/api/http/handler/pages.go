package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/dtroode/membership-server/internal/model"
	"github.com/dtroode/membership-server/internal/report"
)

// Index renders the page of the session's current view.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	st, snap, err := h.sessions.View(r.Context(), h.sessionID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	p := h.newPage(st)
	name := pageFor(st)
	if name == pageDashboard {
		criteria := criteriaFrom(r)
		p.Report = report.Build(snap.Records, criteria)
		p.Ready = snap.Ready
		p.Export = exportQuery(criteria)
		p.Message = st.Notice
	}
	h.render(w, http.StatusOK, name, p)
}

// Register submits the public registration form.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	form := model.RegistrationForm{
		FullName:   r.PostForm.Get("fullName"),
		CNIE:       r.PostForm.Get("cnie"),
		Phone:      r.PostForm.Get("phone"),
		Email:      r.PostForm.Get("email"),
		Region:     r.PostForm.Get("region"),
		Province:   r.PostForm.Get("province"),
		City:       r.PostForm.Get("city"),
		Profession: r.PostForm.Get("profession"),
	}

	res, err := h.sessions.Submit(r.Context(), h.sessionID(r), form, r.UserAgent())
	h.cookies.SetToken(w, res.Token)

	var vErr *model.ValidationError
	switch {
	case errors.As(err, &vErr):
		h.render(w, http.StatusUnprocessableEntity, pageForm, h.newPage(res.State))
	case err != nil:
		h.handleError(w, r, err)
	default:
		h.home(w, r)
	}
}

// ResetRegistration leaves the success screen for an empty form.
func (h *Handler) ResetRegistration(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.ResetSubmission(r.Context(), h.sessionID(r)); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.home(w, r)
}

func (h *Handler) OpenLogin(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.OpenLogin(r.Context(), h.sessionID(r)); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.home(w, r)
}

func (h *Handler) CancelLogin(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.CancelLogin(r.Context(), h.sessionID(r)); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.home(w, r)
}

// Login signs the session in with the posted admin credentials.
// Wrong credentials are shown on the login page after the redirect.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.sessions.Login(r.Context(), h.sessionID(r), r.PostForm.Get("email"), r.PostForm.Get("password"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.cookies.SetToken(w, res.Token)
	h.home(w, r)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	res, err := h.sessions.Logout(r.Context(), h.sessionID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.cookies.SetToken(w, res.Token)
	h.home(w, r)
}

func criteriaFrom(r *http.Request) report.Criteria {
	q := r.URL.Query()
	return report.Criteria{
		SearchTerm: q.Get("q"),
		Region:     q.Get("region"),
		City:       q.Get("city"),
	}
}

// exportQuery carries the dashboard filters over to the export links.
func exportQuery(c report.Criteria) string {
	q := url.Values{}
	if c.SearchTerm != "" {
		q.Set("q", c.SearchTerm)
	}
	if c.Region != "" {
		q.Set("region", c.Region)
	}
	if c.City != "" {
		q.Set("city", c.City)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
