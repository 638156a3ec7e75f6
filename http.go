package newsletter

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/interactive-solutions/go-newsletter/internal"
	"github.com/pkg/errors"
)

type HttpHandler struct {
	app       *application
	validator *internal.Validator
}

func (h *HttpHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/lists/{slug}", h.ListNewsletters).Methods(http.MethodGet)
	router.HandleFunc("/lists/{slug}/subscribe", h.Subscribe).Methods(http.MethodPost)
	router.HandleFunc("/lists/{slug}/unsubscribe", h.Unsubscribe).Methods(http.MethodPost)
	router.HandleFunc("/unsubscribe", h.Unsubscribe).Methods(http.MethodPost)

	router.HandleFunc("/newsletters/{id:[0-9]+}", h.GetNewsletter).Methods(http.MethodGet)
	router.HandleFunc("/newsletters/{id:[0-9]+}/raw", h.RawNewsletter).Methods(http.MethodGet)
}

func (h *HttpHandler) ListNewsletters(w http.ResponseWriter, r *http.Request) {
	list, ok := h.list(w, r)
	if !ok {
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "Invalid page provided", 400)
			return
		}

		page = parsed
	}

	newsletters, total, err := h.app.stores.Newsletters.Matching(r.Context(), NewsletterCriteria{
		NewsletterListID: list.ID,
		Lang:             r.URL.Query().Get("lang"),
		Published:        true,
		PublishedBefore:  time.Now(),
		Offset:           (page - 1) * h.app.paginateBy,
		Limit:            h.app.paginateBy,
	})
	if err != nil {
		http.Error(w, "Failed to retrieve newsletters", 500)
		return
	}

	payload := struct {
		List  NewsletterList `json:"list"`
		Data  []Newsletter   `json:"data"`
		Page  int            `json:"page"`
		Pages int            `json:"pages"`
		Total int            `json:"total"`
	}{
		List:  list,
		Data:  newsletters,
		Page:  page,
		Pages: int(math.Ceil(float64(total) / float64(h.app.paginateBy))),
		Total: total,
	}

	writeJson(w, http.StatusOK, payload)
}

func (h *HttpHandler) GetNewsletter(w http.ResponseWriter, r *http.Request) {
	n, ok := h.newsletter(w, r)
	if !ok {
		return
	}

	now := time.Now()

	previous, err := h.app.stores.Newsletters.Previous(r.Context(), n, now)
	if err != nil && errors.Cause(err) != NewsletterNotFoundErr {
		http.Error(w, "Failed to retrieve previous newsletter", 500)
		return
	}

	next, err := h.app.stores.Newsletters.Next(r.Context(), n, now)
	if err != nil && errors.Cause(err) != NewsletterNotFoundErr {
		http.Error(w, "Failed to retrieve next newsletter", 500)
		return
	}

	payload := struct {
		Data       Newsletter `json:"data"`
		PreviousID *int64     `json:"previousId"`
		NextID     *int64     `json:"nextId"`
	}{Data: n}

	if previous.ID != 0 {
		payload.PreviousID = &previous.ID
	}

	if next.ID != 0 {
		payload.NextID = &next.ID
	}

	writeJson(w, http.StatusOK, payload)
}

func (h *HttpHandler) RawNewsletter(w http.ResponseWriter, r *http.Request) {
	n, ok := h.newsletter(w, r)
	if !ok {
		return
	}

	list, err := h.app.stores.Lists.Get(r.Context(), n.NewsletterListID)
	if err != nil {
		http.Error(w, "Failed to retrieve newsletter list", 500)
		return
	}

	locale := r.URL.Query().Get("lang")
	if locale == "" && len(n.Languages) > 0 {
		locale = n.Languages[0]
	}

	if locale == "" {
		locale = h.app.defaultLocale
	}

	html, err := h.app.renderer.Render(HtmlTemplate, TemplateData{
		Locale:     locale,
		List:       list,
		Newsletter: n,
		Items:      n.Items,
	})
	if err != nil {
		http.Error(w, "Failed to render newsletter", 500)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

func (h *HttpHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	list, ok := h.list(w, r)
	if !ok {
		return
	}

	body := &internal.SubscribeRequest{}
	if !h.decode(w, r, body) {
		return
	}

	if !list.HasLang(body.Lang) {
		http.Error(w, "Language not available on this list", 400)
		return
	}

	if err := h.app.Subscribe(r.Context(), body.Email, list.ID, body.Lang, nil); err != nil {
		http.Error(w, "Failed to queue subscription", 500)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Unsubscribe serves both the list scoped and the global route. Without a
// list in the route, or with fromAll set, every list is left.
func (h *HttpHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var listID int64

	if _, scoped := mux.Vars(r)["slug"]; scoped {
		list, ok := h.list(w, r)
		if !ok {
			return
		}

		listID = list.ID
	}

	body := &internal.UnsubscribeRequest{}
	if !h.decode(w, r, body) {
		return
	}

	if body.FromAll {
		listID = 0
	}

	if err := h.app.Unsubscribe(r.Context(), body.Email, listID, nil); err != nil {
		http.Error(w, "Failed to queue unsubscription", 500)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *HttpHandler) list(w http.ResponseWriter, r *http.Request) (NewsletterList, bool) {
	slug, ok := mux.Vars(r)["slug"]
	if !ok {
		http.Error(w, "Route slug var", 400)
		return NewsletterList{}, false
	}

	list, err := h.app.stores.Lists.GetBySlug(r.Context(), slug)
	if err != nil {
		if errors.Cause(err) == ListNotFoundErr {
			http.Error(w, "Newsletter list not found", 404)
			return list, false
		}

		http.Error(w, "Failed to retrieve newsletter list", 500)
		return list, false
	}

	return list, true
}

// newsletter loads the issue of the route, hiding the unpublished ones.
func (h *HttpHandler) newsletter(w http.ResponseWriter, r *http.Request) (Newsletter, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid id provided", 400)
		return Newsletter{}, false
	}

	n, err := h.app.stores.Newsletters.Get(r.Context(), id)
	if err != nil {
		if errors.Cause(err) == NewsletterNotFoundErr {
			http.Error(w, "Newsletter not found", 404)
			return n, false
		}

		http.Error(w, "Failed to retrieve newsletter", 500)
		return n, false
	}

	if !n.IsPublished(time.Now()) {
		http.Error(w, "Newsletter not found", 404)
		return n, false
	}

	return n, true
}

func (h *HttpHandler) decode(w http.ResponseWriter, r *http.Request, body interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		http.Error(w, "Failed to parse incoming json", 400)
		return false
	}

	if err := h.validator.Validate(body); err != nil {
		var invalid internal.ValidationError
		if errors.As(err, &invalid) {
			writeJson(w, http.StatusBadRequest, struct {
				Errors internal.ValidationError `json:"errors"`
			}{invalid})
			return false
		}

		http.Error(w, "Failed to validate request", 500)
		return false
	}

	return true
}

func writeJson(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Failed to convert to json", 500)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
