package problem

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/problem+json"

// Problem type URIs. Clients branch on these, not on status codes alone:
// event-full and duplicate-registration both map to 409.
const (
	TypeValidation            = "https://planora.app/problems/validation"
	TypeUnauthorized          = "https://planora.app/problems/unauthorized"
	TypeForbidden             = "https://planora.app/problems/forbidden"
	TypeNotFound              = "https://planora.app/problems/not-found"
	TypeEventFull             = "https://planora.app/problems/event-full"
	TypeDuplicateRegistration = "https://planora.app/problems/duplicate-registration"
	TypeEmailTaken            = "https://planora.app/problems/email-taken"
	TypeInternal              = "https://planora.app/problems/internal"
)

type Details struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Errors   map[string]any `json:"errors,omitempty"`
}

type Option func(*Details)

func WithDetail(detail string) Option {
	return func(p *Details) { p.Detail = detail }
}

func WithErrors(errs map[string]any) Option {
	return func(p *Details) { p.Errors = errs }
}

// Write emits an RFC 7807 response. Internal error text stays out of
// production responses; 5xx bodies carry only the status text there.
func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	p := Details{
		Type:   typ,
		Title:  title,
		Status: status,
	}
	for _, opt := range opts {
		opt(&p)
	}

	if p.Detail == "" && err != nil {
		if status < 500 || env == "development" || env == "test" {
			p.Detail = err.Error()
		} else {
			p.Detail = http.StatusText(status)
		}
	}
	if p.Instance == "" && r != nil {
		p.Instance = r.URL.Path
	}

	if err != nil && r != nil {
		logger := zerolog.Ctx(r.Context())
		event := logger.Warn()
		if status >= 500 {
			event = logger.Error()
		}
		event.Err(err).
			Int("status", status).
			Str("type", typ).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg(title)
	}

	payload, marshalErr := json.Marshal(p)
	if marshalErr != nil {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"about:blank","title":"Internal Server Error","status":500}`))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
