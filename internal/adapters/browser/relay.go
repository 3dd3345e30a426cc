package browser

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"sync"

	"github.com/expresspay/expresspay-go/internal/core/domain"
	"github.com/expresspay/expresspay-go/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// ErrUnknownChallenge is returned for attempt ids with no pending challenge.
var ErrUnknownChallenge = errors.New("no pending challenge for attempt")

// ChallengeTemplateName is the name ChallengeTemplate is registered under.
const ChallengeTemplateName = "challenge.html"

// ChallengeTemplate renders a page that replays the gateway's redirect
// request from the end user's browser.
var ChallengeTemplate = template.Must(template.New(ChallengeTemplateName).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Payment authentication</title></head>
<body onload="document.forms[0].submit()">
<form action="{{.Action}}" method="{{.Method}}">
{{- range $name, $value := .Fields}}
<input type="hidden" name="{{$name}}" value="{{$value}}">
{{- end}}
<noscript><button type="submit">Continue</button></noscript>
</form>
</body>
</html>
`))

// ChallengePage is the data for ChallengeTemplate.
type ChallengePage struct {
	Action string
	Method string
	Fields map[string]string
}

type pendingChallenge struct {
	request  ports.ChallengeRequest
	observer ports.NavigationObserver
}

// Relay hands challenges to an end user's browser. Load registers the
// challenge under its attempt id; the HTTP layer renders it with Page and
// reports return-URL hits through Navigate.
type Relay struct {
	publicURL string

	mu      sync.Mutex
	pending map[string]pendingChallenge
}

// NewRelay creates a relay whose return URLs live under publicURL.
func NewRelay(publicURL string) *Relay {
	return &Relay{
		publicURL: strings.TrimRight(publicURL, "/"),
		pending:   make(map[string]pendingChallenge),
	}
}

// ReturnURLs returns the success and cancel URLs for an attempt. They route
// back to the relay's HTTP handlers.
func (r *Relay) ReturnURLs(attemptID string) (success, cancel string) {
	base := r.publicURL + "/challenges/" + url.PathEscape(attemptID)
	return base + "/complete", base + "/cancel"
}

// Load registers the challenge. It is removed once ctx ends or the
// observer resolves it.
func (r *Relay) Load(ctx context.Context, req ports.ChallengeRequest, observer ports.NavigationObserver) error {
	if req.AttemptID == "" {
		return errors.New("relay challenge needs an attempt id")
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid challenge url %q", req.URL)
	}

	r.mu.Lock()
	r.pending[req.AttemptID] = pendingChallenge{request: req, observer: observer}
	r.mu.Unlock()

	log.WithField("attempt_id", req.AttemptID).Info("Challenge waiting for browser")

	go func() {
		<-ctx.Done()
		r.remove(req.AttemptID)
	}()
	return nil
}

// Page returns the render data for a pending challenge.
func (r *Relay) Page(attemptID string) (ChallengePage, error) {
	r.mu.Lock()
	p, ok := r.pending[attemptID]
	r.mu.Unlock()
	if !ok {
		return ChallengePage{}, ErrUnknownChallenge
	}

	method := p.request.Method
	if method == "" {
		method = domain.RedirectPOST
	}
	return ChallengePage{
		Action: p.request.URL,
		Method: strings.ToLower(string(method)),
		Fields: p.request.Params,
	}, nil
}

// Navigate reports a navigation observed by the end user's browser. It
// returns true when the challenge resolved.
func (r *Relay) Navigate(attemptID string, nav ports.Navigation) (bool, error) {
	r.mu.Lock()
	p, ok := r.pending[attemptID]
	r.mu.Unlock()
	if !ok {
		return false, ErrUnknownChallenge
	}

	if p.observer.OnNavigate(nav) {
		r.remove(attemptID)
		return true, nil
	}
	return false, nil
}

// Fail reports a browser-side failure for the challenge.
func (r *Relay) Fail(attemptID string, err error) error {
	r.mu.Lock()
	p, ok := r.pending[attemptID]
	r.mu.Unlock()
	if !ok {
		return ErrUnknownChallenge
	}
	p.observer.OnNavigationError(err)
	r.remove(attemptID)
	return nil
}

// Pending reports whether attemptID has a challenge waiting.
func (r *Relay) Pending(attemptID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[attemptID]
	return ok
}

func (r *Relay) remove(attemptID string) {
	r.mu.Lock()
	delete(r.pending, attemptID)
	r.mu.Unlock()
}
