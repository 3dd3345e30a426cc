package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/expresspay/expresspay-go/internal/adapters/browser"
	"github.com/expresspay/expresspay-go/internal/core/ports"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// ChallengeHandler serves the browser side of relayed challenges.
type ChallengeHandler struct {
	relay *browser.Relay
}

// NewChallengeHandler creates a new challenge handler.
func NewChallengeHandler(relay *browser.Relay) *ChallengeHandler {
	return &ChallengeHandler{relay: relay}
}

// Show handles GET /challenges/:id
// Renders a self-submitting form that replays the gateway's redirect.
func (h *ChallengeHandler) Show(c *gin.Context) {
	page, err := h.relay.Page(c.Param("id"))
	if err != nil {
		c.String(http.StatusNotFound, "This payment step has expired.")
		return
	}
	c.HTML(http.StatusOK, browser.ChallengeTemplateName, page)
}

// Complete handles GET|POST /challenges/:id/complete
func (h *ChallengeHandler) Complete(c *gin.Context) {
	success, _ := h.relay.ReturnURLs(c.Param("id"))
	h.navigate(c, success)
}

// Cancel handles GET|POST /challenges/:id/cancel
func (h *ChallengeHandler) Cancel(c *gin.Context) {
	_, cancel := h.relay.ReturnURLs(c.Param("id"))
	h.navigate(c, cancel)
}

// Fail handles POST /challenges/:id/error
// The payer's page reports a failure it cannot recover from (closed
// popup, ACS script error). The challenge resolves as failed.
func (h *ChallengeHandler) Fail(c *gin.Context) {
	attemptID := c.Param("id")

	reason := c.PostForm("reason")
	if reason == "" {
		reason = c.DefaultQuery("reason", "browser reported an error")
	}

	if err := h.relay.Fail(attemptID, errors.New(reason)); err != nil {
		c.String(http.StatusNotFound, "This payment step has expired.")
		return
	}

	log.WithFields(log.Fields{
		"attempt_id": attemptID,
		"reason":     reason,
	}).Warn("Challenge failed in browser")
	c.String(http.StatusOK, "Payment step failed. You may close this window.")
}

// navigate reports the browser's arrival at returnURL to the relay. The
// query string and form body become the navigation params.
func (h *ChallengeHandler) navigate(c *gin.Context, returnURL string) {
	attemptID := c.Param("id")

	target, err := url.Parse(returnURL)
	if err != nil {
		c.String(http.StatusInternalServerError, "Invalid return url.")
		return
	}
	target.RawQuery = c.Request.URL.RawQuery

	params := target.Query()
	if c.Request.Method == http.MethodPost {
		if err := c.Request.ParseForm(); err == nil {
			for k, vs := range c.Request.PostForm {
				for _, v := range vs {
					params.Add(k, v)
				}
			}
		}
	}

	resolved, err := h.relay.Navigate(attemptID, ports.Navigation{
		URL:    target,
		Method: c.Request.Method,
		Params: params,
	})
	if errors.Is(err, browser.ErrUnknownChallenge) {
		c.String(http.StatusNotFound, "This payment step has expired.")
		return
	}

	log.WithFields(log.Fields{
		"attempt_id": attemptID,
		"resolved":   resolved,
	}).Info("Challenge return received")

	if !resolved {
		c.String(http.StatusAccepted, "Payment is still being processed.")
		return
	}
	c.String(http.StatusOK, "Payment step completed. You may close this window.")
}
