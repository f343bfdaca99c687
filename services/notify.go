package services

import (
	"context"
	"net/url"
	"strings"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/email"
)

// Mail groups what the services need to send transactional email.
// A nil Mailer disables sending.
type Mail struct {
	Mailer   core.Mailer
	Renderer *email.Renderer
	// BaseURL prefixes links, e.g. https://app.example.com
	BaseURL string
}

// notifier renders and sends mail. Delivery failures are logged and
// counted, never returned.
type notifier struct {
	deps
	mailer   core.Mailer
	renderer *email.Renderer
	baseURL  string
}

func newNotifier(d deps, mail Mail) *notifier {
	return &notifier{deps: d, mailer: mail.Mailer, renderer: mail.Renderer, baseURL: strings.TrimRight(mail.BaseURL, "/")}
}

func (n *notifier) send(ctx context.Context, tmpl email.Template, to string, data email.Data) {
	if n == nil || n.mailer == nil || n.renderer == nil {
		return
	}

	msg, err := n.renderer.Render(tmpl, to, data)
	if err == nil {
		err = n.mailer.Send(ctx, msg)
	}
	n.metrics.EmailSent(string(tmpl), err)
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to send email", "template", string(tmpl), "error", err)
		return
	}
	n.logger.DebugContext(ctx, "email sent", "template", string(tmpl))
}

// link builds an absolute URL under the configured base.
func (n *notifier) link(path string, query url.Values) string {
	u := n.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
