package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/content-approval-api/internal/models"
	"github.com/noah-isme/content-approval-api/pkg/config"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier renders workflow emails itself and delivers them over SMTP.
type SMTPNotifier struct {
	cfg      config.NotifierConfig
	server   string
	auth     smtp.Auth
	sendMail sendMailFunc
	logger   *zap.Logger
}

// NewSMTPNotifier constructs an SMTP notifier.
func NewSMTPNotifier(cfg config.NotifierConfig, logger *zap.Logger) *SMTPNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &SMTPNotifier{
		cfg:      cfg,
		server:   cfg.SMTPHost + ":" + cfg.SMTPPort,
		auth:     auth,
		sendMail: smtp.SendMail,
		logger:   logger,
	}
}

// IsConfigured returns true if host, port and sender are set.
func (n *SMTPNotifier) IsConfigured() bool {
	return n.cfg.SMTPHost != "" && n.cfg.SMTPPort != "" && n.cfg.SMTPFrom != ""
}

type approvalMailData struct {
	Org       string
	Repo      string
	Path      string
	Author    string
	Approvers []string
	Link      string
}

type rejectionMailData struct {
	Org        string
	Repo       string
	Path       string
	Reason     string
	RejectedBy string
	Link       string
}

type publishedMailData struct {
	Org   string
	Repo  string
	Pages []publishedLink
}

type publishedLink struct {
	Path string
	Link string
}

// RequestApproval implements Notifier.
func (n *SMTPNotifier) RequestApproval(ctx context.Context, p models.ApprovalNotification) (*models.NotificationReceipt, error) {
	if len(p.Approvers) == 0 {
		return nil, fmt.Errorf("request approval: no approvers for %s", p.Path)
	}
	body, err := renderMail(approvalMailTemplate, approvalMailData{
		Org: p.Org, Repo: p.Repo, Path: p.Path, Author: p.AuthorEmail, Approvers: p.Approvers,
		Link: n.contentLink(p.Org, p.Repo, p.Path),
	})
	if err != nil {
		return nil, fmt.Errorf("render approval template: %w", err)
	}
	subject := fmt.Sprintf("Publish approval requested: %s", p.Path)
	if err := n.send(ctx, p.Approvers, p.CC, subject, body); err != nil {
		return nil, err
	}
	recipients := append(append([]string{}, p.Approvers...), p.CC...)
	return &models.NotificationReceipt{Message: "approval request sent", Recipients: recipients}, nil
}

// NotifyRejected implements Notifier.
func (n *SMTPNotifier) NotifyRejected(ctx context.Context, p models.RejectionNotification) (*models.NotificationReceipt, error) {
	body, err := renderMail(rejectionMailTemplate, rejectionMailData{
		Org: p.Org, Repo: p.Repo, Path: p.Path, Reason: p.Reason, RejectedBy: p.RejectedBy,
		Link: n.contentLink(p.Org, p.Repo, p.Path),
	})
	if err != nil {
		return nil, fmt.Errorf("render rejection template: %w", err)
	}
	subject := fmt.Sprintf("Publish request rejected: %s", p.Path)
	if err := n.send(ctx, []string{p.AuthorEmail}, nil, subject, body); err != nil {
		return nil, err
	}
	return &models.NotificationReceipt{Message: "rejection sent", Recipients: []string{p.AuthorEmail}}, nil
}

// NotifyPublished implements Notifier. Each author gets one email listing their pages.
func (n *SMTPNotifier) NotifyPublished(ctx context.Context, p models.PublishedNotification) (*models.NotificationReceipt, error) {
	byAuthor := make(map[string][]publishedLink)
	for _, page := range p.Pages {
		if page.AuthorEmail == "" {
			continue
		}
		byAuthor[page.AuthorEmail] = append(byAuthor[page.AuthorEmail], publishedLink{
			Path: page.Path,
			Link: n.contentLink(p.Org, p.Repo, page.Path),
		})
	}

	notified := make([]string, 0, len(byAuthor))
	var failures []string
	for _, author := range p.Authors() {
		body, err := renderMail(publishedMailTemplate, publishedMailData{Org: p.Org, Repo: p.Repo, Pages: byAuthor[author]})
		if err != nil {
			return nil, fmt.Errorf("render published template: %w", err)
		}
		subject := fmt.Sprintf("Published: %d page(s) in %s/%s", len(byAuthor[author]), p.Org, p.Repo)
		if err := n.send(ctx, []string{author}, nil, subject, body); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", author, err))
			continue
		}
		notified = append(notified, author)
	}
	if len(failures) > 0 {
		return nil, fmt.Errorf("notify published: %s", strings.Join(failures, "; "))
	}
	return &models.NotificationReceipt{Message: "authors notified", Recipients: notified}, nil
}

func (n *SMTPNotifier) contentLink(org, repo, path string) string {
	if n.cfg.ContentOrigin == "" {
		return ""
	}
	return fmt.Sprintf("%s/#/%s/%s%s", n.cfg.ContentOrigin, org, repo, path)
}

func (n *SMTPNotifier) send(ctx context.Context, to, cc []string, subject, htmlBody string) error {
	if !n.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := n.cfg.SMTPFrom
	if n.cfg.SMTPFromName != "" {
		from = fmt.Sprintf("%s <%s>", n.cfg.SMTPFromName, n.cfg.SMTPFrom)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	if len(cc) > 0 {
		fmt.Fprintf(&msg, "Cc: %s\r\n", strings.Join(cc, ", "))
	}
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)

	recipients := append(append([]string{}, to...), cc...)
	if err := n.sendMail(n.server, n.auth, n.cfg.SMTPFrom, recipients, msg.Bytes()); err != nil {
		return fmt.Errorf("smtp send to %s: %w", strings.Join(to, ", "), err)
	}
	n.logger.Debug("email sent", zap.Strings("to", to), zap.String("subject", subject))
	return nil
}

func renderMail(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const mailStyle = `<style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .reason { background: #fff3cd; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>`

var approvalMailTemplate = template.Must(template.New("approval").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8">` + mailStyle + `</head>
<body>
    <h2>Publish approval requested</h2>
    <p>{{.Author}} asked to publish <strong>{{.Path}}</strong> in {{.Org}}/{{.Repo}}.</p>
    {{if .Link}}<p><a href="{{.Link}}">Review the page</a></p>{{end}}
    <div class="footer">
        <p>Sent to: {{range $i, $a := .Approvers}}{{if $i}}, {{end}}{{$a}}{{end}}</p>
    </div>
</body>
</html>`))

var rejectionMailTemplate = template.Must(template.New("rejection").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8">` + mailStyle + `</head>
<body>
    <h2>Publish request rejected</h2>
    <p>Your request to publish <strong>{{.Path}}</strong> in {{.Org}}/{{.Repo}} was rejected{{if .RejectedBy}} by {{.RejectedBy}}{{end}}.</p>
    <div class="reason"><strong>Reason:</strong> {{.Reason}}</div>
    {{if .Link}}<p><a href="{{.Link}}">Open the page</a></p>{{end}}
</body>
</html>`))

var publishedMailTemplate = template.Must(template.New("published").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8">` + mailStyle + `</head>
<body>
    <h2>Your pages are live</h2>
    <p>The following pages in {{.Org}}/{{.Repo}} were published:</p>
    <ul>{{range .Pages}}
        <li>{{if .Link}}<a href="{{.Link}}">{{.Path}}</a>{{else}}{{.Path}}{{end}}</li>{{end}}
    </ul>
</body>
</html>`))
