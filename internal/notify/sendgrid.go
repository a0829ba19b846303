package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"assetflow/internal/domain"
)

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	// Aliases maps logical recipients ("ops") to email addresses.
	Aliases map[string]string
}

type mailSender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridGateway sends notifications as email through SendGrid.
type SendGridGateway struct {
	cfg    SendGridConfig
	client mailSender
}

func NewSendGridGateway(cfg SendGridConfig) *SendGridGateway {
	if cfg.FromName == "" {
		cfg.FromName = "Assetflow"
	}
	return &SendGridGateway{cfg: cfg, client: sendgrid.NewSendClient(cfg.APIKey)}
}

func (g *SendGridGateway) address(recipient string) (string, error) {
	if addr, ok := g.cfg.Aliases[recipient]; ok {
		return addr, nil
	}
	if strings.Contains(recipient, "@") {
		return recipient, nil
	}
	return "", fmt.Errorf("%w: no email address for recipient %q", ErrDelivery, recipient)
}

func (g *SendGridGateway) send(ctx context.Context, recipient, subject, text, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	addr, err := g.address(recipient)
	if err != nil {
		return err
	}
	from := mail.NewEmail(g.cfg.FromName, g.cfg.FromEmail)
	to := mail.NewEmail(recipient, addr)
	message := mail.NewSingleEmail(from, subject, to, text, htmlBody)

	response, err := g.client.Send(message)
	if err != nil {
		return fmt.Errorf("%w: sendgrid: %v", ErrDelivery, err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("%w: sendgrid status %d: %s", ErrDelivery, response.StatusCode, response.Body)
	}
	return nil
}

func (g *SendGridGateway) NotifyOverdueAssets(ctx context.Context, recipient string, assets []domain.Asset) error {
	subject := fmt.Sprintf("%d overdue asset(s)", len(assets))
	var text, body bytes.Buffer
	body.WriteString("<p>The following assets are overdue:</p><ul>")
	for _, a := range assets {
		due := ""
		if a.DueDate != nil {
			due = a.DueDate.Format("2006-01-02")
		}
		fmt.Fprintf(&text, "- %s (%s) due %s\n", a.Name, a.ID, due)
		fmt.Fprintf(&body, "<li><strong>%s</strong> (%s) due %s</li>", html.EscapeString(a.Name), html.EscapeString(a.ID), due)
	}
	body.WriteString("</ul>")
	return g.send(ctx, recipient, subject, text.String(), body.String())
}

func (g *SendGridGateway) NotifyMaintenanceReminder(ctx context.Context, recipient string, item domain.MaintenanceItem, daysUntilDue int) error {
	subject := fmt.Sprintf("Maintenance due in %d day(s): %s", daysUntilDue, item.Title)
	when := item.ScheduledDate.Format("2006-01-02 15:04")
	text := fmt.Sprintf("%s (%s priority) is scheduled for %s.\n", item.Title, item.Priority, when)
	body := fmt.Sprintf("<p><strong>%s</strong> (%s priority) is scheduled for %s.</p>",
		html.EscapeString(item.Title), html.EscapeString(string(item.Priority)), when)
	return g.send(ctx, recipient, subject, text, body)
}

func (g *SendGridGateway) NotifyLowStock(ctx context.Context, recipient string, summary domain.LowStockSummary) error {
	subject := fmt.Sprintf("Stock alert: %d critical, %d low", len(summary.Critical), len(summary.Low))
	var text, body bytes.Buffer
	writeStockSection(&text, &body, "Critical", summary.Critical)
	writeStockSection(&text, &body, "Low", summary.Low)
	return g.send(ctx, recipient, subject, text.String(), body.String())
}

func writeStockSection(text, body *bytes.Buffer, title string, items []domain.InventoryItem) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(text, "%s:\n", title)
	fmt.Fprintf(body, "<h3>%s</h3><ul>", title)
	for _, i := range items {
		fmt.Fprintf(text, "- %s: %d in stock (min %d, critical %d)\n", i.Name, i.CurrentStock, i.MinimumThreshold, i.CriticalThreshold)
		fmt.Fprintf(body, "<li>%s: %d in stock (min %d, critical %d)</li>",
			html.EscapeString(i.Name), i.CurrentStock, i.MinimumThreshold, i.CriticalThreshold)
	}
	body.WriteString("</ul>")
}
