package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/codewithrichardb/ecommerce-backend/internal/domain"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// ReminderData is the field contract for reminder email templates.
type ReminderData struct {
	Subject          string
	StoreName        string
	StoreURL         string
	Items            []domain.CartItem
	Subtotal         string
	Discount         string
	Total            string
	RecoveryURL      string
	TrackingPixelURL string
	CouponCode       string
	CouponDiscount   string
}

// Renderer renders reminder emails from the embedded templates.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// RenderReminder renders the reminder template with the given data.
func (r *Renderer) RenderReminder(data *ReminderData) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "reminder.html.tmpl", data); err != nil {
		return "", fmt.Errorf("render reminder template: %w", err)
	}
	return buf.String(), nil
}
