package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	log "github.com/sirupsen/logrus"
	gomail "gopkg.in/gomail.v2"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

//go:embed templates/*
var templatesFS embed.FS

// Config — параметры SMTP.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	SSL      bool
}

// Enabled сообщает, настроен ли SMTP.
func (c Config) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Sender отправляет покупателю письмо о подтверждении заказа.
type Sender struct {
	from   string
	dialer dialer
	html   *htmltemplate.Template
	plain  *texttemplate.Template
	logger *log.Entry
}

// NewSender создаёт отправителя поверх gomail.Dialer.
func NewSender(cfg Config, logger *log.Entry) (*Sender, error) {
	if !cfg.Enabled() {
		return nil, errors.New("smtp host and from address are required")
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.SSL = cfg.SSL
	return newSender(cfg.From, d, logger)
}

func newSender(from string, d dialer, logger *log.Entry) (*Sender, error) {
	if logger == nil {
		logger = log.New().WithField("component", "email")
	}
	html, err := htmltemplate.ParseFS(templatesFS, "templates/order_confirmed.html")
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	plain, err := texttemplate.ParseFS(templatesFS, "templates/order_confirmed.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}
	return &Sender{from: from, dialer: d, html: html, plain: plain, logger: logger}, nil
}

type itemView struct {
	ItemName     string
	SelectedSize string
	Quantity     int
	Price        string
}

type orderView struct {
	OrderNumber    string
	BuyerName      string
	BuyerEmail     string
	Items          []itemView
	TotalPrice     string
	DiscountAmount string
	ShippingCost   string
	FinalPrice     string
	Address        string
}

func newOrderView(order domain.Order) orderView {
	v := orderView{
		OrderNumber:    order.OrderNumber,
		BuyerName:      order.BuyerName,
		BuyerEmail:     order.BuyerEmail,
		TotalPrice:     order.Pricing.TotalPrice.StringFixed(2),
		DiscountAmount: order.Pricing.DiscountAmount.StringFixed(2),
		ShippingCost:   order.Pricing.ShippingCost.StringFixed(2),
		FinalPrice:     order.Pricing.FinalPrice.StringFixed(2),
	}
	for _, item := range order.Items {
		v.Items = append(v.Items, itemView{
			ItemName:     item.ItemName,
			SelectedSize: item.SelectedSize,
			Quantity:     item.Quantity,
			Price:        item.Price.StringFixed(2),
		})
	}
	a := order.DeliveryAddress
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.City, a.PostalCode, a.Country} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	v.Address = strings.Join(parts, ", ")
	return v
}

func (s *Sender) render(order domain.Order) (string, string, error) {
	view := newOrderView(order)
	var html, plain bytes.Buffer
	if err := s.html.Execute(&html, view); err != nil {
		return "", "", fmt.Errorf("render html: %w", err)
	}
	if err := s.plain.Execute(&plain, view); err != nil {
		return "", "", fmt.Errorf("render plain: %w", err)
	}
	return html.String(), plain.String(), nil
}

// NotifyOrderConfirmed отправляет письмо на BuyerEmail заказа.
// gomail не принимает контекст, поэтому отмена ctx лишь перестаёт ждать отправку.
func (s *Sender) NotifyOrderConfirmed(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.BuyerEmail) == "" {
		return domain.ErrBuyerEmailRequired
	}
	html, plain, err := s.render(order)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", order.BuyerEmail)
	m.SetHeader("Subject", fmt.Sprintf("Order %s confirmed", order.OrderNumber))
	m.SetBody("text/plain", plain)
	m.AddAlternative("text/html", html)

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send confirmation email: %w", err)
		}
		s.logger.WithField("order_id", order.ID).Info("confirmation email sent")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ domain.Notifier = (*Sender)(nil)
