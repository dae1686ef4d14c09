package email

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/gomail.v2"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

type fakeDialer struct {
	messages []*gomail.Message
	err      error
	delay    time.Duration
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.messages = append(d.messages, m...)
	return d.err
}

func quietLogger() *log.Entry {
	l := log.New()
	l.SetLevel(log.PanicLevel)
	return l.WithField("component", "test")
}

func confirmedOrder() domain.Order {
	items := []domain.LineItem{{ProductID: "p1", ItemName: "Vitamin <C>", Quantity: 2, Price: decimal.NewFromInt(12), SelectedSize: "60 caps"}}
	return domain.Order{
		ID:              "o1",
		OrderNumber:     "ORD-1",
		BuyerEmail:      "buyer@example.com",
		BuyerName:       "Ana",
		Items:           items,
		Pricing:         domain.ComputePricing(items, decimal.NewFromInt(300)),
		Status:          domain.OrderStatusConfirmed,
		DeliveryAddress: domain.Address{Street: "Rruga 1", City: "Tirana"},
	}
}

func TestSender_SendsMultipartConfirmation(t *testing.T) {
	d := &fakeDialer{}
	s, err := newSender("shop@example.com", d, quietLogger())
	require.NoError(t, err)

	require.NoError(t, s.NotifyOrderConfirmed(context.Background(), confirmedOrder()))
	require.Len(t, d.messages, 1)

	m := d.messages[0]
	assert.Equal(t, []string{"buyer@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"Order ORD-1 confirmed"}, m.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	body := buf.String()
	assert.Contains(t, body, "text/plain")
	assert.Contains(t, body, "text/html")
	assert.Contains(t, body, "324.00")
	assert.Contains(t, body, "Rruga 1, Tirana")
}

func TestSender_RenderEscapesHTML(t *testing.T) {
	s, err := newSender("shop@example.com", &fakeDialer{}, quietLogger())
	require.NoError(t, err)

	html, plain, err := s.render(confirmedOrder())
	require.NoError(t, err)
	assert.Contains(t, html, "Vitamin &lt;C&gt;")
	assert.Contains(t, plain, "Vitamin <C> (60 caps) x2: 12.00")
}

func TestSender_PropagatesDialError(t *testing.T) {
	s, err := newSender("shop@example.com", &fakeDialer{err: errors.New("auth failed")}, quietLogger())
	require.NoError(t, err)

	err = s.NotifyOrderConfirmed(context.Background(), confirmedOrder())
	assert.ErrorContains(t, err, "auth failed")

	order := confirmedOrder()
	order.BuyerEmail = ""
	assert.ErrorIs(t, s.NotifyOrderConfirmed(context.Background(), order), domain.ErrBuyerEmailRequired)
}

func TestSender_StopsWaitingOnContext(t *testing.T) {
	s, err := newSender("shop@example.com", &fakeDialer{delay: 200 * time.Millisecond}, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.NotifyOrderConfirmed(ctx, confirmedOrder()), context.DeadlineExceeded)
}

func TestNewSender_RequiresHostAndFrom(t *testing.T) {
	_, err := NewSender(Config{Port: 465}, quietLogger())
	assert.Error(t, err)

	s, err := NewSender(Config{Host: "smtp.example.com", Port: 465, From: "shop@example.com", SSL: true}, quietLogger())
	require.NoError(t, err)
	assert.NotNil(t, s)
}
