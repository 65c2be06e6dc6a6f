// Package link builds and parses shareable payment links of the form
// <base>/pay/<paymentID>?amount=<decimal>&group=<name>.
package link

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmynk/settle/internal/calculator"
)

const payPath = "/pay/"

var ErrInvalidLink = errors.New("invalid payment link")

// Link is what a payer receives for one payment.
type Link struct {
	PaymentID string
	Amount    string
	GroupName string
}

// Build renders l against base, e.g. "https://settle.example".
func Build(base string, l Link) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return "", fmt.Errorf("%w: base %q: %v", ErrInvalidLink, base, err)
	}
	u.Path += payPath + l.PaymentID

	q := url.Values{}
	q.Set("amount", l.Amount)
	if l.GroupName != "" {
		q.Set("group", l.GroupName)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Parse extracts a Link from a full URL or from a bare "/pay/<id>?..." path.
// The amount, when present, must be a positive decimal.
func Parse(raw string) (Link, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Link{}, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}

	i := strings.LastIndex(u.Path, payPath)
	if i < 0 {
		return Link{}, fmt.Errorf("%w: no payment id in %q", ErrInvalidLink, raw)
	}
	id := strings.Trim(u.Path[i+len(payPath):], "/")
	if id == "" || strings.Contains(id, "/") {
		return Link{}, fmt.Errorf("%w: no payment id in %q", ErrInvalidLink, raw)
	}

	q := u.Query()
	l := Link{
		PaymentID: id,
		Amount:    q.Get("amount"),
		GroupName: q.Get("group"),
	}
	if l.Amount != "" && !calculator.IsPositive(l.Amount) {
		return Link{}, fmt.Errorf("%w: amount %q", ErrInvalidLink, l.Amount)
	}
	return l, nil
}
