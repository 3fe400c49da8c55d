// Package billing integrates Stripe subscription billing: a metered price
// for token usage, usage recording, and webhook-driven subscription state.
package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	stripe "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"github.com/stripe/stripe-go/v72/webhook"
)

const (
	// UsageProductName is the Stripe product all token usage is billed
	// under.
	UsageProductName = "Chat Relay Token Usage"

	// TokensPerBillingUnit is how many tokens make one billable unit.
	TokensPerBillingUnit = 1000
)

// StripeBilling manages the relay's Stripe resources and subscription
// state.
type StripeBilling struct {
	api           *client.API
	webhookSecret string

	mu        sync.RWMutex
	productID string
	priceID   string
	active    map[string]bool // customer ID -> has active subscription
}

// NewStripeBilling creates a billing service using the given API key.
func NewStripeBilling(apiKey string) (*StripeBilling, error) {
	if apiKey == "" {
		return nil, errors.New("stripe API key is required")
	}
	return &StripeBilling{
		api:    client.New(apiKey, nil),
		active: make(map[string]bool),
	}, nil
}

// SetWebhookSecret configures the signing secret used to verify webhook
// payloads.
func (b *StripeBilling) SetWebhookSecret(secret string) {
	b.webhookSecret = secret
}

// Initialize ensures the usage product and its metered price exist,
// creating them on first run.
func (b *StripeBilling) Initialize() error {
	productID, err := b.findProduct()
	if err != nil {
		return fmt.Errorf("find product: %w", err)
	}
	if productID == "" {
		product, err := b.api.Products.New(&stripe.ProductParams{
			Name: stripe.String(UsageProductName),
		})
		if err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		productID = product.ID
	}

	price, err := b.api.Prices.New(&stripe.PriceParams{
		Product:  stripe.String(productID),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		Recurring: &stripe.PriceRecurringParams{
			Interval:       stripe.String(string(stripe.PriceRecurringIntervalMonth)),
			UsageType:      stripe.String(string(stripe.PriceRecurringUsageTypeMetered)),
			AggregateUsage: stripe.String(string(stripe.PriceRecurringAggregateUsageSum)),
		},
		UnitAmount: stripe.Int64(1), // one cent per thousand tokens
	})
	if err != nil {
		return fmt.Errorf("create price: %w", err)
	}

	b.mu.Lock()
	b.productID = productID
	b.priceID = price.ID
	b.mu.Unlock()
	return nil
}

func (b *StripeBilling) findProduct() (string, error) {
	iter := b.api.Products.List(&stripe.ProductListParams{})
	for iter.Next() {
		if p := iter.Product(); p.Name == UsageProductName {
			return p.ID, nil
		}
	}
	return "", iter.Err()
}

// RecordTokenUsage reports token consumption against a subscription item.
// Usage below one billing unit is rounded up.
func (b *StripeBilling) RecordTokenUsage(subscriptionItemID string, tokens uint64) error {
	if subscriptionItemID == "" {
		return errors.New("subscription item ID is required")
	}
	units := (tokens + TokensPerBillingUnit - 1) / TokensPerBillingUnit
	_, err := b.api.UsageRecords.New(&stripe.UsageRecordParams{
		SubscriptionItem: stripe.String(subscriptionItemID),
		Quantity:         stripe.Int64(int64(units)),
		Timestamp:        stripe.Int64(time.Now().Unix()),
		Action:           stripe.String("increment"),
	})
	return err
}

// HasActiveSubscription reports whether a customer currently has an active
// subscription, as observed through webhooks.
func (b *StripeBilling) HasActiveSubscription(customerID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active[customerID]
}

// HandleWebhook verifies and dispatches Stripe webhook events.
func (b *StripeBilling) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		http.Error(w, "error reading request body", http.StatusBadRequest)
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), b.webhookSecret)
	if err != nil {
		http.Error(w, "invalid webhook signature", http.StatusBadRequest)
		return
	}

	if err := b.handleEvent(event); err != nil {
		log.Printf("billing: webhook %s: %v", event.Type, err)
		http.Error(w, "error handling event", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleEvent updates subscription state from one event.
func (b *StripeBilling) handleEvent(event stripe.Event) error {
	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return err
		}
		b.mu.Lock()
		b.active[sub.Customer.ID] = sub.Status == stripe.SubscriptionStatusActive ||
			sub.Status == stripe.SubscriptionStatusTrialing
		b.mu.Unlock()
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return err
		}
		b.mu.Lock()
		delete(b.active, sub.Customer.ID)
		b.mu.Unlock()
	}
	return nil
}

// CreateCustomer creates a Stripe customer for a user.
func (b *StripeBilling) CreateCustomer(email string) (string, error) {
	customer, err := b.api.Customers.New(&stripe.CustomerParams{
		Email: stripe.String(email),
	})
	if err != nil {
		return "", err
	}
	return customer.ID, nil
}
