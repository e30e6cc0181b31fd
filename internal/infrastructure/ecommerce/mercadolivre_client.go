package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
)

// MercadoLivreClient calls the Mercado Livre API on behalf of a seller
type MercadoLivreClient struct {
	config     *MercadoLivreConfig
	retry      *RetryPolicy
	aggregator *BillingAggregator
	clock      Clock
	logger     *zap.Logger
}

// NewMercadoLivreClient creates a Mercado Livre client
func NewMercadoLivreClient(config *MercadoLivreConfig, retryConfig RetryConfig, aggregator *BillingAggregator, clock Clock, logger *zap.Logger) (*MercadoLivreClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if aggregator == nil {
		aggregator = NewBillingAggregator(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clock = clockOrSystem(clock)
	httpClient := &http.Client{
		Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
	}
	return &MercadoLivreClient{
		config:     config,
		retry:      NewRetryPolicy(retryConfig, httpClient, clock, logger.With(zap.String("marketplace", "mercado_livre"))),
		aggregator: aggregator,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Retry returns the client's retry policy
func (c *MercadoLivreClient) Retry() *RetryPolicy {
	return c.retry
}

// Marketplace returns the marketplace this client handles
func (c *MercadoLivreClient) Marketplace() integration.Marketplace {
	return integration.MarketplaceMercadoLivre
}

// RenewToken exchanges the seller's refresh token for a new token pair
func (c *MercadoLivreClient) RenewToken(ctx context.Context, cred *integration.StoreCredential) (*integration.TokenGrant, error) {
	if cred.PartnerID == "" || cred.PartnerSecret == "" || cred.RefreshToken == "" {
		return nil, fmt.Errorf("%w: client id, secret and refresh token are required", integration.ErrInvalidCredential)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", cred.PartnerID)
	form.Set("client_secret", cred.PartnerSecret)
	form.Set("refresh_token", cred.RefreshToken)
	encoded := form.Encode()

	body, err := c.retry.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIBaseURL+mercadoLivrePathToken, strings.NewReader(encoded))
		if err != nil {
			return nil, fmt.Errorf("mercadolivre: failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp MercadoLivreTokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("mercadolivre: failed to parse response: %w", err)
	}
	if resp.Error != "" || resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: mercadolivre token refresh: %s %s", integration.ErrUpstream, resp.Error, resp.Message)
	}

	return &integration.TokenGrant{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

// SearchOrders requests one page of order ids. The cursor is the offset of
// the next page.
func (c *MercadoLivreClient) SearchOrders(ctx context.Context, cred *integration.StoreCredential, field integration.TimeField, window integration.TimeWindow, cursor string, pageSize int) (*Page, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, fmt.Errorf("mercadolivre: invalid cursor %q", cursor)
		}
		offset = n
	}

	prefix := "order.date_created"
	if field == integration.TimeFieldUpdated {
		prefix = "order.date_last_updated"
	}

	params := url.Values{}
	params.Set("seller", cred.StoreID)
	params.Set(prefix+".from", window.From.Format(mercadoLivreTimeLayout))
	params.Set(prefix+".to", window.To.Format(mercadoLivreTimeLayout))
	params.Set("sort", "date_asc")
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(pageSize))

	body, err := c.get(ctx, cred, mercadoLivrePathSearch+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp MercadoLivreSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("mercadolivre: failed to parse response: %w", err)
	}

	page := &Page{IDs: make([]string, 0, len(resp.Results))}
	for _, o := range resp.Results {
		if id := o.ID.String(); id != "" {
			page.IDs = append(page.IDs, id)
		}
	}
	next := offset + len(resp.Results)
	page.Cursor = SyncCursor{
		Token: strconv.Itoa(next),
		More:  len(resp.Results) > 0 && next < resp.Paging.Total,
	}
	return page, nil
}

// Lister binds SearchOrders to a credential
func (c *MercadoLivreClient) Lister(cred *integration.StoreCredential) ListFunc {
	return func(ctx context.Context, field integration.TimeField, window integration.TimeWindow, cursor string, pageSize int) (*Page, error) {
		return c.SearchOrders(ctx, cred, field, window, cursor, pageSize)
	}
}

// GetOrder fetches one order
func (c *MercadoLivreClient) GetOrder(ctx context.Context, cred *integration.StoreCredential, orderID string) (integration.OrderRecord, error) {
	body, err := c.get(ctx, cred, mercadoLivrePathOrder+url.PathEscape(orderID))
	if err != nil {
		return integration.OrderRecord{}, err
	}

	var order MercadoLivreOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return integration.OrderRecord{}, fmt.Errorf("mercadolivre: failed to parse response: %w", err)
	}
	if order.ID == "" {
		order.ID = flexString(orderID)
	}
	return c.convertOrder(cred.StoreID, &order, body), nil
}

// GetBilling fetches the billing breakdown of up to 50 orders. Records that
// fail aggregation are returned as a *integration.PartialError next to the
// records that succeeded.
func (c *MercadoLivreClient) GetBilling(ctx context.Context, cred *integration.StoreCredential, orderIDs []string) ([]integration.FinancialRecord, error) {
	params := url.Values{}
	params.Set("order_ids", strings.Join(orderIDs, ","))

	body, err := c.get(ctx, cred, mercadoLivrePathBilling+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	raws, err := SplitBillingResponse(body)
	if err != nil {
		return nil, err
	}

	var (
		now        = c.clock.Now()
		records    = make([]integration.FinancialRecord, 0, len(raws))
		failures   []integration.ItemFailure
		unassigned []error
		seen       = make(map[string]bool, len(raws))
	)
	for _, raw := range raws {
		rec, err := c.aggregator.Aggregate(cred.StoreID, raw)
		if err != nil {
			c.logger.Warn("Billing record failed aggregation",
				zap.String("store_id", cred.StoreID),
				zap.Error(err),
			)
			if id := BillingOrderID(raw); id != "" {
				seen[id] = true
				failures = append(failures, integration.NewItemFailure(id, err))
			} else {
				unassigned = append(unassigned, err)
			}
			continue
		}
		seen[rec.OrderID] = true
		rec.LastUpdated = now
		records = append(records, *rec)
	}

	// A record without a readable order id is charged to the requested ids
	// the response did not otherwise cover
	if len(unassigned) > 0 {
		for _, id := range orderIDs {
			if !seen[id] {
				failures = append(failures, integration.NewItemFailure(id, unassigned[0]))
			}
		}
	}

	if len(failures) > 0 {
		return records, &integration.PartialError{Failures: failures}
	}
	return records, nil
}

func (c *MercadoLivreClient) convertOrder(storeID string, order *MercadoLivreOrder, raw []byte) integration.OrderRecord {
	created := parseFlexibleTime(order.DateCreated)
	updated := parseFlexibleTime(order.LastUpdated)
	if updated == nil {
		updated = created
	}

	rec := integration.OrderRecord{
		Marketplace:    integration.MarketplaceMercadoLivre,
		OrderID:        order.ID.String(),
		StoreID:        storeID,
		Status:         MapMercadoLivreStatus(order.Status),
		PlatformStatus: order.Status,
		TotalAmount:    order.TotalAmount,
		Currency:       order.CurrencyID,
		BuyerRef:       order.Buyer.Nickname,
		HasRefund:      order.HasRefund(),
		RawPayload:     string(raw),
		SyncedAt:       c.clock.Now(),
	}
	if created != nil {
		rec.OrderCreatedAt = created.UTC()
	}
	if updated != nil {
		rec.OrderUpdatedAt = updated.UTC()
	}
	if rec.Currency == "" {
		rec.Currency = integration.DefaultCurrency
	}
	if rec.BuyerRef == "" {
		rec.BuyerRef = order.Buyer.ID.String()
	}
	return rec
}

// get sends an authenticated GET to path, which may carry a query string
func (c *MercadoLivreClient) get(ctx context.Context, cred *integration.StoreCredential, path string) ([]byte, error) {
	if cred.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", integration.ErrUnauthenticated)
	}
	return c.retry.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.APIBaseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("mercadolivre: failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
}
