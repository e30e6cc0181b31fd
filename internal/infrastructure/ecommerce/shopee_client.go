package ecommerce

import (
	"bytes"
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

// ShopeeClient calls the Shopee Open Platform on behalf of a store
type ShopeeClient struct {
	config *ShopeeConfig
	retry  *RetryPolicy
	clock  Clock
	logger *zap.Logger
}

// NewShopeeClient creates a Shopee client with the given configuration
func NewShopeeClient(config *ShopeeConfig, retryConfig RetryConfig, clock Clock, logger *zap.Logger) (*ShopeeClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clock = clockOrSystem(clock)
	httpClient := &http.Client{
		Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
	}
	return &ShopeeClient{
		config: config,
		retry:  NewRetryPolicy(retryConfig, httpClient, clock, logger.With(zap.String("marketplace", "shopee"))),
		clock:  clock,
		logger: logger,
	}, nil
}

// Retry returns the client's retry policy
func (c *ShopeeClient) Retry() *RetryPolicy {
	return c.retry
}

// Marketplace returns the marketplace this client handles
func (c *ShopeeClient) Marketplace() integration.Marketplace {
	return integration.MarketplaceShopee
}

// ---------------------------------------------------------------------------
// Token renewal
// ---------------------------------------------------------------------------

// RenewToken exchanges the store's refresh token for a new token pair
func (c *ShopeeClient) RenewToken(ctx context.Context, cred *integration.StoreCredential) (*integration.TokenGrant, error) {
	partnerID, shopID, err := shopeeIdentity(cred)
	if err != nil {
		return nil, err
	}
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("%w: missing refresh token", integration.ErrInvalidCredential)
	}

	payload, err := json.Marshal(map[string]any{
		"partner_id":    partnerID,
		"shop_id":       shopID,
		"refresh_token": cred.RefreshToken,
	})
	if err != nil {
		return nil, fmt.Errorf("shopee: failed to marshal request: %w", err)
	}

	body, err := c.retry.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		endpoint := c.signedURL(cred, shopeePathRefreshToken, false, nil)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("shopee: failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp ShopeeTokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("shopee: failed to parse response: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, shopeeError(&resp.ShopeeResponse)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: shopee returned an empty access token", integration.ErrUpstream)
	}

	return &integration.TokenGrant{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    time.Duration(resp.ExpireIn) * time.Second,
	}, nil
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// ListOrders requests one page of order_sn values. It satisfies ListFunc
// once bound to a credential.
func (c *ShopeeClient) ListOrders(ctx context.Context, cred *integration.StoreCredential, field integration.TimeField, window integration.TimeWindow, cursor string, pageSize int) (*Page, error) {
	params := url.Values{}
	params.Set("time_range_field", string(field))
	params.Set("time_from", strconv.FormatInt(window.From.Unix(), 10))
	params.Set("time_to", strconv.FormatInt(window.To.Unix(), 10))
	params.Set("page_size", strconv.Itoa(pageSize))
	params.Set("cursor", cursor)

	body, err := c.get(ctx, cred, shopeePathOrderList, params)
	if err != nil {
		return nil, err
	}

	var resp ShopeeOrderListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("shopee: failed to parse response: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, shopeeError(&resp.ShopeeResponse)
	}

	page := &Page{}
	if resp.Response == nil {
		return page, nil
	}
	page.IDs = make([]string, 0, len(resp.Response.OrderList))
	for _, o := range resp.Response.OrderList {
		if o.OrderSN != "" {
			page.IDs = append(page.IDs, o.OrderSN)
		}
	}
	page.Cursor = SyncCursor{Token: resp.Response.NextCursor, More: resp.Response.More}
	return page, nil
}

// Lister binds ListOrders to a credential
func (c *ShopeeClient) Lister(cred *integration.StoreCredential) ListFunc {
	return func(ctx context.Context, field integration.TimeField, window integration.TimeWindow, cursor string, pageSize int) (*Page, error) {
		return c.ListOrders(ctx, cred, field, window, cursor, pageSize)
	}
}

// GetOrderDetails hydrates up to 50 orders in one call. Orders that fail to
// decode are returned as a *integration.PartialError next to the others.
func (c *ShopeeClient) GetOrderDetails(ctx context.Context, cred *integration.StoreCredential, orderSNs []string) ([]integration.OrderRecord, error) {
	params := url.Values{}
	params.Set("order_sn_list", strings.Join(orderSNs, ","))
	params.Set("response_optional_fields", "buyer_user_id,buyer_username,total_amount,currency")

	body, err := c.get(ctx, cred, shopeePathOrderDetail, params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ShopeeResponse
		Response *struct {
			OrderList []json.RawMessage `json:"order_list"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("shopee: failed to parse response: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, shopeeError(&resp.ShopeeResponse)
	}
	if resp.Response == nil {
		return nil, nil
	}

	var (
		now        = c.clock.Now()
		records    = make([]integration.OrderRecord, 0, len(resp.Response.OrderList))
		failures   []integration.ItemFailure
		unassigned []error
		seen       = make(map[string]bool, len(resp.Response.OrderList))
	)
	for _, raw := range resp.Response.OrderList {
		var order ShopeeOrder
		if err := json.Unmarshal(raw, &order); err != nil {
			err = fmt.Errorf("%w: order detail: %v", integration.ErrAggregation, err)
			c.logger.Warn("Malformed Shopee order", zap.Error(err))

			var ref ShopeeOrderStub
			if json.Unmarshal(raw, &ref) == nil && ref.OrderSN != "" {
				seen[ref.OrderSN] = true
				failures = append(failures, integration.NewItemFailure(ref.OrderSN, err))
			} else {
				unassigned = append(unassigned, err)
			}
			continue
		}
		seen[order.OrderSN] = true
		records = append(records, c.convertOrder(cred.StoreID, &order, raw, now))
	}

	if len(unassigned) > 0 {
		for _, sn := range orderSNs {
			if !seen[sn] {
				failures = append(failures, integration.NewItemFailure(sn, unassigned[0]))
			}
		}
	}

	if len(failures) > 0 {
		return records, &integration.PartialError{Failures: failures}
	}
	return records, nil
}

// GetEscrowDetail fetches and converts the fee breakdown of one order
func (c *ShopeeClient) GetEscrowDetail(ctx context.Context, cred *integration.StoreCredential, orderSN string) (*integration.FinancialRecord, error) {
	params := url.Values{}
	params.Set("order_sn", orderSN)

	body, err := c.get(ctx, cred, shopeePathEscrowDetail, params)
	if err != nil {
		return nil, err
	}
	rec, err := EscrowToFinancial(cred.StoreID, orderSN, body)
	if err != nil {
		return nil, err
	}
	rec.LastUpdated = c.clock.Now()
	return rec, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (c *ShopeeClient) convertOrder(storeID string, order *ShopeeOrder, raw []byte, now time.Time) integration.OrderRecord {
	status := MapShopeeStatus(order.OrderStatus)
	currency := order.Currency
	if currency == "" {
		currency = integration.DefaultCurrency
	}
	buyer := order.BuyerUsername
	if buyer == "" && order.BuyerUserID != 0 {
		buyer = strconv.FormatInt(order.BuyerUserID, 10)
	}
	return integration.OrderRecord{
		Marketplace:    integration.MarketplaceShopee,
		OrderID:        order.OrderSN,
		StoreID:        storeID,
		Status:         status,
		PlatformStatus: order.OrderStatus,
		OrderCreatedAt: time.Unix(order.CreateTime, 0).UTC(),
		OrderUpdatedAt: time.Unix(order.UpdateTime, 0).UTC(),
		TotalAmount:    order.TotalAmount,
		Currency:       currency,
		BuyerRef:       buyer,
		HasRefund:      status == integration.OrderStatusRefundPending,
		RawPayload:     string(raw),
		SyncedAt:       now,
	}
}

// get sends a shop-scoped GET, re-signing on every attempt
func (c *ShopeeClient) get(ctx context.Context, cred *integration.StoreCredential, path string, params url.Values) ([]byte, error) {
	if _, _, err := shopeeIdentity(cred); err != nil {
		return nil, err
	}
	return c.retry.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.signedURL(cred, path, true, params), nil)
		if err != nil {
			return nil, fmt.Errorf("shopee: failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
}

// signedURL builds the request URL with common parameters and a signature
// over the current timestamp
func (c *ShopeeClient) signedURL(cred *integration.StoreCredential, path string, shopScoped bool, params url.Values) string {
	timestamp := c.clock.Now().Unix()

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("partner_id", cred.PartnerID)
	query.Set("timestamp", strconv.FormatInt(timestamp, 10))

	var sign string
	if shopScoped {
		query.Set("access_token", cred.AccessToken)
		query.Set("shop_id", cred.StoreID)
		sign = ShopeeSignature(cred.PartnerSecret, cred.PartnerID, path, timestamp, cred.AccessToken, cred.StoreID)
	} else {
		sign = ShopeeSignature(cred.PartnerSecret, cred.PartnerID, path, timestamp, "", "")
	}
	query.Set("sign", sign)

	return c.config.APIBaseURL + path + "?" + query.Encode()
}

// shopeeIdentity parses the numeric partner and shop ids
func shopeeIdentity(cred *integration.StoreCredential) (int64, int64, error) {
	partnerID, err := strconv.ParseInt(cred.PartnerID, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: shopee partner id %q", integration.ErrInvalidCredential, cred.PartnerID)
	}
	shopID, err := strconv.ParseInt(cred.StoreID, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: shopee shop id %q", integration.ErrInvalidCredential, cred.StoreID)
	}
	return partnerID, shopID, nil
}

// shopeeError maps an error envelope delivered with HTTP 200
func shopeeError(resp *ShopeeResponse) error {
	switch {
	case strings.Contains(resp.Error, "access_token"), strings.Contains(resp.Error, "acceess_token"), resp.Error == "error_auth":
		return fmt.Errorf("%w: shopee %s - %s", integration.ErrUnauthenticated, resp.Error, resp.Message)
	case resp.Error == "error_not_found":
		return fmt.Errorf("%w: shopee %s - %s", integration.ErrNotFound, resp.Error, resp.Message)
	default:
		return fmt.Errorf("%w: shopee %s - %s", integration.ErrUpstream, resp.Error, resp.Message)
	}
}
