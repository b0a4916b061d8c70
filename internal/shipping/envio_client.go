package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ClientLogger defines the logging contract for aggregator calls.
type ClientLogger func(ctx context.Context, event string, fields map[string]any)

// ClientConfig configures the aggregator HTTP client.
type ClientConfig struct {
	BaseURL    string
	Token      string
	UserAgent  string
	HTTPClient *http.Client
	Logger     ClientLogger
}

// Client talks to a MelhorEnvio-style shipping aggregator API. Monetary
// values cross the wire as decimal strings and are converted to minor units
// at this boundary.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	logger     ClientLogger
}

var _ Provider = (*Client)(nil)

// NewClient constructs an aggregator client from configuration.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("shipping: base url is required")
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("shipping: token is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = "lumamart-api"
	}

	return &Client{
		baseURL:    baseURL,
		token:      token,
		userAgent:  userAgent,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type envioPostalCode struct {
	PostalCode string `json:"postal_code"`
}

type envioPackage struct {
	Weight float64 `json:"weight"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Length float64 `json:"length"`
}

type envioQuoteRequest struct {
	From    envioPostalCode `json:"from"`
	To      envioPostalCode `json:"to"`
	Package envioPackage    `json:"package"`
	Options map[string]any  `json:"options,omitempty"`
}

type envioCompany struct {
	Name string `json:"name"`
}

type envioQuoteOption struct {
	ID           int          `json:"id"`
	Name         string       `json:"name"`
	Price        string       `json:"price"`
	DeliveryTime int          `json:"delivery_time"`
	Company      envioCompany `json:"company"`
	Error        string       `json:"error"`
}

// Quote prices the envelope between two postal codes.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) ([]QuoteOption, error) {
	payload := envioQuoteRequest{
		From:    envioPostalCode{PostalCode: digitsOnly(req.FromPostalCode)},
		To:      envioPostalCode{PostalCode: digitsOnly(req.ToPostalCode)},
		Package: toEnvioPackage(req.Envelope),
	}
	if req.DeclaredValue > 0 {
		payload.Options = map[string]any{
			"insurance_value": minorToDecimal(req.DeclaredValue),
			"receipt":         false,
			"own_hand":        false,
		}
	}

	var raw []envioQuoteOption
	if err := c.do(ctx, http.MethodPost, "/shipment/calculate", payload, &raw); err != nil {
		return nil, fmt.Errorf("shipping: quote: %w", err)
	}

	options := make([]QuoteOption, 0, len(raw))
	for _, option := range raw {
		options = append(options, QuoteOption{
			ServiceID:    option.ID,
			Name:         option.Name,
			CarrierName:  option.Company.Name,
			Price:        decimalToMinor(option.Price),
			DeliveryDays: option.DeliveryTime,
			Error:        strings.TrimSpace(option.Error),
		})
	}
	return options, nil
}

type envioProduct struct {
	Name         string `json:"name"`
	Quantity     string `json:"quantity"`
	UnitaryValue string `json:"unitary_value"`
}

type envioVolume struct {
	Weight string `json:"weight"`
	Width  string `json:"width"`
	Height string `json:"height"`
	Length string `json:"length"`
}

type envioParty struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Document   string `json:"document,omitempty"`
	Address    string `json:"address"`
	Complement string `json:"complement,omitempty"`
	Number     string `json:"number,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city"`
	StateAbbr  string `json:"state_abbr"`
	PostalCode string `json:"postal_code"`
	CountryID  string `json:"country_id,omitempty"`
}

type envioCartRequest struct {
	Service  int            `json:"service"`
	From     envioParty     `json:"from"`
	To       envioParty     `json:"to"`
	Products []envioProduct `json:"products"`
	Volumes  []envioVolume  `json:"volumes"`
	Options  map[string]any `json:"options"`
}

type envioOrder struct {
	ID       string `json:"id"`
	Protocol string `json:"protocol"`
	Status   string `json:"status"`
	Tracking string `json:"tracking"`
	Price    string `json:"price"`
	Service  struct {
		ID int `json:"id"`
	} `json:"service"`
}

// CreateShipment adds a shipment to the aggregator cart.
func (c *Client) CreateShipment(ctx context.Context, req CreateShipmentRequest) (Shipment, error) {
	if req.ServiceID <= 0 {
		return Shipment{}, errors.New("shipping: service id is required")
	}

	products := make([]envioProduct, 0, len(req.Items))
	for _, item := range req.Items {
		products = append(products, envioProduct{
			Name:         item.Name,
			Quantity:     strconv.FormatInt(item.Quantity, 10),
			UnitaryValue: minorToDecimal(item.UnitPrice),
		})
	}

	payload := envioCartRequest{
		Service:  req.ServiceID,
		From:     toEnvioParty(req.From),
		To:       toEnvioParty(req.To),
		Products: products,
		Volumes: []envioVolume{{
			Weight: formatMeasure(req.Envelope.WeightKg),
			Width:  formatMeasure(req.Envelope.WidthCm),
			Height: formatMeasure(req.Envelope.HeightCm),
			Length: formatMeasure(req.Envelope.LengthCm),
		}},
		Options: map[string]any{
			"insurance_value": minorToDecimal(req.InsuranceValue),
			"receipt":         false,
			"own_hand":        false,
			"non_commercial":  true,
			"tags": []map[string]string{
				{"tag": req.Reference},
			},
		},
	}

	var order envioOrder
	if err := c.do(ctx, http.MethodPost, "/cart", payload, &order); err != nil {
		return Shipment{}, fmt.Errorf("shipping: create shipment: %w", err)
	}

	c.logger(ctx, "shipping.shipment.created", map[string]any{
		"shipmentId": order.ID,
		"serviceId":  order.Service.ID,
	})
	return toShipment(order), nil
}

type envioOrdersRequest struct {
	Orders []string `json:"orders"`
}

type envioCheckoutResponse struct {
	Purchase struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Total  string `json:"total"`
	} `json:"purchase"`
}

// Checkout pays for the shipment previously added to the cart.
func (c *Client) Checkout(ctx context.Context, shipmentID string) (CheckoutResult, error) {
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return CheckoutResult{}, errors.New("shipping: shipment id is required")
	}

	var resp envioCheckoutResponse
	if err := c.do(ctx, http.MethodPost, "/shipment/checkout", envioOrdersRequest{Orders: []string{shipmentID}}, &resp); err != nil {
		return CheckoutResult{}, fmt.Errorf("shipping: checkout shipment %s: %w", shipmentID, err)
	}

	c.logger(ctx, "shipping.shipment.paid", map[string]any{
		"shipmentId": shipmentID,
		"purchaseId": resp.Purchase.ID,
	})
	return CheckoutResult{
		PurchaseID: resp.Purchase.ID,
		Status:     resp.Purchase.Status,
		Total:      decimalToMinor(resp.Purchase.Total),
	}, nil
}

// GenerateLabel asks the aggregator to produce the label document.
func (c *Client) GenerateLabel(ctx context.Context, shipmentID string) error {
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return errors.New("shipping: shipment id is required")
	}
	if err := c.do(ctx, http.MethodPost, "/shipment/generate", envioOrdersRequest{Orders: []string{shipmentID}}, nil); err != nil {
		return fmt.Errorf("shipping: generate label for shipment %s: %w", shipmentID, err)
	}
	return nil
}

// GetShipment reads the shipment back, including its tracking code once assigned.
func (c *Client) GetShipment(ctx context.Context, shipmentID string) (Shipment, error) {
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return Shipment{}, errors.New("shipping: shipment id is required")
	}

	var order envioOrder
	if err := c.do(ctx, http.MethodGet, "/orders/"+shipmentID, nil, &order); err != nil {
		return Shipment{}, fmt.Errorf("shipping: get shipment %s: %w", shipmentID, err)
	}
	return toShipment(order), nil
}

type envioPrintResponse struct {
	URL string `json:"url"`
}

// PrintLabel returns the ephemeral printable label URL.
func (c *Client) PrintLabel(ctx context.Context, shipmentID string) (LabelDocument, error) {
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return LabelDocument{}, errors.New("shipping: shipment id is required")
	}

	var resp envioPrintResponse
	if err := c.do(ctx, http.MethodPost, "/shipment/print", envioOrdersRequest{Orders: []string{shipmentID}}, &resp); err != nil {
		return LabelDocument{}, fmt.Errorf("shipping: print label for shipment %s: %w", shipmentID, err)
	}
	if strings.TrimSpace(resp.URL) == "" {
		return LabelDocument{}, errors.New("shipping: aggregator returned empty label url")
	}
	return LabelDocument{URL: resp.URL}, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrShipmentNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ProviderError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ProviderError carries the HTTP status of a failed aggregator call.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "shipping: provider error"
	}
	if e.Body == "" {
		return fmt.Sprintf("shipping: provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("shipping: provider returned status %d: %s", e.StatusCode, e.Body)
}

func toShipment(order envioOrder) Shipment {
	return Shipment{
		ID:           order.ID,
		Protocol:     order.Protocol,
		ServiceID:    order.Service.ID,
		Status:       order.Status,
		TrackingCode: strings.TrimSpace(order.Tracking),
		Price:        decimalToMinor(order.Price),
	}
}

func toEnvioPackage(envelope Envelope) envioPackage {
	return envioPackage{
		Weight: roundMeasure(envelope.WeightKg),
		Width:  roundMeasure(envelope.WidthCm),
		Height: roundMeasure(envelope.HeightCm),
		Length: roundMeasure(envelope.LengthCm),
	}
}

func toEnvioParty(party Party) envioParty {
	country := strings.TrimSpace(party.Country)
	if country == "" {
		country = "BR"
	}
	return envioParty{
		Name:       party.Name,
		Phone:      party.Phone,
		Email:      party.Email,
		Document:   party.Document,
		Address:    party.Address,
		Complement: party.Complement,
		Number:     party.Number,
		District:   party.District,
		City:       party.City,
		StateAbbr:  party.State,
		PostalCode: digitsOnly(party.PostalCode),
		CountryID:  country,
	}
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func roundMeasure(value float64) float64 {
	return math.Round(value*100) / 100
}

func formatMeasure(value float64) string {
	return strconv.FormatFloat(roundMeasure(value), 'f', -1, 64)
}

func minorToDecimal(amount int64) string {
	return strconv.FormatFloat(float64(amount)/100, 'f', 2, 64)
}

func decimalToMinor(value string) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(parsed * 100))
}
