package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lumamart/api/internal/repositories"
	"github.com/lumamart/api/internal/shipping"
)

// ErrRateInvalidInput signals the quote request is unusable.
var ErrRateInvalidInput = errors.New("rates: invalid input")

// Envelope bounds accepted by the carrier aggregator. Requests outside them
// are clamped rather than rejected.
const (
	minEnvelopeWeightKg = 0.3
	maxEnvelopeWeightKg = 30.0
	minEnvelopeWidthCm  = 11.0
	maxEnvelopeWidthCm  = 105.0
	minEnvelopeHeightCm = 2.0
	maxEnvelopeHeightCm = 105.0
	minEnvelopeLengthCm = 16.0
	maxEnvelopeLengthCm = 105.0
)

// freeShippingOption is returned when every quoted product ships free.
var freeShippingOption = RateOption{
	ID:           "free",
	Name:         "Free shipping",
	Price:        0,
	DeliveryDays: 7,
}

// staticRateOptions back the quote surface when the aggregator is down or
// returns nothing usable. Prices are conservative flat rates.
var staticRateOptions = []RateOption{
	{ID: "economy", Name: "Economy", Price: 1500, DeliveryDays: 10, CarrierName: "Postal"},
	{ID: "express", Name: "Express", Price: 2500, DeliveryDays: 5, CarrierName: "Postal"},
	{ID: "regional", Name: "Regional courier", Price: 2000, DeliveryDays: 2, CarrierName: "Courier"},
}

// defaultAllowedServiceIDs are the vetted carrier services quoted to shoppers
// when configuration does not narrow the list: economy postal, express postal,
// and the regional courier.
var defaultAllowedServiceIDs = []int{1, 2, 17}

// RateServiceConfig carries the quoting knobs resolved from configuration.
type RateServiceConfig struct {
	OriginPostalCode string
	// AllowedServiceIDs filters aggregator results to vetted carrier services.
	// Empty falls back to the default vetted set.
	AllowedServiceIDs []int
}

// RateServiceDeps bundles collaborators required to construct the rate service.
type RateServiceDeps struct {
	Products repositories.ProductRepository
	Provider shipping.Provider
	Config   RateServiceConfig
	Logger   func(ctx context.Context, event string, fields map[string]any)
	// QuoteTimeout bounds the aggregator call. Zero applies a 10s default.
	QuoteTimeout time.Duration
}

type rateService struct {
	products     repositories.ProductRepository
	provider     shipping.Provider
	origin       string
	allowedIDs   map[int]struct{}
	logger       func(context.Context, string, map[string]any)
	quoteTimeout time.Duration
}

// NewRateService wires dependencies into a concrete RateService implementation.
func NewRateService(deps RateServiceDeps) (RateService, error) {
	if deps.Products == nil {
		return nil, errors.New("rate service: product repository is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("rate service: shipping provider is required")
	}
	if strings.TrimSpace(deps.Config.OriginPostalCode) == "" {
		return nil, errors.New("rate service: origin postal code is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	timeout := deps.QuoteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	allowedIDs := deps.Config.AllowedServiceIDs
	if len(allowedIDs) == 0 {
		allowedIDs = defaultAllowedServiceIDs
	}
	allowed := make(map[int]struct{}, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = struct{}{}
	}

	return &rateService{
		products:     deps.Products,
		provider:     deps.Provider,
		origin:       strings.TrimSpace(deps.Config.OriginPostalCode),
		allowedIDs:   allowed,
		logger:       logger,
		quoteTimeout: timeout,
	}, nil
}

// QuoteRates resolves shipping options through a three tier cascade: free
// shipping when every item qualifies, live aggregator quotes filtered to the
// vetted services, and a static table when the aggregator yields nothing. It
// only errors on invalid input or catalog lookups, never on quoting itself.
func (s *rateService) QuoteRates(ctx context.Context, cmd RateQuoteCommand) ([]RateOption, error) {
	postalCode := strings.TrimSpace(cmd.PostalCode)
	if len(digitsOnly(postalCode)) != 8 {
		return nil, fmt.Errorf("%w: destination postal code must have 8 digits", ErrRateInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrRateInvalidInput)
	}

	quantities := make(map[string]int64, len(cmd.Items))
	declaredOverrides := make(map[string]int64, len(cmd.Items))
	productIDs := make([]string, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return nil, fmt.Errorf("%w: item product id is required", ErrRateInvalidInput)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item quantity must be positive", ErrRateInvalidInput)
		}
		if _, seen := quantities[id]; !seen {
			productIDs = append(productIDs, id)
		}
		quantities[id] += item.Quantity
		if item.UnitPrice > 0 {
			declaredOverrides[id] = item.UnitPrice
		}
	}

	products, err := s.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("rates: load products: %w", err)
	}

	allFree := len(products) > 0
	var declaredValue int64
	envelope := shipping.Envelope{}
	for _, product := range products {
		qty := quantities[product.ID]
		if !product.FreeShipping {
			allFree = false
		}
		unitPrice := product.Price
		if override, ok := declaredOverrides[product.ID]; ok {
			unitPrice = override
		}
		declaredValue += unitPrice * qty

		envelope.WeightKg += product.Envelope.WeightKg * float64(qty)
		envelope.LengthCm += product.Envelope.LengthCm * float64(qty)
		envelope.WidthCm = maxFloat(envelope.WidthCm, product.Envelope.WidthCm)
		envelope.HeightCm = maxFloat(envelope.HeightCm, product.Envelope.HeightCm)
	}

	if allFree {
		return []RateOption{freeShippingOption}, nil
	}

	quoteCtx, cancel := context.WithTimeout(ctx, s.quoteTimeout)
	defer cancel()

	quotes, err := s.provider.Quote(quoteCtx, shipping.QuoteRequest{
		FromPostalCode: s.origin,
		ToPostalCode:   postalCode,
		Envelope:       clampEnvelope(envelope),
		DeclaredValue:  declaredValue,
	})
	if err != nil {
		s.logger(ctx, "rates.provider.unavailable", map[string]any{
			"postalCode": postalCode,
			"error":      err.Error(),
		})
		return cloneRateOptions(staticRateOptions), nil
	}

	options := make([]RateOption, 0, len(quotes))
	for _, quote := range quotes {
		if quote.Error != "" || quote.Price <= 0 {
			continue
		}
		if s.allowedIDs != nil {
			if _, ok := s.allowedIDs[quote.ServiceID]; !ok {
				continue
			}
		}
		options = append(options, RateOption{
			ID:           strconv.Itoa(quote.ServiceID),
			Name:         quote.Name,
			Price:        quote.Price,
			DeliveryDays: quote.DeliveryDays,
			CarrierName:  quote.CarrierName,
		})
	}

	if len(options) == 0 {
		s.logger(ctx, "rates.provider.empty", map[string]any{
			"postalCode": postalCode,
			"quoted":     len(quotes),
		})
		return cloneRateOptions(staticRateOptions), nil
	}
	return options, nil
}

// clampEnvelope forces the aggregate package into the aggregator's accepted
// ranges so oversized carts still produce a quote.
func clampEnvelope(env shipping.Envelope) shipping.Envelope {
	env.WeightKg = clampFloat(env.WeightKg, minEnvelopeWeightKg, maxEnvelopeWeightKg)
	env.WidthCm = clampFloat(env.WidthCm, minEnvelopeWidthCm, maxEnvelopeWidthCm)
	env.HeightCm = clampFloat(env.HeightCm, minEnvelopeHeightCm, maxEnvelopeHeightCm)
	env.LengthCm = clampFloat(env.LengthCm, minEnvelopeLengthCm, maxEnvelopeLengthCm)
	return env
}

func clampFloat(value, lower, upper float64) float64 {
	if value < lower {
		return lower
	}
	if value > upper {
		return upper
	}
	return value
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func cloneRateOptions(options []RateOption) []RateOption {
	out := make([]RateOption, len(options))
	copy(out, options)
	return out
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
