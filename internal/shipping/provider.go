package shipping

import (
	"context"
	"errors"
)

// ErrShipmentNotFound is returned when the aggregator does not know the shipment.
var ErrShipmentNotFound = errors.New("shipping: shipment not found")

// Envelope is the physical package description sent to the aggregator.
// Dimensions are centimetres, weight is kilograms.
type Envelope struct {
	WeightKg float64
	WidthCm  float64
	HeightCm float64
	LengthCm float64
}

// QuoteRequest asks the aggregator to price shipping between two postal codes.
type QuoteRequest struct {
	FromPostalCode string
	ToPostalCode   string
	Envelope       Envelope
	DeclaredValue  int64
}

// QuoteOption is one carrier service returned by the aggregator. Price is in
// minor currency units. Error carries the aggregator's per-service failure
// flag; options with a non-empty Error are not purchasable.
type QuoteOption struct {
	ServiceID    int
	Name         string
	CarrierName  string
	Price        int64
	DeliveryDays int
	Error        string
}

// Party identifies one end of a shipment.
type Party struct {
	Name       string
	Phone      string
	Email      string
	Document   string
	Address    string
	Complement string
	Number     string
	District   string
	City       string
	State      string
	PostalCode string
	Country    string
}

// ShipmentItem declares one product inside the package.
type ShipmentItem struct {
	Name      string
	Quantity  int64
	UnitPrice int64
}

// CreateShipmentRequest adds a shipment to the aggregator cart.
type CreateShipmentRequest struct {
	ServiceID      int
	From           Party
	To             Party
	Envelope       Envelope
	InsuranceValue int64
	Items          []ShipmentItem
	Reference      string
}

// Shipment mirrors the aggregator's view of a shipment.
type Shipment struct {
	ID           string
	Protocol     string
	ServiceID    int
	Status       string
	TrackingCode string
	Price        int64
}

// CheckoutResult confirms payment for one or more shipments.
type CheckoutResult struct {
	PurchaseID string
	Status     string
	Total      int64
}

// LabelDocument is an ephemeral pointer to a printable label.
type LabelDocument struct {
	URL string
}

// Provider abstracts the shipping aggregator so fulfillment and quoting can be
// tested with fakes.
type Provider interface {
	Quote(ctx context.Context, req QuoteRequest) ([]QuoteOption, error)
	CreateShipment(ctx context.Context, req CreateShipmentRequest) (Shipment, error)
	Checkout(ctx context.Context, shipmentID string) (CheckoutResult, error)
	GenerateLabel(ctx context.Context, shipmentID string) error
	GetShipment(ctx context.Context, shipmentID string) (Shipment, error)
	PrintLabel(ctx context.Context, shipmentID string) (LabelDocument, error)
}
