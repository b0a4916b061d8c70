package storage

import "testing"

func TestBuildShippingLabelPath(t *testing.T) {
	path, err := BuildObjectPath(PurposeShippingLabel, PathParams{
		OrderID:    "order123",
		ShipmentID: "shp789",
		FileName:   "label.pdf",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "labels/orders/order123/shipments/shp789/label.pdf"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildShippingLabelPathDefaultsFileName(t *testing.T) {
	path, err := BuildObjectPath(PurposeShippingLabel, PathParams{
		OrderID:    "order123",
		ShipmentID: "shp789",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "labels/orders/order123/shipments/shp789/shp789.pdf"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildReceiptPathUsesInvoiceNumber(t *testing.T) {
	path, err := BuildObjectPath(PurposeReceipt, PathParams{
		OrderID:       "order123",
		InvoiceNumber: "INV-2025-001",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "receipts/orders/order123/INV-2025-001.pdf"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	_, err := BuildObjectPath(PurposeShippingLabel, PathParams{
		OrderID:    "../bad",
		ShipmentID: "shp",
		FileName:   "label.pdf",
	})
	if err == nil {
		t.Fatalf("expected error for invalid segment")
	}
}
