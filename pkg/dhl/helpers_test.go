package dhl_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tournevent/dhlparcel/pkg/dhl"
	"github.com/tournevent/dhlparcel/pkg/dhl/dhltest"
)

func testConsignee() dhl.ConsigneeAddress {
	return dhl.ConsigneeAddress{
		RecipientType: "residential",
		AddressType:   "doorstep",
		Address1:      "10 Downing Street",
		City:          "London",
		PostalCode:    "SW1A 2AA",
		Country:       "GB",
		Name:          "Jane Smith",
		Phone:         "+44 20 7925 0918",
		Email:         "jane@example.com",
	}
}

func testSender() dhl.SenderAddress {
	return dhl.SenderAddress{
		CompanyName: "Acme Ltd",
		Address1:    "1 Industrial Estate",
		City:        "Manchester",
		PostalCode:  "M1 1AA",
		Country:     "GB",
		Name:        "Warehouse",
		Phone:       "+44 161 000 0000",
		Email:       "dispatch@acme.example",
	}
}

func testDetails() dhl.ShipmentDetails {
	return dhl.ShipmentDetails{
		CustomerRef1:   "ORDER-1001",
		OrderedProduct: "220",
		TotalPieces:    1,
		TotalWeight:    2.5,
	}
}

func testPickup() dhl.PickupData {
	return dhl.NewPickupData(time.Date(2024, time.January, 15, 14, 30, 0, 0, time.UTC), true)
}

func newTestRequest(t *testing.T) *dhl.ShipmentRequest {
	t.Helper()

	req, err := dhl.NewShipmentRequest("ACC-123", "PICKUP", testConsignee(), testPickup(), testSender(), testDetails())
	require.NoError(t, err)
	return req
}

func newTestAuth(t *testing.T, baseURL string) *dhl.AuthenticationService {
	t.Helper()

	auth, err := dhl.NewAuthenticationService(dhl.AuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Sandbox:      true,
		BaseURL:      baseURL,
	}, nil, nil, dhl.Options{})
	require.NoError(t, err)
	return auth
}

func newTestClient(t *testing.T, carrier *dhltest.Server, labelDir string) *dhl.Client {
	t.Helper()

	return dhl.New(
		dhl.Config{Sandbox: true, BaseURL: carrier.URL},
		nil,
		newTestAuth(t, carrier.URL),
		dhl.NewLabelPersister(labelDir, dhl.Options{}),
		dhl.Options{},
	)
}
