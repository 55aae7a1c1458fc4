package dhl

import (
	"encoding/json"
	"fmt"
	"time"
)

// Label formats accepted by the carrier.
const (
	FormatPDF = "PDF"
	FormatPNG = "PNG"
	FormatZPL = "ZPL"
)

// DefaultFormat is used when a caller passes an empty label format.
const DefaultFormat = FormatPDF

// String returns a pointer to s, for optional address lines.
func String(s string) *string {
	return &s
}

// ConsigneeAddress is the delivery address of a shipment.
type ConsigneeAddress struct {
	RecipientType string  `json:"recipientType" validate:"required"`
	AddressType   string  `json:"addressType" validate:"required"`
	Address1      string  `json:"address1" validate:"required"`
	Address2      *string `json:"address2,omitempty"`
	City          string  `json:"city" validate:"required"`
	PostalCode    string  `json:"postalCode" validate:"required"`
	Country       string  `json:"country" validate:"required"`
	Name          string  `json:"name" validate:"required"`
	Phone         string  `json:"phone"`
	Email         string  `json:"email" validate:"omitempty,email"`
}

// SenderAddress is the collection address of a shipment.
type SenderAddress struct {
	CompanyName string  `json:"companyName" validate:"required"`
	Address1    string  `json:"address1" validate:"required"`
	Address2    *string `json:"address2,omitempty"`
	Address3    *string `json:"address3,omitempty"`
	City        string  `json:"city" validate:"required"`
	PostalCode  string  `json:"postalCode" validate:"required"`
	Country     string  `json:"country" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	Phone       string  `json:"phone"`
	Email       string  `json:"email" validate:"omitempty,email"`
}

// PickupData describes when the parcel is collected. Date carries no time of
// day; only the calendar date is sent.
type PickupData struct {
	Date           time.Time `validate:"required"`
	AccountAddress bool
}

// NewPickupData truncates date to its calendar day.
func NewPickupData(date time.Time, accountAddress bool) PickupData {
	y, m, d := date.Date()
	return PickupData{
		Date:           time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		AccountAddress: accountAddress,
	}
}

// MarshalJSON renders the date as YYYY-MM-DD.
func (p PickupData) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date           string `json:"date"`
		AccountAddress bool   `json:"accountAddress"`
	}{
		Date:           p.Date.Format(time.DateOnly),
		AccountAddress: p.AccountAddress,
	})
}

// ShipmentDetails holds references and physical totals of a shipment.
type ShipmentDetails struct {
	CustomerRef1   string  `json:"customerRef1"`
	CustomerRef2   string  `json:"customerRef2"`
	OrderedProduct string  `json:"orderedProduct" validate:"required"`
	TotalPieces    int     `json:"totalPieces" validate:"gt=0"`
	TotalWeight    float64 `json:"totalWeight" validate:"gt=0"`
}

// ShipmentRequest is the create-shipment payload. It is immutable once built;
// use NewShipmentRequest.
type ShipmentRequest struct {
	pickupAccount string
	dropoffType   string
	consignee     ConsigneeAddress
	pickup        PickupData
	sender        SenderAddress
	details       ShipmentDetails
}

type shipmentRequestParts struct {
	PickupAccount string           `validate:"required"`
	DropoffType   string           `validate:"required"`
	Consignee     ConsigneeAddress `validate:"required"`
	Pickup        PickupData       `validate:"required"`
	Sender        SenderAddress    `validate:"required"`
	Details       ShipmentDetails  `validate:"required"`
}

// NewShipmentRequest validates every part and returns an immutable request.
// Optional address lines are copied so later changes by the caller are not
// observed.
func NewShipmentRequest(
	pickupAccount, dropoffType string,
	consignee ConsigneeAddress,
	pickup PickupData,
	sender SenderAddress,
	details ShipmentDetails,
) (*ShipmentRequest, error) {
	parts := shipmentRequestParts{
		PickupAccount: pickupAccount,
		DropoffType:   dropoffType,
		Consignee:     consignee,
		Pickup:        pickup,
		Sender:        sender,
		Details:       details,
	}
	if err := validate(parts); err != nil {
		return nil, err
	}

	consignee.Address2 = cloneString(consignee.Address2)
	sender.Address2 = cloneString(sender.Address2)
	sender.Address3 = cloneString(sender.Address3)

	return &ShipmentRequest{
		pickupAccount: pickupAccount,
		dropoffType:   dropoffType,
		consignee:     consignee,
		pickup:        NewPickupData(pickup.Date, pickup.AccountAddress),
		sender:        sender,
		details:       details,
	}, nil
}

// PickupAccount returns the DHL pickup account number.
func (r *ShipmentRequest) PickupAccount() string { return r.pickupAccount }

// DropoffType returns how the parcel enters the network.
func (r *ShipmentRequest) DropoffType() string { return r.dropoffType }

// Consignee returns a copy of the delivery address.
func (r *ShipmentRequest) Consignee() ConsigneeAddress {
	c := r.consignee
	c.Address2 = cloneString(c.Address2)
	return c
}

// Pickup returns the pickup data.
func (r *ShipmentRequest) Pickup() PickupData { return r.pickup }

// Sender returns a copy of the collection address.
func (r *ShipmentRequest) Sender() SenderAddress {
	s := r.sender
	s.Address2 = cloneString(s.Address2)
	s.Address3 = cloneString(s.Address3)
	return s
}

// Details returns the shipment details.
func (r *ShipmentRequest) Details() ShipmentDetails { return r.details }

type shipmentEntry struct {
	ConsigneeAddress ConsigneeAddress `json:"consigneeAddress"`
	ShipmentDetails  ShipmentDetails  `json:"shipmentDetails"`
}

// MarshalJSON renders the carrier's nested shape with a single-element
// shipments list.
func (r *ShipmentRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PickupAccount string          `json:"pickupAccount"`
		DropoffType   string          `json:"dropoffType"`
		Pickup        PickupData      `json:"pickup"`
		SenderAddress SenderAddress   `json:"senderAddress"`
		Shipments     []shipmentEntry `json:"shipments"`
	}{
		PickupAccount: r.pickupAccount,
		DropoffType:   r.dropoffType,
		Pickup:        r.pickup,
		SenderAddress: r.sender,
		Shipments: []shipmentEntry{
			{ConsigneeAddress: r.consignee, ShipmentDetails: r.details},
		},
	})
}

// Label is a single label document returned by the carrier.
type Label struct {
	Format string `json:"format"`
	Label  string `json:"label"` // base64
}

// ShipmentResponse is the result of a create-shipment call.
type ShipmentResponse struct {
	ShipmentID string  `json:"shipmentId"`
	Labels     []Label `json:"labels"`
}

type shipmentResponseBody struct {
	Shipments []struct {
		ShipmentID string  `json:"shipmentId"`
		Labels     []Label `json:"labels"`
	} `json:"shipments"`
}

// parseShipmentResponse reads the first shipment of the carrier body. Missing
// fields default to empty values instead of failing.
func parseShipmentResponse(body []byte) (*ShipmentResponse, error) {
	var raw shipmentResponseBody
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode shipment response: %w", err)
	}

	resp := &ShipmentResponse{Labels: []Label{}}
	if len(raw.Shipments) > 0 {
		resp.ShipmentID = raw.Shipments[0].ShipmentID
		if raw.Shipments[0].Labels != nil {
			resp.Labels = raw.Shipments[0].Labels
		}
	}
	return resp, nil
}

type labelResponseBody struct {
	Labels json.RawMessage `json:"labels"`
}

type labelEntry struct {
	Label json.RawMessage `json:"label"`
}

// TrackingResponse carries the carrier tracking payload unchanged.
type TrackingResponse struct {
	TrackingNumber string          `json:"trackingNumber"`
	Payload        json.RawMessage `json:"payload"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
