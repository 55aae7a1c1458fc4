// Package shipmentinput reads flat shipment documents (YAML or JSON) and turns
// them into validated DHL shipment requests.
package shipmentinput

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/tournevent/dhlparcel/pkg/dhl"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument is returned for documents that cannot be read or parsed.
var ErrInvalidDocument = errors.New("invalid shipment document")

// Address is a flat address used for both the sender and the consignee.
type Address struct {
	CompanyName   string `yaml:"companyName,omitempty" json:"companyName,omitempty"`
	RecipientType string `yaml:"recipientType,omitempty" json:"recipientType,omitempty"`
	AddressType   string `yaml:"addressType,omitempty" json:"addressType,omitempty"`
	Name          string `yaml:"name" json:"name"`
	Address1      string `yaml:"address1" json:"address1"`
	Address2      string `yaml:"address2,omitempty" json:"address2,omitempty"`
	Address3      string `yaml:"address3,omitempty" json:"address3,omitempty"`
	City          string `yaml:"city" json:"city"`
	PostalCode    string `yaml:"postalCode" json:"postalCode"`
	Country       string `yaml:"country" json:"country"`
	Phone         string `yaml:"phone,omitempty" json:"phone,omitempty"`
	Email         string `yaml:"email,omitempty" json:"email,omitempty"`
}

// Pickup holds the collection date as YYYY-MM-DD. AccountAddress defaults to
// true when omitted.
type Pickup struct {
	Date           string `yaml:"date" json:"date"`
	AccountAddress *bool  `yaml:"accountAddress,omitempty" json:"accountAddress,omitempty"`
}

// Details mirrors dhl.ShipmentDetails.
type Details struct {
	CustomerRef1   string  `yaml:"customerRef1,omitempty" json:"customerRef1,omitempty"`
	CustomerRef2   string  `yaml:"customerRef2,omitempty" json:"customerRef2,omitempty"`
	OrderedProduct string  `yaml:"orderedProduct" json:"orderedProduct"`
	TotalPieces    int     `yaml:"totalPieces" json:"totalPieces"`
	TotalWeight    float64 `yaml:"totalWeight" json:"totalWeight"`
}

// Document is a single shipment as written by a person or posted to the
// bridge.
type Document struct {
	PickupAccount string  `yaml:"pickupAccount,omitempty" json:"pickupAccount,omitempty"`
	DropoffType   string  `yaml:"dropoffType" json:"dropoffType"`
	Pickup        Pickup  `yaml:"pickup" json:"pickup"`
	Sender        Address `yaml:"sender" json:"sender"`
	Consignee     Address `yaml:"consignee" json:"consignee"`
	Details       Details `yaml:"details" json:"details"`
}

// LoadFile reads a document from path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a JSON object or a YAML document. Unknown fields are rejected.
func Parse(data []byte) (*Document, error) {
	var doc Document
	var err error
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&doc)
	}

	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return &doc, nil
}

// ToRequest builds the carrier request. defaultPickupAccount is used when the
// document does not name one.
func (d *Document) ToRequest(defaultPickupAccount string) (*dhl.ShipmentRequest, error) {
	account := d.PickupAccount
	if account == "" {
		account = defaultPickupAccount
	}

	var date time.Time
	if d.Pickup.Date != "" {
		parsed, err := time.Parse(time.DateOnly, d.Pickup.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: pickup date %q is not YYYY-MM-DD", ErrInvalidDocument, d.Pickup.Date)
		}
		date = parsed
	}

	accountAddress := true
	if d.Pickup.AccountAddress != nil {
		accountAddress = *d.Pickup.AccountAddress
	}

	consignee := dhl.ConsigneeAddress{
		RecipientType: d.Consignee.RecipientType,
		AddressType:   d.Consignee.AddressType,
		Address1:      d.Consignee.Address1,
		Address2:      optional(d.Consignee.Address2),
		City:          d.Consignee.City,
		PostalCode:    d.Consignee.PostalCode,
		Country:       d.Consignee.Country,
		Name:          d.Consignee.Name,
		Phone:         d.Consignee.Phone,
		Email:         d.Consignee.Email,
	}

	sender := dhl.SenderAddress{
		CompanyName: d.Sender.CompanyName,
		Address1:    d.Sender.Address1,
		Address2:    optional(d.Sender.Address2),
		Address3:    optional(d.Sender.Address3),
		City:        d.Sender.City,
		PostalCode:  d.Sender.PostalCode,
		Country:     d.Sender.Country,
		Name:        d.Sender.Name,
		Phone:       d.Sender.Phone,
		Email:       d.Sender.Email,
	}

	details := dhl.ShipmentDetails(d.Details)

	var pickup dhl.PickupData
	if !date.IsZero() {
		pickup = dhl.NewPickupData(date, accountAddress)
	} else {
		pickup = dhl.PickupData{AccountAddress: accountAddress}
	}

	return dhl.NewShipmentRequest(account, d.DropoffType, consignee, pickup, sender, details)
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return dhl.String(s)
}
