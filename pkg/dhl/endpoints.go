package dhl

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// SandboxBaseURL is the DHL Parcel UK UAT environment.
	SandboxBaseURL = "https://api-uat.dhl.com"
	// ProductionBaseURL is the DHL Parcel UK live environment.
	ProductionBaseURL = "https://api.dhl.com"
)

const (
	authTokenPath      = "/parceluk/auth/v1/accesstoken"
	createShipmentPath = "/parceluk/shipping/v1/label"
	getLabelPath       = "/parceluk/reprintlabels/v1/labels?shipmentId=%s&format=%s"
	cancelShipmentPath = "/parceluk/shipping/v1/shipments/%s"
	trackShipmentPath  = "/parceluk/tracking/v1/shipments?trackingNumber=%s"
)

// BaseURL returns the API host for the given environment.
func BaseURL(sandbox bool) string {
	if sandbox {
		return SandboxBaseURL
	}
	return ProductionBaseURL
}

// AuthTokenEndpoint returns the OAuth client-credentials endpoint path.
func AuthTokenEndpoint() string {
	return authTokenPath
}

// CreateShipmentEndpoint returns the create-shipment path with the label format
// in its query string. The format is upper-cased.
func CreateShipmentEndpoint(format string) string {
	return createShipmentPath + "?format=" + strings.ToUpper(format)
}

// GetLabelEndpoint returns the label reprint path for a shipment.
func GetLabelEndpoint(shipmentID, format string) string {
	return fmt.Sprintf(getLabelPath, url.QueryEscape(shipmentID), url.QueryEscape(format))
}

// CancelShipmentEndpoint returns the path used to cancel a shipment.
func CancelShipmentEndpoint(shipmentID string) string {
	return fmt.Sprintf(cancelShipmentPath, url.PathEscape(shipmentID))
}

// TrackShipmentEndpoint returns the tracking lookup path.
func TrackShipmentEndpoint(trackingNumber string) string {
	return fmt.Sprintf(trackShipmentPath, url.QueryEscape(trackingNumber))
}
