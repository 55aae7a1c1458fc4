// Package render formats command results for the terminal.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tournevent/dhlparcel/pkg/dhl"
)

var (
	accent  = lipgloss.Color("#FFCC00") // DHL yellow
	fg      = lipgloss.Color("#E8E6E3")
	dim     = lipgloss.Color("#6B7280")
	success = lipgloss.Color("#22C55E")
	danger  = lipgloss.Color("#D40511") // DHL red
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle = lipgloss.NewStyle().Foreground(dim).Width(14)
	valueStyle = lipgloss.NewStyle().Foreground(fg)
	okStyle    = lipgloss.NewStyle().Foreground(success).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(danger).Bold(true)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 2)
)

func row(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(label))
	b.WriteString(valueStyle.Render(value))
	b.WriteString("\n")
}

// Shipment renders a created shipment.
func Shipment(resp *dhl.ShipmentResponse) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Shipment created") + "\n\n")
	row(&b, "Shipment ID", resp.ShipmentID)
	row(&b, "Labels", fmt.Sprintf("%d", len(resp.Labels)))
	for i, l := range resp.Labels {
		row(&b, fmt.Sprintf("  #%d", i+1), fmt.Sprintf("%s (%d base64 chars)", l.Format, len(l.Label)))
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// LabelSaved renders the location of a written label.
func LabelSaved(shipmentID, path, contentType string, size int64) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Label saved") + "\n\n")
	row(&b, "Shipment ID", shipmentID)
	row(&b, "File", path)
	row(&b, "Type", contentType)
	row(&b, "Size", fmt.Sprintf("%d bytes", size))
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// Cancelled renders a cancellation confirmation.
func Cancelled(shipmentID string) string {
	return okStyle.Render("✓") + " " + valueStyle.Render("Shipment "+shipmentID+" cancelled")
}

// Tracking renders the carrier tracking payload as indented JSON.
func Tracking(resp *dhl.TrackingResponse) string {
	var pretty bytes.Buffer
	payload := string(resp.Payload)
	if err := json.Indent(&pretty, resp.Payload, "", "  "); err == nil {
		payload = pretty.String()
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Tracking "+resp.TrackingNumber) + "\n\n")
	b.WriteString(valueStyle.Render(payload))
	return boxStyle.Render(b.String())
}

// Token renders an access token with its middle masked.
func Token(token string, refreshed, sandbox bool) string {
	env := "production"
	if sandbox {
		env = "sandbox"
	}
	state := "cached or fetched"
	if refreshed {
		state = "refreshed"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Access token") + "\n\n")
	row(&b, "Environment", env)
	row(&b, "State", state)
	row(&b, "Token", MaskToken(token))
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// MaskToken keeps the first and last four characters of a token.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}

// Error renders err with the carrier status when there is one.
func Error(err error) string {
	msg := err.Error()
	var apiErr *dhl.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		msg = fmt.Sprintf("%s [carrier status %d]", msg, apiErr.StatusCode)
	}
	return errStyle.Render("✗ ") + valueStyle.Render(msg)
}
