package dhl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleErrorResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"error list", `{"errors":[{"title":"Invalid address","detail":"city required"}]}`, "Invalid address: city required"},
		{"entries missing detail are skipped", `{"errors":[{"title":"A"},{"title":"B","detail":"two"}]}`, "B: two"},
		{"non-string values", `{"errors":[{"title":"E","detail":42}]}`, "E: 42"},
		{"empty error list falls back to body", `{"errors":[]}`, `{"errors":[]}`},
		{"message", `{"message":"Quota exceeded"}`, "Quota exceeded"},
		{"null message falls back to body", `{"message":null,"code":7}`, `{"message":null,"code":7}`},
		{"errors win over message", `{"errors":[{"title":"T","detail":"D"}],"message":"ignored"}`, "T: D"},
		{"raw body is compacted", "{\n  \"code\": \"X\"\n}", `{"code":"X"}`},
		{"top-level array is unparseable", `[1,2]`, "Could not parse error response"},
		{"null is unparseable", `null`, "Could not parse error response"},
		{"empty body", ``, "Could not parse error response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handleErrorResponse("Failed to create shipment", 400, []byte(tt.body))

			assert.Equal(t, 400, err.StatusCode)
			assert.Equal(t, "Failed to create shipment (Status: 400) - "+tt.want, err.Message)
		})
	}
}

func TestCompactJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, compactJSON([]byte("{ \"a\" : 1 }\n")))
	assert.Equal(t, "plain text", compactJSON([]byte("  plain text \n")))
}

func TestSanitizeFilename(t *testing.T) {
	for in, want := range map[string]string{
		"label.pdf":           "label.pdf",
		"../../etc/passwd":    "passwd",
		"/var/tmp/label.png":  "label.png",
		`C:\labels\label.zpl`: "label.zpl",
	} {
		got, err := sanitizeFilename(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", ".", "..", "/", "//", `\`, "dir/.."} {
		_, err := sanitizeFilename(bad)
		assert.ErrorIs(t, err, ErrDownloadLabel, bad)
	}
}
