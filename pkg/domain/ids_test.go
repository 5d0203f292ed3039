package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "creditengine/pkg/domain-errors"
)

// IDs arrive from URL paths and token claims, so parsing is a trust boundary.
func TestParseID_Invariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty string", "", true},
		{"whitespace only", "   ", true},
		{"nil uuid", uuid.Nil.String(), true},
		{"not a uuid", "APP-1234", true},
		{"sql injection attempt", "'; DROP TABLE applications;--", true},
		{"null byte", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"oversized input", strings.Repeat("a", 1000), true},
		{"uppercase valid uuid", "550E8400-E29B-41D4-A716-446655440000", false},
		{"valid uuid", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseApplicationID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	valid := uuid.New().String()

	_, errUser := ParseUserID(valid)
	_, errApp := ParseApplicationID(valid)
	_, errDecision := ParseDecisionID(valid)
	_, errDoc := ParseDocumentID(valid)
	require.NoError(t, errUser)
	require.NoError(t, errApp)
	require.NoError(t, errDecision)
	require.NoError(t, errDoc)

	for _, input := range []string{"", "invalid", uuid.Nil.String()} {
		_, errUser := ParseUserID(input)
		_, errApp := ParseApplicationID(input)
		_, errDecision := ParseDecisionID(input)
		_, errDoc := ParseDocumentID(input)
		assert.Error(t, errUser, input)
		assert.Error(t, errApp, input)
		assert.Error(t, errDecision, input)
		assert.Error(t, errDoc, input)
	}
}

func TestRoundTrip(t *testing.T) {
	appID := NewApplicationID()
	parsed, err := ParseApplicationID(appID.String())
	require.NoError(t, err)
	assert.Equal(t, appID, parsed)
	assert.False(t, parsed.IsNil())
	assert.True(t, ApplicationID{}.IsNil())
}

func FuzzParseApplicationID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("'; DROP TABLE applications;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseApplicationID(input)
		if err != nil {
			return
		}
		if id.IsNil() {
			t.Fatal("parsed a nil application id without error")
		}
		again, err := ParseApplicationID(id.String())
		if err != nil || again != id {
			t.Fatalf("round trip failed for %q", input)
		}
	})
}
