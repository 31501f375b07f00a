package handshake

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_DecodesDecimalStringHours(t *testing.T) {
	payload := `{"id": 3, "status": "accepted", "offer": 9, "provider_username": "alice",
		"seeker_username": "bob", "hours": "2.00", "provider_confirmed": true}`

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(payload), &rec))
	assert.Equal(t, 2.0, rec.Hours)
	assert.Equal(t, ID("3"), rec.ID)
	assert.Equal(t, StatusAccepted, rec.Status)
	assert.True(t, rec.ProviderConfirmed)
	require.NoError(t, Validate(rec))
}

func TestPartial_DecodesDecimalStringHours(t *testing.T) {
	var p Partial
	require.NoError(t, json.Unmarshal([]byte(`{"seeker_confirmed": true, "hours": " 1.5 "}`), &p))
	require.NotNil(t, p.Hours)
	assert.Equal(t, 1.5, *p.Hours)
	require.NotNil(t, p.SeekerConfirmed)

	var bare Partial
	require.NoError(t, json.Unmarshal([]byte(`{"status": "completed"}`), &bare))
	assert.Nil(t, bare.Hours)
}

func TestDecimal_Unmarshal(t *testing.T) {
	cases := []struct {
		in      string
		want    Decimal
		wantErr bool
	}{
		{in: `3`, want: 3},
		{in: `"4.25"`, want: 4.25},
		{in: `null`, want: 0},
		{in: `"two"`, wantErr: true},
		{in: `true`, wantErr: true},
	}
	for _, tc := range cases {
		var d Decimal
		err := json.Unmarshal([]byte(tc.in), &d)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, d, tc.in)
	}
}
