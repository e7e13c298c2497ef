package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_DecodeMixedScalars(t *testing.T) {
	data := []byte(`{
		"id": 42,
		"type": "EXPEDITION",
		"status": "in-transit",
		"name": "TRK-100",
		"quantity": "12",
		"site": "Casablanca",
		"destination": "Rabat",
		"batch": {"batchNumber": 7781},
		"createdAt": "2025-03-01T10:00:00Z",
		"userId": "u-1"
	}`)

	var op Operation
	require.NoError(t, json.Unmarshal(data, &op))

	assert.Equal(t, "42", op.ID.String())
	assert.True(t, op.ID.Numeric())
	assert.Equal(t, "12", op.Quantity.String())
	assert.False(t, op.Quantity.Numeric())
	assert.Equal(t, "7781", op.BatchNumber())
	assert.True(t, op.OwnedBy("u-1"))
	assert.False(t, op.OwnedBy("u-2"))
	assert.True(t, op.ReceivableAs("TRK-100"))
	assert.False(t, op.ReceivableAs("trk-100"))
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), op.When())
}

func TestOperation_DecodeDegradesGracefully(t *testing.T) {
	data := []byte(`{"id": null, "type": "RETURN", "quantity": {"v": 1}, "date": "not a date", "userId": [1]}`)

	var op Operation
	require.NoError(t, json.Unmarshal(data, &op))

	assert.False(t, op.ID.Valid())
	assert.False(t, op.Type.Known())
	assert.False(t, op.Quantity.Valid())
	assert.True(t, op.When().IsZero())
	assert.Equal(t, "", op.BatchNumber())
	assert.Equal(t, "3", op.Key(3))
	assert.False(t, op.OwnedBy(""))
}

func TestOperation_DecodeWrongTypedTextFields(t *testing.T) {
	data := []byte(`[
		{"id": 1, "type": 3, "status": {"code": 1}, "name": 100, "site": true, "destination": ["x"], "batch": "B-1"},
		{"id": 2, "type": "EXPEDITION", "status": "in-transit", "name": "TRK-200", "batch": {"batchNumber": "B-2"}},
		42
	]`)

	var ops []Operation
	require.NoError(t, json.Unmarshal(data, &ops))
	require.Len(t, ops, 3)

	bad := ops[0]
	assert.Equal(t, "1", bad.ID.String())
	assert.False(t, bad.Type.Known())
	assert.Empty(t, bad.Status)
	assert.Equal(t, "100", bad.Name)
	assert.Equal(t, "true", bad.Site)
	assert.Empty(t, bad.Destination)
	assert.Nil(t, bad.Batch)

	good := ops[1]
	assert.True(t, good.ReceivableAs("TRK-200"))
	assert.Equal(t, "B-2", good.BatchNumber())

	assert.Equal(t, Operation{}, ops[2])
}

func TestOperation_WhenPrefersDate(t *testing.T) {
	data := []byte(`{"date": "2025-01-02", "createdAt": 1735689600000}`)

	var op Operation
	require.NoError(t, json.Unmarshal(data, &op))
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), op.When())

	op.Date = Timestamp{}
	assert.Equal(t, time.UnixMilli(1735689600000).UTC(), op.When())
}

func TestFlex_MarshalKeepsType(t *testing.T) {
	body, err := json.Marshal(map[string]Flex{
		"num": FlexInt(5),
		"str": FlexString("5"),
		"nil": {},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"num":5,"str":"5","nil":null}`, string(body))
}

func TestPrincipal_DisplayFallback(t *testing.T) {
	assert.Equal(t, "User", Principal{}.DisplayName())
	assert.Equal(t, "U", Principal{}.Initial())
	assert.Equal(t, "É", Principal{Name: "élodie"}.Initial())
	assert.True(t, Principal{}.IsZero())
}
