package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount_MarshalsAsNumber(t *testing.T) {
	data, err := json.Marshal(struct {
		Total Amount `json:"total"`
	}{Total: New(decimal.RequireFromString("121.1882"))})

	require.NoError(t, err)
	assert.JSONEq(t, `{"total":121.1882}`, string(data))
}

func TestAmount_UnmarshalNumberAndString(t *testing.T) {
	var got struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
		C Amount `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":89.99,"b":"50.00","c":null}`), &got))

	assert.True(t, decimal.RequireFromString("89.99").Equal(got.A.Decimal))
	assert.True(t, decimal.NewFromInt(50).Equal(got.B.Decimal))
	assert.True(t, got.C.IsZero())
}

func TestAmount_UnmarshalRejectsGarbage(t *testing.T) {
	var a Amount
	assert.Error(t, json.Unmarshal([]byte(`"cheap"`), &a))
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "121.19", Display(decimal.RequireFromString("121.1882")))
	assert.Equal(t, "0.00", Display(decimal.Zero))
	assert.Equal(t, "18.00", Display(decimal.NewFromInt(18)))
	assert.Equal(t, "0.13", Display(decimal.RequireFromString("0.125")))
}
