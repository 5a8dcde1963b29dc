package http

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	Price float64 `json:"price" validate:"gte=0"`
}

type order struct {
	Symbol string  `json:"symbol" default:"DFLT" validate:"required,max=4"`
	Side   string  `json:"side" validate:"omitempty,oneof=buy sell"`
	Points []point `json:"points" validate:"required,min=1,dive"`
}

func TestValidateStructUsesJSONPaths(t *testing.T) {
	req := &order{
		Symbol: "TOOLONG",
		Side:   "hold",
		Points: []point{{Price: 1}, {Price: -2}},
	}
	errs := ValidateStruct(context.Background(), req)
	require.Len(t, errs, 3)

	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	assert.Equal(t, "ERR_MAX", byField["symbol"].Code)
	assert.Equal(t, "symbol must be at most 4 characters", byField["symbol"].Message)
	assert.Equal(t, []string{"buy", "sell"}, byField["side"].Params["options"])
	assert.Equal(t, "ERR_GTE", byField["points[1].price"].Code)
}

func TestValidateStructAppliesDefaults(t *testing.T) {
	req := &order{Points: []point{{Price: 1}}}
	assert.Empty(t, ValidateStruct(context.Background(), req))
	assert.Equal(t, "DFLT", req.Symbol)

	req = &order{Symbol: "A"}
	errs := ValidateStruct(context.Background(), req)
	require.Len(t, errs, 1)
	assert.Equal(t, "points", errs[0].Field)
	assert.Equal(t, "points is required", errs[0].Message)
}
