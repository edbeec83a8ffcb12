package validation

import (
	"math"
	"strings"
	"testing"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInterval(t *testing.T) {
	v := NewValidatorWithLimits(10, 8)

	tests := []struct {
		name string
		iv   model.Interval
		want errors.ErrorCode
	}{
		{
			name: "valid point interval",
			iv:   model.Interval{Start: 10, End: 10, Value: model.Int32Value(1)},
			want: errors.ErrCodeOK,
		},
		{
			name: "valid string",
			iv:   model.Interval{Start: 11, End: 20, Value: model.StringValue("running")},
			want: errors.ErrCodeOK,
		},
		{
			name: "end before start",
			iv:   model.Interval{Start: 20, End: 11},
			want: errors.ErrCodeInvalidArgument,
		},
		{
			name: "before tree start",
			iv:   model.Interval{Start: 9, End: 11},
			want: errors.ErrCodeIntervalOutOfRange,
		},
		{
			name: "open ended",
			iv:   model.Interval{Start: 11, End: math.MaxInt64},
			want: errors.ErrCodeInvalidArgument,
		},
		{
			name: "string too long",
			iv:   model.Interval{Start: 11, End: 12, Value: model.StringValue("too long!")},
			want: errors.ErrCodeInvalidArgument,
		},
		{
			name: "invalid utf8",
			iv:   model.Interval{Start: 11, End: 12, Value: model.StringValue("\xff\xfe")},
			want: errors.ErrCodeInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateInterval(tt.iv)
			if tt.want == errors.ErrCodeOK {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.GetCode(err))
		})
	}
}

func TestValidateOrder(t *testing.T) {
	v := NewValidator(0)
	a := model.Interval{Start: 5, End: 9}

	assert.NoError(t, v.ValidateOrder(a, model.Interval{Start: 5, End: 6}))
	assert.NoError(t, v.ValidateOrder(a, model.Interval{Start: 7, End: 7}))
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(v.ValidateOrder(a, model.Interval{Start: 4, End: 20})))
}

func TestEstimateSize(t *testing.T) {
	assert.Equal(t, uint64(32), EstimateSize(model.Interval{Value: model.UInt32Value(7)}))
	assert.Equal(t, uint64(40), EstimateSize(model.Interval{Value: model.Int64Value(7)}))
	assert.Equal(t, uint64(32+50), EstimateSize(model.Interval{Value: model.StringValue(strings.Repeat("a", 50))}))
}
