package validation

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/storage/codec"
)

const (
	// MaxStringSize bounds string payloads independently of the node geometry
	MaxStringSize = 64 * 1024
)

// Validator checks intervals before they are queued for insertion
type Validator struct {
	maxStringSize int
	treeStart     model.Timestamp
}

// NewValidator creates a new validator with default limits
func NewValidator(treeStart model.Timestamp) *Validator {
	return &Validator{
		maxStringSize: MaxStringSize,
		treeStart:     treeStart,
	}
}

// NewValidatorWithLimits creates a validator with a custom string payload limit
func NewValidatorWithLimits(treeStart model.Timestamp, maxStringSize int) *Validator {
	return &Validator{
		maxStringSize: maxStringSize,
		treeStart:     treeStart,
	}
}

// ValidateInterval validates a single interval
func (v *Validator) ValidateInterval(iv model.Interval) error {
	if iv.End < iv.Start {
		return errors.InvalidArgument(fmt.Sprintf("interval end %d precedes start %d", iv.End, iv.Start), nil).
			WithDetail("start", iv.Start).
			WithDetail("end", iv.End)
	}
	if iv.Start < v.treeStart {
		return errors.IntervalOutOfRange(iv.Start, v.treeStart)
	}
	if iv.End == math.MaxInt64 {
		return errors.InvalidArgument("interval end must be below the maximum timestamp", nil)
	}

	return v.ValidateValue(iv.Value)
}

// ValidateValue validates a typed payload
func (v *Validator) ValidateValue(value model.Value) error {
	if !value.Type().Known() {
		return errors.UnknownIntervalType(uint8(value.Type()))
	}

	s, ok := value.Str()
	if !ok {
		return nil
	}
	if len(s) > v.maxStringSize {
		return errors.InvalidArgument(
			fmt.Sprintf("string payload of %d bytes exceeds maximum of %d", len(s), v.maxStringSize), nil).
			WithDetail("size", len(s))
	}
	if !utf8.ValidString(s) {
		return errors.InvalidArgument("string payload is not valid UTF-8", nil)
	}
	return nil
}

// ValidateOrder checks that next does not start before prev
func (v *Validator) ValidateOrder(prev, next model.Interval) error {
	if next.Start < prev.Start {
		return errors.InvalidArgument(
			fmt.Sprintf("interval start %d precedes previous start %d", next.Start, prev.Start), nil).
			WithDetail("previous_start", prev.Start).
			WithDetail("start", next.Start)
	}
	return nil
}

// EstimateSize returns the bytes the interval occupies inside a node
func EstimateSize(iv model.Interval) uint64 {
	return uint64(codec.Size(iv))
}
