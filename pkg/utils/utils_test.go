package utils

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateBookingReference_Format(t *testing.T) {
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	ref := GenerateBookingReference(now)

	assert.Regexp(t, regexp.MustCompile(`^PRK-20260309-[A-Z2-9]{6}$`), ref)
}

func TestGenerateBookingReference_Unique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]struct{}, 500)
	for i := 0; i < 500; i++ {
		seen[GenerateBookingReference(now)] = struct{}{}
	}
	// collisions are possible in theory, but not at this volume
	assert.Greater(t, len(seen), 495)
}

func TestParseInt(t *testing.T) {
	assert.Equal(t, 5, ParseInt("5", 1))
	assert.Equal(t, 1, ParseInt("", 1))
	assert.Equal(t, 10, ParseInt("abc", 10))
	assert.Equal(t, 10, ParseInt("-3", 10))
}

func TestParseTime(t *testing.T) {
	got, err := ParseTime("2026-01-02T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC), got)

	_, err = ParseTime("yesterday")
	assert.Error(t, err)
}

func TestValidateStruct(t *testing.T) {
	type payload struct {
		ID   string `json:"id" validate:"required,uuid4"`
		Mode string `json:"mode" validate:"required,oneof=hourly daily"`
	}

	errs := ValidateStruct(payload{ID: "nope", Mode: "yearly"})
	require.Len(t, errs, 2)
	assert.Equal(t, "Must be a valid UUID", errs["id"])
	assert.Equal(t, "Must be one of: hourly, daily", errs["mode"])

	assert.Nil(t, ValidateStruct(payload{ID: "3f1c2a6e-8c1b-4f4e-9b7a-2d6f0c1e5a11", Mode: "daily"}))
}

func TestPagination(t *testing.T) {
	assert.Equal(t, 0, CalculateOffset(0, 10))
	assert.Equal(t, 20, CalculateOffset(3, 10))

	assert.Equal(t, 0, CalculateTotalPages(0, 10))
	assert.Equal(t, 3, CalculateTotalPages(21, 10))
	assert.Equal(t, 0, CalculateTotalPages(5, 0))
}

func TestFormatValidationErrors_Sorted(t *testing.T) {
	got := FormatValidationErrors(map[string]string{"start_time": "required", "end_time": "Must be after StartTime"})
	assert.Equal(t, "end_time: Must be after StartTime; start_time: required", got)
}
