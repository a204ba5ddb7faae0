package ads

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() ConversionRecord {
	return ConversionRecord{
		ConversionAction:   "accounts/1234567890/conversionActions/555",
		ConversionDateTime: "2025-03-01 11:00:00+00:00",
		ClickID:            "abc123",
	}
}

func TestConversionRecordValidate(t *testing.T) {
	rec := validRecord()
	assert.NoError(t, rec.Validate())
}

func TestConversionRecordValidateIdentityExclusivity(t *testing.T) {
	rec := validRecord()
	rec.ClickID = ""
	err := rec.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no user identity")

	rec = validRecord()
	rec.AppInstallID = "also-set"
	err = rec.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one")

	rec = validRecord()
	rec.UserIdentifiers = []UserIdentifier{{HashedEmail: "deadbeef"}}
	assert.Error(t, rec.Validate())
}

func TestConversionRecordValidateResourceName(t *testing.T) {
	rec := validRecord()
	rec.ConversionAction = "accounts/abc/conversionActions/555"
	assert.Error(t, rec.Validate())

	rec.ConversionAction = "conversionActions/555"
	assert.Error(t, rec.Validate())

	rec.ConversionAction = "accounts/111/conversionActions/my-action_2"
	rec2 := validRecord()
	rec2.ConversionAction = rec.ConversionAction
	assert.NoError(t, rec2.Validate())
}

func TestConversionRecordJSONOmitsEmptyOptionals(t *testing.T) {
	rec := validRecord()
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))

	assert.NotContains(t, m, "conversionValue")
	assert.NotContains(t, m, "currencyCode")
	assert.NotContains(t, m, "orderId")
	assert.NotContains(t, m, "consent")
	assert.NotContains(t, m, "userIdentifiers")
	assert.Contains(t, m, "clickId")
}

func TestFailedPositions(t *testing.T) {
	one, two := 1, 2
	pfe := &PartialFailureError{
		Details: []PartialFailureDetail{
			{Errors: []EntryError{{
				Message:  "bad timestamp",
				Location: &ErrorLocation{FieldPathElements: []FieldPathElement{{FieldName: "conversions", Index: &one}}},
			}}},
			{Errors: []EntryError{{
				Message:  "bad identity",
				Location: &ErrorLocation{FieldPathElements: []FieldPathElement{{FieldName: "conversions", Index: &two}}},
			}}},
		},
	}

	failed := pfe.FailedPositions()
	assert.Len(t, failed, 2)
	assert.Equal(t, "bad timestamp", failed[1])
	assert.Equal(t, "bad identity", failed[2])
}

func TestFailedPositionsNilSafe(t *testing.T) {
	var pfe *PartialFailureError
	assert.Empty(t, pfe.FailedPositions())
}

func TestFailedPositionsZeroIndex(t *testing.T) {
	zero := 0
	pfe := &PartialFailureError{
		Details: []PartialFailureDetail{
			{Errors: []EntryError{{
				Message:  "first entry rejected",
				Location: &ErrorLocation{FieldPathElements: []FieldPathElement{{FieldName: "conversions", Index: &zero}}},
			}}},
		},
	}

	failed := pfe.FailedPositions()
	require.Len(t, failed, 1)
	assert.Equal(t, "first entry rejected", failed[0])
}

func TestFailedPositionsIgnoresUnindexedErrors(t *testing.T) {
	pfe := &PartialFailureError{
		Details: []PartialFailureDetail{
			{Errors: []EntryError{{Message: "request-level problem"}}},
		},
	}
	assert.Empty(t, pfe.FailedPositions())
}
