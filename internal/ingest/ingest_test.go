package ingest

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerlens/internal/core"
)

func TestDecodeWrappedResponse(t *testing.T) {
	body := `{"expenses":[
		{"_id":"a1","title":"Groceries","amount":100,"date":"2024-01-05T00:00:00.000Z","category":"Food"},
		{"_id":"a2","title":"Bus","amount":"30.5","date":"2024-02-01","category":""},
		{"_id":"a3","title":"Broken","amount":12,"date":"not a date","category":"X"},
		{"_id":"a4","title":"No amount","date":"2024-02-01","category":"X"}
	]}`
	res, err := Decode([]byte(body))
	require.NoError(t, err)

	require.Len(t, res.Expenses, 2)
	assert.Equal(t, "a1", res.Expenses[0].ID)
	assert.Equal(t, int64(10000), res.Expenses[0].Amount.Cents)
	assert.Equal(t, core.NewDate(2024, 1, 5), res.Expenses[0].Date)
	assert.Equal(t, int64(3050), res.Expenses[1].Amount.Cents)
	assert.Equal(t, core.Uncategorized, res.Expenses[1].CategoryName())

	require.Len(t, res.Issues, 2)
	assert.Equal(t, 2, res.Issues[0].Index)
	assert.Equal(t, "date", res.Issues[0].Field)
	assert.ErrorIs(t, res.Issues[0], ErrInvalidDate)
	assert.Equal(t, "a4", res.Issues[1].ID)
	assert.ErrorIs(t, res.Issues[1], ErrMissingAmount)

	joined := res.Err()
	require.Error(t, joined)
	assert.True(t, errors.Is(joined, ErrMissingAmount))
}

func TestDecodeBareArray(t *testing.T) {
	res, err := Decode([]byte(`[{"id":"x","amount":1,"date":"2023-12-31"}]`))
	require.NoError(t, err)
	require.Len(t, res.Expenses, 1)
	assert.Equal(t, "x", res.Expenses[0].ID)
	assert.NoError(t, res.Err())
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"expenses":`))
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		err  error
	}{
		{`100`, 10000, nil},
		{`0`, 0, nil},
		{`12.345`, 1235, nil},
		{`"7.5"`, 750, nil},
		{``, 0, ErrMissingAmount},
		{`null`, 0, ErrMissingAmount},
		{`""`, 0, ErrMissingAmount},
		{`"abc"`, 0, ErrInvalidAmount},
		{`true`, 0, ErrInvalidAmount},
		{`-1`, 0, ErrNegativeAmount},
	}
	for _, tc := range cases {
		got, err := ParseAmount(json.RawMessage(tc.in))
		if tc.err != nil {
			assert.ErrorIs(t, err, tc.err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got.Cents, "input %q", tc.in)
	}
}

func TestParseAmountString(t *testing.T) {
	m, err := ParseAmountString(" 12,50 ")
	require.NoError(t, err)
	assert.Equal(t, int64(1250), m.Cents)

	_, err = ParseAmountString("")
	assert.ErrorIs(t, err, ErrMissingAmount)
	_, err = ParseAmountString("1O")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in      string
		y, m, d int
	}{
		{"2024-01-05", 2024, 1, 5},
		{"2024-01-05T23:59:59", 2024, 1, 5},
		{"2024-01-05T10:00:00Z", 2024, 1, 5},
		{"2024-01-05T10:00:00.123Z", 2024, 1, 5},
		{"2024-01-01T01:00:00+05:30", 2024, 1, 1},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, core.NewDate(tc.y, tc.m, tc.d), got, tc.in)
	}

	for _, bad := range []string{"", "05/01/2024", "2024-13-01", "yesterday"} {
		_, err := ParseDate(bad)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestIssueJSONIncludesMessage(t *testing.T) {
	b, err := json.Marshal(Issue{Index: 3, ID: "q", Field: "amount", Err: ErrMissingAmount})
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":3,"id":"q","field":"amount","message":"missing amount"}`, string(b))
}

func TestIssueJSONWithoutError(t *testing.T) {
	b, err := json.Marshal(Issue{Index: 1, Field: "date"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":1,"field":"date","message":""}`, string(b))
}
