package common

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	cases := map[string]string{
		"5":        "$5.00",
		"9.00065":  "$9.00065",
		"0.000325": "$0.000325",
		"1.5":      "$1.50",
		"-0.33":    "-$0.33",
		"2.000":    "$2.00",
	}
	for in, want := range cases {
		require.Equal(t, want, FormatMoney(decimal.RequireFromString(in)), in)
	}
	require.Equal(t, "+$1.00", FormatSignedMoney(decimal.NewFromInt(1)))
	require.Equal(t, "-$0.25", FormatSignedMoney(decimal.RequireFromString("-0.25")))
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount(" $1,5 ")
	require.NoError(t, err)
	require.True(t, d.Equal(decimal.RequireFromString("1.5")))

	_, err = ParseAmount("0")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParseAmount("abc")
	require.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "0h", FormatDuration(10*time.Minute))
	require.Equal(t, "2h", FormatDuration(90*time.Minute))
}

func TestPluralizeAndNumber(t *testing.T) {
	require.Equal(t, "1 win", Pluralize(1, "win"))
	require.Equal(t, "3 wins", Pluralize(3, "win"))
	require.Equal(t, "0 matches", PluralizeForm(0, "match", "matches"))
	require.Equal(t, "999,999", FormatNumber(999999))
	require.Equal(t, "-1,000", FormatNumber(-1000))
	require.Equal(t, "12", FormatNumber(12))
	require.Equal(t, "-9,223,372,036,854,775,808", FormatNumber(math.MinInt64))
	require.Equal(t, "9,223,372,036,854,775,807", FormatNumber(math.MaxInt64))
}

func TestErrorsMatchByKind(t *testing.T) {
	wrapped := fmt.Errorf("sign in: %w", &AuthError{Kind: KindInvalidCredentials, Message: "other text"})
	require.ErrorIs(t, wrapped, ErrInvalidCredentials)
	require.NotErrorIs(t, wrapped, ErrEmailTaken)
	require.NotErrorIs(t, ErrAccountLocked, ErrInsufficientBalance)
	require.Equal(t, "Account locked due to debt over $10", ErrAccountLocked.Error())

	base := errors.New("disk full")
	err := WrapStorage("save ledger", base)
	var se *StorageError
	require.ErrorAs(t, err, &se)
	require.ErrorIs(t, err, base)
	require.NoError(t, WrapStorage("noop", nil))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	require.Contains(t, hash, "$argon2id$v=19$")
	require.True(t, VerifyPassword("hunter22", hash))
	require.False(t, VerifyPassword("hunter23", hash))
	require.False(t, VerifyPassword("hunter22", "plaintext"))

	other, err := HashPassword("hunter22")
	require.NoError(t, err)
	require.NotEqual(t, hash, other)
}

func TestIDs(t *testing.T) {
	now := time.UnixMilli(1718000000000)
	id := StampedID("dep", now)
	require.Regexp(t, `^dep_1718000000000_[0-9a-z]{9}$`, id)
	require.Regexp(t, `^[A-Z0-9]{6}$`, RoomCode())
}
