package expresspay

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/expresspay/expresspay-go/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func referenceHash(parts ...string) string {
	m := md5.Sum([]byte(strings.ToUpper(strings.Join(parts, ""))))
	s := sha1.Sum([]byte(hex.EncodeToString(m[:])))
	return hex.EncodeToString(s[:])
}

func TestHash_MatchesScheme(t *testing.T) {
	got, err := Hash("ORD1", "10.00", "SAR", "Test order", "s3cret")
	require.NoError(t, err)

	assert.Equal(t, referenceHash("ORD1", "10.00", "SAR", "Test order", "s3cret"), got)
	assert.Len(t, got, 40)
}

func TestHash_IsDeterministic(t *testing.T) {
	a, err := Hash("ORD1", "10.00", "SAR", "desc", "key")
	require.NoError(t, err)
	b, err := Hash("ORD1", "10.00", "SAR", "desc", "key")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestHash_EachFieldChangesDigest(t *testing.T) {
	base := []string{"ORD1", "10.00", "SAR", "desc", "key"}
	baseHash, err := Hash(base[0], base[1], base[2], base[3], base[4])
	require.NoError(t, err)

	for i := range base {
		changed := append([]string(nil), base...)
		changed[i] += "x"

		got, err := Hash(changed[0], changed[1], changed[2], changed[3], changed[4])
		require.NoError(t, err)
		assert.NotEqual(t, baseHash, got, "changing field %d must change the hash", i)
	}
}

func TestHash_IsCaseInsensitive(t *testing.T) {
	lower, err := Hash("ord1", "10.00", "sar", "desc", "key")
	require.NoError(t, err)
	upper, err := Hash("ORD1", "10.00", "SAR", "DESC", "KEY")
	require.NoError(t, err)

	assert.Equal(t, lower, upper)
}

func TestHash_MissingSecret(t *testing.T) {
	_, err := Hash("ORD1", "10.00", "SAR", "desc", "")
	assert.ErrorIs(t, err, domain.ErrMissingSecret)
}

func TestSigner_Sign_UsesWireRepresentation(t *testing.T) {
	order := domain.Order{
		ID:          "ORD1",
		Amount:      decimal.RequireFromString("10"),
		Currency:    " sar ",
		Description: "Test",
	}

	signed, err := NewSigner().Sign(order, "secret")
	require.NoError(t, err)

	assert.Equal(t, "ORD1", signed.OrderID)
	assert.Equal(t, "10.00", signed.Amount)
	assert.Equal(t, "SAR", signed.Currency)
	assert.Equal(t, referenceHash("ORD1", "10.00", "SAR", "Test", "secret"), signed.Hash)
}

func TestSigner_Sign_MissingSecret(t *testing.T) {
	order := domain.Order{ID: "ORD1", Amount: decimal.NewFromInt(5), Currency: "SAR"}

	_, err := NewSigner().Sign(order, "")
	assert.ErrorIs(t, err, domain.ErrMissingSecret)
}
