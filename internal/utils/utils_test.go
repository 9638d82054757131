// internal/utils/utils_test.go
package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashParts(t *testing.T) {
	a := HashParts([]byte("ab"), []byte("c"))
	b := HashParts([]byte("a"), []byte("bc"))

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, HashParts([]byte("ab"), []byte("c")))
	assert.NotEqual(t, HashBytes([]byte("abc")), a)
	assert.True(t, ValidateFileHash([]byte("abc"), HashBytes([]byte("abc"))))
}

func TestGenerateRandomString(t *testing.T) {
	s, err := GenerateRandomString(24)
	require.NoError(t, err)
	assert.Len(t, s, 24)
}

func TestJWTRoundTrip(t *testing.T) {
	SetJWTSecret("utils-test-secret")
	id := uuid.New()

	token, err := GenerateJWT(id, "dao-admin", []string{"system-admin"}, 1)
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, id.String(), claims.OperatorID)
	assert.Equal(t, "dao-admin", claims.Identity)
	assert.True(t, claims.HasCapability("system-admin"))
	assert.False(t, claims.HasCapability("pricing-admin"))

	SetJWTSecret("rotated")
	_, err = ValidateJWT(token)
	assert.Error(t, err)
}

func TestExpiredJWT(t *testing.T) {
	SetJWTSecret("utils-test-secret")
	token, err := GenerateJWT(uuid.New(), "dao-admin", nil, -1)
	require.NoError(t, err)

	_, err = ValidateJWT(token)
	assert.Error(t, err)
}

type sample struct {
	Identity string `validate:"required,identity"`
	Share    int64  `validate:"bps"`
	Password string `validate:"omitempty,strong_password"`
}

func TestValidator(t *testing.T) {
	assert.NoError(t, ValidateStruct(&sample{Identity: "coop:highland-07", Share: 10000, Password: "Str0ng#pass"}))

	err := ValidateStruct(&sample{Identity: "x", Share: 10001, Password: "weak"})
	require.Error(t, err)

	details := GetValidationErrors(err)
	tags := make(map[string]string, len(details))
	for _, d := range details {
		tags[d.Field] = d.Tag
	}
	assert.Equal(t, map[string]string{
		"identity": "identity",
		"share":    "bps",
		"password": "strong_password",
	}, tags)
}

func TestPaginationHelpers(t *testing.T) {
	result := CreatePaginationResult([]int{1, 2}, 45, PaginationParams{Page: 2, Limit: 20})
	assert.Equal(t, 3, result.TotalPages)
	assert.EqualValues(t, 45, result.Total)
}
