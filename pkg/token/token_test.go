package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateAndParseJWT(t *testing.T) {
	tokenStr, err := GenerateJWT("member-1", "김민지", string(RoleOwner), "support_service")
	assert.NoError(t, err)
	assert.NotEmpty(t, tokenStr)

	claims, err := ParseJWT(tokenStr)
	assert.NoError(t, err)
	assert.Equal(t, "member-1", claims.ViewerID)
	assert.Equal(t, "김민지", claims.Name)
	assert.Equal(t, string(RoleOwner), claims.Role)
	assert.Equal(t, "support_service", claims.Issuer)

	_, err = ParseJWT(tokenStr + "x")
	assert.Error(t, err)
}

func TestCheckJWTNotExpire(t *testing.T) {
	tokenStr, err := GenerateJWT("op-1", "이상담", string(RoleOperator), "support_service")
	assert.NoError(t, err)

	alive, err := CheckJWTNotExpire("Bearer " + tokenStr)
	assert.NoError(t, err)
	assert.True(t, alive)

	_, err = CheckJWTNotExpire(tokenStr)
	assert.Error(t, err)
}
