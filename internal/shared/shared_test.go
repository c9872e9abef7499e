package shared

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPrincipalRoundTrip(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	id := uuid.New()
	ctx := ContextWithPrincipal(context.Background(), Principal{UserID: id})
	p, ok := PrincipalFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, id, p.UserID)

	_, ok = PrincipalFromContext(ContextWithPrincipal(context.Background(), Principal{}))
	assert.False(t, ok, "nil user id is not a principal")
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "anna@example.org", NormalizeEmail("  Anna@Example.ORG "))
	assert.Equal(t, NormalizeEmail("ＡＮＮＡ@example.org"), NormalizeEmail("anna@example.org"))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "Anna Maria", NormalizeName("  Anna   Maria "))
	assert.Equal(t, "\u00e9", NormalizeName("e\u0301"))
}

func TestPageFromRequest(t *testing.T) {
	p := PageFromRequest(httptest.NewRequest("GET", "/?page=3&per_page=500", nil))
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 100, p.PerPage)
	assert.Equal(t, 200, p.Offset())

	p = PageFromRequest(httptest.NewRequest("GET", "/?page=-1", nil))
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)

	meta := NewPagination(2, 10, 35)
	assert.Equal(t, 4, meta.TotalPages)
}

func TestInTestModeFollowsEnv(t *testing.T) {
	t.Setenv(TestModeEnv, "1")
	assert.True(t, InTestMode())

	t.Setenv(TestModeEnv, "0")
	assert.False(t, InTestMode())
}
