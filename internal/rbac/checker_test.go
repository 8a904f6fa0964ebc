package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecker(t *testing.T) {
	c := NewChecker(map[string][]string{
		"editor": {"question:*"},
		"viewer": {PermImportView},
	})
	assert.True(t, c.Has("editor", PermQuestionImport))
	assert.False(t, c.Has("editor", PermTaxonomyCreate))
	assert.True(t, c.Any("viewer", PermQuestionImport, PermImportView))
	assert.False(t, c.Has("nobody", PermImportView))
}

func TestDefaultPolicy(t *testing.T) {
	c := NewChecker(nil)
	assert.True(t, c.Has("admin", "anything:at-all"))
	assert.True(t, c.Has("editor", PermTaxonomyCreate))
	assert.False(t, c.Has("viewer", PermQuestionImport))
}

func TestCanActOn(t *testing.T) {
	c := NewChecker(nil)
	assert.True(t, c.CanActOn("editor", "alice", "alice"))
	assert.False(t, c.CanActOn("editor", "bob", "alice"))
	assert.True(t, c.CanActOn("admin", "root", "alice"))
	assert.True(t, c.CanActOn("editor", "bob", ""), "unowned sessions are shared")
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := Require(PermQuestionImport)(ok)

	for role, want := range map[string]int{"": 403, "viewer": 403, "editor": 200, "admin": 200} {
		req := httptest.NewRequest(http.MethodPost, "/imports", nil)
		req = req.WithContext(WithRole(context.Background(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}
}
