package view

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiocam/panel/internal/rbac"
	"github.com/fiocam/panel/internal/shared"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestLayoutRendersOnlyVisibleNav(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	ctx := rbac.ContextWithAccess(req.Context(), rbac.SessionContext{PrincipalID: "p1", Role: rbac.RoleDeposito, Resolved: true})
	ctx = shared.ContextWithNav(ctx, []shared.NavLink{{Path: "/home", Label: "Inicio"}, {Path: "/obras", Label: "Obras"}})
	req = req.WithContext(ctx)

	data := NewTemplateData(req, nil, "Inicio", map[string]any{"Greeting": "Buen día", "Name": "Ana", "Links": []shared.NavLink{}})
	assert.Equal(t, "deposito", data.Role)

	rec := httptest.NewRecorder()
	require.NoError(t, engine.Render(rec, "pages/home.html", data))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `href="/obras"`))
	assert.False(t, strings.Contains(body, `href="/admins"`))
}

func TestNewTemplateDataWithoutAccess(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/login", nil).WithContext(context.Background())
	data := NewTemplateData(req, nil, "Ingresar", nil)
	assert.Empty(t, data.Role)
	assert.Empty(t, data.Nav)
	assert.Equal(t, "/login", data.CurrentPath)
}
