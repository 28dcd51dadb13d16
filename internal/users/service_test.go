package users

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiocam/panel/internal/auth"
	"github.com/fiocam/panel/internal/rbac"
	"github.com/fiocam/panel/internal/shared"
)

// ============================================================================
// MOCKS
// ============================================================================

type mockRepository struct {
	profiles  map[string]Profile
	nextID    int
	insertErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{profiles: map[string]Profile{}}
}

func (m *mockRepository) Insert(ctx context.Context, p Profile) (Profile, error) {
	if m.insertErr != nil {
		return Profile{}, m.insertErr
	}
	m.nextID++
	p.ID = "prof-" + string(rune('0'+m.nextID))
	m.profiles[p.ID] = p
	return p, nil
}

func (m *mockRepository) Get(ctx context.Context, kind Kind, id string) (Profile, error) {
	p, ok := m.profiles[id]
	if !ok || p.Kind != kind {
		return Profile{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *mockRepository) ByAuthUser(ctx context.Context, authUserID string) (Profile, error) {
	for _, p := range m.profiles {
		if p.AuthUserID == authUserID {
			return p, nil
		}
	}
	return Profile{}, shared.ErrNotFound
}

func (m *mockRepository) List(ctx context.Context, kind Kind, search string) ([]Profile, error) {
	var out []Profile
	for _, p := range m.profiles {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepository) Update(ctx context.Context, kind Kind, id string, upd ProfileUpdate) error {
	p, err := m.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	p.Nombre, p.Apellido, p.DNI, p.WorkEmail = upd.Nombre, upd.Apellido, upd.DNI, upd.WorkEmail
	m.profiles[id] = p
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, kind Kind, id string) error {
	if _, err := m.Get(ctx, kind, id); err != nil {
		return err
	}
	delete(m.profiles, id)
	return nil
}

func (m *mockRepository) ChangeRole(ctx context.Context, p Profile, role rbac.Role) (Profile, error) {
	delete(m.profiles, p.ID)
	p.Role = role
	p.Kind = KindFor(role)
	m.profiles[p.ID] = p
	return p, nil
}

type mockDirectory struct {
	emails    map[string]string
	passwords map[string]string
	deleted   []string
	nextID    int
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{emails: map[string]string{}, passwords: map[string]string{}}
}

func (d *mockDirectory) Authenticate(ctx context.Context, email, password string) (*auth.Identity, error) {
	for id, e := range d.emails {
		if e == email && d.passwords[id] == password {
			return &auth.Identity{ID: id, Email: e}, nil
		}
	}
	return nil, shared.ErrInvalidCredentials
}

func (d *mockDirectory) CreateIdentity(ctx context.Context, email, password string) (string, error) {
	for _, e := range d.emails {
		if e == email {
			return "", shared.ErrDuplicate
		}
	}
	d.nextID++
	id := "auth-" + string(rune('0'+d.nextID))
	d.emails[id] = email
	d.passwords[id] = password
	return id, nil
}

func (d *mockDirectory) DeleteIdentity(ctx context.Context, id string) error {
	if _, ok := d.emails[id]; !ok {
		return shared.ErrNotFound
	}
	delete(d.emails, id)
	d.deleted = append(d.deleted, id)
	return nil
}

func (d *mockDirectory) ChangePassword(ctx context.Context, id, password string) error {
	if _, ok := d.emails[id]; !ok {
		return shared.ErrNotFound
	}
	d.passwords[id] = password
	return nil
}

func (d *mockDirectory) ChangeEmail(ctx context.Context, id, email string) error {
	if _, ok := d.emails[id]; !ok {
		return shared.ErrNotFound
	}
	d.emails[id] = email
	return nil
}

func (d *mockDirectory) Emails(ctx context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		if e, ok := d.emails[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

// cascadeDirectory drops the profiles of an identity the way the schema's
// ON DELETE CASCADE does.
type cascadeDirectory struct {
	*mockDirectory
	repo      *mockRepository
	deleteErr error
}

func (d *cascadeDirectory) DeleteIdentity(ctx context.Context, id string) error {
	if d.deleteErr != nil {
		return d.deleteErr
	}
	for pid, p := range d.repo.profiles {
		if p.AuthUserID == id {
			delete(d.repo.profiles, pid)
		}
	}
	return d.mockDirectory.DeleteIdentity(ctx, id)
}

type mockRoleCache struct{ forgotten []string }

func (c *mockRoleCache) Forget(ctx context.Context, id string) { c.forgotten = append(c.forgotten, id) }

type mockAudit struct{ actions []string }

func (a *mockAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

type fixture struct {
	svc   *Service
	repo  *mockRepository
	dir   *mockDirectory
	cache *mockRoleCache
	audit *mockAudit
}

func newServiceFixture() fixture {
	f := fixture{repo: newMockRepository(), dir: newMockDirectory(), cache: &mockRoleCache{}, audit: &mockAudit{}}
	f.svc = NewService(f.repo, f.dir, f.cache, f.audit, nil)
	return f
}

func validInput(role string) CreateUserInput {
	return CreateUserInput{Email: "Ana@Fiocam.test", Password: "secreta", Nombre: " Ana ", Apellido: "Pérez", DNI: "30111222", Rol: role, CorreoLaboral: "ana@obra.test"}
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateUserRoutesByRole(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		role string
		kind Kind
	}{
		{"superadmin", KindAdmin},
		{"Admin", KindAdmin},
		{"cumplimiento", KindAdmin},
		{"deposito", KindAdmin},
		{"tecnico", KindTecnico},
	} {
		t.Run(tc.role, func(t *testing.T) {
			f := newServiceFixture()
			p, err := f.svc.CreateUser(ctx, "actor", validInput(tc.role))
			require.NoError(t, err)
			assert.Equal(t, tc.kind, p.Kind)
			assert.Equal(t, rbac.NormalizeRole(tc.role), p.Role)
			assert.Equal(t, "Ana", p.Nombre)
			assert.Equal(t, "ana@fiocam.test", p.LoginEmail)
			if tc.kind == KindAdmin {
				assert.Equal(t, "ana@obra.test", p.WorkEmail)
				assert.Empty(t, p.DNI)
			} else {
				assert.Equal(t, "30111222", p.DNI)
				assert.Empty(t, p.WorkEmail)
			}
			assert.Equal(t, []string{"user.create"}, f.audit.actions)
		})
	}
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	f := newServiceFixture()
	_, err := f.svc.CreateUser(context.Background(), "actor", validInput("jefe"))

	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "rol", vErr.Field)
	assert.Empty(t, f.dir.emails, "no identity must be created")
}

func TestCreateUserValidatesInput(t *testing.T) {
	f := newServiceFixture()
	in := validInput("admin")
	in.Password = "123"
	_, err := f.svc.CreateUser(context.Background(), "actor", in)

	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "password", vErr.Field)
}

func TestCreateUserRemovesIdentityWhenProfileFails(t *testing.T) {
	f := newServiceFixture()
	f.repo.insertErr = errors.New("insert failed")

	_, err := f.svc.CreateUser(context.Background(), "actor", validInput("tecnico"))
	require.Error(t, err)
	assert.Empty(t, f.dir.emails)
	assert.Len(t, f.dir.deleted, 1)
}

func TestDeleteUser(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	p, err := f.svc.CreateUser(ctx, "actor", validInput("deposito"))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteUser(ctx, "actor", KindAdmin, p.ID))
	assert.Empty(t, f.repo.profiles)
	assert.Empty(t, f.dir.emails)
	assert.Equal(t, []string{p.AuthUserID}, f.cache.forgotten)

	assert.ErrorIs(t, f.svc.DeleteUser(ctx, "actor", KindAdmin, p.ID), shared.ErrNotFound)
}

func TestDeleteUserWithCascadingIdentity(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	dir := &cascadeDirectory{mockDirectory: f.dir, repo: f.repo}
	f.svc = NewService(f.repo, dir, f.cache, f.audit, nil)
	p, err := f.svc.CreateUser(ctx, "actor", validInput("tecnico"))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteUser(ctx, "actor", KindTecnico, p.ID))
	assert.Empty(t, f.repo.profiles)
	assert.Empty(t, f.dir.emails)
	assert.Equal(t, []string{p.AuthUserID}, f.cache.forgotten)
	assert.Equal(t, []string{"user.create", "user.delete"}, f.audit.actions)
}

func TestDeleteUserForgetsRoleWhenIdentityDeleteFails(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	dir := &cascadeDirectory{mockDirectory: f.dir, repo: f.repo}
	f.svc = NewService(f.repo, dir, f.cache, f.audit, nil)
	p, err := f.svc.CreateUser(ctx, "actor", validInput("admin"))
	require.NoError(t, err)
	dir.deleteErr = errors.New("directory down")

	err = f.svc.DeleteUser(ctx, "actor", KindAdmin, p.ID)
	require.Error(t, err)
	assert.Empty(t, f.repo.profiles, "the profile goes first so the login has no role left")
	assert.Equal(t, []string{p.AuthUserID}, f.cache.forgotten)
	assert.Equal(t, []string{"user.create"}, f.audit.actions)
}

func TestDeleteUserRefusesSelf(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	p, err := f.svc.CreateUser(ctx, "actor", validInput("admin"))
	require.NoError(t, err)

	err = f.svc.DeleteUser(ctx, p.AuthUserID, KindAdmin, p.ID)
	var vErr *shared.ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.Len(t, f.repo.profiles, 1)
}

func TestUpdateCredentials(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	p, err := f.svc.CreateUser(ctx, "actor", validInput("tecnico"))
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateCredentials(ctx, "actor", p.AuthUserID, CredentialsInput{Password: "nueva123", Email: "otra@fiocam.test"}))
	assert.Equal(t, "nueva123", f.dir.passwords[p.AuthUserID])
	assert.Equal(t, "otra@fiocam.test", f.dir.emails[p.AuthUserID])

	var vErr *shared.ValidationError
	assert.ErrorAs(t, f.svc.UpdateCredentials(ctx, "actor", "", CredentialsInput{Password: "nueva123"}), &vErr)
	assert.ErrorAs(t, f.svc.UpdateCredentials(ctx, "actor", p.AuthUserID, CredentialsInput{}), &vErr)
	assert.ErrorAs(t, f.svc.UpdateCredentials(ctx, "actor", p.AuthUserID, CredentialsInput{Email: "no-es-email"}), &vErr)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	p, err := f.svc.CreateUser(ctx, "actor", validInput("admin"))
	require.NoError(t, err)
	me := p.AuthUserID

	var vErr *shared.ValidationError
	err = f.svc.ChangePassword(ctx, me, PasswordChange{Current: "secreta", New: "nueva123", Confirm: "otra123"})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "confirm", vErr.Field)

	err = f.svc.ChangePassword(ctx, me, PasswordChange{Current: "equivocada", New: "nueva123", Confirm: "nueva123"})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "current", vErr.Field)

	require.NoError(t, f.svc.ChangePassword(ctx, me, PasswordChange{Current: "secreta", New: "nueva123", Confirm: "nueva123"}))
	assert.Equal(t, "nueva123", f.dir.passwords[me])
}

func TestListEnrichesLoginEmail(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	withLogin, err := f.svc.CreateUser(ctx, "actor", validInput("tecnico"))
	require.NoError(t, err)
	f.repo.profiles["orphan"] = Profile{ID: "orphan", AuthUserID: "gone", Nombre: "Sin", Kind: KindTecnico, Role: rbac.RoleTecnico}

	list, err := f.svc.List(ctx, KindTecnico, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	byID := map[string]Profile{}
	for _, p := range list {
		byID[p.ID] = p
	}
	assert.Equal(t, "ana@fiocam.test", byID[withLogin.ID].LoginEmail)
	assert.Equal(t, MissingEmail, byID["orphan"].LoginEmail)
}

func TestChangeRoleAcrossTablesForgetsCachedRole(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	p, err := f.svc.CreateUser(ctx, "actor", validInput("tecnico"))
	require.NoError(t, err)

	updated, err := f.svc.ChangeRole(ctx, "actor", KindTecnico, p.ID, "Deposito")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleDeposito, updated.Role)
	assert.Equal(t, KindAdmin, updated.Kind)
	assert.Equal(t, []string{p.AuthUserID}, f.cache.forgotten)

	_, err = f.svc.ChangeRole(ctx, "actor", KindAdmin, p.ID, "rey")
	var vErr *shared.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestChangeRoleRefusesOwnRole(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	p, err := f.svc.CreateUser(ctx, "actor", validInput("superadmin"))
	require.NoError(t, err)

	_, err = f.svc.ChangeRole(ctx, p.AuthUserID, KindAdmin, p.ID, "tecnico")
	var vErr *shared.ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.Empty(t, f.cache.forgotten)
}

func TestUpdateOwnProfile(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	p, err := f.svc.CreateUser(ctx, "actor", validInput("admin"))
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateOwn(ctx, p.AuthUserID, ProfileUpdate{Nombre: " Ana María ", Apellido: "Pérez"}))
	own, err := f.svc.Own(ctx, p.AuthUserID)
	require.NoError(t, err)
	assert.Equal(t, "Ana María", own.Nombre)
	assert.Equal(t, "Ana María Pérez", own.FullName())

	var vErr *shared.ValidationError
	assert.ErrorAs(t, f.svc.UpdateOwn(ctx, p.AuthUserID, ProfileUpdate{Nombre: ""}), &vErr)
}
