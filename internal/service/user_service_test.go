package service

import (
	"errors"
	"testing"
	"time"

	"procuretrack/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func newUserFixture(t *testing.T) (*fixture, UserService) {
	f := newFixture(t)
	return f, NewUserService(f.store.Users(), f.store.Activity(), f.store, testSecret, 2*time.Hour, zap.NewNop())
}

func TestCreateUserAndLogin(t *testing.T) {
	f, svc := newUserFixture(t)
	admin := f.actor(model.RoleAdmin)

	created, err := svc.CreateUser(f.ctx, admin, CreateUserRequest{
		Username: "mreyes",
		Email:    "M.Reyes@School.test",
		FullName: "Maria Reyes",
		Password: "s3cret-pass",
		Role:     model.RoleBookkeeper,
	})
	require.NoError(t, err)
	assert.Equal(t, "m.reyes@school.test", created.Email)

	_, err = svc.CreateUser(f.ctx, admin, CreateUserRequest{Username: "mreyes", Email: "other@school.test", Password: "s3cret-pass", Role: model.RoleBookkeeper})
	assert.True(t, errors.Is(err, ErrConflict))
	_, err = svc.CreateUser(f.ctx, admin, CreateUserRequest{Username: "x", Email: "x@school.test", Password: "s3cret-pass", Role: "janitor"})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	token, err := svc.Login(f.ctx, LoginUserRequest{Email: "m.reyes@school.test", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleBookkeeper, token.User.Role)

	parsed, err := jwt.Parse(token.Token, func(*jwt.Token) (interface{}, error) { return []byte(testSecret), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, created.ID.String(), claims["sub"])
	assert.Equal(t, model.RoleBookkeeper, claims["role"])

	_, err = svc.Login(f.ctx, LoginUserRequest{Email: "m.reyes@school.test", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(f.ctx, LoginUserRequest{Email: "nobody@school.test", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdateUserAndEnsureAdmin(t *testing.T) {
	f, svc := newUserFixture(t)
	admin := f.actor(model.RoleAdmin)
	teacher := f.actor(model.RoleTeacher)

	updated, err := svc.UpdateUser(f.ctx, admin, teacher.UserID.String(), UpdateUserRequest{Role: model.RoleSupply, FullName: "Jose Cruz"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleSupply, updated.Role)
	assert.Equal(t, "Jose Cruz", updated.FullName)

	_, err = svc.UpdateUser(f.ctx, admin, "not-a-uuid", UpdateUserRequest{})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	require.NoError(t, svc.EnsureAdmin(f.ctx, "root", "root@school.test", "change-me-now"))
	require.NoError(t, svc.EnsureAdmin(f.ctx, "root", "root@school.test", "change-me-now"))
	admins, total, err := svc.ListUsers(f.ctx, model.RoleAdmin, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, admins, 2)
}
