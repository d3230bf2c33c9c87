package echoapi

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/reliefbridge/core/user"
	emailsvc "github.com/trezcool/reliefbridge/services/email"
)

func Test_userApi_register(t *testing.T) {
	app := newTestApp(t)

	t.Run("donor signup", func(t *testing.T) {
		body := marchallObj(t, user.NewUser{
			Name:            "Jane Donor",
			Username:        "donor1",
			Email:           "donor@test.cd",
			Password:        "LeVrai#1",
			PasswordConfirm: "LeVrai#1",
			Roles:           user.DonorRoles,
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/register", body)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var usr user.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usr))
		assert.NotEmpty(t, usr.ID)
		assert.True(t, usr.IsDonor())
	})

	t.Run("cannot self-assign admin", func(t *testing.T) {
		body := marchallObj(t, user.NewUser{
			Name:            "Sneaky",
			Username:        "sneaky1",
			Email:           "sneaky@test.cd",
			Password:        "LeVrai#1",
			PasswordConfirm: "LeVrai#1",
			Roles:           user.AdminRoles,
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/register", body)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate email", func(t *testing.T) {
		body := marchallObj(t, user.NewUser{
			Name:            "Jane Again",
			Username:        "donor2x",
			Email:           "donor@test.cd",
			Password:        "LeVrai#1",
			PasswordConfirm: "LeVrai#1",
			Roles:           user.DonorRoles,
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/register", body)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_userApi_login(t *testing.T) {
	app := newTestApp(t)
	usr := createTestUser(t, app, "Jane Donor", "donor1", "donor@test.cd", "LeVrai#1", user.DonorRoles, true)
	inactive := createTestUser(t, app, "Gone User", "gone01", "gone@test.cd", "LeVrai#1", user.DonorRoles, false)

	tests := []struct {
		name     string
		body     LoginRequest
		wantCode int
	}{
		{"by username", LoginRequest{Username: "donor1", Password: "LeVrai#1"}, http.StatusOK},
		{"by email", LoginRequest{Username: "donor@test.cd", Password: "LeVrai#1"}, http.StatusOK},
		{"wrong password", LoginRequest{Username: "donor1", Password: "nope"}, http.StatusBadRequest},
		{"unknown user", LoginRequest{Username: "who", Password: "LeVrai#1"}, http.StatusBadRequest},
		{"deactivated account", LoginRequest{Username: inactive.Username, Password: "LeVrai#1"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", marchallObj(t, tt.body))
			app.server.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
	_ = usr
}

func Test_userApi_adminEndpoints(t *testing.T) {
	app := newTestApp(t)
	admin := createTestUser(t, app, "Ad Min", "admin1", "admin@test.cd", "LeVrai#1", user.AdminRoles, true)
	donor := createTestUser(t, app, "Jane Donor", "donor1", "donor@test.cd", "LeVrai#1", user.DonorRoles, true)

	t.Run("query users requires admin", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users", getToken(t, donor))
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/v1/users", getToken(t, admin))
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		var users []user.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
		assert.Len(t, users, 2)
	})

	t.Run("filter by role", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users?role="+user.RoleDonor, getToken(t, admin))
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var users []user.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
		require.Len(t, users, 1)
		assert.Equal(t, donor.ID, users[0].ID)
	})

	t.Run("self retrieve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+donor.ID, getToken(t, donor))
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("cannot retrieve someone else", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+admin.ID, getToken(t, donor))
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("admin cannot delete self", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+admin.ID, getToken(t, admin))
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin deletes a user", func(t *testing.T) {
		victim := createTestUser(t, app, "Bye User", "byeuser", "bye@test.cd", "LeVrai#1", user.DonorRoles, true)
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+victim.ID, getToken(t, admin))
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	app := newTestApp(t)
	donor := createTestUser(t, app, "Jane Donor", "donor1", "donor@test.cd", "LeVrai#1", user.DonorRoles, true)

	pathRegex := regexp.MustCompile(`/password-reset/[\w-]+/[\w-]+`)

	t.Run("unknown email", func(t *testing.T) {
		emailsvc.SentMessages = nil // reset

		body := marchallObj(t, PasswordResetRequest{Email: "who@test.cd"})
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", body)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Empty(t, emailsvc.SentMessages)
	})

	t.Run("known email", func(t *testing.T) {
		emailsvc.SentMessages = nil // reset

		body := marchallObj(t, PasswordResetRequest{Email: donor.Email})
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", body)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		require.Len(t, emailsvc.SentMessages, 1)
		msg := emailsvc.SentMessages[0]
		assert.Equal(t, mail.Address{Name: donor.Name, Address: donor.Email}, msg.To[0])
		assert.NotEmpty(t, msg.TextContent)
		assert.NotEmpty(t, msg.HTMLContent)
		assert.Regexp(t, pathRegex, msg.TextContent)
		assert.Regexp(t, pathRegex, msg.HTMLContent)
	})
}

func Test_userApi_tokenRefresh(t *testing.T) {
	app := newTestApp(t)
	donor := createTestUser(t, app, "Jane Donor", "donor1", "donor@test.cd", "LeVrai#1", user.DonorRoles, true)

	req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", getToken(t, donor))
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
}
