package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/reliefbridge/core/order"
	"github.com/trezcool/reliefbridge/core/relief"
	"github.com/trezcool/reliefbridge/core/user"
)

// fundRequest commits the full remaining amount for every item.
func fundRequest(t *testing.T, app *testApp, req relief.Request) {
	t.Helper()
	sel := relief.NewSelection(req)
	for _, it := range req.Items {
		require.NoError(t, sel.Toggle(it.ID, true))
	}
	payload, err := relief.BuildCheckoutPayload(req, relief.ComputeAllocation(req, sel))
	require.NoError(t, err)
	_, err = app.reliefSvc.Commit(testCtx(), payload)
	require.NoError(t, err)
}

func Test_orderApi(t *testing.T) {
	app := newTestApp(t)
	admin := createTestUser(t, app, "Ad Min", "admin1", "admin@test.cd", "LeVrai#1", user.AdminRoles, true)
	vendor := createTestUser(t, app, "Ven Dor", "vendor1", "vendor@test.cd", "LeVrai#1", user.VendorRoles, true)
	otherVendor := createTestUser(t, app, "Other Vendor", "vendor2", "vendor2@test.cd", "LeVrai#1", user.VendorRoles, true)
	victim := createTestUser(t, app, "Vic Tim", "victim1", "victim@test.cd", "LeVrai#1", user.VictimRoles, true)

	created := createTestRequest(t, app, victim.ID,
		relief.NewItem{Name: "Food ration", Quantity: 20, Unit: "box", Cost: dec("2000")},
	)

	assignBody := marchallObj(t, AssignOrderRequest{RequestID: created.ID, VendorID: vendor.ID})

	t.Run("cannot assign an unfunded request", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/orders", getToken(t, admin), assignBody)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	fundRequest(t, app, created)

	t.Run("vendor cannot assign", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/orders", getToken(t, vendor), assignBody)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	var ord order.Order
	t.Run("admin assigns a funded request", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/orders", getToken(t, admin), assignBody)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ord))
		assert.Equal(t, vendor.ID, ord.VendorID)
		assert.Equal(t, order.StatusPending, ord.Status)
		assert.True(t, ord.TotalAmount.Equal(dec("2000")))
		assert.True(t, ord.AdvancePayment.Equal(dec("1000")))
	})

	t.Run("assigning to a non-vendor fails", func(t *testing.T) {
		bad := marchallObj(t, AssignOrderRequest{RequestID: created.ID, VendorID: victim.ID})
		req, rec := newAuthRequest(http.MethodPost, "/v1/orders", getToken(t, admin), bad)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("vendor lists own orders", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/orders", getToken(t, vendor))
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var orders []order.Order
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
		require.Len(t, orders, 1)
		assert.Equal(t, ord.ID, orders[0].ID)
	})

	t.Run("foreign vendor cannot see the order", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/orders/"+ord.ID, getToken(t, otherVendor))
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("vendor ships then delivers", func(t *testing.T) {
		body := marchallObj(t, OrderStatusRequest{Status: string(order.StatusInTransit), TrackingNumber: "TRK-42"})
		req, rec := newAuthRequest(http.MethodPut, "/v1/orders/"+ord.ID+"/status", getToken(t, vendor), body)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body = marchallObj(t, OrderStatusRequest{Status: string(order.StatusDelivered)})
		req, rec = newAuthRequest(http.MethodPut, "/v1/orders/"+ord.ID+"/status", getToken(t, vendor), body)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got order.Order
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.True(t, got.Delivered())

		// delivery flips the relief request too
		gotReq, err := app.reliefSvc.GetByID(testCtx(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, relief.StatusDelivered, gotReq.Status)
	})

	t.Run("cannot move a delivered order", func(t *testing.T) {
		body := marchallObj(t, OrderStatusRequest{Status: string(order.StatusPending)})
		req, rec := newAuthRequest(http.MethodPut, "/v1/orders/"+ord.ID+"/status", getToken(t, vendor), body)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
