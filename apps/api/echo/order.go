package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/reliefbridge/core"
	"github.com/trezcool/reliefbridge/core/order"
	"github.com/trezcool/reliefbridge/core/relief"
	"github.com/trezcool/reliefbridge/core/user"
)

type orderApi struct {
	svc       order.Service
	reliefSvc relief.Service
	userSvc   user.Service
	validate  *validator.Validate
}

func registerOrderAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := orderApi{
		svc:       deps.OrderSvc,
		reliefSvc: deps.ReliefSvc,
		userSvc:   deps.UserSvc,
		validate:  deps.Validate,
	}

	og := g.Group("/orders", jwt)
	og.GET("", api.queryMine, vendorMiddleware())
	og.POST("", api.assign, adminMiddleware())
	og.GET("/:id", api.retrieve, vendorMiddleware())
	og.PUT("/:id/status", api.updateStatus, vendorMiddleware())
}

// Handlers

// assign creates a procurement order for a vendor from a fully funded request.
func (api *orderApi) assign(ctx echo.Context) error {
	var data AssignOrderRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignOrderRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	vendor, err := api.userSvc.GetByID(ctx.Request().Context(), data.VendorID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "vendor_id", Error: "vendor not found"})
		}
		return errors.Wrap(err, "getting vendor")
	}
	if !vendor.IsVendor() {
		return core.NewValidationError(nil, core.FieldError{Field: "vendor_id", Error: "user is not a vendor"})
	}

	req, err := api.reliefSvc.GetByID(ctx.Request().Context(), data.RequestID)
	if err != nil {
		if errors.Cause(err) == relief.ErrRequestNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "request_id", Error: "request not found"})
		}
		return errors.Wrap(err, "getting request")
	}
	if !req.FullyFunded() {
		return core.NewValidationError(nil, core.FieldError{Field: "request_id", Error: "request is not fully funded"})
	}

	ord, err := api.svc.AssignFromRequest(ctx.Request().Context(), req, vendor.ID)
	if err != nil {
		return errors.Wrap(err, "assigning order")
	}
	return ctx.JSON(http.StatusCreated, ord)
}

func (api *orderApi) queryMine(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	orders, err := api.svc.QueryByVendor(ctx.Request().Context(), ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "querying orders")
	}
	if orders == nil {
		orders = []order.Order{}
	}
	return ctx.JSON(http.StatusOK, orders)
}

func (api *orderApi) retrieve(ctx echo.Context) error {
	ord, err := api.getVendorOrder(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ord)
}

func (api *orderApi) updateStatus(ctx echo.Context) error {
	ord, err := api.getVendorOrder(ctx)
	if err != nil {
		return err
	}

	var data OrderStatusRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OrderStatusRequest")
	}
	if err = api.validate.Struct(&data); err != nil {
		return err
	}

	ord, err = api.svc.UpdateStatus(ctx.Request().Context(), ord.ID, order.Status(data.Status), data.TrackingNumber)
	if err != nil {
		cause := errors.Cause(err)
		if cause == order.ErrInvalidStatus || cause == order.ErrInvalidTransition {
			return core.NewValidationError(err)
		}
		return errors.Wrap(err, "updating order status")
	}
	return ctx.JSON(http.StatusOK, ord)
}

// getVendorOrder fetches the order and enforces that it belongs to the
// requesting vendor. Admins can see any order.
func (api *orderApi) getVendorOrder(ctx echo.Context) (order.Order, error) {
	ord, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == order.ErrNotFound {
			return order.Order{}, errHttpNotFound
		}
		return order.Order{}, errors.Wrap(err, "getting order")
	}

	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return order.Order{}, errors.Wrap(err, "getting context user")
	}
	if ord.VendorID != ctxUsr.ID && !ctxUsr.IsAdmin() {
		return order.Order{}, errHttpNotFound
	}
	return ord, nil
}

type (
	AssignOrderRequest struct {
		RequestID string `json:"request_id" validate:"required"`
		VendorID  string `json:"vendor_id" validate:"required"`
	}

	OrderStatusRequest struct {
		Status         string `json:"status" validate:"required"`
		TrackingNumber string `json:"tracking_number"`
	}
)
