package echoapi

import (
	"net/http"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/reliefbridge/core"
	"github.com/trezcool/reliefbridge/core/relief"
	"github.com/trezcool/reliefbridge/core/user"
)

type requestApi struct {
	svc       relief.Service
	userSvc   user.Service
	paymentGw core.PaymentGateway
	mailSvc   core.EmailService
	validate  *validator.Validate
}

func registerRequestAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := requestApi{
		svc:       deps.ReliefSvc,
		userSvc:   deps.UserSvc,
		paymentGw: deps.PaymentGw,
		mailSvc:   deps.MailSvc,
		validate:  deps.Validate,
	}

	rg := g.Group("/requests")

	ag := rg.Group("", jwt)
	ag.POST("", api.create, victimMiddleware())
	ag.GET("/mine", api.queryMine, victimMiddleware())
	ag.GET("/stats", api.stats, adminMiddleware())

	dg := rg.Group("/:id", jwt, donorMiddleware())
	dg.POST("/allocation", api.previewAllocation)
	dg.POST("/checkout", api.checkout)

	// browsing is open; anyone can see what help is needed. Registered after
	// the sub-groups: creating a Group registers catch-all routes on its
	// prefix, which would otherwise shadow these with jwt-wrapped 404s.
	rg.GET("", api.query)
	rg.GET("/:id", api.retrieve)

	// a donation references its request via the frozen payload
	g.POST("/donations", api.donate, jwt, donorMiddleware())
}

// Handlers

func (api *requestApi) create(ctx echo.Context) error {
	var data relief.NewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	req, err := api.svc.Create(ctx.Request().Context(), ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *requestApi) query(ctx echo.Context) error {
	filter := new(relief.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []relief.Request{})
	}
	filter.Clean()

	var reqs []relief.Request
	var err error
	if filter.IsEmpty() {
		reqs, err = api.svc.QueryAll(ctx.Request().Context())
	} else {
		reqs, err = api.svc.Filter(ctx.Request().Context(), *filter)
	}
	if err != nil {
		return errors.Wrap(err, "querying requests")
	}
	if reqs == nil {
		reqs = []relief.Request{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *requestApi) queryMine(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqs, err := api.svc.QueryByVictim(ctx.Request().Context(), ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "querying requests")
	}
	if reqs == nil {
		reqs = []relief.Request{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *requestApi) retrieve(ctx echo.Context) error {
	req, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == relief.ErrRequestNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting request")
	}
	return ctx.JSON(http.StatusOK, req)
}

// previewAllocation recomputes the allocation for the donor's current
// selection. Called on every selection change; never persists anything.
func (api *requestApi) previewAllocation(ctx echo.Context) error {
	req, sel, err := api.bindSelection(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, relief.ComputeAllocation(req, sel))
}

// checkout freezes the current selection into an immutable payload the donor
// carries to the payment step.
func (api *requestApi) checkout(ctx echo.Context) error {
	req, sel, err := api.bindSelection(ctx)
	if err != nil {
		return err
	}

	payload, err := relief.BuildCheckoutPayload(req, relief.ComputeAllocation(req, sel))
	if err != nil {
		if errors.Cause(err) == relief.ErrEmptyAllocation {
			return core.NewValidationError(err)
		}
		return errors.Wrap(err, "building checkout payload")
	}
	return ctx.JSON(http.StatusOK, payload)
}

func (api *requestApi) bindSelection(ctx echo.Context) (relief.Request, *relief.Selection, error) {
	var data AllocationRequest
	if err := ctx.Bind(&data); err != nil {
		return relief.Request{}, nil, errors.Wrap(err, "binding to AllocationRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return relief.Request{}, nil, err
	}

	req, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == relief.ErrRequestNotFound {
			return relief.Request{}, nil, errHttpNotFound
		}
		return relief.Request{}, nil, errors.Wrap(err, "getting request")
	}

	sel := relief.NewSelection(req)
	for _, line := range data.Items {
		if err = sel.Toggle(line.ItemID, true); err != nil {
			return relief.Request{}, nil, core.NewValidationError(nil, core.FieldError{Field: "items", Error: err.Error()})
		}
		if line.Amount != "" {
			_ = sel.SetAmount(line.ItemID, line.Amount) // bad input falls back to remaining
		}
	}
	return req, sel, nil
}

// donate charges the donor's card for the payload total, then commits the
// payload against live funded state. The charge covers the confirmed snapshot;
// any funding applied by others in the meantime is disclosed via warnings.
func (api *requestApi) donate(ctx echo.Context) error {
	var data DonationRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DonationRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}
	if err := data.Payload.Validate(); err != nil {
		if relief.IsPayloadSchemaError(err) || errors.Cause(err) == relief.ErrEmptyAllocation {
			return core.NewValidationError(err)
		}
		return errors.Wrap(err, "validating payload")
	}

	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	if err = api.paymentGw.Charge(reqCtx, data.Card, data.Payload.Total, data.Payload.RequestID); err != nil {
		if errors.Cause(err) == core.ErrPaymentDeclined {
			return core.NewValidationError(nil, core.FieldError{Field: "card", Error: "payment declined"})
		}
		return errors.Wrap(err, "charging card")
	}

	res, err := api.svc.Commit(reqCtx, data.Payload)
	if err != nil {
		if relief.IsPayloadSchemaError(err) || errors.Cause(err) == relief.ErrItemNotFound {
			return core.NewValidationError(err)
		}
		if errors.Cause(err) == relief.ErrRequestNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "committing donation")
	}

	resp := DonationResponse{CommitResult: res}
	for _, w := range res.Warnings {
		resp.Messages = append(resp.Messages, w.Message())
	}

	title := data.Payload.RequestID
	if req, err := api.svc.GetByID(reqCtx, data.Payload.RequestID); err == nil {
		title = req.Title
	}
	api.sendReceipt(ctxUsr, title, data.Payload, resp.Messages)
	return ctx.JSON(http.StatusOK, resp)
}

func (api *requestApi) sendReceipt(usr user.User, title string, payload relief.CheckoutPayload, notes []string) {
	api.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Your donation receipt",
		TemplateName: "donation-receipt",
		TemplateData: ReceiptData{RequestTitle: title, Lines: payload.Lines, Total: payload.Total, Notes: notes},
	})
}

func (api *requestApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

type (
	SelectionLine struct {
		ItemID string `json:"item_id" validate:"required"`
		Amount string `json:"amount"` // optional; raw donor input
	}

	AllocationRequest struct {
		Items []SelectionLine `json:"items" validate:"required,min=1,dive"`
	}

	DonationRequest struct {
		Payload relief.CheckoutPayload `json:"payload" validate:"required"`
		Card    core.Card              `json:"card" validate:"required"`
	}

	DonationResponse struct {
		relief.CommitResult
		Messages []string `json:"messages,omitempty"`
	}

	ReceiptData struct {
		RequestTitle string
		Lines        []relief.AllocationLine
		Total        decimal.Decimal
		Notes        []string
	}
)
