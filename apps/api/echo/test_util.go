package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/reliefbridge/core"
	"github.com/trezcool/reliefbridge/core/order"
	"github.com/trezcool/reliefbridge/core/relief"
	"github.com/trezcool/reliefbridge/core/user"
	emailsvc "github.com/trezcool/reliefbridge/services/email"
	paymentsvc "github.com/trezcool/reliefbridge/services/payment"
	dummydb "github.com/trezcool/reliefbridge/storage/database/dummy"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

func testCtx() context.Context { return context.Background() }

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

type testLogger struct{}

func (testLogger) Debug(msg string, args ...interface{}) {}
func (testLogger) Info(msg string, args ...interface{})  {}
func (testLogger) Warn(msg string, args ...interface{})  {}
func (testLogger) Error(msg string, args ...interface{}) {}
func (testLogger) Fatal(msg string, args ...interface{}) {}

func newTestConfig() *core.Config {
	// core.Conf backs template rendering; it is only assigned by NewConfig,
	// which we bypass here.
	core.Conf = &core.Config{
		Debug:            false,
		TestMode:         true,
		Env:              "test",
		AppName:          "ReliefBridge",
		SecretKey:        []byte("secret"),
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: "noreply@localhost",
		Server: core.ServerConfig{
			Addr:                      ":8000",
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
	}
	return core.Conf
}

type testApp struct {
	server    *Server
	conf      *core.Config
	db        *dummydb.DB
	userSvc   user.Service
	reliefSvc relief.Service
	orderSvc  order.Service
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	conf := newTestConfig()

	logger := testLogger{}
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("opening dummy db: %v", err)
	}

	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	relief.InitValidators(validate, translator)

	core.ParseEmailTemplates(logger)
	user.LoadCommonPasswords(logger)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	userSvc := user.NewServiceMock(dummydb.NewUserRepository(db), mailSvc, conf)
	reliefSvc := relief.NewService(dummydb.NewRequestRepository(db), logger)
	orderSvc := order.NewService(dummydb.NewOrderRepository(db), reliefSvc, logger)

	server := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		UserSvc:    userSvc,
		ReliefSvc:  reliefSvc,
		OrderSvc:   orderSvc,
		PaymentGw:  paymentsvc.NewDummyGateway(0, logger),
		MailSvc:    mailSvc,
		Validate:   validate,
		Translator: translator,
	})
	return &testApp{
		server:    server,
		conf:      conf,
		db:        db,
		userSvc:   userSvc,
		reliefSvc: reliefSvc,
		orderSvc:  orderSvc,
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func createTestUser(t *testing.T, app *testApp, name, uname, email, pwd string, roles []string, isActive bool) user.User {
	t.Helper()
	usr, err := app.userSvc.Create(testCtx(), user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	})
	if err != nil {
		t.Fatalf("createTestUser() failed: %v", err)
	}
	if !isActive {
		f := false
		if usr, err = app.userSvc.Update(testCtx(), usr.ID, user.UpdateUser{IsActive: &f}); err != nil {
			t.Fatalf("createTestUser() failed: %v", err)
		}
	}
	return usr
}

func createTestRequest(t *testing.T, app *testApp, victimID string, items ...relief.NewItem) relief.Request {
	t.Helper()
	req, err := app.reliefSvc.Create(testCtx(), victimID, relief.NewRequest{
		Title:    "Flood relief",
		Location: "Kalemie",
		Disaster: "flood",
		Urgency:  relief.PriorityHigh,
		Items:    items,
	})
	if err != nil {
		t.Fatalf("createTestRequest() failed: %v", err)
	}
	return req
}
