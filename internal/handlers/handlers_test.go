package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cinema-booking/internal/services"
	"cinema-booking/internal/session"
	"cinema-booking/internal/status"
	"cinema-booking/models"

	"github.com/go-redis/redismock/v9"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func token(t *testing.T, userID string, admin bool) string {
	t.Helper()
	claims := session.Claims{
		UserID:  userID,
		IsAdmin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

type fakeBoards struct {
	tracker *services.SeatTracker
	loadErr error
}

func newFakeBoards(booked ...int) *fakeBoards {
	t := services.NewSeatTracker(models.Film{ID: "film-1", Name: "Heat", SeatCapacity: 10, Price: decimal.NewFromInt(12)})
	t.SetServerBooked(booked)
	return &fakeBoards{tracker: t}
}

func (b *fakeBoards) Load(context.Context, session.Session, string) (*services.SeatTracker, error) {
	return b.tracker, b.loadErr
}

func (b *fakeBoards) Board(context.Context, session.Session, string) (*services.SeatTracker, error) {
	return b.tracker, nil
}

func (b *fakeBoards) Select(_ context.Context, _ session.Session, _ string, seat int) (services.SeatBoard, error) {
	_, err := b.tracker.Select(seat)
	return b.tracker.Snapshot(), err
}

type fakeHolds struct {
	err   error
	seats []int
}

func (h *fakeHolds) CreateHold(_ context.Context, sess session.Session, filmID string, seat int) (*models.Reservation, error) {
	h.seats = append(h.seats, seat)
	if h.err != nil {
		return nil, h.err
	}
	exp := time.Now().Add(15 * time.Minute)
	return &models.Reservation{ID: "res-1", FilmID: filmID, UserID: sess.UserID, SeatNumber: seat, ExpiresAt: &exp}, nil
}

func (h *fakeHolds) Remaining(models.Reservation) models.RemainingTime {
	return models.RemainingTime{Minutes: 15, PercentLeft: 100}
}

type fakePurchaser struct {
	ctxErr error
}

func (p *fakePurchaser) PurchaseWithWallet(ctx context.Context, sess session.Session, filmID string, seat int) (*models.Reservation, error) {
	p.ctxErr = ctx.Err()
	return &models.Reservation{ID: "res-2", FilmID: filmID, UserID: sess.UserID, SeatNumber: seat, Verified: true}, nil
}

type fakePayer struct {
	err      error
	stage    models.PaymentStage
	owner    string
	lastSess session.Session
}

func (p *fakePayer) PayReservation(_ context.Context, sess session.Session, id string, method models.PaymentMethod) (*models.PaymentResult, error) {
	p.lastSess = sess
	if p.err != nil {
		return nil, p.err
	}
	return &models.PaymentResult{ReservationID: id, Method: method, Reservation: models.Reservation{ID: id, Verified: true}}, nil
}

func (p *fakePayer) Stage(userID, _ string) (models.PaymentStage, bool) {
	if p.owner == "" || userID != p.owner {
		return models.StageIdle, false
	}
	return p.stage, true
}

func (p *fakePayer) Methods() []models.PaymentMethod {
	return []models.PaymentMethod{models.MethodBlockchain, models.MethodConventional}
}

type fakeLister struct{}

func (fakeLister) ListReservations(context.Context, session.Session) (models.ReservationGroups, error) {
	return models.GroupReservations(nil, time.Now(), 0), nil
}

type fakeVerifier struct {
	userID string
	seats  []int
}

func (v *fakeVerifier) Verify(_ context.Context, _ session.Session, _, userID string, seat int) bool {
	v.userID = userID
	return seat == 4
}

func (v *fakeVerifier) VerifyBatch(_ context.Context, _ session.Session, _, userID string, seats []int) (map[int]bool, error) {
	v.userID = userID
	v.seats = seats
	out := make(map[int]bool, len(seats))
	for _, seat := range seats {
		out[seat] = seat == 4
	}
	return out, nil
}

type fakeWallet struct {
	connectErr error
	session    models.WalletSession
}

func (w *fakeWallet) Available() bool                     { return w.connectErr == nil }
func (w *fakeWallet) Session() models.WalletSession       { return w.session }
func (w *fakeWallet) NetworkState() models.NetworkState   { return models.NetworkUnknown }
func (w *fakeWallet) Disconnect()                         { w.session = models.WalletSession{} }
func (w *fakeWallet) SwitchNetwork(context.Context) error { return nil }
func (w *fakeWallet) Connect(context.Context) (string, error) {
	if w.connectErr != nil {
		return "", w.connectErr
	}
	w.session = models.WalletSession{Connected: true, Address: "0x1234567890abcdef1234567890abcdef12345678", ChainID: 11155111}
	return w.session.Address, nil
}
func (w *fakeWallet) CheckNetwork(context.Context) (models.NetworkStatus, error) {
	return models.NetworkStatus{OnExpectedNetwork: true, CurrentChainID: 11155111, ExpectedChainID: 11155111}, nil
}

type fakeLedger struct{}

func (fakeLedger) Pending(context.Context, int64) ([]services.ReconciliationRecord, error) {
	return []services.ReconciliationRecord{{Error: "backend 500"}}, nil
}

type testServer struct {
	e         *echo.Echo
	boards    *fakeBoards
	holds     *fakeHolds
	purchaser *fakePurchaser
	payer     *fakePayer
	verifier  *fakeVerifier
	wallet    *fakeWallet
	redis     redismock.ClientMock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, rmock := redismock.NewClientMock()
	ts := &testServer{
		e:         echo.New(),
		boards:    newFakeBoards(3, 7),
		holds:     &fakeHolds{},
		purchaser: &fakePurchaser{},
		payer:     &fakePayer{stage: models.StageIdle},
		verifier:  &fakeVerifier{},
		wallet:    &fakeWallet{},
		redis:     rmock,
	}

	Routes{
		Seats:    NewSeatHandler(ts.boards, ts.holds, ts.purchaser),
		Payments: NewPaymentHandler(fakeLister{}, ts.payer, ts.verifier),
		Wallet:   NewWalletHandler(ts.wallet),
		Admin:    NewAdminHandler(fakeLedger{}, db),
		Sessions: session.NewParser(testSecret),
	}.Register(ts.e)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, tok, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRoutes_RequireBearerToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/films/film-1/seats", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/films/film-1/seats", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decodeError(t, rec).Error)
}

func TestGetSeats(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/films/film-1/seats", token(t, "user-1", false), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body SeatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Heat", body.Film.Name)
	assert.Equal(t, []int{3, 7}, body.Booked)
	assert.Len(t, body.Selectable, 8)
	assert.False(t, body.Stale)
}

func TestGetSeats_FilmMissing(t *testing.T) {
	ts := newTestServer(t)
	ts.boards.tracker = nil
	ts.boards.loadErr = fmt.Errorf("GetFilm: %w", status.ErrNotFound)

	rec := ts.do(t, http.MethodGet, "/api/v1/films/nope/seats", token(t, "user-1", false), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Error)
}

func TestSelectSeat(t *testing.T) {
	ts := newTestServer(t)
	tok := token(t, "user-1", false)

	rec := ts.do(t, http.MethodPost, "/api/v1/films/film-1/select", tok, `{"seatNumber":3}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_selection", decodeError(t, rec).Error)

	rec = ts.do(t, http.MethodPost, "/api/v1/films/film-1/select", tok, `{"seatNumber":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var board services.SeatBoard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &board))
	require.NotNil(t, board.Selected)
	assert.Equal(t, 5, *board.Selected)

	rec = ts.do(t, http.MethodPost, "/api/v1/films/film-1/select", tok, `{"seatNumber":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateHold_UsesSelection(t *testing.T) {
	ts := newTestServer(t)
	tok := token(t, "user-1", false)

	rec := ts.do(t, http.MethodPost, "/api/v1/films/film-1/holds", tok, "")
	assert.Equal(t, http.StatusConflict, rec.Code, "nothing selected")

	_, err := ts.boards.tracker.Select(6)
	require.NoError(t, err)

	rec = ts.do(t, http.MethodPost, "/api/v1/films/film-1/holds", tok, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []int{6}, ts.holds.seats)

	var body HoldResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "user-1", body.Reservation.UserID)
	assert.Equal(t, 15, body.Remaining.Minutes)
}

func TestCreateHold_Conflict(t *testing.T) {
	ts := newTestServer(t)
	ts.holds.err = fmt.Errorf("CreateHold: %w: Seat already reserved", status.ErrReservationConflict)

	rec := ts.do(t, http.MethodPost, "/api/v1/films/film-1/holds", token(t, "user-1", false), `{"seatNumber":2}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "reservation_conflict", body.Error)
	assert.Contains(t, body.Message, "Seat already reserved")
}

func TestPurchase(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/films/film-1/purchase", token(t, "user-1", false), `{"seatNumber":9}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NoError(t, ts.purchaser.ctxErr)
}

func TestPay(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantKind string
	}{
		{name: "Success", body: `{"method":"conventional"}`, wantCode: http.StatusOK},
		{name: "Missing method", body: `{}`, wantCode: http.StatusBadRequest, wantKind: "bad_request"},
		{name: "In progress", body: `{"method":"blockchain"}`, err: status.ErrAlreadyInProgress, wantCode: http.StatusConflict, wantKind: "already_in_progress"},
		{
			name:     "Reconciliation",
			body:     `{"method":"blockchain"}`,
			err:      &status.ReconciliationError{TransactionHash: "0xfeed", Cause: fmt.Errorf("backend 500")},
			wantCode: http.StatusBadGateway,
			wantKind: "reconciliation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.payer.err = tt.err

			rec := ts.do(t, http.MethodPost, "/api/v1/reservations/res-1/pay", token(t, "user-1", false), tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, decodeError(t, rec).Error)
				return
			}
			assert.Equal(t, "user-1", ts.payer.lastSess.UserID)
		})
	}
}

func TestStage(t *testing.T) {
	ts := newTestServer(t)
	ts.payer.stage = models.StageConfirmingTransaction
	ts.payer.owner = "user-1"

	rec := ts.do(t, http.MethodGet, "/api/v1/reservations/res-1/stage", token(t, "user-1", false), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.StageConfirmingTransaction, body.Stage)
	assert.True(t, body.InProgress)
}

func TestStage_OtherUsersPaymentReadsIdle(t *testing.T) {
	ts := newTestServer(t)
	ts.payer.stage = models.StageConfirmingTransaction
	ts.payer.owner = "user-1"

	rec := ts.do(t, http.MethodGet, "/api/v1/reservations/res-1/stage", token(t, "user-2", false), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.StageIdle, body.Stage)
	assert.False(t, body.InProgress)
}

func TestVerify(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/verify/film-1/4?userId=other", token(t, "user-1", false), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", ts.verifier.userID, "non-admins only verify themselves")

	rec = ts.do(t, http.MethodGet, "/api/v1/verify/film-1/4?userId=other", token(t, "admin", true), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "other", ts.verifier.userID)

	var body VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Verified)

	rec = ts.do(t, http.MethodGet, "/api/v1/verify/film-1/zero", token(t, "user-1", false), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyBatch(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/verify/film-1?seats=4,5,4", token(t, "user-1", false), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{4, 5}, ts.verifier.seats)
	assert.Equal(t, "user-1", ts.verifier.userID)

	var body BatchVerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "film-1", body.FilmID)
	assert.Equal(t, map[int]bool{4: true, 5: false}, body.Seats)

	rec = ts.do(t, http.MethodGet, "/api/v1/verify/film-1?seats=4&userId=other", token(t, "admin", true), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "other", ts.verifier.userID)

	for _, q := range []string{"", "?seats=", "?seats=1,x", "?seats=0"} {
		rec = ts.do(t, http.MethodGet, "/api/v1/verify/film-1"+q, token(t, "user-1", false), "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestWallet(t *testing.T) {
	ts := newTestServer(t)
	tok := token(t, "user-1", false)

	rec := ts.do(t, http.MethodPost, "/api/v1/wallet/connect", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body WalletResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Session.Connected)
	assert.Equal(t, "0x1234...5678", body.ShortAddress)

	rec = ts.do(t, http.MethodPost, "/api/v1/wallet/disconnect", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Session.Connected)

	rec = ts.do(t, http.MethodGet, "/api/v1/wallet/network", tok, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWallet_Unavailable(t *testing.T) {
	ts := newTestServer(t)
	ts.wallet.connectErr = fmt.Errorf("Connect: %w", status.ErrWalletUnavailable)

	rec := ts.do(t, http.MethodPost, "/api/v1/wallet/connect", token(t, "user-1", false), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "wallet_unavailable", decodeError(t, rec).Error)
}

func TestReconciliations_AdminOnly(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/admin/reconciliations", token(t, "user-1", false), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/reconciliations?limit=10", token(t, "admin", true), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "backend 500")
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	ts.redis.ExpectPing().SetVal("PONG")
	rec := ts.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.redis.ExpectPing().SetErr(fmt.Errorf("connection refused"))
	rec = ts.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
