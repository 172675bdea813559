package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/dispatch"
	"qrattend/internal/makeup"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
	"qrattend/internal/salary"
	"qrattend/internal/store/storetest"
	"qrattend/internal/subject"
	"qrattend/internal/token"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type captureDeliverer struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (d *captureDeliverer) Deliver(_ context.Context, sub subject.Subject, date string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, sub.Name+"@"+date)
	return nil
}

type fixture struct {
	router   http.Handler
	subjects *subject.Service
	issuer   *auth.Issuer
	clock    *clock
	delivery *captureDeliverer
}

func setup(t *testing.T, configure ...func(*Options)) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := storetest.Open(t)
	subRepo := subject.NewRepository(db.Client)
	subjects := subject.NewService(subRepo)
	codec := token.Codec{}
	clk := &clock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	att := attendance.NewService(attendance.NewRepository(db.Client), subRepo, codec,
		attendance.NewResolver(subRepo, codec, 1),
		attendance.Options{Location: time.UTC, Clock: clk.Now})

	delivery := &captureDeliverer{}
	m := metrics.New(prometheus.NewRegistry())
	sched, err := dispatch.NewScheduler(dispatch.NewBroadcaster(subRepo, delivery, time.Second, m), dispatch.SchedulerOptions{
		Hour:     6,
		Location: time.UTC,
		Clock:    clk.Now,
		Observer: m,
	})
	require.NoError(t, err)

	issuer := auth.NewIssuer("qrattend-test", "test-key", time.Minute, time.Hour)
	opts := Options{
		Attendance: att,
		Subjects:   subjects,
		Issuer:     issuer,
		Refresh:    auth.NewRefreshStore(db.Client),
		Codec:      codec,
		Delivery:   delivery,
		Scheduler:  sched,
		Makeup:     makeup.NewRepository(db.Client),
		Salaries:   salary.NewRepository(db.Client),
		Metrics:    m,
		Checks:     map[string]HealthChecker{"db": db},
	}
	for _, fn := range configure {
		fn(&opts)
	}
	srv := New(opts)
	return &fixture{router: srv.Router(), subjects: subjects, issuer: issuer, clock: clk, delivery: delivery}
}

func (f *fixture) register(t *testing.T, name string, admin bool) (subject.Subject, string) {
	t.Helper()
	sub, err := f.subjects.Register(context.Background(), subject.RegisterInput{
		Name:     name,
		Email:    strings.ToLower(name) + "@example.com",
		Password: "secret-" + name,
		IsAdmin:  admin,
	})
	require.NoError(t, err)
	role := auth.RoleUser
	if admin {
		role = auth.RoleAdmin
	}
	pair, err := f.issuer.Issue(sub.ID, role)
	require.NoError(t, err)
	return sub, pair.AccessToken
}

func (f *fixture) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestAliceScenario(t *testing.T) {
	f := setup(t)
	w := f.do(t, http.MethodPost, "/api/users", gin.H{"name": "Alice", "email": "alice@example.com"}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode(t, w)["id"])

	scan := gin.H{"qr_data": "Alice|2024-06-01"}

	w = f.do(t, http.MethodPost, "/api/attendance/check", scan, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Checked in successfully", body["message"])
	rec := body["attendance"].(map[string]any)
	assert.Equal(t, "2024-06-01T10:00:00", rec["check_in"])
	assert.Nil(t, rec["check_out"])
	assert.Equal(t, "2024-06-01", rec["date"])

	f.clock.Set(time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC))
	w = f.do(t, http.MethodPost, "/api/attendance/check", scan, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Equal(t, "Checked out successfully", body["message"])
	assert.Equal(t, "2024-06-01T18:00:00", body["attendance"].(map[string]any)["check_out"])

	f.clock.Set(time.Date(2024, 6, 1, 19, 0, 0, 0, time.UTC))
	w = f.do(t, http.MethodPost, "/api/attendance/check", scan, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	body = decode(t, w)
	assert.Equal(t, "Attendance already completed for this date", body["error"])
	rec = body["attendance"].(map[string]any)
	assert.Equal(t, "2024-06-01T18:00:00", rec["check_out"])
}

func TestScanErrors(t *testing.T) {
	f := setup(t)
	f.register(t, "Alice", false)

	cases := []struct {
		qr     string
		status int
		msg    string
	}{
		{"", http.StatusBadRequest, "QR data is required"},
		{"Alice-2024-06-01", http.StatusBadRequest, "Invalid QR code format"},
		{"Alice|2024|06", http.StatusBadRequest, "Invalid QR code format"},
		{"Bob|2024-06-01", http.StatusNotFound, "User not found"},
		{"Alice|2024-13-01", http.StatusBadRequest, "Invalid date format"},
	}
	for _, tc := range cases {
		t.Run(tc.qr, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/attendance/check", gin.H{"qr_data": tc.qr}, "")
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.msg, decode(t, w)["error"])
		})
	}

	w := f.do(t, http.MethodGet, "/api/attendance", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestExplicitCheckInOut(t *testing.T) {
	f := setup(t)
	_, tok := f.register(t, "Alice", false)

	w := f.do(t, http.MethodPost, "/api/check-in", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/check-out", nil, tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No check-in record found", decode(t, w)["error"])

	w = f.do(t, http.MethodPost, "/api/check-in", nil, tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Checked in successfully", decode(t, w)["message"])

	w = f.do(t, http.MethodPost, "/api/check-in", nil, tok)
	assert.Equal(t, "Already checked in today", decode(t, w)["error"])

	f.clock.Set(time.Date(2024, 6, 1, 17, 30, 0, 0, time.UTC))
	w = f.do(t, http.MethodPost, "/api/check-out", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-06-01T17:30:00", decode(t, w)["attendance"].(map[string]any)["check_out"])

	w = f.do(t, http.MethodPost, "/api/check-out", nil, tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Already checked out today", decode(t, w)["error"])
}

func TestAdminOverride(t *testing.T) {
	f := setup(t)
	alice, userTok := f.register(t, "Alice", false)
	_, adminTok := f.register(t, "Root", true)

	req := gin.H{
		"user_id":     alice.ID,
		"date":        "2024-05-31",
		"check_in":    "09:15",
		"check_out":   "2024-05-31T17:45:00",
		"is_present":  true,
		"class_count": 3,
	}

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/admin/attendance", req, "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/admin/attendance", req, userTok).Code)

	w := f.do(t, http.MethodPost, "/api/admin/attendance", req, adminTok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode(t, w)["attendance"].(map[string]any)
	assert.Equal(t, "2024-05-31T09:15:00", first["check_in"])
	assert.Equal(t, "2024-05-31T17:45:00", first["check_out"])
	assert.EqualValues(t, 3, first["class_count"])

	w = f.do(t, http.MethodPost, "/api/admin/attendance", req, adminTok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first, decode(t, w)["attendance"])

	req["user_id"] = 999
	w = f.do(t, http.MethodPost, "/api/admin/attendance", req, adminTok)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", decode(t, w)["error"])

	req["user_id"] = alice.ID
	req["check_in"] = "quarter past nine"
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/admin/attendance", req, adminTok).Code)
}

func TestListAttendance(t *testing.T) {
	f := setup(t)
	alice, _ := f.register(t, "Alice", false)
	f.register(t, "Bob", false)

	for _, qr := range []string{"Alice|2024-06-01", "Bob|2024-06-01"} {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/attendance/check", gin.H{"qr_data": qr}, "").Code)
	}

	w := f.do(t, http.MethodGet, "/api/attendance?user_id=1&start_date=2024-06-01&end_date=2024-06-01", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	user := list[0]["user"].(map[string]any)
	assert.EqualValues(t, alice.ID, user["id"])
	assert.Equal(t, "Alice", user["name"])

	w = f.do(t, http.MethodGet, "/api/attendance?start_date=06/01/2024", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid date format", decode(t, w)["error"])

	w = f.do(t, http.MethodGet, "/api/attendance?user_id=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUsers(t *testing.T) {
	f := setup(t)
	_, userTok := f.register(t, "Alice", false)
	_, adminTok := f.register(t, "Root", true)

	w := f.do(t, http.MethodPost, "/api/users", gin.H{"name": "Other", "email": "alice@example.com"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User with this email already exists", decode(t, w)["error"])

	w = f.do(t, http.MethodPost, "/api/users", gin.H{"name": "Alice", "email": "a2@example.com"}, "")
	assert.Equal(t, "User with this name already exists", decode(t, w)["error"])

	w = f.do(t, http.MethodGet, "/api/users/1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Alice", decode(t, w)["name"])
	assert.NotContains(t, w.Body.String(), "password")

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/users/42", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/api/users/1", nil, userTok).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/users/1", nil, adminTok).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/users/1", nil, "").Code)
}

func TestGenerateAndSendQR(t *testing.T) {
	f := setup(t)
	alice, _ := f.register(t, "Alice", false)

	w := f.do(t, http.MethodPost, "/api/generate-qr", gin.H{"user_id": alice.ID}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Alice|2024-06-01", body["qr_data"])
	assert.True(t, strings.HasPrefix(body["qr_code"].(string), "data:image/png;base64,"))

	w = f.do(t, http.MethodPost, "/api/generate-qr", gin.H{"user_id": alice.ID, "date": "June 1"}, "")
	assert.Equal(t, "Invalid date format", decode(t, w)["error"])

	w = f.do(t, http.MethodPost, "/api/send-qr-email", gin.H{"user_id": alice.ID, "date": "2024-06-02"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "QR code sent successfully", decode(t, w)["message"])
	assert.Equal(t, []string{"Alice@2024-06-02"}, f.delivery.sent)

	f.delivery.err = errors.New("smtp down")
	w = f.do(t, http.MethodPost, "/api/send-qr-email", gin.H{"user_id": alice.ID}, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to send email", decode(t, w)["error"])

	w = f.do(t, http.MethodPost, "/api/send-qr-email", gin.H{"user_id": 77}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendQREmailReportsQueued(t *testing.T) {
	q := queue.NewInMemory(4)
	f := setup(t, func(o *Options) { o.Delivery = dispatch.QueueDeliverer{Queue: q} })
	alice, _ := f.register(t, "Alice", false)

	w := f.do(t, http.MethodPost, "/api/send-qr-email", gin.H{"user_id": alice.ID, "date": "2024-06-02"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "QR code email queued", body["message"])
	assert.Equal(t, true, body["queued"])

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	msg := <-msgs
	job, err := msg.DeliveryJob()
	require.NoError(t, err)
	assert.Equal(t, queue.DeliveryJob{UserID: alice.ID, Date: "2024-06-02"}, job)
}

func TestLoginRefreshLogout(t *testing.T) {
	f := setup(t)
	f.register(t, "Alice", false)

	w := f.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "alice@example.com", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "alice@example.com", "password": "secret-Alice"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	access := body["access_token"].(string)
	refresh := body["refresh_token"].(string)

	w = f.do(t, http.MethodGet, "/api/auth/status", nil, access)
	assert.Equal(t, true, decode(t, w)["logged_in"])
	w = f.do(t, http.MethodGet, "/api/auth/status", nil, "")
	assert.Equal(t, false, decode(t, w)["logged_in"])

	w = f.do(t, http.MethodPost, "/api/auth/refresh", gin.H{"refresh_token": refresh}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rotated := decode(t, w)["refresh_token"].(string)

	// a consumed refresh token cannot be replayed
	w = f.do(t, http.MethodPost, "/api/auth/refresh", gin.H{"refresh_token": refresh}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/auth/logout", gin.H{"refresh_token": rotated}, "").Code)
	w = f.do(t, http.MethodPost, "/api/auth/refresh", gin.H{"refresh_token": rotated}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStaffLogin(t *testing.T) {
	f := setup(t)
	f.register(t, "Root", true)

	w := f.do(t, http.MethodPost, "/api/auth/staff-login", gin.H{"email": "root@example.com", "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/auth/staff-login", gin.H{"email": "root@example.com", "password": "secret-Root"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, auth.RoleStaff, body["role"])
	access := body["access_token"].(string)
	refresh := body["refresh_token"].(string)

	w = f.do(t, http.MethodGet, "/api/auth/status", nil, access)
	status := decode(t, w)
	assert.Equal(t, true, status["logged_in"])
	assert.Equal(t, true, status["staff_logged_in"])
	assert.Equal(t, false, status["is_admin"])

	// staff may record attendance but not administer it
	w = f.do(t, http.MethodPost, "/api/check-in", nil, access)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(t, http.MethodGet, "/api/admin/dispatch", nil, access)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// refresh keeps the staff role
	w = f.do(t, http.MethodPost, "/api/auth/refresh", gin.H{"refresh_token": refresh}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, auth.RoleStaff, decode(t, w)["role"])
}

func TestDispatchEndpoints(t *testing.T) {
	f := setup(t)
	f.register(t, "Alice", false)
	_, adminTok := f.register(t, "Root", true)

	w := f.do(t, http.MethodGet, "/api/admin/dispatch", nil, adminTok)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "2024-06-02T06:00:00Z", body["next_run"])
	assert.Equal(t, false, body["running"])

	w = f.do(t, http.MethodPost, "/api/admin/dispatch", nil, adminTok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 2, body["sent"])
	assert.ElementsMatch(t, []string{"Alice@2024-06-01", "Root@2024-06-01"}, f.delivery.sent)
}

func TestMakeupAndSalaries(t *testing.T) {
	f := setup(t)
	_, adminTok := f.register(t, "Root", true)

	w := f.do(t, http.MethodPost, "/api/makeup-classes", gin.H{
		"name": "Alice", "subject": "Math",
		"original_date": "2024-06-03", "original_period": "2",
		"new_date": "2024-06-05", "new_period": "4",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/makeup-classes", gin.H{"name": "x"}, "").Code)

	w = f.do(t, http.MethodPost, "/api/teacher-salaries", gin.H{"teacher_name": "Alice", "salary_per_class": 2000}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = f.do(t, http.MethodPost, "/api/teacher-salaries", gin.H{"teacher_name": "Alice", "salary_per_class": 2000, "transportation_fee": 400}, adminTok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/teacher-salaries/export?month=2024-06", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "teacher_salaries_2024-06.xlsx")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = f.do(t, http.MethodGet, "/api/teacher-salaries/export?month=June", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	f := setup(t)
	w := f.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["db"])

	w = f.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, "healthy", decode(t, w)["status"])
}
