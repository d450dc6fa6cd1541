package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/zerynth/lib-quectel-ug96/internal/auth"
	"github.com/zerynth/lib-quectel-ug96/internal/model"
	"github.com/zerynth/lib-quectel-ug96/internal/modem"
	"github.com/zerynth/lib-quectel-ug96/internal/repository"
	"github.com/zerynth/lib-quectel-ug96/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.InitLogger("error")
	m.Run()
}

type fakeModem struct {
	mu      sync.Mutex
	events  chan modem.Event
	sent    []string
	rx      [][]byte
	rxErr   error
	closed  []int
	apn     modem.APN
	resolve error
}

func (f *fakeModem) Info() modem.Info { return modem.Info{Manufacturer: "Quectel", Model: "UG96"} }
func (f *fakeModem) Network() modem.NetworkInfo { return modem.NetworkInfo{Registration: modem.RegHome} }
func (f *fakeModem) PendingSMS() int { return 2 }
func (f *fakeModem) Subscribe() (<-chan modem.Event, func()) {
	return f.events, func() {}
}
func (f *fakeModem) Attach(_ context.Context, apn modem.APN, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apn = apn
	return nil
}
func (f *fakeModem) Detach(context.Context) error { return nil }
func (f *fakeModem) Signal(context.Context) (int, int, error) {
	return 20, 0, nil
}
func (f *fakeModem) Operators(context.Context) ([]modem.Operator, error) {
	return []modem.Operator{{Type: 2, Long: "TIM", Short: "TIM", Code: "22201"}}, nil
}
func (f *fakeModem) SetOperator(context.Context, string) error { return nil }
func (f *fakeModem) Resolve(_ context.Context, host string) ([]string, error) {
	if f.resolve != nil {
		return nil, f.resolve
	}
	return []string{"93.184.216.34"}, nil
}
func (f *fakeModem) Location(context.Context) (modem.Fix, error) {
	return modem.Fix{}, &modem.ProtocolError{Command: "+QGPSLOC", Message: "516"}
}
func (f *fakeModem) RawCommand(_ context.Context, cmd string, _ time.Duration) ([]string, error) {
	return []string{"echo " + cmd}, nil
}
func (f *fakeModem) SendSMS(_ context.Context, number, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, number+":"+text)
	return 7, nil
}
func (f *fakeModem) DeleteSMS(context.Context, int) error { return nil }
func (f *fakeModem) SMSC(context.Context) (string, error) { return "+393359609600", nil }
func (f *fakeModem) SetSMSC(context.Context, string) error { return nil }
func (f *fakeModem) OpenSocket(context.Context, modem.Proto, bool) (int, error) {
	return 1, nil
}
func (f *fakeModem) SocketTLS(context.Context, int, []byte, []byte, []byte, int) error {
	return nil
}
func (f *fakeModem) Connect(context.Context, int, string, int) error { return nil }
func (f *fakeModem) SendSocket(_ context.Context, _ int, data []byte) (int, error) {
	return len(data), nil
}
func (f *fakeModem) Recv(_ context.Context, _ int, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rx) == 0 {
		return 0, f.rxErr
	}
	n := copy(p, f.rx[0])
	f.rx = f.rx[1:]
	return n, nil
}
func (f *fakeModem) CloseSocket(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

type fakeStatus struct{ triggered int }

func (s *fakeStatus) ICCID() string { return "8939" }
func (s *fakeStatus) Snapshot() model.Modem { return model.Modem{ICCID: "8939", Operator: "TIM"} }
func (s *fakeStatus) Trigger() { s.triggered++ }

type testEnv struct {
	router *gin.Engine
	modem  *fakeModem
	status *fakeStatus
	admin  string
	viewer string
	sms    *repository.SMSRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.Open("sqlite", filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	iss := auth.NewIssuer([]byte("k"), time.Hour, []auth.Account{
		{Username: "admin", PasswordHash: string(hash), Role: "admin"},
		{Username: "ops", PasswordHash: string(hash), Role: "viewer"},
	})
	admin, _ := iss.GenerateToken("admin", "admin")
	viewer, _ := iss.GenerateToken("ops", "viewer")

	env := &testEnv{
		modem:  &fakeModem{events: make(chan modem.Event, 4)},
		status: &fakeStatus{},
		admin:  admin,
		viewer: viewer,
		sms:    repository.NewSMSRepository(db),
	}
	env.router = NewRouter(Deps{
		Modem:    env.modem,
		Status:   env.status,
		Issuer:   iss,
		Modems:   repository.NewModemRepository(db),
		SMS:      env.sms,
		Webhooks: repository.NewWebhookRepository(db),
		APN:      modem.APN{Name: "configured"},
	})
	return env
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)

	t.Run("login", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/login", "", LoginRequest{Username: "admin", Password: "pw"})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body)
		}
		var resp struct{ Token string }
		decode(t, w, &resp)
		if w := env.do(http.MethodGet, "/api/v1/modem", resp.Token, nil); w.Code != http.StatusOK {
			t.Errorf("token from login rejected: %d", w.Code)
		}
	})

	t.Run("bad password", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/login", "", LoginRequest{Username: "admin", Password: "x"})
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		if w := env.do(http.MethodGet, "/api/v1/modem", "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("viewer cannot send", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/sms", env.viewer, SendSMSRequest{Phone: "+39", Content: "x"})
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d", w.Code)
		}
		if w := env.do(http.MethodGet, "/api/v1/sms", env.viewer, nil); w.Code != http.StatusOK {
			t.Errorf("viewer list status = %d", w.Code)
		}
	})
}

func TestModemEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("status", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/modem", env.admin, nil)
		var resp struct {
			Info       modem.Info  `json:"info"`
			PendingSMS int         `json:"pending_sms"`
			Snapshot   model.Modem `json:"snapshot"`
		}
		decode(t, w, &resp)
		if resp.Info.Model != "UG96" || resp.PendingSMS != 2 || resp.Snapshot.Operator != "TIM" {
			t.Errorf("GET /modem = %+v", resp)
		}
	})

	t.Run("attach uses configured apn", func(t *testing.T) {
		if w := env.do(http.MethodPost, "/api/v1/modem/attach", env.admin, nil); w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body)
		}
		if env.modem.apn.Name != "configured" {
			t.Errorf("apn = %+v", env.modem.apn)
		}
		w := env.do(http.MethodPost, "/api/v1/modem/attach", env.admin, AttachRequest{APN: "custom"})
		if w.Code != http.StatusOK || env.modem.apn.Name != "custom" {
			t.Errorf("override: status %d apn %+v", w.Code, env.modem.apn)
		}
		if env.status.triggered != 2 {
			t.Errorf("worker triggered %d times", env.status.triggered)
		}
	})

	t.Run("resolve", func(t *testing.T) {
		if w := env.do(http.MethodGet, "/api/v1/modem/resolve", env.admin, nil); w.Code != http.StatusBadRequest {
			t.Errorf("missing host: status %d", w.Code)
		}
		w := env.do(http.MethodGet, "/api/v1/modem/resolve?host=example.com", env.admin, nil)
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "93.184.216.34") {
			t.Errorf("status %d: %s", w.Code, w.Body)
		}

		env.modem.resolve = modem.ErrTimeout
		w = env.do(http.MethodGet, "/api/v1/modem/resolve?host=example.com", env.admin, nil)
		if w.Code != http.StatusGatewayTimeout || !strings.Contains(w.Body.String(), `"timeout"`) {
			t.Errorf("timeout: status %d: %s", w.Code, w.Body)
		}
		env.modem.resolve = nil
	})

	t.Run("protocol error", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/modem/location", env.admin, nil)
		if w.Code != http.StatusBadGateway {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("raw command", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/modem/at", env.admin, gin.H{"cmd": "ATI"})
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "echo ATI") {
			t.Errorf("status %d: %s", w.Code, w.Body)
		}
	})

	t.Run("operators", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/modem/operators", env.admin, nil)
		var ops []modem.Operator
		decode(t, w, &ops)
		if len(ops) != 1 || ops[0].Code != "22201" {
			t.Errorf("operators = %+v", ops)
		}
	})
}

func TestSMSEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/sms", env.admin, SendSMSRequest{Phone: "+391234", Content: "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("send status = %d: %s", w.Code, w.Body)
	}
	if len(env.modem.sent) != 1 || env.modem.sent[0] != "+391234:hello" {
		t.Errorf("sent = %v", env.modem.sent)
	}

	w = env.do(http.MethodGet, "/api/v1/sms?limit=5", env.admin, nil)
	var page struct {
		Data  []model.SMS `json:"data"`
		Total int64       `json:"total"`
	}
	decode(t, w, &page)
	if page.Total != 1 || page.Data[0].Type != model.SMSSent || page.Data[0].Reference != 7 {
		t.Errorf("page = %+v", page)
	}

	if w := env.do(http.MethodDelete, "/api/v1/sms/abc", env.admin, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad index status = %d", w.Code)
	}
	if w := env.do(http.MethodDelete, "/api/v1/sms/3", env.admin, nil); w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}

	w = env.do(http.MethodGet, "/api/v1/smsc", env.viewer, nil)
	if !strings.Contains(w.Body.String(), "+393359609600") {
		t.Errorf("smsc = %s", w.Body)
	}
	if w := env.do(http.MethodPut, "/api/v1/smsc", env.admin, gin.H{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty smsc status = %d", w.Code)
	}
}

func TestTCPExchange(t *testing.T) {
	env := newTestEnv(t)
	env.modem.rx = [][]byte{[]byte("HTTP/1.0 200 OK\r\n"), []byte("\r\nbody")}
	env.modem.rxErr = modem.ErrConnectionClosed

	w := env.do(http.MethodPost, "/api/v1/net/tcp", env.admin, TCPRequest{Host: "example.com", Port: 80, Payload: "GET / HTTP/1.0\r\n\r\n"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var resp TCPResponse
	decode(t, w, &resp)
	if resp.Sent != 18 || resp.Received != "HTTP/1.0 200 OK\r\n\r\nbody" || !resp.ClosedByPeer {
		t.Errorf("resp = %+v", resp)
	}
	if len(env.modem.closed) != 1 || env.modem.closed[0] != 1 {
		t.Errorf("closed = %v", env.modem.closed)
	}

	if w := env.do(http.MethodPost, "/api/v1/net/tcp", env.admin, gin.H{"host": "x", "port": 70000}); w.Code != http.StatusBadRequest {
		t.Errorf("bad port status = %d", w.Code)
	}
}

func TestWebhookEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/webhooks", env.admin, model.Webhook{ICCID: "8939", URL: "http://hook", Enabled: true})
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d: %s", w.Code, w.Body)
	}
	var created model.Webhook
	decode(t, w, &created)

	w = env.do(http.MethodGet, "/api/v1/webhooks?iccid=8939", env.admin, nil)
	var list []model.Webhook
	decode(t, w, &list)
	if len(list) != 1 {
		t.Fatalf("list = %+v", list)
	}

	if w := env.do(http.MethodPost, "/api/v1/webhooks", env.admin, model.Webhook{ICCID: "8939"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing url status = %d", w.Code)
	}
	path := "/api/v1/webhooks/" + strconv.FormatUint(uint64(created.ID), 10)
	if w := env.do(http.MethodDelete, path, env.admin, nil); w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}
	if w := env.do(http.MethodDelete, path, env.admin, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", w.Code)
	}
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?token=" + env.viewer
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	env.modem.events <- modem.Event{Kind: modem.EventSMSReceived, Index: 5}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev modem.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Kind != modem.EventSMSReceived || ev.Index != 5 {
		t.Errorf("event = %+v", ev)
	}
}
