package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"github.com/ewanmcc/fleetlink-core/internal/auth"
	"github.com/ewanmcc/fleetlink-core/internal/broadcast"
	"github.com/ewanmcc/fleetlink-core/internal/hub"
	"github.com/ewanmcc/fleetlink-core/internal/infrastructure/config"
	"github.com/ewanmcc/fleetlink-core/internal/infrastructure/logging"
	"github.com/ewanmcc/fleetlink-core/internal/registry"
	"github.com/ewanmcc/fleetlink-core/internal/relay"
)

const (
	testUsername  = "operator"
	testPassword  = "correct-horse-battery-staple"
	testJWTSecret = "0123456789abcdef0123456789abcdef"
)

// testStack bundles the full server wiring for handler tests.
type testStack struct {
	server   *Server
	auth     *auth.Authenticator
	registry *registry.Registry
	events   *broadcast.Broadcaster
	ts       *httptest.Server
}

func newTestStack(t *testing.T, twoFactor bool) *testStack {
	t.Helper()

	authenticator, err := auth.New(config.AuthConfig{
		AdminUsername: testUsername,
		AdminPassword: testPassword,
		TwoFactor:     config.TwoFactorConfig{Enabled: twoFactor, Issuer: "Fleetlink Test"},
		JWT:           config.JWTConfig{Secret: testJWTSecret, TokenTTL: 24},
	})
	if err != nil {
		t.Fatalf("auth.New() error: %v", err)
	}

	logger := logging.Default()
	reg := registry.New()
	events := broadcast.New(16)
	t.Cleanup(events.Close)

	wsCfg := config.WebSocketConfig{
		MaxMessageSize: 65536,
		PingInterval:   30,
		PongTimeout:    10,
		SendBufferSize: 16,
	}

	h := hub.New(wsCfg, logger, authenticator, reg, events)
	rel := relay.New(logger, reg, h)

	server, err := New(Deps{
		Config:   config.ServerConfig{Host: "127.0.0.1", Port: 0},
		WS:       wsCfg,
		Logger:   logger,
		Auth:     authenticator,
		Registry: reg,
		Hub:      h,
		Relay:    rel,
		Events:   events,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ts := httptest.NewServer(server.buildRouter())
	t.Cleanup(ts.Close)

	return &testStack{
		server:   server,
		auth:     authenticator,
		registry: reg,
		events:   events,
		ts:       ts,
	}
}

func postJSON(t *testing.T, url string, token string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func getJSON(t *testing.T, url string, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

// loginToken authenticates against the test server and returns a session token.
func loginToken(t *testing.T, stack *testStack) string {
	t.Helper()

	resp := postJSON(t, stack.ts.URL+"/api/v1/auth/login", "", loginRequest{
		Username: testUsername,
		Password: testPassword,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatal("login returned empty access_token")
	}
	return token
}

// wsURL converts the test server's http URL to a ws URL for the given path.
func wsURL(stack *testStack, path string) string {
	return "ws" + strings.TrimPrefix(stack.ts.URL, "http") + path
}

// registerTestDevice connects and registers a device through the full router,
// returning the open connection and the assigned connection identity.
func registerTestDevice(t *testing.T, stack *testStack, token string) (*websocket.Conn, string) {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(stack, "/api/v1/device/ws"), nil)
	if err != nil {
		t.Fatalf("dial device ws: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	payload, err := json.Marshal(hub.RegisterPayload{
		Token:        token,
		Name:         "Test Device",
		System:       "iOS",
		Version:      "17.4",
		BatteryLevel: 0.85,
	})
	if err != nil {
		t.Fatalf("marshal register payload: %v", err)
	}
	if err := conn.WriteJSON(hub.Frame{Type: hub.TypeRegisterDevice, Payload: payload}); err != nil {
		t.Fatalf("write register frame: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	var frame hub.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read registration ack: %v", err)
	}
	if frame.Type != hub.TypeRegistrationSuccess {
		t.Fatalf("registration ack type = %q, want %q", frame.Type, hub.TypeRegistrationSuccess)
	}

	records := stack.registry.List()
	if len(records) == 0 {
		t.Fatal("registry empty after registration")
	}
	return conn, records[len(records)-1].ID
}

func TestHealth(t *testing.T) {
	stack := newTestStack(t, false)

	resp := getJSON(t, stack.ts.URL+"/api/v1/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["connected_devices"] != float64(0) {
		t.Errorf("connected_devices = %v, want 0", body["connected_devices"])
	}
	if body["two_factor_enabled"] != false {
		t.Errorf("two_factor_enabled = %v, want false", body["two_factor_enabled"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}

func TestLogin_Success(t *testing.T) {
	stack := newTestStack(t, false)

	resp := postJSON(t, stack.ts.URL+"/api/v1/auth/login", "", loginRequest{
		Username: testUsername,
		Password: testPassword,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["access_token"] == "" {
		t.Error("access_token should not be empty")
	}
	if body["token_type"] != "Bearer" {
		t.Errorf("token_type = %v, want Bearer", body["token_type"])
	}
	if body["expires_in"] != float64(24*60*60) {
		t.Errorf("expires_in = %v, want 86400", body["expires_in"])
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	stack := newTestStack(t, false)

	tests := []struct {
		name string
		req  loginRequest
	}{
		{"wrong password", loginRequest{Username: testUsername, Password: "wrong"}},
		{"wrong username", loginRequest{Username: "intruder", Password: testPassword}},
		{"empty", loginRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, stack.ts.URL+"/api/v1/auth/login", "", tt.req)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
			body := decodeBody(t, resp)
			if _, ok := body["second_factor_required"]; ok {
				t.Error("credential failures must not hint at the second factor")
			}
		})
	}
}

func TestLogin_BadJSON(t *testing.T) {
	stack := newTestStack(t, false)

	resp, err := http.Post(stack.ts.URL+"/api/v1/auth/login", "application/json", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestLogin_SecondFactor(t *testing.T) {
	stack := newTestStack(t, true)

	// Valid credentials without a code signal a recoverable re-prompt.
	resp := postJSON(t, stack.ts.URL+"/api/v1/auth/login", "", loginRequest{
		Username: testUsername,
		Password: testPassword,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["second_factor_required"] != true {
		t.Error("second_factor_required should be true when only the code is missing")
	}

	// Retry with a valid TOTP code succeeds.
	code, err := totp.GenerateCode(stack.auth.SetupMaterial().Secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	resp = postJSON(t, stack.ts.URL+"/api/v1/auth/login", "", loginRequest{
		Username: testUsername,
		Password: testPassword,
		TOTPCode: code,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with code = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// A bad code is a plain credential rejection.
	resp = postJSON(t, stack.ts.URL+"/api/v1/auth/login", "", loginRequest{
		Username: testUsername,
		Password: testPassword,
		TOTPCode: "000000",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status with bad code = %d, want 401", resp.StatusCode)
	}
	body = decodeBody(t, resp)
	if _, ok := body["second_factor_required"]; ok {
		t.Error("rejected codes must not signal a re-prompt")
	}
}

func TestTwoFactorSetup(t *testing.T) {
	stack := newTestStack(t, true)

	resp := getJSON(t, stack.ts.URL+"/api/v1/twofactor/setup", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)

	if body["secret"] != stack.auth.SetupMaterial().Secret {
		t.Error("setup secret should match the process-wide shared secret")
	}
	otpauth, _ := body["otpauth_url"].(string)
	if !strings.HasPrefix(otpauth, "otpauth://totp/") {
		t.Errorf("otpauth_url = %q, want otpauth://totp/ prefix", otpauth)
	}
	qr, _ := body["qr_code"].(string)
	if !strings.HasPrefix(qr, "data:image/png;base64,") {
		t.Errorf("qr_code should be a PNG data URL, got prefix %.30q", qr)
	}
}

func TestTwoFactorVerify(t *testing.T) {
	stack := newTestStack(t, true)

	code, err := totp.GenerateCode(stack.auth.SetupMaterial().Secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}

	resp := postJSON(t, stack.ts.URL+"/api/v1/twofactor/verify", "", map[string]string{"code": code})
	if body := decodeBody(t, resp); body["valid"] != true {
		t.Errorf("valid = %v for fresh code, want true", body["valid"])
	}

	resp = postJSON(t, stack.ts.URL+"/api/v1/twofactor/verify", "", map[string]string{"code": "000000"})
	if body := decodeBody(t, resp); body["valid"] != false {
		t.Errorf("valid = %v for wrong code, want false", body["valid"])
	}

	resp = postJSON(t, stack.ts.URL+"/api/v1/twofactor/verify", "", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d for missing code, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuthMiddleware(t *testing.T) {
	stack := newTestStack(t, false)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic abc123"},
		{"garbage token", "Bearer not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, stack.ts.URL+"/api/v1/devices", nil)
			if err != nil {
				t.Fatalf("build request: %v", err)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("do request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
		})
	}
}

func TestListDevices(t *testing.T) {
	stack := newTestStack(t, false)
	token := loginToken(t, stack)

	resp := getJSON(t, stack.ts.URL+"/api/v1/devices", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["count"] != float64(0) {
		t.Errorf("count = %v, want 0", body["count"])
	}

	_, identity := registerTestDevice(t, stack, token)

	resp = getJSON(t, stack.ts.URL+"/api/v1/devices", token)
	body := decodeBody(t, resp)
	if body["count"] != float64(1) {
		t.Fatalf("count = %v after registration, want 1", body["count"])
	}
	devices, _ := body["devices"].([]any)
	if len(devices) != 1 {
		t.Fatalf("devices length = %d, want 1", len(devices))
	}
	device, _ := devices[0].(map[string]any)
	if device["id"] != identity {
		t.Errorf("device id = %v, want %v", device["id"], identity)
	}
	if device["name"] != "Test Device" {
		t.Errorf("device name = %v, want Test Device", device["name"])
	}
}

func TestSendCommand_Validation(t *testing.T) {
	stack := newTestStack(t, false)
	token := loginToken(t, stack)

	resp := postJSON(t, stack.ts.URL+"/api/v1/commands", token, commandRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d for empty request, want 400", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["code"] != ErrCodeMissingParameters {
		t.Errorf("code = %v, want %v", body["code"], ErrCodeMissingParameters)
	}

	resp = postJSON(t, stack.ts.URL+"/api/v1/commands", token, commandRequest{
		DeviceID: "never-registered",
		Command:  "ping",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d for unknown device, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSendCommand_Delivery(t *testing.T) {
	stack := newTestStack(t, false)
	token := loginToken(t, stack)
	conn, identity := registerTestDevice(t, stack, token)

	resp := postJSON(t, stack.ts.URL+"/api/v1/commands", token, commandRequest{
		DeviceID: identity,
		Command:  "locate",
		Data:     json.RawMessage(`{"accuracy":"high"}`),
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["accepted"] != true {
		t.Errorf("accepted = %v, want true", body["accepted"])
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	var frame hub.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("device did not receive command: %v", err)
	}
	if frame.Type != hub.TypeCommand {
		t.Fatalf("frame type = %q, want %q", frame.Type, hub.TypeCommand)
	}
	var payload hub.CommandPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("unmarshal command payload: %v", err)
	}
	if payload.Command != "locate" {
		t.Errorf("command = %q, want locate", payload.Command)
	}
}

func TestSendCommand_StaleConnection(t *testing.T) {
	stack := newTestStack(t, false)
	token := loginToken(t, stack)

	// A registry record with no live session mimics a connection that died
	// without the disconnect cleanup having run.
	stack.registry.Put(registry.Record{
		ID:          "ghost-connection",
		Name:        "Ghost",
		System:      "iOS",
		Version:     "17.4",
		ConnectedAt: time.Now().UTC(),
	})

	resp := postJSON(t, stack.ts.URL+"/api/v1/commands", token, commandRequest{
		DeviceID: "ghost-connection",
		Command:  "ping",
	})
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("status = %d, want 410", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["code"] != ErrCodeStale {
		t.Errorf("code = %v, want %v", body["code"], ErrCodeStale)
	}

	// The stale entry was cleaned up; a retry reports NotFound.
	resp = postJSON(t, stack.ts.URL+"/api/v1/commands", token, commandRequest{
		DeviceID: "ghost-connection",
		Command:  "ping",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("retry status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestFeed(t *testing.T) {
	stack := newTestStack(t, false)
	token := loginToken(t, stack)

	// Without a ticket the upgrade is rejected.
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL(stack, "/api/v1/feed"), nil); err == nil {
		t.Fatal("feed dial without ticket should fail")
	} else if resp != nil {
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("handshake status = %d, want 401", resp.StatusCode)
		}
	}

	resp := postJSON(t, stack.ts.URL+"/api/v1/auth/ws-ticket", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ws-ticket status = %d, want 200", resp.StatusCode)
	}
	ticket, _ := decodeBody(t, resp)["ticket"].(string)
	if ticket == "" {
		t.Fatal("empty feed ticket")
	}

	feed, feedResp, err := websocket.DefaultDialer.Dial(wsURL(stack, "/api/v1/feed?ticket="+ticket), nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	if feedResp != nil {
		feedResp.Body.Close()
	}
	defer feed.Close()

	// Tickets are single-use.
	if _, reuse, err := websocket.DefaultDialer.Dial(wsURL(stack, "/api/v1/feed?ticket="+ticket), nil); err == nil {
		t.Error("reused ticket should be rejected")
	} else if reuse != nil {
		reuse.Body.Close()
	}

	// A device registration shows up on the feed.
	_, identity := registerTestDevice(t, stack, token)

	if err := feed.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	var msg feedMessage
	if err := feed.ReadJSON(&msg); err != nil {
		t.Fatalf("read feed event: %v", err)
	}
	if msg.Type != feedTypeEvent {
		t.Errorf("feed frame type = %q, want %q", msg.Type, feedTypeEvent)
	}
	if msg.EventType != string(broadcast.EventDeviceRegistered) {
		t.Errorf("event_type = %q, want %q", msg.EventType, broadcast.EventDeviceRegistered)
	}
	if msg.DeviceID != identity {
		t.Errorf("device_id = %q, want %q", msg.DeviceID, identity)
	}
	if msg.Timestamp == "" {
		t.Error("feed event should carry a timestamp")
	}
}

func TestNew_MissingDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() with empty deps should fail")
	}
}
