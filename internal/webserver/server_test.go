package webserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ichi0g0y/thermal-receipt/internal/connection"
	"github.com/ichi0g0y/thermal-receipt/internal/device"
	"github.com/ichi0g0y/thermal-receipt/internal/discovery"
	"github.com/ichi0g0y/thermal-receipt/internal/driver"
	"github.com/ichi0g0y/thermal-receipt/internal/localdb"
	"github.com/ichi0g0y/thermal-receipt/internal/metrics"
	"github.com/ichi0g0y/thermal-receipt/internal/output"
	"github.com/ichi0g0y/thermal-receipt/internal/raster"
	"github.com/ichi0g0y/thermal-receipt/internal/settings"
	"github.com/ichi0g0y/thermal-receipt/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	drv      *driver.DryRun
	server   *Server
	http     *httptest.Server
	saved    *localdb.SavedPrinters
	changed  atomic.Int32
	printer  *output.Printer
	machine  *connection.Machine
	board    *status.Board
	cancelFn context.CancelFunc
}

func strPtr(s string) *string { return &s }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	require.NoError(t, localdb.CloseDB())
	db, err := localdb.SetupDB(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = localdb.CloseDB() })

	drv := driver.NewDryRun(
		device.Raw{Name: strPtr("POS-58"), VendorID: strPtr("0416"), ProductID: strPtr("5011")},
		device.Raw{Name: strPtr("TM-T20"), VendorID: strPtr("04B8"), ProductID: strPtr("0x0e15")},
	)

	board := status.NewBoard()
	collector := metrics.New()
	reporter := status.Multi(board, collector)

	machine := connection.New(drv, connection.Config{
		Transport:   driver.TransportDryRun,
		SettleDelay: 10 * time.Millisecond,
		Reporter:    reporter,
	})
	scanner := discovery.NewScanner(drv, discovery.Config{
		Transport: driver.TransportDryRun,
		Timeout:   time.Second,
		Reporter:  reporter,
	})
	printer := output.NewPrinter(machine, output.PrinterConfig{
		Type:      output.PrinterTypeDryRun,
		Profile:   "default",
		PaperSize: "58mm",
		Raster:    raster.DefaultOptions(),
	}, reporter, collector)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = machine.Run(ctx)
	}()

	te := &testEnv{
		drv:      drv,
		saved:    localdb.NewSavedPrinters(db),
		printer:  printer,
		machine:  machine,
		board:    board,
		cancelFn: cancel,
	}
	te.server = New(Deps{
		Connection:        machine,
		Scanner:           scanner,
		Printer:           printer,
		Board:             board,
		Saved:             te.saved,
		Settings:          settings.NewSettingsManager(db),
		Metrics:           collector.Handler(),
		OnSettingsChanged: func() { te.changed.Add(1) },
	})
	go te.server.Hub().Run(ctx)

	te.http = httptest.NewServer(te.server.Handler())
	t.Cleanup(func() {
		te.http.Close()
		cancel()
		<-done
	})
	return te
}

func (te *testEnv) do(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, te.http.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

var posDevice = map[string]string{"name": "POS-58", "vendorId": "0416", "productId": "5011"}

func TestScanWaitReturnsDevices(t *testing.T) {
	te := newTestEnv(t)

	resp, body := te.do(t, http.MethodPost, "/api/printer/scan?wait=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])

	devices := body["devices"].([]interface{})
	require.Len(t, devices, 2)
	second := devices[1].(map[string]interface{})
	assert.Equal(t, "04b8", second["vendorId"])
	assert.Equal(t, "0e15", second["productId"])

	resp, body = te.do(t, http.MethodGet, "/api/printer/scan", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["devices"], 2)
}

func TestConnectWithoutSelectionConflicts(t *testing.T) {
	te := newTestEnv(t)

	resp, body := te.do(t, http.MethodPost, "/api/printer/connect", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestConnectSavesPrinter(t *testing.T) {
	te := newTestEnv(t)

	resp, body := te.do(t, http.MethodPost, "/api/printer/connect", posDevice)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["connected"])

	last, ok, err := te.saved.Last()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0416", last.VendorID)

	resp, body = te.do(t, http.MethodGet, "/api/printer/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "connected", body["state"])
	assert.Equal(t, "default", body["profile"])
	assert.NotEmpty(t, body["events"])
}

func TestSelectRequiresIDs(t *testing.T) {
	te := newTestEnv(t)

	resp, _ := te.do(t, http.MethodPost, "/api/printer/select", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = te.do(t, http.MethodPost, "/api/printer/select", "{")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = te.do(t, http.MethodGet, "/api/printer/select", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDisconnectWhileDisconnectedConflicts(t *testing.T) {
	te := newTestEnv(t)

	resp, _ := te.do(t, http.MethodPost, "/api/printer/disconnect", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestReconnect(t *testing.T) {
	te := newTestEnv(t)

	resp, _ := te.do(t, http.MethodPost, "/api/printer/select", posDevice)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// 未接続からでも接続できる
	resp, body := te.do(t, http.MethodPost, "/api/printer/reconnect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["connected"])

	resp, body = te.do(t, http.MethodPost, "/api/printer/reconnect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["connected"])
	assert.True(t, te.drv.IsConnected())
}

func TestReconnectResendsPendingJob(t *testing.T) {
	te := newTestEnv(t)

	resp, _ := te.do(t, http.MethodPost, "/api/printer/connect", posDevice)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	te.drv.SetSendError(errors.New("usb stall"))
	resp, _ = te.do(t, http.MethodPost, "/api/printer/print", `[{"type":"text","content":"retry me"}]`)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	te.drv.SetSendError(nil)

	resp, body := te.do(t, http.MethodPost, "/api/printer/reconnect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["connected"])
	assert.NotNil(t, body["active"])

	require.Eventually(t, func() bool { return len(te.drv.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, bytes.Contains(te.drv.Sent()[0], []byte("retry me\n")))

	last, ok, err := te.saved.Last()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0416", last.VendorID)
}

func TestPrintWhileDisconnectedIsPending(t *testing.T) {
	te := newTestEnv(t)
	doc := `[{"type":"text","content":"later"},{"type":"cut"}]`

	resp, body := te.do(t, http.MethodPost, "/api/printer/print", doc)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, body["pending"])

	resp, body = te.do(t, http.MethodGet, "/api/printer/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, body["pending"])

	resp, _ = te.do(t, http.MethodPost, "/api/printer/connect", posDevice)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return len(te.drv.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, bytes.Contains(te.drv.Sent()[0], []byte("later\n")))
}

func TestPrintConnected(t *testing.T) {
	te := newTestEnv(t)
	resp, _ := te.do(t, http.MethodPost, "/api/printer/connect", posDevice)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := te.do(t, http.MethodPost, "/api/printer/print", `[{"type":"text","content":"now","bold":true}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	require.Len(t, te.drv.Sent(), 1)

	resp, _ = te.do(t, http.MethodPost, "/api/printer/test-print", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, te.drv.Sent(), 2)
}

func TestPrintRejectsBadDocuments(t *testing.T) {
	te := newTestEnv(t)

	resp, _ := te.do(t, http.MethodPost, "/api/printer/print", `{"type":"text"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = te.do(t, http.MethodPost, "/api/printer/print", `[{"type":"row","columns":[{"width":3,"text":"x"}]}]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPrintQueue(t *testing.T) {
	te := newTestEnv(t)

	resp, body := te.do(t, http.MethodPost, "/api/printer/print?queue=true", `[{"type":"text","content":"queued"}]`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, body["job_id"])
	assert.Equal(t, 1, te.printer.QueueSize())
}

func TestSavedPrintersAPI(t *testing.T) {
	te := newTestEnv(t)

	resp, body := te.do(t, http.MethodGet, "/api/printer/saved", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["printers"])

	resp, body = te.do(t, http.MethodPost, "/api/printer/saved", posDevice)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["printers"], 1)

	resp, body = te.do(t, http.MethodDelete, "/api/printer/saved", map[string]string{"vendorId": "0x0416", "productId": "5011"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["printers"])
}

func TestSettingsAPI(t *testing.T) {
	te := newTestEnv(t)

	resp, body := te.do(t, http.MethodPost, "/api/settings", map[string]string{"PAPER_SIZE": "80mm"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, int32(1), te.changed.Load())

	resp, body = te.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	paper := body["PAPER_SIZE"].(map[string]interface{})
	assert.Equal(t, "80mm", paper["value"])

	resp, _ = te.do(t, http.MethodPost, "/api/settings", map[string]string{"THRESHOLD": "999"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), te.changed.Load())
}

func TestMetricsAndStatusRoutes(t *testing.T) {
	te := newTestEnv(t)
	te.do(t, http.MethodPost, "/api/printer/connect", posDevice)

	resp, err := http.Get(te.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(buf.String(), metrics.MetricPrinterConnected+" 1"))

	_, body := te.do(t, http.MethodGet, "/status", nil)
	assert.Equal(t, true, body["printerConnected"])
}

func TestCORSPreflight(t *testing.T) {
	te := newTestEnv(t)

	resp, _ := te.do(t, http.MethodOptions, "/api/printer/status", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebSocketReceivesPrinterEvents(t *testing.T) {
	te := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(te.http.URL, "http") + "/ws?clientId=test"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg WSMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "connected", msg.Type)

	te.board.Report(status.Info("hello"))

	for {
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type != "printer_event" {
			continue
		}
		var e status.Event
		require.NoError(t, json.Unmarshal(msg.Data, &e))
		if e.Message == "hello" {
			break
		}
	}
}
