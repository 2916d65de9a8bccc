package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/wrist-pager/internal/gpio"
	"github.com/sweeney/wrist-pager/internal/logic"
	"github.com/sweeney/wrist-pager/internal/mqtt"
	"github.com/sweeney/wrist-pager/internal/orientation"
	"github.com/sweeney/wrist-pager/internal/peer"
	"github.com/sweeney/wrist-pager/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
		"NETWORK_WIFI_RSSI":   envNetworkWifiRSSI,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")
	t.Setenv(envNetworkWifiRSSI, "-67")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}

	if info.Type != "wifi" {
		t.Errorf("Type: got %q, want wifi", info.Type)
	}
	if info.IP != "192.168.1.100" {
		t.Errorf("IP: got %q, want 192.168.1.100", info.IP)
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want connected", info.Status)
	}
	if info.Gateway != "192.168.1.1" {
		t.Errorf("Gateway: got %q, want 192.168.1.1", info.Gateway)
	}
	if info.WifiStatus != "connected" {
		t.Errorf("WifiStatus: got %q, want connected", info.WifiStatus)
	}
	if info.SSID != "MyNetwork" {
		t.Errorf("SSID: got %q, want MyNetwork", info.SSID)
	}
	if info.RSSI == nil || *info.RSSI != -67 {
		t.Errorf("RSSI: got %v, want -67", info.RSSI)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	info := readNetworkInfo()
	if info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want connected", info.Status)
	}
	if info.Type != "" || info.IP != "" || info.SSID != "" {
		t.Errorf("expected empty fields, got %+v", info)
	}
	if info.RSSI != nil {
		t.Errorf("RSSI: got %d, want nil", *info.RSSI)
	}
}

func TestReadNetworkInfoBadRSSI(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkWifiRSSI, "strong")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	if info.RSSI != nil {
		t.Errorf("RSSI: got %d, want nil for unparsable value", *info.RSSI)
	}
}

func TestNewSourceUnknown(t *testing.T) {
	_, err := newSource(context.Background(), options{source: "lidar", tick: 20 * time.Millisecond})
	if err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestNewSwitchReaderStaticOnly(t *testing.T) {
	r, err := newSwitchReader(options{
		pinPaging: -1, pinWiFi: -1, pinPeer: -1,
		paging: true, wifi: false, peerLink: true,
	})
	if err != nil {
		t.Fatalf("newSwitchReader: %v", err)
	}
	states, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !states[logic.SwitchPaging] || states[logic.SwitchWiFi] || !states[logic.SwitchPeerLink] {
		t.Errorf("states: got %v", states)
	}
}

func TestRunRejectsBadOptions(t *testing.T) {
	if err := run(options{pages: 0, tick: time.Millisecond}); err == nil {
		t.Error("expected error for zero pages")
	}
	if err := run(options{pages: 8, tick: 0}); err == nil {
		t.Error("expected error for zero tick")
	}
}

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

func switchStates(paging, wifi, peerLink bool) map[logic.SwitchID]bool {
	return map[logic.SwitchID]bool{
		logic.SwitchPaging:   paging,
		logic.SwitchWiFi:     wifi,
		logic.SwitchPeerLink: peerLink,
	}
}

// faultReader wraps a FakeReader and returns errors for a range of Read() calls.
type faultReader struct {
	inner      *gpio.FakeReader
	call       int
	faultStart int // first call index that returns error (inclusive)
	faultEnd   int // last call index that returns error (exclusive)
}

func (r *faultReader) Read() (map[logic.SwitchID]bool, error) {
	i := r.call
	r.call++
	if i >= r.faultStart && i < r.faultEnd {
		return nil, errors.New("gpio fault")
	}
	return r.inner.Read()
}

func (r *faultReader) Close() error { return r.inner.Close() }

type loopResult struct {
	nav     *logic.Navigator
	tracker *status.Tracker
}

// runRunLoop drives runLoop for nTicks and then delivers signal.
func runRunLoop(t *testing.T, source orientation.Source, reader gpio.Reader, pub *mqtt.FakePublisher, cfg loopConfig, clock func() time.Time, nTicks int, signal os.Signal) (loopResult, error) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := status.NewTracker(start, status.Config{
		TickMs:    20,
		Broker:    "tcp://test:1883",
		PageNames: logic.PageNames(logic.DefaultPageCount),
	})
	nav := logic.NewNavigator(logic.DefaultParams(), logic.DefaultPageCount)
	table := newSettingsTable(nav, pub, newPeerHandler(tracker), tracker)

	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(source, reader, nav, pub, tracker, table, cfg, clock, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	return loopResult{nav: nav, tracker: tracker}, <-errCh
}

func stdClock() func() time.Time {
	return fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond)
}

var stdConfig = loopConfig{debounce: 250 * time.Millisecond}

// restSource holds the wrist still inside the pitch band.
func restSource() orientation.Source {
	return orientation.NewFakeSource(logic.Sample{Pitch: 60, Yaw: 180})
}

func TestRunLoopNoPagesAtRest(t *testing.T) {
	reader := gpio.NewFakeReader(switchStates(true, true, false))
	pub := mqtt.NewFakePublisher()

	res, err := runRunLoop(t, restSource(), reader, pub, stdConfig, stdClock(), 200, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Pages) != 0 {
		t.Errorf("expected 0 page events, got %d", len(pub.Pages))
	}
	if len(pub.SystemEvents) != 1 || pub.SystemEvents[0].Event != "SHUTDOWN" {
		t.Fatalf("expected only SHUTDOWN, got %+v", pub.SystemEvents)
	}
	snap := res.tracker.Snapshot()
	if !snap.SwitchesReady {
		t.Error("expected switches baselined")
	}
	if snap.Nav.Deck.Current != 0 {
		t.Errorf("page: got %d, want 0", snap.Nav.Deck.Current)
	}
}

func TestRunLoopMockGestureTurnsPage(t *testing.T) {
	reader := gpio.NewFakeReader(switchStates(true, true, false))
	pub := mqtt.NewFakePublisher()

	res, err := runRunLoop(t, orientation.NewMockSource(), reader, pub, stdConfig, stdClock(), 300, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Pages) != 1 {
		t.Fatalf("expected 1 page event, got %d", len(pub.Pages))
	}
	change := pub.Pages[0].Change
	if change.Gesture != logic.GestureRight || change.Page != 1 || change.Previous != 0 {
		t.Errorf("change: got %+v, want RIGHT 0 -> 1", change)
	}

	var sentPage bool
	for _, m := range pub.Sent {
		if m.Topic == mqtt.Topic {
			sentPage = true
		}
	}
	if !sentPage {
		t.Error("expected the page event on the wire")
	}

	snap := res.tracker.Snapshot()
	if snap.Nav.Deck.Current != 1 {
		t.Errorf("tracker page: got %d, want 1", snap.Nav.Deck.Current)
	}
	if snap.LastChange == nil || snap.LastChange.Change.Page != 1 {
		t.Errorf("last change: got %+v", snap.LastChange)
	}
	if snap.Nav.Counts.Right != 1 {
		t.Errorf("right count: got %d, want 1", snap.Nav.Counts.Right)
	}
}

func TestRunLoopPagingSwitchOff(t *testing.T) {
	reader := gpio.NewFakeReader(switchStates(false, true, false))
	pub := mqtt.NewFakePublisher()

	res, err := runRunLoop(t, orientation.NewMockSource(), reader, pub, stdConfig, stdClock(), 300, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Pages) != 0 {
		t.Errorf("expected no page events with paging off, got %d", len(pub.Pages))
	}
	if res.nav.Enabled() {
		t.Error("expected navigator disabled")
	}
}

func TestRunLoopUplinkOffBuffers(t *testing.T) {
	reader := gpio.NewFakeReader(switchStates(true, false, false))
	pub := mqtt.NewFakePublisher()

	res, err := runRunLoop(t, orientation.NewMockSource(), reader, pub, stdConfig, stdClock(), 300, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Pages) != 1 {
		t.Fatalf("expected 1 page event recorded, got %d", len(pub.Pages))
	}
	for _, m := range pub.Sent {
		if m.Topic == mqtt.Topic {
			t.Error("page event sent while uplink was off")
		}
	}
	// page change + SHUTDOWN
	if pub.Buffered() != 2 {
		t.Errorf("buffered: got %d, want 2", pub.Buffered())
	}
	snap := res.tracker.Snapshot()
	if snap.MQTT.Uplink {
		t.Error("tracker should report uplink off")
	}
	if snap.MQTT.Buffered != 1 {
		t.Errorf("tracker buffered: got %d, want 1 (before shutdown)", snap.MQTT.Buffered)
	}
}

func TestRunLoopUplinkBackOnFlushes(t *testing.T) {
	samples := []map[logic.SwitchID]bool{}
	for i := 0; i < 300; i++ {
		samples = append(samples, switchStates(true, false, false))
	}
	samples = append(samples, switchStates(true, true, false))
	reader := gpio.NewFakeReader(samples...)
	pub := mqtt.NewFakePublisher()

	_, err := runRunLoop(t, orientation.NewMockSource(), reader, pub, stdConfig, stdClock(), 310, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if pub.Buffered() != 0 {
		t.Errorf("buffered: got %d, want 0 after uplink on", pub.Buffered())
	}
	if len(pub.Sent) != 2 || pub.Sent[0].Topic != mqtt.Topic || pub.Sent[1].Topic != mqtt.TopicSystem {
		t.Errorf("sent: got %+v, want page then SHUTDOWN", pub.Sent)
	}
}

func TestRunLoopPeerLinkSubscribes(t *testing.T) {
	reader := gpio.NewFakeReader(switchStates(true, true, true))
	pub := mqtt.NewFakePublisher()

	res, err := runRunLoop(t, restSource(), reader, pub, stdConfig, stdClock(), 10, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if pub.PeerHandler == nil {
		t.Fatal("expected peer subscription with the peer link on")
	}
	pub.PeerHandler(peer.Encode(peer.Message{Text: "hello", Int: 42, Float: 1.5, Bool: true}))
	pub.PeerHandler([]byte("short"))

	snap := res.tracker.Snapshot()
	if snap.Peer == nil {
		t.Fatal("expected peer message on the tracker")
	}
	if snap.Peer.Text != "hello" || snap.Peer.Int != 42 || !snap.Peer.Bool {
		t.Errorf("peer: got %+v", snap.Peer)
	}
	if snap.PeerFrames != (status.PeerStats{Received: 1, Dropped: 1}) {
		t.Errorf("peer frames: got %+v, want 1 received 1 dropped", snap.PeerFrames)
	}
}

func TestRunLoopPeerLinkToggledOff(t *testing.T) {
	reader := gpio.NewFakeReader(
		switchStates(true, true, true),
		switchStates(true, true, true),
		switchStates(true, true, true),
		switchStates(true, true, true),
		switchStates(true, true, false),
	)
	pub := mqtt.NewFakePublisher()

	_, err := runRunLoop(t, restSource(), reader, pub, stdConfig, stdClock(), 12, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if pub.PeerHandler != nil {
		t.Error("expected peer subscription dropped after the switch turned off")
	}
}

func TestRunLoopPeerSubscribeErrorKeepsRunning(t *testing.T) {
	reader := gpio.NewFakeReader(switchStates(true, true, true))
	pub := mqtt.NewFakePublisher()
	pub.SubscribeError = fmt.Errorf("not authorized")

	_, err := runRunLoop(t, restSource(), reader, pub, stdConfig, stdClock(), 10, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(pub.SystemEvents) != 1 || pub.SystemEvents[0].Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN despite subscribe error, got %+v", pub.SystemEvents)
	}
}

func TestRunLoopPoseStream(t *testing.T) {
	reader := gpio.NewFakeReader(switchStates(true, true, false))
	pub := mqtt.NewFakePublisher()
	cfg := loopConfig{debounce: 250 * time.Millisecond, poseEvery: 10}

	_, err := runRunLoop(t, restSource(), reader, pub, cfg, stdClock(), 30, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Poses) != 3 {
		t.Fatalf("expected 3 poses, got %d", len(pub.Poses))
	}
	if pub.Poses[0].Sample.Pitch != 60 {
		t.Errorf("pose pitch: got %v, want 60", pub.Poses[0].Sample.Pitch)
	}
}

func TestRunLoopGPIOReadError(t *testing.T) {
	inner := gpio.NewFakeReader(switchStates(true, true, false))
	reader := &faultReader{inner: inner, faultStart: 2, faultEnd: 4}
	pub := mqtt.NewFakePublisher()

	_, err := runRunLoop(t, restSource(), reader, pub, stdConfig, stdClock(), 4, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	found := false
	for _, se := range pub.SystemEvents {
		if se.Event == "SHUTDOWN" {
			found = true
		}
	}
	if !found {
		t.Error("expected SHUTDOWN system event after GPIO errors")
	}
}

func TestRunLoopGPIOErrorsDoNotStopNavigation(t *testing.T) {
	inner := gpio.NewFakeReader(switchStates(true, true, false))
	reader := &faultReader{inner: inner, faultStart: 0, faultEnd: 1000}
	pub := mqtt.NewFakePublisher()

	res, err := runRunLoop(t, orientation.NewMockSource(), reader, pub, stdConfig, stdClock(), 300, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(pub.Pages) != 1 {
		t.Errorf("expected 1 page event, got %d", len(pub.Pages))
	}
	if res.tracker.Snapshot().SwitchesReady {
		t.Error("switches should not be baselined while every read fails")
	}
}

func TestRunLoopPublishError(t *testing.T) {
	reader := gpio.NewFakeReader(switchStates(true, true, false))
	pub := mqtt.NewFakePublisher()
	pub.PublishError = fmt.Errorf("broker unavailable")

	res, err := runRunLoop(t, orientation.NewMockSource(), reader, pub, stdConfig, stdClock(), 300, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Pages) != 0 {
		t.Errorf("expected 0 recorded pages (publish failed), got %d", len(pub.Pages))
	}
	if res.tracker.Snapshot().Nav.Deck.Current != 1 {
		t.Error("page should still change when publishing fails")
	}
	found := false
	for _, se := range pub.SystemEvents {
		if se.Event == "SHUTDOWN" {
			found = true
		}
	}
	if !found {
		t.Error("expected SHUTDOWN system event despite publish errors")
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// Clock calls: t0 start, ticks at +5m, +10m, +15m, +20m.
	// Switches baseline at +15m (10m after the first reading), where the
	// 15m heartbeat is also due.
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkWifiRSSI, "-30")

	reader := gpio.NewFakeReader(switchStates(true, true, false))
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 5*time.Minute)
	cfg := loopConfig{debounce: 10 * time.Minute, heartbeat: 15 * time.Minute}

	_, err := runRunLoop(t, restSource(), reader, pub, cfg, clock, 4, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var heartbeats, shutdowns int
	for i, se := range pub.SystemEvents {
		switch se.Event {
		case "HEARTBEAT":
			heartbeats++
			var sj status.StatusJSON
			if err := json.Unmarshal(pub.SystemPayloads[i], &sj); err != nil {
				t.Fatalf("decode heartbeat: %v", err)
			}
			if sj.Status.Event != "HEARTBEAT" {
				t.Errorf("event: got %q, want HEARTBEAT", sj.Status.Event)
			}
			if sj.Status.UptimeSeconds <= 0 {
				t.Errorf("expected positive uptime, got %d", sj.Status.UptimeSeconds)
			}
			if sj.Status.Network == nil || sj.Status.Network.Bars == nil || *sj.Status.Network.Bars != 3 {
				t.Errorf("expected network with 3 signal bars, got %+v", sj.Status.Network)
			}
		case "SHUTDOWN":
			shutdowns++
		}
	}
	if heartbeats != 1 {
		t.Errorf("expected 1 HEARTBEAT event, got %d", heartbeats)
	}
	if shutdowns != 1 {
		t.Errorf("expected 1 SHUTDOWN event, got %d", shutdowns)
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	reader := gpio.NewFakeReader(switchStates(true, true, false))
	pub := mqtt.NewFakePublisher()

	_, err := runRunLoop(t, restSource(), reader, pub, stdConfig, stdClock(), 4, syscall.SIGINT)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	se := pub.SystemEvents[0]
	if se.Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN, got %q", se.Event)
	}
	if se.Reason != "SIGINT" {
		t.Errorf("expected reason SIGINT, got %q", se.Reason)
	}
	if !se.Retained {
		t.Error("expected Retained=true for SHUTDOWN")
	}
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	reader := gpio.NewFakeReader(switchStates(true, true, false))
	pub := mqtt.NewFakePublisher()

	_, err := runRunLoop(t, restSource(), reader, pub, stdConfig, stdClock(), 4, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	se := pub.SystemEvents[len(pub.SystemEvents)-1]
	if se.Event != "SHUTDOWN" || se.Reason != "SIGTERM" {
		t.Errorf("expected SHUTDOWN/SIGTERM, got %s/%s", se.Event, se.Reason)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(pub.SystemPayloads[len(pub.SystemPayloads)-1], &sj); err != nil {
		t.Fatalf("decode shutdown: %v", err)
	}
	if sj.Status.Reason != "SIGTERM" {
		t.Errorf("payload reason: got %q, want SIGTERM", sj.Status.Reason)
	}
}
