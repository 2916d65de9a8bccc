// Command wrist-pager turns wrist-rock gestures into page changes and
// publishes them to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sweeney/wrist-pager/internal/gpio"
	"github.com/sweeney/wrist-pager/internal/logic"
	"github.com/sweeney/wrist-pager/internal/mqtt"
	"github.com/sweeney/wrist-pager/internal/orientation"
	"github.com/sweeney/wrist-pager/internal/peer"
	"github.com/sweeney/wrist-pager/internal/settings"
	"github.com/sweeney/wrist-pager/internal/status"
	"github.com/sweeney/wrist-pager/internal/web"
)

type options struct {
	tick      time.Duration
	debounce  time.Duration
	heartbeat time.Duration

	broker     string
	clientID   string
	bufferSize int

	source     string
	spiDevice  string
	csPin      string
	accelRange uint
	gyroRange  uint
	calibrate  bool
	beta       float64
	serialPort string
	baud       uint

	gpioChip  string
	pinPaging int
	pinWiFi   int
	pinPeer   int
	paging    bool
	wifi      bool
	peerLink  bool

	pages      int
	poseEvery  int
	params     logic.Params
	httpAddr   string
	wsInterval time.Duration
	printState bool
}

func main() {
	var o options
	o.params = logic.DefaultParams()

	flag.DurationVar(&o.tick, "tick", 20*time.Millisecond, "Navigator tick interval")
	flag.DurationVar(&o.debounce, "debounce", 250*time.Millisecond, "Switch debounce duration")
	flag.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&o.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.StringVar(&o.clientID, "client-id", "wrist-pager", "MQTT client ID")
	flag.IntVar(&o.bufferSize, "buffer", mqtt.DefaultBufferSize, "Messages held while the uplink is off")

	flag.StringVar(&o.source, "source", "mock", "Orientation source: mock, mpu9250 or serial")
	flag.StringVar(&o.spiDevice, "spi", "/dev/spidev0.0", "MPU9250 SPI device")
	flag.StringVar(&o.csPin, "cs", "8", "MPU9250 chip-select GPIO")
	flag.UintVar(&o.accelRange, "accel-range", 0, "MPU9250 accel range index (0-3: 2/4/8/16 g)")
	flag.UintVar(&o.gyroRange, "gyro-range", 0, "MPU9250 gyro range index (0-3: 250/500/1000/2000 dps)")
	flag.BoolVar(&o.calibrate, "calibrate", false, "Run MPU9250 self-calibration at startup (keep still)")
	flag.Float64Var(&o.beta, "beta", orientation.DefaultBeta, "Madgwick filter gain")
	flag.StringVar(&o.serialPort, "serial", "/dev/ttyUSB0", "Serial port streaming roll/pitch/yaw lines")
	flag.UintVar(&o.baud, "baud", 115200, "Serial baud rate")

	flag.StringVar(&o.gpioChip, "gpio-chip", "gpiochip0", "GPIO character device")
	flag.IntVar(&o.pinPaging, "pin-paging", gpio.PinPaging, "BCM pin for the paging switch (-1 uses -paging)")
	flag.IntVar(&o.pinWiFi, "pin-wifi", gpio.PinWiFi, "BCM pin for the WiFi uplink switch (-1 uses -wifi)")
	flag.IntVar(&o.pinPeer, "pin-peer", gpio.PinPeerLink, "BCM pin for the peer link switch (-1 uses -peer)")
	flag.BoolVar(&o.paging, "paging", true, "Paging state when no pin is wired")
	flag.BoolVar(&o.wifi, "wifi", true, "Uplink state when no pin is wired")
	flag.BoolVar(&o.peerLink, "peer", false, "Peer link state when no pin is wired")

	flag.IntVar(&o.pages, "pages", logic.DefaultPageCount, "Number of pages in the deck")
	flag.IntVar(&o.poseEvery, "pose-every", 25, "Publish the pose every N ticks (0 to disable)")
	flag.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.DurationVar(&o.wsInterval, "ws-interval", web.DefaultFeedInterval, "Websocket status push interval")
	flag.BoolVar(&o.printState, "print-state", false, "Print switch states and one orientation sample, then exit")

	flag.Float64Var(&o.params.PitchBandMin, "pitch-min", o.params.PitchBandMin, "Gimbal guard: lower pitch bound (exclusive)")
	flag.Float64Var(&o.params.PitchBandMax, "pitch-max", o.params.PitchBandMax, "Gimbal guard: upper pitch bound (exclusive)")
	flag.Float64Var(&o.params.RollThreshold, "roll-threshold", o.params.RollThreshold, "Minimum roll delta for a rotation tick")
	flag.Float64Var(&o.params.YawDeltaMin, "yaw-min", o.params.YawDeltaMin, "Yaw delta band lower bound")
	flag.Float64Var(&o.params.YawDeltaMax, "yaw-max", o.params.YawDeltaMax, "Yaw delta band upper bound")
	flag.UintVar(&o.params.IdleResetTicks, "idle-ticks", o.params.IdleResetTicks, "Idle ticks before stale counters are cleared")
	flag.UintVar(&o.params.CooldownTicks, "cooldown-ticks", o.params.CooldownTicks, "Ticks a page change blocks new gestures")
	flag.IntVar(&o.params.TransitionMs, "transition-ms", o.params.TransitionMs, "Page transition duration")

	flag.Parse()

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// pagerLink is everything the loop needs from the MQTT side.
type pagerLink interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
	mqtt.Uplink
	mqtt.PeerLink
}

func run(o options) error {
	if o.pages < 1 {
		return fmt.Errorf("pages must be at least 1, got %d", o.pages)
	}
	if o.tick <= 0 {
		return fmt.Errorf("tick must be positive, got %v", o.tick)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switches, err := newSwitchReader(o)
	if err != nil {
		return fmt.Errorf("init switches: %w", err)
	}
	defer switches.Close()

	source, err := newSource(ctx, o)
	if err != nil {
		return fmt.Errorf("init orientation: %w", err)
	}

	if o.printState {
		return printState(switches, source, o.tick)
	}

	publisher := mqtt.NewRealPublisher(mqtt.Config{
		Broker:     o.broker,
		ClientID:   o.clientID,
		BufferSize: o.bufferSize,
	})
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:      o.tick.Milliseconds(),
		DebounceMs:  o.debounce.Milliseconds(),
		HeartbeatMs: o.heartbeat.Milliseconds(),
		Broker:      o.broker,
		HTTPPort:    o.httpAddr,
		Source:      o.source,
		PoseEvery:   o.poseEvery,
		PageNames:   logic.PageNames(o.pages),
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	nav := logic.NewNavigator(o.params, o.pages)
	table := newSettingsTable(nav, publisher, newPeerHandler(tracker), tracker)

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker, o.wsInterval)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", o.httpAddr)
	}

	log.Printf("started: source=%s tick=%v pages=%d debounce=%v broker=%s heartbeat=%v",
		o.source, o.tick, o.pages, o.debounce, o.broker, o.heartbeat)

	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	cfg := loopConfig{debounce: o.debounce, heartbeat: o.heartbeat, poseEvery: o.poseEvery}
	return runLoop(source, switches, nav, publisher, tracker, table, cfg, time.Now, ticker.C, sigCh)
}

// newSource builds the orientation source and starts its producer.
func newSource(ctx context.Context, o options) (orientation.Source, error) {
	switch o.source {
	case "mock":
		return orientation.NewMockSource(), nil

	case "mpu9250":
		reader, err := orientation.NewMPU9250Reader(orientation.MPU9250Config{
			SPIDevice:  o.spiDevice,
			CSPin:      o.csPin,
			AccelRange: byte(o.accelRange),
			GyroRange:  byte(o.gyroRange),
			Calibrate:  o.calibrate,
		})
		if err != nil {
			return nil, err
		}
		src := orientation.NewFusedSource(reader, 1/o.tick.Seconds(), o.beta)
		go src.Run(ctx, o.tick)
		return src, nil

	case "serial":
		src, err := orientation.OpenSerial(o.serialPort, o.baud)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := src.Run(ctx); err != nil {
				log.Printf("serial: stopped: %v", err)
			}
		}()
		return src, nil
	}
	return nil, fmt.Errorf("unknown source %q (want mock, mpu9250 or serial)", o.source)
}

// newSwitchReader reads wired switches from GPIO and fills the rest from
// the static flags.
func newSwitchReader(o options) (gpio.Reader, error) {
	pins := map[logic.SwitchID]int{
		logic.SwitchPaging:   o.pinPaging,
		logic.SwitchWiFi:     o.pinWiFi,
		logic.SwitchPeerLink: o.pinPeer,
	}
	static := map[logic.SwitchID]bool{
		logic.SwitchPaging:   o.paging,
		logic.SwitchWiFi:     o.wifi,
		logic.SwitchPeerLink: o.peerLink,
	}

	wired := make(map[logic.SwitchID]int)
	for id, pin := range pins {
		if pin >= 0 {
			wired[id] = pin
		}
	}
	if len(wired) == 0 {
		return gpio.NewStaticReader(static), nil
	}

	pinReader, err := gpio.NewRealReader(o.gpioChip, wired)
	if err != nil {
		return nil, err
	}
	return gpio.NewMultiReader(gpio.NewStaticReader(static), pinReader), nil
}

// newPeerHandler decodes peer frames onto the status page, along with
// the received and dropped counts.
func newPeerHandler(tracker *status.Tracker) func(frame []byte) {
	receiver := peer.NewReceiver(func(m peer.Message) {
		tracker.SetPeerMessage(status.PeerMessage{
			Text:       m.Text,
			Int:        m.Int,
			Float:      m.Float,
			Bool:       m.Bool,
			ReceivedAt: time.Now(),
		})
	})
	return func(frame []byte) {
		receiver.HandleFrame(frame)
		tracker.SetPeerStats(receiver.Stats())
	}
}

// newSettingsTable wires each settings switch to its effect.
func newSettingsTable(nav *logic.Navigator, link pagerLink, onPeerFrame func([]byte), tracker *status.Tracker) *settings.Table {
	table := settings.NewTable()
	table.Register(logic.SwitchPaging, func(on bool) error {
		nav.SetEnabled(on)
		return nil
	})
	table.Register(logic.SwitchWiFi, func(on bool) error {
		link.SetUplink(on)
		if tracker != nil {
			tracker.SetUplink(on, link.Buffered())
		}
		return nil
	})
	table.Register(logic.SwitchPeerLink, func(on bool) error {
		if on {
			return link.SubscribePeer(onPeerFrame)
		}
		return link.UnsubscribePeer()
	})
	return table
}

type loopConfig struct {
	debounce  time.Duration
	heartbeat time.Duration
	poseEvery int
}

var switchOrder = []logic.SwitchID{logic.SwitchPaging, logic.SwitchWiFi, logic.SwitchPeerLink}

func runLoop(source orientation.Source, switches gpio.Reader, nav *logic.Navigator, link pagerLink, tracker *status.Tracker, table *settings.Table, cfg loopConfig, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	detector := logic.NewSwitchDetector(cfg.debounce, switchOrder...)
	heartbeat := logic.NewHeartbeat(startTime)
	var ticks int

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				refreshLink(tracker, link)
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if !link.UplinkEnabled() {
				log.Printf("uplink off, shutdown event stays buffered")
			}
			if err := link.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			ticks++

			if states, err := switches.Read(); err != nil {
				log.Printf("gpio read error: %v", err)
			} else {
				for _, ev := range detector.Process(states, t) {
					log.Printf("switch: %s=%s", ev.Switch, onOff(ev.On))
					if err := table.ApplyEvent(ev); err != nil {
						log.Printf("settings error: %v", err)
					}
				}
			}

			sample := source.Latest()
			if change := nav.Tick(sample); change != nil {
				log.Printf("gesture: %s page=%d previous=%d", change.Gesture, change.Page, change.Previous)
				if err := link.PublishPage(mqtt.PageEvent{Timestamp: t, Change: *change}); err != nil {
					log.Printf("publish error: %v", err)
				}
				if tracker != nil {
					tracker.RecordPageChange(t, *change)
				}
			}

			if cfg.poseEvery > 0 && ticks%cfg.poseEvery == 0 {
				if err := link.PublishPose(mqtt.PoseEvent{Timestamp: t, Sample: sample}); err != nil {
					log.Printf("pose publish error: %v", err)
				}
			}

			if tracker != nil {
				tracker.Update(status.NavState{
					Deck:    nav.Deck(),
					Enabled: nav.Enabled(),
					Gesture: nav.State(),
					Counts:  nav.Counts(),
					Pose:    sample,
				})
				current := make(map[logic.SwitchID]bool, len(switchOrder))
				for _, id := range switchOrder {
					current[id] = detector.Current(id)
				}
				tracker.SetSwitches(current, detector.IsBaselined())
				refreshLink(tracker, link)
			}

			if !detector.IsBaselined() {
				// Still waiting for baseline
				continue
			}

			if hbData := heartbeat.CheckHeartbeat(t, cfg.heartbeat, nav.Counts()); hbData != nil {
				log.Printf("heartbeat: uptime=%v left=%d right=%d idle_resets=%d invalid=%d",
					hbData.Uptime, hbData.Counts.Left, hbData.Counts.Right, hbData.Counts.IdleResets, hbData.Counts.Invalid)

				hbEvent := mqtt.SystemEvent{
					Timestamp: hbData.Timestamp,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					snap := tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := link.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

func refreshLink(tracker *status.Tracker, link pagerLink) {
	tracker.SetMQTTConnected(link.IsConnected())
	tracker.SetUplink(link.UplinkEnabled(), link.Buffered())
}

func printState(switches gpio.Reader, source orientation.Source, wait time.Duration) error {
	states, err := switches.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	parts := make([]string, 0, len(switchOrder))
	for _, id := range switchOrder {
		parts = append(parts, fmt.Sprintf("%s: %s", id, onOff(states[id])))
	}
	fmt.Println(strings.Join(parts, ", "))

	// Give a producer goroutine one interval to deliver a reading
	time.Sleep(wait)
	s := source.Latest()
	fmt.Printf("roll: %.2f, pitch: %.2f, yaw: %.2f\n", s.Roll, s.Pitch, s.Yaw)
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
	envNetworkWifiRSSI   = "NETWORK_WIFI_RSSI"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	info := &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
	if v := os.Getenv(envNetworkWifiRSSI); v != "" {
		if rssi, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			info.RSSI = &rssi
		} else {
			log.Printf("network: ignoring %s=%q: %v", envNetworkWifiRSSI, v, err)
		}
	}
	return info
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
