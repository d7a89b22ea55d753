package devices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/framehub/artframe/internal/store"
)

var ErrNotFound = errors.New("device not found")

// Voltage rise above this between two posts means the charger is attached
// even when the device doesn't say so.
const voltageRiseThreshold = 0.15

// A device claiming to charge while the battery trend is flat (average Δv at
// or below this over the last trendWindow samples) is overridden to
// discharging; frames report phantom charging when USB supplies no current.
// The claim is only believed once the trend corroborates it, so a first
// sample with no history counts as flat — a device that never truly charges
// must never stamp a charge timestamp.
const (
	trendFlatThreshold = 0.01
	trendWindow        = 5
)

// Low-battery notification thresholds, percent, descending.
var lowBatteryThresholds = []float64{30, 15}

// Notifier receives fire-and-forget telemetry events. Implementations must
// not block.
type Notifier interface {
	LowBattery(deviceID string, percent float64)
	Event(deviceID, kind string, detail map[string]any)
}

// Registry ingests device status posts and maintains the telemetry records.
type Registry struct {
	store    store.Store
	log      *slog.Logger
	notifier Notifier
	now      func() time.Time
}

func NewRegistry(st store.Store, notifier Notifier, log *slog.Logger) *Registry {
	return &Registry{store: st, log: log, notifier: notifier, now: time.Now}
}

type deviceMap map[string]*Device

func decodeDevices(raw []byte) (deviceMap, error) {
	m := deviceMap{}
	if raw == nil {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode devices: %w", err)
	}
	return m, nil
}

// Ingest applies one status post as a single logical update of the device
// record. Concurrent posts for the same device serialize on the store's
// per-entity update lock. Notifications fire after the record is durable.
func (r *Registry) Ingest(ctx context.Context, report StatusReport) (*Device, error) {
	if report.DeviceID == "" {
		return nil, fmt.Errorf("missing deviceId")
	}

	var (
		updated *Device
		notify  []func()
	)
	err := r.store.Update(ctx, store.EntityDevices, func(cur []byte) ([]byte, error) {
		all, err := decodeDevices(cur)
		if err != nil {
			return nil, err
		}
		dev := all[report.DeviceID]
		if dev == nil {
			dev = &Device{DeviceID: report.DeviceID}
			all[report.DeviceID] = dev
		}
		notify = r.apply(dev, report)
		updated = dev
		return json.Marshal(all)
	})
	if err != nil {
		return nil, err
	}

	// Best-effort side effects; never on the device's critical path.
	for _, fn := range notify {
		go fn()
	}
	return updated, nil
}

// apply mutates dev per one status report and returns the deferred
// notifications. Pure state-machine logic; no I/O.
func (r *Registry) apply(dev *Device, report StatusReport) []func() {
	now := r.now().UTC()
	st := report.Status
	var notify []func()

	prev := *dev // shallow copy of scalars for edge detection
	prevVoltage := dev.Voltage
	hadVoltage := len(dev.BatteryHistory) > 0

	// 1. Battery percent: device-supplied wins, else the discharge curve.
	voltage := st.BatteryVoltage
	percent := dev.Percent
	if st.BatteryPercent != nil {
		percent = *st.BatteryPercent
	} else if voltage > 0 {
		percent = VoltageToPercent(voltage)
	}

	// 2. Charging, three-source priority.
	charging := dev.IsCharging
	source := dev.ChargingSource
	switch {
	case st.IsCharging != nil:
		charging = *st.IsCharging
		source = ChargeSourceESP32
	case hadVoltage && voltage > 0 && voltage-prevVoltage > voltageRiseThreshold:
		charging = true
		source = ChargeSourceVoltageRise
	}
	if charging && st.IsCharging != nil && voltage > 0 {
		if avg, deltas := recentTrend(dev.BatteryHistory, voltage); deltas == 0 || avg <= trendFlatThreshold {
			charging = false
			source = ChargeSourceTrendOverride
		}
	}
	if source == "" {
		source = ChargeSourceNone
	}

	// 3. Edges.
	if !prev.IsCharging && charging {
		t := now
		dev.LastChargeTimestamp = &t
		r.log.Info("charger attached", "deviceId", dev.DeviceID, "voltage", voltage)
		notify = append(notify, r.eventFn(dev.DeviceID, "charge_start", map[string]any{"voltage": voltage}))
	}
	if prev.IsCharging && !charging {
		// Off the charger: a new discharge session begins.
		if dev.CurrentSession != nil {
			r.closeSession(dev, voltage, percent, now)
		}
		dev.CurrentSession = &BatterySession{
			Start:        now,
			StartVoltage: voltage,
			StartPercent: percent,
		}
		r.log.Info("discharge session opened", "deviceId", dev.DeviceID, "voltage", voltage)
	}
	if !prev.IsCharging && charging && dev.CurrentSession != nil {
		r.closeSession(dev, voltage, percent, now)
	}

	dev.IsCharging = charging
	dev.ChargingSource = source
	if voltage > 0 {
		dev.Voltage = voltage
	}
	dev.Percent = percent
	dev.LastSeen = now

	// 4. Histories.
	isDisplay := strings.HasPrefix(st.Status, "display")
	if voltage > 0 {
		dev.BatteryHistory = appendBounded(dev.BatteryHistory, BatterySample{
			T: now, V: voltage, Charging: charging, IsDisplayUpdate: isDisplay,
		}, maxBatteryHistory)
	}
	if st.SignalStrength != nil {
		dev.SignalStrength = *st.SignalStrength
		dev.SignalHistory = appendBounded(dev.SignalHistory, SignalSample{
			T: now, RSSI: *st.SignalStrength,
		}, maxSignalHistory)
	}

	// 5. Firmware transitions.
	if st.FirmwareVersion != "" {
		if dev.FirmwareVersion != "" && dev.FirmwareVersion != st.FirmwareVersion {
			dev.OTAHistory = appendBounded(dev.OTAHistory, OTAEvent{
				T: now, FromVersion: dev.FirmwareVersion, ToVersion: st.FirmwareVersion, Success: true,
			}, maxOTAEvents)
			dev.UsageStats.TotalOTAUpdates++
			r.log.Info("firmware updated", "deviceId", dev.DeviceID,
				"from", dev.FirmwareVersion, "to", st.FirmwareVersion)
			notify = append(notify, r.eventFn(dev.DeviceID, "ota_success", map[string]any{
				"from": dev.FirmwareVersion, "to": st.FirmwareVersion,
			}))
		}
		dev.FirmwareVersion = st.FirmwareVersion
	}
	if st.Status == "ota_failed" && prev.LastStatus != "ota_failed" {
		dev.OTAHistory = appendBounded(dev.OTAHistory, OTAEvent{
			T: now, FromVersion: dev.FirmwareVersion, ToVersion: "", Success: false,
			Error: "device reported ota_failed",
		}, maxOTAEvents)
		notify = append(notify, r.eventFn(dev.DeviceID, "ota_failed", nil))
	}

	// 6. Brownouts.
	if st.BrownoutCount != nil && *st.BrownoutCount > dev.BrownoutCount {
		evt := BrownoutEvent{T: now, Count: *st.BrownoutCount}
		if s := dev.CurrentSession; s != nil {
			evt.DisplayUpdatesInSession = s.DisplayUpdates
			evt.WakesInSession = s.Wakes
		}
		dev.BrownoutHistory = appendBounded(dev.BrownoutHistory, evt, maxBrownouts)
		dev.BrownoutCount = *st.BrownoutCount
		r.log.Warn("brownout detected", "deviceId", dev.DeviceID, "count", *st.BrownoutCount)
		notify = append(notify, r.eventFn(dev.DeviceID, "brownout", map[string]any{"count": *st.BrownoutCount}))
	}

	// 7. Operation sample: attribute a voltage drop to what the device was
	// doing. Only meaningful off-charger with a known prior voltage.
	dev.UsageStats.TotalWakes++
	if s := dev.CurrentSession; s != nil {
		s.Wakes++
	}
	if !charging && hadVoltage && voltage > 0 && voltage < prevVoltage {
		drop := round3(prevVoltage - voltage)
		opType := classifyOperation(st.Status)
		sample := OperationSample{
			T: now, Type: opType,
			VBefore: prevVoltage, VAfter: voltage, Drop: drop,
			FW: dev.FirmwareVersion,
		}
		if st.SignalStrength != nil {
			sample.RSSI = *st.SignalStrength
		}
		dev.OperationSamples = appendBounded(dev.OperationSamples, sample, maxOperations)

		switch opType {
		case OpDisplay:
			dev.UsageStats.TotalDisplayUpdates++
			dev.UsageStats.DisplayDropTotal = round3(dev.UsageStats.DisplayDropTotal + drop)
			if s := dev.CurrentSession; s != nil {
				s.DisplayUpdates++
			}
		case OpOTA:
			dev.UsageStats.OTADropTotal = round3(dev.UsageStats.OTADropTotal + drop)
			if s := dev.CurrentSession; s != nil {
				s.OTAUpdates++
			}
		default:
			dev.UsageStats.WakeDropTotal = round3(dev.UsageStats.WakeDropTotal + drop)
		}
		if s := dev.CurrentSession; s != nil {
			s.DropTotal = round3(s.DropTotal + drop)
		}
	}

	// 8. Low-battery crossings, downward only, never while charging.
	if !charging && prev.Percent > 0 {
		for _, threshold := range lowBatteryThresholds {
			if prev.Percent > threshold && percent <= threshold {
				p := percent
				notify = append(notify, func() { r.notifier.LowBattery(dev.DeviceID, p) })
				r.log.Warn("battery low", "deviceId", dev.DeviceID, "percent", percent)
				break
			}
		}
	}

	dev.LastStatus = st.Status
	return notify
}

func (r *Registry) closeSession(dev *Device, voltage, percent float64, now time.Time) {
	s := dev.CurrentSession
	end := now
	s.End = &end
	s.EndVoltage = voltage
	s.EndPercent = percent
	dev.BatterySessions = appendBounded(dev.BatterySessions, *s, maxClosedSessions)
	dev.CurrentSession = nil
}

func (r *Registry) eventFn(deviceID, kind string, detail map[string]any) func() {
	return func() { r.notifier.Event(deviceID, kind, detail) }
}

// recentTrend averages the sample-to-sample voltage deltas over the last
// trendWindow samples, with next appended as the newest. deltas is how many
// intervals were available; zero means next is the first sample ever.
func recentTrend(history []BatterySample, next float64) (avg float64, deltas int) {
	vs := make([]float64, 0, trendWindow)
	start := len(history) - (trendWindow - 1)
	if start < 0 {
		start = 0
	}
	for _, s := range history[start:] {
		vs = append(vs, s.V)
	}
	vs = append(vs, next)
	deltas = len(vs) - 1
	if deltas == 0 {
		return 0, 0
	}
	var sum float64
	for i := 1; i < len(vs); i++ {
		sum += vs[i] - vs[i-1]
	}
	return sum / float64(deltas), deltas
}

func classifyOperation(status string) string {
	switch {
	case strings.HasPrefix(status, "display"):
		return OpDisplay
	case strings.HasPrefix(status, "ota"):
		return OpOTA
	default:
		return OpWake
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// dischargeCurve maps voltage to percent, highest first.
var dischargeCurve = []struct {
	v float64
	p float64
}{
	{4.2, 100}, {4.0, 80}, {3.7, 50}, {3.5, 30}, {3.3, 10}, {3.0, 0},
}

// VoltageToPercent interpolates the piecewise-linear LiPo discharge curve.
func VoltageToPercent(v float64) float64 {
	if v >= dischargeCurve[0].v {
		return 100
	}
	last := dischargeCurve[len(dischargeCurve)-1]
	if v <= last.v {
		return 0
	}
	for i := 1; i < len(dischargeCurve); i++ {
		hi, lo := dischargeCurve[i-1], dischargeCurve[i]
		if v >= lo.v {
			frac := (v - lo.v) / (hi.v - lo.v)
			return math.Round((lo.p+frac*(hi.p-lo.p))*10) / 10
		}
	}
	return 0
}

// Get returns one device record.
func (r *Registry) Get(ctx context.Context, deviceID string) (*Device, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	dev, ok := all[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	return dev, nil
}

// List returns every known device, stable by id.
func (r *Registry) List(ctx context.Context) ([]*Device, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Device, 0, len(ids))
	for _, id := range ids {
		out = append(out, all[id])
	}
	return out, nil
}

func (r *Registry) all(ctx context.Context) (deviceMap, error) {
	raw, err := r.store.Read(ctx, store.EntityDevices)
	if errors.Is(err, store.ErrNotFound) {
		return deviceMap{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeDevices(raw)
}
