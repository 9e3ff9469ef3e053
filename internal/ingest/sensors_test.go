package ingest

import (
	"context"
	"testing"
	"time"

	"homesentry/internal/realtime"
	"homesentry/internal/store"
)

func seedBounds(t *testing.T, repo *store.Repo) {
	t.Helper()
	ctx := context.Background()
	if err := repo.UpsertSensorSetting(ctx, "temperature", 15, 30); err != nil {
		t.Fatalf("seed temperature bounds: %v", err)
	}
	if err := repo.UpsertSensorSetting(ctx, "humidity", 30, 70); err != nil {
		t.Fatalf("seed humidity bounds: %v", err)
	}
}

func TestSensorOverTemperatureWarns(t *testing.T) {
	ing, d := newTestIngestor(t)
	seedBounds(t, d.repo)
	ctx := context.Background()

	ing.HandleMessage(ctx, "kitchen/sensor-device", []byte(`{"temperature":35,"humidity":50}`), time.Now().UTC())

	snap, err := d.repo.FindRoomSnapshot(ctx, "kitchen")
	if err != nil {
		t.Fatalf("find snapshot: %v", err)
	}
	if snap == nil {
		t.Fatal("expected snapshot row")
	}
	if snap.Temperature == nil || *snap.Temperature != 35 {
		t.Fatalf("expected temperature 35, got %v", snap.Temperature)
	}
	if !snap.HasWarning {
		t.Fatal("expected warning flag")
	}
	if snap.WarningMessage != msgTempAbove {
		t.Fatalf("expected %q, got %q", msgTempAbove, snap.WarningMessage)
	}

	if evs := d.hub.byType(realtime.EventRoomSnapshot); len(evs) != 1 {
		t.Fatalf("expected 1 snapshot broadcast, got %d", len(evs))
	}
	alerts := d.alerter.raised()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Type != store.NotificationSensorWarning || alerts[0].Severity != store.SeverityMedium {
		t.Fatalf("unexpected alert: %+v", alerts[0])
	}
	if alerts[0].Location != "kitchen" {
		t.Fatalf("expected location kitchen, got %q", alerts[0].Location)
	}
}

func TestSensorInRangeNoWarning(t *testing.T) {
	ing, d := newTestIngestor(t)
	seedBounds(t, d.repo)
	ctx := context.Background()

	ing.HandleMessage(ctx, "kitchen/sensor-device", []byte(`{"temperature":22,"humidity":50}`), time.Now().UTC())

	snap, err := d.repo.FindRoomSnapshot(ctx, "kitchen")
	if err != nil {
		t.Fatalf("find snapshot: %v", err)
	}
	if snap.HasWarning || snap.WarningMessage != "" {
		t.Fatalf("expected clean snapshot, got %+v", snap)
	}
	if len(d.alerter.raised()) != 0 {
		t.Fatal("in-range reading must not alert")
	}
}

func TestSensorMissingBoundsNoWarning(t *testing.T) {
	ing, d := newTestIngestor(t)
	ctx := context.Background()

	ing.HandleMessage(ctx, "kitchen/sensor-device", []byte(`{"temperature":99}`), time.Now().UTC())

	snap, err := d.repo.FindRoomSnapshot(ctx, "kitchen")
	if err != nil {
		t.Fatalf("find snapshot: %v", err)
	}
	if snap.HasWarning {
		t.Fatal("no configured bounds means no warning")
	}
	if len(d.alerter.raised()) != 0 {
		t.Fatal("no configured bounds means no alert")
	}
}

func TestSensorWarningDeduplicated(t *testing.T) {
	ing, d := newTestIngestor(t)
	seedBounds(t, d.repo)
	ctx := context.Background()

	payload := []byte(`{"temperature":35}`)
	ing.HandleMessage(ctx, "kitchen/sensor-device", payload, time.Now().UTC())
	ing.HandleMessage(ctx, "kitchen/sensor-device", payload, time.Now().UTC())
	ing.HandleMessage(ctx, "kitchen/sensor-device", payload, time.Now().UTC())

	if got := len(d.alerter.raised()); got != 1 {
		t.Fatalf("identical warnings must alert once, got %d", got)
	}

	// A different warning set breaks the signature and fires again.
	ing.HandleMessage(ctx, "kitchen/sensor-device", []byte(`{"temperature":35,"humidity":90}`), time.Now().UTC())
	if got := len(d.alerter.raised()); got != 2 {
		t.Fatalf("changed warning set must alert, got %d", got)
	}
}

func TestSensorRealertsAfterClearInterval(t *testing.T) {
	ing, d := newTestIngestor(t)
	seedBounds(t, d.repo)
	ctx := context.Background()

	ing.HandleMessage(ctx, "kitchen/sensor-device", []byte(`{"temperature":35}`), time.Now().UTC())
	ing.HandleMessage(ctx, "kitchen/sensor-device", []byte(`{"temperature":22}`), time.Now().UTC())
	ing.HandleMessage(ctx, "kitchen/sensor-device", []byte(`{"temperature":35}`), time.Now().UTC())

	if got := len(d.alerter.raised()); got != 2 {
		t.Fatalf("warning returning after a clean reading must re-alert, got %d", got)
	}
}

func TestSensorGasLeakIsHighSeverity(t *testing.T) {
	ing, d := newTestIngestor(t)
	ctx := context.Background()

	ing.HandleMessage(ctx, "garage/sensor-device", []byte(`{"gas":true}`), time.Now().UTC())

	alerts := d.alerter.raised()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 gas alert, got %d", len(alerts))
	}
	if alerts[0].Severity != store.SeverityHigh {
		t.Fatalf("gas leak must be high severity, got %s", alerts[0].Severity)
	}
	if alerts[0].Message != msgGasLeak {
		t.Fatalf("expected %q, got %q", msgGasLeak, alerts[0].Message)
	}

	snap, err := d.repo.FindRoomSnapshot(ctx, "garage")
	if err != nil {
		t.Fatalf("find snapshot: %v", err)
	}
	if snap.GasLevel == nil || *snap.GasLevel != 1 {
		t.Fatalf("expected gas level 1, got %v", snap.GasLevel)
	}
}

func TestSensorNumericGasZeroIsClean(t *testing.T) {
	ing, d := newTestIngestor(t)

	ing.HandleMessage(context.Background(), "garage/sensor-device", []byte(`{"gas":0}`), time.Now().UTC())

	if len(d.alerter.raised()) != 0 {
		t.Fatal("zero gas reading must not alert")
	}
}

func TestSensorPartialReadingKeepsPreviousValues(t *testing.T) {
	ing, d := newTestIngestor(t)
	seedBounds(t, d.repo)
	ctx := context.Background()

	ing.HandleMessage(ctx, "kitchen/sensor-device", []byte(`{"temperature":22,"humidity":50}`), time.Now().UTC())
	ing.HandleMessage(ctx, "kitchen/sensor-device", []byte(`{"lightLevel":300}`), time.Now().UTC())

	snap, err := d.repo.FindRoomSnapshot(ctx, "kitchen")
	if err != nil {
		t.Fatalf("find snapshot: %v", err)
	}
	if snap.Temperature == nil || *snap.Temperature != 22 {
		t.Fatalf("partial reading must keep temperature, got %v", snap.Temperature)
	}
	if snap.LightLevel == nil || *snap.LightLevel != 300 {
		t.Fatalf("expected light level 300, got %v", snap.LightLevel)
	}
}
