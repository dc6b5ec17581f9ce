package telemetry

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/MacJediWizard/walship/internal/backup"
)

func testJob() backup.Job {
	return backup.Job{
		Source:        "/tmp/a.wal",
		DestDir:       "/tmp/out",
		Variant:       backup.VariantCopy,
		CollectorHost: "127.0.0.1:5000",
		Password:      "s3cret",
		IndexName:     "pg-backups",
		SourceHost:    "db01",
	}
}

func TestBuildRecord_Success(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := start.Add(1500 * time.Millisecond)

	rec := BuildRecord(testJob(), backup.Succeeded(8, 8), start, now)

	if rec.Timestamp != "2026-03-01T10:00:01.500Z" {
		t.Errorf("timestamp = %q", rec.Timestamp)
	}
	if rec.Version != "1" {
		t.Errorf("version = %q, want 1", rec.Version)
	}
	if rec.Password != "s3cret" || rec.IndexName != "pg-backups" || rec.Host != "db01" {
		t.Errorf("unexpected envelope: %+v", rec)
	}
	if rec.Message == nil {
		t.Fatal("message is nil")
	}
	if rec.Message.Error != "" {
		t.Errorf("error = %q, want empty", rec.Message.Error)
	}
	if rec.Message.OrigSize != 8 || rec.Message.BackSize != 8 {
		t.Errorf("sizes = %d/%d, want 8/8", rec.Message.OrigSize, rec.Message.BackSize)
	}
	if rec.Message.TimeSpent != 1.5 {
		t.Errorf("time_spent = %v, want 1.5", rec.Message.TimeSpent)
	}
	if rec.Message.Filename != "a.wal" || rec.Message.Source != "/tmp/a.wal" || rec.Message.Dst != "/tmp/out" {
		t.Errorf("unexpected message: %+v", rec.Message)
	}
}

func TestBuildRecord_Failure(t *testing.T) {
	start := time.Now()
	rec := BuildRecord(testJob(), backup.Failed("destination dir does not exist: /tmp/out"), start, start)

	if rec.Message.Error != "destination dir does not exist: /tmp/out" {
		t.Errorf("error = %q", rec.Message.Error)
	}
	if rec.Message.OrigSize != 0 || rec.Message.BackSize != 0 {
		t.Error("sizes must stay zero on failure")
	}
}

func TestBuildRecord_LocalTimeIsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2026, 3, 1, 13, 0, 0, 42_000_000, loc)

	rec := BuildRecord(testJob(), backup.Succeeded(0, 0), now, now)
	if rec.Timestamp != "2026-03-01T10:00:00.042Z" {
		t.Errorf("timestamp = %q", rec.Timestamp)
	}
}

func TestBuildRecord_FullBackup(t *testing.T) {
	job := testJob()
	job.Variant = backup.VariantFull
	rec := BuildRecord(job, backup.Succeeded(0, 0), time.Now(), time.Now())

	if rec.Message.Filename != backup.FullBackupFilename {
		t.Errorf("filename = %q", rec.Message.Filename)
	}
	if rec.Message.Source != "" {
		t.Errorf("source = %q, want empty", rec.Message.Source)
	}
}

func TestBuildRecord_SameInputsSameShape(t *testing.T) {
	start := time.Now()
	a := BuildRecord(testJob(), backup.Succeeded(5, 5), start, start.Add(time.Second))
	b := BuildRecord(testJob(), backup.Succeeded(5, 5), start.Add(time.Hour), start.Add(time.Hour+3*time.Second))

	a.Timestamp, b.Timestamp = "", ""
	a.Message.TimeSpent, b.Message.TimeSpent = 0, 0
	if string(a.Encode()) != string(b.Encode()) {
		t.Errorf("records differ beyond timestamp and time_spent:\n%s\n%s", a.Encode(), b.Encode())
	}
}

func TestRecord_EncodeWireFormat(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	data := BuildRecord(testJob(), backup.Succeeded(8, 8), start, start).Encode()

	want := `{"timestamp":"2026-01-02T03:04:05.006Z","index_name":"pg-backups","version":"1","password":"s3cret","host":"db01","message":{"source":"/tmp/a.wal","filename":"a.wal","dst":"/tmp/out","error":"","orig_size":8,"back_size":8,"time_spent":0}}`
	if string(data) != want {
		t.Errorf("Encode() =\n%s\nwant\n%s", data, want)
	}

	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("encoded record is not valid JSON: %v", err)
	}
}

func TestRecord_EncodeNilMessage(t *testing.T) {
	data := Record{Version: ProtocolVersion}.Encode()
	if !strings.Contains(string(data), `"message":null`) {
		t.Errorf("Encode() = %s, want null message", data)
	}
}

func TestRecord_EncodePanicsOnNaN(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unrepresentable float")
		}
	}()
	Record{Message: &Message{TimeSpent: math.NaN()}}.Encode()
}
