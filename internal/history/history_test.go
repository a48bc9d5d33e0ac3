package history

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/signalhub/internal/infrastructure/config"
	"github.com/nerrad567/signalhub/internal/infrastructure/database"
	"github.com/nerrad567/signalhub/internal/signal"
	"github.com/nerrad567/signalhub/migrations"
)

// openTestRepo opens an in-memory database with the embedded schema applied.
func openTestRepo(t *testing.T) (*Repository, *database.DB) {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewRepository(db.DB), db
}

func sig(id string, v signal.Value, unit string, ts time.Time) signal.Signal {
	return signal.Signal{ID: id, Value: v, Unit: unit, Timestamp: ts, Source: "openhab"}
}

func rowCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM signal_history").Scan(&n); err != nil {
		t.Fatalf("count query error: %v", err)
	}
	return n
}

// ============================================================================
// Repository
// ============================================================================

func TestRecordAndGetHistory(t *testing.T) {
	repo, _ := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	writes := []signal.Signal{
		sig("oh:Kitchen_Temp", signal.Number(20.5), "°C", base),
		sig("oh:Kitchen_Temp", signal.Number(21), "°C", base.Add(time.Minute)),
		sig("oh:Kitchen_Light", signal.String("ON"), "", base),
		sig("oh:Kitchen_Temp", signal.Number(21.25), "°C", base.Add(2*time.Minute)),
	}
	for _, s := range writes {
		if err := repo.Record(ctx, s); err != nil {
			t.Fatalf("Record(%s) error = %v", s.ID, err)
		}
	}

	entries, err := repo.GetHistory(ctx, "oh:Kitchen_Temp", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}

	// Newest first
	want := []float64{21.25, 21, 20.5}
	for i, e := range entries {
		f, ok := e.Value.Float()
		if !ok || f != want[i] {
			t.Errorf("entries[%d].Value = %v, want %v", i, e.Value, want[i])
		}
		if e.Unit != "°C" || e.Source != "openhab" || e.ID != "oh:Kitchen_Temp" {
			t.Errorf("entries[%d] = %+v", i, e)
		}
		if e.Seq == 0 {
			t.Errorf("entries[%d].Seq not set", i)
		}
	}
	if !entries[0].Timestamp.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("entries[0].Timestamp = %v", entries[0].Timestamp)
	}

	light, err := repo.GetHistory(ctx, "oh:Kitchen_Light", 0)
	if err != nil {
		t.Fatalf("GetHistory(light) error = %v", err)
	}
	if len(light) != 1 || light[0].Value.IsNumber() || light[0].Value.Text() != "ON" {
		t.Errorf("light history = %+v", light)
	}
}

func TestGetHistoryUnknownID(t *testing.T) {
	repo, _ := openTestRepo(t)

	entries, err := repo.GetHistory(context.Background(), "oh:Nothing", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("entries = %v, want empty non-nil slice", entries)
	}
}

func TestGetHistoryLimit(t *testing.T) {
	repo, _ := openTestRepo(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < MaxLimit+10; i++ {
		s := sig("mq:counter", signal.Number(float64(i)), "", base.Add(time.Duration(i)*time.Second))
		if err := repo.Record(ctx, s); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, DefaultLimit},
		{"negative", -3, DefaultLimit},
		{"explicit", 7, 7},
		{"clamped", 1000, MaxLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := repo.GetHistory(ctx, "mq:counter", tt.limit)
			if err != nil {
				t.Fatalf("GetHistory() error = %v", err)
			}
			if len(entries) != tt.want {
				t.Errorf("len = %d, want %d", len(entries), tt.want)
			}
		})
	}
}

func TestRecordValidation(t *testing.T) {
	repo, _ := openTestRepo(t)
	ctx := context.Background()

	if err := repo.Record(ctx, signal.Signal{Value: signal.Number(1)}); !errors.Is(err, ErrEmptyID) {
		t.Errorf("Record(no id) error = %v, want ErrEmptyID", err)
	}
	if err := repo.Record(ctx, signal.Signal{ID: "oh:x"}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Record(zero value) error = %v, want ErrInvalidValue", err)
	}
	if _, err := repo.GetHistory(ctx, "", 10); !errors.Is(err, ErrEmptyID) {
		t.Errorf("GetHistory(\"\") error = %v, want ErrEmptyID", err)
	}
}

func TestRecordZeroTimestampUsesNow(t *testing.T) {
	repo, _ := openTestRepo(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	if err := repo.Record(ctx, sig("oh:x", signal.Number(1), "", time.Time{})); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	entries, err := repo.GetHistory(ctx, "oh:x", 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("GetHistory() = %v, %v", entries, err)
	}
	if entries[0].Timestamp.Before(before) {
		t.Errorf("Timestamp = %v, want >= %v", entries[0].Timestamp, before)
	}
}

func TestPrune(t *testing.T) {
	repo, db := openTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	for _, s := range []signal.Signal{
		sig("oh:a", signal.Number(1), "", now.Add(-48*time.Hour)),
		sig("oh:a", signal.Number(2), "", now.Add(-25*time.Hour)),
		sig("oh:a", signal.Number(3), "", now.Add(-time.Hour)),
	} {
		if err := repo.Record(ctx, s); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	n, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() deleted %d, want 2", n)
	}
	if got := rowCount(t, db.DB); got != 1 {
		t.Errorf("rows after prune = %d, want 1", got)
	}

	if _, err := repo.Prune(ctx, 0); !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("Prune(0) error = %v, want ErrInvalidRetention", err)
	}
}

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		kind, text string
		want       signal.Value
		wantErr    bool
	}{
		{kindNumber, "21.5", signal.Number(21.5), false},
		{kindNumber, "-1e-3", signal.Number(-0.001), false},
		{kindString, "OPEN", signal.String("OPEN"), false},
		{kindString, "", signal.String(""), false},
		{kindNumber, "abc", signal.Value{}, true},
		{"bool", "true", signal.Value{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.text, func(t *testing.T) {
			got, err := decodeValue(tt.kind, tt.text)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("decodeValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

// ============================================================================
// Recorder
// ============================================================================

type mockObserver struct {
	mu     sync.Mutex
	writes int
	errs   int
}

func (o *mockObserver) SinkWrite(sink string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if sink != sinkName {
		return
	}
	o.writes++
	if err != nil {
		o.errs++
	}
}

func (o *mockObserver) counts() (writes, errs int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.writes, o.errs
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRecorderRun(t *testing.T) {
	repo, db := openTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A stale row is pruned when the recorder starts
	if err := repo.Record(ctx, sig("oh:old", signal.Number(0), "", time.Now().Add(-30*24*time.Hour))); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	obs := &mockObserver{}
	rec := NewRecorder(repo, RecorderConfig{Retention: 24 * time.Hour})
	rec.SetObserver(obs)

	sigs := make(chan signal.Signal)
	done := make(chan struct{})
	go func() {
		rec.Run(ctx, sigs)
		close(done)
	}()

	sigs <- sig("oh:Kitchen_Temp", signal.Number(21), "°C", time.Now())
	sigs <- signal.Signal{ID: "oh:bad"} // invalid value: logged, loop continues
	sigs <- sig("oh:Kitchen_Temp", signal.Number(22), "°C", time.Now())

	waitFor(t, func() bool {
		w, _ := obs.counts()
		return w == 3
	})
	if _, errs := obs.counts(); errs != 1 {
		t.Errorf("observer errors = %d, want 1", errs)
	}
	if got := rowCount(t, db.DB); got != 2 {
		t.Errorf("rows = %d, want 2 (stale row pruned)", got)
	}

	close(sigs)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}
}

func TestRecorderStopsOnCancel(t *testing.T) {
	repo, _ := openTestRepo(t)
	rec := NewRecorder(repo, RecorderConfig{})
	rec.drainTimeout = 10 * time.Millisecond

	if rec.cfg.Retention != DefaultRetention || rec.cfg.PruneInterval != DefaultPruneInterval {
		t.Errorf("defaults = %+v", rec.cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx, make(chan signal.Signal))
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRecorderDrainsBufferedOnCancel(t *testing.T) {
	repo, db := openTestRepo(t)
	rec := NewRecorder(repo, RecorderConfig{Retention: 24 * time.Hour})

	const published = 50
	base := time.Now().Add(-time.Hour)
	sigs := make(chan signal.Signal, published)
	for i := 0; i < published; i++ {
		sigs <- sig("oh:Kitchen_Temp", signal.Number(float64(i)), "°C", base.Add(time.Duration(i)*time.Second))
	}
	close(sigs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		rec.Run(ctx, sigs)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after draining")
	}

	if got := rowCount(t, db.DB); got != published {
		t.Errorf("recorded %d rows, want %d", got, published)
	}
}
