package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"s2s-stream-client/internal/service/audio"
	"s2s-stream-client/internal/service/s2s"
	"s2s-stream-client/internal/service/s2s/mock"
	"s2s-stream-client/internal/service/session"
)

func writeWAV(t *testing.T, path string, channels int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, 16000, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: 16000},
		Data:           make([]int, 4000*channels),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
}

type stubToken struct {
	requested atomic.Bool
	done      chan struct{}
	once      sync.Once
}

func newStubToken() *stubToken { return &stubToken{done: make(chan struct{})} }

func (t *stubToken) Requested() bool       { return t.requested.Load() }
func (t *stubToken) Done() <-chan struct{} { return t.done }
func (t *stubToken) request() {
	t.once.Do(func() {
		t.requested.Store(true)
		close(t.done)
	})
}

func fileSources(token *stubToken) session.SourceFactory {
	return func(u session.Unit) (audio.Source, error) {
		return audio.NewFileSource([]string{u.Path}, audio.FileOptions{
			ChunkDuration: 100 * time.Millisecond,
			Iterations:    1,
			Token:         token,
		})
	}
}

func TestFileUnits_IterationsOuter(t *testing.T) {
	units := FileUnits([]string{"a.wav", "b.wav", "c.wav"}, 2, session.NewGenerator())

	want := []struct {
		path string
		iter int
	}{
		{"a.wav", 0}, {"b.wav", 0}, {"c.wav", 0},
		{"a.wav", 1}, {"b.wav", 1}, {"c.wav", 1},
	}
	if len(units) != len(want) {
		t.Fatalf("expected %d units, got %d", len(want), len(units))
	}
	seen := map[string]bool{}
	for i, w := range want {
		u := units[i]
		if u.Path != w.path || u.Iteration != w.iter || u.Index != i {
			t.Errorf("unit %d = %+v, want %s iteration %d", i, u, w.path, w.iter)
		}
		if seen[u.ID] {
			t.Errorf("duplicate unit ID %s", u.ID)
		}
		seen[u.ID] = true
	}
}

func TestLiveUnit(t *testing.T) {
	units := LiveUnit("default", session.NewGenerator())
	if len(units) != 1 || !units[0].Live || units[0].Device != "default" {
		t.Errorf("unexpected live units %+v", units)
	}
}

func TestCoordinator_NeverExceedsParallelism(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for _, name := range []string{"a.wav", "b.wav", "c.wav", "d.wav"} {
		p := filepath.Join(dir, name)
		writeWAV(t, p, 1)
		files = append(files, p)
	}

	opts := mock.DefaultOptions()
	opts.SendDelay = 2 * time.Millisecond
	dialer := mock.New(opts)
	token := newStubToken()

	driver := session.NewDriver(session.Options{
		Dialer:  dialer,
		Config:  s2s.Config{SourceLanguage: "en-US", TargetLanguage: "de-DE"},
		Sources: fileSources(token),
		Token:   token,
	})

	units := FileUnits(files, 2, session.NewGenerator())
	report := New(driver, 3, token).Run(context.Background(), units)

	if got := dialer.MaxActive(); got > 3 {
		t.Errorf("max active sessions = %d, ceiling is 3", got)
	}
	if len(dialer.Sessions()) != 8 {
		t.Errorf("expected 8 sessions, got %d", len(dialer.Sessions()))
	}
	if !report.Success() {
		t.Error("expected all sessions to succeed")
	}
	for i, o := range report.Outcomes {
		if o.Unit.ID != units[i].ID {
			t.Errorf("outcome %d belongs to unit %s, want %s", i, o.Unit.ID, units[i].ID)
		}
	}
}

func TestCoordinator_MalformedFileFailsOnlyItsRuns(t *testing.T) {
	dir := t.TempDir()
	good1 := filepath.Join(dir, "a.wav")
	bad := filepath.Join(dir, "b.wav")
	good2 := filepath.Join(dir, "c.wav")
	writeWAV(t, good1, 1)
	writeWAV(t, bad, 2) // stereo is rejected
	writeWAV(t, good2, 1)

	token := newStubToken()
	driver := session.NewDriver(session.Options{
		Dialer:  mock.New(mock.DefaultOptions()),
		Sources: fileSources(token),
		Token:   token,
	})

	units := FileUnits([]string{good1, bad, good2}, 2, session.NewGenerator())
	report := New(driver, 2, token).Run(context.Background(), units)

	if len(report.Outcomes) != 6 {
		t.Fatalf("expected 6 outcomes, got %d", len(report.Outcomes))
	}
	succeeded, failed, skipped := report.Counts()
	if succeeded != 4 || failed != 2 || skipped != 0 {
		t.Errorf("expected 4/2/0, got %d/%d/%d", succeeded, failed, skipped)
	}
	for _, o := range report.Outcomes {
		if o.Unit.Path == bad && o.Success() {
			t.Errorf("malformed file run %s should fail", o.Unit.ID)
		}
	}
	if report.Success() {
		t.Error("report with failed sessions should not succeed")
	}
}

type blockingRunner struct {
	started chan session.Unit
	release chan struct{}
	mu      sync.Mutex
	ran     []string
}

func (r *blockingRunner) Run(ctx context.Context, u session.Unit) session.Outcome {
	r.mu.Lock()
	r.ran = append(r.ran, u.ID)
	r.mu.Unlock()
	r.started <- u
	<-r.release
	return session.Outcome{Unit: u, State: session.StateClosed}
}

func TestCoordinator_StopsSchedulingAfterShutdown(t *testing.T) {
	token := newStubToken()
	runner := &blockingRunner{started: make(chan session.Unit, 4), release: make(chan struct{})}
	units := FileUnits([]string{"a.wav", "b.wav", "c.wav", "d.wav"}, 1, session.NewGenerator())

	done := make(chan Report)
	go func() {
		done <- New(runner, 1, token).Run(context.Background(), units)
	}()

	<-runner.started
	token.request()
	close(runner.release)

	var report Report
	select {
	case report = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not finish after shutdown")
	}

	succeeded, failed, skipped := report.Counts()
	if succeeded != 1 || failed != 0 || skipped != 3 {
		t.Errorf("expected 1/0/3, got %d/%d/%d", succeeded, failed, skipped)
	}
	if !report.Success() {
		t.Error("skipped units should not make the run fail")
	}
	if len(runner.ran) != 1 {
		t.Errorf("expected one unit to run, got %v", runner.ran)
	}
}

func TestReport_AudioProcessed(t *testing.T) {
	r := Report{Outcomes: []session.Outcome{
		{AudioSent: time.Second},
		{AudioSent: 500 * time.Millisecond},
		{Skipped: true},
	}}
	if got := r.AudioProcessed(); got != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", got)
	}
}
