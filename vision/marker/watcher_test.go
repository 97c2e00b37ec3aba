package marker

import (
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/fengyu3941/marker-based-ar-demo/logging"
	"github.com/fengyu3941/marker-based-ar-demo/testutils"
)

type recordingTarget struct {
	mu      sync.Mutex
	configs []*Config
}

func (rt *recordingTarget) SetConfig(cfg *Config) error {
	if err := cfg.Validate("target"); err != nil {
		return err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.configs = append(rt.configs, cfg)
	return nil
}

func (rt *recordingTarget) count() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.configs)
}

func (rt *recordingTarget) last() *Config {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.configs) == 0 {
		return nil
	}
	return rt.configs[len(rt.configs)-1]
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	test.That(t, err, test.ShouldBeNil)
	return data
}

// waitReload waits for a reload with the wanted outcome, skipping late reloads of earlier writes.
func waitReload(t *testing.T, cw *ConfigWatcher, wantErr bool) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case err := <-cw.Reloads():
			if (err != nil) == wantErr {
				return
			}
		case <-timeout:
			t.Fatalf("no reload with error=%v", wantErr)
		}
	}
}

func TestConfigWatcher(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg := DefaultConfig()
	path := testutils.WriteJSONFile(t, "marker.json", cfg)

	target := &recordingTarget{}
	cw, err := NewConfigWatcher(path, target, 20*time.Millisecond, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, cw.Close(), test.ShouldBeNil)
	}()

	cfg.ReprojectionThreshold = 5
	cfg.RefineHomography = false
	test.That(t, os.WriteFile(path, mustJSON(t, cfg), 0o600), test.ShouldBeNil)
	waitReload(t, cw, false)
	test.That(t, target.last(), test.ShouldNotBeNil)
	test.That(t, target.last().ReprojectionThreshold, test.ShouldEqual, 5)
	test.That(t, target.last().RefineHomography, test.ShouldBeFalse)

	// invalid files are ignored
	test.That(t, os.WriteFile(path, []byte(`{"ratio": 7}`), 0o600), test.ShouldBeNil)
	waitReload(t, cw, true)
	test.That(t, target.last().ReprojectionThreshold, test.ShouldEqual, 5)
	test.That(t, target.last().Ratio, test.ShouldEqual, DefaultConfig().Ratio)
}

func TestConfigWatcherDetector(t *testing.T) {
	p := newTestPattern(t)
	d := newTestDetector(t, p, patternWidth, patternHeight, patternWidth/2, patternHeight/2)
	path := testutils.WriteJSONFile(t, "marker.json", DefaultConfig())
	cw, err := NewConfigWatcher(path, d, 0, nil)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, cw.Close(), test.ShouldBeNil)
	}()

	cfg := DefaultConfig()
	cfg.ReprojectionThreshold = 42
	test.That(t, os.WriteFile(path, mustJSON(t, cfg), 0o600), test.ShouldBeNil)
	waitReload(t, cw, false)
	test.That(t, d.Config().ReprojectionThreshold, test.ShouldEqual, 10)
}

func TestConfigWatcherNoReloadAfterClose(t *testing.T) {
	path := testutils.WriteJSONFile(t, "marker.json", DefaultConfig())
	target := &recordingTarget{}
	cw, err := NewConfigWatcher(path, target, time.Hour, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	cw.reload()
	test.That(t, target.count(), test.ShouldEqual, 1)
	test.That(t, <-cw.Reloads(), test.ShouldBeNil)

	test.That(t, cw.Close(), test.ShouldBeNil)
	// a debounced reload that fires late finds the watcher closed
	cw.reload()
	test.That(t, target.count(), test.ShouldEqual, 1)
	select {
	case err := <-cw.Reloads():
		t.Fatalf("unexpected reload after close: %v", err)
	default:
	}
}

func TestConfigWatcherMissingDirectory(t *testing.T) {
	_, err := NewConfigWatcher("/does/not/exist/marker.json", &recordingTarget{}, 0, nil)
	test.That(t, err, test.ShouldNotBeNil)
}
