package hardware

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/astroward/nightwatch/internal/scheduler"
)

func testObservation(t *testing.T, expSeconds float64) *scheduler.Observation {
	t.Helper()
	obs, err := scheduler.NewObservation(scheduler.ObservationConfig{
		Name:       "M 42",
		Position:   "83.82 -5.39",
		ExpTime:    expSeconds,
		MinNExp:    10,
		ExpSetSize: 10,
		Priority:   100,
	})
	if err != nil {
		t.Fatal(err)
	}
	return obs
}

func TestSimCamera_TakeObservation(t *testing.T) {
	t.Parallel()
	cam := NewSimCamera("Cam00", true, "/var/images", nil)
	obs := testObservation(t, 0.01)

	done, err := cam.TakeObservation(context.Background(), obs, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, ok := <-done
	if !ok {
		t.Fatal("result channel closed without a result")
	}
	if res.Err != nil {
		t.Fatalf("exposure failed: %v", res.Err)
	}
	if res.CameraID != "Cam00" || res.ImageID == "" {
		t.Errorf("bad result: %+v", res)
	}
	if !strings.HasPrefix(res.Path, obs.Directory("/var/images")) {
		t.Errorf("image path %q outside the observation directory", res.Path)
	}
	if obs.CurrentExpNum() != 1 {
		t.Errorf("exposure count = %d, want 1", obs.CurrentExpNum())
	}
	if obs.FirstExposure() == nil {
		t.Error("primary camera exposure not tracked as first")
	}

	if _, stillOpen := <-done; stillOpen {
		t.Error("channel delivered a second result")
	}
}

func TestSimCamera_BusyWhileExposing(t *testing.T) {
	t.Parallel()
	cam := NewSimCamera("Cam00", true, t.TempDir(), nil)
	obs := testObservation(t, 0.5)

	done, err := cam.TakeObservation(context.Background(), obs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cam.IsReady() {
		t.Error("camera ready mid-exposure")
	}
	if _, err := cam.TakeObservation(context.Background(), obs, nil); !errors.Is(err, ErrBusy) {
		t.Errorf("got %v, want ErrBusy", err)
	}

	<-done
	if !cam.IsReady() {
		t.Error("camera not ready after exposure finished")
	}
}

func TestSimCamera_CanceledExposure(t *testing.T) {
	t.Parallel()
	cam := NewSimCamera("Cam00", true, t.TempDir(), nil)
	obs := testObservation(t, 5)

	ctx, cancel := context.WithCancel(context.Background())
	done, err := cam.TakeObservation(ctx, obs, nil)
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	res := <-done
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", res.Err)
	}
	if obs.CurrentExpNum() != 0 {
		t.Error("canceled exposure was recorded")
	}
}

func TestSimCamera_SecondaryNotFirstExposure(t *testing.T) {
	t.Parallel()
	primary := NewSimCamera("Cam00", true, t.TempDir(), nil)
	secondary := NewSimCamera("Cam01", false, t.TempDir(), nil)
	obs := testObservation(t, 0)
	ctx := context.Background()

	d2, err := secondary.TakeObservation(ctx, obs, nil)
	if err != nil {
		t.Fatal(err)
	}
	<-d2
	if obs.FirstExposure() != nil {
		t.Fatal("secondary exposure recorded as first")
	}

	d1, err := primary.TakeObservation(ctx, obs, nil)
	if err != nil {
		t.Fatal(err)
	}
	<-d1
	if obs.FirstExposure() == nil {
		t.Error("primary exposure not recorded as first")
	}
	if obs.CurrentExpNum() != 1 {
		t.Errorf("exposure count = %d, want max across cameras 1", obs.CurrentExpNum())
	}
}
