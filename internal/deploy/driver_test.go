package deploy

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/fetch"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/logging"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/transaction"
)

type recordingTrust struct {
	mu     sync.Mutex
	paths  []string
	reject map[string]bool
}

func (r *recordingTrust) EnsureForPackage(_ context.Context, path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return !r.reject[path]
}

type fixedCounter struct {
	n    int
	dirs []string
}

func (c *fixedCounter) CountUnder(_ context.Context, dir string) (int, error) {
	c.dirs = append(c.dirs, dir)
	return c.n, nil
}

func TestInstallAll_DependencyBeforeMain(t *testing.T) {
	dir := t.TempDir()
	arts := []fetch.Artifact{
		artifact(t, dir, "App_1.0.0.0_x64__8wekyb3d8bbwe.msix"),
		artifact(t, dir, "Microsoft.VCLibs.140.00_14.0_x64__8wekyb3d8bbwe.appx"),
	}

	fake := &FakePlatform{}
	trust := &recordingTrust{}
	journal := transaction.New(transaction.OperationInstall, "id")
	d := NewDriver(fake, Options{Timeout: time.Second, Trust: trust, Logger: logging.Discard(), Journal: journal})

	sum, err := d.InstallAll(context.Background(), arts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sum.OK() {
		t.Fatalf("expected success, got %+v", sum)
	}

	adds := fake.CallsOf("add")
	if len(adds) != 2 {
		t.Fatalf("expected 2 add calls, got %d", len(adds))
	}
	if !strings.HasSuffix(adds[0].Target, ".appx") || adds[0].Mode != ModeNone {
		t.Errorf("first add should be the dependency with ModeNone: %+v", adds[0])
	}
	if !strings.HasSuffix(adds[1].Target, ".msix") || adds[1].Mode != ModeForceShutdown {
		t.Errorf("second add should be the main package with ModeForceShutdown: %+v", adds[1])
	}

	if len(trust.paths) != 2 || trust.paths[0] != adds[0].Target {
		t.Errorf("trust should be ensured before each install in plan order: %v", trust.paths)
	}
	if got := journal.Count(transaction.StageInstall, transaction.StateCompleted); got != 2 {
		t.Errorf("journal install completed = %d, want 2", got)
	}
}

func TestInstallAll_ContinuesPastFailure(t *testing.T) {
	dir := t.TempDir()
	dep := artifact(t, dir, "Microsoft.UI.Xaml.2.8_8.2310_x64__8wekyb3d8bbwe.appx")
	main := artifact(t, dir, "App_1.0.0.0_x64__8wekyb3d8bbwe.msix")

	fake := &FakePlatform{AddOutcome: func(path string, _ Mode) (Status, Result) {
		if path == dep.Path {
			return StatusCompleted, Result{Code: 3, Message: "dependency rejected"}
		}
		return StatusCompleted, Result{}
	}}
	journal := transaction.New(transaction.OperationInstall, "id")
	d := NewDriver(fake, Options{Logger: logging.Discard(), Journal: journal})

	sum, err := d.InstallAll(context.Background(), []fetch.Artifact{main, dep})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.OK() {
		t.Error("summary should report failure")
	}
	if len(sum.Failed) != 1 || sum.Failed[0].Name != dep.FileName() {
		t.Fatalf("unexpected failures: %+v", sum.Failed)
	}
	var derr *Error
	if !errors.As(sum.Failed[0].Err, &derr) || derr.Code != 3 {
		t.Errorf("expected deployment error code 3, got %v", sum.Failed[0].Err)
	}
	if len(sum.Installed) != 1 || sum.Installed[0] != main.FileName() {
		t.Errorf("main package should still install: %+v", sum.Installed)
	}
	if failed := journal.Failed(); len(failed) != 1 || failed[0].Stage != transaction.StageInstall {
		t.Errorf("unexpected journal failures: %+v", failed)
	}
}

func TestInstallAll_UntrustedIsWarningOnly(t *testing.T) {
	dir := t.TempDir()
	main := artifact(t, dir, "App_1.0.0.0_x64__8wekyb3d8bbwe.msix")

	fake := &FakePlatform{}
	trust := &recordingTrust{reject: map[string]bool{main.Path: true}}
	d := NewDriver(fake, Options{Trust: trust, Logger: logging.Discard()})

	sum, err := d.InstallAll(context.Background(), []fetch.Artifact{main})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sum.OK() {
		t.Errorf("untrusted certificate should not fail the install: %+v", sum)
	}
	if len(sum.Untrusted) != 1 {
		t.Errorf("expected untrusted entry, got %v", sum.Untrusted)
	}
	if len(fake.CallsOf("add")) != 1 {
		t.Error("install should still be attempted")
	}
}

func TestInstallAll_WarnsAboutRunningInstances(t *testing.T) {
	dir := t.TempDir()
	main := artifact(t, dir, "App_1.0.0.0_x64__8wekyb3d8bbwe.msix")

	fake := &FakePlatform{}
	fake.SetInstalled(&Package{
		FullName:        "App_0.9.0.0_x64__8wekyb3d8bbwe",
		FamilyName:      "App_8wekyb3d8bbwe",
		InstallLocation: `C:\Program Files\WindowsApps\App_0.9.0.0_x64__8wekyb3d8bbwe`,
	})
	counter := &fixedCounter{n: 2}
	d := NewDriver(fake, Options{Counter: counter, Logger: logging.Discard()})

	if _, err := d.InstallAll(context.Background(), []fetch.Artifact{main}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(counter.dirs) != 1 || !strings.Contains(counter.dirs[0], "App_0.9.0.0") {
		t.Errorf("expected scan of the installed location, got %v", counter.dirs)
	}
	if finds := fake.CallsOf("find"); len(finds) != 1 || finds[0].Target != "App_8wekyb3d8bbwe" {
		t.Errorf("unexpected lookups: %+v", finds)
	}
}

func TestInstallAll_Canceled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &FakePlatform{}
	d := NewDriver(fake, Options{Logger: logging.Discard()})
	_, err := d.InstallAll(ctx, []fetch.Artifact{artifact(t, dir, "App_1_x64__8wekyb3d8bbwe.msix")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(fake.Calls()) != 0 {
		t.Error("no platform calls expected after cancellation")
	}
}

func TestDriverRemove(t *testing.T) {
	fake := &FakePlatform{}
	fake.SetInstalled(&Package{FullName: "App_1_x64__8wekyb3d8bbwe", FamilyName: "App_8wekyb3d8bbwe"})
	d := NewDriver(fake, Options{Logger: logging.Discard()})

	if err := d.Remove(context.Background(), "App_1_x64__8wekyb3d8bbwe"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := d.Find(context.Background(), "App_8wekyb3d8bbwe"); !errors.Is(err, ErrPackageNotFound) {
		t.Errorf("expected ErrPackageNotFound after removal, got %v", err)
	}
}
