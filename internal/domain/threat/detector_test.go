package threat

import (
	"fmt"
	"testing"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestCheckAuthBruteForceThreshold(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewDetector(WithClock(clock.Now))

	for i := 0; i < DefaultMaxFailedAuth-1; i++ {
		if ev := d.CheckAuth("10.0.0.1", "mallory", false); ev != nil {
			t.Fatalf("failure %d should not trigger, got %+v", i+1, ev)
		}
		clock.Advance(time.Second)
	}

	ev := d.CheckAuth("10.0.0.1", "mallory", false)
	if ev == nil {
		t.Fatal("threshold failure should trigger an event")
	}
	if ev.Category != CategoryBruteForce {
		t.Errorf("category = %q, want %q", ev.Category, CategoryBruteForce)
	}
	if ev.Level != LevelHigh {
		t.Errorf("level = %q, want %q", ev.Level, LevelHigh)
	}
	if !ev.Mitigated || ev.Action != ActionSourceBlocked {
		t.Errorf("event should be mitigated with action %q, got mitigated=%v action=%q",
			ActionSourceBlocked, ev.Mitigated, ev.Action)
	}
	if ev.Source != "10.0.0.1" || ev.UserID != "mallory" {
		t.Errorf("event attribution = (%q, %q), want (10.0.0.1, mallory)", ev.Source, ev.UserID)
	}
	if !d.IsBlocked("10.0.0.1") {
		t.Error("source should be blocked after the threshold event")
	}
	if d.IsBlocked("10.0.0.2") {
		t.Error("unrelated source should not be blocked")
	}
}

func TestCheckAuthSuccessClearsWindow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewDetector(WithClock(clock.Now))

	for i := 0; i < DefaultMaxFailedAuth-1; i++ {
		d.CheckAuth("10.0.0.9", "", false)
	}
	if ev := d.CheckAuth("10.0.0.9", "", true); ev != nil {
		t.Fatalf("success should never produce an event, got %+v", ev)
	}

	// The window restarted, so another threshold-1 failures stay quiet.
	for i := 0; i < DefaultMaxFailedAuth-1; i++ {
		if ev := d.CheckAuth("10.0.0.9", "", false); ev != nil {
			t.Fatalf("failure %d after reset should not trigger, got %+v", i+1, ev)
		}
	}
	if ev := d.CheckAuth("10.0.0.9", "", false); ev == nil {
		t.Error("threshold failure after reset should trigger")
	}
}

func TestCheckAuthWindowExpiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewDetector(WithClock(clock.Now))

	for i := 0; i < DefaultMaxFailedAuth-1; i++ {
		d.CheckAuth("172.16.0.4", "", false)
	}
	clock.Advance(DefaultAuthWindow + time.Second)

	if ev := d.CheckAuth("172.16.0.4", "", false); ev != nil {
		t.Errorf("stale failures should have aged out, got %+v", ev)
	}
}

func TestCheckAuthConfiguredThreshold(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewDetector(
		WithClock(clock.Now),
		WithMaxFailedAuth(3),
		WithAuthWindow(60*time.Second),
	)

	if ev := d.CheckAuth("192.168.1.50", "eve", false); ev != nil {
		t.Fatalf("first failure triggered: %+v", ev)
	}
	if ev := d.CheckAuth("192.168.1.50", "eve", false); ev != nil {
		t.Fatalf("second failure triggered: %+v", ev)
	}
	ev := d.CheckAuth("192.168.1.50", "eve", false)
	if ev == nil || ev.Category != CategoryBruteForce {
		t.Fatalf("third failure should trigger brute force, got %+v", ev)
	}
	if !d.IsBlocked("192.168.1.50") {
		t.Error("source should be blocked")
	}

	if !d.Unblock("192.168.1.50") {
		t.Error("Unblock should report the source was blocked")
	}
	if d.IsBlocked("192.168.1.50") {
		t.Error("source should be clear after manual unblock")
	}
	if d.Unblock("192.168.1.50") {
		t.Error("second Unblock should report no-op")
	}
}

func TestBlockExpires(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewDetector(WithClock(clock.Now))

	for i := 0; i < DefaultMaxFailedAuth; i++ {
		d.CheckAuth("10.1.1.1", "", false)
	}
	if !d.IsBlocked("10.1.1.1") {
		t.Fatal("source should be blocked")
	}

	clock.Advance(DefaultBlockDuration)
	if d.IsBlocked("10.1.1.1") {
		t.Error("block should have expired")
	}
	if got := d.BlockedSources(); len(got) != 0 {
		t.Errorf("BlockedSources after expiry = %v, want empty", got)
	}
}

func TestCheckRateCeiling(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewDetector(WithClock(clock.Now), WithMaxRequestsPerMinute(5))

	for i := 0; i < 5; i++ {
		if ev := d.CheckRate("alice"); ev != nil {
			t.Fatalf("request %d within limit triggered: %+v", i+1, ev)
		}
	}

	ev := d.CheckRate("alice")
	if ev == nil {
		t.Fatal("request over the limit should trigger")
	}
	if ev.Category != CategoryRateAbuse || ev.Level != LevelMedium {
		t.Errorf("event = %q/%q, want %q/%q", ev.Category, ev.Level, CategoryRateAbuse, LevelMedium)
	}
	if ev.Mitigated {
		t.Error("rate abuse is reported, not auto-mitigated")
	}

	// Another user is unaffected.
	if ev := d.CheckRate("bob"); ev != nil {
		t.Errorf("separate user triggered: %+v", ev)
	}
}

func TestCheckRateWindowSlides(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewDetector(WithClock(clock.Now), WithMaxRequestsPerMinute(5))

	for i := 0; i < 5; i++ {
		d.CheckRate("carol")
	}
	clock.Advance(rateWindow + time.Second)

	if ev := d.CheckRate("carol"); ev != nil {
		t.Errorf("requests outside the window should not count, got %+v", ev)
	}
}

func TestCheckToolDangerousSequence(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewDetector(WithClock(clock.Now))

	if ev := d.CheckTool("dave", "shell_exec", nil); ev != nil {
		t.Fatalf("single shell_exec triggered: %+v", ev)
	}
	clock.Advance(time.Second)
	if ev := d.CheckTool("dave", "file_write", nil); ev != nil {
		t.Fatalf("shell_exec+file_write triggered: %+v", ev)
	}
	clock.Advance(time.Second)

	ev := d.CheckTool("dave", "network_request", nil)
	if ev == nil {
		t.Fatal("completing the sequence should trigger")
	}
	if ev.Category != CategoryToolAbuse || ev.Level != LevelHigh {
		t.Errorf("event = %q/%q, want %q/%q", ev.Category, ev.Level, CategoryToolAbuse, LevelHigh)
	}
}

func TestCheckToolRepeatedShellExec(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewDetector(WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		if ev := d.CheckTool("erin", "shell_exec", nil); ev != nil {
			t.Fatalf("shell_exec %d triggered: %+v", i+1, ev)
		}
		clock.Advance(time.Second)
	}
	if ev := d.CheckTool("erin", "shell_exec", nil); ev == nil {
		t.Error("fourth shell_exec in the window should trigger")
	}
}

func TestCheckToolTraceAgesOut(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewDetector(WithClock(clock.Now))

	d.CheckTool("frank", "shell_exec", nil)
	d.CheckTool("frank", "file_write", nil)
	clock.Advance(toolTraceWindow + time.Second)

	// Earlier steps fell out of the minute trace.
	if ev := d.CheckTool("frank", "network_request", nil); ev != nil {
		t.Errorf("stale trace should not match, got %+v", ev)
	}
}

func TestCheckToolEscalationIndicator(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewDetector(WithClock(clock.Now))

	ev := d.CheckTool("grace", "shell_exec", map[string]any{"command": "sudo rm -rf /var/data"})
	if ev == nil {
		t.Fatal("sudo in args should trigger")
	}
	if ev.Category != CategoryPrivilegeEscalation || ev.Level != LevelHigh {
		t.Errorf("event = %q/%q, want %q/%q",
			ev.Category, ev.Level, CategoryPrivilegeEscalation, LevelHigh)
	}

	clock.Advance(time.Second)
	if ev := d.CheckTool("grace", "file_read", map[string]any{"path": "/tmp/notes.txt"}); ev != nil {
		t.Errorf("benign call triggered: %+v", ev)
	}
}

func TestCheckToolBaselineAnomaly(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewDetector(WithClock(clock.Now))

	// A baseline restored from an older snapshot does not know about the
	// tools used since. Recreate that divergence directly.
	d.baselines["heidi"] = &Baseline{
		CommonTools:   map[string]bool{"file_read": true, "file_write": true},
		CommonHours:   map[int]bool{12: true},
		TotalRequests: 80,
		LastUpdated:   clock.Now().Unix(),
	}
	d.histories["heidi"] = []toolUse{
		{at: clock.Now(), tool: "port_scan"},
		{at: clock.Now(), tool: "dns_probe"},
		{at: clock.Now(), tool: "file_read"},
		{at: clock.Now(), tool: "file_read"},
	}

	ev := d.CheckTool("heidi", "packet_capture", nil)
	if ev == nil {
		t.Fatal("three unusual tools among the last five should trigger")
	}
	if ev.Category != CategoryAnomalousBehavior || ev.Level != LevelMedium {
		t.Errorf("event = %q/%q, want %q/%q",
			ev.Category, ev.Level, CategoryAnomalousBehavior, LevelMedium)
	}

	// The triggering tool joined the baseline afterwards.
	base, ok := d.BaselineFor("heidi")
	if !ok {
		t.Fatal("baseline should exist")
	}
	if !base.CommonTools["packet_capture"] {
		t.Error("baseline should include the new tool after the check")
	}
	if base.TotalRequests != 81 {
		t.Errorf("TotalRequests = %d, want 81", base.TotalRequests)
	}
}

func TestCheckToolBuildsBaseline(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewDetector(WithClock(clock.Now))

	d.CheckTool("ivan", "file_read", nil)
	clock.Advance(time.Hour)
	d.CheckTool("ivan", "web_search", nil)

	base, ok := d.BaselineFor("ivan")
	if !ok {
		t.Fatal("baseline should exist after first use")
	}
	if base.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", base.TotalRequests)
	}
	if !base.CommonTools["file_read"] || !base.CommonTools["web_search"] {
		t.Errorf("CommonTools = %v, want both tools present", base.CommonTools)
	}
	if !base.CommonHours[12] || !base.CommonHours[13] {
		t.Errorf("CommonHours = %v, want hours 12 and 13", base.CommonHours)
	}

	// Mutating the returned copy must not touch detector state.
	base.CommonTools["forged"] = true
	again, _ := d.BaselineFor("ivan")
	if again.CommonTools["forged"] {
		t.Error("BaselineFor must return a copy")
	}
}

func TestCheckDataVolume(t *testing.T) {
	t.Parallel()

	d := NewDetector(WithClock(newFakeClock().Now))

	if ev := d.CheckData("judy", "export", DefaultMaxDataVolume); ev != nil {
		t.Errorf("volume at the threshold should pass, got %+v", ev)
	}

	ev := d.CheckData("judy", "export", DefaultMaxDataVolume+1)
	if ev == nil {
		t.Fatal("volume over the threshold should trigger")
	}
	if ev.Category != CategoryDataExfiltration || ev.Level != LevelMedium {
		t.Errorf("event = %q/%q, want %q/%q",
			ev.Category, ev.Level, CategoryDataExfiltration, LevelMedium)
	}
	if got := ev.Details["volume_bytes"]; got != DefaultMaxDataVolume+1 {
		t.Errorf("volume_bytes detail = %v, want %d", got, DefaultMaxDataVolume+1)
	}
}

func TestEventIDsMonotonic(t *testing.T) {
	t.Parallel()

	d := NewDetector(WithClock(newFakeClock().Now))

	for i := 0; i < 3; i++ {
		ev := d.CheckData("kim", "export", DefaultMaxDataVolume+1)
		want := fmt.Sprintf("threat_%06d", i+1)
		if ev.ID != want {
			t.Errorf("event %d id = %q, want %q", i, ev.ID, want)
		}
	}
}

func TestRecentFilterAndOrder(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewDetector(WithClock(clock.Now), WithMaxRequestsPerMinute(1))

	d.CheckData("lee", "export", DefaultMaxDataVolume+1) // medium
	d.CheckRate("lee")
	d.CheckRate("lee") // medium
	for i := 0; i < DefaultMaxFailedAuth; i++ {
		d.CheckAuth("10.2.2.2", "lee", false) // high
	}

	all := d.Recent(10, "")
	if len(all) != 3 {
		t.Fatalf("Recent(10) returned %d events, want 3", len(all))
	}
	if all[0].Category != CategoryBruteForce {
		t.Errorf("newest event = %q, want %q", all[0].Category, CategoryBruteForce)
	}
	if all[2].Category != CategoryDataExfiltration {
		t.Errorf("oldest event = %q, want %q", all[2].Category, CategoryDataExfiltration)
	}

	high := d.Recent(10, LevelHigh)
	if len(high) != 1 || high[0].Category != CategoryBruteForce {
		t.Errorf("Recent(10, high) = %+v, want only the brute force event", high)
	}

	if got := d.Recent(2, ""); len(got) != 2 {
		t.Errorf("Recent(2) returned %d events, want 2", len(got))
	}
}

func TestEventRingCapped(t *testing.T) {
	t.Parallel()

	d := NewDetector(WithClock(newFakeClock().Now), WithEventCap(5))

	for i := 0; i < 12; i++ {
		d.CheckData("mia", "export", DefaultMaxDataVolume+1)
	}

	got := d.Recent(100, "")
	if len(got) != 5 {
		t.Fatalf("ring retained %d events, want 5", len(got))
	}
	if got[0].ID != "threat_000012" {
		t.Errorf("newest id = %q, want threat_000012", got[0].ID)
	}
	if got[4].ID != "threat_000008" {
		t.Errorf("oldest retained id = %q, want threat_000008", got[4].ID)
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewDetector(WithClock(clock.Now), WithMaxRequestsPerMinute(1))

	d.CheckData("nick", "export", DefaultMaxDataVolume+1)
	clock.Advance(25 * time.Hour) // ages the first event out of the window

	d.CheckRate("nick")
	d.CheckRate("nick")
	for i := 0; i < DefaultMaxFailedAuth; i++ {
		d.CheckAuth("10.3.3.3", "nick", false)
	}

	sum := d.Summary()
	if sum.WindowHours != 24 {
		t.Errorf("WindowHours = %d, want 24", sum.WindowHours)
	}
	if sum.Total != 2 {
		t.Errorf("Total = %d, want 2 (one event aged out)", sum.Total)
	}
	if sum.ByLevel[LevelMedium] != 1 || sum.ByLevel[LevelHigh] != 1 {
		t.Errorf("ByLevel = %v, want one medium and one high", sum.ByLevel)
	}
	if sum.ByCategory[CategoryRateAbuse] != 1 || sum.ByCategory[CategoryBruteForce] != 1 {
		t.Errorf("ByCategory = %v", sum.ByCategory)
	}
	if sum.BlockedSources != 1 {
		t.Errorf("BlockedSources = %d, want 1", sum.BlockedSources)
	}
	if sum.TrackedUsers != 0 {
		t.Errorf("TrackedUsers = %d, want 0 (no tool activity)", sum.TrackedUsers)
	}
	// The high event is mitigated (auto-block), so no alert.
	if sum.Status != StatusHealthy {
		t.Errorf("Status = %q, want %q", sum.Status, StatusHealthy)
	}
}

func TestSummaryAlertOnUnmitigatedHigh(t *testing.T) {
	t.Parallel()

	d := NewDetector(WithClock(newFakeClock().Now))

	d.CheckTool("olga", "shell_exec", map[string]any{"command": "sudo id"})

	sum := d.Summary()
	if sum.Status != StatusAlert {
		t.Errorf("Status = %q, want %q after unmitigated high event", sum.Status, StatusAlert)
	}
	if sum.TrackedUsers != 1 {
		t.Errorf("TrackedUsers = %d, want 1", sum.TrackedUsers)
	}
}

func TestExportImportState(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	d := NewDetector(WithClock(clock.Now))

	d.CheckTool("peg", "file_read", nil)
	for i := 0; i < DefaultMaxFailedAuth; i++ {
		d.CheckAuth("10.4.4.4", "", false)
	}

	state := d.ExportState()
	if len(state.Baselines) != 1 || state.Baselines["peg"].TotalRequests != 1 {
		t.Errorf("exported baselines = %+v", state.Baselines)
	}
	if _, ok := state.BlockedUntil["10.4.4.4"]; !ok {
		t.Error("exported state should include the active block")
	}

	restored := NewDetector(WithClock(clock.Now))
	restored.ImportState(state)
	if !restored.IsBlocked("10.4.4.4") {
		t.Error("block should survive the round trip")
	}
	if _, ok := restored.BaselineFor("peg"); !ok {
		t.Error("baseline should survive the round trip")
	}

	// Expired blocks are dropped on import.
	clock.Advance(DefaultBlockDuration + time.Second)
	stale := NewDetector(WithClock(clock.Now))
	stale.ImportState(state)
	if stale.IsBlocked("10.4.4.4") {
		t.Error("expired block should not be imported")
	}
}
