package speaker

import "testing"

func TestIsSpeakingBelowThreshold(t *testing.T) {
	d := New()
	for i := 0; i < 5; i++ {
		d.ReportAudioLevel(1, 20)
	}
	if !d.IsSpeaking(1) {
		t.Fatal("expected speaking with low average level")
	}
}

func TestIsSpeakingFalseAboveThreshold(t *testing.T) {
	d := New()
	for i := 0; i < 5; i++ {
		d.ReportAudioLevel(1, 127)
	}
	if d.IsSpeaking(1) {
		t.Fatal("expected not speaking with silence levels")
	}
}

func TestThresholdBoundaryIsExclusive(t *testing.T) {
	d := New()
	for i := 0; i < 5; i++ {
		d.ReportAudioLevel(1, 100)
	}
	if d.IsSpeaking(1) {
		t.Fatal("average exactly at threshold must not count as speaking")
	}
}

func TestUnknownUserIsNotSpeaking(t *testing.T) {
	d := New()
	if d.IsSpeaking(999) {
		t.Fatal("expected false for user with no history")
	}
}

func TestGetSpeakerUpdateSkipsUsersWithNoHistory(t *testing.T) {
	d := New()
	d.ReportAudioLevel(1, 10)

	updates := d.GetSpeakerUpdate([]int64{1, 2})
	if len(updates) != 1 || updates[0].UserID != 1 {
		t.Fatalf("updates = %+v, want only user 1", updates)
	}
}

func TestRemoveUserClearsHistory(t *testing.T) {
	d := New()
	d.ReportAudioLevel(1, 10)
	d.RemoveUser(1)
	if d.IsSpeaking(1) {
		t.Fatal("expected not speaking after removal")
	}
	if len(d.GetSpeakerUpdate([]int64{1})) != 0 {
		t.Fatal("expected no update for removed user")
	}
}

func TestSlidingWindowDropsOldSamples(t *testing.T) {
	d := New()
	// Fill with silence, then push enough loud samples to fill the
	// 5-sample window and flip the verdict within 5 samples.
	for i := 0; i < 5; i++ {
		d.ReportAudioLevel(1, 127)
	}
	for i := 0; i < 5; i++ {
		d.ReportAudioLevel(1, 0)
	}
	if !d.IsSpeaking(1) {
		t.Fatal("expected speaking after window fully replaced with loud samples")
	}
}
