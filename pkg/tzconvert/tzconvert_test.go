package tzconvert

import (
	"errors"
	"testing"
	"time"
)

func TestCivilHourAndMinute(t *testing.T) {
	instant := time.Date(2024, 7, 15, 7, 45, 0, 0, time.UTC)

	tests := []struct {
		zone       string
		wantHour   int
		wantMinute int
	}{
		{"Europe/Warsaw", 9, 45},
		{"America/New_York", 3, 45},
		{"Asia/Kolkata", 13, 15},
		{"Asia/Kathmandu", 13, 30},
		{"UTC", 7, 45},
		{"Not/AZone", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.zone, func(t *testing.T) {
			if got := CivilHour(tt.zone, instant); got != tt.wantHour {
				t.Errorf("CivilHour(%q) = %d, want %d", tt.zone, got, tt.wantHour)
			}
			if got := CivilMinute(tt.zone, instant); got != tt.wantMinute {
				t.Errorf("CivilMinute(%q) = %d, want %d", tt.zone, got, tt.wantMinute)
			}
		})
	}
}

func TestAnchorForRoundTrip(t *testing.T) {
	zones := []string{
		"Europe/Warsaw", "America/New_York", "America/Los_Angeles", "Asia/Tokyo",
		"Asia/Kolkata", "Australia/Adelaide", "Pacific/Chatham", "America/St_Johns", "UTC",
	}
	references := []time.Time{
		time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 15, 23, 59, 0, 0, time.UTC),
	}

	for _, zone := range zones {
		for _, ref := range references {
			for hour := 0; hour < 24; hour++ {
				anchor, err := AnchorFor(zone, hour, ref)
				if err != nil {
					t.Fatalf("AnchorFor(%q, %d) error: %v", zone, hour, err)
				}
				if got := CivilHour(zone, anchor); got != hour {
					t.Errorf("CivilHour(%q, AnchorFor(%d)) = %d", zone, hour, got)
				}
				if got := CivilMinute(zone, anchor); got != 0 {
					t.Errorf("CivilMinute(%q, AnchorFor(%d)) = %d, want 0", zone, hour, got)
				}
			}
		}
	}
}

func TestAnchorForUsesDateInZone(t *testing.T) {
	// 23:30 UTC on July 15 is already July 16 in Tokyo.
	ref := time.Date(2024, 7, 15, 23, 30, 0, 0, time.UTC)
	got, err := AnchorFor("Asia/Tokyo", 9, ref)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 7, 16, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("AnchorFor = %v, want %v", got, want)
	}
}

func TestAnchorForDaylightSaving(t *testing.T) {
	tests := []struct {
		name string
		zone string
		hour int
		ref  time.Time
		want time.Time
	}{
		{
			name: "fall-back overlap picks the earlier instant",
			zone: "America/New_York",
			hour: 1,
			ref:  time.Date(2024, 11, 3, 12, 0, 0, 0, time.UTC),
			want: time.Date(2024, 11, 3, 5, 0, 0, 0, time.UTC),
		},
		{
			name: "spring-forward gap resolves to the transition",
			zone: "America/New_York",
			hour: 2,
			ref:  time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC),
		},
		{
			name: "hour after the gap is exact",
			zone: "America/New_York",
			hour: 3,
			ref:  time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC),
		},
		{
			name: "european overlap",
			zone: "Europe/Warsaw",
			hour: 2,
			ref:  time.Date(2024, 10, 27, 12, 0, 0, 0, time.UTC),
			want: time.Date(2024, 10, 27, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "half-hour gap keeps the hour",
			zone: "Australia/Lord_Howe",
			hour: 2,
			ref:  time.Date(2024, 10, 6, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, 10, 5, 15, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AnchorFor(tt.zone, tt.hour, tt.ref)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("AnchorFor(%q, %d) = %v, want %v", tt.zone, tt.hour, got.UTC(), tt.want)
			}
		})
	}
}

func TestAnchorForErrors(t *testing.T) {
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

	if _, err := AnchorFor("Not/AZone", 9, now); !errors.Is(err, ErrUnknownZone) {
		t.Errorf("unknown zone error = %v, want ErrUnknownZone", err)
	}
	if _, err := AnchorFor("Local", 9, now); !errors.Is(err, ErrUnknownZone) {
		t.Errorf("Local error = %v, want ErrUnknownZone", err)
	}
	for _, hour := range []int{-1, 24} {
		if _, err := AnchorFor("Europe/Warsaw", hour, now); !errors.Is(err, ErrHourOutOfRange) {
			t.Errorf("hour %d error = %v, want ErrHourOutOfRange", hour, err)
		}
	}
}

func TestRecognized(t *testing.T) {
	for zone, want := range map[string]bool{
		"Europe/Warsaw":    true,
		"America/New_York": true,
		"UTC":              true,
		"Not/AZone":        false,
		"":                 false,
		"Local":            false,
	} {
		if got := Recognized(zone); got != want {
			t.Errorf("Recognized(%q) = %v, want %v", zone, got, want)
		}
	}
}

func TestUTCOffsetLabel(t *testing.T) {
	summer := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		zone string
		want string
	}{
		{"Europe/Warsaw", "UTC+2"},
		{"America/New_York", "UTC-4"},
		{"Asia/Kolkata", "UTC+5:30"},
		{"America/St_Johns", "UTC-2:30"},
		{"UTC", "UTC"},
		{"Not/AZone", ""},
	}
	for _, tt := range tests {
		if got := UTCOffsetLabel(tt.zone, summer); got != tt.want {
			t.Errorf("UTCOffsetLabel(%q) = %q, want %q", tt.zone, got, tt.want)
		}
	}
}
