package analytics

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockClickRepo struct {
	incrementFn     func(ctx context.Context, key string) error
	addUniqueIPFn   func(ctx context.Context, key, address string) error
	upsertRefererFn func(ctx context.Context, key, source string, at time.Time) error
	upsertRegionFn  func(ctx context.Context, key string, country *Country, at time.Time) error
}

func (m *mockClickRepo) IncrementTotalClicks(ctx context.Context, key string) error {
	if m.incrementFn == nil {
		return nil
	}
	return m.incrementFn(ctx, key)
}
func (m *mockClickRepo) AddUniqueIP(ctx context.Context, key, address string) error {
	if m.addUniqueIPFn == nil {
		return nil
	}
	return m.addUniqueIPFn(ctx, key, address)
}
func (m *mockClickRepo) UpsertReferer(ctx context.Context, key, source string, at time.Time) error {
	if m.upsertRefererFn == nil {
		return nil
	}
	return m.upsertRefererFn(ctx, key, source, at)
}
func (m *mockClickRepo) UpsertRegion(ctx context.Context, key string, country *Country, at time.Time) error {
	if m.upsertRegionFn == nil {
		return nil
	}
	return m.upsertRegionFn(ctx, key, country, at)
}

type mockGeo struct {
	countryFn func(ctx context.Context, ip string) (Country, error)
}

func (m *mockGeo) Country(ctx context.Context, ip string) (Country, error) {
	return m.countryFn(ctx, ip)
}

type mockStats struct {
	summaryFn func(ctx context.Context, key string) (Summary, error)
}

func (m *mockStats) Summary(ctx context.Context, key string) (Summary, error) {
	return m.summaryFn(ctx, key)
}

func TestRecordAppliesAllSteps(t *testing.T) {
	var (
		incremented bool
		gotIP       string
		gotSource   string
		gotCountry  *Country
	)
	clicks := &mockClickRepo{
		incrementFn: func(_ context.Context, key string) error {
			incremented = true
			return nil
		},
		addUniqueIPFn: func(_ context.Context, _ string, address string) error {
			gotIP = address
			return nil
		},
		upsertRefererFn: func(_ context.Context, _ string, source string, _ time.Time) error {
			gotSource = source
			return nil
		},
		upsertRegionFn: func(_ context.Context, _ string, country *Country, _ time.Time) error {
			gotCountry = country
			return nil
		},
	}
	geo := &mockGeo{countryFn: func(context.Context, string) (Country, error) {
		return Country{Name: "Brazil", Code: "BR"}, nil
	}}

	p := NewPipeline(clicks, nil, geo, "lk.example")
	err := p.Record(context.Background(), "k1", Visit{
		IP:      "203.0.113.9",
		Referer: "https://blog.example/post",
		At:      time.Now(),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	if !incremented {
		t.Error("total clicks were not incremented")
	}
	if gotIP != "203.0.113.9" {
		t.Errorf("unique IP = %q, want the visit address", gotIP)
	}
	if gotSource != "blog.example" {
		t.Errorf("referer source = %q, want blog.example", gotSource)
	}
	if gotCountry == nil || gotCountry.Code != "BR" {
		t.Errorf("region country = %+v, want BR", gotCountry)
	}
}

func TestRecordGeoFailureIsAbsorbed(t *testing.T) {
	var gotCountry *Country
	regionCalled := false
	clicks := &mockClickRepo{
		upsertRegionFn: func(_ context.Context, _ string, country *Country, _ time.Time) error {
			regionCalled = true
			gotCountry = country
			return nil
		},
	}
	geo := &mockGeo{countryFn: func(context.Context, string) (Country, error) {
		return Country{}, ErrCountryUnknown
	}}

	p := NewPipeline(clicks, nil, geo, "")
	if err := p.Record(context.Background(), "k1", Visit{IP: "10.0.0.1"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if !regionCalled {
		t.Fatal("region upsert skipped on geo failure; the null-country bucket must still count the visit")
	}
	if gotCountry != nil {
		t.Errorf("country = %+v, want nil on geo failure", gotCountry)
	}
}

func TestRecordContinuesPastStepFailures(t *testing.T) {
	refererCalled := false
	regionCalled := false
	clicks := &mockClickRepo{
		incrementFn: func(context.Context, string) error {
			return errors.New("increment down")
		},
		addUniqueIPFn: func(context.Context, string, string) error {
			return errors.New("ip set down")
		},
		upsertRefererFn: func(context.Context, string, string, time.Time) error {
			refererCalled = true
			return nil
		},
		upsertRegionFn: func(context.Context, string, *Country, time.Time) error {
			regionCalled = true
			return nil
		},
	}

	p := NewPipeline(clicks, nil, nil, "")
	err := p.Record(context.Background(), "k1", Visit{IP: "203.0.113.9"})
	if err == nil {
		t.Fatal("Record should surface the joined error for logging")
	}
	if !refererCalled || !regionCalled {
		t.Errorf("later steps skipped after failure: referer=%v region=%v", refererCalled, regionCalled)
	}
}

func TestRecordSkipsIPStepsWithoutAddress(t *testing.T) {
	clicks := &mockClickRepo{
		addUniqueIPFn: func(context.Context, string, string) error {
			t.Fatal("AddUniqueIP should not run without an address")
			return nil
		},
	}
	geo := &mockGeo{countryFn: func(context.Context, string) (Country, error) {
		t.Fatal("geo lookup should not run without an address")
		return Country{}, nil
	}}

	p := NewPipeline(clicks, nil, geo, "")
	if err := p.Record(context.Background(), "k1", Visit{}); err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func TestRecordIgnoresEmptyKey(t *testing.T) {
	clicks := &mockClickRepo{
		incrementFn: func(context.Context, string) error {
			t.Fatal("no counters should move for an empty key")
			return nil
		},
	}

	p := NewPipeline(clicks, nil, nil, "")
	if err := p.Record(context.Background(), "  ", Visit{IP: "203.0.113.9"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func TestSummaryDelegates(t *testing.T) {
	want := Summary{UniqueVisitors: 7}
	stats := &mockStats{summaryFn: func(_ context.Context, key string) (Summary, error) {
		if key != "k1" {
			t.Errorf("key = %q, want k1", key)
		}
		return want, nil
	}}

	p := NewPipeline(&mockClickRepo{}, stats, nil, "")
	got, err := p.Summary(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if got.UniqueVisitors != want.UniqueVisitors {
		t.Errorf("UniqueVisitors = %d, want %d", got.UniqueVisitors, want.UniqueVisitors)
	}

	if _, err := p.Summary(context.Background(), ""); err == nil {
		t.Error("Summary with empty key should error")
	}
}
