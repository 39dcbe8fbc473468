package db

import (
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/virtual.ptz/internal/dewarp"
)

func TestCreateSite_Defaults(t *testing.T) {
	db, _ := setupTestDB(t)

	site := &Site{Name: "Loading Dock"}
	if err := db.CreateSite(site); err != nil {
		t.Fatalf("CreateSite failed: %v", err)
	}
	if site.ID == 0 {
		t.Error("expected site ID to be set after creation")
	}

	got, err := db.GetSite(site.ID)
	if err != nil {
		t.Fatalf("GetSite failed: %v", err)
	}
	if got.CameraType != dewarp.CameraGeneric {
		t.Errorf("expected generic camera type, got %q", got.CameraType)
	}
	if got.StreamResolution != "1920x1080" {
		t.Errorf("expected default resolution, got %q", got.StreamResolution)
	}
	if got.Dewarp != dewarp.DefaultParams() {
		t.Errorf("expected default dewarp params, got %+v", got.Dewarp)
	}
	if !got.CreatedAt.Equal(testEpoch) || !got.UpdatedAt.Equal(testEpoch) {
		t.Errorf("expected timestamps at %v, got %v / %v", testEpoch, got.CreatedAt, got.UpdatedAt)
	}
}

func TestCreateSite_Validation(t *testing.T) {
	db, _ := setupTestDB(t)

	tests := []struct {
		name string
		site Site
	}{
		{"empty name", Site{Name: "  "}},
		{"unknown camera", Site{Name: "x", CameraType: "potato-cam"}},
		{"bad resolution", Site{Name: "x", StreamResolution: "wide"}},
		{"cx out of range", Site{Name: "x", Dewarp: dewarp.Params{CX: 1.5, CY: 0.5}}},
		{"bad ptz url", Site{Name: "x", PTZURL: "pelco:///dev/ttyUSB0?address=999"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := tt.site
			if err := db.CreateSite(&site); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid for %+v, got %v", tt.site, err)
			}
		})
	}
}

func TestGetSite_NotFound(t *testing.T) {
	db, _ := setupTestDB(t)

	_, err := db.GetSite(999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListSites_NewestFirst(t *testing.T) {
	db, clock := setupTestDB(t)

	mustCreateSite(t, db, "First")
	clock.Advance(time.Minute)
	mustCreateSite(t, db, "Second")

	sites, err := db.ListSites()
	if err != nil {
		t.Fatalf("ListSites failed: %v", err)
	}
	if len(sites) != 2 {
		t.Fatalf("expected 2 sites, got %d", len(sites))
	}
	if sites[0].Name != "Second" || sites[1].Name != "First" {
		t.Errorf("expected newest first, got %q then %q", sites[0].Name, sites[1].Name)
	}
}

func TestUpdateSite(t *testing.T) {
	db, clock := setupTestDB(t)
	site := mustCreateSite(t, db, "Before")

	clock.Advance(time.Hour)
	site.Name = "After"
	site.StreamResolution = "2560x1440"
	site.CameraType = dewarp.CameraTapoC510W
	if err := db.UpdateSite(site); err != nil {
		t.Fatalf("UpdateSite failed: %v", err)
	}

	got, err := db.GetSite(site.ID)
	if err != nil {
		t.Fatalf("GetSite failed: %v", err)
	}
	if got.Name != "After" || got.StreamResolution != "2560x1440" || got.CameraType != dewarp.CameraTapoC510W {
		t.Errorf("update not persisted: %+v", got)
	}
	if !got.UpdatedAt.Equal(testEpoch.Add(time.Hour)) {
		t.Errorf("expected updated_at to advance, got %v", got.UpdatedAt)
	}
	if !got.CreatedAt.Equal(testEpoch) {
		t.Errorf("expected created_at unchanged, got %v", got.CreatedAt)
	}
	if w := got.StreamSize().Width; w != 2560 {
		t.Errorf("expected stream width 2560, got %g", w)
	}

	missing := &Site{ID: 404, Name: "Ghost"}
	if err := db.UpdateSite(missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound updating a missing site, got %v", err)
	}
}

func TestDeleteSite_Cascades(t *testing.T) {
	db, _ := setupTestDB(t)
	site := mustCreateSite(t, db, "Doomed")

	region := &Region{SiteID: site.ID}
	region.Name = "Bench"
	region.Width, region.Height = 100, 100
	if err := db.CreateRegion(region); err != nil {
		t.Fatalf("CreateRegion failed: %v", err)
	}
	if err := db.ConfirmCalibration(&Calibration{SiteID: site.ID, Params: dewarp.DefaultParams()}); err != nil {
		t.Fatalf("ConfirmCalibration failed: %v", err)
	}

	if err := db.DeleteSite(site.ID); err != nil {
		t.Fatalf("DeleteSite failed: %v", err)
	}

	for _, table := range []string{"machine_regions", "dewarp_calibrations"} {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE site_id = ?`, site.ID).Scan(&n); err != nil {
			t.Fatalf("count %s failed: %v", table, err)
		}
		if n != 0 {
			t.Errorf("expected %s rows to be deleted with the site, found %d", table, n)
		}
	}

	if err := db.DeleteSite(site.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestSetDewarpParams(t *testing.T) {
	db, _ := setupTestDB(t)
	site := mustCreateSite(t, db, "Lens")

	p := dewarp.Params{Enabled: true, CX: 0.48, CY: 0.52, K1: -0.12, K2: -0.0096}
	if err := db.SetDewarpParams(site.ID, p); err != nil {
		t.Fatalf("SetDewarpParams failed: %v", err)
	}
	got, err := db.GetSite(site.ID)
	if err != nil {
		t.Fatalf("GetSite failed: %v", err)
	}
	if got.Dewarp != p {
		t.Errorf("expected %+v, got %+v", p, got.Dewarp)
	}

	if err := db.SetDewarpParams(site.ID, dewarp.Params{CX: -1}); err == nil {
		t.Error("expected invalid params to be rejected")
	}
	if err := db.SetDewarpParams(12345, p); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestControlURL(t *testing.T) {
	db, _ := setupTestDB(t)
	site := mustCreateSite(t, db, "PTZ")

	u, err := db.ControlURL(site.ID)
	if err != nil {
		t.Fatalf("ControlURL failed: %v", err)
	}
	if u != site.CameraURL {
		t.Errorf("expected the stream url %q, got %q", site.CameraURL, u)
	}

	site.PTZURL = "pelco:///dev/ttyUSB0?address=2"
	if err := db.UpdateSite(site); err != nil {
		t.Fatalf("UpdateSite failed: %v", err)
	}
	if u, _ = db.ControlURL(site.ID); u != site.PTZURL {
		t.Errorf("expected ptz_url to take precedence, got %q", u)
	}
	got, _ := db.GetSite(site.ID)
	if got.PTZURL != site.PTZURL {
		t.Errorf("ptz_url not stored, got %q", got.PTZURL)
	}

	if _, err := db.ControlURL(site.ID + 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSeedDefaultSite(t *testing.T) {
	db, _ := setupTestDB(t)

	seeded, err := db.SeedDefaultSite()
	if err != nil {
		t.Fatalf("SeedDefaultSite failed: %v", err)
	}
	if !seeded {
		t.Fatal("expected an empty database to be seeded")
	}

	seeded, err = db.SeedDefaultSite()
	if err != nil {
		t.Fatalf("second SeedDefaultSite failed: %v", err)
	}
	if seeded {
		t.Error("expected no second seed")
	}

	sites, err := db.ListSites()
	if err != nil {
		t.Fatalf("ListSites failed: %v", err)
	}
	if len(sites) != 1 {
		t.Fatalf("expected exactly one seeded site, got %d", len(sites))
	}
	if sites[0].StreamResolution != "2560x1440" || sites[0].CameraURL != "" {
		t.Errorf("unexpected seeded site: %+v", sites[0])
	}
}
