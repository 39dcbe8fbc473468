package db

import (
	"errors"
	"testing"
)

func newRegion(siteID int, name string, order int, isDefault bool) *Region {
	r := &Region{SiteID: siteID}
	r.Name = name
	r.X, r.Y = 100, 50
	r.Width, r.Height = 640, 360
	r.DisplayOrder = order
	r.IsDefault = isDefault
	return r
}

func regionNames(regions []Region) []string {
	names := make([]string, len(regions))
	for i, r := range regions {
		names[i] = r.Name
	}
	return names
}

func TestCreateRegion(t *testing.T) {
	db, _ := setupTestDB(t)
	site := mustCreateSite(t, db, "Workshop")

	r := newRegion(site.ID, "Lathe", 0, false)
	if err := db.CreateRegion(r); err != nil {
		t.Fatalf("CreateRegion failed: %v", err)
	}
	if r.ID == 0 {
		t.Error("expected region ID to be set")
	}
	if r.Icon != DefaultRegionIcon {
		t.Errorf("expected default icon, got %q", r.Icon)
	}

	got, err := db.GetRegion(r.ID)
	if err != nil {
		t.Fatalf("GetRegion failed: %v", err)
	}
	if *got != *r {
		t.Errorf("expected %+v, got %+v", *r, *got)
	}
}

func TestCreateRegion_Validation(t *testing.T) {
	db, _ := setupTestDB(t)
	site := mustCreateSite(t, db, "Workshop")

	noName := newRegion(site.ID, "", 0, false)
	if err := db.CreateRegion(noName); !errors.Is(err, ErrInvalid) {
		t.Error("expected a region without a name to be rejected")
	}

	flat := newRegion(site.ID, "Flat", 0, false)
	flat.Height = 0
	if err := db.CreateRegion(flat); err == nil {
		t.Error("expected a zero-height region to be rejected")
	}

	negative := newRegion(site.ID, "Off frame", 0, false)
	negative.X = -10
	if err := db.CreateRegion(negative); err == nil {
		t.Error("expected a negative origin to be rejected")
	}

	orphan := newRegion(site.ID+100, "Orphan", 0, false)
	if err := db.CreateRegion(orphan); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing site, got %v", err)
	}
}

func TestCreateRegion_SingleDefault(t *testing.T) {
	db, _ := setupTestDB(t)
	site := mustCreateSite(t, db, "Workshop")
	other := mustCreateSite(t, db, "Other")

	first := newRegion(site.ID, "First", 0, true)
	second := newRegion(site.ID, "Second", 1, true)
	elsewhere := newRegion(other.ID, "Elsewhere", 0, true)
	for _, r := range []*Region{first, elsewhere, second} {
		if err := db.CreateRegion(r); err != nil {
			t.Fatalf("CreateRegion(%s) failed: %v", r.Name, err)
		}
	}

	regions, err := db.ListRegions(site.ID)
	if err != nil {
		t.Fatalf("ListRegions failed: %v", err)
	}
	var defaults []string
	for _, r := range regions {
		if r.IsDefault {
			defaults = append(defaults, r.Name)
		}
	}
	if len(defaults) != 1 || defaults[0] != "Second" {
		t.Errorf("expected only Second to be default, got %v", defaults)
	}

	got, err := db.GetRegion(elsewhere.ID)
	if err != nil {
		t.Fatalf("GetRegion failed: %v", err)
	}
	if !got.IsDefault {
		t.Error("default flag of another site must not be cleared")
	}
}

func TestListRegions_Order(t *testing.T) {
	db, _ := setupTestDB(t)
	site := mustCreateSite(t, db, "Workshop")

	for _, r := range []*Region{
		newRegion(site.ID, "C", 2, false),
		newRegion(site.ID, "A", 0, false),
		newRegion(site.ID, "B", 1, false),
		newRegion(site.ID, "A2", 0, false),
	} {
		if err := db.CreateRegion(r); err != nil {
			t.Fatalf("CreateRegion failed: %v", err)
		}
	}

	regions, err := db.ListRegions(site.ID)
	if err != nil {
		t.Fatalf("ListRegions failed: %v", err)
	}
	want := []string{"A", "A2", "B", "C"}
	got := regionNames(regions)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	empty, err := db.ListRegions(site.ID + 1)
	if err != nil {
		t.Fatalf("ListRegions failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected an empty non-nil slice, got %#v", empty)
	}
}

func TestUpdateRegion(t *testing.T) {
	db, _ := setupTestDB(t)
	site := mustCreateSite(t, db, "Workshop")

	a := newRegion(site.ID, "A", 0, true)
	b := newRegion(site.ID, "B", 1, false)
	for _, r := range []*Region{a, b} {
		if err := db.CreateRegion(r); err != nil {
			t.Fatalf("CreateRegion failed: %v", err)
		}
	}

	b.Name = "B renamed"
	b.Icon = "🔧"
	b.IsDefault = true
	b.SiteID = 0 // ignored
	if err := db.UpdateRegion(b); err != nil {
		t.Fatalf("UpdateRegion failed: %v", err)
	}
	if b.SiteID != site.ID {
		t.Errorf("expected SiteID to be refreshed to %d, got %d", site.ID, b.SiteID)
	}

	gotA, err := db.GetRegion(a.ID)
	if err != nil {
		t.Fatalf("GetRegion failed: %v", err)
	}
	if gotA.IsDefault {
		t.Error("expected A to lose the default flag")
	}
	gotB, err := db.GetRegion(b.ID)
	if err != nil {
		t.Fatalf("GetRegion failed: %v", err)
	}
	if gotB.Name != "B renamed" || gotB.Icon != "🔧" || !gotB.IsDefault {
		t.Errorf("update not persisted: %+v", gotB)
	}

	ghost := newRegion(site.ID, "Ghost", 0, false)
	ghost.ID = 9999
	if err := db.UpdateRegion(ghost); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRegion(t *testing.T) {
	db, _ := setupTestDB(t)
	site := mustCreateSite(t, db, "Workshop")

	r := newRegion(site.ID, "Temp", 0, false)
	if err := db.CreateRegion(r); err != nil {
		t.Fatalf("CreateRegion failed: %v", err)
	}
	if err := db.DeleteRegion(r.ID); err != nil {
		t.Fatalf("DeleteRegion failed: %v", err)
	}
	if _, err := db.GetRegion(r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := db.DeleteRegion(r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestReorderRegions(t *testing.T) {
	db, _ := setupTestDB(t)
	site := mustCreateSite(t, db, "Workshop")
	other := mustCreateSite(t, db, "Other")

	var ids []int
	for i, name := range []string{"A", "B", "C"} {
		r := newRegion(site.ID, name, i, false)
		if err := db.CreateRegion(r); err != nil {
			t.Fatalf("CreateRegion failed: %v", err)
		}
		ids = append(ids, r.ID)
	}

	if err := db.ReorderRegions(site.ID, []int{ids[2], ids[0], ids[1]}); err != nil {
		t.Fatalf("ReorderRegions failed: %v", err)
	}
	regions, err := db.ListRegions(site.ID)
	if err != nil {
		t.Fatalf("ListRegions failed: %v", err)
	}
	got := regionNames(regions)
	if got[0] != "C" || got[1] != "A" || got[2] != "B" {
		t.Errorf("expected [C A B], got %v", got)
	}

	// a foreign region aborts the whole reorder
	foreign := newRegion(other.ID, "Foreign", 0, false)
	if err := db.CreateRegion(foreign); err != nil {
		t.Fatalf("CreateRegion failed: %v", err)
	}
	err = db.ReorderRegions(site.ID, []int{ids[0], foreign.ID, ids[1], ids[2]})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	regions, err = db.ListRegions(site.ID)
	if err != nil {
		t.Fatalf("ListRegions failed: %v", err)
	}
	got = regionNames(regions)
	if got[0] != "C" || got[1] != "A" || got[2] != "B" {
		t.Errorf("expected the failed reorder to roll back, got %v", got)
	}
}
