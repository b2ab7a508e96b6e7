package store

import (
	"context"
	"testing"
)

func TestMasterStoreLookups(t *testing.T) {
	db := setupDB(t)
	s := NewMasterStore(db)
	ctx := context.Background()

	catID, err := s.AddCategory(ctx, "Water Pollution")
	if err != nil {
		t.Fatalf("add category: %v", err)
	}
	subID, err := s.AddSubCategory(ctx, catID, "Chemical Discharge")
	if err != nil {
		t.Fatalf("add subcategory: %v", err)
	}
	urgID, err := s.AddUrgency(ctx, "High")
	if err != nil {
		t.Fatalf("add urgency: %v", err)
	}
	ctID, err := s.AddContactType(ctx, "Phone")
	if err != nil {
		t.Fatalf("add contact type: %v", err)
	}

	if name, _ := s.CategoryName(ctx, catID); name != "Water Pollution" {
		t.Fatalf("category name %q", name)
	}
	if name, _ := s.SubCategoryName(ctx, subID); name != "Chemical Discharge" {
		t.Fatalf("subcategory name %q", name)
	}
	if name, _ := s.UrgencyName(ctx, urgID); name != "High" {
		t.Fatalf("urgency name %q", name)
	}
	if name, _ := s.ContactTypeName(ctx, ctID); name != "Phone" {
		t.Fatalf("contact type name %q", name)
	}

	// Unknown and non-positive ids resolve to empty, never an error.
	if name, err := s.CategoryName(ctx, 9999); err != nil || name != "" {
		t.Fatalf("unknown id: %q %v", name, err)
	}
	if name, err := s.CategoryName(ctx, 0); err != nil || name != "" {
		t.Fatalf("zero id: %q %v", name, err)
	}
	if name, err := s.CategoryName(ctx, -5); err != nil || name != "" {
		t.Fatalf("negative id: %q %v", name, err)
	}
}

func TestMasterStoreSubCategoriesScopedToCategory(t *testing.T) {
	db := setupDB(t)
	s := NewMasterStore(db)
	ctx := context.Background()

	pollution, _ := s.AddCategory(ctx, "Water Pollution")
	supply, _ := s.AddCategory(ctx, "Water Supply")
	if _, err := s.AddSubCategory(ctx, pollution, "Oil Slick"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.AddSubCategory(ctx, supply, "Low Pressure"); err != nil {
		t.Fatalf("add: %v", err)
	}

	subs, err := s.ListSubCategories(ctx, pollution)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].Name != "Oil Slick" {
		t.Fatalf("scoped list: %+v", subs)
	}
}

func TestMasterStoreRejectsDuplicates(t *testing.T) {
	db := setupDB(t)
	s := NewMasterStore(db)
	ctx := context.Background()

	if _, err := s.AddCategory(ctx, "Drainage"); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := s.AddCategory(ctx, "Drainage"); err == nil {
		t.Fatal("duplicate category accepted")
	}
}
