package onboarding

import "testing"

func TestOtherRegionsMarkupLayout(t *testing.T) {
	t.Parallel()
	rm := otherRegionsMarkup()
	rows := rm.InlineKeyboard
	if len(rows) < 2 {
		t.Fatalf("keyboard has %d rows", len(rows))
	}
	for i, row := range rows[:len(rows)-1] {
		if len(row) > 2 {
			t.Fatalf("row %d has %d buttons, want at most 2", i, len(row))
		}
	}
	last := rows[len(rows)-1]
	if len(last) != 1 || last[0].Text != btnBack {
		t.Fatalf("last row = %+v, want a single back button", last)
	}
}

func TestMainRegionsMarkupHasOtherRegionsButton(t *testing.T) {
	t.Parallel()
	rm := mainRegionsMarkup()
	rows := rm.InlineKeyboard
	if len(rows) != len(mainRegions)+1 {
		t.Fatalf("keyboard has %d rows, want %d", len(rows), len(mainRegions)+1)
	}
	last := rows[len(rows)-1]
	if len(last) != 1 || last[0].Text != btnOtherRegions {
		t.Fatalf("last row = %+v, want the other-regions button", last)
	}
}
