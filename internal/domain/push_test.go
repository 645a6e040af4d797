package domain

import (
	"encoding/json"
	"testing"
)

func TestFlexIDAcceptsNumbersAndNumericStrings(t *testing.T) {
	cases := map[string]FlexID{
		`12`:    NewFlexID(12),
		`"12"`:  NewFlexID(12),
		`12.0`:  NewFlexID(12),
		`null`:  {},
		`""`:    {},
		`" 7 "`: NewFlexID(7),
	}
	for raw, want := range cases {
		var got FlexID
		if err := json.Unmarshal([]byte(raw), &got); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if got != want {
			t.Fatalf("unmarshal %s: expected %+v, got %+v", raw, want, got)
		}
	}

	var bad FlexID
	if err := json.Unmarshal([]byte(`"abc"`), &bad); err == nil {
		t.Fatalf("expected error for non-numeric id")
	}
}

func TestSaleItemListAcceptsArrayOrEncodedString(t *testing.T) {
	var direct SaleRecord
	if err := json.Unmarshal([]byte(`{"total_amount":10,"items":[{"product_id":5,"quantity":2,"unit_price":5}]}`), &direct); err != nil {
		t.Fatalf("array items: %v", err)
	}
	var encoded SaleRecord
	if err := json.Unmarshal([]byte(`{"total_amount":10,"items":"[{\"product_id\":5,\"quantity\":2,\"unit_price\":5}]"}`), &encoded); err != nil {
		t.Fatalf("encoded items: %v", err)
	}
	for _, rec := range []SaleRecord{direct, encoded} {
		if !rec.Items.Present || len(rec.Items.Items) != 1 {
			t.Fatalf("expected one item, got %+v", rec.Items)
		}
		item := rec.Items.Items[0]
		if item.ProductID != NewFlexID(5) || item.Quantity == nil || item.Quantity.String() != "2" {
			t.Fatalf("unexpected item %+v", item)
		}
	}

	var absent SaleRecord
	if err := json.Unmarshal([]byte(`{"total_amount":"10.50"}`), &absent); err != nil {
		t.Fatalf("absent items: %v", err)
	}
	if absent.Items.Present {
		t.Fatalf("expected items to be absent")
	}
	if absent.TotalAmount == nil || absent.TotalAmount.String() != "10.5" {
		t.Fatalf("expected quoted decimal to decode, got %v", absent.TotalAmount)
	}

	var bad SaleRecord
	if err := json.Unmarshal([]byte(`{"total_amount":10,"items":{"product_id":5}}`), &bad); err == nil {
		t.Fatalf("expected error for object items")
	}
	if err := json.Unmarshal([]byte(`{"total_amount":10,"items":"not json"}`), &bad); err == nil {
		t.Fatalf("expected error for undecodable items string")
	}
}

func TestNonNumericAmountIsRejected(t *testing.T) {
	var rec TransactionRecord
	if err := json.Unmarshal([]byte(`{"amount":"abc"}`), &rec); err == nil {
		t.Fatalf("expected error for non-numeric amount")
	}
}
