package sqlutil

import (
	"testing"
	"time"
)

func TestStringConversion(t *testing.T) {
	if ToSqlString("").Valid {
		t.Error("ToSqlString(\"\") is valid")
	}
	if got := FromSqlString(ToSqlString("drift")); got != "drift" {
		t.Errorf("round trip = %q", got)
	}
}

func TestTimeConversion(t *testing.T) {
	if ToSqlTime(time.Time{}).Valid {
		t.Error("ToSqlTime(zero) is valid")
	}
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := FromSqlTime(ToSqlTime(at)); !got.Equal(at) {
		t.Errorf("round trip = %v", got)
	}
	if !FromSqlTime(ToSqlTime(time.Time{})).IsZero() {
		t.Error("NULL did not map back to zero")
	}
}
