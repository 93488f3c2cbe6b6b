package sbissync

import (
	"errors"
	"testing"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	dup := &mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry"}
	if !isDuplicateKeyErr(dup) {
		t.Error("1062 should be a duplicate key error")
	}
	if !isDuplicateKeyErr(errors.Join(errors.New("wrapped"), dup)) {
		t.Error("wrapped 1062 should still be detected")
	}
	if isDuplicateKeyErr(&mysqlDriver.MySQLError{Number: 1213}) {
		t.Error("deadlock is not a duplicate key error")
	}
	if isDuplicateKeyErr(errors.New("plain")) {
		t.Error("plain error is not a duplicate key error")
	}
	if isDuplicateKeyErr(nil) {
		t.Error("nil is not a duplicate key error")
	}
}

func TestParseTimePtr(t *testing.T) {
	if got := parseTimePtr("2026-03-15T10:00:00Z"); got == nil || got.Day() != 15 {
		t.Errorf("RFC3339 parse failed: %v", got)
	}
	if got := parseTimePtr("2026-03-15"); got == nil || got.Month() != time.March {
		t.Errorf("date-only parse failed: %v", got)
	}
	if got := parseTimePtr(""); got != nil {
		t.Errorf("empty should be nil, got %v", got)
	}
	if got := parseTimePtr("15.03.2026"); got != nil {
		t.Errorf("unsupported layout should be nil, got %v", got)
	}
}

func TestParseTimeOrNow(t *testing.T) {
	fixed := parseTimeOrNow("2026-01-02")
	if fixed.Year() != 2026 || fixed.Day() != 2 {
		t.Errorf("got %v", fixed)
	}
	before := time.Now()
	fallback := parseTimeOrNow("garbage")
	if fallback.Before(before.Add(-time.Second)) {
		t.Errorf("fallback should be near now, got %v", fallback)
	}
}

func TestIntFromEnv(t *testing.T) {
	t.Setenv("SYNC_TEST_INT", "7")
	if got := intFromEnv("SYNC_TEST_INT", 4); got != 7 {
		t.Errorf("got %d", got)
	}
	t.Setenv("SYNC_TEST_INT", "not-a-number")
	if got := intFromEnv("SYNC_TEST_INT", 4); got != 4 {
		t.Errorf("bad value should fall back, got %d", got)
	}
	if got := intFromEnv("SYNC_TEST_INT_UNSET", 4); got != 4 {
		t.Errorf("unset should fall back, got %d", got)
	}
}
