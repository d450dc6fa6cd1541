package repository

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/zerynth/lib-quectel-ug96/internal/model"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return db
}

func TestSMSRepository(t *testing.T) {
	repo := NewSMSRepository(openTestDB(t))
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	msg := func(index int, content string) *model.SMS {
		return &model.SMS{
			ICCID:     "8939000000000000001",
			SIMIndex:  index,
			Phone:     "+393331234567",
			Content:   content,
			Timestamp: ts,
			Type:      model.SMSReceived,
		}
	}

	t.Run("store dedupes", func(t *testing.T) {
		added, err := repo.Store(msg(1, "hello"))
		if err != nil || !added {
			t.Fatalf("first Store = %v, %v", added, err)
		}
		added, err = repo.Store(msg(1, "hello"))
		if err != nil || added {
			t.Errorf("second Store = %v, %v, want false, nil", added, err)
		}
		added, err = repo.Store(msg(2, "world"))
		if err != nil || !added {
			t.Errorf("Store of a new index = %v, %v", added, err)
		}
	})

	t.Run("page", func(t *testing.T) {
		list, total, err := repo.Page("", 1, 0)
		if err != nil {
			t.Fatalf("Page: %v", err)
		}
		if total != 2 || len(list) != 1 {
			t.Fatalf("Page = %d rows, total %d", len(list), total)
		}
		if list[0].SIMIndex != 2 {
			t.Errorf("newest first: got index %d", list[0].SIMIndex)
		}

		list, total, err = repo.Page("other", 10, 0)
		if err != nil || total != 0 || len(list) != 0 {
			t.Errorf("Page(other) = %v, %d, %v", list, total, err)
		}
	})

	t.Run("mark read", func(t *testing.T) {
		list, err := repo.FindByICCID("8939000000000000001")
		if err != nil || len(list) == 0 {
			t.Fatalf("FindByICCID = %v, %v", list, err)
		}
		if err := repo.MarkRead(list[0].ID); err != nil {
			t.Fatalf("MarkRead: %v", err)
		}
		list, _ = repo.FindByICCID("8939000000000000001")
		if !list[0].IsRead {
			t.Error("message not marked read")
		}
	})
}

func TestModemRepository(t *testing.T) {
	repo := NewModemRepository(openTestDB(t))

	m := &model.Modem{ICCID: "8939", IMEI: "3520", Status: "online", SignalStrength: 50, LastSeen: time.Now()}
	if err := repo.Upsert(m); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Rename("8939", "field unit"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	m = &model.Modem{ICCID: "8939", IMEI: "3520", Status: "online", SignalStrength: 80, LastSeen: time.Now()}
	if err := repo.Upsert(m); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	got, err := repo.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.SignalStrength != 80 || got.Name != "field unit" {
		t.Errorf("Latest = %+v", got)
	}

	if err := repo.MarkAllOffline(); err != nil {
		t.Fatalf("MarkAllOffline: %v", err)
	}
	got, _ = repo.FindByICCID("8939")
	if got.Status != "offline" {
		t.Errorf("status = %q, want offline", got.Status)
	}

	if err := repo.Rename("missing", "x"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Rename(missing) = %v", err)
	}
}

func TestWebhookRepository(t *testing.T) {
	repo := NewWebhookRepository(openTestDB(t))

	for _, wh := range []*model.Webhook{
		{ICCID: "8939", URL: "http://a", Enabled: true},
		{ICCID: "*", URL: "http://b", Enabled: true},
		{ICCID: "1111", URL: "http://c", Enabled: true},
	} {
		if err := repo.Create(wh); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	list, err := repo.FindByICCID("8939")
	if err != nil {
		t.Fatalf("FindByICCID: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("FindByICCID returned %d hooks, want 2", len(list))
	}

	all, _ := repo.List("")
	if len(all) != 3 {
		t.Errorf("List returned %d hooks, want 3", len(all))
	}
	if err := repo.Delete(all[0].ID); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if err := repo.Delete(all[0].ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("second Delete = %v", err)
	}
}
