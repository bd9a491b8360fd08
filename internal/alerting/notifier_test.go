package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func sampleNote() Notification {
	return Notification{
		CardName:        "Charizard ex",
		SetName:         "Obsidian Flames",
		Rarity:          "Ultra Rare",
		BuyMarketplace:  "tcgplayer",
		BuyPrice:        decimal.NewFromInt(10),
		SellMarketplace: "ebay",
		SellPrice:       decimal.NewFromInt(20),
		NetProfit:       decimal.NewFromInt(8),
		ProfitPct:       decimal.RequireFromString("0.8"),
		Score:           8.5,
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), sampleNote()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "Charizard ex") {
		t.Fatalf("text 应包含卡名: %q", received["text"])
	}
	if !strings.Contains(received["text"], "80.0%") {
		t.Fatalf("text 应包含利润率: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), sampleNote()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestRenderMessageOmitsEmptyFields(t *testing.T) {
	note := sampleNote()
	note.Rarity = ""
	note.SetName = ""
	note.Rationale = ""

	text := renderMessage(note)
	if strings.Contains(text, "Rarity") {
		t.Fatalf("空稀有度不应渲染: %q", text)
	}
	if strings.Contains(text, "()") {
		t.Fatalf("空系列不应渲染: %q", text)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
