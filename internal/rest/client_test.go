package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUserChats_DecodesList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/1/chats" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`[
			{"id":1,"user_id":1,"title":"First","created_at":"2024-05-01T10:00:00Z","updated_at":"2024-05-01T10:00:00Z"},
			{"id":2,"user_id":1,"created_at":"2024-05-01T11:00:00Z","updated_at":"2024-05-01T11:00:00Z"}
		]`)); err != nil {
			t.Errorf("Failed to write response: %v", err)
		}
	}))
	defer srv.Close()

	chats, err := NewClient(srv.URL).UserChats(context.Background(), 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("Expected 2 chats, got %d", len(chats))
	}
	if chats[0].Title != "First" || chats[0].ID != 1 {
		t.Errorf("Unexpected chat: %+v", chats[0])
	}
}

func TestChat_DecodesMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"id":7,"user_id":1,"created_at":"2024-05-01T10:00:00Z","updated_at":"2024-05-01T10:05:00Z",
			"messages":[
				{"id":1,"chat_id":7,"content":"hi","is_ai":false,"timestamp":"2024-05-01T10:00:00Z"},
				{"id":2,"chat_id":7,"content":"hello","is_ai":true,"task_id":"t1","timestamp":"2024-05-01T10:00:05Z"}
			]}`)); err != nil {
			t.Errorf("Failed to write response: %v", err)
		}
	}))
	defer srv.Close()

	chat, err := NewClient(srv.URL).Chat(context.Background(), 7)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(chat.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(chat.Messages))
	}
	if !chat.Messages[1].IsAI || chat.Messages[1].TaskID != "t1" {
		t.Errorf("Unexpected message: %+v", chat.Messages[1])
	}
}

func TestClient_DetailErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		if _, err := w.Write([]byte(`{"detail":"Chat not found"}`)); err != nil {
			t.Errorf("Failed to write response: %v", err)
		}
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Chat(context.Background(), 99)
	if err == nil {
		t.Fatal("Expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "Chat not found") {
		t.Errorf("Expected detail in error, got %v", err)
	}
}

func TestClient_StatusWithoutDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Chat(context.Background(), 1)
	if err == nil {
		t.Fatal("Expected error for 502 response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("Expected status code in error, got %v", err)
	}
}

func TestDeleteChats_SendsBatch(t *testing.T) {
	var got struct {
		ChatIDs []int64 `json:"chat_ids"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chats/batch-delete" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"status":"success","deleted_count":2}`)); err != nil {
			t.Errorf("Failed to write response: %v", err)
		}
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).DeleteChats(context.Background(), []int64{3, 4}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got.ChatIDs) != 2 || got.ChatIDs[0] != 3 || got.ChatIDs[1] != 4 {
		t.Errorf("Unexpected batch body: %+v", got)
	}
}

func TestDeleteEmptyChats_ReturnsCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/users/1/chats/empty" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"deleted_count":3}`)); err != nil {
			t.Errorf("Failed to write response: %v", err)
		}
	}))
	defer srv.Close()

	count, err := NewClient(srv.URL).DeleteEmptyChats(context.Background(), 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 deleted, got %d", count)
	}
}
