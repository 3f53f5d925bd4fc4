package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Telegram pushes automation outcomes to a chat or channel.
type Telegram struct {
	BotToken string
	ChatID   string
	Client   *http.Client
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{BotToken: botToken, ChatID: chatID, Client: &http.Client{Timeout: 15 * time.Second}}
}

// SendText delivers one Markdown message, retrying up to 3 times with a
// linear backoff.
func (t *Telegram) SendText(text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("telegram configuration incomplete")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.BotToken)

	payload := map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, _ := json.Marshal(payload)

	var lastErr error
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest("POST", url, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.Client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode/100 == 2 {
			return nil
		}
		lastErr = fmt.Errorf("telegram status=%d", resp.StatusCode)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	return lastErr
}
