package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"camwatch/internal/logger"
)

// ErrNotifyDisabled is returned by a Switch that is turned off.
var ErrNotifyDisabled = errors.New("notifications disabled")

// Notifier delivers an alert image with a caption.
type Notifier interface {
	Send(ctx context.Context, imagePath, caption string) error
}

// Switch forwards to next only while enabled reports true.
type Switch struct {
	next    Notifier
	enabled func() bool
	log     *logger.Logger
}

// NewSwitch gates next behind enabled.
func NewSwitch(next Notifier, enabled func() bool, log *logger.Logger) *Switch {
	return &Switch{next: next, enabled: enabled, log: log}
}

func (s *Switch) Send(ctx context.Context, imagePath, caption string) error {
	if !s.enabled() {
		s.log.Info("[notify off] skipped: %s", caption)
		return nil
	}
	if s.next == nil {
		return ErrNotifyDisabled
	}
	return s.next.Send(ctx, imagePath, caption)
}

// MultiNotifier sends to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Send(ctx context.Context, imagePath, caption string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, imagePath, caption); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	msg := errs[0].Error()
	for _, err := range errs[1:] {
		msg += "; " + err.Error()
	}
	return errors.New(msg)
}

// TelegramAPI is the Bot API base URL.
const TelegramAPI = "https://api.telegram.org"

// TelegramNotifier posts the image to a chat with sendPhoto.
type TelegramNotifier struct {
	token  string
	chatID string
	api    string
	client *http.Client
}

// NewTelegramNotifier creates a notifier for one chat.
func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:  token,
		chatID: chatID,
		api:    TelegramAPI,
		client: &http.Client{Timeout: 20 * time.Second},
	}
}

// WithAPI overrides the API base URL.
func (t *TelegramNotifier) WithAPI(api string) *TelegramNotifier {
	t.api = api
	return t
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *TelegramNotifier) Send(ctx context.Context, imagePath, caption string) error {
	img, err := os.ReadFile(imagePath)
	if err != nil {
		return errors.Wrap(err, "read snapshot")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", t.chatID); err != nil {
		return errors.Wrap(err, "write chat_id")
	}
	if err := w.WriteField("caption", caption); err != nil {
		return errors.Wrap(err, "write caption")
	}
	part, err := w.CreateFormFile("photo", filepath.Base(imagePath))
	if err != nil {
		return errors.Wrap(err, "create photo part")
	}
	if _, err := part.Write(img); err != nil {
		return errors.Wrap(err, "write photo")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "close multipart")
	}

	url := fmt.Sprintf("%s/bot%s/sendPhoto", t.api, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return errors.Wrap(err, "build telegram request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "telegram request")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var tr telegramResponse
	if err := json.Unmarshal(raw, &tr); err != nil || !tr.OK || resp.StatusCode != http.StatusOK {
		return errors.Errorf("telegram sendPhoto failed: status %d: %s", resp.StatusCode, tr.Description)
	}
	return nil
}
