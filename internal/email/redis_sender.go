package email

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/textproto"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
)

// MockMailTTL is how long a mock email stays readable.
const MockMailTTL = 5 * time.Minute

// MockMailKey is the Redis key of the last mock email of a template sent to
// an address.
func MockMailKey(to, templateID string) string {
	return fmt.Sprintf("mockemail:%s:%s", strings.ToLower(to), templateID)
}

// RedisSender stores emails in Redis instead of sending them, so end-to-end
// tests can read them back through the service API.
type RedisSender struct {
	client redis.Cmdable
	from   string
}

// NewRedisSender creates a new RedisSender
func NewRedisSender(client redis.Cmdable, from string) *RedisSender {
	return &RedisSender{client: client, from: from}
}

func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	templateID, body := splitMessage(rawMessage)
	if templateID == "" {
		templateID = "unknown"
	}

	data, err := json.Marshal(map[string]interface{}{
		"to":          strings.Join(to, ", "),
		"from":        s.from,
		"subject":     subject,
		"body":        body,
		"template_id": templateID,
		"sent_at":     time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	for _, addr := range to {
		key := MockMailKey(addr, templateID)
		if err := s.client.Set(ctx, key, data, MockMailTTL).Err(); err != nil {
			return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
		}
		logger.Debug().Str("key", key).Str("subject", subject).Msg("mock email stored")
	}
	return nil
}

// splitMessage returns the template header and the body of a raw message.
func splitMessage(raw []byte) (templateID, body string) {
	r := textproto.NewReader(bufio.NewReader(bytes.NewReader(raw)))
	header, err := r.ReadMIMEHeader()
	if err != nil {
		return "", string(raw)
	}
	rest, _ := io.ReadAll(r.R)
	return header.Get(TemplateHeader), strings.TrimRight(string(rest), "\r\n")
}
